package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type OriginType string

const (
	OriginSale     OriginType = "sale"
	OriginContract OriginType = "contract"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
)

// Commission is owed to a seller for a closed sale or a contract month.
// origin_key is unique: at most one commission per sale and per
// (contract, month).
type Commission struct {
	ID           snowflake.ID    `gorm:"primaryKey" json:"id"`
	SellerID     snowflake.ID    `gorm:"not null;index" json:"seller_id"`
	OriginType   OriginType      `gorm:"type:text;not null" json:"origin_type"`
	SaleID       *snowflake.ID   `gorm:"index" json:"sale_id,omitempty"`
	ContractID   *snowflake.ID   `gorm:"index" json:"contract_id,omitempty"`
	MonthRef     string          `gorm:"type:text;not null" json:"month_ref"`
	OriginKey    string          `gorm:"type:text;not null;uniqueIndex" json:"origin_key"`
	Percentage   decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"percentage"`
	BaseAmount   decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"base_amount"`
	Amount       decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	Status       Status          `gorm:"type:text;not null;index" json:"status"`
	ObligationID *snowflake.ID   `gorm:"index" json:"obligation_id,omitempty"`
	Note         string          `gorm:"type:text;not null;default:''" json:"note,omitempty"`
	PaidAt       *time.Time      `json:"paid_at,omitempty"`
	CreatedAt    time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Commission) TableName() string { return "commissions" }

// Origin is a sale or a contract month.
type Origin struct {
	Type       OriginType
	SaleID     snowflake.ID
	ContractID snowflake.ID
	Month      time.Time
}

func SaleOrigin(saleID snowflake.ID) Origin {
	return Origin{Type: OriginSale, SaleID: saleID}
}

func ContractOrigin(contractID snowflake.ID, month time.Time) Origin {
	return Origin{Type: OriginContract, ContractID: contractID, Month: month}
}

func (o Origin) Validate() error {
	switch o.Type {
	case OriginSale:
		if o.SaleID == 0 || o.ContractID != 0 {
			return ErrInvalidOrigin
		}
	case OriginContract:
		if o.ContractID == 0 || o.SaleID != 0 || o.Month.IsZero() {
			return ErrInvalidOrigin
		}
	default:
		return ErrInvalidOrigin
	}
	return nil
}

// Key is the idempotency key stored in origin_key.
func (o Origin) Key() string {
	switch o.Type {
	case OriginSale:
		return fmt.Sprintf("sale:%s", o.SaleID)
	case OriginContract:
		return fmt.Sprintf("contract:%s:%s", o.ContractID, o.Month.UTC().Format("2006-01"))
	default:
		return ""
	}
}

// ComputeAmount returns base × percentage / 100 rounded to cents.
func ComputeAmount(base, percentage decimal.Decimal) decimal.Decimal {
	return base.Mul(percentage).Div(decimal.NewFromInt(100)).Round(2)
}
