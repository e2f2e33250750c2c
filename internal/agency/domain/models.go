package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type ContractKind string

const (
	ContractKindSingle    ContractKind = "single"
	ContractKindRecurring ContractKind = "recurring"
)

type ContractStatus string

const (
	ContractStatusActive    ContractStatus = "active"
	ContractStatusSuspended ContractStatus = "suspended"
	ContractStatusCancelled ContractStatus = "cancelled"
	ContractStatusFinished  ContractStatus = "finished"
)

// Contract is owned by the agency CRUD; the engine only reads it.
type Contract struct {
	ID         snowflake.ID    `gorm:"primaryKey" json:"id"`
	Code       string          `gorm:"type:text;not null;uniqueIndex" json:"code"`
	Kind       ContractKind    `gorm:"type:text;not null" json:"kind"`
	Value      decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"value"`
	BillingDay int             `gorm:"not null;default:1" json:"billing_day"`
	Status     ContractStatus  `gorm:"type:text;not null;index" json:"status"`
	StartDate  time.Time       `gorm:"not null" json:"start_date"`
	EndDate    *time.Time      `json:"end_date,omitempty"`
	SellerID   *snowflake.ID   `gorm:"index" json:"seller_id,omitempty"`
	ClientID   snowflake.ID    `gorm:"not null;index" json:"client_id"`
	CreatedAt  time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Contract) TableName() string { return "contracts" }

// IsExpandable reports whether the contract should carry future receivables.
func (c Contract) IsExpandable() bool {
	return c.Kind == ContractKindRecurring && c.Status == ContractStatusActive
}

type SaleStatus string

const (
	SaleStatusProposal    SaleStatus = "proposal"
	SaleStatusNegotiation SaleStatus = "negotiation"
	SaleStatusClosed      SaleStatus = "closed"
	SaleStatusLost        SaleStatus = "lost"
)

type Sale struct {
	ID        snowflake.ID    `gorm:"primaryKey" json:"id"`
	Title     string          `gorm:"type:text;not null;default:''" json:"title"`
	Value     decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"value"`
	Status    SaleStatus      `gorm:"type:text;not null;index" json:"status"`
	SellerID  *snowflake.ID   `gorm:"index" json:"seller_id,omitempty"`
	ClientID  snowflake.ID    `gorm:"not null;index" json:"client_id"`
	ClosedAt  *time.Time      `json:"closed_at,omitempty"`
	CreatedAt time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Sale) TableName() string { return "sales" }

func (s Sale) IsClosed() bool {
	return s.Status == SaleStatusClosed
}

// ReferenceDate is the date a closed sale is booked on.
func (s Sale) ReferenceDate() time.Time {
	if s.ClosedAt != nil && !s.ClosedAt.IsZero() {
		return s.ClosedAt.UTC()
	}
	return s.CreatedAt.UTC()
}

type Seller struct {
	ID                   snowflake.ID        `gorm:"primaryKey" json:"id"`
	Name                 string              `gorm:"type:text;not null" json:"name"`
	CommissionPercentage decimal.NullDecimal `gorm:"type:numeric(5,2)" json:"commission_percentage"`
	CreatedAt            time.Time           `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Seller) TableName() string { return "sellers" }

type Client struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Client) TableName() string { return "clients" }

type CategoryKind string

const (
	CategoryKindIncome  CategoryKind = "income"
	CategoryKindExpense CategoryKind = "expense"
)

type Category struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Slug      string       `gorm:"type:text;not null;uniqueIndex:ux_categories_slug_kind,priority:1" json:"slug"`
	Kind      CategoryKind `gorm:"type:text;not null;uniqueIndex:ux_categories_slug_kind,priority:2" json:"kind"`
	Color     string       `gorm:"type:text;not null;default:''" json:"color"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Category) TableName() string { return "categories" }
