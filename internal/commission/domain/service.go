package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	agencydomain "github.com/smallbiznis/obligo/internal/agency/domain"
	obligationdomain "github.com/smallbiznis/obligo/internal/obligation/domain"
	"gorm.io/gorm"
)

type CreateCommissionRequest struct {
	Origin      Origin
	SellerID    snowflake.ID
	OriginValue decimal.Decimal
	// MonthRef defaults to the origin month for contracts and to the current
	// month for sales.
	MonthRef   time.Time
	ClientName string
	Note       string
}

// NewSaleRequest builds the commission request of a closed sale, booked on
// the month the sale closed.
func NewSaleRequest(sale *agencydomain.Sale, clientName string) CreateCommissionRequest {
	var sellerID snowflake.ID
	if sale.SellerID != nil {
		sellerID = *sale.SellerID
	}
	return CreateCommissionRequest{
		Origin:      SaleOrigin(sale.ID),
		SellerID:    sellerID,
		OriginValue: sale.Value,
		MonthRef:    obligationdomain.MonthStart(sale.ReferenceDate()),
		ClientName:  clientName,
	}
}

type CreateCommissionResult struct {
	Commission *Commission                  `json:"commission"`
	Payable    *obligationdomain.Obligation `json:"payable,omitempty"`
	Created    bool                         `json:"created"`
}

type Service interface {
	CreateCommission(ctx context.Context, req CreateCommissionRequest) (*CreateCommissionResult, error)
	DeleteCommission(ctx context.Context, id snowflake.ID) error
	GetCommission(ctx context.Context, id snowflake.ID) (*Commission, error)
	// EnsurePayable recreates the payable of a commission whose payable is gone.
	EnsurePayable(ctx context.Context, db *gorm.DB, id snowflake.ID) (*obligationdomain.Obligation, bool, error)
}
