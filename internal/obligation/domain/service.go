package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	agencydomain "github.com/smallbiznis/obligo/internal/agency/domain"
	"github.com/smallbiznis/obligo/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListObligationRequest struct {
	pagination.Pagination
	Direction  string
	Status     string
	OriginType string
	OriginID   string
}

type ListObligationResponse struct {
	pagination.PageInfo
	Obligations []Obligation `json:"obligations"`
}

type Service interface {
	Get(ctx context.Context, id snowflake.ID) (*Obligation, error)
	List(ctx context.Context, req ListObligationRequest) (ListObligationResponse, error)
	Confirm(ctx context.Context, id snowflake.ID) (*Obligation, error)
	Cancel(ctx context.Context, id snowflake.ID) (*Obligation, error)
	// EnsureSaleReceivable creates the receivable of a closed sale when it is
	// missing. It runs on db so callers can enlist it in their transaction.
	EnsureSaleReceivable(ctx context.Context, db *gorm.DB, sale *agencydomain.Sale) (*Obligation, bool, error)
}
