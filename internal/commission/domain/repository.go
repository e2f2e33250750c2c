package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertIfAbsent reports false when a commission with the same origin key exists.
	InsertIfAbsent(ctx context.Context, db *gorm.DB, commission *Commission) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Commission, error)
	FindByOriginKey(ctx context.Context, db *gorm.DB, originKey string) (*Commission, error)
	FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) (map[snowflake.ID]*Commission, error)
	ListBySaleIDs(ctx context.Context, db *gorm.DB, saleIDs []snowflake.ID) (map[snowflake.ID]*Commission, error)
	ListByContract(ctx context.Context, db *gorm.DB, contractID snowflake.ID, status Status) ([]*Commission, error)
	// ListWithoutPayable returns commissions whose linked payable is missing.
	ListWithoutPayable(ctx context.Context, db *gorm.DB) ([]*Commission, error)
	// MarkPaid moves a pending commission to paid and reports whether it changed.
	MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
	LinkObligation(ctx context.Context, db *gorm.DB, id snowflake.ID, obligationID snowflake.ID) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
}
