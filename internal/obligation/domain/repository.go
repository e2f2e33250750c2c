package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ListFilter struct {
	Direction  Direction
	Status     Status
	OriginType OriginType
	OriginID   *snowflake.ID
	AfterID    snowflake.ID
	Limit      int
}

type Repository interface {
	// InsertIfAbsent reports false when an obligation for the same origin and
	// period already exists.
	InsertIfAbsent(ctx context.Context, db *gorm.DB, obligation *Obligation) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Obligation, error)
	FindByOrigin(ctx context.Context, db *gorm.DB, origin Origin) (*Obligation, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Obligation, error)
	ListByOrigin(ctx context.Context, db *gorm.DB, originType OriginType, originID snowflake.ID, statuses ...Status) ([]*Obligation, error)
	ListByOriginIDs(ctx context.Context, db *gorm.DB, originType OriginType, originIDs []snowflake.ID) ([]*Obligation, error)
	ListTemplates(ctx context.Context, db *gorm.DB) ([]*Obligation, error)
	ListPending(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]*Obligation, error)
	LatestPeriodKey(ctx context.Context, db *gorm.DB, originType OriginType, originID snowflake.ID) (string, error)
	CancelPendingByOrigin(ctx context.Context, db *gorm.DB, originType OriginType, originIDs []snowflake.ID, at time.Time) (int64, error)
	Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from Status, to Status, at time.Time) (bool, error)
	UpdateSchedule(ctx context.Context, db *gorm.DB, id snowflake.ID, dueDate time.Time, amount decimal.Decimal, at time.Time) error
	// Delete removes a non-confirmed obligation and reports whether a row went away.
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
}
