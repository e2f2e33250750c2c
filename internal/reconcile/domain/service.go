package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// SweepOrphans deletes pending obligations whose origin no longer
	// justifies them. Confirmed obligations are never touched.
	SweepOrphans(ctx context.Context, req SweepRequest) (*SweepResult, error)
	ValidateAndDelete(ctx context.Context, obligationID snowflake.ID) (*DeleteResult, error)
	DetectInconsistencies(ctx context.Context) ([]Issue, error)
	RepairInconsistencies(ctx context.Context) ([]Action, error)
}
