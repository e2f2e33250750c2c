package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/obligo/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListAuditLogRequest struct {
	pagination.Pagination
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	StartAt    *time.Time
	EndAt      *time.Time
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type Service interface {
	// Record writes entry using tx so it commits or rolls back with the
	// change it describes. A nil tx uses the service connection.
	Record(ctx context.Context, tx *gorm.DB, entry Entry) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
	ErrInvalidAction    = errors.New("invalid_action")
)
