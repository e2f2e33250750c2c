package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypeSystem   ActorType = "system"
	ActorTypeOperator ActorType = "operator"
	ActorTypeViewer   ActorType = "viewer"
)

// Action names a destructive or corrective change recorded in audit_logs.
type Action string

const (
	ActionObligationConfirmed     Action = "obligation.confirmed"
	ActionObligationCancelled     Action = "obligation.cancelled"
	ActionObligationDeleted       Action = "obligation.deleted"
	ActionOrphanDeleted           Action = "obligation.orphan_deleted"
	ActionCommissionDeleted       Action = "commission.deleted"
	ActionFutureAccountsCancelled Action = "contract.future_accounts_cancelled"
	ActionInconsistencyRepaired   Action = "reconciliation.repaired"
	ActionAuthorizationGranted    Action = "authorization.granted"
	ActionAuthorizationDenied     Action = "authorization.denied"
)

type TargetType string

const (
	TargetObligation    TargetType = "obligation"
	TargetCommission    TargetType = "commission"
	TargetContract      TargetType = "contract"
	TargetAuthorization TargetType = "authorization"
)

// Entry is what a caller hands to Service.Record. An empty ActorType is
// resolved from the request context, falling back to system.
type Entry struct {
	ActorType  ActorType
	ActorID    string
	Action     Action
	TargetType TargetType
	TargetID   string
	Metadata   map[string]any
}

// ObligationEntry is shorthand for entries targeting a single obligation.
func ObligationEntry(action Action, id snowflake.ID, metadata map[string]any) Entry {
	return Entry{Action: action, TargetType: TargetObligation, TargetID: id.String(), Metadata: metadata}
}

type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	ActorType  string            `gorm:"type:text;not null" json:"actor_type"`
	ActorID    *string           `gorm:"type:text" json:"actor_id,omitempty"`
	Action     string            `gorm:"type:text;not null;index" json:"action"`
	TargetType string            `gorm:"type:text;not null;index:idx_audit_logs_target,priority:1" json:"target_type"`
	TargetID   *string           `gorm:"type:text;index:idx_audit_logs_target,priority:2" json:"target_id,omitempty"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

// ListFilter narrows audit_logs reads. Results are newest first and AfterID
// continues below the last ID of the previous page.
type ListFilter struct {
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	StartAt    *time.Time
	EndAt      *time.Time
	AfterID    snowflake.ID
	Limit      int
}
