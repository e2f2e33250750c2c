package domain

import (
	"github.com/bwmarrin/snowflake"
)

// OrphanClass explains why a pending obligation has no valid origin.
type OrphanClass string

const (
	ClassMissingOrigin     OrphanClass = "missing_origin"
	ClassInactiveContract  OrphanClass = "inactive_contract"
	ClassUnknownContract   OrphanClass = "unknown_contract"
	ClassMissingSale       OrphanClass = "missing_sale"
	ClassSaleNotClosed     OrphanClass = "sale_not_closed"
	ClassMissingCommission OrphanClass = "missing_commission"
)

type SweepRequest struct {
	DryRun bool `json:"dry_run"`
}

type OrphanDetail struct {
	ObligationID snowflake.ID `json:"obligation_id"`
	Class        OrphanClass  `json:"class"`
	Origin       string       `json:"origin"`
	Description  string       `json:"description"`
	Deleted      bool         `json:"deleted"`
	Error        string       `json:"error,omitempty"`
}

type SweepResult struct {
	RunID   string         `json:"run_id"`
	DryRun  bool           `json:"dry_run"`
	Scanned int            `json:"scanned"`
	Deleted int            `json:"deleted"`
	Failed  int            `json:"failed"`
	Details []OrphanDetail `json:"details"`
}

// Block reasons reported by ValidateAndDelete.
const (
	ReasonConfirmed      = "confirmed"
	ReasonClosedSale     = "closed_sale"
	ReasonActiveContract = "active_contract"
)

type DeleteResult struct {
	ObligationID snowflake.ID `json:"obligation_id"`
	Deleted      bool         `json:"deleted"`
	Reason       string       `json:"reason,omitempty"`
	// CommissionID is set when the deleted payable took its commission with it.
	CommissionID *snowflake.ID `json:"commission_id,omitempty"`
}

type IssueKind string

const (
	IssueMissingSaleReceivable        IssueKind = "missing_sale_receivable"
	IssueSaleReceivableDateMismatch   IssueKind = "sale_receivable_date_mismatch"
	IssueSaleReceivableAmountMismatch IssueKind = "sale_receivable_amount_mismatch"
	IssueMissingCommission            IssueKind = "missing_commission"
	IssueCommissionMissingPayable     IssueKind = "commission_missing_payable"
)

type Issue struct {
	Kind         IssueKind     `json:"kind"`
	TargetType   string        `json:"target_type"`
	TargetID     snowflake.ID  `json:"target_id"`
	ObligationID *snowflake.ID `json:"obligation_id,omitempty"`
	Detail       string        `json:"detail,omitempty"`
}

type ActionStatus string

const (
	ActionRepaired ActionStatus = "repaired"
	ActionNoop     ActionStatus = "noop"
	ActionFailed   ActionStatus = "failed"
)

type Action struct {
	Issue  Issue        `json:"issue"`
	Status ActionStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}
