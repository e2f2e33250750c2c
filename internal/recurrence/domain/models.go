package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	obligationdomain "github.com/smallbiznis/obligo/internal/obligation/domain"
)

// Failure is a per-period or per-template error that did not stop the batch.
type Failure struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

type GenerateResult struct {
	ContractID         snowflake.ID                   `json:"contract_id"`
	Obligations        []*obligationdomain.Obligation `json:"obligations"`
	Skipped            int                            `json:"skipped"`
	CommissionsCreated int                            `json:"commissions_created"`
	Failures           []Failure                      `json:"failures,omitempty"`
}

type CancelResult struct {
	ContractID                  snowflake.ID `json:"contract_id"`
	Cancelled                   int64        `json:"cancelled"`
	CommissionPayablesCancelled int64        `json:"commission_payables_cancelled"`
}

type ProcessRequest struct {
	// Lookahead is the number of periods to keep ahead of the last
	// instance. Zero means the configured default.
	Lookahead int `json:"lookahead"`
	// TargetMonth caps generation at the end of that month.
	TargetMonth *time.Time `json:"target_month,omitempty"`
}

type TemplateStatus string

const (
	TemplateProcessed TemplateStatus = "processed"
	TemplateCovered   TemplateStatus = "covered"
	TemplateEnded     TemplateStatus = "ended"
	TemplateFailed    TemplateStatus = "failed"
)

type TemplateResult struct {
	TemplateID snowflake.ID   `json:"template_id"`
	Status     TemplateStatus `json:"status"`
	Created    int            `json:"created"`
	Skipped    int            `json:"skipped"`
	Error      string         `json:"error,omitempty"`
}

type ProcessResult struct {
	Scanned   int              `json:"scanned"`
	Created   int              `json:"created"`
	Skipped   int              `json:"skipped"`
	Failed    int              `json:"failed"`
	Templates []TemplateResult `json:"templates"`
}
