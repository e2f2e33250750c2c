package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Direction string

const (
	DirectionReceivable Direction = "receivable"
	DirectionPayable    Direction = "payable"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

type OriginType string

const (
	OriginNone       OriginType = "none"
	OriginSale       OriginType = "sale"
	OriginContract   OriginType = "contract"
	OriginCommission OriginType = "commission"
	OriginTemplate   OriginType = "template"
)

type Frequency string

const (
	FrequencyMonthly    Frequency = "monthly"
	FrequencyQuarterly  Frequency = "quarterly"
	FrequencySemiannual Frequency = "semiannual"
	FrequencyAnnual     Frequency = "annual"
)

// Months is the calendar increment between two instances. Zero means the
// frequency is not supported.
func (f Frequency) Months() int {
	switch f {
	case FrequencyMonthly:
		return 1
	case FrequencyQuarterly:
		return 3
	case FrequencySemiannual:
		return 6
	case FrequencyAnnual:
		return 12
	default:
		return 0
	}
}

func (f Frequency) Valid() bool { return f.Months() > 0 }

// Obligation is a dated receivable or payable.
//
// (origin_type, origin_id, period_key) is unique, which makes every generator
// idempotent: a second insert for the same origin and period is a no-op.
type Obligation struct {
	ID                snowflake.ID    `gorm:"primaryKey" json:"id"`
	Direction         Direction       `gorm:"type:text;not null;index" json:"direction"`
	Amount            decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	DueDate           time.Time       `gorm:"not null;index" json:"due_date"`
	Status            Status          `gorm:"type:text;not null;index" json:"status"`
	Description       string          `gorm:"type:text;not null;default:''" json:"description"`
	PaymentTerms      string          `gorm:"type:text;not null;default:''" json:"payment_terms,omitempty"`
	CategoryID        *snowflake.ID   `json:"category_id,omitempty"`
	ClientID          *snowflake.ID   `gorm:"index" json:"client_id,omitempty"`
	OwnerID           snowflake.ID    `gorm:"not null" json:"owner_id"`
	OriginType        OriginType      `gorm:"type:text;not null;uniqueIndex:ux_obligations_origin,priority:1" json:"origin_type"`
	OriginID          *snowflake.ID   `gorm:"uniqueIndex:ux_obligations_origin,priority:2" json:"origin_id,omitempty"`
	PeriodKey         string          `gorm:"type:text;not null;default:'';uniqueIndex:ux_obligations_origin,priority:3" json:"period_key,omitempty"`
	IsRecurring       bool            `gorm:"not null;default:false;index" json:"is_recurring"`
	Frequency         Frequency       `gorm:"type:text;not null;default:''" json:"frequency,omitempty"`
	RecurrenceEndDate *time.Time      `json:"recurrence_end_date,omitempty"`
	ConfirmedAt       *time.Time      `json:"confirmed_at,omitempty"`
	CancelledAt       *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt         time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Obligation) TableName() string { return "obligations" }

// IsTemplate reports whether the row drives generic recurrence.
func (o Obligation) IsTemplate() bool {
	return o.IsRecurring && o.Frequency.Valid() && o.Status != StatusCancelled
}

func (o Obligation) IsPending() bool { return o.Status == StatusPending }

// Origin returns the structured origin of the obligation.
func (o Obligation) Origin() Origin {
	origin := Origin{Type: o.OriginType, PeriodKey: o.PeriodKey}
	if origin.Type == "" {
		origin.Type = OriginNone
	}
	if o.OriginID != nil {
		origin.ID = *o.OriginID
	}
	return origin
}

// SetOrigin stores origin on the row, clearing origin_id for OriginNone.
func (o *Obligation) SetOrigin(origin Origin) {
	o.OriginType = origin.Type
	o.PeriodKey = origin.PeriodKey
	if origin.Type == OriginNone || origin.ID == 0 {
		o.OriginID = nil
		return
	}
	id := origin.ID
	o.OriginID = &id
}
