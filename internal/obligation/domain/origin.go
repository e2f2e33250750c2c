package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	MonthKeyLayout = "2006-01"
	DayKeyLayout   = "2006-01-02"
)

// Origin identifies the single entity that justifies an obligation.
type Origin struct {
	Type      OriginType
	ID        snowflake.ID
	PeriodKey string
}

func NoOrigin() Origin {
	return Origin{Type: OriginNone}
}

func SaleOrigin(saleID snowflake.ID) Origin {
	return Origin{Type: OriginSale, ID: saleID}
}

func ContractPeriodOrigin(contractID snowflake.ID, period time.Time) Origin {
	return Origin{Type: OriginContract, ID: contractID, PeriodKey: MonthKey(period)}
}

func CommissionOrigin(commissionID snowflake.ID) Origin {
	return Origin{Type: OriginCommission, ID: commissionID}
}

func TemplateInstanceOrigin(templateID snowflake.ID, dueDate time.Time) Origin {
	return Origin{Type: OriginTemplate, ID: templateID, PeriodKey: DayKey(dueDate)}
}

func (o Origin) Validate() error {
	switch o.Type {
	case OriginNone:
		if o.ID != 0 || o.PeriodKey != "" {
			return ErrInvalidOrigin
		}
		return nil
	case OriginSale, OriginCommission:
		if o.ID == 0 {
			return ErrInvalidOrigin
		}
		return nil
	case OriginContract:
		if o.ID == 0 {
			return ErrInvalidOrigin
		}
		if _, err := time.Parse(MonthKeyLayout, o.PeriodKey); err != nil {
			return ErrInvalidOrigin
		}
		return nil
	case OriginTemplate:
		if o.ID == 0 {
			return ErrInvalidOrigin
		}
		if _, err := time.Parse(DayKeyLayout, o.PeriodKey); err != nil {
			return ErrInvalidOrigin
		}
		return nil
	default:
		return ErrInvalidOrigin
	}
}

func (o Origin) String() string {
	if o.Type == OriginNone {
		return string(OriginNone)
	}
	if o.PeriodKey == "" {
		return fmt.Sprintf("%s:%s", o.Type, o.ID)
	}
	return fmt.Sprintf("%s:%s:%s", o.Type, o.ID, o.PeriodKey)
}

func MonthKey(t time.Time) string { return t.UTC().Format(MonthKeyLayout) }

func DayKey(t time.Time) string { return t.UTC().Format(DayKeyLayout) }

func ParseMonthKey(key string) (time.Time, error) {
	return time.ParseInLocation(MonthKeyLayout, strings.TrimSpace(key), time.UTC)
}

func ParseDayKey(key string) (time.Time, error) {
	return time.ParseInLocation(DayKeyLayout, strings.TrimSpace(key), time.UTC)
}

var legacyContractPattern = regexp.MustCompile(`Contrato\s+(\S+)\s+-`)

// LegacyContractCode extracts the contract code from descriptions written
// before origins were structured, e.g. "Contrato CT-001 - Acme - 03/2026".
func LegacyContractCode(description string) (string, bool) {
	match := legacyContractPattern.FindStringSubmatch(description)
	if len(match) < 2 {
		return "", false
	}
	return match[1], true
}

// ContractReceivableDescription renders the description of a contract period
// receivable. It keeps the legacy "Contrato <code> -" prefix so older tooling
// can still read it.
func ContractReceivableDescription(code, clientName string, period time.Time) string {
	return fmt.Sprintf("Contrato %s - %s - %02d/%d", code, clientName, int(period.Month()), period.Year())
}
