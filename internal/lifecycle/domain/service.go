package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	agencydomain "github.com/smallbiznis/obligo/internal/agency/domain"
	commissiondomain "github.com/smallbiznis/obligo/internal/commission/domain"
	obligationdomain "github.com/smallbiznis/obligo/internal/obligation/domain"
	recurrencedomain "github.com/smallbiznis/obligo/internal/recurrence/domain"
)

type SaleSaveResult struct {
	SaleID            snowflake.ID                 `json:"sale_id"`
	Receivable        *obligationdomain.Obligation `json:"receivable,omitempty"`
	ReceivableCreated bool                         `json:"receivable_created"`
	Commission        *commissiondomain.Commission `json:"commission,omitempty"`
	CommissionCreated bool                         `json:"commission_created"`
	// Warnings carries commission failures. They never undo the sale write.
	Warnings []string `json:"warnings,omitempty"`
}

type ContractSaveResult struct {
	ContractID snowflake.ID                     `json:"contract_id"`
	Generated  *recurrencedomain.GenerateResult `json:"generated,omitempty"`
	Cancelled  *recurrencedomain.CancelResult   `json:"cancelled,omitempty"`
}

// Service reacts to writes of sales and contracts made by the agency CRUD.
type Service interface {
	BeforeSaleSave(sale *agencydomain.Sale) error
	AfterSaleSave(ctx context.Context, saleID snowflake.ID) (*SaleSaveResult, error)
	BeforeContractSave(contract *agencydomain.Contract) error
	AfterContractSave(ctx context.Context, contractID snowflake.ID) (*ContractSaveResult, error)
}
