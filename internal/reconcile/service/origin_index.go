package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	agencydomain "github.com/smallbiznis/obligo/internal/agency/domain"
	commissiondomain "github.com/smallbiznis/obligo/internal/commission/domain"
	obligationdomain "github.com/smallbiznis/obligo/internal/obligation/domain"
	"github.com/smallbiznis/obligo/internal/reconcile/domain"
	"gorm.io/gorm"
)

// originIndex holds the records referenced by a batch of obligations so the
// batch is classified with a fixed number of queries.
type originIndex struct {
	contracts       map[snowflake.ID]*agencydomain.Contract
	contractsByCode map[string]*agencydomain.Contract
	sales           map[snowflake.ID]*agencydomain.Sale
	commissions     map[snowflake.ID]*commissiondomain.Commission
}

func (s *Service) loadIndex(ctx context.Context, db *gorm.DB, obligations []*obligationdomain.Obligation) (*originIndex, error) {
	var (
		contractIDs   []snowflake.ID
		codes         []string
		saleIDs       []snowflake.ID
		commissionIDs []snowflake.ID
	)
	for _, o := range obligations {
		switch o.OriginType {
		case obligationdomain.OriginContract:
			if o.OriginID != nil {
				contractIDs = append(contractIDs, *o.OriginID)
			}
		case obligationdomain.OriginSale:
			if o.OriginID != nil {
				saleIDs = append(saleIDs, *o.OriginID)
			}
		case obligationdomain.OriginCommission:
			if o.OriginID != nil {
				commissionIDs = append(commissionIDs, *o.OriginID)
			}
		case obligationdomain.OriginNone, "":
			if code, ok := obligationdomain.LegacyContractCode(o.Description); ok {
				codes = append(codes, code)
			}
		}
	}

	idx := &originIndex{}
	var err error
	if idx.commissions, err = s.commissionRepo.FindByIDs(ctx, db, commissionIDs); err != nil {
		return nil, err
	}
	for _, commission := range idx.commissions {
		if commission.SaleID != nil {
			saleIDs = append(saleIDs, *commission.SaleID)
		}
		if commission.ContractID != nil {
			contractIDs = append(contractIDs, *commission.ContractID)
		}
	}
	if idx.contracts, err = s.agencyRepo.FindContractsByIDs(ctx, db, contractIDs); err != nil {
		return nil, err
	}
	if idx.contractsByCode, err = s.agencyRepo.FindContractsByCodes(ctx, db, codes); err != nil {
		return nil, err
	}
	if idx.sales, err = s.agencyRepo.FindSalesByIDs(ctx, db, saleIDs); err != nil {
		return nil, err
	}
	return idx, nil
}

// classify reports the orphan class of a pending obligation, or false when
// its origin still justifies it.
func (idx *originIndex) classify(o *obligationdomain.Obligation) (domain.OrphanClass, bool) {
	if o.IsRecurring {
		return "", false
	}
	switch o.OriginType {
	case obligationdomain.OriginNone, "":
		if code, ok := obligationdomain.LegacyContractCode(o.Description); ok {
			return contractClass(idx.contractsByCode[code])
		}
		if o.Direction == obligationdomain.DirectionReceivable {
			return domain.ClassMissingOrigin, true
		}
		return "", false
	case obligationdomain.OriginContract:
		if o.OriginID == nil {
			return domain.ClassUnknownContract, true
		}
		return contractClass(idx.contracts[*o.OriginID])
	case obligationdomain.OriginSale:
		if o.OriginID == nil {
			return domain.ClassMissingSale, true
		}
		sale, ok := idx.sales[*o.OriginID]
		if !ok {
			return domain.ClassMissingSale, true
		}
		if !sale.IsClosed() {
			return domain.ClassSaleNotClosed, true
		}
		return "", false
	case obligationdomain.OriginCommission:
		if o.OriginID == nil {
			return domain.ClassMissingCommission, true
		}
		if _, ok := idx.commissions[*o.OriginID]; !ok {
			return domain.ClassMissingCommission, true
		}
		return "", false
	default:
		return "", false
	}
}

// blockReason reports why an obligation must not be deleted on request.
func (idx *originIndex) blockReason(o *obligationdomain.Obligation) string {
	if o.Status == obligationdomain.StatusConfirmed {
		return domain.ReasonConfirmed
	}
	switch o.OriginType {
	case obligationdomain.OriginSale:
		if o.OriginID != nil && idx.closedSale(*o.OriginID) {
			return domain.ReasonClosedSale
		}
	case obligationdomain.OriginContract:
		if o.OriginID != nil && idx.activeContract(idx.contracts[*o.OriginID]) {
			return domain.ReasonActiveContract
		}
	case obligationdomain.OriginCommission:
		if o.OriginID == nil {
			return ""
		}
		commission, ok := idx.commissions[*o.OriginID]
		if !ok {
			return ""
		}
		if commission.SaleID != nil && idx.closedSale(*commission.SaleID) {
			return domain.ReasonClosedSale
		}
		if commission.ContractID != nil && idx.activeContract(idx.contracts[*commission.ContractID]) {
			return domain.ReasonActiveContract
		}
	case obligationdomain.OriginNone, "":
		if code, ok := obligationdomain.LegacyContractCode(o.Description); ok && idx.activeContract(idx.contractsByCode[code]) {
			return domain.ReasonActiveContract
		}
	}
	return ""
}

func (idx *originIndex) closedSale(id snowflake.ID) bool {
	sale, ok := idx.sales[id]
	return ok && sale.IsClosed()
}

func (idx *originIndex) activeContract(contract *agencydomain.Contract) bool {
	return contract != nil && contract.Status == agencydomain.ContractStatusActive
}

func contractClass(contract *agencydomain.Contract) (domain.OrphanClass, bool) {
	if contract == nil {
		return domain.ClassUnknownContract, true
	}
	if contract.Status != agencydomain.ContractStatusActive {
		return domain.ClassInactiveContract, true
	}
	return "", false
}
