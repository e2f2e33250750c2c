package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	agencydomain "github.com/smallbiznis/obligo/internal/agency/domain"
	commissiondomain "github.com/smallbiznis/obligo/internal/commission/domain"
	"github.com/smallbiznis/obligo/internal/lifecycle/domain"
	obligationdomain "github.com/smallbiznis/obligo/internal/obligation/domain"
	"github.com/smallbiznis/obligo/internal/observability/logger"
	recurrencedomain "github.com/smallbiznis/obligo/internal/recurrence/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	AgencyRepo    agencydomain.Repository
	ObligationSvc obligationdomain.Service
	CommissionSvc commissiondomain.Service
	RecurrenceSvc recurrencedomain.Service
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	agencyRepo    agencydomain.Repository
	obligationSvc obligationdomain.Service
	commissionSvc commissiondomain.Service
	recurrenceSvc recurrencedomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("lifecycle.service"),
		agencyRepo:    p.AgencyRepo,
		obligationSvc: p.ObligationSvc,
		commissionSvc: p.CommissionSvc,
		recurrenceSvc: p.RecurrenceSvc,
	}
}

// BeforeSaleSave rejects a closed sale that nobody can be paid commission for.
func (s *Service) BeforeSaleSave(sale *agencydomain.Sale) error {
	if sale == nil {
		return agencydomain.ErrSaleNotFound
	}
	if sale.IsClosed() && sale.SellerID == nil {
		return commissiondomain.ErrSellerRequired
	}
	return nil
}

func (s *Service) AfterSaleSave(ctx context.Context, saleID snowflake.ID) (*domain.SaleSaveResult, error) {
	sale, err := s.agencyRepo.FindSale(ctx, s.db, saleID)
	if err != nil {
		return nil, err
	}
	result := &domain.SaleSaveResult{SaleID: sale.ID}
	if !sale.IsClosed() {
		return result, nil
	}

	log := logger.WithContext(ctx, s.log).With(zap.String("sale_id", sale.ID.String()))

	receivable, created, err := s.obligationSvc.EnsureSaleReceivable(ctx, nil, sale)
	if err != nil {
		return nil, err
	}
	result.Receivable = receivable
	result.ReceivableCreated = created

	clientName := ""
	if client, err := s.agencyRepo.FindClient(ctx, s.db, sale.ClientID); err == nil {
		clientName = client.Name
	}
	commission, err := s.commissionSvc.CreateCommission(ctx, commissiondomain.NewSaleRequest(sale, clientName))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("sale commission not created", zap.Error(err))
		result.Warnings = append(result.Warnings, err.Error())
		return result, nil
	}
	result.Commission = commission.Commission
	result.CommissionCreated = commission.Created
	return result, nil
}

// BeforeContractSave rejects an active recurring contract without a seller.
func (s *Service) BeforeContractSave(contract *agencydomain.Contract) error {
	if contract == nil {
		return agencydomain.ErrContractNotFound
	}
	if contract.IsExpandable() && contract.SellerID == nil {
		return commissiondomain.ErrSellerRequired
	}
	return nil
}

func (s *Service) AfterContractSave(ctx context.Context, contractID snowflake.ID) (*domain.ContractSaveResult, error) {
	contract, err := s.agencyRepo.FindContract(ctx, s.db, contractID)
	if err != nil {
		return nil, err
	}
	result := &domain.ContractSaveResult{ContractID: contract.ID}

	switch {
	case contract.IsExpandable():
		generated, err := s.recurrenceSvc.GenerateFutureAccounts(ctx, contract.ID)
		if err != nil {
			return nil, err
		}
		result.Generated = generated
	case contract.Status == agencydomain.ContractStatusCancelled:
		cancelled, err := s.recurrenceSvc.CancelFutureAccounts(ctx, contract.ID)
		if err != nil {
			return nil, err
		}
		result.Cancelled = cancelled
	}
	return result, nil
}
