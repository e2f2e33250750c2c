package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	agencydomain "github.com/smallbiznis/obligo/internal/agency/domain"
	auditdomain "github.com/smallbiznis/obligo/internal/audit/domain"
	"github.com/smallbiznis/obligo/internal/clock"
	"github.com/smallbiznis/obligo/internal/commission/domain"
	"github.com/smallbiznis/obligo/internal/config"
	obligationdomain "github.com/smallbiznis/obligo/internal/obligation/domain"
	obsmetrics "github.com/smallbiznis/obligo/internal/observability/metrics"
	"github.com/smallbiznis/obligo/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	Engine         *config.EngineConfigHolder
	Repo           domain.Repository
	AgencyRepo     agencydomain.Repository
	ObligationRepo obligationdomain.Repository
	Locker         *ratelimit.Locker   `optional:"true"`
	AuditSvc       auditdomain.Service `optional:"true"`
	ObsMetrics     *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	clock          clock.Clock
	engine         *config.EngineConfigHolder
	repo           domain.Repository
	agencyRepo     agencydomain.Repository
	obligationRepo obligationdomain.Repository
	locker         *ratelimit.Locker
	auditSvc       auditdomain.Service
	obsMetrics     *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("commission.service"),
		genID:          p.GenID,
		clock:          p.Clock,
		engine:         p.Engine,
		repo:           p.Repo,
		agencyRepo:     p.AgencyRepo,
		obligationRepo: p.ObligationRepo,
		locker:         p.Locker,
		auditSvc:       p.AuditSvc,
		obsMetrics:     p.ObsMetrics,
	}
}

func (s *Service) CreateCommission(ctx context.Context, req domain.CreateCommissionRequest) (*domain.CreateCommissionResult, error) {
	if req.SellerID == 0 {
		return nil, domain.ErrSellerRequired
	}
	if !req.OriginValue.IsPositive() {
		return nil, domain.ErrInvalidOriginValue
	}
	if err := req.Origin.Validate(); err != nil {
		return nil, err
	}

	originKey := req.Origin.Key()
	log := s.log.With(zap.String("origin_key", originKey))

	existing, err := s.repo.FindByOriginKey(ctx, s.db, originKey)
	if err == nil {
		return &domain.CreateCommissionResult{Commission: existing}, nil
	}
	if !errors.Is(err, domain.ErrCommissionNotFound) {
		return nil, err
	}

	cfg := s.engine.Get()
	if cfg.SystemOwnerID <= 0 {
		return nil, obligationdomain.ErrOwnerNotConfigured
	}

	release, err := s.locker.LockOrigin(ctx, originKey, cfg.Commission.LockTTL)
	if errors.Is(err, ratelimit.ErrLockHeld) {
		return nil, domain.ErrLockNotAcquired
	}
	if err != nil {
		return nil, err
	}
	defer release()

	seller, err := s.agencyRepo.FindSeller(ctx, s.db, req.SellerID)
	if err != nil {
		return nil, err
	}

	percentage := decimal.NewFromFloat(cfg.Commission.DefaultRate)
	if seller.CommissionPercentage.Valid {
		percentage = seller.CommissionPercentage.Decimal
	}
	base := req.OriginValue.Round(2)
	amount := domain.ComputeAmount(base, percentage)
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidCommissionAmount
	}

	category, err := s.ensureCategory(ctx, s.db, cfg.Commission)
	if err != nil {
		return nil, err
	}

	monthRef := s.monthRef(req)
	now := s.clock.Now()

	var result domain.CreateCommissionResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		commission := &domain.Commission{
			ID:         s.genID.Generate(),
			SellerID:   seller.ID,
			OriginType: req.Origin.Type,
			MonthRef:   obligationdomain.MonthKey(monthRef),
			OriginKey:  originKey,
			Percentage: percentage.Round(2),
			BaseAmount: base,
			Amount:     amount,
			Status:     domain.StatusPending,
			Note:       strings.TrimSpace(req.Note),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		switch req.Origin.Type {
		case domain.OriginSale:
			saleID := req.Origin.SaleID
			commission.SaleID = &saleID
		case domain.OriginContract:
			contractID := req.Origin.ContractID
			commission.ContractID = &contractID
		}

		inserted, err := s.repo.InsertIfAbsent(ctx, tx, commission)
		if err != nil {
			return err
		}
		if !inserted {
			winner, err := s.repo.FindByOriginKey(ctx, tx, originKey)
			if err != nil {
				return err
			}
			result.Commission = winner
			return nil
		}

		payable, err := s.insertPayable(ctx, tx, commission, category.ID, seller.Name, req.ClientName, monthRef, snowflake.ID(cfg.SystemOwnerID))
		if err != nil {
			return err
		}

		result.Commission = commission
		result.Payable = payable
		result.Created = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Created {
		s.obsMetrics.RecordCommissionCreated(ctx, string(req.Origin.Type))
		s.obsMetrics.RecordObligationsCreated(ctx, string(obligationdomain.OriginCommission), 1)
		log.Info("commission created",
			zap.String("commission_id", result.Commission.ID.String()),
			zap.String("seller_id", seller.ID.String()),
			zap.String("amount", result.Commission.Amount.StringFixed(2)),
		)
	}
	return &result, nil
}

func (s *Service) insertPayable(
	ctx context.Context,
	tx *gorm.DB,
	commission *domain.Commission,
	categoryID snowflake.ID,
	sellerName string,
	clientName string,
	monthRef time.Time,
	ownerID snowflake.ID,
) (*obligationdomain.Obligation, error) {
	now := s.clock.Now()
	payable := &obligationdomain.Obligation{
		ID:          s.genID.Generate(),
		Direction:   obligationdomain.DirectionPayable,
		Amount:      commission.Amount,
		DueDate:     PayableDueDate(monthRef),
		Status:      obligationdomain.StatusPending,
		Description: payableDescription(sellerName, clientName, monthRef),
		CategoryID:  &categoryID,
		OwnerID:     ownerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	payable.SetOrigin(obligationdomain.CommissionOrigin(commission.ID))

	inserted, err := s.obligationRepo.InsertIfAbsent(ctx, tx, payable)
	if err != nil {
		return nil, err
	}
	if !inserted {
		payable, err = s.obligationRepo.FindByOrigin(ctx, tx, obligationdomain.CommissionOrigin(commission.ID))
		if err != nil {
			return nil, err
		}
	}
	if err := s.repo.LinkObligation(ctx, tx, commission.ID, payable.ID); err != nil {
		return nil, err
	}
	payableID := payable.ID
	commission.ObligationID = &payableID
	return payable, nil
}

func (s *Service) DeleteCommission(ctx context.Context, id snowflake.ID) error {
	if id == 0 {
		return domain.ErrInvalidID
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		commission, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if commission.Status == domain.StatusPaid {
			return domain.ErrCommissionSettled
		}

		payable, err := s.linkedPayable(ctx, tx, commission)
		if err != nil {
			return err
		}
		if payable != nil {
			if payable.Status == obligationdomain.StatusConfirmed {
				return domain.ErrCommissionSettled
			}
			if _, err := s.obligationRepo.Delete(ctx, tx, payable.ID); err != nil {
				return err
			}
		}
		if _, err := s.repo.Delete(ctx, tx, commission.ID); err != nil {
			return err
		}

		if s.auditSvc != nil {
			targetID := commission.ID.String()
			metadata := map[string]any{
				"origin_key": commission.OriginKey,
				"amount":     commission.Amount.StringFixed(2),
			}
			if payable != nil {
				metadata["obligation_id"] = payable.ID.String()
			}
			if err := s.auditSvc.Record(ctx, tx, auditdomain.Entry{
				Action:     auditdomain.ActionCommissionDeleted,
				TargetType: auditdomain.TargetCommission,
				TargetID:   targetID,
				Metadata:   metadata,
			}); err != nil {
				s.log.Warn("failed to write commission audit log", zap.Error(err))
			}
		}
		return nil
	})
}

func (s *Service) GetCommission(ctx context.Context, id snowflake.ID) (*domain.Commission, error) {
	if id == 0 {
		return nil, domain.ErrInvalidID
	}
	return s.repo.FindByID(ctx, s.db, id)
}

func (s *Service) EnsurePayable(ctx context.Context, db *gorm.DB, id snowflake.ID) (*obligationdomain.Obligation, bool, error) {
	if id == 0 {
		return nil, false, domain.ErrInvalidID
	}
	if db == nil {
		db = s.db
	}

	commission, err := s.repo.FindByID(ctx, db, id)
	if err != nil {
		return nil, false, err
	}
	existing, err := s.linkedPayable(ctx, db, commission)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		if commission.ObligationID == nil || *commission.ObligationID != existing.ID {
			if err := s.repo.LinkObligation(ctx, db, commission.ID, existing.ID); err != nil {
				return nil, false, err
			}
		}
		return existing, false, nil
	}

	cfg := s.engine.Get()
	if cfg.SystemOwnerID <= 0 {
		return nil, false, obligationdomain.ErrOwnerNotConfigured
	}
	seller, err := s.agencyRepo.FindSeller(ctx, db, commission.SellerID)
	if err != nil {
		return nil, false, err
	}
	category, err := s.ensureCategory(ctx, db, cfg.Commission)
	if err != nil {
		return nil, false, err
	}
	monthRef, err := obligationdomain.ParseMonthKey(commission.MonthRef)
	if err != nil {
		return nil, false, err
	}

	payable, err := s.insertPayable(ctx, db, commission, category.ID, seller.Name, s.clientName(ctx, db, commission), monthRef, snowflake.ID(cfg.SystemOwnerID))
	if err != nil {
		return nil, false, err
	}
	s.obsMetrics.RecordObligationsCreated(ctx, string(obligationdomain.OriginCommission), 1)
	return payable, true, nil
}

// linkedPayable finds the payable through obligation_id and falls back to
// the structured origin. A missing payable is not an error.
func (s *Service) linkedPayable(ctx context.Context, db *gorm.DB, commission *domain.Commission) (*obligationdomain.Obligation, error) {
	if commission.ObligationID != nil {
		payable, err := s.obligationRepo.FindByID(ctx, db, *commission.ObligationID)
		if err == nil {
			return payable, nil
		}
		if !errors.Is(err, obligationdomain.ErrObligationNotFound) {
			return nil, err
		}
	}
	payable, err := s.obligationRepo.FindByOrigin(ctx, db, obligationdomain.CommissionOrigin(commission.ID))
	if errors.Is(err, obligationdomain.ErrObligationNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return payable, nil
}

func (s *Service) clientName(ctx context.Context, db *gorm.DB, commission *domain.Commission) string {
	var clientID snowflake.ID
	switch {
	case commission.SaleID != nil:
		sale, err := s.agencyRepo.FindSale(ctx, db, *commission.SaleID)
		if err != nil {
			return ""
		}
		clientID = sale.ClientID
	case commission.ContractID != nil:
		contract, err := s.agencyRepo.FindContract(ctx, db, *commission.ContractID)
		if err != nil {
			return ""
		}
		clientID = contract.ClientID
	default:
		return ""
	}
	client, err := s.agencyRepo.FindClient(ctx, db, clientID)
	if err != nil {
		return ""
	}
	return client.Name
}

// ensureCategory finds the commission expense category by slug, creating it
// when absent. Concurrent creators converge on the same row.
func (s *Service) ensureCategory(ctx context.Context, db *gorm.DB, cfg config.CommissionConfig) (*agencydomain.Category, error) {
	name := strings.TrimSpace(cfg.CategoryName)
	categorySlug := slug.Make(name)

	category, err := s.agencyRepo.FindCategoryBySlug(ctx, db, categorySlug, agencydomain.CategoryKindExpense)
	if err == nil {
		return category, nil
	}
	if !errors.Is(err, agencydomain.ErrCategoryNotFound) {
		return nil, err
	}

	category = &agencydomain.Category{
		ID:        s.genID.Generate(),
		Name:      name,
		Slug:      categorySlug,
		Kind:      agencydomain.CategoryKindExpense,
		Color:     cfg.CategoryColor,
		CreatedAt: s.clock.Now(),
	}
	inserted, err := s.agencyRepo.InsertCategoryIfAbsent(ctx, db, category)
	if err != nil {
		return nil, err
	}
	if inserted {
		s.log.Info("commission category created", zap.String("slug", categorySlug))
		return category, nil
	}
	return s.agencyRepo.FindCategoryBySlug(ctx, db, categorySlug, agencydomain.CategoryKindExpense)
}

func (s *Service) monthRef(req domain.CreateCommissionRequest) time.Time {
	if !req.MonthRef.IsZero() {
		return obligationdomain.MonthStart(req.MonthRef)
	}
	if req.Origin.Type == domain.OriginContract {
		return obligationdomain.MonthStart(req.Origin.Month)
	}
	return obligationdomain.MonthStart(s.clock.Now())
}

// PayableDueDate is the last day of the month following monthRef.
func PayableDueDate(monthRef time.Time) time.Time {
	return obligationdomain.EndOfMonth(obligationdomain.MonthStart(monthRef).AddDate(0, 1, 0))
}

func payableDescription(sellerName, clientName string, monthRef time.Time) string {
	sellerName = strings.TrimSpace(sellerName)
	clientName = strings.TrimSpace(clientName)
	if clientName == "" {
		return fmt.Sprintf("Comissão %s - %02d/%d", sellerName, int(monthRef.Month()), monthRef.Year())
	}
	return fmt.Sprintf("Comissão %s - %s - %02d/%d", sellerName, clientName, int(monthRef.Month()), monthRef.Year())
}
