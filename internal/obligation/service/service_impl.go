package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	agencydomain "github.com/smallbiznis/obligo/internal/agency/domain"
	auditdomain "github.com/smallbiznis/obligo/internal/audit/domain"
	"github.com/smallbiznis/obligo/internal/clock"
	commissiondomain "github.com/smallbiznis/obligo/internal/commission/domain"
	"github.com/smallbiznis/obligo/internal/config"
	"github.com/smallbiznis/obligo/internal/obligation/domain"
	obsmetrics "github.com/smallbiznis/obligo/internal/observability/metrics"
	"github.com/smallbiznis/obligo/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Engine     *config.EngineConfigHolder
	Repo           domain.Repository
	CommissionRepo commissiondomain.Repository
	AuditSvc       auditdomain.Service `optional:"true"`
	ObsMetrics     *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	engine     *config.EngineConfigHolder
	repo           domain.Repository
	commissionRepo commissiondomain.Repository
	auditSvc       auditdomain.Service
	obsMetrics     *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("obligation.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		engine:     p.Engine,
		repo:           p.Repo,
		commissionRepo: p.CommissionRepo,
		auditSvc:       p.AuditSvc,
		obsMetrics:     p.ObsMetrics,
	}
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Obligation, error) {
	if id == 0 {
		return nil, domain.ErrInvalidID
	}
	return s.repo.FindByID(ctx, s.db, id)
}

func (s *Service) List(ctx context.Context, req domain.ListObligationRequest) (domain.ListObligationResponse, error) {
	filter := domain.ListFilter{
		Direction:  domain.Direction(strings.TrimSpace(req.Direction)),
		Status:     domain.Status(strings.TrimSpace(req.Status)),
		OriginType: domain.OriginType(strings.TrimSpace(req.OriginType)),
		Limit:      req.Limit(),
	}
	if raw := strings.TrimSpace(req.OriginID); raw != "" {
		originID, err := snowflake.ParseString(raw)
		if err != nil || originID == 0 {
			return domain.ListObligationResponse{}, domain.ErrInvalidID
		}
		filter.OriginID = &originID
	}
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return domain.ListObligationResponse{}, domain.ErrInvalidPageToken
		}
		afterID, err := snowflake.ParseString(cursor.ID)
		if err != nil || afterID == 0 {
			return domain.ListObligationResponse{}, domain.ErrInvalidPageToken
		}
		filter.AfterID = afterID
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListObligationResponse{}, err
	}

	items, pageInfo := pagination.Page(items, filter.Limit, func(item *domain.Obligation) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: item.ID.String()})
		if err != nil {
			return ""
		}
		return token
	})

	obligations := make([]domain.Obligation, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		obligations = append(obligations, *item)
	}
	return domain.ListObligationResponse{PageInfo: pageInfo, Obligations: obligations}, nil
}

func (s *Service) Confirm(ctx context.Context, id snowflake.ID) (*domain.Obligation, error) {
	return s.transition(ctx, id, domain.StatusConfirmed, auditdomain.ActionObligationConfirmed)
}

func (s *Service) Cancel(ctx context.Context, id snowflake.ID) (*domain.Obligation, error) {
	obligation, err := s.transition(ctx, id, domain.StatusCancelled, auditdomain.ActionObligationCancelled)
	if err != nil {
		return nil, err
	}
	s.obsMetrics.RecordObligationsCancelled(ctx, string(obligation.OriginType), 1)
	return obligation, nil
}

func (s *Service) transition(ctx context.Context, id snowflake.ID, to domain.Status, action auditdomain.Action) (*domain.Obligation, error) {
	if id == 0 {
		return nil, domain.ErrInvalidID
	}

	var updated *domain.Obligation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		ok, err := s.repo.Transition(ctx, tx, id, domain.StatusPending, to, now)
		if err != nil {
			return err
		}
		current, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidTransition
		}
		updated = current

		// Paying a commission payable settles the commission.
		if to == domain.StatusConfirmed && current.OriginType == domain.OriginCommission && current.OriginID != nil {
			if _, err := s.commissionRepo.MarkPaid(ctx, tx, *current.OriginID, now); err != nil {
				return err
			}
		}

		if s.auditSvc != nil {
			if err := s.auditSvc.Record(ctx, tx, auditdomain.ObligationEntry(action, id, map[string]any{
				"origin": current.Origin().String(),
				"status": string(to),
			})); err != nil {
				s.log.Warn("failed to write obligation audit log", zap.Error(err))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) EnsureSaleReceivable(ctx context.Context, db *gorm.DB, sale *agencydomain.Sale) (*domain.Obligation, bool, error) {
	if sale == nil || sale.ID == 0 {
		return nil, false, domain.ErrInvalidID
	}
	if !sale.IsClosed() {
		return nil, false, domain.ErrSaleNotClosed
	}
	amount := sale.Value.Round(2)
	if !amount.IsPositive() {
		return nil, false, domain.ErrInvalidAmount
	}
	ownerID := s.engine.Get().SystemOwnerID
	if ownerID <= 0 {
		return nil, false, domain.ErrOwnerNotConfigured
	}
	if db == nil {
		db = s.db
	}

	origin := domain.SaleOrigin(sale.ID)
	existing, err := s.repo.FindByOrigin(ctx, db, origin)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrObligationNotFound) {
		return nil, false, err
	}

	now := s.clock.Now()
	clientID := sale.ClientID
	receivable := &domain.Obligation{
		ID:          s.genID.Generate(),
		Direction:   domain.DirectionReceivable,
		Amount:      amount,
		DueDate:     domain.DayStart(sale.ReferenceDate()),
		Status:      domain.StatusPending,
		Description: saleDescription(sale),
		ClientID:    &clientID,
		OwnerID:     snowflake.ID(ownerID),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	receivable.SetOrigin(origin)

	inserted, err := s.repo.InsertIfAbsent(ctx, db, receivable)
	if err != nil {
		return nil, false, err
	}
	if !inserted {
		winner, err := s.repo.FindByOrigin(ctx, db, origin)
		if err != nil {
			return nil, false, err
		}
		return winner, false, nil
	}

	s.obsMetrics.RecordObligationsCreated(ctx, string(domain.OriginSale), 1)
	s.log.Info("sale receivable created",
		zap.String("sale_id", sale.ID.String()),
		zap.String("obligation_id", receivable.ID.String()),
	)
	return receivable, true, nil
}

func saleDescription(sale *agencydomain.Sale) string {
	title := strings.TrimSpace(sale.Title)
	if title == "" {
		return fmt.Sprintf("Venda %s", sale.ID)
	}
	return fmt.Sprintf("Venda %s - %s", sale.ID, title)
}
