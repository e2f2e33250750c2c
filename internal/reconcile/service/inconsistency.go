package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	agencydomain "github.com/smallbiznis/obligo/internal/agency/domain"
	auditdomain "github.com/smallbiznis/obligo/internal/audit/domain"
	commissiondomain "github.com/smallbiznis/obligo/internal/commission/domain"
	obligationdomain "github.com/smallbiznis/obligo/internal/obligation/domain"
	"github.com/smallbiznis/obligo/internal/observability/logger"
	"github.com/smallbiznis/obligo/internal/observability/tracing"
	"github.com/smallbiznis/obligo/internal/reconcile/domain"
	"go.uber.org/zap"
)

func (s *Service) DetectInconsistencies(ctx context.Context) (issues []domain.Issue, err error) {
	ctx, end := tracing.StartSpan(ctx, "reconcile.detect_inconsistencies")
	defer func() { end(err) }()

	issues = []domain.Issue{}
	limit := s.batchSize()

	var afterID snowflake.ID
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sales, err := s.agencyRepo.ListClosedSales(ctx, s.db, afterID, limit)
		if err != nil {
			return nil, err
		}
		if len(sales) == 0 {
			break
		}
		afterID = sales[len(sales)-1].ID

		batch, err := s.detectSaleIssues(ctx, sales)
		if err != nil {
			return nil, err
		}
		issues = append(issues, batch...)

		if len(sales) < limit {
			break
		}
	}

	unlinked, err := s.commissionRepo.ListWithoutPayable(ctx, s.db)
	if err != nil {
		return nil, err
	}
	for _, commission := range unlinked {
		issues = append(issues, domain.Issue{
			Kind:       domain.IssueCommissionMissingPayable,
			TargetType: "commission",
			TargetID:   commission.ID,
			Detail:     commission.OriginKey,
		})
	}

	logger.WithContext(ctx, s.log).Info("inconsistencies detected", zap.Int("issues", len(issues)))
	return issues, nil
}

func (s *Service) detectSaleIssues(ctx context.Context, sales []*agencydomain.Sale) ([]domain.Issue, error) {
	ids := make([]snowflake.ID, 0, len(sales))
	for _, sale := range sales {
		ids = append(ids, sale.ID)
	}

	receivables, err := s.obligationRepo.ListByOriginIDs(ctx, s.db, obligationdomain.OriginSale, ids)
	if err != nil {
		return nil, err
	}
	bySale := make(map[snowflake.ID]*obligationdomain.Obligation, len(receivables))
	for _, receivable := range receivables {
		if receivable.OriginID != nil {
			bySale[*receivable.OriginID] = receivable
		}
	}
	commissions, err := s.commissionRepo.ListBySaleIDs(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}

	var issues []domain.Issue
	for _, sale := range sales {
		receivable, ok := bySale[sale.ID]
		switch {
		case !ok:
			issues = append(issues, domain.Issue{
				Kind:       domain.IssueMissingSaleReceivable,
				TargetType: "sale",
				TargetID:   sale.ID,
			})
		case receivable.IsPending():
			obligationID := receivable.ID
			expectedDue := obligationdomain.DayStart(sale.ReferenceDate())
			if !obligationdomain.DayStart(receivable.DueDate).Equal(expectedDue) {
				issues = append(issues, domain.Issue{
					Kind:         domain.IssueSaleReceivableDateMismatch,
					TargetType:   "sale",
					TargetID:     sale.ID,
					ObligationID: &obligationID,
					Detail: fmt.Sprintf("due %s, expected %s",
						obligationdomain.DayKey(receivable.DueDate), obligationdomain.DayKey(expectedDue)),
				})
			}
			if expected := sale.Value.Round(2); !receivable.Amount.Equal(expected) {
				issues = append(issues, domain.Issue{
					Kind:         domain.IssueSaleReceivableAmountMismatch,
					TargetType:   "sale",
					TargetID:     sale.ID,
					ObligationID: &obligationID,
					Detail: fmt.Sprintf("amount %s, expected %s",
						receivable.Amount.StringFixed(2), expected.StringFixed(2)),
				})
			}
		}

		if _, ok := commissions[sale.ID]; !ok && sale.SellerID != nil {
			issues = append(issues, domain.Issue{
				Kind:       domain.IssueMissingCommission,
				TargetType: "sale",
				TargetID:   sale.ID,
			})
		}
	}
	return issues, nil
}

func (s *Service) RepairInconsistencies(ctx context.Context) (actions []domain.Action, err error) {
	issues, err := s.DetectInconsistencies(ctx)
	if err != nil {
		return nil, err
	}

	ctx, end := tracing.StartSpan(ctx, "reconcile.repair_inconsistencies")
	defer func() { end(err) }()

	log := logger.WithContext(ctx, s.log)
	actions = make([]domain.Action, 0, len(issues))
	for _, issue := range issues {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		action := domain.Action{Issue: issue, Status: domain.ActionRepaired}
		repaired, err := s.repair(ctx, issue)
		switch {
		case err != nil:
			log.Warn("repair failed",
				zap.String("kind", string(issue.Kind)),
				zap.String("target_id", issue.TargetID.String()),
				zap.Error(err),
			)
			action.Status = domain.ActionFailed
			action.Error = err.Error()
		case !repaired:
			action.Status = domain.ActionNoop
		default:
			s.auditRepair(ctx, issue)
		}
		actions = append(actions, action)
	}

	log.Info("inconsistencies repaired", zap.Int("actions", len(actions)))
	return actions, nil
}

func (s *Service) repair(ctx context.Context, issue domain.Issue) (bool, error) {
	switch issue.Kind {
	case domain.IssueMissingSaleReceivable:
		sale, err := s.agencyRepo.FindSale(ctx, s.db, issue.TargetID)
		if err != nil {
			return false, err
		}
		_, created, err := s.obligationSvc.EnsureSaleReceivable(ctx, nil, sale)
		return created, err

	case domain.IssueSaleReceivableDateMismatch, domain.IssueSaleReceivableAmountMismatch:
		if issue.ObligationID == nil {
			return false, obligationdomain.ErrInvalidID
		}
		sale, err := s.agencyRepo.FindSale(ctx, s.db, issue.TargetID)
		if err != nil {
			return false, err
		}
		receivable, err := s.obligationRepo.FindByID(ctx, s.db, *issue.ObligationID)
		if err != nil {
			return false, err
		}
		due := obligationdomain.DayStart(sale.ReferenceDate())
		amount := sale.Value.Round(2)
		if !receivable.IsPending() || (receivable.DueDate.Equal(due) && receivable.Amount.Equal(amount)) {
			return false, nil
		}
		if err := s.obligationRepo.UpdateSchedule(ctx, s.db, receivable.ID, due, amount, s.clock.Now()); err != nil {
			return false, err
		}
		return true, nil

	case domain.IssueMissingCommission:
		sale, err := s.agencyRepo.FindSale(ctx, s.db, issue.TargetID)
		if err != nil {
			return false, err
		}
		res, err := s.commissionSvc.CreateCommission(ctx, commissiondomain.NewSaleRequest(sale, s.clientName(ctx, sale.ClientID)))
		if err != nil {
			return false, err
		}
		return res.Created, nil

	case domain.IssueCommissionMissingPayable:
		_, created, err := s.commissionSvc.EnsurePayable(ctx, nil, issue.TargetID)
		return created, err
	}
	return false, nil
}

func (s *Service) auditRepair(ctx context.Context, issue domain.Issue) {
	if s.auditSvc == nil {
		return
	}
	metadata := map[string]any{"kind": string(issue.Kind)}
	if issue.ObligationID != nil {
		metadata["obligation_id"] = issue.ObligationID.String()
	}
	if err := s.auditSvc.Record(ctx, nil, auditdomain.Entry{
		Action:     auditdomain.ActionInconsistencyRepaired,
		TargetType: auditdomain.TargetType(issue.TargetType),
		TargetID:   issue.TargetID.String(),
		Metadata:   metadata,
	}); err != nil {
		s.log.Warn("failed to write repair audit log", zap.Error(err))
	}
}

func (s *Service) clientName(ctx context.Context, clientID snowflake.ID) string {
	client, err := s.agencyRepo.FindClient(ctx, s.db, clientID)
	if err != nil {
		if !errors.Is(err, agencydomain.ErrClientNotFound) {
			s.log.Warn("client lookup failed", zap.Error(err))
		}
		return ""
	}
	return client.Name
}
