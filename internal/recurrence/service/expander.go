package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	agencydomain "github.com/smallbiznis/obligo/internal/agency/domain"
	auditdomain "github.com/smallbiznis/obligo/internal/audit/domain"
	commissiondomain "github.com/smallbiznis/obligo/internal/commission/domain"
	obligationdomain "github.com/smallbiznis/obligo/internal/obligation/domain"
	"github.com/smallbiznis/obligo/internal/observability/logger"
	"github.com/smallbiznis/obligo/internal/observability/tracing"
	"github.com/smallbiznis/obligo/internal/recurrence/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (s *Service) GenerateFutureAccounts(ctx context.Context, contractID snowflake.ID) (result *domain.GenerateResult, err error) {
	if contractID == 0 {
		return nil, domain.ErrInvalidContractID
	}
	ctx, end := tracing.StartSpan(ctx, "recurrence.generate_future_accounts",
		attribute.String("origin_type", string(obligationdomain.OriginContract)),
	)
	defer func() { end(err) }()

	contract, err := s.agencyRepo.FindContract(ctx, s.db, contractID)
	if err != nil {
		return nil, err
	}

	result = &domain.GenerateResult{ContractID: contract.ID}
	if !contract.IsExpandable() {
		return result, nil
	}

	cfg := s.engine.Get()
	if cfg.SystemOwnerID <= 0 {
		return nil, obligationdomain.ErrOwnerNotConfigured
	}

	clientName := ""
	if client, err := s.agencyRepo.FindClient(ctx, s.db, contract.ClientID); err == nil {
		clientName = client.Name
	} else if !errors.Is(err, agencydomain.ErrClientNotFound) {
		return nil, err
	}

	log := logger.WithContext(ctx, s.log).With(zap.String("contract_id", contract.ID.String()))
	months := contractMonths(*contract, s.clock.Now(), cfg.Recurrence.HorizonMonths)
	amount := contract.Value.Round(2)
	clientID := contract.ClientID

	for _, month := range months {
		now := s.clock.Now()
		receivable := &obligationdomain.Obligation{
			ID:          s.genID.Generate(),
			Direction:   obligationdomain.DirectionReceivable,
			Amount:      amount,
			DueDate:     obligationdomain.DateOnDay(month, contract.BillingDay),
			Status:      obligationdomain.StatusPending,
			Description: obligationdomain.ContractReceivableDescription(contract.Code, clientName, month),
			ClientID:    &clientID,
			OwnerID:     snowflake.ID(cfg.SystemOwnerID),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		receivable.SetOrigin(obligationdomain.ContractPeriodOrigin(contract.ID, month))

		inserted, err := s.obligationRepo.InsertIfAbsent(ctx, s.db, receivable)
		if err != nil {
			return nil, err
		}
		if inserted {
			result.Obligations = append(result.Obligations, receivable)
		} else {
			result.Skipped++
		}

		commission, err := s.commissionSvc.CreateCommission(ctx, commissiondomain.CreateCommissionRequest{
			Origin:      commissiondomain.ContractOrigin(contract.ID, month),
			SellerID:    sellerID(contract.SellerID),
			OriginValue: contract.Value,
			MonthRef:    month,
			ClientName:  clientName,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("contract commission failed",
				zap.String("period", obligationdomain.MonthKey(month)),
				zap.Error(err),
			)
			result.Failures = append(result.Failures, domain.Failure{
				Key:    obligationdomain.MonthKey(month),
				Reason: err.Error(),
			})
			continue
		}
		if commission.Created {
			result.CommissionsCreated++
		}
	}

	s.obsMetrics.RecordObligationsCreated(ctx, string(obligationdomain.OriginContract), len(result.Obligations))
	log.Info("future accounts generated",
		zap.Int("created", len(result.Obligations)),
		zap.Int("skipped", result.Skipped),
		zap.Int("commissions_created", result.CommissionsCreated),
		zap.Int("failures", len(result.Failures)),
	)
	return result, nil
}

func (s *Service) CancelFutureAccounts(ctx context.Context, contractID snowflake.ID) (result *domain.CancelResult, err error) {
	if contractID == 0 {
		return nil, domain.ErrInvalidContractID
	}
	ctx, end := tracing.StartSpan(ctx, "recurrence.cancel_future_accounts",
		attribute.String("origin_type", string(obligationdomain.OriginContract)),
	)
	defer func() { end(err) }()

	contract, err := s.agencyRepo.FindContract(ctx, s.db, contractID)
	if err != nil {
		return nil, err
	}

	result = &domain.CancelResult{ContractID: contract.ID}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()

		pending, err := s.obligationRepo.ListByOrigin(ctx, tx, obligationdomain.OriginContract, contract.ID, obligationdomain.StatusPending)
		if err != nil {
			return err
		}
		periods := make(map[string]struct{}, len(pending))
		for _, receivable := range pending {
			periods[receivable.PeriodKey] = struct{}{}
		}

		cancelled, err := s.obligationRepo.CancelPendingByOrigin(ctx, tx, obligationdomain.OriginContract, []snowflake.ID{contract.ID}, now)
		if err != nil {
			return err
		}
		result.Cancelled = cancelled

		commissions, err := s.commissionRepo.ListByContract(ctx, tx, contract.ID, commissiondomain.StatusPending)
		if err != nil {
			return err
		}
		// Commission payables follow their month's receivable; a collected
		// month keeps its commission.
		ids := make([]snowflake.ID, 0, len(commissions))
		for _, commission := range commissions {
			if _, ok := periods[commission.MonthRef]; ok {
				ids = append(ids, commission.ID)
			}
		}
		payables, err := s.obligationRepo.CancelPendingByOrigin(ctx, tx, obligationdomain.OriginCommission, ids, now)
		if err != nil {
			return err
		}
		result.CommissionPayablesCancelled = payables

		if s.auditSvc != nil && cancelled+payables > 0 {
			if err := s.auditSvc.Record(ctx, tx, auditdomain.Entry{
				Action:     auditdomain.ActionFutureAccountsCancelled,
				TargetType: auditdomain.TargetContract,
				TargetID:   contract.ID.String(),
				Metadata: map[string]any{
					"cancelled":                     cancelled,
					"commission_payables_cancelled": payables,
				},
			}); err != nil {
				s.log.Warn("failed to write cancel audit log", zap.Error(err))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.obsMetrics.RecordObligationsCancelled(ctx, string(obligationdomain.OriginContract), result.Cancelled)
	s.obsMetrics.RecordObligationsCancelled(ctx, string(obligationdomain.OriginCommission), result.CommissionPayablesCancelled)
	logger.WithContext(ctx, s.log).Info("future accounts cancelled",
		zap.String("contract_id", contract.ID.String()),
		zap.Int64("cancelled", result.Cancelled),
		zap.Int64("commission_payables_cancelled", result.CommissionPayablesCancelled),
	)
	return result, nil
}

// contractMonths lists the first day of every month the contract should be
// billed for, starting at the later of now and the contract start. Without
// an end date the window spans horizon months.
func contractMonths(contract agencydomain.Contract, now time.Time, horizon int) []time.Time {
	first := obligationdomain.MonthStart(now)
	if start := obligationdomain.MonthStart(contract.StartDate); start.After(first) {
		first = start
	}

	var last time.Time
	if contract.EndDate != nil && !contract.EndDate.IsZero() {
		last = obligationdomain.MonthStart(*contract.EndDate)
	} else {
		if horizon <= 0 {
			return nil
		}
		last = first.AddDate(0, horizon-1, 0)
	}

	var months []time.Time
	for month := first; !month.After(last); month = month.AddDate(0, 1, 0) {
		months = append(months, month)
	}
	return months
}

func sellerID(id *snowflake.ID) snowflake.ID {
	if id == nil {
		return 0
	}
	return *id
}
