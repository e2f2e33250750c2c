package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	auditdomain "github.com/smallbiznis/obligo/internal/audit/domain"
	obligationdomain "github.com/smallbiznis/obligo/internal/obligation/domain"
	obscontext "github.com/smallbiznis/obligo/internal/observability/context"
	"github.com/smallbiznis/obligo/internal/observability/logger"
	"github.com/smallbiznis/obligo/internal/observability/tracing"
	"github.com/smallbiznis/obligo/internal/reconcile/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (s *Service) SweepOrphans(ctx context.Context, req domain.SweepRequest) (result *domain.SweepResult, err error) {
	runID := obscontext.RunIDFromContext(ctx)
	if runID == "" {
		runID = ulid.Make().String()
		ctx = obscontext.WithRunID(ctx, runID)
	}
	ctx, end := tracing.StartSpan(ctx, "reconcile.sweep_orphans", attribute.Bool("dry_run", req.DryRun))
	defer func() { end(err) }()

	log := logger.WithContext(ctx, s.log)
	result = &domain.SweepResult{RunID: runID, DryRun: req.DryRun, Details: []domain.OrphanDetail{}}
	limit := s.batchSize()

	var afterID snowflake.ID
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch, err := s.obligationRepo.ListPending(ctx, s.db, afterID, limit)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		afterID = batch[len(batch)-1].ID
		result.Scanned += len(batch)

		idx, err := s.loadIndex(ctx, s.db, batch)
		if err != nil {
			return nil, err
		}

		for _, o := range batch {
			class, orphan := idx.classify(o)
			if !orphan {
				continue
			}
			detail := domain.OrphanDetail{
				ObligationID: o.ID,
				Class:        class,
				Origin:       o.Origin().String(),
				Description:  o.Description,
			}
			if !req.DryRun {
				deleted, err := s.deleteOrphan(ctx, o, class)
				if err != nil {
					if ctx.Err() != nil {
						return nil, ctx.Err()
					}
					log.Warn("orphan delete failed", zap.String("obligation_id", o.ID.String()), zap.Error(err))
					detail.Error = err.Error()
					result.Failed++
				}
				detail.Deleted = deleted
				if deleted {
					result.Deleted++
					s.obsMetrics.RecordOrphanDeleted(ctx, string(class))
				}
			}
			result.Details = append(result.Details, detail)
		}

		if len(batch) < limit {
			break
		}
	}

	log.Info("orphan sweep finished",
		zap.Bool("dry_run", req.DryRun),
		zap.Int("scanned", result.Scanned),
		zap.Int("orphans", len(result.Details)),
		zap.Int("deleted", result.Deleted),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

func (s *Service) deleteOrphan(ctx context.Context, o *obligationdomain.Obligation, class domain.OrphanClass) (bool, error) {
	var deleted bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.obligationRepo.Delete(ctx, tx, o.ID)
		if err != nil {
			return err
		}
		deleted = ok
		if !ok || s.auditSvc == nil {
			return nil
		}
		if err := s.auditSvc.Record(ctx, tx, auditdomain.ObligationEntry(auditdomain.ActionOrphanDeleted, o.ID, map[string]any{
			"class":       string(class),
			"origin":      o.Origin().String(),
			"amount":      o.Amount.StringFixed(2),
			"description": o.Description,
		})); err != nil {
			s.log.Warn("failed to write orphan audit log", zap.Error(err))
		}
		return nil
	})
	return deleted, err
}
