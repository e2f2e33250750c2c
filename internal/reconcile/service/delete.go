package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/obligo/internal/audit/domain"
	obligationdomain "github.com/smallbiznis/obligo/internal/obligation/domain"
	"github.com/smallbiznis/obligo/internal/observability/logger"
	"github.com/smallbiznis/obligo/internal/reconcile/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (s *Service) ValidateAndDelete(ctx context.Context, obligationID snowflake.ID) (*domain.DeleteResult, error) {
	if obligationID == 0 {
		return nil, domain.ErrInvalidObligationID
	}

	result := &domain.DeleteResult{ObligationID: obligationID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := s.obligationRepo.FindByID(ctx, tx, obligationID)
		if err != nil {
			return err
		}
		idx, err := s.loadIndex(ctx, tx, []*obligationdomain.Obligation{o})
		if err != nil {
			return err
		}
		if reason := idx.blockReason(o); reason != "" {
			result.Reason = reason
			return nil
		}

		deleted, err := s.obligationRepo.Delete(ctx, tx, o.ID)
		if err != nil {
			return err
		}
		if !deleted {
			result.Reason = domain.ReasonConfirmed
			return nil
		}
		result.Deleted = true

		if o.OriginType == obligationdomain.OriginCommission && o.OriginID != nil {
			if _, ok := idx.commissions[*o.OriginID]; ok {
				if _, err := s.commissionRepo.Delete(ctx, tx, *o.OriginID); err != nil {
					return err
				}
				commissionID := *o.OriginID
				result.CommissionID = &commissionID
			}
		}

		if s.auditSvc != nil {
			metadata := map[string]any{
				"origin": o.Origin().String(),
				"amount": o.Amount.StringFixed(2),
			}
			if result.CommissionID != nil {
				metadata["commission_id"] = result.CommissionID.String()
			}
			if err := s.auditSvc.Record(ctx, tx, auditdomain.ObligationEntry(auditdomain.ActionObligationDeleted, o.ID, metadata)); err != nil {
				s.log.Warn("failed to write delete audit log", zap.Error(err))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithContext(ctx, s.log).Info("obligation delete validated",
		zap.String("obligation_id", obligationID.String()),
		zap.Bool("deleted", result.Deleted),
		zap.String("reason", result.Reason),
	)
	return result, nil
}
