package service

import (
	"context"
	"time"

	obligationdomain "github.com/smallbiznis/obligo/internal/obligation/domain"
	"github.com/smallbiznis/obligo/internal/observability/logger"
	"github.com/smallbiznis/obligo/internal/observability/tracing"
	"github.com/smallbiznis/obligo/internal/recurrence/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (s *Service) ProcessGenericRecurringTemplates(ctx context.Context) (*domain.ProcessResult, error) {
	return s.ProcessDueRecurrences(ctx, domain.ProcessRequest{})
}

func (s *Service) ProcessDueRecurrences(ctx context.Context, req domain.ProcessRequest) (result *domain.ProcessResult, err error) {
	if req.Lookahead < 0 {
		return nil, domain.ErrInvalidLookahead
	}
	lookahead := req.Lookahead
	if lookahead == 0 {
		lookahead = s.engine.Get().Recurrence.TemplateLookahead
	}
	if lookahead <= 0 {
		return nil, domain.ErrInvalidLookahead
	}

	ctx, end := tracing.StartSpan(ctx, "recurrence.process_due_recurrences",
		attribute.String("origin_type", string(obligationdomain.OriginTemplate)),
	)
	defer func() { end(err) }()

	templates, err := s.obligationRepo.ListTemplates(ctx, s.db)
	if err != nil {
		return nil, err
	}

	var limit *time.Time
	if req.TargetMonth != nil && !req.TargetMonth.IsZero() {
		monthEnd := obligationdomain.EndOfMonth(*req.TargetMonth)
		limit = &monthEnd
	}

	log := logger.WithContext(ctx, s.log)
	now := obligationdomain.DayStart(s.clock.Now())
	result = &domain.ProcessResult{Templates: make([]domain.TemplateResult, 0, len(templates))}

	for _, template := range templates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result.Scanned++

		item, err := s.processTemplate(ctx, template, now, lookahead, limit)
		if err != nil {
			log.Warn("recurring template failed",
				zap.String("template_id", template.ID.String()),
				zap.Error(err),
			)
			item = domain.TemplateResult{
				TemplateID: template.ID,
				Status:     domain.TemplateFailed,
				Error:      err.Error(),
			}
			result.Failed++
		}
		result.Created += item.Created
		result.Skipped += item.Skipped
		result.Templates = append(result.Templates, item)
	}

	s.obsMetrics.RecordObligationsCreated(ctx, string(obligationdomain.OriginTemplate), result.Created)
	log.Info("recurring templates processed",
		zap.Int("scanned", result.Scanned),
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// processTemplate extends one template by up to lookahead periods past its
// last instance. Instance dates are always derived from the template's own
// due date so a 31st anchor keeps landing on month ends.
func (s *Service) processTemplate(
	ctx context.Context,
	template *obligationdomain.Obligation,
	now time.Time,
	lookahead int,
	limit *time.Time,
) (domain.TemplateResult, error) {
	item := domain.TemplateResult{TemplateID: template.ID, Status: domain.TemplateProcessed}
	inc := template.Frequency.Months()
	anchor := obligationdomain.DayStart(template.DueDate)

	latestKey, err := s.obligationRepo.LatestPeriodKey(ctx, s.db, obligationdomain.OriginTemplate, template.ID)
	if err != nil {
		return item, err
	}
	last := anchor
	if latestKey != "" {
		parsed, err := obligationdomain.ParseDayKey(latestKey)
		if err != nil {
			return item, err
		}
		if parsed.After(last) {
			last = parsed
		}
	}
	step := periodsBetween(anchor, last, inc)

	if !last.Before(obligationdomain.AddMonthsClamped(now, lookahead*inc)) {
		item.Status = domain.TemplateCovered
		return item, nil
	}

	ceiling := obligationdomain.AddMonthsClamped(anchor, (step+lookahead)*inc)
	if template.RecurrenceEndDate != nil && !template.RecurrenceEndDate.IsZero() {
		if endDate := obligationdomain.DayStart(*template.RecurrenceEndDate); endDate.Before(ceiling) {
			ceiling = endDate
		}
	}
	if limit != nil && limit.Before(ceiling) {
		ceiling = *limit
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for k := step + 1; ; k++ {
			next := obligationdomain.AddMonthsClamped(anchor, k*inc)
			if next.After(ceiling) {
				break
			}
			inserted, err := s.obligationRepo.InsertIfAbsent(ctx, tx, s.newInstance(template, next))
			if err != nil {
				return err
			}
			if inserted {
				item.Created++
			} else {
				item.Skipped++
			}
		}
		return nil
	})
	if err != nil {
		return domain.TemplateResult{TemplateID: template.ID}, err
	}

	if item.Created == 0 && item.Skipped == 0 && template.RecurrenceEndDate != nil {
		item.Status = domain.TemplateEnded
	}
	return item, nil
}

func (s *Service) newInstance(template *obligationdomain.Obligation, due time.Time) *obligationdomain.Obligation {
	now := s.clock.Now()
	instance := &obligationdomain.Obligation{
		ID:           s.genID.Generate(),
		Direction:    template.Direction,
		Amount:       template.Amount,
		DueDate:      due,
		Status:       obligationdomain.StatusPending,
		Description:  template.Description,
		PaymentTerms: template.PaymentTerms,
		CategoryID:   template.CategoryID,
		ClientID:     template.ClientID,
		OwnerID:      template.OwnerID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	instance.SetOrigin(obligationdomain.TemplateInstanceOrigin(template.ID, due))
	return instance
}

// periodsBetween returns how many increments separate anchor from last.
func periodsBetween(anchor, last time.Time, inc int) int {
	if inc <= 0 {
		return 0
	}
	months := (last.Year()-anchor.Year())*12 + int(last.Month()) - int(anchor.Month())
	if months < 0 {
		return 0
	}
	return months / inc
}
