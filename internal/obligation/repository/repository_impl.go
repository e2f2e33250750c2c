package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/obligo/internal/obligation/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, obligation *domain.Obligation) (bool, error) {
	if obligation == nil {
		return false, nil
	}
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "origin_type"},
				{Name: "origin_id"},
				{Name: "period_key"},
			},
			DoNothing: true,
		}).
		Create(obligation)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Obligation, error) {
	var obligation domain.Obligation
	err := db.WithContext(ctx).Where("id = ?", id).Take(&obligation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrObligationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &obligation, nil
}

func (r *repo) FindByOrigin(ctx context.Context, db *gorm.DB, origin domain.Origin) (*domain.Obligation, error) {
	if origin.Type == domain.OriginNone {
		return nil, domain.ErrObligationNotFound
	}
	var obligation domain.Obligation
	err := db.WithContext(ctx).
		Where("origin_type = ? AND origin_id = ? AND period_key = ?", origin.Type, origin.ID, origin.PeriodKey).
		Take(&obligation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrObligationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &obligation, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Obligation, error) {
	var obligations []*domain.Obligation
	stmt := db.WithContext(ctx).Model(&domain.Obligation{})
	if filter.Direction != "" {
		stmt = stmt.Where("direction = ?", filter.Direction)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.OriginType != "" {
		stmt = stmt.Where("origin_type = ?", filter.OriginType)
	}
	if filter.OriginID != nil {
		stmt = stmt.Where("origin_id = ?", *filter.OriginID)
	}
	if filter.AfterID != 0 {
		stmt = stmt.Where("id > ?", filter.AfterID)
	}
	stmt = stmt.Order("id asc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}
	if err := stmt.Find(&obligations).Error; err != nil {
		return nil, err
	}
	return obligations, nil
}

func (r *repo) ListByOrigin(ctx context.Context, db *gorm.DB, originType domain.OriginType, originID snowflake.ID, statuses ...domain.Status) ([]*domain.Obligation, error) {
	var obligations []*domain.Obligation
	stmt := db.WithContext(ctx).
		Where("origin_type = ? AND origin_id = ?", originType, originID)
	if len(statuses) > 0 {
		stmt = stmt.Where("status IN ?", statuses)
	}
	if err := stmt.Order("period_key asc, id asc").Find(&obligations).Error; err != nil {
		return nil, err
	}
	return obligations, nil
}

func (r *repo) ListByOriginIDs(ctx context.Context, db *gorm.DB, originType domain.OriginType, originIDs []snowflake.ID) ([]*domain.Obligation, error) {
	if len(originIDs) == 0 {
		return nil, nil
	}
	var obligations []*domain.Obligation
	err := db.WithContext(ctx).
		Where("origin_type = ? AND origin_id IN ?", originType, originIDs).
		Order("id asc").
		Find(&obligations).Error
	if err != nil {
		return nil, err
	}
	return obligations, nil
}

func (r *repo) ListTemplates(ctx context.Context, db *gorm.DB) ([]*domain.Obligation, error) {
	var templates []*domain.Obligation
	err := db.WithContext(ctx).
		Where("is_recurring = ?", true).
		Where("frequency IN ?", []domain.Frequency{
			domain.FrequencyMonthly,
			domain.FrequencyQuarterly,
			domain.FrequencySemiannual,
			domain.FrequencyAnnual,
		}).
		Where("status <> ?", domain.StatusCancelled).
		Order("id asc").
		Find(&templates).Error
	if err != nil {
		return nil, err
	}
	return templates, nil
}

func (r *repo) ListPending(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]*domain.Obligation, error) {
	var obligations []*domain.Obligation
	stmt := db.WithContext(ctx).
		Where("status = ?", domain.StatusPending).
		Where("id > ?", afterID).
		Order("id asc")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Find(&obligations).Error; err != nil {
		return nil, err
	}
	return obligations, nil
}

func (r *repo) LatestPeriodKey(ctx context.Context, db *gorm.DB, originType domain.OriginType, originID snowflake.ID) (string, error) {
	var key string
	err := db.WithContext(ctx).
		Model(&domain.Obligation{}).
		Where("origin_type = ? AND origin_id = ?", originType, originID).
		Select("COALESCE(MAX(period_key), '')").
		Scan(&key).Error
	if err != nil {
		return "", err
	}
	return key, nil
}

func (r *repo) CancelPendingByOrigin(ctx context.Context, db *gorm.DB, originType domain.OriginType, originIDs []snowflake.ID, at time.Time) (int64, error) {
	if len(originIDs) == 0 {
		return 0, nil
	}
	result := db.WithContext(ctx).
		Model(&domain.Obligation{}).
		Where("origin_type = ? AND origin_id IN ? AND status = ?", originType, originIDs, domain.StatusPending).
		Updates(map[string]any{
			"status":       domain.StatusCancelled,
			"cancelled_at": at,
			"updated_at":   at,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from domain.Status, to domain.Status, at time.Time) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": at,
	}
	switch to {
	case domain.StatusConfirmed:
		updates["confirmed_at"] = at
	case domain.StatusCancelled:
		updates["cancelled_at"] = at
	}
	result := db.WithContext(ctx).
		Model(&domain.Obligation{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) UpdateSchedule(ctx context.Context, db *gorm.DB, id snowflake.ID, dueDate time.Time, amount decimal.Decimal, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Obligation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"due_date":   dueDate,
			"amount":     amount,
			"updated_at": at,
		}).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	result := db.WithContext(ctx).
		Where("id = ? AND status <> ?", id, domain.StatusConfirmed).
		Delete(&domain.Obligation{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
