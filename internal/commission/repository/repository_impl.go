package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/obligo/internal/commission/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, commission *domain.Commission) (bool, error) {
	if commission == nil {
		return false, nil
	}
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "origin_key"}},
			DoNothing: true,
		}).
		Create(commission)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Commission, error) {
	return r.findOne(ctx, db, "id = ?", id)
}

func (r *repo) FindByOriginKey(ctx context.Context, db *gorm.DB, originKey string) (*domain.Commission, error) {
	return r.findOne(ctx, db, "origin_key = ?", originKey)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Commission, error) {
	var commission domain.Commission
	err := db.WithContext(ctx).Where(query, args...).Take(&commission).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrCommissionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &commission, nil
}

func (r *repo) FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) (map[snowflake.ID]*domain.Commission, error) {
	out := make(map[snowflake.ID]*domain.Commission, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var commissions []*domain.Commission
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&commissions).Error; err != nil {
		return nil, err
	}
	for _, commission := range commissions {
		out[commission.ID] = commission
	}
	return out, nil
}

func (r *repo) ListBySaleIDs(ctx context.Context, db *gorm.DB, saleIDs []snowflake.ID) (map[snowflake.ID]*domain.Commission, error) {
	out := make(map[snowflake.ID]*domain.Commission, len(saleIDs))
	if len(saleIDs) == 0 {
		return out, nil
	}
	var commissions []*domain.Commission
	err := db.WithContext(ctx).
		Where("origin_type = ? AND sale_id IN ?", domain.OriginSale, saleIDs).
		Find(&commissions).Error
	if err != nil {
		return nil, err
	}
	for _, commission := range commissions {
		if commission.SaleID != nil {
			out[*commission.SaleID] = commission
		}
	}
	return out, nil
}

func (r *repo) ListByContract(ctx context.Context, db *gorm.DB, contractID snowflake.ID, status domain.Status) ([]*domain.Commission, error) {
	var commissions []*domain.Commission
	stmt := db.WithContext(ctx).
		Where("origin_type = ? AND contract_id = ?", domain.OriginContract, contractID)
	if status != "" {
		stmt = stmt.Where("status = ?", status)
	}
	if err := stmt.Order("month_ref asc").Find(&commissions).Error; err != nil {
		return nil, err
	}
	return commissions, nil
}

func (r *repo) ListWithoutPayable(ctx context.Context, db *gorm.DB) ([]*domain.Commission, error) {
	var commissions []*domain.Commission
	err := db.WithContext(ctx).
		Table("commissions AS c").
		Select("c.*").
		Joins("LEFT JOIN obligations o ON o.id = c.obligation_id").
		Where("c.obligation_id IS NULL OR o.id IS NULL").
		Order("c.id asc").
		Find(&commissions).Error
	if err != nil {
		return nil, err
	}
	return commissions, nil
}

func (r *repo) LinkObligation(ctx context.Context, db *gorm.DB, id snowflake.ID, obligationID snowflake.ID) error {
	return db.WithContext(ctx).
		Model(&domain.Commission{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"obligation_id": obligationID,
			"updated_at":    time.Now().UTC(),
		}).Error
}

func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error) {
	result := db.WithContext(ctx).
		Model(&domain.Commission{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(map[string]any{
			"status":     domain.StatusPaid,
			"paid_at":    at,
			"updated_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	result := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Commission{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
