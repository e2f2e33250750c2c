package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/obligo/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.AuditLog, error) {
	var logs []*domain.AuditLog
	err := db.WithContext(ctx).
		Model(&domain.AuditLog{}).
		Scopes(
			equals("action", filter.Action),
			equals("target_type", filter.TargetType),
			equals("target_id", filter.TargetID),
			equals("actor_type", filter.ActorType),
			createdWithin(filter),
			page(filter),
		).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

func equals(column, value string) func(*gorm.DB) *gorm.DB {
	value = strings.TrimSpace(value)
	return func(db *gorm.DB) *gorm.DB {
		if value == "" {
			return db
		}
		return db.Where(column+" = ?", value)
	}
}

func createdWithin(filter domain.ListFilter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if filter.StartAt != nil {
			db = db.Where("created_at >= ?", filter.StartAt.UTC())
		}
		if filter.EndAt != nil {
			db = db.Where("created_at <= ?", filter.EndAt.UTC())
		}
		return db
	}
}

// page orders newest first and fetches one extra row so the caller can
// tell whether another page exists.
func page(filter domain.ListFilter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if filter.AfterID != 0 {
			db = db.Where("id < ?", filter.AfterID)
		}
		db = db.Order("id desc")
		if filter.Limit > 0 {
			db = db.Limit(filter.Limit + 1)
		}
		return db
	}
}
