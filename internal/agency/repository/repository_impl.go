package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/obligo/internal/agency/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindContract(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Contract, error) {
	var contract domain.Contract
	if err := first(ctx, db, &contract, "id = ?", id); err != nil {
		return nil, notFound(err, domain.ErrContractNotFound)
	}
	return &contract, nil
}

func (r *repo) FindContractByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Contract, error) {
	var contract domain.Contract
	if err := first(ctx, db, &contract, "code = ?", code); err != nil {
		return nil, notFound(err, domain.ErrContractNotFound)
	}
	return &contract, nil
}

func (r *repo) FindContractsByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) (map[snowflake.ID]*domain.Contract, error) {
	out := make(map[snowflake.ID]*domain.Contract, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var contracts []*domain.Contract
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&contracts).Error; err != nil {
		return nil, err
	}
	for _, contract := range contracts {
		out[contract.ID] = contract
	}
	return out, nil
}

func (r *repo) FindContractsByCodes(ctx context.Context, db *gorm.DB, codes []string) (map[string]*domain.Contract, error) {
	out := make(map[string]*domain.Contract, len(codes))
	if len(codes) == 0 {
		return out, nil
	}
	var contracts []*domain.Contract
	if err := db.WithContext(ctx).Where("code IN ?", codes).Find(&contracts).Error; err != nil {
		return nil, err
	}
	for _, contract := range contracts {
		out[contract.Code] = contract
	}
	return out, nil
}

func (r *repo) ListExpandableContracts(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]*domain.Contract, error) {
	var contracts []*domain.Contract
	stmt := db.WithContext(ctx).
		Where("kind = ? AND status = ?", domain.ContractKindRecurring, domain.ContractStatusActive).
		Where("id > ?", afterID).
		Order("id asc")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Find(&contracts).Error; err != nil {
		return nil, err
	}
	return contracts, nil
}

func (r *repo) FindSale(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Sale, error) {
	var sale domain.Sale
	if err := first(ctx, db, &sale, "id = ?", id); err != nil {
		return nil, notFound(err, domain.ErrSaleNotFound)
	}
	return &sale, nil
}

func (r *repo) FindSalesByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) (map[snowflake.ID]*domain.Sale, error) {
	out := make(map[snowflake.ID]*domain.Sale, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var sales []*domain.Sale
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&sales).Error; err != nil {
		return nil, err
	}
	for _, sale := range sales {
		out[sale.ID] = sale
	}
	return out, nil
}

func (r *repo) ListClosedSales(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]*domain.Sale, error) {
	var sales []*domain.Sale
	stmt := db.WithContext(ctx).
		Where("status = ?", domain.SaleStatusClosed).
		Where("id > ?", afterID).
		Order("id asc")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Find(&sales).Error; err != nil {
		return nil, err
	}
	return sales, nil
}

func (r *repo) FindSeller(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Seller, error) {
	var seller domain.Seller
	if err := first(ctx, db, &seller, "id = ?", id); err != nil {
		return nil, notFound(err, domain.ErrSellerNotFound)
	}
	return &seller, nil
}

func (r *repo) FindClient(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Client, error) {
	var client domain.Client
	if err := first(ctx, db, &client, "id = ?", id); err != nil {
		return nil, notFound(err, domain.ErrClientNotFound)
	}
	return &client, nil
}

func (r *repo) FindCategoryBySlug(ctx context.Context, db *gorm.DB, slug string, kind domain.CategoryKind) (*domain.Category, error) {
	var category domain.Category
	if err := first(ctx, db, &category, "slug = ? AND kind = ?", slug, kind); err != nil {
		return nil, notFound(err, domain.ErrCategoryNotFound)
	}
	return &category, nil
}

func (r *repo) InsertCategoryIfAbsent(ctx context.Context, db *gorm.DB, category *domain.Category) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "slug"}, {Name: "kind"}},
			DoNothing: true,
		}).
		Create(category)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func first(ctx context.Context, db *gorm.DB, dest any, query string, args ...any) error {
	return db.WithContext(ctx).Where(query, args...).Limit(1).Take(dest).Error
}

func notFound(err error, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}
