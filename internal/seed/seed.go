package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	agencydomain "github.com/smallbiznis/obligo/internal/agency/domain"
	obligationdomain "github.com/smallbiznis/obligo/internal/obligation/domain"
	"gorm.io/gorm"
)

const (
	demoClientName   = "Demo Client"
	demoSellerName   = "Demo Seller"
	demoContractCode = "DEMO-001"
	demoSaleTitle    = "Website redesign"
	demoTemplateDesc = "Office rent"
	demoCategoryName = "Office"
)

// Demo holds the records EnsureDemoData found or created.
type Demo struct {
	Client   agencydomain.Client
	Seller   agencydomain.Seller
	Contract agencydomain.Contract
	Sale     agencydomain.Sale
	Template obligationdomain.Obligation
}

// EnsureDemoData seeds a small agency dataset for local runs. Existing rows are reused.
func EnsureDemoData(ctx context.Context, db *gorm.DB, node *snowflake.Node, ownerID snowflake.ID, now time.Time) (*Demo, error) {
	if db == nil {
		return nil, errors.New("seed database handle is required")
	}
	if node == nil {
		return nil, errors.New("seed id generator is required")
	}
	if ownerID == 0 {
		return nil, obligationdomain.ErrOwnerNotConfigured
	}

	now = now.UTC()
	demo := &Demo{}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if demo.Client, err = ensureClientTx(ctx, tx, node, now); err != nil {
			return err
		}
		if demo.Seller, err = ensureSellerTx(ctx, tx, node, now); err != nil {
			return err
		}
		if demo.Contract, err = ensureContractTx(ctx, tx, node, demo.Client.ID, demo.Seller.ID, now); err != nil {
			return err
		}
		if demo.Sale, err = ensureSaleTx(ctx, tx, node, demo.Client.ID, demo.Seller.ID, now); err != nil {
			return err
		}
		category, err := ensureCategoryTx(ctx, tx, node, now)
		if err != nil {
			return err
		}
		demo.Template, err = ensureTemplateTx(ctx, tx, node, ownerID, category.ID, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return demo, nil
}

func ensureClientTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, now time.Time) (agencydomain.Client, error) {
	var client agencydomain.Client
	err := tx.WithContext(ctx).Where("name = ?", demoClientName).First(&client).Error
	if err == nil {
		return client, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return client, err
	}
	client = agencydomain.Client{
		ID:        node.Generate(),
		Name:      demoClientName,
		CreatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&client).Error; err != nil {
		return client, err
	}
	return client, nil
}

func ensureSellerTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, now time.Time) (agencydomain.Seller, error) {
	var seller agencydomain.Seller
	err := tx.WithContext(ctx).Where("name = ?", demoSellerName).First(&seller).Error
	if err == nil {
		return seller, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return seller, err
	}
	seller = agencydomain.Seller{
		ID:                   node.Generate(),
		Name:                 demoSellerName,
		CommissionPercentage: decimal.NewNullDecimal(decimal.NewFromInt(5)),
		CreatedAt:            now,
	}
	if err := tx.WithContext(ctx).Create(&seller).Error; err != nil {
		return seller, err
	}
	return seller, nil
}

func ensureContractTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, clientID, sellerID snowflake.ID, now time.Time) (agencydomain.Contract, error) {
	var contract agencydomain.Contract
	err := tx.WithContext(ctx).Where("code = ?", demoContractCode).First(&contract).Error
	if err == nil {
		return contract, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return contract, err
	}
	contract = agencydomain.Contract{
		ID:         node.Generate(),
		Code:       demoContractCode,
		Kind:       agencydomain.ContractKindRecurring,
		Value:      decimal.NewFromInt(1500),
		BillingDay: 10,
		Status:     agencydomain.ContractStatusActive,
		StartDate:  obligationdomain.MonthStart(now),
		SellerID:   &sellerID,
		ClientID:   clientID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := tx.WithContext(ctx).Create(&contract).Error; err != nil {
		return contract, err
	}
	return contract, nil
}

func ensureSaleTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, clientID, sellerID snowflake.ID, now time.Time) (agencydomain.Sale, error) {
	var sale agencydomain.Sale
	err := tx.WithContext(ctx).Where("title = ?", demoSaleTitle).First(&sale).Error
	if err == nil {
		return sale, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return sale, err
	}
	sale = agencydomain.Sale{
		ID:        node.Generate(),
		Title:     demoSaleTitle,
		Value:     decimal.NewFromInt(4000),
		Status:    agencydomain.SaleStatusClosed,
		SellerID:  &sellerID,
		ClientID:  clientID,
		ClosedAt:  &now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&sale).Error; err != nil {
		return sale, err
	}
	return sale, nil
}

func ensureCategoryTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, now time.Time) (agencydomain.Category, error) {
	var category agencydomain.Category
	categorySlug := slug.Make(demoCategoryName)
	err := tx.WithContext(ctx).
		Where("slug = ? AND kind = ?", categorySlug, agencydomain.CategoryKindExpense).
		First(&category).Error
	if err == nil {
		return category, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return category, err
	}
	category = agencydomain.Category{
		ID:        node.Generate(),
		Name:      demoCategoryName,
		Slug:      categorySlug,
		Kind:      agencydomain.CategoryKindExpense,
		Color:     "#64748b",
		CreatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&category).Error; err != nil {
		return category, err
	}
	return category, nil
}

func ensureTemplateTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, ownerID, categoryID snowflake.ID, now time.Time) (obligationdomain.Obligation, error) {
	var template obligationdomain.Obligation
	err := tx.WithContext(ctx).
		Where("is_recurring = ? AND description = ?", true, demoTemplateDesc).
		First(&template).Error
	if err == nil {
		return template, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return template, err
	}
	template = obligationdomain.Obligation{
		ID:          node.Generate(),
		Direction:   obligationdomain.DirectionPayable,
		Amount:      decimal.NewFromInt(1200),
		DueDate:     obligationdomain.MonthStart(now).AddDate(0, 0, 4),
		Status:      obligationdomain.StatusPending,
		Description: demoTemplateDesc,
		CategoryID:  &categoryID,
		OwnerID:     ownerID,
		OriginType:  obligationdomain.OriginNone,
		IsRecurring: true,
		Frequency:   obligationdomain.FrequencyMonthly,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.WithContext(ctx).Create(&template).Error; err != nil {
		return template, err
	}
	return template, nil
}
