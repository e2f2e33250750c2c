package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrContractNotFound = errors.New("contract_not_found")
	ErrSaleNotFound     = errors.New("sale_not_found")
	ErrSellerNotFound   = errors.New("seller_not_found")
	ErrClientNotFound   = errors.New("client_not_found")
	ErrCategoryNotFound = errors.New("category_not_found")
)

// Repository reads the agency records the engine depends on. Single-row
// lookups return a typed NotFound error instead of a nil row.
type Repository interface {
	FindContract(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Contract, error)
	FindContractByCode(ctx context.Context, db *gorm.DB, code string) (*Contract, error)
	FindContractsByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) (map[snowflake.ID]*Contract, error)
	FindContractsByCodes(ctx context.Context, db *gorm.DB, codes []string) (map[string]*Contract, error)
	ListExpandableContracts(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]*Contract, error)
	FindSale(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Sale, error)
	FindSalesByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) (map[snowflake.ID]*Sale, error)
	ListClosedSales(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]*Sale, error)
	FindSeller(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Seller, error)
	FindClient(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Client, error)
	FindCategoryBySlug(ctx context.Context, db *gorm.DB, slug string, kind CategoryKind) (*Category, error)
	InsertCategoryIfAbsent(ctx context.Context, db *gorm.DB, category *Category) (bool, error)
}
