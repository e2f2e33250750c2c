// Package storetest opens throwaway sqlite stores for package tests.
package storetest

import (
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	agencydomain "github.com/smallbiznis/obligo/internal/agency/domain"
	"github.com/smallbiznis/obligo/internal/config"
	"github.com/smallbiznis/obligo/internal/migration"
	obligationdomain "github.com/smallbiznis/obligo/internal/obligation/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OwnerID is the system owner configured by EngineConfig in tests.
const OwnerID int64 = 42

// NewDB opens an in-memory database private to the test and migrates it.
// The pool is capped at one connection, so code under test must use the
// transaction handle it is given instead of the root *gorm.DB.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migration.AutoMigrate(db))
	return db
}

// Engine returns the default engine config owned by OwnerID.
func Engine() *config.EngineConfigHolder {
	cfg := config.DefaultEngineConfig()
	cfg.SystemOwnerID = OwnerID
	return config.NewStaticEngineConfig(cfg)
}

func NewNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return node
}

// Fixture seeds agency records and obligations.
type Fixture struct {
	t    *testing.T
	DB   *gorm.DB
	Node *snowflake.Node
}

func New(t *testing.T) *Fixture {
	t.Helper()
	return &Fixture{t: t, DB: NewDB(t), Node: NewNode(t)}
}

func (f *Fixture) Client(name string) *agencydomain.Client {
	f.t.Helper()
	client := &agencydomain.Client{ID: f.Node.Generate(), Name: name, CreatedAt: time.Now().UTC()}
	require.NoError(f.t, f.DB.Create(client).Error)
	return client
}

// Seller creates a seller. An empty percentage leaves the rate unset.
func (f *Fixture) Seller(name, percentage string) *agencydomain.Seller {
	f.t.Helper()
	seller := &agencydomain.Seller{ID: f.Node.Generate(), Name: name, CreatedAt: time.Now().UTC()}
	if percentage != "" {
		seller.CommissionPercentage = decimal.NewNullDecimal(decimal.RequireFromString(percentage))
	}
	require.NoError(f.t, f.DB.Create(seller).Error)
	return seller
}

// Contract stores c after filling in an ID and the defaults a test rarely cares about.
func (f *Fixture) Contract(c agencydomain.Contract) *agencydomain.Contract {
	f.t.Helper()
	if c.ID == 0 {
		c.ID = f.Node.Generate()
	}
	if c.Code == "" {
		c.Code = "CT-" + c.ID.String()
	}
	if c.Kind == "" {
		c.Kind = agencydomain.ContractKindRecurring
	}
	if c.Status == "" {
		c.Status = agencydomain.ContractStatusActive
	}
	if c.BillingDay == 0 {
		c.BillingDay = 1
	}
	if c.ClientID == 0 {
		c.ClientID = f.Client("Client " + c.Code).ID
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	require.NoError(f.t, f.DB.Create(&c).Error)
	return &c
}

func (f *Fixture) Sale(s agencydomain.Sale) *agencydomain.Sale {
	f.t.Helper()
	if s.ID == 0 {
		s.ID = f.Node.Generate()
	}
	if s.Status == "" {
		s.Status = agencydomain.SaleStatusClosed
	}
	if s.Title == "" {
		s.Title = "Sale " + s.ID.String()
	}
	if s.ClientID == 0 {
		s.ClientID = f.Client("Client " + s.ID.String()).ID
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	s.UpdatedAt = s.CreatedAt
	require.NoError(f.t, f.DB.Create(&s).Error)
	return &s
}

// Obligation stores o, defaulting to a pending receivable with no origin.
func (f *Fixture) Obligation(o obligationdomain.Obligation) *obligationdomain.Obligation {
	f.t.Helper()
	if o.ID == 0 {
		o.ID = f.Node.Generate()
	}
	if o.Direction == "" {
		o.Direction = obligationdomain.DirectionReceivable
	}
	if o.Status == "" {
		o.Status = obligationdomain.StatusPending
	}
	if o.OriginType == "" {
		o.OriginType = obligationdomain.OriginNone
	}
	if o.OwnerID == 0 {
		o.OwnerID = snowflake.ID(OwnerID)
	}
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	require.NoError(f.t, f.DB.Create(&o).Error)
	return &o
}

// Template stores a recurring template anchored at due.
func (f *Fixture) Template(amount string, due time.Time, frequency obligationdomain.Frequency, end *time.Time) *obligationdomain.Obligation {
	f.t.Helper()
	return f.Obligation(obligationdomain.Obligation{
		Direction:         obligationdomain.DirectionPayable,
		Amount:            decimal.RequireFromString(amount),
		DueDate:           due.UTC(),
		Description:       "Aluguel",
		IsRecurring:       true,
		Frequency:         frequency,
		RecurrenceEndDate: end,
	})
}

// Date is a UTC midnight shorthand.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
