package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	agencydomain "github.com/smallbiznis/obligo/internal/agency/domain"
	agencyrepository "github.com/smallbiznis/obligo/internal/agency/repository"
	"github.com/smallbiznis/obligo/internal/clock"
	commissiondomain "github.com/smallbiznis/obligo/internal/commission/domain"
	commissionrepository "github.com/smallbiznis/obligo/internal/commission/repository"
	commissionservice "github.com/smallbiznis/obligo/internal/commission/service"
	"github.com/smallbiznis/obligo/internal/commissionsync/domain"
	"github.com/smallbiznis/obligo/internal/config"
	obligationrepository "github.com/smallbiznis/obligo/internal/obligation/repository"
	"github.com/smallbiznis/obligo/internal/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestService(t *testing.T) (*storetest.Fixture, domain.Service, commissiondomain.Service) {
	t.Helper()

	fixture := storetest.New(t)
	log := zaptest.NewLogger(t)
	cfg := storetest.Engine().Get()
	cfg.Reconcile.BatchSize = 2
	cfg.Sync.Concurrency = 3
	cfg.Sync.RatePerSecond = 1000
	cfg.Sync.Burst = 100
	engine := config.NewStaticEngineConfig(cfg)

	agencyRepo := agencyrepository.Provide()
	commissionRepo := commissionrepository.Provide()
	commissionSvc := commissionservice.New(commissionservice.Params{
		DB:             fixture.DB,
		Log:            log,
		GenID:          fixture.Node,
		Clock:          clock.NewFakeClock(storetest.Date(2026, time.March, 15)),
		Engine:         engine,
		Repo:           commissionRepo,
		AgencyRepo:     agencyRepo,
		ObligationRepo: obligationrepository.Provide(),
	})

	svc := New(Params{
		DB:             fixture.DB,
		Log:            log,
		Engine:         engine,
		AgencyRepo:     agencyRepo,
		CommissionRepo: commissionRepo,
		CommissionSvc:  commissionSvc,
	})
	return fixture, svc, commissionSvc
}

func TestSyncMissingCommissionsRunsOnce(t *testing.T) {
	fixture, svc, commissionSvc := newTestService(t)
	ctx := context.Background()

	seller := fixture.Seller("Ana", "10")
	var sales []*agencydomain.Sale
	for i := 0; i < 5; i++ {
		sales = append(sales, fixture.Sale(agencydomain.Sale{Value: decimal.NewFromInt(int64(100 * (i + 1))), SellerID: &seller.ID}))
	}
	fixture.Sale(agencydomain.Sale{Value: decimal.NewFromInt(100), SellerID: &seller.ID, Status: agencydomain.SaleStatusLost})

	_, err := commissionSvc.CreateCommission(ctx, commissiondomain.NewSaleRequest(sales[0], ""))
	require.NoError(t, err)

	first, err := svc.SyncMissingCommissions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, first.Scanned)
	assert.Equal(t, 4, first.Created)
	assert.Zero(t, first.Failed)
	require.Len(t, first.Items, 4)
	for _, item := range first.Items {
		assert.Equal(t, domain.ItemCreated, item.Status)
		assert.NotNil(t, item.CommissionID)
	}

	second, err := svc.SyncMissingCommissions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, second.Scanned)
	assert.Zero(t, second.Created)
	assert.Empty(t, second.Items)

	var count int64
	require.NoError(t, fixture.DB.Model(&commissiondomain.Commission{}).Count(&count).Error)
	assert.EqualValues(t, 5, count)
}

func TestSyncMissingCommissionsReportsFailures(t *testing.T) {
	fixture, svc, _ := newTestService(t)

	seller := fixture.Seller("Ana", "10")
	fixture.Sale(agencydomain.Sale{Value: decimal.NewFromInt(100), SellerID: &seller.ID})
	orphan := fixture.Sale(agencydomain.Sale{Value: decimal.NewFromInt(100)})

	res, err := svc.SyncMissingCommissions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Failed)

	var failed *domain.SyncItem
	for i := range res.Items {
		if res.Items[i].Status == domain.ItemFailed {
			failed = &res.Items[i]
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, orphan.ID, failed.SaleID)
	assert.Equal(t, commissiondomain.ErrSellerRequired.Error(), failed.Error)
}

func TestSyncMissingCommissionsStopsOnCancel(t *testing.T) {
	fixture, svc, _ := newTestService(t)
	seller := fixture.Seller("Ana", "10")
	fixture.Sale(agencydomain.Sale{Value: decimal.NewFromInt(100), SellerID: &seller.ID})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.SyncMissingCommissions(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
