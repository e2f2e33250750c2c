package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	agencydomain "github.com/smallbiznis/obligo/internal/agency/domain"
	auditrepository "github.com/smallbiznis/obligo/internal/audit/repository"
	auditservice "github.com/smallbiznis/obligo/internal/audit/service"
	"github.com/smallbiznis/obligo/internal/clock"
	commissiondomain "github.com/smallbiznis/obligo/internal/commission/domain"
	commissionrepository "github.com/smallbiznis/obligo/internal/commission/repository"
	"github.com/smallbiznis/obligo/internal/config"
	"github.com/smallbiznis/obligo/internal/obligation/domain"
	"github.com/smallbiznis/obligo/internal/obligation/repository"
	"github.com/smallbiznis/obligo/internal/storetest"
	"github.com/smallbiznis/obligo/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestService(t *testing.T, engine *config.EngineConfigHolder) (*storetest.Fixture, domain.Service) {
	t.Helper()

	fixture := storetest.New(t)
	log := zaptest.NewLogger(t)
	svc := New(Params{
		DB:             fixture.DB,
		Log:            log,
		GenID:          fixture.Node,
		Clock:          clock.NewFakeClock(storetest.Date(2026, time.March, 15)),
		Engine:         engine,
		Repo:           repository.Provide(),
		CommissionRepo: commissionrepository.Provide(),
		AuditSvc: auditservice.NewService(auditservice.Params{
			DB:    fixture.DB,
			Log:   log,
			GenID: fixture.Node,
			Repo:  auditrepository.Provide(),
		}),
	})
	return fixture, svc
}

func TestEnsureSaleReceivable(t *testing.T) {
	fixture, svc := newTestService(t, storetest.Engine())
	ctx := context.Background()

	closedAt := time.Date(2026, time.March, 3, 14, 30, 0, 0, time.UTC)
	sale := fixture.Sale(agencydomain.Sale{
		Title:    "Website",
		Value:    decimal.RequireFromString("1500.456"),
		ClosedAt: &closedAt,
	})

	receivable, created, err := svc.EnsureSaleReceivable(ctx, nil, sale)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, domain.DirectionReceivable, receivable.Direction)
	assert.Equal(t, "1500.46", receivable.Amount.StringFixed(2))
	assert.True(t, storetest.Date(2026, time.March, 3).Equal(receivable.DueDate))
	assert.Equal(t, domain.SaleOrigin(sale.ID), receivable.Origin())
	assert.Equal(t, "Venda "+sale.ID.String()+" - Website", receivable.Description)
	assert.EqualValues(t, storetest.OwnerID, receivable.OwnerID)

	again, created, err := svc.EnsureSaleReceivable(ctx, nil, sale)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, receivable.ID, again.ID)
}

func TestEnsureSaleReceivableRejects(t *testing.T) {
	t.Run("open sale", func(t *testing.T) {
		fixture, svc := newTestService(t, storetest.Engine())
		sale := fixture.Sale(agencydomain.Sale{Value: decimal.NewFromInt(10), Status: agencydomain.SaleStatusNegotiation})
		_, _, err := svc.EnsureSaleReceivable(context.Background(), nil, sale)
		assert.ErrorIs(t, err, domain.ErrSaleNotClosed)
	})

	t.Run("missing owner", func(t *testing.T) {
		cfg := config.DefaultEngineConfig()
		fixture, svc := newTestService(t, config.NewStaticEngineConfig(cfg))
		sale := fixture.Sale(agencydomain.Sale{Value: decimal.NewFromInt(10)})
		_, _, err := svc.EnsureSaleReceivable(context.Background(), nil, sale)
		assert.ErrorIs(t, err, domain.ErrOwnerNotConfigured)
	})

	t.Run("zero value", func(t *testing.T) {
		fixture, svc := newTestService(t, storetest.Engine())
		sale := fixture.Sale(agencydomain.Sale{Value: decimal.Zero})
		_, _, err := svc.EnsureSaleReceivable(context.Background(), nil, sale)
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	})
}

func TestConfirmAndCancelArePendingOnly(t *testing.T) {
	fixture, svc := newTestService(t, storetest.Engine())
	ctx := context.Background()

	first := fixture.Obligation(domain.Obligation{Amount: decimal.NewFromInt(10), DueDate: storetest.Date(2026, time.April, 1)})
	second := fixture.Obligation(domain.Obligation{Amount: decimal.NewFromInt(20), DueDate: storetest.Date(2026, time.April, 2)})

	confirmed, err := svc.Confirm(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.ConfirmedAt)

	_, err = svc.Cancel(ctx, first.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	cancelled, err := svc.Cancel(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)

	_, err = svc.Confirm(ctx, fixture.Node.Generate())
	assert.ErrorIs(t, err, domain.ErrObligationNotFound)

	var audits int64
	require.NoError(t, fixture.DB.Table("audit_logs").Count(&audits).Error)
	assert.EqualValues(t, 2, audits)
}

func TestConfirmCommissionPayableMarksCommissionPaid(t *testing.T) {
	fixture, svc := newTestService(t, storetest.Engine())
	ctx := context.Background()

	seller := fixture.Seller("Ana", "5")
	now := time.Now().UTC()
	commission := commissiondomain.Commission{
		ID:         fixture.Node.Generate(),
		SellerID:   seller.ID,
		OriginType: commissiondomain.OriginSale,
		MonthRef:   "2026-03",
		OriginKey:  "sale:1",
		Percentage: decimal.NewFromInt(5),
		BaseAmount: decimal.NewFromInt(1000),
		Amount:     decimal.NewFromInt(50),
		Status:     commissiondomain.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, fixture.DB.Create(&commission).Error)

	payable := domain.Obligation{
		Direction: domain.DirectionPayable,
		Amount:    commission.Amount,
		DueDate:   storetest.Date(2026, time.April, 30),
	}
	payable.SetOrigin(domain.CommissionOrigin(commission.ID))
	stored := fixture.Obligation(payable)

	_, err := svc.Confirm(ctx, stored.ID)
	require.NoError(t, err)

	var reloaded commissiondomain.Commission
	require.NoError(t, fixture.DB.Take(&reloaded, commission.ID).Error)
	assert.Equal(t, commissiondomain.StatusPaid, reloaded.Status)
	require.NotNil(t, reloaded.PaidAt)
	assert.True(t, storetest.Date(2026, time.March, 15).Equal(reloaded.PaidAt.UTC()))
}

func TestListPaginates(t *testing.T) {
	fixture, svc := newTestService(t, storetest.Engine())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		fixture.Obligation(domain.Obligation{Amount: decimal.NewFromInt(int64(i + 1)), DueDate: storetest.Date(2026, time.April, i+1)})
	}
	fixture.Obligation(domain.Obligation{Direction: domain.DirectionPayable, Amount: decimal.NewFromInt(9), DueDate: storetest.Date(2026, time.April, 9)})

	page, err := svc.List(ctx, domain.ListObligationRequest{
		Pagination: pagination.Pagination{PageSize: 2},
		Direction:  string(domain.DirectionReceivable),
	})
	require.NoError(t, err)
	require.Len(t, page.Obligations, 2)
	require.True(t, page.HasMore)
	require.NotEmpty(t, page.NextPageToken)

	next, err := svc.List(ctx, domain.ListObligationRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: page.NextPageToken},
		Direction:  string(domain.DirectionReceivable),
	})
	require.NoError(t, err)
	require.Len(t, next.Obligations, 1)
	assert.False(t, next.HasMore)

	_, err = svc.List(ctx, domain.ListObligationRequest{Pagination: pagination.Pagination{PageToken: "%%%"}})
	assert.ErrorIs(t, err, domain.ErrInvalidPageToken)
}
