package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	agencydomain "github.com/smallbiznis/obligo/internal/agency/domain"
	commissiondomain "github.com/smallbiznis/obligo/internal/commission/domain"
	obligationdomain "github.com/smallbiznis/obligo/internal/obligation/domain"
	"github.com/smallbiznis/obligo/internal/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateFutureAccountsCreatesReceivablesAndCommissions(t *testing.T) {
	env := newTestEnv(t, storetest.Date(2026, time.March, 15))
	ctx := context.Background()

	seller := env.fx.Seller("Ana", "5")
	client := env.fx.Client("Acme")
	contract := env.fx.Contract(agencydomain.Contract{
		Code:       "CT-001",
		Value:      decimal.RequireFromString("2000"),
		BillingDay: 10,
		StartDate:  storetest.Date(2026, time.January, 1),
		SellerID:   &seller.ID,
		ClientID:   client.ID,
	})

	res, err := env.svc.GenerateFutureAccounts(ctx, contract.ID)
	require.NoError(t, err)
	require.Len(t, res.Obligations, 3)
	assert.Equal(t, 3, res.CommissionsCreated)
	assert.Empty(t, res.Failures)

	receivables := env.obligations(t, obligationdomain.OriginContract)
	require.Len(t, receivables, 3)
	for i, month := range []time.Month{time.March, time.April, time.May} {
		assert.Equal(t, "2000.00", receivables[i].Amount.StringFixed(2))
		assert.True(t, storetest.Date(2026, month, 10).Equal(receivables[i].DueDate.UTC()))
		assert.Equal(t, obligationdomain.StatusPending, receivables[i].Status)
	}
	assert.Equal(t, "Contrato CT-001 - Acme - 03/2026", receivables[0].Description)
	assert.Equal(t, "2026-03", receivables[0].PeriodKey)

	payables := env.obligations(t, obligationdomain.OriginCommission)
	require.Len(t, payables, 3)
	for _, payable := range payables {
		assert.Equal(t, "100.00", payable.Amount.StringFixed(2))
		assert.Equal(t, obligationdomain.DirectionPayable, payable.Direction)
	}
}

func TestGenerateFutureAccountsIsIdempotent(t *testing.T) {
	env := newTestEnv(t, storetest.Date(2026, time.March, 15))
	ctx := context.Background()

	seller := env.fx.Seller("Ana", "5")
	contract := env.fx.Contract(agencydomain.Contract{
		Value:     decimal.RequireFromString("1000"),
		StartDate: storetest.Date(2026, time.March, 1),
		SellerID:  &seller.ID,
	})

	_, err := env.svc.GenerateFutureAccounts(ctx, contract.ID)
	require.NoError(t, err)

	again, err := env.svc.GenerateFutureAccounts(ctx, contract.ID)
	require.NoError(t, err)
	assert.Empty(t, again.Obligations)
	assert.Equal(t, 3, again.Skipped)
	assert.Zero(t, again.CommissionsCreated)

	var obligations, commissions int64
	require.NoError(t, env.fx.DB.Model(&obligationdomain.Obligation{}).Count(&obligations).Error)
	require.NoError(t, env.fx.DB.Model(&commissiondomain.Commission{}).Count(&commissions).Error)
	assert.EqualValues(t, 6, obligations)
	assert.EqualValues(t, 3, commissions)
}

func TestGenerateFutureAccountsWindow(t *testing.T) {
	t.Run("end date bounds the window", func(t *testing.T) {
		env := newTestEnv(t, storetest.Date(2026, time.March, 15))
		seller := env.fx.Seller("Ana", "5")
		endDate := storetest.Date(2026, time.April, 20)
		contract := env.fx.Contract(agencydomain.Contract{
			Value:     decimal.NewFromInt(500),
			StartDate: storetest.Date(2025, time.December, 1),
			EndDate:   &endDate,
			SellerID:  &seller.ID,
		})

		res, err := env.svc.GenerateFutureAccounts(context.Background(), contract.ID)
		require.NoError(t, err)
		require.Len(t, res.Obligations, 2)
		assert.Equal(t, "2026-03", res.Obligations[0].PeriodKey)
		assert.Equal(t, "2026-04", res.Obligations[1].PeriodKey)
	})

	t.Run("future start", func(t *testing.T) {
		env := newTestEnv(t, storetest.Date(2026, time.March, 15))
		seller := env.fx.Seller("Ana", "5")
		contract := env.fx.Contract(agencydomain.Contract{
			Value:      decimal.NewFromInt(500),
			BillingDay: 31,
			StartDate:  storetest.Date(2026, time.June, 5),
			SellerID:   &seller.ID,
		})

		res, err := env.svc.GenerateFutureAccounts(context.Background(), contract.ID)
		require.NoError(t, err)
		require.Len(t, res.Obligations, 3)
		assert.True(t, storetest.Date(2026, time.June, 30).Equal(res.Obligations[0].DueDate))
		assert.True(t, storetest.Date(2026, time.July, 31).Equal(res.Obligations[1].DueDate))
		assert.True(t, storetest.Date(2026, time.August, 31).Equal(res.Obligations[2].DueDate))
	})
}

func TestGenerateFutureAccountsSkipsInactiveContracts(t *testing.T) {
	env := newTestEnv(t, storetest.Date(2026, time.March, 15))
	ctx := context.Background()

	suspended := env.fx.Contract(agencydomain.Contract{
		Value:     decimal.NewFromInt(500),
		Status:    agencydomain.ContractStatusSuspended,
		StartDate: storetest.Date(2026, time.January, 1),
	})
	single := env.fx.Contract(agencydomain.Contract{
		Value:     decimal.NewFromInt(500),
		Kind:      agencydomain.ContractKindSingle,
		StartDate: storetest.Date(2026, time.January, 1),
	})

	res, err := env.svc.GenerateFutureAccounts(ctx, suspended.ID)
	require.NoError(t, err)
	assert.Empty(t, res.Obligations)
	res, err = env.svc.GenerateFutureAccounts(ctx, single.ID)
	require.NoError(t, err)
	assert.Empty(t, res.Obligations)

	_, err = env.svc.GenerateFutureAccounts(ctx, env.fx.Node.Generate())
	assert.ErrorIs(t, err, agencydomain.ErrContractNotFound)
}

func TestGenerateFutureAccountsRecordsCommissionFailures(t *testing.T) {
	env := newTestEnv(t, storetest.Date(2026, time.March, 15))

	contract := env.fx.Contract(agencydomain.Contract{
		Value:     decimal.NewFromInt(800),
		StartDate: storetest.Date(2026, time.March, 1),
	})

	res, err := env.svc.GenerateFutureAccounts(context.Background(), contract.ID)
	require.NoError(t, err)
	assert.Len(t, res.Obligations, 3)
	require.Len(t, res.Failures, 3)
	assert.Equal(t, "2026-03", res.Failures[0].Key)
	assert.Equal(t, commissiondomain.ErrSellerRequired.Error(), res.Failures[0].Reason)
}

func TestCancelFutureAccountsKeepsConfirmed(t *testing.T) {
	env := newTestEnv(t, storetest.Date(2026, time.March, 15))
	ctx := context.Background()

	seller := env.fx.Seller("Ana", "5")
	contract := env.fx.Contract(agencydomain.Contract{
		Value:     decimal.NewFromInt(1000),
		StartDate: storetest.Date(2026, time.March, 1),
		SellerID:  &seller.ID,
	})
	generated, err := env.svc.GenerateFutureAccounts(ctx, contract.ID)
	require.NoError(t, err)
	require.Len(t, generated.Obligations, 3)

	confirmedID := generated.Obligations[0].ID
	require.NoError(t, env.fx.DB.Model(&obligationdomain.Obligation{}).
		Where("id = ?", confirmedID).Update("status", obligationdomain.StatusConfirmed).Error)

	var pendingBefore int64
	require.NoError(t, env.fx.DB.Model(&obligationdomain.Obligation{}).
		Where("origin_type = ? AND status = ?", obligationdomain.OriginContract, obligationdomain.StatusPending).
		Count(&pendingBefore).Error)

	res, err := env.svc.CancelFutureAccounts(ctx, contract.ID)
	require.NoError(t, err)
	assert.Equal(t, pendingBefore, res.Cancelled)
	assert.EqualValues(t, 2, res.Cancelled)
	assert.EqualValues(t, 2, res.CommissionPayablesCancelled)

	var confirmed obligationdomain.Obligation
	require.NoError(t, env.fx.DB.Take(&confirmed, confirmedID).Error)
	assert.Equal(t, obligationdomain.StatusConfirmed, confirmed.Status)

	var commissions []commissiondomain.Commission
	require.NoError(t, env.fx.DB.Order("month_ref asc").Find(&commissions).Error)
	require.Len(t, commissions, 3)
	for _, commission := range commissions {
		require.NotNil(t, commission.ObligationID)
		var payable obligationdomain.Obligation
		require.NoError(t, env.fx.DB.Take(&payable, *commission.ObligationID).Error)
		want := obligationdomain.StatusCancelled
		if commission.MonthRef == confirmed.PeriodKey {
			want = obligationdomain.StatusPending
		}
		assert.Equal(t, want, payable.Status, commission.MonthRef)
	}

	again, err := env.svc.CancelFutureAccounts(ctx, contract.ID)
	require.NoError(t, err)
	assert.Zero(t, again.Cancelled)
	assert.Zero(t, again.CommissionPayablesCancelled)
}

func TestContractMonths(t *testing.T) {
	now := storetest.Date(2026, time.November, 20)
	months := contractMonths(agencydomain.Contract{StartDate: storetest.Date(2026, time.January, 1)}, now, 3)
	require.Len(t, months, 3)
	assert.Equal(t, storetest.Date(2026, time.November, 1), months[0])
	assert.Equal(t, storetest.Date(2027, time.January, 1), months[2])

	past := storetest.Date(2026, time.February, 1)
	assert.Empty(t, contractMonths(agencydomain.Contract{StartDate: storetest.Date(2025, time.January, 1), EndDate: &past}, now, 3))
}
