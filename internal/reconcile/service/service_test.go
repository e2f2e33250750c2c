package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	agencydomain "github.com/smallbiznis/obligo/internal/agency/domain"
	agencyrepository "github.com/smallbiznis/obligo/internal/agency/repository"
	auditrepository "github.com/smallbiznis/obligo/internal/audit/repository"
	auditservice "github.com/smallbiznis/obligo/internal/audit/service"
	"github.com/smallbiznis/obligo/internal/clock"
	commissiondomain "github.com/smallbiznis/obligo/internal/commission/domain"
	commissionrepository "github.com/smallbiznis/obligo/internal/commission/repository"
	commissionservice "github.com/smallbiznis/obligo/internal/commission/service"
	"github.com/smallbiznis/obligo/internal/config"
	obligationdomain "github.com/smallbiznis/obligo/internal/obligation/domain"
	obligationrepository "github.com/smallbiznis/obligo/internal/obligation/repository"
	obligationservice "github.com/smallbiznis/obligo/internal/obligation/service"
	"github.com/smallbiznis/obligo/internal/reconcile/domain"
	"github.com/smallbiznis/obligo/internal/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type testEnv struct {
	fx            *storetest.Fixture
	svc           domain.Service
	commissionSvc commissiondomain.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	fixture := storetest.New(t)
	log := zaptest.NewLogger(t)
	fakeClock := clock.NewFakeClock(storetest.Date(2026, time.March, 15))
	cfg := storetest.Engine().Get()
	cfg.Reconcile.BatchSize = 2
	engine := config.NewStaticEngineConfig(cfg)

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    fixture.DB,
		Log:   log,
		GenID: fixture.Node,
		Repo:  auditrepository.Provide(),
	})
	agencyRepo := agencyrepository.Provide()
	obligationRepo := obligationrepository.Provide()
	commissionRepo := commissionrepository.Provide()
	obligationSvc := obligationservice.New(obligationservice.Params{
		DB:             fixture.DB,
		Log:            log,
		GenID:          fixture.Node,
		Clock:          fakeClock,
		Engine:         engine,
		Repo:           obligationRepo,
		CommissionRepo: commissionRepo,
	})
	commissionSvc := commissionservice.New(commissionservice.Params{
		DB:             fixture.DB,
		Log:            log,
		GenID:          fixture.Node,
		Clock:          fakeClock,
		Engine:         engine,
		Repo:           commissionRepo,
		AgencyRepo:     agencyRepo,
		ObligationRepo: obligationRepo,
	})

	svc := New(Params{
		DB:             fixture.DB,
		Log:            log,
		Clock:          fakeClock,
		Engine:         engine,
		AgencyRepo:     agencyRepo,
		ObligationRepo: obligationRepo,
		CommissionRepo: commissionRepo,
		ObligationSvc:  obligationSvc,
		CommissionSvc:  commissionSvc,
		AuditSvc:       auditSvc,
	})
	return &testEnv{fx: fixture, svc: svc, commissionSvc: commissionSvc}
}

func (e *testEnv) receivable(origin obligationdomain.Origin, description string) *obligationdomain.Obligation {
	o := obligationdomain.Obligation{
		Amount:      decimal.NewFromInt(100),
		DueDate:     storetest.Date(2026, time.April, 1),
		Description: description,
	}
	o.SetOrigin(origin)
	return e.fx.Obligation(o)
}

func (e *testEnv) exists(t *testing.T, id snowflake.ID) bool {
	t.Helper()
	var count int64
	require.NoError(t, e.fx.DB.Model(&obligationdomain.Obligation{}).Where("id = ?", id).Count(&count).Error)
	return count > 0
}

func classes(details []domain.OrphanDetail) map[snowflake.ID]domain.OrphanClass {
	out := make(map[snowflake.ID]domain.OrphanClass, len(details))
	for _, detail := range details {
		out[detail.ObligationID] = detail.Class
	}
	return out
}

func TestSweepOrphansClassifies(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	month := storetest.Date(2026, time.April, 1)

	active := env.fx.Contract(agencydomain.Contract{Code: "CT-1", Value: decimal.NewFromInt(100), StartDate: month})
	cancelled := env.fx.Contract(agencydomain.Contract{Code: "CT-2", Value: decimal.NewFromInt(100), StartDate: month, Status: agencydomain.ContractStatusCancelled})
	env.fx.Contract(agencydomain.Contract{Code: "CT-OLD", Value: decimal.NewFromInt(100), StartDate: month, Status: agencydomain.ContractStatusFinished})
	closedSale := env.fx.Sale(agencydomain.Sale{Value: decimal.NewFromInt(100)})
	openSale := env.fx.Sale(agencydomain.Sale{Value: decimal.NewFromInt(100), Status: agencydomain.SaleStatusNegotiation})

	keepActive := env.receivable(obligationdomain.ContractPeriodOrigin(active.ID, month), "")
	keepLegacy := env.receivable(obligationdomain.NoOrigin(), "Contrato CT-1 - Acme - 04/2026")
	keepSale := env.receivable(obligationdomain.SaleOrigin(closedSale.ID), "")
	keepPayable := env.fx.Obligation(obligationdomain.Obligation{Direction: obligationdomain.DirectionPayable, Amount: decimal.NewFromInt(5), DueDate: month})
	keepTemplate := env.fx.Template("50", month, obligationdomain.FrequencyMonthly, nil)
	keepConfirmed := env.fx.Obligation(obligationdomain.Obligation{Amount: decimal.NewFromInt(5), DueDate: month, Status: obligationdomain.StatusConfirmed})

	inactive := env.receivable(obligationdomain.ContractPeriodOrigin(cancelled.ID, month), "")
	unknown := env.receivable(obligationdomain.ContractPeriodOrigin(env.fx.Node.Generate(), month), "")
	missingOrigin := env.receivable(obligationdomain.NoOrigin(), "Avulso")
	legacyInactive := env.receivable(obligationdomain.NoOrigin(), "Contrato CT-OLD - Acme - 01/2026")
	legacyUnknown := env.receivable(obligationdomain.NoOrigin(), "Contrato CT-404 - Acme - 01/2026")
	notClosed := env.receivable(obligationdomain.SaleOrigin(openSale.ID), "")
	missingSale := env.receivable(obligationdomain.SaleOrigin(env.fx.Node.Generate()), "")
	missingCommission := env.fx.Obligation(func() obligationdomain.Obligation {
		o := obligationdomain.Obligation{Direction: obligationdomain.DirectionPayable, Amount: decimal.NewFromInt(5), DueDate: month}
		o.SetOrigin(obligationdomain.CommissionOrigin(env.fx.Node.Generate()))
		return o
	}())

	res, err := env.svc.SweepOrphans(ctx, domain.SweepRequest{})
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 13, res.Scanned)
	assert.Equal(t, 8, res.Deleted)

	assert.Equal(t, map[snowflake.ID]domain.OrphanClass{
		inactive.ID:          domain.ClassInactiveContract,
		unknown.ID:           domain.ClassUnknownContract,
		missingOrigin.ID:     domain.ClassMissingOrigin,
		legacyInactive.ID:    domain.ClassInactiveContract,
		legacyUnknown.ID:     domain.ClassUnknownContract,
		notClosed.ID:         domain.ClassSaleNotClosed,
		missingSale.ID:       domain.ClassMissingSale,
		missingCommission.ID: domain.ClassMissingCommission,
	}, classes(res.Details))

	for _, kept := range []snowflake.ID{keepActive.ID, keepLegacy.ID, keepSale.ID, keepPayable.ID, keepTemplate.ID, keepConfirmed.ID} {
		assert.True(t, env.exists(t, kept))
	}
	for _, gone := range []snowflake.ID{inactive.ID, unknown.ID, missingOrigin.ID, notClosed.ID} {
		assert.False(t, env.exists(t, gone))
	}

	var audits int64
	require.NoError(t, env.fx.DB.Table("audit_logs").Where("action = ?", "obligation.orphan_deleted").Count(&audits).Error)
	assert.EqualValues(t, 8, audits)
}

func TestSweepOrphansDryRun(t *testing.T) {
	env := newTestEnv(t)

	orphan := env.receivable(obligationdomain.NoOrigin(), "Avulso")

	res, err := env.svc.SweepOrphans(context.Background(), domain.SweepRequest{DryRun: true})
	require.NoError(t, err)
	require.Len(t, res.Details, 1)
	assert.False(t, res.Details[0].Deleted)
	assert.Zero(t, res.Deleted)
	assert.True(t, env.exists(t, orphan.ID))
}

func TestValidateAndDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	month := storetest.Date(2026, time.April, 1)

	seller := env.fx.Seller("Ana", "5")
	active := env.fx.Contract(agencydomain.Contract{Value: decimal.NewFromInt(100), StartDate: month})
	cancelled := env.fx.Contract(agencydomain.Contract{Value: decimal.NewFromInt(100), StartDate: month, Status: agencydomain.ContractStatusCancelled, SellerID: &seller.ID})
	sale := env.fx.Sale(agencydomain.Sale{Value: decimal.NewFromInt(1000), SellerID: &seller.ID})

	saleCommission, err := env.commissionSvc.CreateCommission(ctx, commissiondomain.NewSaleRequest(sale, ""))
	require.NoError(t, err)
	contractCommission, err := env.commissionSvc.CreateCommission(ctx, commissiondomain.CreateCommissionRequest{
		Origin:      commissiondomain.ContractOrigin(cancelled.ID, month),
		SellerID:    seller.ID,
		OriginValue: cancelled.Value,
	})
	require.NoError(t, err)

	confirmed := env.fx.Obligation(obligationdomain.Obligation{Amount: decimal.NewFromInt(5), DueDate: month, Status: obligationdomain.StatusConfirmed})
	saleReceivable := env.receivable(obligationdomain.SaleOrigin(sale.ID), "")
	contractReceivable := env.receivable(obligationdomain.ContractPeriodOrigin(active.ID, month), "")
	manual := env.receivable(obligationdomain.NoOrigin(), "Avulso")

	cases := []struct {
		name    string
		id      snowflake.ID
		deleted bool
		reason  string
	}{
		{name: "confirmed", id: confirmed.ID, reason: domain.ReasonConfirmed},
		{name: "closed sale receivable", id: saleReceivable.ID, reason: domain.ReasonClosedSale},
		{name: "closed sale commission payable", id: saleCommission.Payable.ID, reason: domain.ReasonClosedSale},
		{name: "active contract receivable", id: contractReceivable.ID, reason: domain.ReasonActiveContract},
		{name: "no origin", id: manual.ID, deleted: true},
		{name: "cancelled contract commission payable", id: contractCommission.Payable.ID, deleted: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := env.svc.ValidateAndDelete(ctx, tc.id)
			require.NoError(t, err)
			assert.Equal(t, tc.deleted, res.Deleted)
			assert.Equal(t, tc.reason, res.Reason)
			assert.Equal(t, !tc.deleted, env.exists(t, tc.id))
		})
	}

	_, err = env.commissionSvc.GetCommission(ctx, contractCommission.Commission.ID)
	assert.ErrorIs(t, err, commissiondomain.ErrCommissionNotFound)

	_, err = env.svc.ValidateAndDelete(ctx, env.fx.Node.Generate())
	assert.ErrorIs(t, err, obligationdomain.ErrObligationNotFound)
	_, err = env.svc.ValidateAndDelete(ctx, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidObligationID)
}

func kinds(issues []domain.Issue) map[domain.IssueKind]int {
	out := map[domain.IssueKind]int{}
	for _, issue := range issues {
		out[issue.Kind]++
	}
	return out
}

func TestDetectAndRepairInconsistencies(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	seller := env.fx.Seller("Ana", "5")
	closedAt := time.Date(2026, time.February, 20, 9, 0, 0, 0, time.UTC)

	bare := env.fx.Sale(agencydomain.Sale{Value: decimal.NewFromInt(1000), SellerID: &seller.ID, ClosedAt: &closedAt})

	drifted := env.fx.Sale(agencydomain.Sale{Value: decimal.NewFromInt(400), SellerID: &seller.ID, ClosedAt: &closedAt})
	stale := obligationdomain.Obligation{Amount: decimal.NewFromInt(350), DueDate: storetest.Date(2026, time.January, 1)}
	stale.SetOrigin(obligationdomain.SaleOrigin(drifted.ID))
	staleRow := env.fx.Obligation(stale)
	_, err := env.commissionSvc.CreateCommission(ctx, commissiondomain.NewSaleRequest(drifted, ""))
	require.NoError(t, err)

	unpaid := env.fx.Sale(agencydomain.Sale{Value: decimal.NewFromInt(200), SellerID: &seller.ID, ClosedAt: &closedAt})
	linked := obligationdomain.Obligation{Amount: decimal.NewFromInt(200), DueDate: storetest.Date(2026, time.February, 20)}
	linked.SetOrigin(obligationdomain.SaleOrigin(unpaid.ID))
	env.fx.Obligation(linked)
	orphaned, err := env.commissionSvc.CreateCommission(ctx, commissiondomain.NewSaleRequest(unpaid, ""))
	require.NoError(t, err)
	require.NoError(t, env.fx.DB.Delete(&obligationdomain.Obligation{}, orphaned.Payable.ID).Error)

	issues, err := env.svc.DetectInconsistencies(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[domain.IssueKind]int{
		domain.IssueMissingSaleReceivable:        1,
		domain.IssueMissingCommission:            1,
		domain.IssueSaleReceivableDateMismatch:   1,
		domain.IssueSaleReceivableAmountMismatch: 1,
		domain.IssueCommissionMissingPayable:     1,
	}, kinds(issues))

	actions, err := env.svc.RepairInconsistencies(ctx)
	require.NoError(t, err)
	require.Len(t, actions, 5)
	statuses := map[domain.ActionStatus]int{}
	for _, action := range actions {
		statuses[action.Status]++
		assert.Empty(t, action.Error)
	}
	assert.Equal(t, 4, statuses[domain.ActionRepaired])
	assert.Equal(t, 1, statuses[domain.ActionNoop])

	var repaired obligationdomain.Obligation
	require.NoError(t, env.fx.DB.Take(&repaired, staleRow.ID).Error)
	assert.Equal(t, "400.00", repaired.Amount.StringFixed(2))
	assert.True(t, storetest.Date(2026, time.February, 20).Equal(repaired.DueDate.UTC()))

	var bareCommission commissiondomain.Commission
	require.NoError(t, env.fx.DB.Where("sale_id = ?", bare.ID).Take(&bareCommission).Error)
	assert.Equal(t, "2026-02", bareCommission.MonthRef)

	again, err := env.svc.DetectInconsistencies(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)
}
