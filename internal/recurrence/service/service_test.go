package service

import (
	"testing"
	"time"

	agencyrepository "github.com/smallbiznis/obligo/internal/agency/repository"
	"github.com/smallbiznis/obligo/internal/clock"
	commissionrepository "github.com/smallbiznis/obligo/internal/commission/repository"
	commissionservice "github.com/smallbiznis/obligo/internal/commission/service"
	"github.com/smallbiznis/obligo/internal/config"
	obligationdomain "github.com/smallbiznis/obligo/internal/obligation/domain"
	obligationrepository "github.com/smallbiznis/obligo/internal/obligation/repository"
	"github.com/smallbiznis/obligo/internal/recurrence/domain"
	"github.com/smallbiznis/obligo/internal/storetest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type testEnv struct {
	fx    *storetest.Fixture
	clock *clock.FakeClock
	svc   domain.Service
}

func newTestEnv(t *testing.T, now time.Time) *testEnv {
	t.Helper()

	fixture := storetest.New(t)
	log := zaptest.NewLogger(t)
	fakeClock := clock.NewFakeClock(now)
	cfg := storetest.Engine().Get()
	cfg.Recurrence.HorizonMonths = 3
	engine := config.NewStaticEngineConfig(cfg)

	agencyRepo := agencyrepository.Provide()
	obligationRepo := obligationrepository.Provide()
	commissionRepo := commissionrepository.Provide()
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
		GenID:          fixture.Node,
		Clock:          fakeClock,
		Engine:         engine,
		AgencyRepo:     agencyRepo,
		ObligationRepo: obligationRepo,
		CommissionRepo: commissionRepo,
		CommissionSvc:  commissionSvc,
	})
	return &testEnv{fx: fixture, clock: fakeClock, svc: svc}
}

func (e *testEnv) obligations(t *testing.T, originType obligationdomain.OriginType) []obligationdomain.Obligation {
	t.Helper()
	var rows []obligationdomain.Obligation
	require.NoError(t, e.fx.DB.Where("origin_type = ?", originType).Order("due_date asc").Find(&rows).Error)
	return rows
}
