package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/shopspring/decimal"
	agencydomain "github.com/smallbiznis/obligo/internal/agency/domain"
	agencyrepository "github.com/smallbiznis/obligo/internal/agency/repository"
	auditrepository "github.com/smallbiznis/obligo/internal/audit/repository"
	auditservice "github.com/smallbiznis/obligo/internal/audit/service"
	"github.com/smallbiznis/obligo/internal/authorization"
	"github.com/smallbiznis/obligo/internal/clock"
	commissionrepository "github.com/smallbiznis/obligo/internal/commission/repository"
	commissionservice "github.com/smallbiznis/obligo/internal/commission/service"
	commissionsyncservice "github.com/smallbiznis/obligo/internal/commissionsync/service"
	"github.com/smallbiznis/obligo/internal/config"
	lifecycleservice "github.com/smallbiznis/obligo/internal/lifecycle/service"
	obligationdomain "github.com/smallbiznis/obligo/internal/obligation/domain"
	obligationrepository "github.com/smallbiznis/obligo/internal/obligation/repository"
	obligationservice "github.com/smallbiznis/obligo/internal/obligation/service"
	"github.com/smallbiznis/obligo/internal/observability"
	reconcileservice "github.com/smallbiznis/obligo/internal/reconcile/service"
	recurrenceservice "github.com/smallbiznis/obligo/internal/recurrence/service"
	"github.com/smallbiznis/obligo/internal/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

const (
	testAdminToken  = "admin-secret"
	testViewerToken = "viewer-secret"
)

type testEnv struct {
	fx     *storetest.Fixture
	server *Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	fixture := storetest.New(t)
	log := zaptest.NewLogger(t)
	fakeClock := clock.NewFakeClock(storetest.Date(2026, time.March, 15))
	cfg := storetest.Engine().Get()
	cfg.Recurrence.HorizonMonths = 2
	engine := config.NewStaticEngineConfig(cfg)

	agencyRepo := agencyrepository.Provide()
	obligationRepo := obligationrepository.Provide()
	commissionRepo := commissionrepository.Provide()

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    fixture.DB,
		Log:   log,
		GenID: fixture.Node,
		Repo:  auditrepository.Provide(),
	})
	adapter, err := gormadapter.NewAdapterByDB(fixture.DB)
	require.NoError(t, err)
	enforcer, err := authorization.NewEnforcer(adapter)
	require.NoError(t, err)
	authzSvc := authorization.NewService(authorization.Params{Log: log, Enforcer: enforcer})

	obligationSvc := obligationservice.New(obligationservice.Params{
		DB: fixture.DB, Log: log, GenID: fixture.Node, Clock: fakeClock, Engine: engine,
		Repo: obligationRepo, CommissionRepo: commissionRepo, AuditSvc: auditSvc,
	})
	commissionSvc := commissionservice.New(commissionservice.Params{
		DB: fixture.DB, Log: log, GenID: fixture.Node, Clock: fakeClock, Engine: engine,
		Repo: commissionRepo, AgencyRepo: agencyRepo, ObligationRepo: obligationRepo, AuditSvc: auditSvc,
	})
	recurrenceSvc := recurrenceservice.New(recurrenceservice.Params{
		DB: fixture.DB, Log: log, GenID: fixture.Node, Clock: fakeClock, Engine: engine,
		AgencyRepo: agencyRepo, ObligationRepo: obligationRepo, CommissionRepo: commissionRepo,
		CommissionSvc: commissionSvc, AuditSvc: auditSvc,
	})
	reconcileSvc := reconcileservice.New(reconcileservice.Params{
		DB: fixture.DB, Log: log, Clock: fakeClock, Engine: engine,
		AgencyRepo: agencyRepo, ObligationRepo: obligationRepo, CommissionRepo: commissionRepo,
		ObligationSvc: obligationSvc, CommissionSvc: commissionSvc, AuditSvc: auditSvc,
	})
	syncSvc := commissionsyncservice.New(commissionsyncservice.Params{
		DB: fixture.DB, Log: log, Engine: engine,
		AgencyRepo: agencyRepo, CommissionRepo: commissionRepo, CommissionSvc: commissionSvc,
	})
	lifecycleSvc := lifecycleservice.New(lifecycleservice.Params{
		DB: fixture.DB, Log: log, AgencyRepo: agencyRepo,
		ObligationSvc: obligationSvc, CommissionSvc: commissionSvc, RecurrenceSvc: recurrenceSvc,
	})

	srv := NewServer(ServerParams{
		Gin:           NewEngine(observability.Config{Environment: "test"}, log, nil),
		Cfg:           config.Config{AdminToken: testAdminToken, ViewerToken: testViewerToken},
		DB:            fixture.DB,
		AgencyRepo:    agencyRepo,
		AuthzSvc:      authzSvc,
		AuditSvc:      auditSvc,
		ObligationSvc: obligationSvc,
		CommissionSvc: commissionSvc,
		RecurrenceSvc: recurrenceSvc,
		ReconcileSvc:  reconcileSvc,
		SyncSvc:       syncSvc,
		LifecycleSvc:  lifecycleSvc,
	})
	return &testEnv{fx: fixture, server: srv}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.Engine().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func errorType(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, rec)
	payload, ok := body["error"].(map[string]any)
	require.True(t, ok, "missing error payload: %s", rec.Body.String())
	return payload["type"].(string)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/commissions/sync", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", errorType(t, rec))

	rec = env.do(t, http.MethodPost, "/v1/commissions/sync", "wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestViewerIsReadOnly(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/reconciliation/inconsistencies", testViewerToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/reconciliation/orphans/sweep", testViewerToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", errorType(t, rec))
}

func TestGenerateAndCancelFutureAccounts(t *testing.T) {
	env := newTestEnv(t)

	seller := env.fx.Seller("Ana", "5")
	contract := env.fx.Contract(agencydomain.Contract{
		Value:     decimal.RequireFromString("2000"),
		StartDate: storetest.Date(2026, time.January, 1),
		SellerID:  &seller.ID,
	})
	path := "/v1/contracts/" + contract.ID.String() + "/future-accounts"

	rec := env.do(t, http.MethodPost, path, testAdminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decode(t, rec)["data"].(map[string]any)
	assert.Len(t, data["obligations"], 2)
	assert.EqualValues(t, 2, data["commissions_created"])

	rec = env.do(t, http.MethodDelete, path, testAdminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data = decode(t, rec)["data"].(map[string]any)
	assert.EqualValues(t, 2, data["cancelled"])
}

func TestGenerateFutureAccountsErrors(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/contracts/not-an-id/future-accounts", testAdminToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", errorType(t, rec))

	rec = env.do(t, http.MethodPost, "/v1/contracts/12345/future-accounts", testAdminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorType(t, rec))
}

func TestProcessDueRecurrences(t *testing.T) {
	env := newTestEnv(t)
	env.fx.Template("1500", storetest.Date(2026, time.March, 5), obligationdomain.FrequencyMonthly, nil)

	rec := env.do(t, http.MethodPost, "/v1/recurrences/process", testAdminToken, map[string]any{
		"lookahead":    3,
		"target_month": "2026-04",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decode(t, rec)["data"].(map[string]any)
	assert.EqualValues(t, 1, data["created"])

	rec = env.do(t, http.MethodPost, "/v1/recurrences/process", testAdminToken, map[string]any{"lookahead": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/recurrences/process", testAdminToken, map[string]any{"target_month": "April"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateAndDeleteCommission(t *testing.T) {
	env := newTestEnv(t)
	seller := env.fx.Seller("Ana", "10")
	sale := env.fx.Sale(agencydomain.Sale{Value: decimal.RequireFromString("800"), SellerID: &seller.ID})

	body := map[string]any{
		"origin_type":  "sale",
		"sale_id":      sale.ID.String(),
		"seller_id":    seller.ID.String(),
		"origin_value": "800",
	}
	rec := env.do(t, http.MethodPost, "/v1/commissions", testAdminToken, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	data := decode(t, rec)["data"].(map[string]any)
	commission := data["commission"].(map[string]any)
	assert.Equal(t, "80", commission["amount"])

	rec = env.do(t, http.MethodPost, "/v1/commissions", testAdminToken, body)
	assert.Equal(t, http.StatusOK, rec.Code)

	id := commission["id"].(string)
	rec = env.do(t, http.MethodDelete, "/v1/commissions/"+id, testAdminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/v1/commissions/"+id, testAdminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateCommissionValidation(t *testing.T) {
	env := newTestEnv(t)
	sale := env.fx.Sale(agencydomain.Sale{Value: decimal.RequireFromString("800")})

	rec := env.do(t, http.MethodPost, "/v1/commissions", testAdminToken, map[string]any{
		"origin_type":  "sale",
		"sale_id":      sale.ID.String(),
		"origin_value": "800",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decode(t, rec)["error"].(map[string]any)
	errs := payload["errors"].([]any)
	require.Len(t, errs, 1)
	assert.Equal(t, "seller_required", errs[0].(map[string]any)["code"])

	rec = env.do(t, http.MethodPost, "/v1/commissions", testAdminToken, map[string]any{"origin_type": "invoice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteObligationRespectsProtection(t *testing.T) {
	env := newTestEnv(t)
	sale := env.fx.Sale(agencydomain.Sale{Value: decimal.RequireFromString("100")})
	protected := env.fx.Obligation(obligationdomain.Obligation{
		OriginType: obligationdomain.OriginSale,
		OriginID:   &sale.ID,
		Amount:     decimal.RequireFromString("100"),
		DueDate:    storetest.Date(2026, time.March, 20),
	})
	loose := env.fx.Obligation(obligationdomain.Obligation{
		Amount:  decimal.RequireFromString("50"),
		DueDate: storetest.Date(2026, time.March, 20),
	})

	rec := env.do(t, http.MethodDelete, "/v1/obligations/"+protected.ID.String(), testAdminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, false, data["deleted"])
	assert.NotEmpty(t, data["reason"])

	rec = env.do(t, http.MethodDelete, "/v1/obligations/"+loose.ID.String(), testAdminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data = decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, true, data["deleted"])

	rec = env.do(t, http.MethodGet, "/v1/obligations/"+loose.ID.String(), testAdminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAuditLogs(t *testing.T) {
	env := newTestEnv(t)
	obligation := env.fx.Obligation(obligationdomain.Obligation{
		Amount:  decimal.RequireFromString("50"),
		DueDate: storetest.Date(2026, time.March, 20),
	})
	rec := env.do(t, http.MethodDelete, "/v1/obligations/"+obligation.ID.String(), testAdminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/v1/audit-logs?action=obligation.deleted", testViewerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	logs := decode(t, rec)["data"].([]any)
	require.Len(t, logs, 1)
	entry := logs[0].(map[string]any)
	assert.Equal(t, obligation.ID.String(), entry["target_id"])
	assert.Equal(t, "operator", entry["actor_type"])
	assert.Equal(t, "admin", entry["actor_id"])

	rec = env.do(t, http.MethodGet, "/v1/audit-logs?start_at=yesterday", testViewerToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", errorType(t, rec))
}

func TestConfirmObligationTwiceConflicts(t *testing.T) {
	env := newTestEnv(t)
	obligation := env.fx.Obligation(obligationdomain.Obligation{
		Amount:  decimal.RequireFromString("50"),
		DueDate: storetest.Date(2026, time.March, 20),
	})
	path := "/v1/obligations/" + obligation.ID.String() + "/confirm"

	rec := env.do(t, http.MethodPost, path, testAdminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, path, testAdminToken, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", errorType(t, rec))
}

func TestSweepDryRunAndSync(t *testing.T) {
	env := newTestEnv(t)
	seller := env.fx.Seller("Ana", "5")
	env.fx.Sale(agencydomain.Sale{Value: decimal.RequireFromString("1000"), SellerID: &seller.ID})

	rec := env.do(t, http.MethodPost, "/v1/reconciliation/orphans/sweep?dry_run=true", testAdminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, true, data["dry_run"])
	assert.NotEmpty(t, data["run_id"])

	rec = env.do(t, http.MethodPost, "/v1/reconciliation/orphans/sweep?dry_run=maybe", testAdminToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/commissions/sync", testAdminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data = decode(t, rec)["data"].(map[string]any)
	assert.EqualValues(t, 1, data["created"])
}

func TestDetectAndRepairInconsistencies(t *testing.T) {
	env := newTestEnv(t)
	seller := env.fx.Seller("Ana", "5")
	env.fx.Sale(agencydomain.Sale{Value: decimal.RequireFromString("1000"), SellerID: &seller.ID})

	rec := env.do(t, http.MethodGet, "/v1/reconciliation/inconsistencies", testAdminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decode(t, rec)["data"], 2)

	rec = env.do(t, http.MethodPost, "/v1/reconciliation/inconsistencies/repair", testAdminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/v1/reconciliation/inconsistencies", testAdminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode(t, rec)["data"])
}

func TestLifecycleHooks(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/hooks/sales/validate", testAdminToken, map[string]any{"status": "closed"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	seller := env.fx.Seller("Ana", "5")
	rec = env.do(t, http.MethodPost, "/v1/hooks/contracts/validate", testAdminToken, map[string]any{
		"kind":      "recurring",
		"status":    "active",
		"seller_id": seller.ID.String(),
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	sale := env.fx.Sale(agencydomain.Sale{Value: decimal.RequireFromString("1000"), SellerID: &seller.ID})
	rec = env.do(t, http.MethodPost, "/v1/hooks/sales/"+sale.ID.String()+"/saved", testAdminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, true, data["receivable_created"])
	assert.Equal(t, true, data["commission_created"])
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/nope", testAdminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMapErrorHidesInternalDetails(t *testing.T) {
	status, payload := mapError(assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal_error", payload.Type)
	assert.Equal(t, "internal server error", payload.Message)
}

func TestMapErrorStoreSentinels(t *testing.T) {
	status, payload := mapError(fmt.Errorf("insert commission: %w", gorm.ErrDuplicatedKey))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "conflict", payload.Type)

	status, _ = mapError(fmt.Errorf("load: %w", gorm.ErrRecordNotFound))
	assert.Equal(t, http.StatusNotFound, status)
}
