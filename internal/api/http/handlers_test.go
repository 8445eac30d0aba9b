package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpapi "booking-reconciler/internal/api/http"
	"booking-reconciler/internal/balance"
	"booking-reconciler/internal/domain"
	"booking-reconciler/internal/jobs"
	"booking-reconciler/internal/lock"
	"booking-reconciler/internal/repository/memory"
	"booking-reconciler/internal/security"
	"booking-reconciler/internal/service"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type apiHarness struct {
	store   *memory.Store
	tokens  security.TokenManager
	handler http.Handler
	admin   string
	health  error
}

func newAPIHarness(t *testing.T, cronHash string, rpm, burst int) *apiHarness {
	t.Helper()
	store := memory.NewStore()
	repos := store.Repositories()
	policy := balance.DefaultPolicy()
	alerts := service.NewAlertService(repos.Alerts, nil, domain.SeverityCritical)
	recon := service.NewReconciliationService(repos.Ledger, repos.Bookings, repos.ValidationLogs, alerts, policy)
	payouts := service.NewPayoutService(repos.Payouts, policy)
	job := jobs.NewReconciliationJob(repos.Bookings, repos.Runs, recon, lock.NewLocalLocker(), jobs.ReconciliationJobConfig{})

	h := &apiHarness{store: store, tokens: security.NewTokenManager(testSecret)}
	handler := httpapi.NewHandler(recon, alerts, payouts, repos.Runs, job, func(ctx context.Context) error { return h.health })
	auth := httpapi.NewAuthMiddleware(h.tokens, security.NewCronVerifier(cronHash))
	h.handler = httpapi.NewRouter(handler, auth, httpapi.RouterConfig{
		AllowedOrigins:    []string{"https://ops.example.com"},
		RequestsPerMinute: rpm,
		Burst:             burst,
	})

	token, err := h.tokens.GenerateAccessToken("admin-1", "ops@example.com", []string{security.RoleAdmin}, time.Hour)
	require.NoError(t, err)
	h.admin = token
	return h
}

// seed adds a $1000 booking paid down by $600, stored at the given balance.
func (h *apiHarness) seed(id, stored string) {
	h.store.PutBooking(domain.Booking{ID: id, TotalAmount: domain.MustMoney("1000"), BalanceAmount: domain.MustMoney(stored)})
	h.store.AddMovement(domain.LedgerMovement{
		BookingID: id,
		Kind:      domain.MovementKindPayment,
		Amount:    domain.MustMoney("600"),
		Status:    domain.MovementStatusCompleted,
	})
}

func (h *apiHarness) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *apiHarness) asAdmin(method, path, body string) *httptest.ResponseRecorder {
	return h.do(method, path, body, map[string]string{"Authorization": "Bearer " + h.admin})
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestRouter_Auth(t *testing.T) {
	hash, err := security.HashCronSecret("cron-secret")
	require.NoError(t, err)
	h := newAPIHarness(t, hash, 600, 100)
	h.seed("bk-1", "400")

	t.Run("HealthIsPublic", func(t *testing.T) {
		rec := h.do("GET", "/healthz", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", decode[httpapi.HealthResponse](t, rec).Status)
	})

	t.Run("HealthReportsStoreFailure", func(t *testing.T) {
		h.health = errors.New("connection refused")
		defer func() { h.health = nil }()
		rec := h.do("GET", "/healthz", "", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("MissingToken", func(t *testing.T) {
		rec := h.do("GET", "/api/v1/reconciliation/bookings/bk-1/validation", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("InvalidToken", func(t *testing.T) {
		rec := h.do("GET", "/api/v1/reconciliation/bookings/bk-1/validation", "", map[string]string{"Authorization": "Bearer nope"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("NonAdminForbidden", func(t *testing.T) {
		token, err := h.tokens.GenerateAccessToken("user-1", "", []string{"member"}, time.Hour)
		require.NoError(t, err)
		rec := h.do("GET", "/api/v1/reconciliation/bookings/bk-1/validation", "", map[string]string{"Authorization": "Bearer " + token})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("CronSecretAccepted", func(t *testing.T) {
		rec := h.do("POST", "/api/v1/cron/reconcile-balances", "", map[string]string{"X-Cron-Secret": "cron-secret"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		report := decode[domain.ReconciliationRunReport](t, rec)
		assert.Equal(t, domain.TriggeredByCron, report.TriggeredBy)
		assert.Equal(t, 1, report.TotalValidated)
	})

	t.Run("CronSecretAsBearer", func(t *testing.T) {
		rec := h.do("POST", "/api/v1/cron/reconcile-balances", "", map[string]string{"Authorization": "Bearer cron-secret"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, domain.TriggeredByCron, decode[domain.ReconciliationRunReport](t, rec).TriggeredBy)
	})

	t.Run("CronBearerNotValidOnAdminRoutes", func(t *testing.T) {
		rec := h.do("GET", "/api/v1/reconciliation/logs", "", map[string]string{"Authorization": "Bearer cron-secret"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("CronSecretRejected", func(t *testing.T) {
		rec := h.do("POST", "/api/v1/cron/reconcile-balances", "", map[string]string{"X-Cron-Secret": "guess"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("CronSecretNotValidOnAdminRoutes", func(t *testing.T) {
		rec := h.do("POST", "/api/v1/reconciliation/reports", "", map[string]string{"X-Cron-Secret": "cron-secret"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("AdminMayTriggerCronRoute", func(t *testing.T) {
		rec := h.asAdmin("POST", "/api/v1/cron/reconcile-balances", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "admin-1", decode[domain.ReconciliationRunReport](t, rec).TriggeredBy)
	})
}

func TestRouter_RateLimit(t *testing.T) {
	h := newAPIHarness(t, "", 60, 2)

	assert.Equal(t, http.StatusOK, h.do("GET", "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusOK, h.do("GET", "/healthz", "", nil).Code)
	rec := h.do("GET", "/healthz", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestRouter_CORS(t *testing.T) {
	h := newAPIHarness(t, "", 600, 100)

	rec := h.do("OPTIONS", "/api/v1/reconciliation/logs", "", map[string]string{
		"Origin":                        "https://ops.example.com",
		"Access-Control-Request-Method": "GET",
	})
	assert.Equal(t, "https://ops.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHandler_Bookings(t *testing.T) {
	h := newAPIHarness(t, "", 600, 100)
	h.seed("bk-ok", "400")
	h.seed("bk-drift", "950")

	t.Run("ValidateSuccess", func(t *testing.T) {
		rec := h.asAdmin("GET", "/api/v1/reconciliation/bookings/bk-drift/validation", "")
		require.Equal(t, http.StatusOK, rec.Code)
		res := decode[domain.BalanceValidationResult](t, rec)
		assert.False(t, res.IsValid)
		assert.True(t, res.Discrepancy.Equal(domain.MustMoney("550")))
		assert.Equal(t, domain.SeverityCritical, res.Severity)
		assert.Empty(t, h.store.Logs())
	})

	t.Run("ValidateNotFound", func(t *testing.T) {
		rec := h.asAdmin("GET", "/api/v1/reconciliation/bookings/missing/validation", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("ReconcileEscalates", func(t *testing.T) {
		rec := h.asAdmin("POST", "/api/v1/reconciliation/bookings/bk-drift/reconcile", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		out := decode[service.Outcome](t, rec)
		assert.False(t, out.Corrected)
		assert.True(t, out.AlertRaised)
		require.NotNil(t, out.Incident)
		assert.Equal(t, domain.IncidentStatusOpen, out.Incident.Status)
	})

	t.Run("ReconcileWithThresholdOverride", func(t *testing.T) {
		h.seed("bk-small", "405")
		rec := h.asAdmin("POST", "/api/v1/reconciliation/bookings/bk-small/reconcile", `{"auto_correct_threshold":"10"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.True(t, decode[service.Outcome](t, rec).Corrected)
	})

	t.Run("ReconcileNegativeThreshold", func(t *testing.T) {
		rec := h.asAdmin("POST", "/api/v1/reconciliation/bookings/bk-ok/reconcile", `{"auto_correct_threshold":"-1"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "auto_correct_threshold", decode[httpapi.ErrorResponse](t, rec).Field)
	})

	t.Run("ReconcileUnknownField", func(t *testing.T) {
		rec := h.asAdmin("POST", "/api/v1/reconciliation/bookings/bk-ok/reconcile", `{"threshold":"1"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("ListLogs", func(t *testing.T) {
		rec := h.asAdmin("GET", "/api/v1/reconciliation/logs?min_discrepancy=100", "")
		require.Equal(t, http.StatusOK, rec.Code)
		logs := decode[[]domain.ValidationLogEntry](t, rec)
		require.Len(t, logs, 1)
		assert.Equal(t, "bk-drift", logs[0].BookingID)
	})

	t.Run("ListLogsBadParam", func(t *testing.T) {
		rec := h.asAdmin("GET", "/api/v1/reconciliation/logs?limit=ten", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "limit", decode[httpapi.ErrorResponse](t, rec).Field)
	})
}

func TestHandler_Reports(t *testing.T) {
	h := newAPIHarness(t, "", 600, 100)
	h.seed("bk-1", "400")
	h.seed("bk-2", "402")

	t.Run("LatestBeforeAnyRun", func(t *testing.T) {
		rec := h.asAdmin("GET", "/api/v1/reconciliation/reports/latest", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("Generate", func(t *testing.T) {
		rec := h.asAdmin("POST", "/api/v1/reconciliation/reports", `{"limit":10,"auto_correct_threshold":"5"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		report := decode[domain.ReconciliationRunReport](t, rec)
		assert.Equal(t, domain.RunStatusSucceeded, report.Status)
		assert.Equal(t, 2, report.TotalValidated)
		assert.Equal(t, 1, report.Discrepancies)
		assert.Equal(t, 1, report.AutoCorrected)
		assert.Equal(t, "admin-1", report.TriggeredBy)
	})

	t.Run("GenerateLimitTooLarge", func(t *testing.T) {
		rec := h.asAdmin("POST", "/api/v1/reconciliation/reports", `{"limit":20000}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "lte", decode[httpapi.ErrorResponse](t, rec).Fields["limit"])
	})

	t.Run("LatestAndList", func(t *testing.T) {
		rec := h.asAdmin("GET", "/api/v1/reconciliation/reports/latest", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 2, decode[domain.ReconciliationRunReport](t, rec).TotalValidated)

		rec = h.asAdmin("GET", "/api/v1/reconciliation/reports?limit=5", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode[[]domain.ReconciliationRunReport](t, rec), 1)
	})

	t.Run("ListLimitOutOfRange", func(t *testing.T) {
		rec := h.asAdmin("GET", "/api/v1/reconciliation/reports?limit=0", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandler_Alerts(t *testing.T) {
	h := newAPIHarness(t, "", 600, 100)
	h.seed("bk-crit", "950")
	h.seed("bk-med", "405")

	for _, id := range []string{"bk-crit", "bk-med"} {
		rec := h.asAdmin("POST", "/api/v1/reconciliation/bookings/"+id+"/reconcile", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}

	var critID string
	t.Run("List", func(t *testing.T) {
		rec := h.asAdmin("GET", "/api/v1/reconciliation/alerts?hours_back=24&min_severity=critical", "")
		require.Equal(t, http.StatusOK, rec.Code)
		alerts := decode[[]domain.AlertIncident](t, rec)
		require.Len(t, alerts, 1)
		assert.Equal(t, "bk-crit", alerts[0].BookingID)
		critID = alerts[0].ID
	})

	t.Run("ListBadSeverity", func(t *testing.T) {
		rec := h.asAdmin("GET", "/api/v1/reconciliation/alerts?min_severity=urgent", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Summary", func(t *testing.T) {
		rec := h.asAdmin("GET", "/api/v1/reconciliation/alerts/summary", "")
		require.Equal(t, http.StatusOK, rec.Code)
		summary := decode[domain.AlertSummary](t, rec)
		assert.Equal(t, 1, summary.Critical)
		assert.Equal(t, 1, summary.Medium)
	})

	t.Run("AcknowledgeThenResolve", func(t *testing.T) {
		rec := h.asAdmin("POST", "/api/v1/reconciliation/alerts/"+critID+"/acknowledge", "")
		require.Equal(t, http.StatusOK, rec.Code)
		inc := decode[domain.AlertIncident](t, rec)
		assert.Equal(t, domain.IncidentStatusAcknowledged, inc.Status)
		require.NotNil(t, inc.AcknowledgedBy)
		assert.Equal(t, "admin-1", *inc.AcknowledgedBy)

		rec = h.asAdmin("POST", "/api/v1/reconciliation/alerts/"+critID+"/acknowledge", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "acknowledged", decode[httpapi.ErrorResponse](t, rec).CurrentStatus)

		rec = h.asAdmin("POST", "/api/v1/reconciliation/alerts/"+critID+"/resolve", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, domain.IncidentStatusResolved, decode[domain.AlertIncident](t, rec).Status)

		rec = h.asAdmin("POST", "/api/v1/reconciliation/alerts/"+critID+"/resolve", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "resolved", decode[httpapi.ErrorResponse](t, rec).CurrentStatus)
	})

	t.Run("UnknownIncident", func(t *testing.T) {
		rec := h.asAdmin("POST", "/api/v1/reconciliation/alerts/nope/resolve", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandler_Payouts(t *testing.T) {
	h := newAPIHarness(t, "", 600, 100)

	t.Run("Record", func(t *testing.T) {
		rec := h.asAdmin("POST", "/api/v1/reconciliation/payouts", `{"payout_id":"po_123","amount":"1250.50","currency":"usd","gateway_status":"paid"}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		p := decode[domain.PayoutReconciliation](t, rec)
		assert.Equal(t, domain.PayoutStatusPending, p.Status)
		assert.Equal(t, "USD", p.Currency)
	})

	t.Run("RecordInvalid", func(t *testing.T) {
		rec := h.asAdmin("POST", "/api/v1/reconciliation/payouts", `{"amount":"10","currency":"dollars"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		fields := decode[httpapi.ErrorResponse](t, rec).Fields
		assert.Equal(t, "required", fields["payout_id"])
		assert.Equal(t, "len", fields["currency"])
	})

	t.Run("UpdateToDiscrepancy", func(t *testing.T) {
		rec := h.asAdmin("PATCH", "/api/v1/reconciliation/payouts/po_123", `{"status":"discrepancy","discrepancy_amount":"12.5","notes":"short"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		p := decode[domain.PayoutReconciliation](t, rec)
		assert.Equal(t, domain.PayoutStatusDiscrepancy, p.Status)
		assert.Equal(t, domain.SeverityHigh, p.Details.Severity)
		require.NotNil(t, p.ReconciledBy)
		assert.Equal(t, "admin-1", *p.ReconciledBy)
	})

	t.Run("UpdateBadStatus", func(t *testing.T) {
		rec := h.asAdmin("PATCH", "/api/v1/reconciliation/payouts/po_123", `{"status":"done"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "oneof", decode[httpapi.ErrorResponse](t, rec).Fields["status"])
	})

	t.Run("UpdateUnknown", func(t *testing.T) {
		rec := h.asAdmin("PATCH", "/api/v1/reconciliation/payouts/po_missing", `{"status":"reconciled"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("List", func(t *testing.T) {
		rec := h.asAdmin("GET", "/api/v1/reconciliation/payouts?status=discrepancy", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode[[]domain.PayoutReconciliation](t, rec), 1)

		rec = h.asAdmin("GET", "/api/v1/reconciliation/payouts?status=pending", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, decode[[]domain.PayoutReconciliation](t, rec))

		rec = h.asAdmin("GET", "/api/v1/reconciliation/payouts?status=weird", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
