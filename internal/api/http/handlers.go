package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"booking-reconciler/internal/domain"
	"booking-reconciler/internal/jobs"
	"booking-reconciler/internal/repository"
	"booking-reconciler/internal/service"
)

const (
	defaultReportLimit = 20
	defaultHoursBack   = 24
)

// RunTrigger starts a batch reconciliation run.
type RunTrigger interface {
	Run(ctx context.Context, opts jobs.RunOptions) (*domain.ReconciliationRunReport, error)
}

// HealthCheck reports whether the backing store is reachable.
type HealthCheck func(ctx context.Context) error

// Handler serves the reconciliation admin API
type Handler struct {
	recon    service.ReconciliationService
	alerts   service.AlertService
	payouts  service.PayoutService
	runs     repository.RunReportRepository
	trigger  RunTrigger
	health   HealthCheck
	validate *validator.Validate
}

func NewHandler(
	recon service.ReconciliationService,
	alerts service.AlertService,
	payouts service.PayoutService,
	runs repository.RunReportRepository,
	trigger RunTrigger,
	health HealthCheck,
) *Handler {
	return &Handler{
		recon:    recon,
		alerts:   alerts,
		payouts:  payouts,
		runs:     runs,
		trigger:  trigger,
		health:   health,
		validate: newValidator(),
	}
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError(name, "%q is not an integer", raw)
	}
	return n, nil
}

func queryDecimal(r *http.Request, name string) (decimal.Decimal, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, domain.NewValidationError(name, "%q is not a decimal", raw)
	}
	return d, nil
}

func actorID(r *http.Request) string {
	c, _ := CallerFromContext(r.Context())
	return c.ActorID
}

// Health reports store reachability.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "store unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// ValidateBooking computes a booking's balance without changing anything.
// GET /api/v1/reconciliation/bookings/{id}/validation
func (h *Handler) ValidateBooking(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	result, err := h.recon.ValidateBooking(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, "unable to validate booking", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ReconcileBooking validates and then auto-corrects or escalates.
// POST /api/v1/reconciliation/bookings/{id}/reconcile
func (h *Handler) ReconcileBooking(w http.ResponseWriter, r *http.Request) {
	var req ReconcileBookingRequest
	if err := h.bind(w, r, &req); err != nil {
		writeBindError(w, err)
		return
	}
	if req.AutoCorrectThreshold != nil && req.AutoCorrectThreshold.IsNegative() {
		writeServiceError(w, r, "", domain.NewValidationError("auto_correct_threshold", "must not be negative"))
		return
	}

	id := mux.Vars(r)["id"]
	out, err := h.recon.ReconcileBooking(r.Context(), id, service.ReconcileOptions{AutoCorrectThreshold: req.AutoCorrectThreshold})
	if err != nil {
		writeServiceError(w, r, "unable to reconcile booking", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ListLogs returns recent validation log entries.
// GET /api/v1/reconciliation/logs
func (h *Handler) ListLogs(w http.ResponseWriter, r *http.Request) {
	var q service.LogQuery
	var err error
	if q.MinDiscrepancy, err = queryDecimal(r, "min_discrepancy"); err != nil {
		writeServiceError(w, r, "", err)
		return
	}
	if q.Limit, err = queryInt(r, "limit", 0); err != nil {
		writeServiceError(w, r, "", err)
		return
	}
	if q.Offset, err = queryInt(r, "offset", 0); err != nil {
		writeServiceError(w, r, "", err)
		return
	}
	if q.HoursBack, err = queryInt(r, "hours_back", 0); err != nil {
		writeServiceError(w, r, "", err)
		return
	}

	logs, err := h.recon.RecentLogs(r.Context(), q)
	if err != nil {
		writeServiceError(w, r, "failed to list validation logs", err)
		return
	}
	if logs == nil {
		logs = []domain.ValidationLogEntry{}
	}
	writeJSON(w, http.StatusOK, logs)
}

// ListReports returns recent run reports, newest first.
// GET /api/v1/reconciliation/reports
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultReportLimit)
	if err != nil {
		writeServiceError(w, r, "", err)
		return
	}
	if limit <= 0 || limit > 100 {
		writeServiceError(w, r, "", domain.NewValidationError("limit", "must be between 1 and 100"))
		return
	}
	reports, err := h.runs.List(r.Context(), limit)
	if err != nil {
		writeServiceError(w, r, "failed to list reports", err)
		return
	}
	if reports == nil {
		reports = []domain.ReconciliationRunReport{}
	}
	writeJSON(w, http.StatusOK, reports)
}

// LatestReport returns the most recent run report.
// GET /api/v1/reconciliation/reports/latest
func (h *Handler) LatestReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.runs.Latest(r.Context())
	if err != nil {
		writeServiceError(w, r, "failed to load latest report", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GenerateReport runs a batch reconciliation now and returns its report.
// POST /api/v1/reconciliation/reports
func (h *Handler) GenerateReport(w http.ResponseWriter, r *http.Request) {
	var req GenerateReportRequest
	if err := h.bind(w, r, &req); err != nil {
		writeBindError(w, err)
		return
	}
	opts := jobs.RunOptions{
		Limit:                req.Limit,
		AutoCorrectThreshold: req.AutoCorrectThreshold,
		TriggeredBy:          actorID(r),
	}
	if req.MinDiscrepancy != nil {
		opts.MinDiscrepancy = *req.MinDiscrepancy
	}
	h.runBatch(w, r, opts)
}

// CronReconcileBalances is the parameterless scheduler trigger.
// POST /api/v1/cron/reconcile-balances
func (h *Handler) CronReconcileBalances(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	h.runBatch(w, r, jobs.RunOptions{TriggeredBy: caller.TriggeredBy()})
}

func (h *Handler) runBatch(w http.ResponseWriter, r *http.Request, opts jobs.RunOptions) {
	// the run outlives a caller that hangs up; the job bounds itself
	report, err := h.trigger.Run(context.WithoutCancel(r.Context()), opts)
	if err != nil {
		writeServiceError(w, r, "reconciliation run failed", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ListAlerts returns incidents in a window at or above a severity.
// GET /api/v1/reconciliation/alerts
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	hours, err := queryInt(r, "hours_back", defaultHoursBack)
	if err != nil {
		writeServiceError(w, r, "", err)
		return
	}
	minSeverity := domain.SeverityLow
	if raw := r.URL.Query().Get("min_severity"); raw != "" {
		if minSeverity, err = domain.ParseSeverity(raw); err != nil {
			writeServiceError(w, r, "", err)
			return
		}
	}

	alerts, err := h.alerts.ListAlerts(r.Context(), hours, minSeverity)
	if err != nil {
		writeServiceError(w, r, "failed to list alerts", err)
		return
	}
	if alerts == nil {
		alerts = []domain.AlertIncident{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

// AlertSummary returns incident counts by severity.
// GET /api/v1/reconciliation/alerts/summary
func (h *Handler) AlertSummary(w http.ResponseWriter, r *http.Request) {
	hours, err := queryInt(r, "hours_back", defaultHoursBack)
	if err != nil {
		writeServiceError(w, r, "", err)
		return
	}
	summary, err := h.alerts.Summarize(r.Context(), hours)
	if err != nil {
		writeServiceError(w, r, "failed to summarize alerts", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// AcknowledgeAlert moves an open incident to acknowledged.
// POST /api/v1/reconciliation/alerts/{id}/acknowledge
func (h *Handler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	incident, err := h.alerts.Acknowledge(r.Context(), mux.Vars(r)["id"], actorID(r))
	if err != nil {
		writeServiceError(w, r, "failed to acknowledge alert", err)
		return
	}
	writeJSON(w, http.StatusOK, incident)
}

// ResolveAlert closes an open or acknowledged incident.
// POST /api/v1/reconciliation/alerts/{id}/resolve
func (h *Handler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	incident, err := h.alerts.Resolve(r.Context(), mux.Vars(r)["id"], actorID(r))
	if err != nil {
		writeServiceError(w, r, "failed to resolve alert", err)
		return
	}
	writeJSON(w, http.StatusOK, incident)
}

// ListPayouts returns payout reconciliations, optionally filtered by status.
// GET /api/v1/reconciliation/payouts
func (h *Handler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeServiceError(w, r, "", err)
		return
	}
	status := domain.PayoutStatus(r.URL.Query().Get("status"))
	payouts, err := h.payouts.ListPayouts(r.Context(), status, limit)
	if err != nil {
		writeServiceError(w, r, "failed to list payouts", err)
		return
	}
	if payouts == nil {
		payouts = []domain.PayoutReconciliation{}
	}
	writeJSON(w, http.StatusOK, payouts)
}

// RecordPayout stores a gateway payout for reconciliation.
// POST /api/v1/reconciliation/payouts
func (h *Handler) RecordPayout(w http.ResponseWriter, r *http.Request) {
	var req RecordPayoutRequest
	if err := h.bind(w, r, &req); err != nil {
		writeBindError(w, err)
		return
	}
	payout, err := h.payouts.RecordPayout(r.Context(), &domain.PayoutReconciliation{
		PayoutID:    req.PayoutID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		ArrivalDate: req.ArrivalDate,
		Details:     domain.PayoutDetails{GatewayStatus: req.GatewayStatus},
	})
	if err != nil {
		writeServiceError(w, r, "failed to record payout", err)
		return
	}
	writeJSON(w, http.StatusCreated, payout)
}

// UpdatePayout changes a payout's reconciliation status.
// PATCH /api/v1/reconciliation/payouts/{payoutId}
func (h *Handler) UpdatePayout(w http.ResponseWriter, r *http.Request) {
	var req UpdatePayoutRequest
	if err := h.bind(w, r, &req); err != nil {
		writeBindError(w, err)
		return
	}
	payout, err := h.payouts.UpdatePayoutStatus(r.Context(), mux.Vars(r)["payoutId"], service.PayoutStatusUpdate{
		Status:            domain.PayoutStatus(req.Status),
		Notes:             req.Notes,
		DiscrepancyAmount: req.DiscrepancyAmount,
		ActorID:           actorID(r),
	})
	if err != nil {
		writeServiceError(w, r, "failed to update payout", err)
		return
	}
	writeJSON(w, http.StatusOK, payout)
}
