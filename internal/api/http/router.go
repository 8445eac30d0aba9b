package http

import (
	"net/http"

	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
)

// RouterConfig carries the cross-cutting settings for NewRouter.
type RouterConfig struct {
	AllowedOrigins    []string
	RequestsPerMinute int
	Burst             int
}

// RegisterRoutes registers every reconciliation endpoint on router. Route
// names select the security level applied by AuthMiddleware.
func RegisterRoutes(router *mux.Router, h *Handler) {
	router.HandleFunc("/healthz", h.Health).Methods("GET").Name("healthz")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/cron/reconcile-balances", h.CronReconcileBalances).Methods("POST").Name("cron_reconcile_balances")

	rec := api.PathPrefix("/reconciliation").Subrouter()
	rec.HandleFunc("/bookings/{id}/validation", h.ValidateBooking).Methods("GET").Name("validate_booking")
	rec.HandleFunc("/bookings/{id}/reconcile", h.ReconcileBooking).Methods("POST").Name("reconcile_booking")
	rec.HandleFunc("/logs", h.ListLogs).Methods("GET").Name("list_logs")

	rec.HandleFunc("/reports", h.ListReports).Methods("GET").Name("list_reports")
	rec.HandleFunc("/reports", h.GenerateReport).Methods("POST").Name("generate_report")
	rec.HandleFunc("/reports/latest", h.LatestReport).Methods("GET").Name("latest_report")

	rec.HandleFunc("/alerts", h.ListAlerts).Methods("GET").Name("list_alerts")
	rec.HandleFunc("/alerts/summary", h.AlertSummary).Methods("GET").Name("alert_summary")
	rec.HandleFunc("/alerts/{id}/acknowledge", h.AcknowledgeAlert).Methods("POST").Name("acknowledge_alert")
	rec.HandleFunc("/alerts/{id}/resolve", h.ResolveAlert).Methods("POST").Name("resolve_alert")

	rec.HandleFunc("/payouts", h.ListPayouts).Methods("GET").Name("list_payouts")
	rec.HandleFunc("/payouts", h.RecordPayout).Methods("POST").Name("record_payout")
	rec.HandleFunc("/payouts/{payoutId}", h.UpdatePayout).Methods("PATCH").Name("update_payout")
}

// NewRouter assembles the HTTP surface with auth, rate limiting and CORS.
func NewRouter(h *Handler, auth *AuthMiddleware, cfg RouterConfig) http.Handler {
	router := mux.NewRouter()
	RegisterRoutes(router, h)

	// mux runs these after matching, so the route name is available
	router.Use(NewRateLimiter(cfg.RequestsPerMinute, cfg.Burst).Handler)
	router.Use(auth.Handler)

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", cronSecretHeader},
		AllowCredentials: false,
		MaxAge:           300,
	})

	return Recoverer(RequestLogger(corsHandler(router)))
}
