package service

import (
	"context"

	"github.com/shopspring/decimal"

	"booking-reconciler/internal/balance"
	"booking-reconciler/internal/domain"
)

// ReconcileOptions tunes a single reconcile call. Zero values fall back to
// the configured policy.
type ReconcileOptions struct {
	AutoCorrectThreshold *decimal.Decimal
	RunID                *string
}

// Outcome describes what reconciling one booking did.
type Outcome struct {
	Result      domain.BalanceValidationResult `json:"result"`
	Breakdown   balance.Breakdown              `json:"-"`
	Action      string                         `json:"action"`
	Corrected   bool                           `json:"corrected"`
	AlertRaised bool                           `json:"alert_raised"`
	// Conflict is set when the balance moved between read and write; the
	// correction was skipped and the next run will retry.
	Conflict bool                  `json:"conflict"`
	Incident *domain.AlertIncident `json:"incident,omitempty"`
}

// LogQuery selects recent validation log entries.
type LogQuery struct {
	MinDiscrepancy decimal.Decimal
	HoursBack      int
	Limit          int
	Offset         int
}

type ReconciliationService interface {
	// ValidateBooking computes the result without touching the booking.
	ValidateBooking(ctx context.Context, bookingID string) (*domain.BalanceValidationResult, error)
	// ReconcileBooking validates and then auto-corrects or escalates.
	ReconcileBooking(ctx context.Context, bookingID string, opts ReconcileOptions) (*Outcome, error)
	RecentLogs(ctx context.Context, q LogQuery) ([]domain.ValidationLogEntry, error)
	Policy() balance.Policy
}

type AlertService interface {
	// Raise opens an incident for an invalid result, or refreshes the one
	// already open or acknowledged for the booking.
	Raise(ctx context.Context, result domain.BalanceValidationResult) (*domain.AlertIncident, bool, error)
	Acknowledge(ctx context.Context, incidentID, actorID string) (*domain.AlertIncident, error)
	Resolve(ctx context.Context, incidentID, actorID string) (*domain.AlertIncident, error)
	ListAlerts(ctx context.Context, hoursBack int, minSeverity domain.Severity) ([]domain.AlertIncident, error)
	Summarize(ctx context.Context, hoursBack int) (*domain.AlertSummary, error)
}

// PayoutStatusUpdate is an operator's change to a payout reconciliation.
type PayoutStatusUpdate struct {
	Status            domain.PayoutStatus
	Notes             string
	DiscrepancyAmount *decimal.Decimal
	ActorID           string
}

type PayoutService interface {
	RecordPayout(ctx context.Context, payout *domain.PayoutReconciliation) (*domain.PayoutReconciliation, error)
	ListPayouts(ctx context.Context, status domain.PayoutStatus, limit int) ([]domain.PayoutReconciliation, error)
	UpdatePayoutStatus(ctx context.Context, payoutID string, update PayoutStatusUpdate) (*domain.PayoutReconciliation, error)
}

// AlertNotifier tells humans about newly opened incidents.
type AlertNotifier interface {
	NotifyIncidentOpened(ctx context.Context, incident *domain.AlertIncident) error
}
