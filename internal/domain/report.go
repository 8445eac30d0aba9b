package domain

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
)

// TriggeredByCron marks runs started by the scheduler or the cron endpoint.
const TriggeredByCron = "cron"

// ReconciliationRunReport aggregates one batch reconciliation run.
type ReconciliationRunReport struct {
	ID                   string                    `json:"id"`
	Status               RunStatus                 `json:"status"`
	TotalValidated       int                       `json:"total_validated"`
	Discrepancies        int                       `json:"discrepancies"`
	AutoCorrected        int                       `json:"auto_corrected"`
	RequiresManualReview int                       `json:"requires_manual_review"`
	Failed               int                       `json:"failed"`
	DurationMs           int64                     `json:"duration_ms"`
	StartedAt            time.Time                 `json:"started_at"`
	FinishedAt           *time.Time                `json:"finished_at,omitempty"`
	TriggeredBy          string                    `json:"triggered_by"`
	LastBookingID        string                    `json:"last_booking_id,omitempty"`
	ErrorMessage         string                    `json:"error_message,omitempty"`
	Findings             []BalanceValidationResult `json:"findings,omitempty"`
}
