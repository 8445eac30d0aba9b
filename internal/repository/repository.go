package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"booking-reconciler/internal/domain"
)

// LedgerRepository reads the payment ledger owned by the payments subsystem.
type LedgerRepository interface {
	// ListCompletedMovements returns completed movements ordered by occurred_at
	// ascending. It returns ErrNotFound when the booking does not exist.
	ListCompletedMovements(ctx context.Context, bookingID string) ([]domain.LedgerMovement, error)
}

// BookingRepository exposes the booking fields the reconciler reads and the
// one field it may write.
type BookingRepository interface {
	GetByID(ctx context.Context, bookingID string) (*domain.Booking, error)
	GetBalance(ctx context.Context, bookingID string) (decimal.Decimal, error)
	// CompareAndSetBalance writes next only while the stored balance still
	// equals prev. It reports whether the write happened.
	CompareAndSetBalance(ctx context.Context, bookingID string, prev, next decimal.Decimal) (bool, error)
	// ListWithActivity returns ids of bookings with any ledger activity,
	// ordered by id, strictly after afterID.
	ListWithActivity(ctx context.Context, afterID string, limit int) ([]string, error)
}

// ValidationLogRepository is append-only.
type ValidationLogRepository interface {
	Append(ctx context.Context, entry *domain.ValidationLogEntry) error
	List(ctx context.Context, filter domain.ValidationLogFilter) ([]domain.ValidationLogEntry, error)
}

type AlertRepository interface {
	Create(ctx context.Context, incident *domain.AlertIncident) error
	GetByID(ctx context.Context, id string) (*domain.AlertIncident, error)
	// FindActiveByBooking returns the open or acknowledged incident for a
	// booking, or ErrNotFound.
	FindActiveByBooking(ctx context.Context, bookingID string) (*domain.AlertIncident, error)
	Update(ctx context.Context, incident *domain.AlertIncident) error
	// ListSince returns incidents created at or after since, newest first.
	ListSince(ctx context.Context, since time.Time, minSeverity domain.Severity) ([]domain.AlertIncident, error)
	CountBySeverity(ctx context.Context, since time.Time) (map[domain.Severity]int, error)
}

type RunReportRepository interface {
	Create(ctx context.Context, report *domain.ReconciliationRunReport) error
	Finish(ctx context.Context, report *domain.ReconciliationRunReport) error
	Latest(ctx context.Context) (*domain.ReconciliationRunReport, error)
	List(ctx context.Context, limit int) ([]domain.ReconciliationRunReport, error)
}

type PayoutRepository interface {
	// Upsert inserts a payout or refreshes its amount and gateway fields,
	// keeping any status already recorded.
	Upsert(ctx context.Context, payout *domain.PayoutReconciliation) error
	GetByPayoutID(ctx context.Context, payoutID string) (*domain.PayoutReconciliation, error)
	Update(ctx context.Context, payout *domain.PayoutReconciliation) error
	List(ctx context.Context, status domain.PayoutStatus, limit int) ([]domain.PayoutReconciliation, error)
}

// Repositories bundles one implementation of every repository.
type Repositories struct {
	Ledger         LedgerRepository
	Bookings       BookingRepository
	ValidationLogs ValidationLogRepository
	Alerts         AlertRepository
	Runs           RunReportRepository
	Payouts        PayoutRepository
}
