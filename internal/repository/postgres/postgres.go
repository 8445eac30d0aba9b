package postgres

import (
	"database/sql"
	"errors"
	"time"

	"booking-reconciler/internal/domain"
	"booking-reconciler/internal/repository"

	_ "github.com/lib/pq"
)

type Store struct {
	db *sql.DB
	repository.LedgerRepository
	repository.BookingRepository
	repository.ValidationLogRepository
	repository.AlertRepository
	repository.RunReportRepository
	repository.PayoutRepository
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:                      db,
		LedgerRepository:        NewLedgerRepository(db),
		BookingRepository:       NewBookingRepository(db),
		ValidationLogRepository: NewValidationLogRepository(db),
		AlertRepository:         NewAlertRepository(db),
		RunReportRepository:     NewRunReportRepository(db),
		PayoutRepository:        NewPayoutRepository(db),
	}
}

// DB exposes the underlying pool for health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

// storeError maps sql.ErrNoRows to ErrNotFound and everything else to
// ErrTransientStore.
func storeError(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFoundf("%s", op)
	}
	return domain.Transient(op, err)
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func (s *Store) Repositories() repository.Repositories {
	return repository.Repositories{
		Ledger:         s.LedgerRepository,
		Bookings:       s.BookingRepository,
		ValidationLogs: s.ValidationLogRepository,
		Alerts:         s.AlertRepository,
		Runs:           s.RunReportRepository,
		Payouts:        s.PayoutRepository,
	}
}
