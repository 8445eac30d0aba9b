// Package memory keeps every repository in process memory. It backs the
// "memory" database driver for local demos and the service and job tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"booking-reconciler/internal/domain"
	"booking-reconciler/internal/repository"
)

// Store implements every repository interface over maps guarded by one mutex.
type Store struct {
	mu        sync.RWMutex
	bookings  map[string]*domain.Booking
	movements map[string][]domain.LedgerMovement
	logs      []domain.ValidationLogEntry
	alerts    map[string]*domain.AlertIncident
	runs      []*domain.ReconciliationRunReport
	payouts   map[string]*domain.PayoutReconciliation

	// FailBalanceWrites makes CompareAndSetBalance fail for the listed bookings.
	FailBalanceWrites map[string]error
	// BeforeBalanceWrite, when set, runs inside CompareAndSetBalance before the
	// compare. Tests use it to simulate a concurrent writer.
	BeforeBalanceWrite func(bookingID string)
}

func NewStore() *Store {
	return &Store{
		bookings:          make(map[string]*domain.Booking),
		movements:         make(map[string][]domain.LedgerMovement),
		alerts:            make(map[string]*domain.AlertIncident),
		payouts:           make(map[string]*domain.PayoutReconciliation),
		FailBalanceWrites: make(map[string]error),
	}
}

// PutBooking inserts or replaces a booking.
func (s *Store) PutBooking(b domain.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[b.ID] = &b
}

// AddMovement appends a ledger movement, filling in an id and timestamp.
func (s *Store) AddMovement(m domain.LedgerMovement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.OccurredAt.IsZero() {
		m.OccurredAt = time.Now().UTC()
	}
	s.movements[m.BookingID] = append(s.movements[m.BookingID], m)
}

// SetStoredBalance overwrites a booking balance without any compare.
func (s *Store) SetStoredBalance(bookingID string, balance decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bookings[bookingID]; ok {
		b.BalanceAmount = balance
	}
}

func (s *Store) ListCompletedMovements(ctx context.Context, bookingID string) ([]domain.LedgerMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.bookings[bookingID]; !ok {
		return nil, domain.NotFoundf("booking %s", bookingID)
	}
	var out []domain.LedgerMovement
	for _, m := range s.movements[bookingID] {
		if m.Status == domain.MovementStatusCompleted {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

func (s *Store) GetByID(ctx context.Context, bookingID string) (*domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[bookingID]
	if !ok {
		return nil, domain.NotFoundf("booking %s", bookingID)
	}
	cp := *b
	return &cp, nil
}

func (s *Store) GetBalance(ctx context.Context, bookingID string) (decimal.Decimal, error) {
	b, err := s.GetByID(ctx, bookingID)
	if err != nil {
		return decimal.Zero, err
	}
	return b.BalanceAmount, nil
}

func (s *Store) CompareAndSetBalance(ctx context.Context, bookingID string, prev, next decimal.Decimal) (bool, error) {
	if s.BeforeBalanceWrite != nil {
		s.BeforeBalanceWrite(bookingID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.FailBalanceWrites[bookingID]; ok {
		return false, domain.Transient("set balance "+bookingID, err)
	}
	b, ok := s.bookings[bookingID]
	if !ok {
		return false, domain.NotFoundf("booking %s", bookingID)
	}
	if !b.BalanceAmount.Equal(prev) {
		return false, nil
	}
	b.BalanceAmount = next
	return true, nil
}

func (s *Store) ListWithActivity(ctx context.Context, afterID string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id := range s.bookings {
		if id > afterID && len(s.movements[id]) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (s *Store) Append(ctx context.Context, entry *domain.ValidationLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, *entry)
	return nil
}

// List returns log entries newest first.
func (s *Store) List(ctx context.Context, f domain.ValidationLogFilter) ([]domain.ValidationLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ValidationLogEntry
	for i := len(s.logs) - 1; i >= 0; i-- {
		e := s.logs[i]
		if e.Discrepancy.Abs().LessThan(f.MinDiscrepancy) || e.Timestamp.Before(f.Since) {
			continue
		}
		out = append(out, e)
	}
	return page(out, f.Offset, f.Limit), nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

// Logs returns every entry in append order.
func (s *Store) Logs() []domain.ValidationLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.ValidationLogEntry(nil), s.logs...)
}

func (s *Store) Create(ctx context.Context, incident *domain.AlertIncident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *incident
	s.alerts[incident.ID] = &cp
	return nil
}

func (s *Store) getAlert(id string) (*domain.AlertIncident, error) {
	a, ok := s.alerts[id]
	if !ok {
		return nil, domain.NotFoundf("incident %s", id)
	}
	cp := *a
	return &cp, nil
}

// GetAlert reads an incident by id. Alert, report and payout lookups carry
// distinct names here since Store serves every repository at once.
func (s *Store) GetAlert(ctx context.Context, id string) (*domain.AlertIncident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getAlert(id)
}

func (s *Store) FindActiveByBooking(ctx context.Context, bookingID string) (*domain.AlertIncident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *domain.AlertIncident
	for _, a := range s.alerts {
		if a.BookingID == bookingID && a.Status.Active() {
			if found == nil || a.CreatedAt.After(found.CreatedAt) {
				found = a
			}
		}
	}
	if found == nil {
		return nil, domain.NotFoundf("active incident for booking %s", bookingID)
	}
	cp := *found
	return &cp, nil
}

func (s *Store) UpdateAlert(ctx context.Context, incident *domain.AlertIncident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerts[incident.ID]; !ok {
		return domain.NotFoundf("incident %s", incident.ID)
	}
	cp := *incident
	s.alerts[incident.ID] = &cp
	return nil
}

func (s *Store) ListSince(ctx context.Context, since time.Time, minSeverity domain.Severity) ([]domain.AlertIncident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.AlertIncident
	for _, a := range s.alerts {
		if !a.CreatedAt.Before(since) && a.Severity.AtLeast(minSeverity) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CountBySeverity(ctx context.Context, since time.Time) (map[domain.Severity]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[domain.Severity]int)
	for _, a := range s.alerts {
		if !a.CreatedAt.Before(since) {
			counts[a.Severity]++
		}
	}
	return counts, nil
}

// Alerts returns every incident regardless of status.
func (s *Store) Alerts() []domain.AlertIncident {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AlertIncident, 0, len(s.alerts))
	for _, a := range s.alerts {
		out = append(out, *a)
	}
	return out
}

func (s *Store) CreateRun(ctx context.Context, rep *domain.ReconciliationRunReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rep
	s.runs = append(s.runs, &cp)
	return nil
}

func (s *Store) FinishRun(ctx context.Context, rep *domain.ReconciliationRunReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.runs {
		if r.ID == rep.ID {
			cp := *rep
			cp.Findings = append([]domain.BalanceValidationResult(nil), rep.Findings...)
			s.runs[i] = &cp
			return nil
		}
	}
	return domain.NotFoundf("run %s", rep.ID)
}

func (s *Store) LatestRun(ctx context.Context) (*domain.ReconciliationRunReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.runs) == 0 {
		return nil, domain.NotFoundf("no reconciliation runs")
	}
	cp := *s.runs[len(s.runs)-1]
	return &cp, nil
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]domain.ReconciliationRunReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ReconciliationRunReport
	for i := len(s.runs) - 1; i >= 0; i-- {
		out = append(out, *s.runs[i])
	}
	return page(out, 0, limit), nil
}

func (s *Store) Upsert(ctx context.Context, p *domain.PayoutReconciliation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.payouts[p.PayoutID]; ok {
		existing.Amount = p.Amount
		existing.Currency = p.Currency
		existing.ArrivalDate = p.ArrivalDate
		if p.Details.GatewayStatus != "" {
			existing.Details.GatewayStatus = p.Details.GatewayStatus
		}
		existing.UpdatedAt = p.UpdatedAt
		return nil
	}
	cp := *p
	s.payouts[p.PayoutID] = &cp
	return nil
}

func (s *Store) GetByPayoutID(ctx context.Context, payoutID string) (*domain.PayoutReconciliation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payouts[payoutID]
	if !ok {
		return nil, domain.NotFoundf("payout %s", payoutID)
	}
	cp := *p
	return &cp, nil
}

func (s *Store) UpdatePayout(ctx context.Context, p *domain.PayoutReconciliation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payouts[p.PayoutID]; !ok {
		return domain.NotFoundf("payout %s", p.PayoutID)
	}
	cp := *p
	s.payouts[p.PayoutID] = &cp
	return nil
}

func (s *Store) ListPayouts(ctx context.Context, status domain.PayoutStatus, limit int) ([]domain.PayoutReconciliation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.PayoutReconciliation
	for _, p := range s.payouts {
		if status == "" || p.Status == status {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, 0, limit), nil
}

type alertView struct{ *Store }

func (v alertView) GetByID(ctx context.Context, id string) (*domain.AlertIncident, error) {
	return v.GetAlert(ctx, id)
}

func (v alertView) Update(ctx context.Context, incident *domain.AlertIncident) error {
	return v.UpdateAlert(ctx, incident)
}

type runView struct{ *Store }

func (v runView) Create(ctx context.Context, rep *domain.ReconciliationRunReport) error {
	return v.CreateRun(ctx, rep)
}

func (v runView) Finish(ctx context.Context, rep *domain.ReconciliationRunReport) error {
	return v.FinishRun(ctx, rep)
}

func (v runView) Latest(ctx context.Context) (*domain.ReconciliationRunReport, error) {
	return v.LatestRun(ctx)
}

func (v runView) List(ctx context.Context, limit int) ([]domain.ReconciliationRunReport, error) {
	return v.ListRuns(ctx, limit)
}

type payoutView struct{ *Store }

func (v payoutView) Update(ctx context.Context, p *domain.PayoutReconciliation) error {
	return v.UpdatePayout(ctx, p)
}

func (v payoutView) List(ctx context.Context, status domain.PayoutStatus, limit int) ([]domain.PayoutReconciliation, error) {
	return v.ListPayouts(ctx, status, limit)
}

func (s *Store) AlertRepository() repository.AlertRepository         { return alertView{s} }
func (s *Store) RunReportRepository() repository.RunReportRepository { return runView{s} }
func (s *Store) PayoutRepository() repository.PayoutRepository       { return payoutView{s} }

func (s *Store) Repositories() repository.Repositories {
	return repository.Repositories{
		Ledger:         s,
		Bookings:       s,
		ValidationLogs: s,
		Alerts:         s.AlertRepository(),
		Runs:           s.RunReportRepository(),
		Payouts:        s.PayoutRepository(),
	}
}
