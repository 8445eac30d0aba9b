package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"booking-reconciler/internal/domain"
	"booking-reconciler/internal/lock"
	"booking-reconciler/internal/logger"
	"booking-reconciler/internal/repository"
	"booking-reconciler/internal/service"
)

const (
	runLockKey  = "reconcile-balances"
	maxFindings = 100
	maxLimit    = 10000
)

// RunOptions are the caller-supplied knobs of one batch run.
type RunOptions struct {
	Limit                int
	MinDiscrepancy       decimal.Decimal
	AutoCorrectThreshold *decimal.Decimal
	TriggeredBy          string
}

// ReconciliationJobConfig bounds a batch run.
type ReconciliationJobConfig struct {
	DefaultLimit int
	Workers      int
	Timeout      time.Duration
	// InFlightGrace caps how long a booking already being reconciled may keep
	// going after the run deadline passes.
	InFlightGrace time.Duration
}

type ReconciliationJob struct {
	bookings repository.BookingRepository
	runs     repository.RunReportRepository
	recon    service.ReconciliationService
	locker   lock.RunLocker
	cfg      ReconciliationJobConfig
	now      func() time.Time
}

func NewReconciliationJob(
	bookings repository.BookingRepository,
	runs repository.RunReportRepository,
	recon service.ReconciliationService,
	locker lock.RunLocker,
	cfg ReconciliationJobConfig,
) *ReconciliationJob {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 1000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if cfg.InFlightGrace <= 0 {
		cfg.InFlightGrace = 30 * time.Second
	}
	return &ReconciliationJob{
		bookings: bookings,
		runs:     runs,
		recon:    recon,
		locker:   locker,
		cfg:      cfg,
		now:      time.Now,
	}
}

// tally accumulates per-booking outcomes from concurrent workers.
type tally struct {
	mu       sync.Mutex
	report   *domain.ReconciliationRunReport
	findings []domain.BalanceValidationResult
	minAbs   decimal.Decimal
}

func (t *tally) record(out *service.Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.report.TotalValidated++
	if out.Result.IsValid {
		return
	}
	t.report.Discrepancies++
	if out.Corrected {
		t.report.AutoCorrected++
	}
	if out.AlertRaised {
		t.report.RequiresManualReview++
	}
	if out.Result.AbsDiscrepancy().GreaterThanOrEqual(t.minAbs) {
		t.findings = append(t.findings, out.Result)
	}
}

func (t *tally) fail() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.report.Failed++
}

// Run reconciles a bounded, deterministic selection of bookings. A failing
// booking is counted and skipped. When the deadline passes no new bookings
// are started and the report comes back with status partial.
func (j *ReconciliationJob) Run(ctx context.Context, opts RunOptions) (*domain.ReconciliationRunReport, error) {
	if opts.Limit < 0 || opts.Limit > maxLimit {
		return nil, domain.NewValidationError("limit", "must be between 0 and %d", maxLimit)
	}
	if opts.MinDiscrepancy.IsNegative() {
		return nil, domain.NewValidationError("min_discrepancy", "must not be negative")
	}
	if opts.AutoCorrectThreshold != nil && opts.AutoCorrectThreshold.IsNegative() {
		return nil, domain.NewValidationError("auto_correct_threshold", "must not be negative")
	}
	if opts.Limit == 0 {
		opts.Limit = j.cfg.DefaultLimit
	}
	if opts.TriggeredBy == "" {
		opts.TriggeredBy = domain.TriggeredByCron
	}

	release, err := j.locker.Acquire(ctx, runLockKey, j.cfg.Timeout+j.cfg.InFlightGrace)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			logger.Error("Failed to release run lock", "error", err)
		}
	}()

	cursor := ""
	if prev, err := j.runs.Latest(ctx); err == nil {
		cursor = prev.LastBookingID
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("load previous run: %w", err)
	}

	started := j.now().UTC()
	report := &domain.ReconciliationRunReport{
		ID:          uuid.NewString(),
		Status:      domain.RunStatusRunning,
		StartedAt:   started,
		TriggeredBy: opts.TriggeredBy,
	}
	if err := j.runs.Create(ctx, report); err != nil {
		return nil, fmt.Errorf("create run report: %w", err)
	}
	log := logger.WithRun(report.ID, report.TriggeredBy)
	log.Info("Reconciliation run started", "limit", opts.Limit, "cursor", cursor, "workers", j.cfg.Workers)

	ids, reachedEnd, err := j.selectBookings(ctx, cursor, opts.Limit)
	if err != nil {
		report.Status = domain.RunStatusFailed
		report.ErrorMessage = err.Error()
		report.LastBookingID = cursor
		j.finish(ctx, report, started)
		log.Error("Reconciliation run failed", "error", err)
		return report, fmt.Errorf("select bookings: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, j.cfg.Timeout)
	defer cancel()

	t := &tally{report: report, minAbs: opts.MinDiscrepancy}
	runID := report.ID
	reconcileOpts := service.ReconcileOptions{AutoCorrectThreshold: opts.AutoCorrectThreshold, RunID: &runID}

	// No booking is dispatched after the deadline, including one that was
	// waiting for a free worker when it passed.
	var g errgroup.Group
	slots := make(chan struct{}, j.cfg.Workers)
	dispatched := 0
	for _, id := range ids {
		if !acquireSlot(runCtx, slots) {
			break
		}
		g.Go(func() error {
			defer func() { <-slots }()
			defer func() {
				if r := recover(); r != nil {
					t.fail()
					log.Error("Booking reconciliation panicked", "booking_id", id, "panic", r)
				}
			}()
			bctx, bcancel := context.WithTimeout(context.WithoutCancel(runCtx), j.cfg.InFlightGrace+j.remaining(runCtx))
			defer bcancel()
			out, err := j.recon.ReconcileBooking(bctx, id, reconcileOpts)
			if err != nil {
				t.fail()
				log.Error("Booking reconciliation failed", "booking_id", id, "error", err)
				return nil
			}
			t.record(out)
			return nil
		})
		dispatched++
	}
	_ = g.Wait()

	switch {
	case dispatched < len(ids):
		report.Status = domain.RunStatusPartial
		report.ErrorMessage = fmt.Sprintf("deadline reached after %d of %d bookings", dispatched, len(ids))
		if dispatched > 0 {
			report.LastBookingID = ids[dispatched-1]
		} else {
			report.LastBookingID = cursor
		}
	case reachedEnd:
		report.Status = domain.RunStatusSucceeded
		report.LastBookingID = ""
	default:
		report.Status = domain.RunStatusSucceeded
		report.LastBookingID = ids[len(ids)-1]
	}

	sort.SliceStable(t.findings, func(a, b int) bool {
		return t.findings[a].AbsDiscrepancy().GreaterThan(t.findings[b].AbsDiscrepancy())
	})
	if len(t.findings) > maxFindings {
		t.findings = t.findings[:maxFindings]
	}
	report.Findings = t.findings

	j.finish(ctx, report, started)
	log.Info("Reconciliation run finished",
		"status", report.Status,
		"total_validated", report.TotalValidated,
		"discrepancies", report.Discrepancies,
		"auto_corrected", report.AutoCorrected,
		"requires_manual_review", report.RequiresManualReview,
		"failed", report.Failed,
		"duration_ms", report.DurationMs)
	return report, nil
}

func (j *ReconciliationJob) remaining(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return j.cfg.Timeout
	}
	if d := time.Until(deadline); d > 0 {
		return d
	}
	return 0
}

func (j *ReconciliationJob) finish(ctx context.Context, report *domain.ReconciliationRunReport, started time.Time) {
	finished := j.now().UTC()
	report.FinishedAt = &finished
	report.DurationMs = finished.Sub(started).Milliseconds()
	if err := j.runs.Finish(context.WithoutCancel(ctx), report); err != nil {
		logger.Error("Failed to persist run report", "run_id", report.ID, "error", err)
	}
}

// acquireSlot blocks until a worker slot is free. It returns false without
// holding a slot once ctx is done.
func acquireSlot(ctx context.Context, slots chan struct{}) bool {
	select {
	case <-ctx.Done():
		return false
	case slots <- struct{}{}:
	}
	if ctx.Err() != nil {
		<-slots
		return false
	}
	return true
}

// selectBookings returns up to limit booking ids after cursor, wrapping to
// the start of the id space. reachedEnd reports that every booking with
// activity was selected, so the next run should start from the beginning.
func (j *ReconciliationJob) selectBookings(ctx context.Context, cursor string, limit int) ([]string, bool, error) {
	ids, err := j.bookings.ListWithActivity(ctx, cursor, limit)
	if err != nil {
		return nil, false, err
	}
	if len(ids) == limit {
		return ids, false, nil
	}
	if cursor == "" {
		return ids, true, nil
	}

	remaining := limit - len(ids)
	wrapped, err := j.bookings.ListWithActivity(ctx, "", remaining)
	if err != nil {
		return nil, false, err
	}
	kept := 0
	for _, id := range wrapped {
		if id > cursor {
			break
		}
		ids = append(ids, id)
		kept++
	}
	reachedEnd := kept < len(wrapped) || len(wrapped) < remaining
	return ids, reachedEnd, nil
}
