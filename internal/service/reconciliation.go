package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"booking-reconciler/internal/balance"
	"booking-reconciler/internal/domain"
	"booking-reconciler/internal/logger"
	"booking-reconciler/internal/repository"
)

const (
	defaultLogLimit = 100
	maxLogLimit     = 1000
)

type reconciliationService struct {
	ledgerRepo  repository.LedgerRepository
	bookingRepo repository.BookingRepository
	logRepo     repository.ValidationLogRepository
	alertSvc    AlertService
	policy      balance.Policy
	now         func() time.Time
}

func NewReconciliationService(
	ledgerRepo repository.LedgerRepository,
	bookingRepo repository.BookingRepository,
	logRepo repository.ValidationLogRepository,
	alertSvc AlertService,
	policy balance.Policy,
) ReconciliationService {
	return &reconciliationService{
		ledgerRepo:  ledgerRepo,
		bookingRepo: bookingRepo,
		logRepo:     logRepo,
		alertSvc:    alertSvc,
		policy:      policy,
		now:         time.Now,
	}
}

func (s *reconciliationService) Policy() balance.Policy {
	return s.policy
}

func (s *reconciliationService) ValidateBooking(ctx context.Context, bookingID string) (*domain.BalanceValidationResult, error) {
	v, err := s.validate(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	result := v.result
	logger.Info("Booking validated on demand",
		"booking_id", bookingID,
		"is_valid", result.IsValid,
		"discrepancy", result.Discrepancy.String(),
		"severity", result.Severity)
	return &result, nil
}

// validation is one booking evaluation. rawStored is the balance exactly as
// read from the store; result carries it rounded to cents.
type validation struct {
	result    domain.BalanceValidationResult
	breakdown balance.Breakdown
	rawStored decimal.Decimal
}

func (s *reconciliationService) validate(ctx context.Context, bookingID string) (validation, error) {
	if bookingID == "" {
		return validation{}, domain.NewValidationError("booking_id", "must not be empty")
	}
	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return validation{}, fmt.Errorf("load booking: %w", err)
	}
	movements, err := s.ledgerRepo.ListCompletedMovements(ctx, bookingID)
	if err != nil {
		return validation{}, fmt.Errorf("load ledger: %w", err)
	}

	breakdown := balance.Compute(booking.TotalAmount, movements, s.policy.AllowNegative)
	if breakdown.Clamped {
		logger.Warn("Ledger exceeds booking total, expected balance clamped to zero",
			"booking_id", bookingID,
			"total", breakdown.TotalAmount.String(),
			"overpayment", breakdown.Overpayment.String())
	}
	return validation{
		result:    s.policy.Classify(bookingID, booking.BalanceAmount, breakdown.Expected),
		breakdown: breakdown,
		rawStored: booking.BalanceAmount,
	}, nil
}

func (s *reconciliationService) ReconcileBooking(ctx context.Context, bookingID string, opts ReconcileOptions) (*Outcome, error) {
	v, err := s.validate(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	result, breakdown := v.result, v.breakdown

	policy := s.policy.WithAutoCorrectThreshold(opts.AutoCorrectThreshold)
	action := policy.Decide(result)
	out := &Outcome{Result: result, Breakdown: breakdown, Action: action.String()}
	log := logger.WithComponent("reconciliation").With(
		"booking_id", bookingID,
		"expected", result.ExpectedBalance.String(),
		"stored", result.StoredBalance.String(),
		"discrepancy", result.Discrepancy.String(),
		"severity", result.Severity,
	)

	switch action {
	case balance.ActionCorrect:
		ok, err := s.bookingRepo.CompareAndSetBalance(ctx, bookingID, v.rawStored, result.ExpectedBalance)
		if err != nil {
			return nil, fmt.Errorf("correct balance: %w", err)
		}
		if ok {
			out.Corrected = true
			log.Info("Balance auto-corrected")
		} else {
			out.Conflict = true
			log.Warn("Balance changed during reconciliation, correction skipped")
		}
	case balance.ActionEscalate:
		incident, _, err := s.alertSvc.Raise(ctx, result)
		if err != nil {
			return nil, fmt.Errorf("raise alert: %w", err)
		}
		out.AlertRaised = true
		out.Incident = incident
		log.Warn("Balance discrepancy requires manual review", "incident_id", incident.ID)
	default:
		log.Debug("Balance valid")
	}

	if err := s.appendLog(ctx, result, out.Corrected, opts.RunID); err != nil {
		if out.Corrected {
			log.Error("Balance corrected but validation log entry not written", "previous", v.rawStored.String(), "error", err)
		}
		return nil, err
	}
	return out, nil
}

func (s *reconciliationService) appendLog(ctx context.Context, result domain.BalanceValidationResult, corrected bool, runID *string) error {
	entry := &domain.ValidationLogEntry{
		ID:              uuid.NewString(),
		BookingID:       result.BookingID,
		RunID:           runID,
		ExpectedBalance: result.ExpectedBalance,
		StoredBalance:   result.StoredBalance,
		Discrepancy:     result.Discrepancy,
		IsValid:         result.IsValid,
		Severity:        result.Severity,
		AutoCorrected:   corrected,
		Timestamp:       s.now().UTC(),
	}
	if err := s.logRepo.Append(ctx, entry); err != nil {
		return fmt.Errorf("append validation log: %w", err)
	}
	return nil
}

func (s *reconciliationService) RecentLogs(ctx context.Context, q LogQuery) ([]domain.ValidationLogEntry, error) {
	if q.Limit < 0 {
		return nil, domain.NewValidationError("limit", "must not be negative")
	}
	if q.Offset < 0 {
		return nil, domain.NewValidationError("offset", "must not be negative")
	}
	if q.HoursBack < 0 {
		return nil, domain.NewValidationError("hours_back", "must not be negative")
	}
	if q.MinDiscrepancy.IsNegative() {
		return nil, domain.NewValidationError("min_discrepancy", "must not be negative")
	}

	filter := domain.ValidationLogFilter{
		MinDiscrepancy: q.MinDiscrepancy,
		Limit:          q.Limit,
		Offset:         q.Offset,
	}
	if filter.Limit == 0 {
		filter.Limit = defaultLogLimit
	}
	if filter.Limit > maxLogLimit {
		filter.Limit = maxLogLimit
	}
	if q.HoursBack > 0 {
		filter.Since = s.now().UTC().Add(-time.Duration(q.HoursBack) * time.Hour)
	}
	return s.logRepo.List(ctx, filter)
}
