package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"booking-reconciler/internal/balance"
	"booking-reconciler/internal/domain"
	"booking-reconciler/internal/logger"
	"booking-reconciler/internal/repository"
)

const (
	defaultPayoutLimit = 50
	maxPayoutLimit     = 500
)

type payoutService struct {
	payoutRepo repository.PayoutRepository
	policy     balance.Policy
	now        func() time.Time
}

func NewPayoutService(payoutRepo repository.PayoutRepository, policy balance.Policy) PayoutService {
	return &payoutService{
		payoutRepo: payoutRepo,
		policy:     policy,
		now:        time.Now,
	}
}

// RecordPayout stores a payout reported by the gateway. A payout seen again
// keeps whatever status an operator already gave it.
func (s *payoutService) RecordPayout(ctx context.Context, payout *domain.PayoutReconciliation) (*domain.PayoutReconciliation, error) {
	if payout.PayoutID == "" {
		return nil, domain.NewValidationError("payout_id", "must not be empty")
	}
	if payout.Amount.IsNegative() {
		return nil, domain.NewValidationError("amount", "must not be negative")
	}
	if len(payout.Currency) != 3 {
		return nil, domain.NewValidationError("currency", "must be a 3-letter code")
	}

	now := s.now().UTC()
	record := *payout
	record.Amount = domain.RoundMoney(record.Amount)
	record.Currency = strings.ToUpper(record.Currency)
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Status == "" {
		record.Status = domain.PayoutStatusPending
	}
	record.CreatedAt = now
	record.UpdatedAt = now

	if err := s.payoutRepo.Upsert(ctx, &record); err != nil {
		return nil, err
	}
	stored, err := s.payoutRepo.GetByPayoutID(ctx, record.PayoutID)
	if err != nil {
		return nil, err
	}
	logger.Info("Payout recorded", "payout_id", stored.PayoutID, "status", stored.Status, "amount", stored.Amount.String())
	return stored, nil
}

func (s *payoutService) ListPayouts(ctx context.Context, status domain.PayoutStatus, limit int) ([]domain.PayoutReconciliation, error) {
	if status != "" {
		if _, err := domain.ParsePayoutStatus(string(status)); err != nil {
			return nil, err
		}
	}
	if limit < 0 {
		return nil, domain.NewValidationError("limit", "must not be negative")
	}
	if limit == 0 {
		limit = defaultPayoutLimit
	}
	if limit > maxPayoutLimit {
		limit = maxPayoutLimit
	}
	return s.payoutRepo.List(ctx, status, limit)
}

func (s *payoutService) UpdatePayoutStatus(ctx context.Context, payoutID string, update PayoutStatusUpdate) (*domain.PayoutReconciliation, error) {
	if _, err := domain.ParsePayoutStatus(string(update.Status)); err != nil {
		return nil, err
	}
	if update.ActorID == "" {
		return nil, domain.NewValidationError("actor_id", "must not be empty")
	}
	if update.Status == domain.PayoutStatusDiscrepancy && update.DiscrepancyAmount == nil {
		return nil, domain.NewValidationError("discrepancy_amount", "required when status is discrepancy")
	}
	if update.Status != domain.PayoutStatusDiscrepancy && update.DiscrepancyAmount != nil {
		return nil, domain.NewValidationError("discrepancy_amount", "only allowed when status is discrepancy")
	}

	payout, err := s.payoutRepo.GetByPayoutID(ctx, payoutID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	payout.Status = update.Status
	payout.UpdatedAt = now
	if update.Notes != "" {
		payout.Details.Notes = update.Notes
	}

	switch update.Status {
	case domain.PayoutStatusDiscrepancy:
		amount := domain.RoundMoney(*update.DiscrepancyAmount)
		payout.Details.DiscrepancyAmount = &amount
		payout.Details.Severity = s.policy.Severity(amount.Abs())
	default:
		payout.Details.DiscrepancyAmount = nil
		payout.Details.Severity = ""
	}

	if update.Status == domain.PayoutStatusPending {
		payout.ReconciledBy = nil
		payout.ReconciledAt = nil
	} else {
		actor := update.ActorID
		payout.ReconciledBy = &actor
		payout.ReconciledAt = &now
	}

	if err := s.payoutRepo.Update(ctx, payout); err != nil {
		return nil, err
	}
	logger.Info("Payout status updated",
		"payout_id", payoutID,
		"status", payout.Status,
		"actor_id", update.ActorID)
	return payout, nil
}
