package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"booking-reconciler/internal/domain"
	"booking-reconciler/internal/logger"
	"booking-reconciler/internal/repository"
)

const maxHoursBack = 24 * 366

type alertService struct {
	alertRepo repository.AlertRepository
	notifier  AlertNotifier
	minNotify domain.Severity
	now       func() time.Time
}

// NewAlertService builds the incident manager. notifier may be nil; only
// incidents at or above minNotify are sent to it.
func NewAlertService(alertRepo repository.AlertRepository, notifier AlertNotifier, minNotify domain.Severity) AlertService {
	if minNotify == "" {
		minNotify = domain.SeverityHigh
	}
	return &alertService{
		alertRepo: alertRepo,
		notifier:  notifier,
		minNotify: minNotify,
		now:       time.Now,
	}
}

func (s *alertService) Raise(ctx context.Context, result domain.BalanceValidationResult) (*domain.AlertIncident, bool, error) {
	if result.IsValid {
		return nil, false, domain.NewValidationError("result", "booking %s has no discrepancy to alert on", result.BookingID)
	}
	now := s.now().UTC()

	existing, err := s.alertRepo.FindActiveByBooking(ctx, result.BookingID)
	switch {
	case err == nil:
		existing.Severity = result.Severity
		existing.DiscrepancyAmount = result.Discrepancy
		existing.Occurrences++
		existing.LastSeenAt = now
		if err := s.alertRepo.Update(ctx, existing); err != nil {
			return nil, false, fmt.Errorf("refresh incident %s: %w", existing.ID, err)
		}
		logger.Info("Existing incident refreshed",
			"incident_id", existing.ID,
			"booking_id", existing.BookingID,
			"severity", existing.Severity,
			"occurrences", existing.Occurrences)
		return existing, false, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, false, fmt.Errorf("find active incident: %w", err)
	}

	incident := &domain.AlertIncident{
		ID:                uuid.NewString(),
		BookingID:         result.BookingID,
		Severity:          result.Severity,
		DiscrepancyAmount: result.Discrepancy,
		Status:            domain.IncidentStatusOpen,
		Occurrences:       1,
		LastSeenAt:        now,
		CreatedAt:         now,
	}
	if err := s.alertRepo.Create(ctx, incident); err != nil {
		return nil, false, fmt.Errorf("create incident: %w", err)
	}
	logger.Warn("Incident opened",
		"incident_id", incident.ID,
		"booking_id", incident.BookingID,
		"severity", incident.Severity,
		"discrepancy", incident.DiscrepancyAmount.String())

	s.notify(ctx, incident)
	return incident, true, nil
}

func (s *alertService) notify(ctx context.Context, incident *domain.AlertIncident) {
	if s.notifier == nil || !incident.Severity.AtLeast(s.minNotify) {
		return
	}
	if err := s.notifier.NotifyIncidentOpened(ctx, incident); err != nil {
		logger.Error("Failed to send incident notification", "incident_id", incident.ID, "error", err)
	}
}

func (s *alertService) Acknowledge(ctx context.Context, incidentID, actorID string) (*domain.AlertIncident, error) {
	if actorID == "" {
		return nil, domain.NewValidationError("actor_id", "must not be empty")
	}
	incident, err := s.alertRepo.GetByID(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if incident.Status != domain.IncidentStatusOpen {
		return nil, &domain.StateError{IncidentID: incidentID, Current: incident.Status, Attempted: "acknowledge"}
	}

	now := s.now().UTC()
	incident.Status = domain.IncidentStatusAcknowledged
	incident.AcknowledgedBy = &actorID
	incident.AcknowledgedAt = &now
	if err := s.alertRepo.Update(ctx, incident); err != nil {
		return nil, err
	}
	logger.Info("Incident acknowledged", "incident_id", incidentID, "actor_id", actorID)
	return incident, nil
}

func (s *alertService) Resolve(ctx context.Context, incidentID, actorID string) (*domain.AlertIncident, error) {
	if actorID == "" {
		return nil, domain.NewValidationError("actor_id", "must not be empty")
	}
	incident, err := s.alertRepo.GetByID(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if !incident.Status.Active() {
		return nil, &domain.StateError{IncidentID: incidentID, Current: incident.Status, Attempted: "resolve"}
	}

	now := s.now().UTC()
	incident.Status = domain.IncidentStatusResolved
	incident.ResolvedBy = &actorID
	incident.ResolvedAt = &now
	if err := s.alertRepo.Update(ctx, incident); err != nil {
		return nil, err
	}
	logger.Info("Incident resolved", "incident_id", incidentID, "actor_id", actorID)
	return incident, nil
}

func (s *alertService) since(hoursBack int) (time.Time, error) {
	if hoursBack <= 0 || hoursBack > maxHoursBack {
		return time.Time{}, domain.NewValidationError("hours_back", "must be between 1 and %d", maxHoursBack)
	}
	return s.now().UTC().Add(-time.Duration(hoursBack) * time.Hour), nil
}

func (s *alertService) ListAlerts(ctx context.Context, hoursBack int, minSeverity domain.Severity) ([]domain.AlertIncident, error) {
	since, err := s.since(hoursBack)
	if err != nil {
		return nil, err
	}
	if minSeverity == "" {
		minSeverity = domain.SeverityLow
	}
	if minSeverity.Rank() == 0 {
		return nil, domain.NewValidationError("min_severity", "unknown severity %q", minSeverity)
	}
	return s.alertRepo.ListSince(ctx, since, minSeverity)
}

func (s *alertService) Summarize(ctx context.Context, hoursBack int) (*domain.AlertSummary, error) {
	since, err := s.since(hoursBack)
	if err != nil {
		return nil, err
	}
	counts, err := s.alertRepo.CountBySeverity(ctx, since)
	if err != nil {
		return nil, err
	}
	summary := &domain.AlertSummary{HoursBack: hoursBack}
	summary.Critical = counts[domain.SeverityCritical]
	summary.High = counts[domain.SeverityHigh]
	summary.Medium = counts[domain.SeverityMedium]
	summary.Low = counts[domain.SeverityLow]
	return summary, nil
}
