package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type IncidentStatus string

const (
	IncidentStatusOpen         IncidentStatus = "open"
	IncidentStatusAcknowledged IncidentStatus = "acknowledged"
	IncidentStatusResolved     IncidentStatus = "resolved"
)

// Active reports whether the incident still needs attention.
func (s IncidentStatus) Active() bool {
	return s == IncidentStatusOpen || s == IncidentStatusAcknowledged
}

type AlertIncident struct {
	ID                string          `json:"id"`
	BookingID         string          `json:"booking_id"`
	Severity          Severity        `json:"severity"`
	DiscrepancyAmount decimal.Decimal `json:"discrepancy_amount"`
	Status            IncidentStatus  `json:"status"`
	AcknowledgedBy    *string         `json:"acknowledged_by,omitempty"`
	AcknowledgedAt    *time.Time      `json:"acknowledged_at,omitempty"`
	ResolvedBy        *string         `json:"resolved_by,omitempty"`
	ResolvedAt        *time.Time      `json:"resolved_at,omitempty"`
	Occurrences       int             `json:"occurrences"`
	LastSeenAt        time.Time       `json:"last_seen_at"`
	CreatedAt         time.Time       `json:"created_at"`
}

// AlertSummary counts incidents by severity within a time window.
type AlertSummary struct {
	Critical  int `json:"critical"`
	High      int `json:"high"`
	Medium    int `json:"medium"`
	Low       int `json:"low"`
	HoursBack int `json:"hours_back"`
}

// Add counts one incident of the given severity.
func (s *AlertSummary) Add(sev Severity) {
	switch sev {
	case SeverityCritical:
		s.Critical++
	case SeverityHigh:
		s.High++
	case SeverityMedium:
		s.Medium++
	case SeverityLow:
		s.Low++
	}
}

func (s AlertSummary) Total() int {
	return s.Critical + s.High + s.Medium + s.Low
}
