package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Severities lists every severity from least to most severe.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

func ParseSeverity(s string) (Severity, error) {
	sev := Severity(s)
	if _, ok := severityRank[sev]; !ok {
		return "", NewValidationError("severity", "unknown severity %q", s)
	}
	return sev, nil
}

// Rank orders severities; unknown values rank zero.
func (s Severity) Rank() int {
	return severityRank[s]
}

// AtLeast reports whether s is as severe as min or more.
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() >= min.Rank()
}

// BalanceValidationResult is the outcome of comparing a stored balance
// against the balance derived from the ledger.
type BalanceValidationResult struct {
	BookingID       string          `json:"booking_id"`
	ExpectedBalance decimal.Decimal `json:"expected_balance"`
	StoredBalance   decimal.Decimal `json:"stored_balance"`
	Discrepancy     decimal.Decimal `json:"discrepancy"`
	IsValid         bool            `json:"is_valid"`
	Severity        Severity        `json:"severity"`
}

// AbsDiscrepancy returns |stored - expected|.
func (r BalanceValidationResult) AbsDiscrepancy() decimal.Decimal {
	return r.Discrepancy.Abs()
}

// ValidationLogEntry is an immutable audit record of one validation.
type ValidationLogEntry struct {
	ID              string          `json:"id"`
	BookingID       string          `json:"booking_id"`
	RunID           *string         `json:"run_id,omitempty"`
	ExpectedBalance decimal.Decimal `json:"expected_balance"`
	StoredBalance   decimal.Decimal `json:"stored_balance"`
	Discrepancy     decimal.Decimal `json:"discrepancy"`
	IsValid         bool            `json:"is_valid"`
	Severity        Severity        `json:"severity"`
	AutoCorrected   bool            `json:"auto_corrected"`
	Timestamp       time.Time       `json:"timestamp"`
}

// ValidationLogFilter narrows a validation log query.
type ValidationLogFilter struct {
	MinDiscrepancy decimal.Decimal
	Since          time.Time
	Limit          int
	Offset         int
}
