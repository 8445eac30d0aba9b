package balance

import (
	"fmt"

	"github.com/shopspring/decimal"

	"booking-reconciler/internal/domain"
)

// Breakpoints are the upper bounds (exclusive) of the low, medium and high
// severity bands on |discrepancy|. Anything at or above High is critical.
type Breakpoints struct {
	Low    decimal.Decimal
	Medium decimal.Decimal
	High   decimal.Decimal
}

// Policy holds every threshold the reconciler compares against.
type Policy struct {
	Epsilon              decimal.Decimal
	AutoCorrectThreshold decimal.Decimal
	Breakpoints          Breakpoints
	AllowNegative        bool
}

// DefaultPolicy returns epsilon $0.01, auto-correct $0.01 and bands $1/$10/$100.
func DefaultPolicy() Policy {
	return Policy{
		Epsilon:              domain.MustMoney("0.01"),
		AutoCorrectThreshold: domain.MustMoney("0.01"),
		Breakpoints: Breakpoints{
			Low:    domain.MustMoney("1"),
			Medium: domain.MustMoney("10"),
			High:   domain.MustMoney("100"),
		},
	}
}

func (p Policy) Validate() error {
	if p.Epsilon.IsNegative() {
		return fmt.Errorf("epsilon must not be negative: %s", p.Epsilon)
	}
	if p.AutoCorrectThreshold.IsNegative() {
		return fmt.Errorf("auto-correct threshold must not be negative: %s", p.AutoCorrectThreshold)
	}
	b := p.Breakpoints
	if !b.Low.IsPositive() || !b.Low.LessThan(b.Medium) || !b.Medium.LessThan(b.High) {
		return fmt.Errorf("severity breakpoints must be positive and ascending: %s/%s/%s", b.Low, b.Medium, b.High)
	}
	return nil
}

// WithAutoCorrectThreshold returns a copy of p using threshold when it is set.
func (p Policy) WithAutoCorrectThreshold(threshold *decimal.Decimal) Policy {
	if threshold != nil {
		p.AutoCorrectThreshold = domain.RoundMoney(*threshold)
	}
	return p
}

// Severity bands an absolute discrepancy.
func (p Policy) Severity(abs decimal.Decimal) domain.Severity {
	switch {
	case abs.LessThan(p.Breakpoints.Low):
		return domain.SeverityLow
	case abs.LessThan(p.Breakpoints.Medium):
		return domain.SeverityMedium
	case abs.LessThan(p.Breakpoints.High):
		return domain.SeverityHigh
	default:
		return domain.SeverityCritical
	}
}

// Classify compares the stored balance with the expected one.
// Severity is filled in even for valid results so logs carry it.
func (p Policy) Classify(bookingID string, stored, expected decimal.Decimal) domain.BalanceValidationResult {
	stored = domain.RoundMoney(stored)
	expected = domain.RoundMoney(expected)
	diff := stored.Sub(expected)
	abs := diff.Abs()
	return domain.BalanceValidationResult{
		BookingID:       bookingID,
		ExpectedBalance: expected,
		StoredBalance:   stored,
		Discrepancy:     diff,
		IsValid:         abs.LessThanOrEqual(p.Epsilon),
		Severity:        p.Severity(abs),
	}
}

type Action int

const (
	ActionNone Action = iota
	ActionCorrect
	ActionEscalate
)

func (a Action) String() string {
	switch a {
	case ActionCorrect:
		return "auto_correct"
	case ActionEscalate:
		return "escalate"
	default:
		return "none"
	}
}

// Decide picks what to do with a classified result. Large discrepancies are
// never corrected silently.
func (p Policy) Decide(result domain.BalanceValidationResult) Action {
	if result.IsValid {
		return ActionNone
	}
	if result.AbsDiscrepancy().LessThanOrEqual(p.AutoCorrectThreshold) {
		return ActionCorrect
	}
	return ActionEscalate
}
