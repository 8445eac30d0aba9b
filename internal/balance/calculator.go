package balance

import (
	"github.com/shopspring/decimal"

	"booking-reconciler/internal/domain"
)

// Breakdown shows how an expected balance was derived.
type Breakdown struct {
	TotalAmount decimal.Decimal
	Collected   decimal.Decimal // deposits, payments, manual payments, fees
	Refunded    decimal.Decimal
	Adjustments decimal.Decimal // signed
	Expected    decimal.Decimal
	Overpayment decimal.Decimal
	Clamped     bool
}

// Compute derives the expected outstanding balance:
//
//	expected = total - collected + refunded + adjustments
//
// Only completed movements count. Unless allowNegative is set, an overpaid
// booking is clamped to zero and the excess is reported as Overpayment.
func Compute(total decimal.Decimal, movements []domain.LedgerMovement, allowNegative bool) Breakdown {
	b := Breakdown{
		TotalAmount: domain.RoundMoney(total),
		Collected:   decimal.Zero,
		Refunded:    decimal.Zero,
		Adjustments: decimal.Zero,
		Overpayment: decimal.Zero,
	}

	for _, m := range movements {
		if m.Status != domain.MovementStatusCompleted {
			continue
		}
		amount := domain.RoundMoney(m.Amount)
		switch m.Kind {
		case domain.MovementKindDeposit, domain.MovementKindPayment,
			domain.MovementKindManual, domain.MovementKindFee:
			b.Collected = b.Collected.Add(amount.Abs())
		case domain.MovementKindRefund:
			b.Refunded = b.Refunded.Add(amount.Abs())
		case domain.MovementKindAdjustment:
			b.Adjustments = b.Adjustments.Add(amount)
		}
	}

	expected := b.TotalAmount.Sub(b.Collected).Add(b.Refunded).Add(b.Adjustments)
	if expected.IsNegative() && !allowNegative {
		b.Overpayment = expected.Neg()
		b.Clamped = true
		expected = decimal.Zero
	}
	b.Expected = domain.RoundMoney(expected)
	return b
}

// ComputeExpectedBalance is Compute with the default clamping rule.
func ComputeExpectedBalance(total decimal.Decimal, movements []domain.LedgerMovement) decimal.Decimal {
	return Compute(total, movements, false).Expected
}
