package balance_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"booking-reconciler/internal/balance"
	"booking-reconciler/internal/domain"
)

func movement(kind domain.MovementKind, amount string) domain.LedgerMovement {
	return domain.LedgerMovement{
		BookingID:  "bk-1",
		Kind:       kind,
		Amount:     decimal.RequireFromString(amount),
		Status:     domain.MovementStatusCompleted,
		OccurredAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestComputeExpectedBalance(t *testing.T) {
	total := domain.MustMoney("1000.00")

	t.Run("NoMovements", func(t *testing.T) {
		got := balance.ComputeExpectedBalance(total, nil)
		assert.True(t, got.Equal(total), "got %s", got)
	})

	t.Run("SinglePayment", func(t *testing.T) {
		got := balance.ComputeExpectedBalance(total, []domain.LedgerMovement{movement(domain.MovementKindPayment, "600.00")})
		assert.Equal(t, "400", got.String())
	})

	t.Run("MixedKinds", func(t *testing.T) {
		movements := []domain.LedgerMovement{
			movement(domain.MovementKindDeposit, "100.00"),
			movement(domain.MovementKindPayment, "300.00"),
			movement(domain.MovementKindManual, "50.00"),
			movement(domain.MovementKindFee, "10.00"),
			movement(domain.MovementKindRefund, "25.00"),
			movement(domain.MovementKindAdjustment, "-15.00"),
			movement(domain.MovementKindAdjustment, "5.00"),
		}
		b := balance.Compute(total, movements, false)
		assert.Equal(t, "460", b.Collected.String())
		assert.Equal(t, "25", b.Refunded.String())
		assert.Equal(t, "-10", b.Adjustments.String())
		// 1000 - 460 + 25 - 10
		assert.Equal(t, "555", b.Expected.String())
		assert.False(t, b.Clamped)
	})

	t.Run("IgnoresIncompleteMovements", func(t *testing.T) {
		pending := movement(domain.MovementKindPayment, "600.00")
		pending.Status = domain.MovementStatusPending
		got := balance.ComputeExpectedBalance(total, []domain.LedgerMovement{pending})
		assert.True(t, got.Equal(total))
	})

	t.Run("OverpaymentClampedToZero", func(t *testing.T) {
		b := balance.Compute(total, []domain.LedgerMovement{movement(domain.MovementKindPayment, "1200.00")}, false)
		assert.True(t, b.Expected.IsZero())
		assert.True(t, b.Clamped)
		assert.Equal(t, "200", b.Overpayment.String())
	})

	t.Run("OverpaymentAllowedNegative", func(t *testing.T) {
		b := balance.Compute(total, []domain.LedgerMovement{movement(domain.MovementKindPayment, "1200.00")}, true)
		assert.Equal(t, "-200", b.Expected.String())
		assert.False(t, b.Clamped)
	})

	t.Run("RoundsHalfToEven", func(t *testing.T) {
		got := balance.ComputeExpectedBalance(decimal.RequireFromString("10.125"), nil)
		assert.Equal(t, "10.12", got.String())
		got = balance.ComputeExpectedBalance(decimal.RequireFromString("10.135"), nil)
		assert.Equal(t, "10.14", got.String())
	})
}

func TestPolicy_Severity(t *testing.T) {
	p := balance.DefaultPolicy()
	cases := map[string]domain.Severity{
		"0.50":  domain.SeverityLow,
		"5":     domain.SeverityMedium,
		"50":    domain.SeverityHigh,
		"500":   domain.SeverityCritical,
		"1":     domain.SeverityMedium,
		"100":   domain.SeverityCritical,
		"99.99": domain.SeverityHigh,
	}
	for amount, want := range cases {
		assert.Equal(t, want, p.Severity(decimal.RequireFromString(amount)), amount)
	}
}

func TestPolicy_Classify(t *testing.T) {
	p := balance.DefaultPolicy()
	expected := domain.MustMoney("400.00")

	t.Run("Matching", func(t *testing.T) {
		r := p.Classify("bk-1", domain.MustMoney("400.00"), expected)
		assert.True(t, r.IsValid)
		assert.True(t, r.Discrepancy.IsZero())
		assert.Equal(t, domain.SeverityLow, r.Severity)
	})

	t.Run("WithinEpsilon", func(t *testing.T) {
		r := p.Classify("bk-1", domain.MustMoney("400.01"), expected)
		assert.True(t, r.IsValid)
	})

	t.Run("SignedDiscrepancy", func(t *testing.T) {
		r := p.Classify("bk-1", domain.MustMoney("399.00"), expected)
		assert.False(t, r.IsValid)
		assert.Equal(t, "-1", r.Discrepancy.String())
		assert.Equal(t, domain.SeverityMedium, r.Severity)
	})

	t.Run("Critical", func(t *testing.T) {
		r := p.Classify("bk-1", domain.MustMoney("550.00"), expected)
		assert.False(t, r.IsValid)
		assert.Equal(t, "150", r.Discrepancy.String())
		assert.Equal(t, domain.SeverityCritical, r.Severity)
	})
}

func TestPolicy_Decide(t *testing.T) {
	expected := domain.MustMoney("400.00")
	one := domain.MustMoney("1.00")
	p := balance.DefaultPolicy().WithAutoCorrectThreshold(&one)

	assert.Equal(t, balance.ActionNone, p.Decide(p.Classify("bk", expected, expected)))
	assert.Equal(t, balance.ActionCorrect, p.Decide(p.Classify("bk", domain.MustMoney("401.00"), expected)))
	assert.Equal(t, balance.ActionEscalate, p.Decide(p.Classify("bk", domain.MustMoney("401.01"), expected)))
	assert.Equal(t, balance.ActionEscalate, p.Decide(p.Classify("bk", domain.MustMoney("550.00"), expected)))

	// default threshold equals epsilon, so any invalid result escalates
	d := balance.DefaultPolicy()
	assert.Equal(t, balance.ActionEscalate, d.Decide(d.Classify("bk", domain.MustMoney("400.02"), expected)))
}

func TestPolicy_Validate(t *testing.T) {
	assert.NoError(t, balance.DefaultPolicy().Validate())

	p := balance.DefaultPolicy()
	p.Breakpoints.Medium = domain.MustMoney("0.5")
	assert.Error(t, p.Validate())

	p = balance.DefaultPolicy()
	p.Epsilon = domain.MustMoney("-0.01")
	assert.Error(t, p.Validate())
}
