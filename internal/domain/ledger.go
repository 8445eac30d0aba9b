package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type MovementKind string

const (
	MovementKindDeposit    MovementKind = "deposit"
	MovementKindPayment    MovementKind = "payment"
	MovementKindRefund     MovementKind = "refund"
	MovementKindManual     MovementKind = "manual"
	MovementKindAdjustment MovementKind = "adjustment"
	MovementKindFee        MovementKind = "fee"
)

func (k MovementKind) Valid() bool {
	switch k {
	case MovementKindDeposit, MovementKindPayment, MovementKindRefund,
		MovementKindManual, MovementKindAdjustment, MovementKindFee:
		return true
	}
	return false
}

type MovementStatus string

const (
	MovementStatusPending   MovementStatus = "pending"
	MovementStatusCompleted MovementStatus = "completed"
	MovementStatusFailed    MovementStatus = "failed"
	MovementStatusCancelled MovementStatus = "cancelled"
)

// LedgerMovement is one monetary event recorded against a booking.
// Amount is a magnitude for every kind except adjustments, which are signed:
// a positive adjustment increases the balance owed.
type LedgerMovement struct {
	ID         string          `json:"id"`
	BookingID  string          `json:"booking_id"`
	Kind       MovementKind    `json:"kind"`
	Amount     decimal.Decimal `json:"amount"`
	Status     MovementStatus  `json:"status"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Booking is the slice of the booking record the reconciler reads.
type Booking struct {
	ID            string          `json:"id"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	BalanceAmount decimal.Decimal `json:"balance_amount"`
	Status        string          `json:"status"`
}
