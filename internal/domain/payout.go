package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PayoutStatus string

const (
	PayoutStatusPending     PayoutStatus = "pending"
	PayoutStatusReconciled  PayoutStatus = "reconciled"
	PayoutStatusDiscrepancy PayoutStatus = "discrepancy"
)

func ParsePayoutStatus(s string) (PayoutStatus, error) {
	switch st := PayoutStatus(s); st {
	case PayoutStatusPending, PayoutStatusReconciled, PayoutStatusDiscrepancy:
		return st, nil
	}
	return "", NewValidationError("status", "unknown payout status %q", s)
}

type PayoutDetails struct {
	Notes             string           `json:"notes,omitempty"`
	DiscrepancyAmount *decimal.Decimal `json:"discrepancy_amount,omitempty"`
	Severity          Severity         `json:"severity,omitempty"`
	GatewayStatus     string           `json:"gateway_status,omitempty"`
}

// PayoutReconciliation tracks one payment-gateway payout batch.
type PayoutReconciliation struct {
	ID           string          `json:"id"`
	PayoutID     string          `json:"payout_id"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	ArrivalDate  *time.Time      `json:"arrival_date,omitempty"`
	Status       PayoutStatus    `json:"status"`
	Details      PayoutDetails   `json:"details"`
	ReconciledBy *string         `json:"reconciled_by,omitempty"`
	ReconciledAt *time.Time      `json:"reconciled_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
