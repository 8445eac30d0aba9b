package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const maxBodyBytes = 1 << 20

type ReconcileBookingRequest struct {
	AutoCorrectThreshold *decimal.Decimal `json:"auto_correct_threshold"`
}

type GenerateReportRequest struct {
	Limit                int              `json:"limit" validate:"gte=0,lte=10000"`
	MinDiscrepancy       *decimal.Decimal `json:"min_discrepancy"`
	AutoCorrectThreshold *decimal.Decimal `json:"auto_correct_threshold"`
}

type RecordPayoutRequest struct {
	PayoutID      string          `json:"payout_id" validate:"required,max=255"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency" validate:"required,len=3,alpha"`
	ArrivalDate   *time.Time      `json:"arrival_date"`
	GatewayStatus string          `json:"gateway_status" validate:"omitempty,max=64"`
}

type UpdatePayoutRequest struct {
	Status            string           `json:"status" validate:"required,oneof=pending reconciled discrepancy"`
	Notes             string           `json:"notes" validate:"max=2000"`
	DiscrepancyAmount *decimal.Decimal `json:"discrepancy_amount"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// bind decodes a JSON body into dst and validates it. An empty body leaves
// dst at its zero value.
func (h *Handler) bind(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body != nil && r.ContentLength != 0 {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("decode body: %w", err)
		}
	}
	return h.validate.Struct(dst)
}
