package postgres

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"booking-reconciler/internal/domain"
	"booking-reconciler/internal/logger"
	"booking-reconciler/internal/repository"
)

type bookingRepository struct {
	db *sql.DB
}

func NewBookingRepository(db *sql.DB) repository.BookingRepository {
	return &bookingRepository{db: db}
}

func (r *bookingRepository) GetByID(ctx context.Context, bookingID string) (*domain.Booking, error) {
	query := `SELECT id, total_amount, COALESCE(balance_amount, total_amount), status FROM bookings WHERE id = $1`
	var b domain.Booking
	err := r.db.QueryRowContext(ctx, query, bookingID).Scan(&b.ID, &b.TotalAmount, &b.BalanceAmount, &b.Status)
	if err != nil {
		return nil, storeError("get booking "+bookingID, err)
	}
	return &b, nil
}

func (r *bookingRepository) GetBalance(ctx context.Context, bookingID string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	query := `SELECT COALESCE(balance_amount, total_amount) FROM bookings WHERE id = $1`
	if err := r.db.QueryRowContext(ctx, query, bookingID).Scan(&balance); err != nil {
		return decimal.Zero, storeError("get balance "+bookingID, err)
	}
	return balance, nil
}

func (r *bookingRepository) CompareAndSetBalance(ctx context.Context, bookingID string, prev, next decimal.Decimal) (bool, error) {
	query := `UPDATE bookings SET balance_amount = $1, updated_at = NOW()
	          WHERE id = $2 AND COALESCE(balance_amount, total_amount) = $3`
	logger.DatabaseCall("compare_and_set_balance", "booking_id", bookingID, "prev", prev.String(), "next", next.String())
	res, err := r.db.ExecContext(ctx, query, next, bookingID, prev)
	if err != nil {
		logger.DatabaseResult("compare_and_set_balance", 0, err, "booking_id", bookingID)
		return false, storeError("set balance "+bookingID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeError("set balance "+bookingID, err)
	}
	logger.DatabaseResult("compare_and_set_balance", n, nil, "booking_id", bookingID)
	return n == 1, nil
}

func (r *bookingRepository) ListWithActivity(ctx context.Context, afterID string, limit int) ([]string, error) {
	query := `SELECT b.id FROM bookings b
	          WHERE b.id > $1
	            AND EXISTS (SELECT 1 FROM booking_ledger_movements m WHERE m.booking_id = b.id)
	          ORDER BY b.id ASC
	          LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, afterID, limit)
	if err != nil {
		return nil, storeError("list bookings", err)
	}
	defer rows.Close()

	ids := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storeError("scan booking id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterate bookings", err)
	}
	return ids, nil
}
