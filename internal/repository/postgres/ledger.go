package postgres

import (
	"context"
	"database/sql"

	"booking-reconciler/internal/domain"
	"booking-reconciler/internal/logger"
	"booking-reconciler/internal/repository"
)

type ledgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) repository.LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) ListCompletedMovements(ctx context.Context, bookingID string) ([]domain.LedgerMovement, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM bookings WHERE id = $1)`, bookingID).Scan(&exists)
	if err != nil {
		return nil, storeError("check booking", err)
	}
	if !exists {
		return nil, domain.NotFoundf("booking %s", bookingID)
	}

	query := `SELECT id, booking_id, kind, amount, status, occurred_at
	          FROM booking_ledger_movements
	          WHERE booking_id = $1 AND status = 'completed'
	          ORDER BY occurred_at ASC, id ASC`
	logger.DatabaseCall("list_completed_movements", "booking_id", bookingID)
	rows, err := r.db.QueryContext(ctx, query, bookingID)
	if err != nil {
		return nil, storeError("list movements", err)
	}
	defer rows.Close()

	movements := []domain.LedgerMovement{}
	for rows.Next() {
		var m domain.LedgerMovement
		if err := rows.Scan(&m.ID, &m.BookingID, &m.Kind, &m.Amount, &m.Status, &m.OccurredAt); err != nil {
			return nil, storeError("scan movement", err)
		}
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterate movements", err)
	}
	logger.DatabaseResult("list_completed_movements", int64(len(movements)), nil, "booking_id", bookingID)
	return movements, nil
}
