package postgres

import (
	"context"
	"database/sql"

	"booking-reconciler/internal/domain"
	"booking-reconciler/internal/logger"
	"booking-reconciler/internal/repository"
)

type validationLogRepository struct {
	db *sql.DB
}

func NewValidationLogRepository(db *sql.DB) repository.ValidationLogRepository {
	return &validationLogRepository{db: db}
}

func (r *validationLogRepository) Append(ctx context.Context, e *domain.ValidationLogEntry) error {
	query := `INSERT INTO balance_validation_logs
	            (id, booking_id, run_id, expected_balance, stored_balance, discrepancy, is_valid, severity, auto_corrected, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	res, err := r.db.ExecContext(ctx, query,
		e.ID, e.BookingID, nullString(e.RunID),
		e.ExpectedBalance, e.StoredBalance, e.Discrepancy,
		e.IsValid, e.Severity, e.AutoCorrected, e.Timestamp)
	if err != nil {
		logger.DatabaseResult("append_validation_log", 0, err, "booking_id", e.BookingID)
		return storeError("append validation log", err)
	}
	n, _ := res.RowsAffected()
	logger.DatabaseResult("append_validation_log", n, nil, "booking_id", e.BookingID)
	return nil
}

func (r *validationLogRepository) List(ctx context.Context, f domain.ValidationLogFilter) ([]domain.ValidationLogEntry, error) {
	query := `SELECT id, booking_id, run_id, expected_balance, stored_balance, discrepancy, is_valid, severity, auto_corrected, created_at
	          FROM balance_validation_logs
	          WHERE ABS(discrepancy) >= $1 AND created_at >= $2
	          ORDER BY created_at DESC
	          LIMIT $3 OFFSET $4`
	rows, err := r.db.QueryContext(ctx, query, f.MinDiscrepancy, f.Since, f.Limit, f.Offset)
	if err != nil {
		return nil, storeError("list validation logs", err)
	}
	defer rows.Close()

	entries := []domain.ValidationLogEntry{}
	for rows.Next() {
		var e domain.ValidationLogEntry
		var runID sql.NullString
		if err := rows.Scan(&e.ID, &e.BookingID, &runID, &e.ExpectedBalance, &e.StoredBalance,
			&e.Discrepancy, &e.IsValid, &e.Severity, &e.AutoCorrected, &e.Timestamp); err != nil {
			return nil, storeError("scan validation log", err)
		}
		e.RunID = stringPtr(runID)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterate validation logs", err)
	}
	return entries, nil
}
