package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"booking-reconciler/internal/domain"
	"booking-reconciler/internal/repository"
)

type payoutRepository struct {
	db *sql.DB
}

func NewPayoutRepository(db *sql.DB) repository.PayoutRepository {
	return &payoutRepository{db: db}
}

const payoutColumns = `id, payout_id, amount, currency, arrival_date, status, details,
	reconciled_by, reconciled_at, created_at, updated_at`

func scanPayout(row rowScanner) (*domain.PayoutReconciliation, error) {
	var p domain.PayoutReconciliation
	var arrival, reconciledAt sql.NullTime
	var reconciledBy sql.NullString
	var details []byte
	err := row.Scan(&p.ID, &p.PayoutID, &p.Amount, &p.Currency, &arrival, &p.Status, &details,
		&reconciledBy, &reconciledAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.ArrivalDate = timePtr(arrival)
	p.ReconciledBy = stringPtr(reconciledBy)
	p.ReconciledAt = timePtr(reconciledAt)
	if len(details) > 0 {
		if err := json.Unmarshal(details, &p.Details); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

func (r *payoutRepository) Upsert(ctx context.Context, p *domain.PayoutReconciliation) error {
	details, err := json.Marshal(p.Details)
	if err != nil {
		return err
	}
	query := `INSERT INTO payout_reconciliations
	            (id, payout_id, amount, currency, arrival_date, status, details, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	          ON CONFLICT (payout_id) DO UPDATE
	            SET amount = EXCLUDED.amount,
	                currency = EXCLUDED.currency,
	                arrival_date = EXCLUDED.arrival_date,
	                details = payout_reconciliations.details || jsonb_build_object('gateway_status', EXCLUDED.details->'gateway_status'),
	                updated_at = EXCLUDED.updated_at
	          RETURNING ` + payoutColumns
	row := r.db.QueryRowContext(ctx, query,
		p.ID, p.PayoutID, p.Amount, p.Currency, nullTime(p.ArrivalDate), p.Status, details, p.UpdatedAt)
	stored, err := scanPayout(row)
	if err != nil {
		return storeError("upsert payout "+p.PayoutID, err)
	}
	*p = *stored
	return nil
}

func (r *payoutRepository) GetByPayoutID(ctx context.Context, payoutID string) (*domain.PayoutReconciliation, error) {
	query := `SELECT ` + payoutColumns + ` FROM payout_reconciliations WHERE payout_id = $1`
	p, err := scanPayout(r.db.QueryRowContext(ctx, query, payoutID))
	if err != nil {
		return nil, storeError("get payout "+payoutID, err)
	}
	return p, nil
}

func (r *payoutRepository) Update(ctx context.Context, p *domain.PayoutReconciliation) error {
	details, err := json.Marshal(p.Details)
	if err != nil {
		return err
	}
	query := `UPDATE payout_reconciliations
	          SET status = $1, details = $2, reconciled_by = $3, reconciled_at = $4, updated_at = $5
	          WHERE payout_id = $6`
	res, err := r.db.ExecContext(ctx, query, p.Status, details,
		nullString(p.ReconciledBy), nullTime(p.ReconciledAt), p.UpdatedAt, p.PayoutID)
	if err != nil {
		return storeError("update payout "+p.PayoutID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundf("payout %s", p.PayoutID)
	}
	return nil
}

func (r *payoutRepository) List(ctx context.Context, status domain.PayoutStatus, limit int) ([]domain.PayoutReconciliation, error) {
	query := `SELECT ` + payoutColumns + ` FROM payout_reconciliations
	          WHERE ($1 = '' OR status = $1)
	          ORDER BY arrival_date DESC NULLS LAST, created_at DESC
	          LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, string(status), limit)
	if err != nil {
		return nil, storeError("list payouts", err)
	}
	defer rows.Close()

	payouts := []domain.PayoutReconciliation{}
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, storeError("scan payout", err)
		}
		payouts = append(payouts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterate payouts", err)
	}
	return payouts, nil
}
