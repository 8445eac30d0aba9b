package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"booking-reconciler/internal/domain"
	"booking-reconciler/internal/repository"
)

type runReportRepository struct {
	db *sql.DB
}

func NewRunReportRepository(db *sql.DB) repository.RunReportRepository {
	return &runReportRepository{db: db}
}

const runColumns = `id, status, total_validated, discrepancies, auto_corrected, requires_manual_review,
	failed, duration_ms, started_at, finished_at, triggered_by, last_booking_id, error_message, findings`

func (r *runReportRepository) Create(ctx context.Context, rep *domain.ReconciliationRunReport) error {
	query := `INSERT INTO reconciliation_runs (id, status, started_at, triggered_by) VALUES ($1, $2, $3, $4)`
	if _, err := r.db.ExecContext(ctx, query, rep.ID, rep.Status, rep.StartedAt, rep.TriggeredBy); err != nil {
		return storeError("create run", err)
	}
	return nil
}

func (r *runReportRepository) Finish(ctx context.Context, rep *domain.ReconciliationRunReport) error {
	findings, err := json.Marshal(rep.Findings)
	if err != nil {
		return err
	}
	query := `UPDATE reconciliation_runs
	          SET status = $1, total_validated = $2, discrepancies = $3, auto_corrected = $4,
	              requires_manual_review = $5, failed = $6, duration_ms = $7, finished_at = $8,
	              last_booking_id = $9, error_message = $10, findings = $11
	          WHERE id = $12`
	_, err = r.db.ExecContext(ctx, query,
		rep.Status, rep.TotalValidated, rep.Discrepancies, rep.AutoCorrected,
		rep.RequiresManualReview, rep.Failed, rep.DurationMs, nullTime(rep.FinishedAt),
		rep.LastBookingID, rep.ErrorMessage, findings, rep.ID)
	if err != nil {
		return storeError("finish run "+rep.ID, err)
	}
	return nil
}

func scanRun(row rowScanner) (*domain.ReconciliationRunReport, error) {
	var rep domain.ReconciliationRunReport
	var finishedAt sql.NullTime
	var lastBooking, errMsg sql.NullString
	var findings []byte
	err := row.Scan(&rep.ID, &rep.Status, &rep.TotalValidated, &rep.Discrepancies, &rep.AutoCorrected,
		&rep.RequiresManualReview, &rep.Failed, &rep.DurationMs, &rep.StartedAt, &finishedAt,
		&rep.TriggeredBy, &lastBooking, &errMsg, &findings)
	if err != nil {
		return nil, err
	}
	rep.FinishedAt = timePtr(finishedAt)
	rep.LastBookingID = lastBooking.String
	rep.ErrorMessage = errMsg.String
	if len(findings) > 0 {
		if err := json.Unmarshal(findings, &rep.Findings); err != nil {
			return nil, err
		}
	}
	return &rep, nil
}

func (r *runReportRepository) Latest(ctx context.Context) (*domain.ReconciliationRunReport, error) {
	query := `SELECT ` + runColumns + ` FROM reconciliation_runs ORDER BY started_at DESC LIMIT 1`
	rep, err := scanRun(r.db.QueryRowContext(ctx, query))
	if err != nil {
		return nil, storeError("latest run", err)
	}
	return rep, nil
}

func (r *runReportRepository) List(ctx context.Context, limit int) ([]domain.ReconciliationRunReport, error) {
	query := `SELECT ` + runColumns + ` FROM reconciliation_runs ORDER BY started_at DESC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, storeError("list runs", err)
	}
	defer rows.Close()

	reports := []domain.ReconciliationRunReport{}
	for rows.Next() {
		rep, err := scanRun(rows)
		if err != nil {
			return nil, storeError("scan run", err)
		}
		reports = append(reports, *rep)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterate runs", err)
	}
	return reports, nil
}
