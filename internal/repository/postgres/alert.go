package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"booking-reconciler/internal/domain"
	"booking-reconciler/internal/repository"
)

type alertRepository struct {
	db *sql.DB
}

func NewAlertRepository(db *sql.DB) repository.AlertRepository {
	return &alertRepository{db: db}
}

const alertColumns = `id, booking_id, severity, discrepancy_amount, status,
	acknowledged_by, acknowledged_at, resolved_by, resolved_at, occurrences, last_seen_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*domain.AlertIncident, error) {
	var a domain.AlertIncident
	var ackBy, resBy sql.NullString
	var ackAt, resAt sql.NullTime
	err := row.Scan(&a.ID, &a.BookingID, &a.Severity, &a.DiscrepancyAmount, &a.Status,
		&ackBy, &ackAt, &resBy, &resAt, &a.Occurrences, &a.LastSeenAt, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.AcknowledgedBy = stringPtr(ackBy)
	a.AcknowledgedAt = timePtr(ackAt)
	a.ResolvedBy = stringPtr(resBy)
	a.ResolvedAt = timePtr(resAt)
	return &a, nil
}

func (r *alertRepository) Create(ctx context.Context, a *domain.AlertIncident) error {
	query := `INSERT INTO financial_alerts (` + alertColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.BookingID, a.Severity, a.DiscrepancyAmount, a.Status,
		nullString(a.AcknowledgedBy), nullTime(a.AcknowledgedAt),
		nullString(a.ResolvedBy), nullTime(a.ResolvedAt),
		a.Occurrences, a.LastSeenAt, a.CreatedAt)
	if err != nil {
		return storeError("create alert", err)
	}
	return nil
}

func (r *alertRepository) GetByID(ctx context.Context, id string) (*domain.AlertIncident, error) {
	query := `SELECT ` + alertColumns + ` FROM financial_alerts WHERE id = $1`
	a, err := scanAlert(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, storeError("get alert "+id, err)
	}
	return a, nil
}

func (r *alertRepository) FindActiveByBooking(ctx context.Context, bookingID string) (*domain.AlertIncident, error) {
	query := `SELECT ` + alertColumns + ` FROM financial_alerts
	          WHERE booking_id = $1 AND status IN ('open', 'acknowledged')
	          ORDER BY created_at DESC LIMIT 1`
	a, err := scanAlert(r.db.QueryRowContext(ctx, query, bookingID))
	if err != nil {
		return nil, storeError("find active alert for booking "+bookingID, err)
	}
	return a, nil
}

func (r *alertRepository) Update(ctx context.Context, a *domain.AlertIncident) error {
	query := `UPDATE financial_alerts
	          SET severity = $1, discrepancy_amount = $2, status = $3,
	              acknowledged_by = $4, acknowledged_at = $5, resolved_by = $6, resolved_at = $7,
	              occurrences = $8, last_seen_at = $9
	          WHERE id = $10`
	res, err := r.db.ExecContext(ctx, query,
		a.Severity, a.DiscrepancyAmount, a.Status,
		nullString(a.AcknowledgedBy), nullTime(a.AcknowledgedAt),
		nullString(a.ResolvedBy), nullTime(a.ResolvedAt),
		a.Occurrences, a.LastSeenAt, a.ID)
	if err != nil {
		return storeError("update alert "+a.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeError("update alert "+a.ID, err)
	}
	if n == 0 {
		return domain.NotFoundf("alert %s", a.ID)
	}
	return nil
}

func severitiesAtLeast(min domain.Severity) []string {
	var out []string
	for _, s := range domain.Severities {
		if s.AtLeast(min) {
			out = append(out, string(s))
		}
	}
	return out
}

func (r *alertRepository) ListSince(ctx context.Context, since time.Time, minSeverity domain.Severity) ([]domain.AlertIncident, error) {
	query := `SELECT ` + alertColumns + ` FROM financial_alerts
	          WHERE created_at >= $1 AND severity = ANY($2)
	          ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, since, pq.Array(severitiesAtLeast(minSeverity)))
	if err != nil {
		return nil, storeError("list alerts", err)
	}
	defer rows.Close()

	alerts := []domain.AlertIncident{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, storeError("scan alert", err)
		}
		alerts = append(alerts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterate alerts", err)
	}
	return alerts, nil
}

func (r *alertRepository) CountBySeverity(ctx context.Context, since time.Time) (map[domain.Severity]int, error) {
	query := `SELECT severity, count(*) FROM financial_alerts WHERE created_at >= $1 GROUP BY severity`
	rows, err := r.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, storeError("count alerts", err)
	}
	defer rows.Close()

	counts := make(map[domain.Severity]int)
	for rows.Next() {
		var sev domain.Severity
		var n int
		if err := rows.Scan(&sev, &n); err != nil {
			return nil, storeError("scan alert count", err)
		}
		counts[sev] = n
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterate alert counts", err)
	}
	return counts, nil
}
