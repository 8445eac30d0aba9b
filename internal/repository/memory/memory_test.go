package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"booking-reconciler/internal/domain"
)

func seed(s *Store, id string, withMovement bool) {
	s.PutBooking(domain.Booking{ID: id, TotalAmount: domain.MustMoney("100"), BalanceAmount: domain.MustMoney("100")})
	if withMovement {
		s.AddMovement(domain.LedgerMovement{BookingID: id, Kind: domain.MovementKindPayment, Amount: domain.MustMoney("10"), Status: domain.MovementStatusCompleted})
	}
}

func TestStore_Bookings(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seed(s, "bk-3", true)
	seed(s, "bk-1", true)
	seed(s, "bk-2", false)
	seed(s, "bk-4", true)

	t.Run("ListWithActivityOrderedAfterCursor", func(t *testing.T) {
		ids, err := s.ListWithActivity(ctx, "", 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"bk-1", "bk-3", "bk-4"}, ids)

		ids, err = s.ListWithActivity(ctx, "bk-1", 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"bk-3"}, ids)
	})

	t.Run("ListWithActivityIncludesPendingOnly", func(t *testing.T) {
		seed(s, "bk-5", false)
		s.AddMovement(domain.LedgerMovement{BookingID: "bk-5", Kind: domain.MovementKindPayment, Amount: domain.MustMoney("10"), Status: "pending"})

		ids, err := s.ListWithActivity(ctx, "bk-4", 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"bk-5"}, ids)
	})

	t.Run("CompletedMovementsOnly", func(t *testing.T) {
		s.AddMovement(domain.LedgerMovement{BookingID: "bk-1", Kind: domain.MovementKindRefund, Amount: domain.MustMoney("5"), Status: "pending"})
		ms, err := s.ListCompletedMovements(ctx, "bk-1")
		require.NoError(t, err)
		assert.Len(t, ms, 1)

		_, err = s.ListCompletedMovements(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("CompareAndSet", func(t *testing.T) {
		ok, err := s.CompareAndSetBalance(ctx, "bk-1", domain.MustMoney("100"), domain.MustMoney("90"))
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.CompareAndSetBalance(ctx, "bk-1", domain.MustMoney("100"), domain.MustMoney("80"))
		require.NoError(t, err)
		assert.False(t, ok)

		bal, err := s.GetBalance(ctx, "bk-1")
		require.NoError(t, err)
		assert.True(t, bal.Equal(domain.MustMoney("90")))
	})

	t.Run("CompareAndSetUnroundedBalance", func(t *testing.T) {
		s.SetStoredBalance("bk-1", domain.MustMoney("400.015"))

		ok, err := s.CompareAndSetBalance(ctx, "bk-1", domain.RoundMoney(domain.MustMoney("400.015")), domain.MustMoney("400"))
		require.NoError(t, err)
		assert.False(t, ok, "rounded value must not match the raw stored balance")

		ok, err = s.CompareAndSetBalance(ctx, "bk-1", domain.MustMoney("400.015"), domain.MustMoney("400"))
		require.NoError(t, err)
		assert.True(t, ok)

		bal, err := s.GetBalance(ctx, "bk-1")
		require.NoError(t, err)
		assert.True(t, bal.Equal(domain.MustMoney("400")))
	})
}

func TestStore_Logs(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	now := time.Now().UTC()
	for i, d := range []string{"0", "5", "50"} {
		require.NoError(t, s.Append(ctx, &domain.ValidationLogEntry{
			BookingID:   "bk",
			Discrepancy: domain.MustMoney(d),
			Timestamp:   now.Add(time.Duration(i) * time.Minute),
		}))
	}

	got, err := s.List(ctx, domain.ValidationLogFilter{MinDiscrepancy: domain.MustMoney("5")})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Discrepancy.Equal(domain.MustMoney("50")))

	got, err = s.List(ctx, domain.ValidationLogFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Discrepancy.Equal(domain.MustMoney("5")))

	got, err = s.List(ctx, domain.ValidationLogFilter{Since: now.Add(90 * time.Second)})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStore_Alerts(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().AlertRepository()
	now := time.Now().UTC()

	resolved := &domain.AlertIncident{ID: "a-1", BookingID: "bk-1", Severity: domain.SeverityHigh, Status: domain.IncidentStatusResolved, CreatedAt: now.Add(-time.Hour)}
	open := &domain.AlertIncident{ID: "a-2", BookingID: "bk-1", Severity: domain.SeverityLow, Status: domain.IncidentStatusOpen, CreatedAt: now}
	require.NoError(t, repo.Create(ctx, resolved))
	require.NoError(t, repo.Create(ctx, open))

	active, err := repo.FindActiveByBooking(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, "a-2", active.ID)

	_, err = repo.FindActiveByBooking(ctx, "bk-2")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	list, err := repo.ListSince(ctx, now.Add(-2*time.Hour), domain.SeverityMedium)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a-1", list[0].ID)

	counts, err := repo.CountBySeverity(ctx, now.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, map[domain.Severity]int{domain.SeverityLow: 1}, counts)

	assert.ErrorIs(t, repo.Update(ctx, &domain.AlertIncident{ID: "missing"}), domain.ErrNotFound)
}

func TestStore_Runs(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().RunReportRepository()

	_, err := repo.Latest(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	for _, id := range []string{"r-1", "r-2"} {
		require.NoError(t, repo.Create(ctx, &domain.ReconciliationRunReport{ID: id, Status: domain.RunStatusRunning}))
	}
	require.NoError(t, repo.Finish(ctx, &domain.ReconciliationRunReport{ID: "r-2", Status: domain.RunStatusSucceeded, TotalValidated: 3}))

	latest, err := repo.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusSucceeded, latest.Status)
	assert.Equal(t, 3, latest.TotalValidated)

	list, err := repo.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "r-2", list[0].ID)
}

func TestStore_PayoutUpsertKeepsStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().PayoutRepository()

	require.NoError(t, repo.Upsert(ctx, &domain.PayoutReconciliation{ID: "p-1", PayoutID: "po_1", Amount: domain.MustMoney("10"), Currency: "USD", Status: domain.PayoutStatusPending}))

	stored, err := repo.GetByPayoutID(ctx, "po_1")
	require.NoError(t, err)
	stored.Status = domain.PayoutStatusReconciled
	require.NoError(t, repo.Update(ctx, stored))

	require.NoError(t, repo.Upsert(ctx, &domain.PayoutReconciliation{PayoutID: "po_1", Amount: domain.MustMoney("12"), Currency: "USD", Status: domain.PayoutStatusPending}))

	stored, err = repo.GetByPayoutID(ctx, "po_1")
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusReconciled, stored.Status)
	assert.True(t, stored.Amount.Equal(domain.MustMoney("12")))
	assert.Equal(t, "p-1", stored.ID)
}
