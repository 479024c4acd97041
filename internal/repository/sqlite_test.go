package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/concierge/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	version, err := store.Migrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
}

func TestRecordUsageAccumulates(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

	rec, err := store.GetUsage(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = store.RecordUsage(ctx, "u1", UsageDelta{InputTokens: 1000, OutputTokens: 500, CostMicros: 3300}, now)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-14", rec.Daily.PeriodKey)
	assert.Equal(t, "2025-03", rec.Monthly.PeriodKey)
	assert.Equal(t, int64(1), rec.Daily.Calls)
	assert.Equal(t, int64(3300), rec.Daily.CostMicros)
	assert.Equal(t, int64(1), rec.Version)

	rec, err = store.RecordUsage(ctx, "u1", UsageDelta{InputTokens: 10, OutputTokens: 20, CostMicros: 99}, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.Daily.Calls)
	assert.Equal(t, int64(1010), rec.Daily.InputTokens)
	assert.Equal(t, int64(520), rec.Daily.OutputTokens)
	assert.Equal(t, int64(3399), rec.Daily.CostMicros)
	assert.Equal(t, int64(3399), rec.Monthly.CostMicros)
	assert.Equal(t, int64(2), rec.Version)

	stored, err := store.GetUsage(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, rec, stored)
}

func TestRecordUsageRollsOver(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	day1 := time.Date(2025, 1, 31, 23, 0, 0, 0, time.UTC)

	_, err := store.RecordUsage(ctx, "u1", UsageDelta{InputTokens: 100, CostMicros: 500}, day1)
	require.NoError(t, err)

	rec, err := store.RecordUsage(ctx, "u1", UsageDelta{InputTokens: 7, CostMicros: 70}, day1.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "2025-02-01", rec.Daily.PeriodKey)
	assert.Equal(t, int64(1), rec.Daily.Calls)
	assert.Equal(t, int64(70), rec.Daily.CostMicros)
	assert.Equal(t, "2025-02", rec.Monthly.PeriodKey)
	assert.Equal(t, int64(70), rec.Monthly.CostMicros)
	assert.Equal(t, int64(2), rec.Version)
}

func TestRecordUsageNeverRollsBack(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	today := time.Date(2025, 6, 2, 0, 5, 0, 0, time.UTC)

	_, err := store.RecordUsage(ctx, "u1", UsageDelta{CostMicros: 100}, today)
	require.NoError(t, err)

	// A request that started before midnight finishes after the rollover.
	rec, err := store.RecordUsage(ctx, "u1", UsageDelta{CostMicros: 40}, today.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "2025-06-02", rec.Daily.PeriodKey)
	assert.Equal(t, int64(140), rec.Daily.CostMicros)
	assert.Equal(t, int64(2), rec.Daily.Calls)
}

func TestRecordUsageRejectsNegativeDelta(t *testing.T) {
	store := newTestStore(t)
	_, err := store.RecordUsage(context.Background(), "u1", UsageDelta{CostMicros: -1}, time.Now())
	assert.Error(t, err)
}

func TestRecordUsageConcurrentWritesAreNotLost(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Now()

	const writers = 50
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.RecordUsage(ctx, "u1", UsageDelta{InputTokens: 1, OutputTokens: 2, CostMicros: 10}, now); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	rec, err := store.GetUsage(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(writers), rec.Daily.Calls)
	assert.Equal(t, int64(writers*10), rec.Daily.CostMicros)
	assert.Equal(t, int64(writers*2), rec.Monthly.OutputTokens)
	assert.Equal(t, int64(writers), rec.Version)
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	user := &domain.User{
		ID:           "u1",
		Username:     "ana",
		Email:        "ana@example.com",
		Role:         domain.RoleUser,
		PasswordHash: "hash",
		CreatedAt:    time.Now(),
	}
	require.NoError(t, store.CreateUser(ctx, user))
	assert.Error(t, store.CreateUser(ctx, &domain.User{ID: "u2", Username: "ana", Role: domain.RoleUser}))

	got, err := store.GetUserByUsername(ctx, "ana")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.ID)
	assert.Equal(t, "hash", got.PasswordHash)

	got, err = store.GetUser(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSlotsAndReservations(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	times, err := store.GetSlotDay(ctx, "2025-05-01")
	require.NoError(t, err)
	assert.Nil(t, times)

	require.NoError(t, store.SetSlotDay(ctx, "2025-05-01", []string{"09:00", "10:00"}))
	require.NoError(t, store.SetSlotDay(ctx, "2025-05-01", []string{"09:00", "10:00", "11:00"}))
	times, err = store.GetSlotDay(ctx, "2025-05-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "10:00", "11:00"}, times)

	res := &domain.Reservation{
		ID:        "r1",
		UserID:    "u1",
		Date:      "2025-05-01",
		Time:      "10:00",
		Service:   "General Consultation",
		Status:    domain.ReservationStatusConfirmed,
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.CreateReservation(ctx, res))

	dup := *res
	dup.ID = "r2"
	err = store.CreateReservation(ctx, &dup)
	assert.True(t, errors.Is(err, domain.ErrSlotUnavailable), "got %v", err)

	reserved, err := store.ListReservedTimes(ctx, "2025-05-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00"}, reserved)

	got, err := store.GetReservation(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, domain.ReservationStatusConfirmed, got.Status)

	got, err = store.GetReservation(ctx, "r2")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPaymentsAndOutbox(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Now()

	require.NoError(t, store.CreateReservation(ctx, &domain.Reservation{
		ID: "r1", UserID: "u1", Date: "2025-05-01", Time: "09:00",
		Service: "General Consultation", Status: domain.ReservationStatusConfirmed, CreatedAt: now,
	}))

	for i := 0; i < 2; i++ {
		require.NoError(t, store.CreatePayment(ctx, &domain.CheckoutSession{
			ID:            fmt.Sprintf("cs_%d", i),
			ReservationID: "r1",
			URL:           fmt.Sprintf("https://pay.example.com/cs_%d", i),
			AmountCents:   2000,
			Currency:      "EUR",
			Status:        domain.PaymentStatusPending,
			CreatedAt:     now.Add(time.Duration(i) * time.Second),
		}))
	}
	latest, err := store.GetLatestPayment(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "cs_1", latest.ID)

	// Payments must reference an existing reservation.
	assert.Error(t, store.CreatePayment(ctx, &domain.CheckoutSession{ID: "cs_x", ReservationID: "nope", CreatedAt: now}))

	require.NoError(t, store.EnqueueMail(ctx, &domain.OutboxMessage{ID: "m1", Recipient: "a@example.com", Subject: "s", Body: "b", CreatedAt: now}))
	require.NoError(t, store.EnqueueMail(ctx, &domain.OutboxMessage{ID: "m2", Recipient: "b@example.com", Subject: "s", Body: "b", CreatedAt: now}))

	all, err := store.ListOutbox(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	mine, err := store.ListOutbox(ctx, "b@example.com")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "m2", mine[0].ID)
}
