package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/concierge/config"
	"github.com/xiaot623/gogo/concierge/internal/domain"
	"github.com/xiaot623/gogo/concierge/tests/helpers"
)

func newTestLedger(t *testing.T, now *time.Time) *Ledger {
	t.Helper()
	cfg := testConfig()
	l := NewLedger(helpers.NewTestSQLiteStore(t), cfg.Pricing, cfg.Quota, zerolog.Nop())
	l.now = func() time.Time { return *now }
	return l
}

func TestLedgerCost(t *testing.T) {
	now := testNow
	l := newTestLedger(t, &now)

	tests := []struct {
		name               string
		prompt, completion int64
		want               int64
	}{
		{"zero", 0, 0, 0},
		{"one thousand input", 1000, 0, 1100},
		{"one thousand output", 0, 1000, 4400},
		{"rounds down", 1, 0, 1},
		{"rounds down output", 0, 1, 4},
		{"exact half rounds up", 5, 0, 6},
		{"mixed", 1234, 567, 3852},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, l.Cost(tt.prompt, tt.completion))
		})
	}
}

func TestLedgerRecordUsage(t *testing.T) {
	ctx := context.Background()
	now := testNow
	l := newTestLedger(t, &now)

	snap, err := l.RecordUsage(ctx, "u1", domain.Usage{PromptTokens: 10_000, CompletionTokens: 5_000})
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Daily.Calls)
	assert.Equal(t, int64(33_000), snap.Daily.CostMicros)
	assert.Equal(t, int64(29_700), snap.DailyDisplayMicros)
	assert.Equal(t, "EUR", snap.DisplayCurrency)
	assert.False(t, snap.DailyExhausted)

	snap, err = l.RecordUsage(ctx, "u1", domain.Usage{PromptTokens: 10_000, CompletionTokens: 5_000})
	require.NoError(t, err)
	assert.Equal(t, int64(66_000), snap.Daily.CostMicros)
	assert.True(t, snap.DailyExhausted)
	assert.False(t, snap.MonthlyExhausted)
	assert.Equal(t, int64(2), snap.Version)

	_, err = l.RecordUsage(ctx, "u1", domain.Usage{PromptTokens: -1})
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = l.RecordUsage(ctx, "", domain.Usage{PromptTokens: 1})
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestLedgerUsageRollsOverInMemory(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 31, 23, 0, 0, 0, time.UTC)
	l := newTestLedger(t, &now)

	empty, err := l.Usage(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "2026-01-31", empty.Daily.PeriodKey)
	assert.Zero(t, empty.Daily.CostMicros)

	_, err = l.RecordUsage(ctx, "u1", domain.Usage{PromptTokens: 1000})
	require.NoError(t, err)

	now = time.Date(2026, 2, 1, 0, 5, 0, 0, time.UTC)
	snap, err := l.Usage(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "2026-02-01", snap.Daily.PeriodKey)
	assert.Equal(t, "2026-02", snap.Monthly.PeriodKey)
	assert.Zero(t, snap.Daily.CostMicros)
	assert.Zero(t, snap.Monthly.Calls)
	assert.Equal(t, int64(1), snap.Version, "reads never write")

	snap, err = l.RecordUsage(ctx, "u1", domain.Usage{PromptTokens: 1000})
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Daily.Calls)
	assert.Equal(t, int64(1100), snap.Monthly.CostMicros)
}

func TestLedgerConcurrentRecords(t *testing.T) {
	ctx := context.Background()
	now := testNow
	l := newTestLedger(t, &now)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.RecordUsage(ctx, "u1", domain.Usage{PromptTokens: 1000})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	snap, err := l.Usage(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(20), snap.Daily.Calls)
	assert.Equal(t, int64(22_000), snap.Daily.CostMicros)
}

func TestLedgerZeroCapsRejectEverything(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(helpers.NewTestSQLiteStore(t), testConfig().Pricing, config.QuotaConfig{}, zerolog.Nop())

	snap, err := l.Usage(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, snap.DailyExhausted)
	assert.True(t, snap.MonthlyExhausted)
}

func TestFormatMicros(t *testing.T) {
	assert.Equal(t, "0.000000", FormatMicros(0))
	assert.Equal(t, "0.050000", FormatMicros(50_000))
	assert.Equal(t, "1.234567", FormatMicros(1_234_567))
	assert.Equal(t, "-0.000001", FormatMicros(-1))
}
