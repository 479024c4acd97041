package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xiaot623/gogo/concierge/internal/domain"
)

const usageColumns = `user_id,
	day_key, day_calls, day_input_tokens, day_output_tokens, day_cost_micros,
	month_key, month_calls, month_input_tokens, month_output_tokens, month_cost_micros,
	version, updated_at`

// recordUsageSQL applies one accounted call in a single statement. A stored period key
// older than the current one resets that period's counters; an equal or newer one
// accumulates, so a late request never rolls a period back.
const recordUsageSQL = `
INSERT INTO user_usage (` + usageColumns + `)
VALUES (?, ?, 1, ?, ?, ?, ?, 1, ?, ?, ?, 1, ?)
ON CONFLICT(user_id) DO UPDATE SET
	day_calls = CASE WHEN user_usage.day_key >= excluded.day_key
		THEN user_usage.day_calls + 1 ELSE 1 END,
	day_input_tokens = CASE WHEN user_usage.day_key >= excluded.day_key
		THEN user_usage.day_input_tokens + excluded.day_input_tokens ELSE excluded.day_input_tokens END,
	day_output_tokens = CASE WHEN user_usage.day_key >= excluded.day_key
		THEN user_usage.day_output_tokens + excluded.day_output_tokens ELSE excluded.day_output_tokens END,
	day_cost_micros = CASE WHEN user_usage.day_key >= excluded.day_key
		THEN user_usage.day_cost_micros + excluded.day_cost_micros ELSE excluded.day_cost_micros END,
	day_key = MAX(user_usage.day_key, excluded.day_key),
	month_calls = CASE WHEN user_usage.month_key >= excluded.month_key
		THEN user_usage.month_calls + 1 ELSE 1 END,
	month_input_tokens = CASE WHEN user_usage.month_key >= excluded.month_key
		THEN user_usage.month_input_tokens + excluded.month_input_tokens ELSE excluded.month_input_tokens END,
	month_output_tokens = CASE WHEN user_usage.month_key >= excluded.month_key
		THEN user_usage.month_output_tokens + excluded.month_output_tokens ELSE excluded.month_output_tokens END,
	month_cost_micros = CASE WHEN user_usage.month_key >= excluded.month_key
		THEN user_usage.month_cost_micros + excluded.month_cost_micros ELSE excluded.month_cost_micros END,
	month_key = MAX(user_usage.month_key, excluded.month_key),
	version = user_usage.version + 1,
	updated_at = excluded.updated_at
RETURNING ` + usageColumns

// RecordUsage atomically adds delta to the user's daily and monthly counters.
func (s *SQLiteStore) RecordUsage(ctx context.Context, userID string, delta UsageDelta, now time.Time) (*domain.UsageRecord, error) {
	if delta.InputTokens < 0 || delta.OutputTokens < 0 || delta.CostMicros < 0 {
		return nil, fmt.Errorf("usage delta must not be negative")
	}
	dayKey, monthKey := domain.DayKey(now), domain.MonthKey(now)
	row := s.db.QueryRowContext(ctx, recordUsageSQL,
		userID,
		dayKey, delta.InputTokens, delta.OutputTokens, delta.CostMicros,
		monthKey, delta.InputTokens, delta.OutputTokens, delta.CostMicros,
		toMillis(now),
	)
	rec, err := scanUsage(row)
	if err != nil {
		return nil, fmt.Errorf("failed to record usage: %w", err)
	}
	return rec, nil
}

// GetUsage returns the stored usage record, or nil when the user has none.
func (s *SQLiteStore) GetUsage(ctx context.Context, userID string) (*domain.UsageRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+usageColumns+` FROM user_usage WHERE user_id = ?`, userID)
	rec, err := scanUsage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get usage: %w", err)
	}
	return rec, nil
}

func scanUsage(row *sql.Row) (*domain.UsageRecord, error) {
	var rec domain.UsageRecord
	var updatedAt int64
	err := row.Scan(
		&rec.UserID,
		&rec.Daily.PeriodKey, &rec.Daily.Calls, &rec.Daily.InputTokens, &rec.Daily.OutputTokens, &rec.Daily.CostMicros,
		&rec.Monthly.PeriodKey, &rec.Monthly.Calls, &rec.Monthly.InputTokens, &rec.Monthly.OutputTokens, &rec.Monthly.CostMicros,
		&rec.Version, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.UpdatedAt = fromMillis(updatedAt)
	return &rec, nil
}
