package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/xiaot623/gogo/concierge/config"
	"github.com/xiaot623/gogo/concierge/internal/domain"
	"github.com/xiaot623/gogo/concierge/internal/repository"
)

// Ledger prices model usage and keeps per-user daily and monthly counters.
type Ledger struct {
	store   repository.Store
	pricing config.PricingConfig
	policy  domain.QuotaPolicy
	logger  zerolog.Logger
	now     func() time.Time
}

// NewLedger creates a ledger over store.
func NewLedger(store repository.Store, pricing config.PricingConfig, quota config.QuotaConfig, logger zerolog.Logger) *Ledger {
	return &Ledger{
		store:   store,
		pricing: pricing,
		policy: domain.QuotaPolicy{
			DailyCapMicros:   config.CentsToMicros(quota.DailyCapCents),
			MonthlyCapMicros: config.CentsToMicros(quota.MonthlyCapCents),
		},
		logger: logger.With().Str("component", "ledger").Logger(),
		now:    time.Now,
	}
}

// Policy returns the caps the ledger compares against.
func (l *Ledger) Policy() domain.QuotaPolicy {
	return l.policy
}

// Cost returns the price of a call in micros, rounded half up.
func (l *Ledger) Cost(promptTokens, completionTokens int64) int64 {
	scaled := promptTokens*l.pricing.InputMicrosPer1K + completionTokens*l.pricing.OutputMicrosPer1K
	return (scaled + 500) / 1000
}

// RecordUsage adds one accounted call to the user's counters and returns the updated snapshot.
func (l *Ledger) RecordUsage(ctx context.Context, userID string, usage domain.Usage) (*domain.UsageSnapshot, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	if usage.PromptTokens < 0 || usage.CompletionTokens < 0 {
		return nil, domain.NewValidationError("token counts must not be negative")
	}

	prompt, completion := int64(usage.PromptTokens), int64(usage.CompletionTokens)
	rec, err := l.store.RecordUsage(ctx, userID, repository.UsageDelta{
		InputTokens:  prompt,
		OutputTokens: completion,
		CostMicros:   l.Cost(prompt, completion),
	}, l.now())
	if err != nil {
		return nil, err
	}
	return l.snapshot(rec), nil
}

// Usage returns the user's current counters. Periods that have ended read as zero; nothing is written.
func (l *Ledger) Usage(ctx context.Context, userID string) (*domain.UsageSnapshot, error) {
	rec, err := l.store.GetUsage(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := l.now()
	if rec == nil {
		rec = &domain.UsageRecord{UserID: userID}
	}
	if day := domain.DayKey(now); rec.Daily.PeriodKey < day {
		rec.Daily = domain.UsagePeriodCounters{PeriodKey: day}
	}
	if month := domain.MonthKey(now); rec.Monthly.PeriodKey < month {
		rec.Monthly = domain.UsagePeriodCounters{PeriodKey: month}
	}
	return l.snapshot(rec), nil
}

func (l *Ledger) snapshot(rec *domain.UsageRecord) *domain.UsageSnapshot {
	return &domain.UsageSnapshot{
		UsageRecord:          *rec,
		DisplayCurrency:      l.pricing.DisplayCurrency,
		DailyDisplayMicros:   l.display(rec.Daily.CostMicros),
		MonthlyDisplayMicros: l.display(rec.Monthly.CostMicros),
		DailyExhausted:       rec.Daily.CostMicros >= l.policy.DailyCapMicros,
		MonthlyExhausted:     rec.Monthly.CostMicros >= l.policy.MonthlyCapMicros,
	}
}

func (l *Ledger) display(micros int64) int64 {
	return micros * l.pricing.DisplayRatePPM / domain.MicrosPerUnit
}

// FormatMicros renders micros as a decimal amount with six places.
func FormatMicros(micros int64) string {
	sign := ""
	if micros < 0 {
		sign, micros = "-", -micros
	}
	return fmt.Sprintf("%s%d.%06d", sign, micros/domain.MicrosPerUnit, micros%domain.MicrosPerUnit)
}
