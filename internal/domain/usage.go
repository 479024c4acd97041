package domain

import "time"

// MicrosPerUnit is the number of cost micros in one unit of the billing currency.
const MicrosPerUnit = 1_000_000

// Usage is the token usage of one or more model calls.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Add accumulates other into u.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
}

// Total returns the sum of prompt and completion tokens.
func (u Usage) Total() int {
	return u.PromptTokens + u.CompletionTokens
}

// IsZero reports whether no tokens were used.
func (u Usage) IsZero() bool {
	return u.PromptTokens == 0 && u.CompletionTokens == 0
}

// UsagePeriodCounters are the counters for one calendar day or month (UTC).
type UsagePeriodCounters struct {
	PeriodKey    string `json:"periodKey"`
	Calls        int64  `json:"calls"`
	InputTokens  int64  `json:"inputTokens"`
	OutputTokens int64  `json:"outputTokens"`
	CostMicros   int64  `json:"costMicros"`
}

// UsageRecord is the persisted usage of one user.
type UsageRecord struct {
	UserID    string              `json:"userId"`
	Daily     UsagePeriodCounters `json:"daily"`
	Monthly   UsagePeriodCounters `json:"monthly"`
	Version   int64               `json:"version"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

// QuotaPolicy holds the process-wide cost caps.
type QuotaPolicy struct {
	DailyCapMicros   int64 `json:"dailyCapMicros"`
	MonthlyCapMicros int64 `json:"monthlyCapMicros"`
}

// UsageSnapshot is a usage record together with derived display amounts and cap state.
type UsageSnapshot struct {
	UsageRecord
	DisplayCurrency      string `json:"displayCurrency"`
	DailyDisplayMicros   int64  `json:"dailyDisplayMicros"`
	MonthlyDisplayMicros int64  `json:"monthlyDisplayMicros"`
	DailyExhausted       bool   `json:"dailyExhausted"`
	MonthlyExhausted     bool   `json:"monthlyExhausted"`
}

// DayKey returns the UTC calendar day key for t.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// MonthKey returns the UTC calendar month key for t.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
