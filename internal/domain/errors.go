package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnauthenticated      = errors.New("authentication required")
	ErrForbidden            = errors.New("not allowed")
	ErrToolNotFound         = errors.New("unknown tool")
	ErrDailyQuotaExceeded   = errors.New("daily usage limit reached, please try again tomorrow")
	ErrMonthlyQuotaExceeded = errors.New("monthly usage limit reached, please try again next month")
	ErrModelUnavailable     = errors.New("language model unavailable")
	ErrSlotUnavailable      = errors.New("slot not available")
	ErrNotFound             = errors.New("not found")
)

// FieldError is one schema violation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports invalid input with field-level detail.
type ValidationError struct {
	Message string
	Fields  []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return e.Message + ": " + strings.Join(parts, "; ")
}

// NewValidationError builds a ValidationError.
func NewValidationError(msg string, fields ...FieldError) *ValidationError {
	return &ValidationError{Message: msg, Fields: fields}
}

// IsQuotaExceeded reports whether err is a daily or monthly quota rejection.
func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrDailyQuotaExceeded) || errors.Is(err, ErrMonthlyQuotaExceeded)
}
