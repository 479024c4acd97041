// Package repository defines the storage interface and its SQLite implementation.
package repository

import (
	"context"
	"time"

	"github.com/xiaot623/gogo/concierge/internal/domain"
)

// UsageDelta is the usage of one accounted request.
type UsageDelta struct {
	InputTokens  int64
	OutputTokens int64
	CostMicros   int64
}

// Store defines the interface for data persistence.
type Store interface {
	// Usage operations
	RecordUsage(ctx context.Context, userID string, delta UsageDelta, now time.Time) (*domain.UsageRecord, error)
	GetUsage(ctx context.Context, userID string) (*domain.UsageRecord, error)

	// User operations
	CreateUser(ctx context.Context, user *domain.User) error
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)

	// Slot operations
	SetSlotDay(ctx context.Context, date string, times []string) error
	GetSlotDay(ctx context.Context, date string) ([]string, error)
	ListReservedTimes(ctx context.Context, date string) ([]string, error)

	// Reservation operations
	CreateReservation(ctx context.Context, res *domain.Reservation) error
	GetReservation(ctx context.Context, reservationID string) (*domain.Reservation, error)

	// Payment operations
	CreatePayment(ctx context.Context, session *domain.CheckoutSession) error
	GetLatestPayment(ctx context.Context, reservationID string) (*domain.CheckoutSession, error)

	// Outbox operations
	EnqueueMail(ctx context.Context, msg *domain.OutboxMessage) error
	ListOutbox(ctx context.Context, recipient string) ([]domain.OutboxMessage, error)

	// Lifecycle
	Close() error
}

var _ Store = (*SQLiteStore)(nil)
