package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xiaot623/gogo/concierge/internal/domain"
)

// SetSlotDay configures the bookable times of a day, replacing any previous set.
func (s *SQLiteStore) SetSlotDay(ctx context.Context, date string, times []string) error {
	if times == nil {
		times = []string{}
	}
	data, err := json.Marshal(times)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO slot_days (date, times) VALUES (?, ?)
		ON CONFLICT(date) DO UPDATE SET times = excluded.times
	`, date, string(data))
	if err != nil {
		return fmt.Errorf("failed to set slot day: %w", err)
	}
	return nil
}

// GetSlotDay returns the configured times of a day, or nil when the day is not configured.
func (s *SQLiteStore) GetSlotDay(ctx context.Context, date string) ([]string, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT times FROM slot_days WHERE date = ?`, date).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot day: %w", err)
	}
	var times []string
	if err := json.Unmarshal([]byte(raw), &times); err != nil {
		return nil, fmt.Errorf("failed to decode slot times: %w", err)
	}
	return times, nil
}

// ListReservedTimes returns the times of confirmed reservations on a day.
func (s *SQLiteStore) ListReservedTimes(ctx context.Context, date string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT time FROM reservations WHERE date = ? AND status = ? ORDER BY time
	`, date, domain.ReservationStatusConfirmed)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	defer rows.Close()

	var times []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		times = append(times, t)
	}
	return times, rows.Err()
}

// CreateReservation inserts a reservation. A second confirmed reservation for the same
// date and time fails with domain.ErrSlotUnavailable.
func (s *SQLiteStore) CreateReservation(ctx context.Context, res *domain.Reservation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reservations (reservation_id, user_id, date, time, service, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, res.ID, res.UserID, res.Date, res.Time, res.Service, res.Status, toMillis(res.CreatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s %s already reserved", domain.ErrSlotUnavailable, res.Date, res.Time)
		}
		return fmt.Errorf("failed to create reservation: %w", err)
	}
	return nil
}

// GetReservation retrieves a reservation by ID.
func (s *SQLiteStore) GetReservation(ctx context.Context, reservationID string) (*domain.Reservation, error) {
	var res domain.Reservation
	var createdAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT reservation_id, user_id, date, time, service, status, created_at
		FROM reservations WHERE reservation_id = ?
	`, reservationID).Scan(&res.ID, &res.UserID, &res.Date, &res.Time, &res.Service, &res.Status, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	res.CreatedAt = fromMillis(createdAt)
	return &res, nil
}

// CreatePayment records a checkout session.
func (s *SQLiteStore) CreatePayment(ctx context.Context, session *domain.CheckoutSession) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (session_id, reservation_id, url, amount_cents, currency, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, session.ID, session.ReservationID, session.URL, session.AmountCents, session.Currency, session.Status, toMillis(session.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetLatestPayment returns the most recent checkout session of a reservation.
func (s *SQLiteStore) GetLatestPayment(ctx context.Context, reservationID string) (*domain.CheckoutSession, error) {
	var p domain.CheckoutSession
	var createdAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, reservation_id, url, amount_cents, currency, status, created_at
		FROM payments WHERE reservation_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1
	`, reservationID).Scan(&p.ID, &p.ReservationID, &p.URL, &p.AmountCents, &p.Currency, &p.Status, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	p.CreatedAt = fromMillis(createdAt)
	return &p, nil
}

// EnqueueMail stores an outgoing email.
func (s *SQLiteStore) EnqueueMail(ctx context.Context, msg *domain.OutboxMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mail_outbox (message_id, recipient, subject, body, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, msg.ID, msg.Recipient, msg.Subject, msg.Body, toMillis(msg.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to enqueue mail: %w", err)
	}
	return nil
}

// ListOutbox returns queued emails, optionally filtered by recipient.
func (s *SQLiteStore) ListOutbox(ctx context.Context, recipient string) ([]domain.OutboxMessage, error) {
	query := `SELECT message_id, recipient, subject, body, created_at FROM mail_outbox`
	var args []interface{}
	if recipient != "" {
		query += ` WHERE recipient = ?`
		args = append(args, recipient)
	}
	query += ` ORDER BY created_at, rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list outbox: %w", err)
	}
	defer rows.Close()

	var out []domain.OutboxMessage
	for rows.Next() {
		var m domain.OutboxMessage
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.Recipient, &m.Subject, &m.Body, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt = fromMillis(createdAt)
		out = append(out, m)
	}
	return out, rows.Err()
}
