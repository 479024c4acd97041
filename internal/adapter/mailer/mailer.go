// Package mailer queues booking emails in the store outbox.
package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/xiaot623/gogo/concierge/config"
	"github.com/xiaot623/gogo/concierge/internal/domain"
	"github.com/xiaot623/gogo/concierge/internal/repository"
)

// Mailer writes confirmation emails to the outbox.
type Mailer struct {
	store      repository.Store
	from       string
	adminEmail string
	logger     zerolog.Logger
	now        func() time.Time
}

// New creates a mailer.
func New(store repository.Store, cfg config.MailConfig, logger zerolog.Logger) *Mailer {
	return &Mailer{
		store:      store,
		from:       cfg.From,
		adminEmail: cfg.AdminEmail,
		logger:     logger.With().Str("component", "mailer").Logger(),
		now:        time.Now,
	}
}

// SendConfirmation emails the booking confirmation to the reservation owner.
func (m *Mailer) SendConfirmation(ctx context.Context, reservationID string) (string, error) {
	res, err := m.store.GetReservation(ctx, reservationID)
	if err != nil {
		return "", err
	}
	if res == nil {
		return "", fmt.Errorf("reservation %s: %w", reservationID, domain.ErrNotFound)
	}
	user, err := m.store.GetUser(ctx, res.UserID)
	if err != nil {
		return "", err
	}
	if user == nil || user.Email == "" {
		return "", fmt.Errorf("user email not found for reservation %s", reservationID)
	}

	subject := fmt.Sprintf("Your appointment on %s at %s is confirmed", res.Date, res.Time)
	body := fmt.Sprintf("Your appointment is confirmed on %s at %s (%s).\nReservation ID: %s\n",
		res.Date, res.Time, res.Service, res.ID)
	if err := m.enqueue(ctx, user.Email, subject, body); err != nil {
		return "", err
	}
	return "Confirmation email sent", nil
}

// SendAdminConfirmation notifies the administrator of a booking made for customerEmail.
func (m *Mailer) SendAdminConfirmation(ctx context.Context, customerEmail string, details domain.AppointmentDetails) (string, error) {
	if m.adminEmail == "" {
		return "", fmt.Errorf("admin email is not configured")
	}
	if details.Date == "" || details.Time == "" {
		return "", domain.NewValidationError("missing appointment details")
	}

	subject := fmt.Sprintf("New booking %s %s", details.Date, details.Time)
	body := fmt.Sprintf("Customer: %s\nDate: %s\nTime: %s\n", customerEmail, details.Date, details.Time)
	if details.Service != "" {
		body += "Service: " + details.Service + "\n"
	}
	if err := m.enqueue(ctx, m.adminEmail, subject, body); err != nil {
		return "", err
	}
	return "Confirmation admin email sent to " + m.adminEmail, nil
}

func (m *Mailer) enqueue(ctx context.Context, to, subject, body string) error {
	msg := &domain.OutboxMessage{
		ID:        uuid.NewString(),
		Recipient: to,
		Subject:   subject,
		Body:      body,
		CreatedAt: m.now().UTC(),
	}
	if err := m.store.EnqueueMail(ctx, msg); err != nil {
		return err
	}
	m.logger.Info().
		Str("message_id", msg.ID).
		Str("from", m.from).
		Str("to", to).
		Str("subject", subject).
		Msg("email queued")
	return nil
}
