// Package payment creates deposit checkout sessions for reservations.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/xiaot623/gogo/concierge/config"
	"github.com/xiaot623/gogo/concierge/internal/domain"
	"github.com/xiaot623/gogo/concierge/internal/repository"
)

// CheckoutRequest describes the session to open.
type CheckoutRequest struct {
	ReservationID string `json:"reservation_id"`
	UserID        string `json:"user_id,omitempty"`
	Description   string `json:"description"`
	AmountCents   int64  `json:"amount_cents"`
	Currency      string `json:"currency"`
	SuccessURL    string `json:"success_url"`
	CancelURL     string `json:"cancel_url"`
}

// Gateway opens checkout sessions with a payment provider.
type Gateway interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (id, checkoutURL string, err error)
}

// HTTPGateway posts checkout requests to a payment gateway.
type HTTPGateway struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPGateway creates a gateway client.
func NewHTTPGateway(baseURL, apiKey string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type checkoutResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CreateCheckout implements Gateway.
func (g *HTTPGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (string, string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/checkout/sessions", bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", "", fmt.Errorf("payment gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", "", fmt.Errorf("payment gateway returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var out checkoutResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", fmt.Errorf("failed to decode response: %w", err)
	}
	if out.ID == "" || out.URL == "" {
		return "", "", fmt.Errorf("payment gateway returned an incomplete session")
	}
	return out.ID, out.URL, nil
}

// HostedGateway builds checkout links on the service's own public URL. It is used when no
// payment gateway is configured.
type HostedGateway struct {
	publicURL string
}

// NewHostedGateway creates a hosted gateway.
func NewHostedGateway(publicURL string) *HostedGateway {
	return &HostedGateway{publicURL: strings.TrimSuffix(publicURL, "/")}
}

// CreateCheckout implements Gateway.
func (g *HostedGateway) CreateCheckout(_ context.Context, req CheckoutRequest) (string, string, error) {
	id := "cs_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	q := url.Values{}
	q.Set("reservationId", req.ReservationID)
	return id, g.publicURL + "/pay/" + id + "?" + q.Encode(), nil
}

// Service creates and records booking payments.
type Service struct {
	store        repository.Store
	gateway      Gateway
	publicURL    string
	depositCents int64
	currency     string
	logger       zerolog.Logger
	now          func() time.Time
}

// New creates a payment service. Without a gateway URL checkout links are hosted locally.
func New(store repository.Store, cfg config.PaymentConfig, logger zerolog.Logger) *Service {
	var gateway Gateway
	if cfg.GatewayURL != "" {
		gateway = NewHTTPGateway(cfg.GatewayURL, cfg.APIKey, cfg.Timeout)
	} else {
		gateway = NewHostedGateway(cfg.PublicURL)
	}
	return NewWithGateway(store, gateway, cfg, logger)
}

// NewWithGateway creates a payment service using gateway.
func NewWithGateway(store repository.Store, gateway Gateway, cfg config.PaymentConfig, logger zerolog.Logger) *Service {
	return &Service{
		store:        store,
		gateway:      gateway,
		publicURL:    strings.TrimSuffix(cfg.PublicURL, "/"),
		depositCents: cfg.DepositCents,
		currency:     strings.ToUpper(cfg.Currency),
		logger:       logger.With().Str("component", "payment").Logger(),
		now:          time.Now,
	}
}

// CreateBookingPayment opens a deposit checkout session for a reservation and records it.
func (s *Service) CreateBookingPayment(ctx context.Context, reservationID, userID string) (*domain.CheckoutSession, error) {
	if reservationID == "" {
		return nil, domain.NewValidationError("missing reservationId",
			domain.FieldError{Field: "reservationId", Message: "is required"})
	}
	if s.depositCents <= 0 {
		return nil, fmt.Errorf("invalid booking amount configuration")
	}
	res, err := s.store.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("reservation %s: %w", reservationID, domain.ErrNotFound)
	}
	if res.UserID != userID {
		return nil, fmt.Errorf("reservation %s belongs to another user: %w", reservationID, domain.ErrForbidden)
	}

	req := CheckoutRequest{
		ReservationID: res.ID,
		UserID:        userID,
		Description:   fmt.Sprintf("Reservation %s %s", res.Date, res.Time),
		AmountCents:   s.depositCents,
		Currency:      s.currency,
		SuccessURL:    s.publicURL + "/payment/success?reservationId=" + url.QueryEscape(res.ID),
		CancelURL:     s.publicURL + "/payment/cancelled",
	}
	id, checkoutURL, err := s.gateway.CreateCheckout(ctx, req)
	if err != nil {
		return nil, err
	}

	session := &domain.CheckoutSession{
		ID:            id,
		ReservationID: res.ID,
		URL:           checkoutURL,
		AmountCents:   s.depositCents,
		Currency:      s.currency,
		Status:        domain.PaymentStatusPending,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.store.CreatePayment(ctx, session); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("reservation_id", res.ID).
		Str("session_id", id).
		Int64("amount_cents", s.depositCents).
		Msg("checkout session created")
	return session, nil
}
