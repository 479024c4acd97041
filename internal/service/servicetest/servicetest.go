// Package servicetest builds a fully wired service over an in-memory store for transport tests.
package servicetest

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/xiaot623/gogo/concierge/config"
	"github.com/xiaot623/gogo/concierge/internal/adapter/booking"
	"github.com/xiaot623/gogo/concierge/internal/adapter/llm"
	"github.com/xiaot623/gogo/concierge/internal/adapter/mailer"
	"github.com/xiaot623/gogo/concierge/internal/adapter/payment"
	"github.com/xiaot623/gogo/concierge/internal/auth"
	"github.com/xiaot623/gogo/concierge/internal/domain"
	"github.com/xiaot623/gogo/concierge/internal/repository"
	"github.com/xiaot623/gogo/concierge/internal/service"
	"github.com/xiaot623/gogo/concierge/internal/tools"
	"github.com/xiaot623/gogo/concierge/policy"
	"github.com/xiaot623/gogo/concierge/tests/helpers"
)

// Secret signs the tokens issued by Env.Token.
const Secret = "test-secret"

// Env is a wired service with its collaborators exposed.
type Env struct {
	Config  *config.Config
	Store   *repository.SQLiteStore
	LLM     *llm.MockClient
	Tokens  *auth.TokenService
	Service *service.Service
}

// Config returns the default settings without token pacing.
func Config() *config.Config {
	return &config.Config{
		HTTP: config.HTTPConfig{Addr: ":0", RateLimitPerMinute: 1000, CORSOrigins: []string{"*"}},
		WS:   config.WSConfig{PingInterval: 30 * time.Second, WriteTimeout: 5 * time.Second, ReadTimeout: time.Minute, MaxMessageSize: 65536},
		Auth: config.AuthConfig{JWTSecret: Secret},
		LLM:  config.LLMConfig{Provider: "mock", Model: "test-model"},
		Pricing: config.PricingConfig{
			InputMicrosPer1K:  1100,
			OutputMicrosPer1K: 4400,
			DisplayCurrency:   "EUR",
			DisplayRatePPM:    900000,
		},
		Quota:   config.QuotaConfig{DailyCapCents: 5, MonthlyCapCents: 10},
		Stream:  config.StreamConfig{ChunkRunes: 10},
		Agent:   config.AgentConfig{Timezone: "UTC"},
		Payment: config.PaymentConfig{PublicURL: "http://localhost:8080", DepositCents: 5000, Currency: "EUR"},
		Mail:    config.MailConfig{From: "bookings@test.local", AdminEmail: "admin@test.local"},
	}
}

// New wires a service whose model answers follow script.
func New(t *testing.T, cfg *config.Config, script ...llm.MockTurn) *Env {
	t.Helper()
	if cfg == nil {
		cfg = Config()
	}
	logger := zerolog.Nop()

	store := helpers.NewTestSQLiteStore(t)
	bookings := booking.New(store, logger)
	registry := tools.NewRegistry()
	err := tools.RegisterBuiltins(registry, tools.Capabilities{
		Slots:    bookings,
		Reserver: bookings,
		Payments: payment.New(store, cfg.Payment, logger),
		Mail:     mailer.New(store, cfg.Mail, logger),
		Users:    auth.NewUsers(store),
	})
	if err != nil {
		t.Fatalf("failed to register tools: %v", err)
	}

	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	if err != nil {
		t.Fatalf("failed to create policy engine: %v", err)
	}

	mock := llm.NewMockClient(script...)
	svc, err := service.New(store, registry, engine, mock, cfg, logger)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	return &Env{
		Config:  cfg,
		Store:   store,
		LLM:     mock,
		Tokens:  auth.NewTokenService(Secret),
		Service: svc,
	}
}

// Token issues a bearer token for id.
func (e *Env) Token(t *testing.T, id domain.Identity) string {
	t.Helper()
	token, err := e.Tokens.Issue(id, 0)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}
