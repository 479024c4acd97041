package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/concierge/config"
	"github.com/xiaot623/gogo/concierge/internal/adapter/booking"
	"github.com/xiaot623/gogo/concierge/internal/adapter/llm"
	"github.com/xiaot623/gogo/concierge/internal/adapter/mailer"
	"github.com/xiaot623/gogo/concierge/internal/adapter/payment"
	"github.com/xiaot623/gogo/concierge/internal/auth"
	"github.com/xiaot623/gogo/concierge/internal/domain"
	"github.com/xiaot623/gogo/concierge/internal/repository"
	"github.com/xiaot623/gogo/concierge/internal/tools"
	"github.com/xiaot623/gogo/concierge/policy"
	"github.com/xiaot623/gogo/concierge/tests/helpers"
)

var (
	testNow  = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	customer = domain.Identity{ID: "u1", Role: domain.RoleUser}
	staff    = domain.Identity{ID: "s1", Role: domain.RoleAssistant}
)

type fixture struct {
	store *repository.SQLiteStore
	llm   *llm.MockClient
	svc   *Service
}

func testConfig() *config.Config {
	return &config.Config{
		LLM: config.LLMConfig{Provider: "mock", Model: "test-model"},
		Pricing: config.PricingConfig{
			InputMicrosPer1K:  1100,
			OutputMicrosPer1K: 4400,
			DisplayCurrency:   "EUR",
			DisplayRatePPM:    900000,
		},
		Quota:   config.QuotaConfig{DailyCapCents: 5, MonthlyCapCents: 10},
		Stream:  config.StreamConfig{TokenDelay: 0, ChunkRunes: 10},
		Agent:   config.AgentConfig{Timezone: "UTC"},
		Payment: config.PaymentConfig{PublicURL: "http://localhost:8080", DepositCents: 5000, Currency: "EUR"},
		Mail:    config.MailConfig{From: "bookings@test.local", AdminEmail: "admin@test.local"},
	}
}

func newFixture(t *testing.T, script ...llm.MockTurn) *fixture {
	t.Helper()
	return newFixtureWithConfig(t, testConfig(), script...)
}

func newFixtureWithConfig(t *testing.T, cfg *config.Config, script ...llm.MockTurn) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.Nop()

	store := helpers.NewTestSQLiteStore(t)
	bookings := booking.New(store, logger)
	registry := tools.NewRegistry()
	require.NoError(t, tools.RegisterBuiltins(registry, tools.Capabilities{
		Slots:    bookings,
		Reserver: bookings,
		Payments: payment.New(store, cfg.Payment, logger),
		Mail:     mailer.New(store, cfg.Mail, logger),
		Users:    auth.NewUsers(store),
	}))
	engine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	require.NoError(t, err)

	mock := llm.NewMockClient(script...)
	svc, err := New(store, registry, engine, mock, cfg, logger)
	require.NoError(t, err)

	clock := func() time.Time { return testNow }
	svc.now = clock
	svc.ledger.now = clock
	svc.agent.now = clock

	return &fixture{store: store, llm: mock, svc: svc}
}

func toolCall(name, args string) []llm.ToolCall {
	return []llm.ToolCall{{ID: "call_1", Type: "function", Function: llm.FunctionCall{Name: name, Arguments: args}}}
}

func usage(prompt, completion int) llm.Usage {
	return llm.Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
}

func ask(text string) []domain.ConversationTurn {
	return []domain.ConversationTurn{{Role: domain.TurnRoleUser, Content: text}}
}

func TestCallAgentSlotsShortcut(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, llm.MockTurn{
		ToolCalls: toolCall(tools.ToolGetAvailableSlots, `{"date":"2026-03-12"}`),
		Usage:     usage(100, 20),
	})
	require.NoError(t, f.store.SetSlotDay(ctx, "2026-03-12", []string{"09:00", "10:00"}))

	res, err := f.svc.CallAgent(ctx, customer, ask("Any slot on 2026-03-12?"))
	require.NoError(t, err)

	assert.Equal(t, 1, f.llm.Calls(), "button responses skip the second model call")
	assert.Equal(t, 1, res.ToolCalls)
	resp := res.Response
	assert.Equal(t, domain.ResponseTypeButton, resp.Type)
	assert.Equal(t, "✨ Here are the available times for 2026-03-12:", resp.Message)
	assert.True(t, resp.DisableInput)
	require.Len(t, resp.Actions, 3)
	assert.Equal(t, "slot_09:00", resp.Actions[0].ID)
	assert.Equal(t, "🕐 09:00", resp.Actions[0].Label)
	assert.Equal(t, domain.ActionValue{Action: "reserve_slot", Date: "2026-03-12", Time: "09:00"}, resp.Actions[0].Value)
	assert.Equal(t, "back_to_dates", resp.Actions[2].ID)
	assert.Equal(t, "secondary", resp.Actions[2].Style)
	assert.Equal(t, "time_selection", resp.Context["step"])
	assert.Equal(t, "2026-03-12", resp.Context["selectedDate"])

	rec, err := f.store.GetUsage(ctx, customer.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(1), rec.Daily.Calls)
	assert.Equal(t, int64(100), rec.Daily.InputTokens)
	assert.Equal(t, int64(20), rec.Daily.OutputTokens)
	// (100*1100 + 20*4400) / 1000 rounded
	assert.Equal(t, int64(198), rec.Daily.CostMicros)
}

func TestCallAgentAlternatives(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t,
		llm.MockTurn{ToolCalls: toolCall(tools.ToolGetAvailableSlots, `{"date":"2026-03-12"}`), Usage: usage(100, 10)},
		llm.MockTurn{Content: "The 12th is full, but the 11th and 14th are open.", Usage: usage(150, 30)},
	)
	require.NoError(t, f.store.SetSlotDay(ctx, "2026-03-11", []string{"14:00"}))
	require.NoError(t, f.store.SetSlotDay(ctx, "2026-03-14", []string{"09:00", "11:00"}))

	res, err := f.svc.CallAgent(ctx, customer, ask("Something on 2026-03-12?"))
	require.NoError(t, err)

	assert.Equal(t, 2, f.llm.Calls())
	assert.Equal(t, domain.ResponseTypeText, res.Response.Type)
	assert.Equal(t, "The 12th is full, but the 11th and 14th are open.", res.Response.Content)
	assert.Equal(t, domain.Usage{PromptTokens: 250, CompletionTokens: 40}, res.Usage)

	second := f.llm.Requests()[1]
	last := second.Messages[len(second.Messages)-1]
	assert.Equal(t, llm.RoleTool, last.Role)
	assert.Equal(t, "call_1", last.ToolCallID)

	var toolResult struct {
		Success bool              `json:"success"`
		Data    domain.SlotLookup `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(last.Content), &toolResult))
	assert.True(t, toolResult.Success)
	assert.Equal(t, domain.SlotLookupAlternatives, toolResult.Data.Type)
	assert.Equal(t, "2026-03-12", toolResult.Data.OriginalDate)
	require.Len(t, toolResult.Data.Alternatives, 2)
	assert.Equal(t, "2026-03-11", toolResult.Data.Alternatives[0].Date)
	assert.Equal(t, "2026-03-14", toolResult.Data.Alternatives[1].Date)
	assert.Equal(t, 2, toolResult.Data.Alternatives[1].SlotsCount)

	rec, err := f.store.GetUsage(ctx, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Daily.Calls, "one accounted call per request")
	assert.Equal(t, int64(250), rec.Daily.InputTokens)
}

func TestCallAgentUnknownTool(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, llm.MockTurn{ToolCalls: toolCall("doesNotExist", `{}`), Usage: usage(10, 5)})

	res, err := f.svc.CallAgent(ctx, customer, ask("do something odd"))
	require.NoError(t, err)
	assert.Equal(t, domain.ResponseTypeText, res.Response.Type)
	assert.Contains(t, res.Response.Content, "doesNotExist")
	assert.Equal(t, 1, f.llm.Calls())
}

func TestCallAgentStaffToolIsNotBoundForCustomers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, llm.MockTurn{
		ToolCalls: toolCall(tools.ToolValidateUser, `{"username":"bob","password":"x"}`),
		Usage:     usage(10, 5),
	})

	res, err := f.svc.CallAgent(ctx, customer, ask("check bob"))
	require.NoError(t, err)
	assert.Contains(t, res.Response.Content, tools.ToolValidateUser)

	var bound []string
	for _, tool := range f.llm.Requests()[0].Tools {
		bound = append(bound, tool.Function.Name)
	}
	assert.Contains(t, bound, tools.ToolGetAvailableSlots)
	assert.NotContains(t, bound, tools.ToolValidateUser)
	assert.NotContains(t, bound, tools.ToolSendAdminConfEmail)
}

func TestCallAgentDirectAnswer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t,
		llm.MockTurn{Content: "Hello! How can I help?", Usage: usage(50, 8)},
		llm.MockTurn{Content: "", Usage: usage(50, 0)},
	)

	res, err := f.svc.CallAgent(ctx, customer, ask("hi"))
	require.NoError(t, err)
	assert.Equal(t, "Hello! How can I help?", res.Response.Content)
	assert.Equal(t, 0, res.ToolCalls)

	res, err = f.svc.CallAgent(ctx, customer, ask("hi again"))
	require.NoError(t, err)
	assert.Equal(t, fallbackNoAnswer, res.Response.Content)

	system := f.llm.Requests()[0].Messages[0]
	assert.Equal(t, llm.RoleSystem, system.Role)
	assert.Contains(t, system.Content, "2026-03-10")
	assert.Contains(t, system.Content, "2026-03-11")
}

func TestCallAgentHistoryMapping(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, llm.MockTurn{Content: "ok", Usage: usage(1, 1)})

	_, err := f.svc.CallAgent(ctx, customer, []domain.ConversationTurn{
		{Role: domain.TurnRoleUser, Content: "hello"},
		{Role: domain.TurnRoleAssistant, Content: "hi"},
		{Role: domain.TurnRoleTool, Content: `{"success":true}`},
		{Role: domain.TurnRoleUser, Content: "thanks"},
	})
	require.NoError(t, err)

	msgs := f.llm.Requests()[0].Messages
	require.Len(t, msgs, 5)
	assert.Equal(t, llm.RoleUser, msgs[1].Role)
	assert.Equal(t, llm.RoleAssistant, msgs[2].Role)
	assert.Equal(t, llm.RoleUser, msgs[3].Role)
	assert.Equal(t, `[tool] {"success":true}`, msgs[3].Content)
	assert.Equal(t, "thanks", msgs[4].Content)
}

func TestCallAgentInvalidToolArguments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t,
		llm.MockTurn{ToolCalls: toolCall(tools.ToolGetAvailableSlots, `{"date":"next friday"}`), Usage: usage(10, 5)},
		llm.MockTurn{Content: "Which date exactly?", Usage: usage(10, 5)},
	)

	res, err := f.svc.CallAgent(ctx, customer, ask("next friday please"))
	require.NoError(t, err)
	assert.Equal(t, "Which date exactly?", res.Response.Content)

	msgs := f.llm.Requests()[1].Messages
	var toolResult struct {
		Success bool `json:"success"`
		Data    struct {
			Errors []domain.FieldError `json:"errors"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(msgs[len(msgs)-1].Content), &toolResult))
	assert.False(t, toolResult.Success)
	require.NotEmpty(t, toolResult.Data.Errors)
	assert.Equal(t, "date", toolResult.Data.Errors[0].Field)
}

func TestCallAgentReserveIgnoresArgumentIdentity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t,
		llm.MockTurn{
			ToolCalls: toolCall(tools.ToolReserveSlot, `{"date":"2026-03-12","time":"09:00","userId":"mallory"}`),
			Usage:     usage(10, 5),
		},
		llm.MockTurn{Content: "Booked!", Usage: usage(10, 5)},
	)
	require.NoError(t, f.store.SetSlotDay(ctx, "2026-03-12", []string{"09:00"}))

	_, err := f.svc.CallAgent(ctx, customer, ask("book 9:00 on 2026-03-12"))
	require.NoError(t, err)

	msgs := f.llm.Requests()[1].Messages
	var toolResult struct {
		Success bool `json:"success"`
		Data    struct {
			ReservationID string `json:"reservationId"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(msgs[len(msgs)-1].Content), &toolResult))
	require.True(t, toolResult.Success)

	res, err := f.store.GetReservation(ctx, toolResult.Data.ReservationID)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, customer.ID, res.UserID)
}

func TestCallAgentModelFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, llm.MockTurn{Err: errors.New("upstream 503")})

	_, err := f.svc.CallAgent(ctx, customer, ask("hi"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrModelUnavailable)

	rec, err := f.store.GetUsage(ctx, customer.ID)
	require.NoError(t, err)
	assert.Nil(t, rec, "failed calls are not accounted")
}

func TestCallAgentSecondCallFailureRecordsFirstCall(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t,
		llm.MockTurn{ToolCalls: toolCall(tools.ToolGetAvailableSlots, `{"date":"2026-03-12"}`), Usage: usage(100, 10)},
		llm.MockTurn{Err: errors.New("timeout")},
	)

	_, err := f.svc.CallAgent(ctx, customer, ask("2026-03-12?"))
	assert.ErrorIs(t, err, domain.ErrModelUnavailable)

	rec, err := f.store.GetUsage(ctx, customer.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(100), rec.Daily.InputTokens)
}

func TestCallAgentQuotaCrossingRequestIsServed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t,
		llm.MockTurn{Content: "first", Usage: usage(1000, 0)},
		llm.MockTurn{Content: "never sent", Usage: usage(1, 1)},
	)
	// one micro below the 5 cent daily cap
	_, err := f.store.RecordUsage(ctx, customer.ID, repository.UsageDelta{CostMicros: 49_999}, testNow)
	require.NoError(t, err)

	res, err := f.svc.CallAgent(ctx, customer, ask("hi"))
	require.NoError(t, err)
	assert.Equal(t, "first", res.Response.Content)

	before, err := f.store.GetUsage(ctx, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(49_999+1100), before.Daily.CostMicros)

	_, err = f.svc.CallAgent(ctx, customer, ask("again"))
	assert.ErrorIs(t, err, domain.ErrDailyQuotaExceeded)
	assert.Equal(t, 1, f.llm.Calls(), "rejected requests never reach the model")

	after, err := f.store.GetUsage(ctx, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version, "rejection writes nothing")
}

func TestCallToolEnforcementOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.CallTool(ctx, domain.Identity{}, tools.ToolValidateUser, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = f.svc.CallTool(ctx, customer, "doesNotExist", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, domain.ErrToolNotFound)

	// permission is checked before the schema
	_, err = f.svc.CallTool(ctx, customer, tools.ToolValidateUser, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.CallTool(ctx, staff, tools.ToolValidateUser, json.RawMessage(`{}`))
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.NotEmpty(t, verr.Fields)

	res, err := f.svc.CallTool(ctx, staff, tools.ToolValidateUser, json.RawMessage(`{"username":"ghost","password":"secret"}`))
	require.NoError(t, err, "execution failures are results, not errors")
	assert.False(t, res.Success)
}

func TestCallToolAdminScopeGrantsStaffTools(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	scoped := domain.Identity{ID: "u2", Role: domain.RoleUser, Scopes: []string{"admin"}}

	res, err := f.svc.CallTool(ctx, scoped, tools.ToolSendAdminConfEmail,
		json.RawMessage(`{"email":"client@example.com","appointmentDetails":{"date":"2026-03-12","time":"09:00"}}`))
	require.NoError(t, err)
	assert.True(t, res.Success, res.Message)
}

func TestCallToolSlots(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.SetSlotDay(ctx, "2026-03-12", []string{"09:00"}))

	res, err := f.svc.CallTool(ctx, customer, tools.ToolGetAvailableSlots, json.RawMessage(`{"date":"2026-03-12","userId":"other"}`))
	require.NoError(t, err)
	require.True(t, res.Success)
	lookup, ok := res.Data.(*domain.SlotLookup)
	require.True(t, ok)
	assert.Equal(t, []string{"09:00"}, lookup.Slots)
}

func TestWelcome(t *testing.T) {
	w := Welcome()
	assert.Equal(t, domain.ResponseTypeButton, w.Type)
	assert.True(t, w.DisableInput)
	require.Len(t, w.Actions, 4)
	assert.Equal(t, "reserve", w.Actions[0].ID)
	assert.Equal(t, domain.ActionValue{Action: "free_chat", Step: "free_chat"}, w.Actions[2].Value)
	assert.Equal(t, "main_menu", w.Context["step"])
	assert.Equal(t, false, w.Context["canGoBack"])
}

func TestToolNames(t *testing.T) {
	f := newFixture(t)
	names := f.svc.ToolNames()
	assert.Equal(t, tools.ToolGetAvailableSlots, names[0])
	assert.Len(t, names, 6)
}
