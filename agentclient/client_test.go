package agentclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/concierge/internal/adapter/llm"
	"github.com/xiaot623/gogo/concierge/internal/domain"
	"github.com/xiaot623/gogo/concierge/internal/service/servicetest"
	v1 "github.com/xiaot623/gogo/concierge/internal/transport/http/v1"
)

var customer = domain.Identity{ID: "u1", Role: domain.RoleUser}

func newServer(t *testing.T, script ...llm.MockTurn) (*servicetest.Env, *httptest.Server) {
	t.Helper()
	env := servicetest.New(t, nil, script...)
	e := echo.New()
	v1.NewHandler(env.Service, env.Tokens, zerolog.Nop()).RegisterRoutes(e, func(next echo.HandlerFunc) echo.HandlerFunc { return next })
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return env, srv
}

func history(text string) []domain.ConversationTurn {
	return []domain.ConversationTurn{{Role: domain.TurnRoleUser, Content: text}}
}

func TestParseSSEMultilineData(t *testing.T) {
	input := "event: token\n" +
		"data: first line\n" +
		"data: second line\n\n" +
		": keep-alive comment\n" +
		"event: complete\n" +
		"data: {}"

	var events []SSEEvent
	err := parseSSE(strings.NewReader(input), func(ev SSEEvent) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, SSEEvent{Event: "token", Data: "first line\nsecond line"}, events[0])
	assert.Equal(t, SSEEvent{Event: "complete", Data: "{}"}, events[1])
}

func TestParseSSEStopsOnHandlerError(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	err := parseSSE(strings.NewReader("event: a\ndata: 1\n\nevent: b\ndata: 2\n\n"), func(SSEEvent) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestClientStream(t *testing.T) {
	env, srv := newServer(t, llm.MockTurn{Content: "Hello from the concierge.", Usage: llm.Usage{PromptTokens: 12, CompletionTokens: 5}})
	client := NewClient(srv.URL, env.Token(t, customer))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var names []string
	var partial string
	var done *domain.CompleteEventData
	err := client.Stream(ctx, history("hi"), func(ev SSEEvent) error {
		names = append(names, ev.Event)
		switch domain.EventType(ev.Event) {
		case domain.EventTypeToken:
			tok, err := ParseTokenEvent(ev.Data)
			if err != nil {
				return err
			}
			partial = tok.Partial
		case domain.EventTypeComplete:
			d, err := ParseCompleteEvent(ev.Data)
			if err != nil {
				return err
			}
			done = d
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "start", names[0])
	assert.Equal(t, "complete", names[len(names)-1])
	assert.Equal(t, "Hello from the concierge.", partial)
	require.NotNil(t, done)
	assert.Equal(t, 17, done.Usage.TotalTokens)
}

func TestClientStreamRejected(t *testing.T) {
	_, srv := newServer(t)
	client := NewClient(srv.URL, "bogus")

	err := client.Stream(context.Background(), history("hi"), func(SSEEvent) error { return nil })
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "Invalid or expired token", apiErr.Message)
}

func TestClientAskWelcomeUsage(t *testing.T) {
	env, srv := newServer(t, llm.MockTurn{Content: "Sure.", Usage: llm.Usage{PromptTokens: 1000, CompletionTokens: 100}})
	client := NewClient(srv.URL, env.Token(t, customer))
	ctx := context.Background()

	answer, err := client.Ask(ctx, history("can you help?"))
	require.NoError(t, err)
	assert.Equal(t, domain.ResponseTypeText, answer.Type)
	assert.Equal(t, "Sure.", answer.Content)

	menu, err := client.Welcome(ctx)
	require.NoError(t, err)
	assert.Len(t, menu.Actions, 4)

	usage, err := client.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), usage.Daily.InputTokens)
	assert.Equal(t, int64(1540), usage.Daily.CostMicros)
}

func TestClientCallTool(t *testing.T) {
	env, srv := newServer(t)
	require.NoError(t, env.Store.SetSlotDay(context.Background(), "2026-03-12", []string{"14:00"}))
	client := NewClient(srv.URL, env.Token(t, customer))

	res, err := client.CallTool(context.Background(), "getAvailableSlots", map[string]string{"date": "2026-03-12"})
	require.NoError(t, err)
	assert.True(t, res.Success)

	_, err = client.CallTool(context.Background(), "validateUser", map[string]string{"username": "a", "password": "b"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
}
