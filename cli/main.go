// Package main provides a terminal chat client for the concierge agent.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog"

	"github.com/xiaot623/gogo/concierge/agentclient"
	"github.com/xiaot623/gogo/concierge/internal/domain"
)

type options struct {
	Addr  string `long:"addr" default:"http://localhost:8080" description:"Concierge server address"`
	Token string `long:"token" env:"CONCIERGE_TOKEN" required:"true" description:"Bearer token (see: concierge token)"`
	SSE   bool   `long:"sse" description:"Use the SSE endpoint instead of the websocket"`
}

// transport sends one conversation and reports its stream events.
type transport interface {
	Send(ctx context.Context, history []domain.ConversationTurn, handle func(domain.EventType, []byte) error) error
	Close() error
}

// sseTransport streams over POST /v1/agent/stream.
type sseTransport struct {
	client *agentclient.Client
}

func (t *sseTransport) Send(ctx context.Context, history []domain.ConversationTurn, handle func(domain.EventType, []byte) error) error {
	return t.client.Stream(ctx, history, func(ev agentclient.SSEEvent) error {
		return handle(domain.EventType(ev.Event), []byte(ev.Data))
	})
}

func (t *sseTransport) Close() error { return nil }

// wsTransport streams over one websocket connection kept for the whole session.
type wsTransport struct {
	conn *websocket.Conn
}

func dialWS(addr, token string) (*wsTransport, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/v1/agent/ws"

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial: %w", err)
	}
	return &wsTransport{conn: conn}, nil
}

func (t *wsTransport) Send(ctx context.Context, history []domain.ConversationTurn, handle func(domain.EventType, []byte) error) error {
	if err := t.conn.WriteJSON(domain.AgentRequest{Messages: history}); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var ev struct {
			Event domain.EventType `json:"event"`
			Data  json.RawMessage  `json:"data"`
		}
		if err := t.conn.ReadJSON(&ev); err != nil {
			return fmt.Errorf("read event: %w", err)
		}
		if err := handle(ev.Event, ev.Data); err != nil {
			return err
		}
		if ev.Event.Terminal() {
			return nil
		}
	}
}

func (t *wsTransport) Close() error {
	_ = t.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return t.conn.Close()
}

// chat holds the client-side conversation.
type chat struct {
	out     io.Writer
	history []domain.ConversationTurn
	actions []domain.Action
}

// input turns a typed line into the next user turn; a number picks a button of the last answer.
func (c *chat) input(line string) string {
	if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(c.actions) {
		return c.actions[n-1].Label
	}
	return line
}

func (c *chat) handle(typ domain.EventType, data []byte) error {
	switch typ {
	case domain.EventTypeToken:
		var tok domain.TokenEventData
		if err := json.Unmarshal(data, &tok); err != nil {
			return err
		}
		fmt.Fprint(c.out, tok.Delta)
	case domain.EventTypeToolCall:
		var call domain.ToolCallEventData
		if err := json.Unmarshal(data, &call); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "[calling %s]\n", call.Name)
	case domain.EventTypeComplete:
		var done domain.CompleteEventData
		if err := json.Unmarshal(data, &done); err != nil {
			return err
		}
		c.complete(&done)
	case domain.EventTypeError:
		var e domain.ErrorEventData
		if err := json.Unmarshal(data, &e); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "\n! %s (%s)\n", e.Message, e.Code)
	}
	return nil
}

func (c *chat) complete(done *domain.CompleteEventData) {
	c.actions = nil
	if done.Response != nil && done.Response.Type == domain.ResponseTypeButton {
		fmt.Fprintln(c.out, done.Response.Message)
		for i, a := range done.Response.Actions {
			fmt.Fprintf(c.out, "  %d) %s\n", i+1, a.Label)
		}
		c.actions = done.Response.Actions
	} else {
		fmt.Fprintln(c.out)
	}
	c.history = append(c.history, domain.ConversationTurn{Role: domain.TurnRoleAssistant, Content: done.Message})
	fmt.Fprintf(c.out, "(%d tokens, %dms)\n", done.Usage.TotalTokens, done.Usage.DurationMs)
}

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	client := agentclient.NewClient(opts.Addr, opts.Token)

	var tr transport = &sseTransport{client: client}
	if !opts.SSE {
		ws, err := dialWS(opts.Addr, opts.Token)
		if err != nil {
			logger.Fatal().Err(err).Str("addr", opts.Addr).Msg("failed to connect")
		}
		tr = ws
	}
	defer tr.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c := &chat{out: os.Stdout}
	if menu, err := client.Welcome(ctx); err == nil {
		c.complete(&domain.CompleteEventData{Message: menu.Message, Response: menu})
		c.history = nil
	} else {
		logger.Warn().Err(err).Msg("failed to load the welcome menu")
	}
	fmt.Println("\nType a message (or a button number) and press Enter.")
	fmt.Println("Commands: /usage, /reset, /quit")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
	}()

	for {
		fmt.Print("> ")
		var input string
		select {
		case <-ctx.Done():
			fmt.Println("\nInterrupted")
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			input = line
		}

		switch input {
		case "":
			continue
		case "/quit":
			fmt.Println("Bye!")
			return
		case "/reset":
			c.history, c.actions = nil, nil
			continue
		case "/usage":
			usage, err := client.Usage(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("failed to load usage")
				continue
			}
			fmt.Printf("today: %d calls, %d micros (%s %d micros); month: %d calls, %d micros\n",
				usage.Daily.Calls, usage.Daily.CostMicros, usage.DisplayCurrency, usage.DailyDisplayMicros,
				usage.Monthly.Calls, usage.Monthly.CostMicros)
			continue
		}

		c.history = append(c.history, domain.ConversationTurn{Role: domain.TurnRoleUser, Content: c.input(input)})
		if err := tr.Send(ctx, c.history, c.handle); err != nil {
			c.history = c.history[:len(c.history)-1]
			var apiErr *agentclient.APIError
			if errors.As(err, &apiErr) {
				fmt.Printf("! %s\n", apiErr.Message)
				continue
			}
			logger.Error().Err(err).Msg("request failed")
			if !opts.SSE {
				return
			}
		}
	}
}
