// Package agentclient provides an HTTP client for the concierge API, including the SSE agent stream.
package agentclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xiaot623/gogo/concierge/internal/domain"
)

// SSEEvent represents a parsed SSE event.
type SSEEvent struct {
	Event string
	Data  string
}

// EventHandler is called for each SSE event of an agent stream.
type EventHandler func(event SSEEvent) error

// APIError is a non-2xx answer of the API.
type APIError struct {
	Status  int
	Message string
	Errors  []domain.FieldError
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api returned status %d: %s", e.Status, e.Message)
}

// Client is an HTTP client for the concierge API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new client authenticating with the bearer token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute, // Long timeout for streaming
		},
	}
}

// Ask posts the conversation to /v1/agent and returns the assistant answer.
func (c *Client) Ask(ctx context.Context, history []domain.ConversationTurn) (*domain.AgentResponse, error) {
	var out domain.AgentResponse
	if err := c.do(ctx, http.MethodPost, "/v1/agent", domain.AgentRequest{Messages: history}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stream posts the conversation to /v1/agent/stream and calls handler for each event.
func (c *Client) Stream(ctx context.Context, history []domain.ConversationTurn, handler EventHandler) error {
	body, err := json.Marshal(domain.AgentRequest{Messages: history})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/v1/agent/stream", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call agent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	return parseSSE(resp.Body, handler)
}

// Welcome returns the main menu.
func (c *Client) Welcome(ctx context.Context) (*domain.AgentResponse, error) {
	var out domain.AgentResponse
	if err := c.do(ctx, http.MethodGet, "/v1/welcome", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Usage returns the caller's usage counters.
func (c *Client) Usage(ctx context.Context) (*domain.UsageSnapshot, error) {
	var out domain.UsageSnapshot
	if err := c.do(ctx, http.MethodGet, "/v1/usage", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CallTool runs a tool directly.
func (c *Client) CallTool(ctx context.Context, tool string, params any) (*domain.ToolResult, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	var out domain.CallToolResponse
	if err := c.do(ctx, http.MethodPost, "/v1/call", domain.CallToolRequest{Tool: tool, Params: raw}, &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// do sends a JSON request and decodes the data of the success envelope into out.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	envelope := struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}{}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	bodyBytes, _ := io.ReadAll(resp.Body)
	apiErr := &APIError{Status: resp.StatusCode}

	var body domain.ErrorResponse
	if err := json.Unmarshal(bodyBytes, &body); err == nil && body.Message != "" {
		apiErr.Message = body.Message
		apiErr.Errors = body.Errors
	} else {
		apiErr.Message = strings.TrimSpace(string(bodyBytes))
	}
	return apiErr
}

// parseSSE parses an SSE stream and calls the handler for each event.
func parseSSE(reader io.Reader, handler EventHandler) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var event SSEEvent

	for scanner.Scan() {
		line := scanner.Text()

		// Empty line marks end of event
		if line == "" {
			if event.Event != "" || event.Data != "" {
				if err := handler(event); err != nil {
					return err
				}
				event = SSEEvent{}
			}
			continue
		}

		if strings.HasPrefix(line, "event:") {
			event.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		} else if strings.HasPrefix(line, "data:") {
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if event.Data != "" {
				event.Data += "\n" + data
			} else {
				event.Data = data
			}
		}
		// Ignore comments (lines starting with :) and other fields
	}

	if event.Event != "" || event.Data != "" {
		if err := handler(event); err != nil {
			return err
		}
	}

	return scanner.Err()
}

// ParseTokenEvent parses token event data.
func ParseTokenEvent(data string) (*domain.TokenEventData, error) {
	var token domain.TokenEventData
	if err := json.Unmarshal([]byte(data), &token); err != nil {
		return nil, fmt.Errorf("failed to parse token event: %w", err)
	}
	return &token, nil
}

// ParseToolCallEvent parses tool_call event data.
func ParseToolCallEvent(data string) (*domain.ToolCallEventData, error) {
	var call domain.ToolCallEventData
	if err := json.Unmarshal([]byte(data), &call); err != nil {
		return nil, fmt.Errorf("failed to parse tool_call event: %w", err)
	}
	return &call, nil
}

// ParseCompleteEvent parses complete event data.
func ParseCompleteEvent(data string) (*domain.CompleteEventData, error) {
	var done domain.CompleteEventData
	if err := json.Unmarshal([]byte(data), &done); err != nil {
		return nil, fmt.Errorf("failed to parse complete event: %w", err)
	}
	return &done, nil
}

// ParseErrorEvent parses error event data.
func ParseErrorEvent(data string) (*domain.ErrorEventData, error) {
	var errEvt domain.ErrorEventData
	if err := json.Unmarshal([]byte(data), &errEvt); err != nil {
		return nil, fmt.Errorf("failed to parse error event: %w", err)
	}
	return &errEvt, nil
}
