package llm

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"
	"unicode/utf8"
)

// MockTurn is one scripted model answer.
type MockTurn struct {
	Content   string
	ToolCalls []ToolCall
	Usage     Usage
	Err       error
	Delay     time.Duration // simulated model latency
}

// MockClient is a mock implementation of LLMClient.
// Scripted turns are returned in order; once exhausted it falls back to generated answers.
type MockClient struct {
	mu        sync.Mutex
	script    []MockTurn
	requests  []*ChatCompletionRequest
	chunkSize int
}

// NewMockClient creates a new mock LLM client.
func NewMockClient(script ...MockTurn) *MockClient {
	return &MockClient{script: script, chunkSize: 10}
}

// Ensure MockClient implements LLMClient interface.
var _ LLMClient = (*MockClient)(nil)

// Provider implements LLMClient.
func (m *MockClient) Provider() string { return "mock" }

// Calls returns the number of model calls made so far.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns the requests received so far.
func (m *MockClient) Requests() []*ChatCompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*ChatCompletionRequest(nil), m.requests...)
}

// CreateChatCompletion returns the next scripted or generated answer.
func (m *MockClient) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	turn := m.next(req)
	if err := turn.wait(ctx); err != nil {
		return nil, err
	}
	if turn.Err != nil {
		return nil, turn.Err
	}
	return m.response(req, turn), nil
}

// CreateChatCompletionStream simulates a streaming response.
func (m *MockClient) CreateChatCompletionStream(ctx context.Context, req *ChatCompletionRequest, callback StreamCallback) (*ChatCompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	turn := m.next(req)
	if err := turn.wait(ctx); err != nil {
		return nil, err
	}
	if turn.Err != nil {
		return nil, turn.Err
	}

	// Simulate streaming by sending content in chunks
	for _, chunk := range SplitRunes(turn.Content, m.chunkSize) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if err := callback(chunk); err != nil {
			return nil, err
		}
	}
	return m.response(req, turn), nil
}

func (m *MockClient) next(req *ChatCompletionRequest) MockTurn {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if len(m.script) > 0 {
		turn := m.script[0]
		m.script = m.script[1:]
		return turn
	}
	return generateMockTurn(req)
}

func (t MockTurn) wait(ctx context.Context) error {
	if t.Delay <= 0 {
		return nil
	}
	timer := time.NewTimer(t.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (m *MockClient) response(req *ChatCompletionRequest, turn MockTurn) *ChatCompletionResponse {
	usage := turn.Usage
	switch {
	case usage.PromptTokens != 0 || usage.CompletionTokens != 0:
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	case usage.TotalTokens == 0:
		usage = newUsage(estimateTokens(req), len(turn.Content)/4)
	}
	finish := "stop"
	if len(turn.ToolCalls) > 0 {
		finish = "tool_calls"
	}
	return &ChatCompletionResponse{
		ID:    fmt.Sprintf("mock-chatcmpl-%d", time.Now().UnixNano()),
		Model: req.Model,
		Message: ChatMessage{
			Role:      RoleAssistant,
			Content:   turn.Content,
			ToolCalls: turn.ToolCalls,
		},
		FinishReason: finish,
		Usage:        usage,
	}
}

var isoDate = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// generateMockTurn answers without a script: a date in the last user message triggers a slot
// lookup when that tool is bound, a tool result is summarized, anything else is echoed.
func generateMockTurn(req *ChatCompletionRequest) MockTurn {
	if len(req.Messages) == 0 {
		return MockTurn{Content: "[MOCK] This is a mock response from the LLM client."}
	}
	last := req.Messages[len(req.Messages)-1]
	switch last.Role {
	case RoleTool:
		return MockTurn{Content: fmt.Sprintf("[MOCK] Tool %s returned: %s", last.Name, truncate(last.Content, 200))}
	case RoleUser:
		if date := isoDate.FindString(last.Content); date != "" && hasTool(req.Tools, "getAvailableSlots") {
			return MockTurn{ToolCalls: []ToolCall{{
				ID:       fmt.Sprintf("mock-call-%d", time.Now().UnixNano()),
				Type:     "function",
				Function: FunctionCall{Name: "getAvailableSlots", Arguments: fmt.Sprintf(`{"date":%q}`, date)},
			}}}
		}
		return MockTurn{Content: fmt.Sprintf("[MOCK] Received your message: %q. This is a mock response.", truncate(last.Content, 100))}
	}
	return MockTurn{Content: "[MOCK] This is a mock response from the LLM client."}
}

func hasTool(tools []Tool, name string) bool {
	for _, t := range tools {
		if t.Function.Name == name {
			return true
		}
	}
	return false
}

// estimateTokens provides a rough token count estimate.
func estimateTokens(req *ChatCompletionRequest) int {
	total := 0
	for _, msg := range req.Messages {
		total += len(msg.Content) / 4
	}
	return total
}

// SplitRunes splits s into chunks of at most size runes without breaking a character.
func SplitRunes(s string, size int) []string {
	if s == "" {
		return nil
	}
	if size <= 0 {
		return []string{s}
	}
	var chunks []string
	for len(s) > 0 {
		end, n := 0, 0
		for end < len(s) && n < size {
			_, w := utf8.DecodeRuneInString(s[end:])
			end += w
			n++
		}
		chunks = append(chunks, s[:end])
		s = s[end:]
	}
	return chunks
}

// truncate truncates a string to the given number of runes.
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}
