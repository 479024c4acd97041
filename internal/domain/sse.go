package domain

import "time"

// StreamEvent is one event of an agent stream.
type StreamEvent struct {
	Type EventType `json:"event"`
	Data any       `json:"data"`
}

// StartEventData is the data for a start event.
type StartEventData struct {
	Message   string    `json:"message"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TokenEventData is the data for a token event.
type TokenEventData struct {
	Delta     string    `json:"delta"`
	Partial   string    `json:"partial"`
	Timestamp time.Time `json:"timestamp"`
}

// ToolCallEventData is the data for a tool_call event.
type ToolCallEventData struct {
	Name      string    `json:"name"`
	Args      any       `json:"args"`
	Timestamp time.Time `json:"timestamp"`
}

// CompleteEventData is the data for a complete event.
type CompleteEventData struct {
	Message   string         `json:"message"`
	Response  *AgentResponse `json:"response,omitempty"`
	Usage     UsageData      `json:"usage"`
	ToolCalls int            `json:"toolCalls"`
	Timestamp time.Time      `json:"timestamp"`
}

// UsageData represents token usage information.
type UsageData struct {
	TotalTokens      int `json:"total_tokens"`
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	DurationMs       int `json:"duration_ms,omitempty"`
}

// ErrorEventData is the data for an error event.
type ErrorEventData struct {
	Code      string    `json:"code,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
