package domain

import (
	"encoding/json"
	"strconv"
)

// ConversationTurn is one message of the conversation history.
type ConversationTurn struct {
	Role    TurnRole `json:"role"`
	Content string   `json:"content"`
}

// AgentRequest is the body of the agent endpoints.
type AgentRequest struct {
	Messages []ConversationTurn `json:"messages"`
}

// Validate checks the history shape.
func (r *AgentRequest) Validate() error {
	if len(r.Messages) == 0 {
		return NewValidationError("messages array is required", FieldError{Field: "messages", Message: "must be a non-empty array"})
	}
	var fields []FieldError
	for i, m := range r.Messages {
		switch m.Role {
		case TurnRoleUser, TurnRoleAssistant, TurnRoleTool:
		default:
			fields = append(fields, FieldError{
				Field:   "messages." + strconv.Itoa(i) + ".role",
				Message: "must be one of user, assistant, tool",
			})
		}
	}
	if len(fields) > 0 {
		return NewValidationError("invalid messages", fields...)
	}
	return nil
}

// AgentResponse is the assistant answer returned to the caller.
type AgentResponse struct {
	Role         TurnRole       `json:"role"`
	Type         ResponseType   `json:"type"`
	Content      string         `json:"content,omitempty"`
	Message      string         `json:"message,omitempty"`
	Actions      []Action       `json:"actions,omitempty"`
	DisableInput bool           `json:"disableInput,omitempty"`
	Context      map[string]any `json:"context,omitempty"`
}

// Text returns the human-readable text of the response.
func (r *AgentResponse) Text() string {
	if r.Type == ResponseTypeButton {
		return r.Message
	}
	return r.Content
}

// TextResponse builds a plain assistant answer.
func TextResponse(content string) *AgentResponse {
	return &AgentResponse{Role: TurnRoleAssistant, Type: ResponseTypeText, Content: content}
}

// CallToolRequest is the body of a direct tool call.
type CallToolRequest struct {
	Tool   string          `json:"tool"`
	Params json.RawMessage `json:"params"`
}

// CallToolResponse is the result of a direct tool call.
type CallToolResponse struct {
	Tool   string      `json:"tool"`
	Result *ToolResult `json:"result"`
}

// APIResponse is the success envelope of the HTTP API.
type APIResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

// ErrorResponse is the failure envelope of the HTTP API.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// ConfigResponse lists the registered tools.
type ConfigResponse struct {
	Tools []string `json:"tools"`
}
