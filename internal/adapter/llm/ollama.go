package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/rs/zerolog"
)

// OllamaClient talks to an Ollama server.
type OllamaClient struct {
	client *api.Client
	model  string
	logger zerolog.Logger
}

var _ LLMClient = (*OllamaClient)(nil)

// NewOllamaClient creates an Ollama client. An empty baseURL reads OLLAMA_HOST.
func NewOllamaClient(baseURL, model string, timeout time.Duration, logger zerolog.Logger) (*OllamaClient, error) {
	var client *api.Client
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base URL: %w", err)
		}
		client = api.NewClient(u, &http.Client{Timeout: timeout})
	} else {
		var err error
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, err
		}
	}
	return &OllamaClient{
		client: client,
		model:  model,
		logger: logger.With().Str("provider", "ollama").Logger(),
	}, nil
}

// Provider implements LLMClient.
func (o *OllamaClient) Provider() string { return "ollama" }

// CreateChatCompletion implements LLMClient.
func (o *OllamaClient) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	return o.chat(ctx, req, false, nil)
}

// CreateChatCompletionStream implements LLMClient.
func (o *OllamaClient) CreateChatCompletionStream(ctx context.Context, req *ChatCompletionRequest, callback StreamCallback) (*ChatCompletionResponse, error) {
	return o.chat(ctx, req, true, callback)
}

func (o *OllamaClient) chat(ctx context.Context, req *ChatCompletionRequest, stream bool, callback StreamCallback) (*ChatCompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = o.model
	}
	apiReq := &api.ChatRequest{
		Model:    model,
		Messages: o.convertMessages(req.Messages),
		Stream:   &stream,
	}
	if len(req.Tools) > 0 {
		// Round-trip through JSON; api.Tool mirrors the OpenAI function tool shape.
		raw, err := json.Marshal(req.Tools)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &apiReq.Tools); err != nil {
			return nil, fmt.Errorf("failed to convert tools: %w", err)
		}
	}

	out := &ChatCompletionResponse{Model: model, Message: ChatMessage{Role: RoleAssistant}, FinishReason: "stop"}
	var content strings.Builder

	err := o.client.Chat(ctx, apiReq, func(resp api.ChatResponse) error {
		if resp.Message.Content != "" {
			content.WriteString(resp.Message.Content)
			if callback != nil {
				if err := callback(resp.Message.Content); err != nil {
					return err
				}
			}
		}
		for _, tc := range resp.Message.ToolCalls {
			args, err := json.Marshal(tc.Function.Arguments)
			if err != nil {
				o.logger.Warn().Err(err).Str("tool", tc.Function.Name).Msg("failed to marshal tool call arguments")
				args = []byte("{}")
			}
			id := tc.ID
			if id == "" {
				id = tc.Function.Name
			}
			out.Message.ToolCalls = append(out.Message.ToolCalls, ToolCall{
				ID:       id,
				Type:     "function",
				Function: FunctionCall{Name: tc.Function.Name, Arguments: string(args)},
			})
		}
		if resp.Done {
			out.Usage = newUsage(resp.PromptEvalCount, resp.EvalCount)
			if resp.DoneReason != "" {
				out.FinishReason = resp.DoneReason
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}

	out.Message.Content = content.String()
	if len(out.Message.ToolCalls) > 0 {
		out.FinishReason = "tool_calls"
	}
	return out, nil
}

func (o *OllamaClient) convertMessages(messages []ChatMessage) []api.Message {
	out := make([]api.Message, 0, len(messages))
	for _, m := range messages {
		msg := api.Message{Role: m.Role, Content: m.Content}
		if m.Role == RoleAssistant {
			for _, tc := range m.ToolCalls {
				var args api.ToolCallFunctionArguments
				if tc.Function.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
						o.logger.Warn().Err(err).Str("tool", tc.Function.Name).Msg("failed to decode tool arguments for history")
					}
				}
				msg.ToolCalls = append(msg.ToolCalls, api.ToolCall{
					ID:       tc.ID,
					Function: api.ToolCallFunction{Name: tc.Function.Name, Arguments: args},
				})
			}
		}
		if m.Role == RoleTool {
			msg.ToolCallID = m.ToolCallID
		}
		out = append(out, msg)
	}
	return out
}
