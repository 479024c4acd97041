package llm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/rs/zerolog"
)

// OpenAIClient talks to the OpenAI Responses API.
type OpenAIClient struct {
	client *openai.Client
	model  string
	logger zerolog.Logger
}

var _ LLMClient = (*OpenAIClient)(nil)

// NewOpenAIClient creates a new OpenAI client. baseURL is optional.
func NewOpenAIClient(apiKey, model, baseURL string, logger zerolog.Logger) *OpenAIClient {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAIClient{
		client: &client,
		model:  model,
		logger: logger.With().Str("provider", "openai").Logger(),
	}
}

// Provider implements LLMClient.
func (c *OpenAIClient) Provider() string { return "openai" }

// CreateChatCompletion implements LLMClient.
func (c *OpenAIClient) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	resp, err := c.client.Responses.New(ctx, c.params(req))
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}

	out := &ChatCompletionResponse{
		ID:           resp.ID,
		Model:        string(resp.Model),
		Message:      ChatMessage{Role: RoleAssistant, Content: resp.OutputText()},
		FinishReason: "stop",
		Usage:        newUsage(int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens)),
	}
	for _, item := range resp.Output {
		if item.Type != "function_call" {
			continue
		}
		fc := item.AsFunctionCall()
		out.Message.ToolCalls = append(out.Message.ToolCalls, ToolCall{
			ID:       fc.CallID,
			Type:     "function",
			Function: FunctionCall{Name: fc.Name, Arguments: fc.Arguments},
		})
	}
	if len(out.Message.ToolCalls) > 0 {
		out.FinishReason = "tool_calls"
	}
	return out, nil
}

// CreateChatCompletionStream implements LLMClient.
func (c *OpenAIClient) CreateChatCompletionStream(ctx context.Context, req *ChatCompletionRequest, callback StreamCallback) (*ChatCompletionResponse, error) {
	stream := c.client.Responses.NewStreaming(ctx, c.params(req))
	defer stream.Close()

	out := &ChatCompletionResponse{
		Model:        c.model,
		Message:      ChatMessage{Role: RoleAssistant},
		FinishReason: "stop",
	}
	var content strings.Builder

	for stream.Next() {
		event := stream.Current()
		switch variant := event.AsAny().(type) {
		case responses.ResponseTextDeltaEvent:
			content.WriteString(variant.Delta)
			if err := callback(variant.Delta); err != nil {
				return nil, err
			}

		case responses.ResponseOutputItemDoneEvent:
			if variant.Item.Type == "function_call" {
				fc := variant.Item.AsFunctionCall()
				out.Message.ToolCalls = append(out.Message.ToolCalls, ToolCall{
					ID:       fc.CallID,
					Type:     "function",
					Function: FunctionCall{Name: fc.Name, Arguments: fc.Arguments},
				})
			}

		case responses.ResponseCompletedEvent:
			out.ID = variant.Response.ID
			out.Usage = newUsage(int(variant.Response.Usage.InputTokens), int(variant.Response.Usage.OutputTokens))

		case responses.ResponseFailedEvent:
			return nil, fmt.Errorf("openai: response failed")

		case responses.ResponseIncompleteEvent:
			out.FinishReason = "length"
			c.logger.Warn().Msg("response incomplete")

		case responses.ResponseErrorEvent:
			return nil, fmt.Errorf("openai: %s", variant.Message)
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("openai stream: %w", err)
	}

	out.Message.Content = content.String()
	if len(out.Message.ToolCalls) > 0 {
		out.FinishReason = "tool_calls"
	}
	return out, nil
}

func (c *OpenAIClient) params(req *ChatCompletionRequest) responses.ResponseNewParams {
	model := req.Model
	if model == "" {
		model = c.model
	}
	params := responses.ResponseNewParams{
		Model: model,
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: convertOpenAIMessages(req.Messages),
		},
	}
	for _, t := range req.Tools {
		params.Tools = append(params.Tools, responses.ToolUnionParam{
			OfFunction: &responses.FunctionToolParam{
				Name:        t.Function.Name,
				Description: openai.String(t.Function.Description),
				Parameters:  t.Function.Parameters,
			},
		})
	}
	return params
}

func convertOpenAIMessages(messages []ChatMessage) []responses.ResponseInputItemUnionParam {
	items := make([]responses.ResponseInputItemUnionParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			items = append(items, responses.ResponseInputItemParamOfMessage(m.Content, responses.EasyInputMessageRoleSystem))
		case RoleUser:
			items = append(items, responses.ResponseInputItemParamOfMessage(m.Content, responses.EasyInputMessageRoleUser))
		case RoleAssistant:
			if m.Content != "" {
				items = append(items, responses.ResponseInputItemParamOfMessage(m.Content, responses.EasyInputMessageRoleAssistant))
			}
			for _, tc := range m.ToolCalls {
				items = append(items, responses.ResponseInputItemParamOfFunctionCall(tc.Function.Arguments, tc.ID, tc.Function.Name))
			}
		case RoleTool:
			items = append(items, responses.ResponseInputItemParamOfFunctionCallOutput(m.ToolCallID, m.Content))
		}
	}
	return items
}
