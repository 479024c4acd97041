package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// GeminiClient talks to the Google Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
	logger zerolog.Logger
}

var _ LLMClient = (*GeminiClient)(nil)

// NewGeminiClient creates a Gemini client.
func NewGeminiClient(ctx context.Context, apiKey, model string, logger zerolog.Logger) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiClient{
		client: client,
		model:  model,
		logger: logger.With().Str("provider", "gemini").Logger(),
	}, nil
}

// Provider implements LLMClient.
func (g *GeminiClient) Provider() string { return "gemini" }

// CreateChatCompletion implements LLMClient.
func (g *GeminiClient) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	contents, cfg := g.convert(req)
	resp, err := g.client.Models.GenerateContent(ctx, g.modelFor(req), contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	out := &ChatCompletionResponse{Model: g.modelFor(req), Message: ChatMessage{Role: RoleAssistant}, FinishReason: "stop"}
	g.collect(resp, out, nil)
	return out, nil
}

// CreateChatCompletionStream implements LLMClient.
func (g *GeminiClient) CreateChatCompletionStream(ctx context.Context, req *ChatCompletionRequest, callback StreamCallback) (*ChatCompletionResponse, error) {
	contents, cfg := g.convert(req)
	out := &ChatCompletionResponse{Model: g.modelFor(req), Message: ChatMessage{Role: RoleAssistant}, FinishReason: "stop"}
	var content strings.Builder

	for resp, err := range g.client.Models.GenerateContentStream(ctx, g.modelFor(req), contents, cfg) {
		if err != nil {
			return nil, fmt.Errorf("gemini stream: %w", err)
		}
		if err := g.collect(resp, out, func(delta string) error {
			content.WriteString(delta)
			return callback(delta)
		}); err != nil {
			return nil, err
		}
	}
	out.Message.Content = content.String()
	return out, nil
}

// collect folds one response chunk into out. Text parts go to onText when set, otherwise they
// are appended to the message content.
func (g *GeminiClient) collect(resp *genai.GenerateContentResponse, out *ChatCompletionResponse, onText func(string) error) error {
	if resp == nil {
		return nil
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = newUsage(int(u.PromptTokenCount), int(u.CandidatesTokenCount))
	}
	for _, candidate := range resp.Candidates {
		if candidate.FinishReason == genai.FinishReasonMaxTokens {
			out.FinishReason = "length"
		}
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Text != "" && !part.Thought {
				if onText != nil {
					if err := onText(part.Text); err != nil {
						return err
					}
				} else {
					out.Message.Content += part.Text
				}
			}
			if part.FunctionCall != nil {
				args, err := json.Marshal(part.FunctionCall.Args)
				if err != nil {
					args = []byte("{}")
				}
				id := part.FunctionCall.ID
				if id == "" {
					id = part.FunctionCall.Name
				}
				out.Message.ToolCalls = append(out.Message.ToolCalls, ToolCall{
					ID:       id,
					Type:     "function",
					Function: FunctionCall{Name: part.FunctionCall.Name, Arguments: string(args)},
				})
				out.FinishReason = "tool_calls"
			}
		}
	}
	return nil
}

func (g *GeminiClient) modelFor(req *ChatCompletionRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return g.model
}

func (g *GeminiClient) convert(req *ChatCompletionRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	cfg := &genai.GenerateContentConfig{}
	var contents []*genai.Content

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: msg.Content}}}
		case RoleTool:
			// Tool results are part of the user role in Gemini.
			contents = append(contents, &genai.Content{
				Role: "user",
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						ID:       msg.ToolCallID,
						Name:     msg.Name,
						Response: map[string]any{"result": msg.Content},
					},
				}},
			})
		default:
			role := "user"
			if msg.Role == RoleAssistant {
				role = "model"
			}
			var parts []*genai.Part
			if msg.Content != "" {
				parts = append(parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				args, err := ParseArguments(tc.Function.Arguments)
				if err != nil {
					g.logger.Warn().Err(err).Str("tool", tc.Function.Name).Msg("failed to decode tool arguments for history")
				}
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{Name: tc.Function.Name, Args: args}})
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: role, Parts: parts})
			}
		}
	}

	if len(req.Tools) > 0 {
		fds := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			fds = append(fds, &genai.FunctionDeclaration{
				Name:                 t.Function.Name,
				Description:          t.Function.Description,
				ParametersJsonSchema: t.Function.Parameters,
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: fds}}
	}
	return contents, cfg
}
