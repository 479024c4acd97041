package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/xiaot623/gogo/concierge/internal/adapter/llm"
	"github.com/xiaot623/gogo/concierge/internal/domain"
	"github.com/xiaot623/gogo/concierge/internal/tools"
)

// MaxToolCallsPerTurn is the number of tool calls executed for one request.
// Further calls proposed by the model are ignored.
const MaxToolCallsPerTurn = 1

const (
	fallbackNoAnswer  = "I have nothing to add for now."
	fallbackProcessed = "Your request has been processed."
	toolTurnPrefix    = "[tool] "
)

// Observer receives progress of a run. Returning an error aborts the run.
type Observer interface {
	ToolCall(ctx context.Context, name string, args any) error
	Delta(ctx context.Context, delta string) error
}

// RunResult is the outcome of one agent turn.
type RunResult struct {
	Response  *domain.AgentResponse
	Usage     domain.Usage
	ToolCalls int
	// Streamed is set when the answer text already reached the observer as deltas.
	Streamed bool
}

// Agent answers one conversation turn with at most one tool call.
type Agent struct {
	llm      llm.LLMClient
	model    string
	registry *tools.Registry
	authz    tools.Authorizer
	ledger   *Ledger
	prompt   *PromptBuilder
	logger   zerolog.Logger
	now      func() time.Time
}

// NewAgent creates an agent.
func NewAgent(client llm.LLMClient, model string, registry *tools.Registry, authz tools.Authorizer, ledger *Ledger, prompt *PromptBuilder, logger zerolog.Logger) *Agent {
	return &Agent{
		llm:      client,
		model:    model,
		registry: registry,
		authz:    authz,
		ledger:   ledger,
		prompt:   prompt,
		logger:   logger.With().Str("component", "agent").Logger(),
		now:      time.Now,
	}
}

// Run answers the last turn of history for id. obs may be nil.
//
// Usage of every completed model call is recorded once when Run returns, even if ctx
// was cancelled in the meantime.
func (a *Agent) Run(ctx context.Context, id domain.Identity, history []domain.ConversationTurn, obs Observer) (*RunResult, error) {
	toolset, err := a.registry.Bind(ctx, a.authz, id)
	if err != nil {
		return nil, fmt.Errorf("failed to bind tools: %w", err)
	}
	llmTools, err := toLLMTools(toolset.Descriptors())
	if err != nil {
		return nil, err
	}

	result := &RunResult{}
	defer a.record(ctx, id.ID, &result.Usage)

	messages := a.compose(history)
	first, err := a.llm.CreateChatCompletion(ctx, &llm.ChatCompletionRequest{
		Model:    a.model,
		Messages: messages,
		Tools:    llmTools,
	})
	if err != nil {
		return nil, modelError(ctx, err)
	}
	result.Usage.Add(usageOf(first))

	calls := first.Message.ToolCalls
	if len(calls) == 0 {
		content := first.Message.Content
		if strings.TrimSpace(content) == "" {
			content = fallbackNoAnswer
		}
		result.Response = domain.TextResponse(content)
		return result, nil
	}
	if len(calls) > MaxToolCallsPerTurn {
		a.logger.Debug().Int("proposed", len(calls)).Msg("ignoring extra tool calls")
	}

	call := calls[0]
	name := call.Function.Name
	result.ToolCalls = 1
	a.logger.Info().Str("user_id", id.ID).Str("tool", name).Msg("tool call")

	if obs != nil {
		if err := obs.ToolCall(ctx, name, observedArgs(call.Function.Arguments)); err != nil {
			return nil, err
		}
	}

	if _, ok := toolset.Lookup(name); !ok {
		result.Response = domain.TextResponse(fmt.Sprintf("Error: the tool %q does not exist.", name))
		return result, nil
	}

	toolResult := a.execute(ctx, toolset, name, call.Function.Arguments)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if resp, ok := shortcutResponse(name, toolResult); ok {
		result.Response = resp
		return result, nil
	}

	payload, err := json.Marshal(toolResult)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool result: %w", err)
	}
	messages = append(messages,
		llm.ChatMessage{Role: llm.RoleAssistant, Content: first.Message.Content, ToolCalls: []llm.ToolCall{call}},
		llm.ChatMessage{Role: llm.RoleTool, Name: name, ToolCallID: call.ID, Content: string(payload)},
	)
	req := &llm.ChatCompletionRequest{Model: a.model, Messages: messages, Tools: llmTools}

	var second *llm.ChatCompletionResponse
	if obs == nil {
		second, err = a.llm.CreateChatCompletion(ctx, req)
	} else {
		var sinkErr error
		// Leading blank deltas are held back so an empty answer can be replaced by the fallback.
		var held strings.Builder
		second, err = a.llm.CreateChatCompletionStream(ctx, req, func(delta string) error {
			if !result.Streamed && strings.TrimSpace(delta) == "" {
				held.WriteString(delta)
				return nil
			}
			if held.Len() > 0 {
				delta = held.String() + delta
				held.Reset()
			}
			if err := obs.Delta(ctx, delta); err != nil {
				sinkErr = err
				return err
			}
			result.Streamed = true
			return nil
		})
		if sinkErr != nil {
			return nil, sinkErr
		}
	}
	if err != nil {
		return nil, modelError(ctx, err)
	}
	result.Usage.Add(usageOf(second))

	content := second.Message.Content
	if strings.TrimSpace(content) == "" && !result.Streamed {
		content = fallbackProcessed
	}
	result.Response = domain.TextResponse(content)
	return result, nil
}

// compose prepends the system prompt. Tool turns supplied by the caller are passed as
// user messages since they carry no call id to pair with.
func (a *Agent) compose(history []domain.ConversationTurn) []llm.ChatMessage {
	messages := make([]llm.ChatMessage, 0, len(history)+1)
	messages = append(messages, llm.ChatMessage{Role: llm.RoleSystem, Content: a.prompt.Build(a.now())})
	for _, turn := range history {
		switch turn.Role {
		case domain.TurnRoleAssistant:
			messages = append(messages, llm.ChatMessage{Role: llm.RoleAssistant, Content: turn.Content})
		case domain.TurnRoleTool:
			messages = append(messages, llm.ChatMessage{Role: llm.RoleUser, Content: toolTurnPrefix + turn.Content})
		default:
			messages = append(messages, llm.ChatMessage{Role: llm.RoleUser, Content: turn.Content})
		}
	}
	return messages
}

// execute runs a bound tool. Invalid arguments and failures become unsuccessful results
// the model can explain.
func (a *Agent) execute(ctx context.Context, toolset *tools.Toolset, name, arguments string) *domain.ToolResult {
	args := json.RawMessage(arguments)
	if strings.TrimSpace(arguments) == "" {
		args = nil
	}
	res, err := toolset.Execute(ctx, name, args)
	if err == nil {
		return res
	}

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return &domain.ToolResult{
			Success: false,
			Message: verr.Message,
			Data:    map[string]any{"errors": verr.Fields},
		}
	}
	return domain.Failure(err.Error())
}

func (a *Agent) record(ctx context.Context, userID string, usage *domain.Usage) {
	if usage.IsZero() {
		return
	}
	snap, err := a.ledger.RecordUsage(context.WithoutCancel(ctx), userID, *usage)
	if err != nil {
		a.logger.Error().Err(err).Str("user_id", userID).Msg("failed to record usage")
		return
	}
	a.logger.Debug().
		Str("user_id", userID).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Int64("daily_cost_micros", snap.Daily.CostMicros).
		Int64("monthly_cost_micros", snap.Monthly.CostMicros).
		Msg("usage recorded")
}

func toLLMTools(descs []domain.ToolDescriptor) ([]llm.Tool, error) {
	out := make([]llm.Tool, 0, len(descs))
	for _, d := range descs {
		t, err := llm.NewFunctionTool(d.Name, d.Description, d.Parameters)
		if err != nil {
			return nil, fmt.Errorf("invalid schema for %s: %w", d.Name, err)
		}
		out = append(out, t)
	}
	return out, nil
}

// observedArgs decodes arguments for display; undecodable input is shown verbatim.
func observedArgs(raw string) any {
	args, err := llm.ParseArguments(raw)
	if err != nil {
		return raw
	}
	return args
}

func usageOf(resp *llm.ChatCompletionResponse) domain.Usage {
	return domain.Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}
}

func modelError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %v", domain.ErrModelUnavailable, err)
}
