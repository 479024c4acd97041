// Package service implements the agent turn, usage accounting and direct tool calls.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/xiaot623/gogo/concierge/config"
	"github.com/xiaot623/gogo/concierge/internal/adapter/llm"
	"github.com/xiaot623/gogo/concierge/internal/domain"
	"github.com/xiaot623/gogo/concierge/internal/repository"
	"github.com/xiaot623/gogo/concierge/internal/tools"
)

type Service struct {
	registry  *tools.Registry
	authz     tools.Authorizer
	ledger    *Ledger
	admission *Admission
	agent     *Agent
	cfg       *config.Config
	logger    zerolog.Logger
	now       func() time.Time
}

func New(store repository.Store, registry *tools.Registry, authz tools.Authorizer, llmClient llm.LLMClient, cfg *config.Config, logger zerolog.Logger) (*Service, error) {
	prompt, err := NewPromptBuilder(cfg.Agent)
	if err != nil {
		return nil, err
	}
	ledger := NewLedger(store, cfg.Pricing, cfg.Quota, logger)
	return &Service{
		registry:  registry,
		authz:     authz,
		ledger:    ledger,
		admission: NewAdmission(ledger),
		agent:     NewAgent(llmClient, cfg.LLM.Model, registry, authz, ledger, prompt, logger),
		cfg:       cfg,
		logger:    logger.With().Str("component", "service").Logger(),
		now:       time.Now,
	}, nil
}

// ToolNames lists the registered tools.
func (s *Service) ToolNames() []string {
	return s.registry.Names()
}

// Usage returns the caller's usage snapshot.
func (s *Service) Usage(ctx context.Context, id domain.Identity) (*domain.UsageSnapshot, error) {
	if id.ID == "" {
		return nil, domain.ErrUnauthenticated
	}
	return s.ledger.Usage(ctx, id.ID)
}

// CallAgent answers the last turn of history.
func (s *Service) CallAgent(ctx context.Context, id domain.Identity, history []domain.ConversationTurn) (*RunResult, error) {
	release, err := s.admission.Admit(ctx, id.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	res, err := s.agent.Run(ctx, id, history, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", id.ID).Msg("agent call failed")
		return nil, err
	}
	return res, nil
}

// CallTool runs one tool directly for the caller. Checks run in order: the tool exists, the
// caller may use it, the params match its schema. Executor failures are returned as an
// unsuccessful result, not as an error.
func (s *Service) CallTool(ctx context.Context, id domain.Identity, name string, params json.RawMessage) (*domain.ToolResult, error) {
	if id.ID == "" {
		return nil, domain.ErrUnauthenticated
	}
	tool, ok := s.registry.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrToolNotFound, name)
	}

	allowed, err := s.authz.Allowed(ctx, id, tool.Descriptor)
	if err != nil {
		return nil, fmt.Errorf("failed to authorize %s: %w", name, err)
	}
	if !allowed {
		return nil, fmt.Errorf("%w: %s", domain.ErrForbidden, name)
	}

	args, err := tools.StripIdentity(params)
	if err != nil {
		return nil, domain.NewValidationError("invalid params for "+name, domain.FieldError{Field: "(root)", Message: err.Error()})
	}
	if err := tool.Validate(args); err != nil {
		return nil, err
	}

	result := tool.Invoke(ctx, tools.Call{Caller: id, Args: args})
	s.logger.Info().Str("user_id", id.ID).Str("tool", name).Bool("success", result.Success).Msg("direct tool call")
	return result, nil
}
