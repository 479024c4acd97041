package llm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/xiaot623/gogo/concierge/config"
)

// NewLLMClient creates an LLM client for the configured provider.
func NewLLMClient(ctx context.Context, cfg config.LLMConfig, logger zerolog.Logger) (LLMClient, error) {
	switch cfg.Provider {
	case "mock", "":
		logger.Warn().Msg("llm.provider=mock, using mock LLM client")
		return NewMockClient(), nil
	case "openai":
		return NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.BaseURL, logger), nil
	case "gemini":
		return NewGeminiClient(ctx, cfg.APIKey, cfg.Model, logger)
	case "ollama":
		return NewOllamaClient(cfg.BaseURL, cfg.Model, cfg.Timeout, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
