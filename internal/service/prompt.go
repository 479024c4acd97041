package service

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/xiaot623/gogo/concierge/config"
)

//go:embed prompts/system.txt
var defaultSystemPrompt string

// PromptBuilder renders the system prompt with the current dates substituted.
type PromptBuilder struct {
	template string
	loc      *time.Location
}

// NewPromptBuilder loads the prompt template. An empty file setting selects the built-in prompt.
func NewPromptBuilder(cfg config.AgentConfig) (*PromptBuilder, error) {
	tmpl := defaultSystemPrompt
	if cfg.SystemPromptFile != "" {
		data, err := os.ReadFile(cfg.SystemPromptFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read system prompt: %w", err)
		}
		tmpl = string(data)
	}

	tz := cfg.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid agent.timezone %q: %w", tz, err)
	}
	return &PromptBuilder{template: tmpl, loc: loc}, nil
}

// Build substitutes the date placeholders for now.
func (p *PromptBuilder) Build(now time.Time) string {
	now = now.In(p.loc)
	r := strings.NewReplacer(
		"${TODAY_ISO}", now.Format("2006-01-02"),
		"${TOMORROW_ISO}", now.AddDate(0, 0, 1).Format("2006-01-02"),
		"${TODAY_FORMATTED}", now.Format("Monday, January 2, 2006"),
		"${CURRENT_YEAR}", strconv.Itoa(now.Year()),
		"${CURRENT_TIME}", now.Format("15:04:05"),
	)
	return r.Replace(p.template)
}
