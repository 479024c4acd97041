// Package policy evaluates tool role gates with OPA.
package policy

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/open-policy-agent/opa/rego"

	"github.com/xiaot623/gogo/concierge/internal/domain"
)

// DefaultPolicy is the built-in tool policy: a role may call a tool when it is listed in the
// tool's allowed roles, and the admin scope grants every tool.
//
//go:embed tool_policy.rego
var DefaultPolicy string

// Input is the document a policy decides on.
type Input struct {
	ToolName     string   `json:"tool_name"`
	Role         string   `json:"role"`
	Scopes       []string `json:"scopes"`
	AllowedRoles []string `json:"allowed_roles"`
}

// Decision is the outcome of a policy evaluation.
type Decision struct {
	Allow  bool
	Reason string
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.tool_policy.decision"),
		rego.Module("tool_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// NewInput builds the policy input for an identity calling a tool.
func NewInput(id domain.Identity, tool domain.ToolDescriptor) Input {
	roles := make([]string, 0, len(tool.AllowedRoles))
	for _, r := range tool.AllowedRoles {
		roles = append(roles, string(r))
	}
	scopes := id.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	return Input{
		ToolName:     tool.Name,
		Role:         string(id.Role),
		Scopes:       scopes,
		AllowedRoles: roles,
	}
}

// Evaluate checks the tool policy. A policy that yields nothing denies.
func (e *Engine) Evaluate(ctx context.Context, input Input) (Decision, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Allow: false, Reason: "no decision"}, nil
	}

	obj, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return Decision{}, fmt.Errorf("unexpected policy result type %T", results[0].Expressions[0].Value)
	}
	allow, _ := obj["allow"].(bool)
	reason, _ := obj["reason"].(string)
	return Decision{Allow: allow, Reason: reason}, nil
}

// Allowed is a convenience wrapper around Evaluate for an identity and a tool.
func (e *Engine) Allowed(ctx context.Context, id domain.Identity, tool domain.ToolDescriptor) (bool, error) {
	d, err := e.Evaluate(ctx, NewInput(id, tool))
	if err != nil {
		return false, err
	}
	return d.Allow, nil
}
