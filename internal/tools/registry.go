package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xiaot623/gogo/concierge/internal/domain"
)

// IdentityArg is the argument key callers may not set. Executors read the caller from Call.
const IdentityArg = "userId"

// Call is the request-scoped input of a tool executor.
type Call struct {
	Caller domain.Identity
	Args   json.RawMessage
}

// Decode unmarshals the call arguments into v.
func (c Call) Decode(v any) error {
	if len(c.Args) == 0 {
		return nil
	}
	if err := json.Unmarshal(c.Args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// ExecutorFunc defines a server-side tool executor.
type ExecutorFunc func(ctx context.Context, call Call) (*domain.ToolResult, error)

// Authorizer decides whether an identity may use a tool.
type Authorizer interface {
	Allowed(ctx context.Context, id domain.Identity, tool domain.ToolDescriptor) (bool, error)
}

// Tool is a registered tool: its descriptor, compiled schema and executor.
type Tool struct {
	Descriptor domain.ToolDescriptor
	schema     *Schema
	exec       ExecutorFunc
}

// Validate checks args against the tool's parameter schema.
func (t *Tool) Validate(args json.RawMessage) error {
	if fields := t.schema.Validate(args); len(fields) > 0 {
		return domain.NewValidationError("invalid params for "+t.Descriptor.Name, fields...)
	}
	return nil
}

// Invoke runs the executor. Executor errors and panics become an unsuccessful result.
func (t *Tool) Invoke(ctx context.Context, call Call) (result *domain.ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			result = domain.Failure(fmt.Sprintf("%s failed: %v", t.Descriptor.Name, r))
		}
	}()

	res, err := t.exec(ctx, call)
	if err != nil {
		return domain.Failure(err.Error())
	}
	if res == nil {
		return domain.Failure(t.Descriptor.Name + " returned no result")
	}
	return res
}

// Registry stores tools keyed by name, in registration order.
type Registry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]*Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]*Tool),
	}
}

// Register adds a new tool.
func (r *Registry) Register(desc domain.ToolDescriptor, exec ExecutorFunc) error {
	if desc.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if exec == nil {
		return fmt.Errorf("executor is required")
	}
	schema, err := CompileSchema(desc.Parameters)
	if err != nil {
		return fmt.Errorf("invalid schema for %s: %w", desc.Name, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[desc.Name]; exists {
		return fmt.Errorf("tool already registered: %s", desc.Name)
	}
	r.tools[desc.Name] = &Tool{Descriptor: desc, schema: schema, exec: exec}
	r.order = append(r.order, desc.Name)
	return nil
}

// MustRegister adds a tool or panics.
func (r *Registry) MustRegister(desc domain.ToolDescriptor, exec ExecutorFunc) {
	if err := r.Register(desc, exec); err != nil {
		panic(err)
	}
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Bind returns the tools the caller may use, each executing on the caller's behalf.
func (r *Registry) Bind(ctx context.Context, auth Authorizer, caller domain.Identity) (*Toolset, error) {
	r.mu.RLock()
	all := make([]*Tool, 0, len(r.order))
	for _, name := range r.order {
		all = append(all, r.tools[name])
	}
	r.mu.RUnlock()

	ts := &Toolset{caller: caller, byName: make(map[string]*Tool, len(all))}
	for _, t := range all {
		ok, err := auth.Allowed(ctx, caller, t.Descriptor)
		if err != nil {
			return nil, fmt.Errorf("failed to authorize %s: %w", t.Descriptor.Name, err)
		}
		if !ok {
			continue
		}
		ts.tools = append(ts.tools, t)
		ts.byName[t.Descriptor.Name] = t
	}
	return ts, nil
}

// Toolset is the set of tools bound to one caller for one request.
type Toolset struct {
	caller domain.Identity
	tools  []*Tool
	byName map[string]*Tool
}

// Caller returns the identity the toolset is bound to.
func (ts *Toolset) Caller() domain.Identity {
	return ts.caller
}

// Descriptors returns the bound tool descriptors in order.
func (ts *Toolset) Descriptors() []domain.ToolDescriptor {
	out := make([]domain.ToolDescriptor, 0, len(ts.tools))
	for _, t := range ts.tools {
		out = append(out, t.Descriptor)
	}
	return out
}

// Lookup returns the bound tool with the given name.
func (ts *Toolset) Lookup(name string) (*Tool, bool) {
	t, ok := ts.byName[name]
	return t, ok
}

// Execute validates and runs a bound tool for the caller. Unknown names return
// domain.ErrToolNotFound; schema violations return a *domain.ValidationError.
func (ts *Toolset) Execute(ctx context.Context, name string, args json.RawMessage) (*domain.ToolResult, error) {
	t, ok := ts.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrToolNotFound, name)
	}
	args, err := StripIdentity(args)
	if err != nil {
		return nil, domain.NewValidationError("invalid params for "+name, domain.FieldError{Field: "(root)", Message: err.Error()})
	}
	if err := t.Validate(args); err != nil {
		return nil, err
	}
	return t.Invoke(ctx, Call{Caller: ts.caller, Args: args}), nil
}

// StripIdentity normalizes args to a JSON object and drops any caller-supplied identity
// argument, so the bound caller is the only identity an executor sees.
func StripIdentity(args json.RawMessage) (json.RawMessage, error) {
	obj := map[string]json.RawMessage{}
	if len(args) > 0 && string(args) != "null" {
		if err := json.Unmarshal(args, &obj); err != nil {
			return nil, fmt.Errorf("arguments must be a JSON object")
		}
	}
	if _, present := obj[IdentityArg]; !present {
		if len(args) > 0 && string(args) != "null" {
			return args, nil
		}
		return json.RawMessage(`{}`), nil
	}
	delete(obj, IdentityArg)
	return json.Marshal(obj)
}
