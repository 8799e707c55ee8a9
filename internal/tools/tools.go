// Package tools defines the tool-invocation boundary between the
// orchestrator and the board engine: typed invocations, structured outputs,
// a handler registry, and the retrying gateway the orchestrator calls
// through.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ToolInvocation is one typed command issued against a checked-out session.
type ToolInvocation struct {
	SessionID string         `json:"session_id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	// RetryLimit overrides the gateway's attempt budget for this
	// invocation when positive; zero keeps the gateway default.
	RetryLimit int `json:"retry_limit,omitempty"`
}

// ToolOutput is the structured result of a handler. Success=false with a
// Content message is a domain-level failure the planner can react to;
// transport-level failures surface as *ToolError instead.
type ToolOutput struct {
	Content string         `json:"content"`
	Success *bool          `json:"success,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// ToolParameter describes one argument of a tool for specs and schemas.
type ToolParameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // "string", "number", "boolean", "array"
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// ToolSpec is the advertisable description of a tool.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters,omitempty"`
}

// Handler executes one tool. Handlers validate their arguments and the
// board invariants; they never partially apply an edit.
type Handler interface {
	Spec() ToolSpec
	// IsMutating reports whether the tool modifies the working copy.
	IsMutating() bool
	Handle(ctx context.Context, inv *ToolInvocation) (*ToolOutput, error)
}

// ToolError is a gateway-level failure. Retryable errors (transient
// engine/transport conditions) are retried up to the gateway's bound;
// non-retryable errors escalate immediately.
type ToolError struct {
	Tool      string
	Retryable bool
	Err       error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// NewValidationError reports invalid tool arguments. Never retryable.
func NewValidationError(tool, msg string) *ToolError {
	return &ToolError{Tool: tool, Retryable: false, Err: errors.New(msg)}
}

// NewRetryableError wraps a transient failure.
func NewRetryableError(tool string, err error) *ToolError {
	return &ToolError{Tool: tool, Retryable: true, Err: err}
}

// ErrUnknownTool is returned for invocations naming no registered handler.
var ErrUnknownTool = errors.New("unknown tool")

// Registry maps tool names to handlers. Registration happens once at
// startup; lookups are read-only afterwards.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler, panicking on duplicate names (a wiring bug).
func (r *Registry) Register(h Handler) {
	name := h.Spec().Name
	if _, dup := r.handlers[name]; dup {
		panic(fmt.Sprintf("tools: duplicate handler %q", name))
	}
	r.handlers[name] = h
}

// Get looks up a handler by name.
func (r *Registry) Get(name string) (Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Specs returns all registered tool specs sorted by name.
func (r *Registry) Specs() []ToolSpec {
	out := make([]ToolSpec, 0, len(r.handlers))
	for _, h := range r.handlers {
		out = append(out, h.Spec())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Argument extraction helpers shared by handlers.

// StringArg extracts a required string argument.
func StringArg(inv *ToolInvocation, key string) (string, *ToolError) {
	v, ok := inv.Arguments[key]
	if !ok {
		return "", NewValidationError(inv.Name, "missing required argument: "+key)
	}
	s, ok := v.(string)
	if !ok {
		return "", NewValidationError(inv.Name, key+" must be a string")
	}
	if s == "" {
		return "", NewValidationError(inv.Name, key+" cannot be empty")
	}
	return s, nil
}

// FloatArg extracts a required numeric argument (JSON numbers decode as
// float64).
func FloatArg(inv *ToolInvocation, key string) (float64, *ToolError) {
	v, ok := inv.Arguments[key]
	if !ok {
		return 0, NewValidationError(inv.Name, "missing required argument: "+key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	}
	return 0, NewValidationError(inv.Name, key+" must be a number")
}

// OptionalFloatArg extracts a numeric argument when present.
func OptionalFloatArg(inv *ToolInvocation, key string) (*float64, *ToolError) {
	v, ok := inv.Arguments[key]
	if !ok {
		return nil, nil
	}
	switch n := v.(type) {
	case float64:
		return &n, nil
	case int:
		f := float64(n)
		return &f, nil
	}
	return nil, NewValidationError(inv.Name, key+" must be a number")
}
