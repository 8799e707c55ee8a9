package tools

import (
	"context"
	"fmt"
	"time"
)

// Gateway dispatches invocations to registered handlers with a bounded
// retry on retryable failures. Validation failures and domain-level
// failures (Success=false outputs) are never retried.
type Gateway struct {
	registry   *Registry
	retryLimit int
	backoff    time.Duration
}

// NewGateway creates a gateway around a registry. retryLimit is the total
// number of attempts per invocation; values below 1 are clamped to 1.
func NewGateway(reg *Registry, retryLimit int) *Gateway {
	if retryLimit < 1 {
		retryLimit = 1
	}
	return &Gateway{registry: reg, retryLimit: retryLimit, backoff: 100 * time.Millisecond}
}

// Specs exposes the registry's tool specs.
func (g *Gateway) Specs() []ToolSpec { return g.registry.Specs() }

// Invoke runs one tool invocation. Retryable errors are retried up to the
// invocation's limit (falling back to the gateway default) with linear
// backoff; the last error is returned wrapped with the attempt count.
func (g *Gateway) Invoke(ctx context.Context, inv *ToolInvocation) (*ToolOutput, error) {
	handler, ok := g.registry.Get(inv.Name)
	if !ok {
		return nil, &ToolError{Tool: inv.Name, Err: fmt.Errorf("%w: %s", ErrUnknownTool, inv.Name)}
	}

	limit := g.retryLimit
	if inv.RetryLimit > 0 {
		limit = inv.RetryLimit
	}
	var lastErr error
	for attempt := 1; attempt <= limit; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt-1) * g.backoff):
			}
		}
		out, err := handler.Handle(ctx, inv)
		if err == nil {
			return out, nil
		}
		lastErr = err
		te, ok := err.(*ToolError)
		if !ok || !te.Retryable {
			return nil, err
		}
	}
	return nil, fmt.Errorf("tool %s failed after %d attempts: %w", inv.Name, limit, lastErr)
}
