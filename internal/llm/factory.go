package llm

import (
	"context"
	"fmt"
	"strings"
)

// MultiProviderClient implements Client by dispatching on the request's
// Provider field, so one planner activity instance serves every provider
// without knowing which will be used at registration time.
type MultiProviderClient struct {
	openai    *OpenAIClient
	anthropic *AnthropicClient
}

// NewMultiProviderClient creates a client that can dispatch to either
// provider.
func NewMultiProviderClient() *MultiProviderClient {
	return &MultiProviderClient{
		openai:    NewOpenAIClient(),
		anthropic: NewAnthropicClient(),
	}
}

// Plan dispatches on the provider, inferring it from the model name when
// the field is empty.
func (c *MultiProviderClient) Plan(ctx context.Context, req PlanRequest) (PlanResponse, error) {
	provider := req.Provider
	if provider == "" {
		provider = detectProviderFromModel(req.Model)
	}

	switch provider {
	case "anthropic":
		return c.anthropic.Plan(ctx, req)
	case "openai":
		return c.openai.Plan(ctx, req)
	default:
		return PlanResponse{}, fmt.Errorf("unsupported planner provider: %s (supported: openai, anthropic)", provider)
	}
}

// detectProviderFromModel infers the provider from the model name.
func detectProviderFromModel(model string) string {
	if strings.HasPrefix(model, "claude") {
		return "anthropic"
	}
	return "openai"
}
