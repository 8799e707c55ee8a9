package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-sonnet-4-5"

// AnthropicClient plans through the Anthropic Messages API. The API key is
// read from ANTHROPIC_API_KEY by the SDK.
type AnthropicClient struct {
	client anthropic.Client
}

// NewAnthropicClient creates a client with default SDK options.
func NewAnthropicClient() *AnthropicClient {
	return &AnthropicClient{client: anthropic.NewClient()}
}

// NewAnthropicClientWithBaseURL creates a client against a custom endpoint,
// used by tests to point at a fake server.
func NewAnthropicClientWithBaseURL(baseURL, apiKey string) *AnthropicClient {
	return &AnthropicClient{client: anthropic.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)}
}

// Plan sends one planning request and parses the returned plan.
func (c *AnthropicClient) Plan(ctx context.Context, req PlanRequest) (PlanResponse, error) {
	model := req.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildUserPrompt(req))),
		},
	})
	if err != nil {
		return PlanResponse{}, fmt.Errorf("anthropic plan request: %w", err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return ParsePlan(text.String(), req.MaxPlanLength)
}
