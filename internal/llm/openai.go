package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const defaultOpenAIModel = "gpt-5"

// OpenAIClient plans through the OpenAI Chat Completions API. The API key
// is read from OPENAI_API_KEY by the SDK.
type OpenAIClient struct {
	client openai.Client
}

// NewOpenAIClient creates a client with default SDK options.
func NewOpenAIClient() *OpenAIClient {
	return &OpenAIClient{client: openai.NewClient()}
}

// NewOpenAIClientWithBaseURL creates a client against a custom endpoint,
// used by tests to point at a fake server.
func NewOpenAIClientWithBaseURL(baseURL, apiKey string) *OpenAIClient {
	return &OpenAIClient{client: openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)}
}

// Plan sends one planning request and parses the returned plan.
func (c *OpenAIClient) Plan(ctx context.Context, req PlanRequest) (PlanResponse, error) {
	model := req.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(buildUserPrompt(req)),
		},
	})
	if err != nil {
		return PlanResponse{}, fmt.Errorf("openai plan request: %w", err)
	}
	if len(completion.Choices) == 0 {
		return PlanResponse{}, fmt.Errorf("openai plan request: response has no choices")
	}
	return ParsePlan(completion.Choices[0].Message.Content, req.MaxPlanLength)
}
