package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const planText = `{"commentary":"ok","actions":[{"kind":"move","target":"C1","position":{"x":30,"y":15}}]}`

func fakeAnthropicResponse() string {
	content, _ := json.Marshal(planText)
	return fmt.Sprintf(`{
		"id": "msg_test123",
		"type": "message",
		"role": "assistant",
		"model": "claude-sonnet-4-5",
		"content": [{"type": "text", "text": %s}],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 100, "output_tokens": 10}
	}`, content)
}

func fakeOpenAIResponse() string {
	content, _ := json.Marshal(planText)
	return fmt.Sprintf(`{
		"id": "chatcmpl-test123",
		"object": "chat.completion",
		"created": 1700000000,
		"model": "gpt-5",
		"choices": [{
			"index": 0,
			"message": {"role": "assistant", "content": %s},
			"finish_reason": "stop"
		}]
	}`, content)
}

// The Anthropic client sends the board prompt and parses the plan out of
// the text content blocks.
func TestAnthropicClient_Plan(t *testing.T) {
	var capturedBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &capturedBody))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, fakeAnthropicResponse())
	}))
	defer server.Close()

	c := NewAnthropicClientWithBaseURL(server.URL, "test-key")
	resp, err := c.Plan(context.Background(), PlanRequest{
		Model:         "claude-sonnet-4-5",
		Goal:          "move C1 away from U1",
		BoardSummary:  "2 footprints, 3 nets",
		MaxPlanLength: 16,
	})
	require.NoError(t, err)
	require.Len(t, resp.Actions, 1)
	assert.Equal(t, "C1", resp.Actions[0].Target)

	assert.Equal(t, "claude-sonnet-4-5", capturedBody["model"])
	system, ok := capturedBody["system"].([]any)
	require.True(t, ok, "system blocks must be present")
	require.NotEmpty(t, system)

	messages, ok := capturedBody["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 1)
	wire, _ := json.Marshal(messages[0])
	assert.Contains(t, string(wire), "move C1 away from U1")
}

// The OpenAI client sends system and user messages and parses the first
// choice.
func TestOpenAIClient_Plan(t *testing.T) {
	var capturedBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &capturedBody))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, fakeOpenAIResponse())
	}))
	defer server.Close()

	c := NewOpenAIClientWithBaseURL(server.URL, "test-key")
	resp, err := c.Plan(context.Background(), PlanRequest{
		Model:         "gpt-5",
		Goal:          "move C1 away from U1",
		BoardSummary:  "2 footprints, 3 nets",
		MaxPlanLength: 16,
	})
	require.NoError(t, err)
	require.Len(t, resp.Actions, 1)

	messages, ok := capturedBody["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	first, _ := messages[0].(map[string]any)
	assert.Equal(t, "system", first["role"])
}

// Provider errors surface instead of being swallowed into empty plans.
func TestAnthropicClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"type":"error","error":{"type":"api_error","message":"boom"}}`)
	}))
	defer server.Close()

	c := NewAnthropicClientWithBaseURL(server.URL, "test-key")
	_, err := c.Plan(context.Background(), PlanRequest{Goal: "g", MaxPlanLength: 4})
	assert.Error(t, err)
}

// The multi-provider client rejects unknown providers and infers the
// provider from claude-prefixed model names.
func TestMultiProviderClient_Dispatch(t *testing.T) {
	c := NewMultiProviderClient()
	_, err := c.Plan(context.Background(), PlanRequest{Provider: "cohere"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported planner provider")

	assert.Equal(t, "anthropic", detectProviderFromModel("claude-sonnet-4-5"))
	assert.Equal(t, "openai", detectProviderFromModel("gpt-5"))
}
