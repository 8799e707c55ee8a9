// Package llm contains the planner clients. A planner turns the session
// goal plus the current board and rule state into a bounded list of layout
// actions, using either the Anthropic or OpenAI chat API.
package llm

import (
	"context"

	"github.com/fleaxiao/PCB-MCP/internal/models"
)

// PlanRequest carries everything the planner sees for one attempt.
type PlanRequest struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	MaxTokens int64  `json:"max_tokens,omitempty"`

	Goal         string   `json:"goal"`
	BoardSummary string   `json:"board_summary"`
	BoardReport  string   `json:"board_report"`
	Constraints  []string `json:"constraints,omitempty"`

	// Feedback from the previous attempt: violation messages and rejected
	// actions. Empty on the first attempt.
	Feedback []string `json:"feedback,omitempty"`

	MaxPlanLength int `json:"max_plan_length"`
}

// PlanResponse is the parsed planner output.
type PlanResponse struct {
	Actions    []models.PlannedAction `json:"actions"`
	Commentary string                 `json:"commentary,omitempty"`
}

// Client is a planning backend.
type Client interface {
	Plan(ctx context.Context, req PlanRequest) (PlanResponse, error)
}
