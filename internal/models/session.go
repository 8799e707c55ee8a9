package models

import "github.com/fleaxiao/PCB-MCP/internal/rules"

// Session tuning defaults. All bounds are configuration points; these values
// apply when the caller leaves them zero.
const (
	DefaultMaxAttempts    = 3
	DefaultMaxPlanLength  = 16
	DefaultToolRetryLimit = 3
)

// SessionConfig bounds one design session. Zero values fall back to the
// defaults above; SeverityThreshold defaults to "error".
type SessionConfig struct {
	Provider string `json:"provider,omitempty"` // "anthropic" or "openai"
	Model    string `json:"model,omitempty"`

	// MaxAttempts bounds the Planning -> Rejected -> Planning retry loop.
	MaxAttempts int `json:"max_attempts,omitempty"`
	// MaxPlanLength bounds the number of actions in a single plan.
	MaxPlanLength int `json:"max_plan_length,omitempty"`
	// ToolRetryLimit bounds retries of a failing gateway call before the
	// failure escalates to a session abort.
	ToolRetryLimit int `json:"tool_retry_limit,omitempty"`
	// SeverityThreshold is the lowest violation severity that blocks a
	// commit ("advisory", "warning", "error", "critical").
	SeverityThreshold string `json:"severity_threshold,omitempty"`
}

// Normalized returns a copy with defaults applied.
func (c SessionConfig) Normalized() SessionConfig {
	out := c
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = DefaultMaxAttempts
	}
	if out.MaxPlanLength <= 0 {
		out.MaxPlanLength = DefaultMaxPlanLength
	}
	if out.ToolRetryLimit <= 0 {
		out.ToolRetryLimit = DefaultToolRetryLimit
	}
	if out.SeverityThreshold == "" {
		out.SeverityThreshold = "error"
	}
	return out
}

// SessionInput starts a design session: one goal against one board file.
type SessionInput struct {
	BoardPath       string        `json:"board_path"`
	Goal            string        `json:"goal"`
	ConstraintsPath string        `json:"constraints_path,omitempty"`
	DatasheetPaths  []string      `json:"datasheet_paths,omitempty"`
	Config          SessionConfig `json:"config"`
}

// Session outcome states.
const (
	OutcomeCommitted = "committed"
	OutcomeAborted   = "aborted"
)

// SessionResult is the user-visible outcome: either a committed diff
// summary or a structured abort reason with the last known violation set.
type SessionResult struct {
	SessionID string `json:"session_id"`
	Outcome   string `json:"outcome"` // committed | aborted
	Attempts  int    `json:"attempts"`

	// Diff summarizes the applied actions on commit.
	Diff []string `json:"diff,omitempty"`

	AbortReason string            `json:"abort_reason,omitempty"`
	Violations  []rules.Violation `json:"violations,omitempty"`
}
