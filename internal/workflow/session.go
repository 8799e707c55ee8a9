// Package workflow contains the Temporal workflow driving a design
// session: checkout, a bounded plan/execute/validate loop, and a commit or
// abort, with the checkout released no matter how the session ends.
package workflow

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/fleaxiao/PCB-MCP/internal/activities"
	"github.com/fleaxiao/PCB-MCP/internal/models"
)

// Phase is the observable state of a running session, exposed through the
// status query.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhasePlanning   Phase = "planning"
	PhaseExecuting  Phase = "executing"
	PhaseValidating Phase = "validating"
	PhaseCommitted  Phase = "committed"
	PhaseAborted    Phase = "aborted"
)

// StatusQuery is the query name for session phase and attempt count.
const StatusQuery = "status"

// Status is the status query response.
type Status struct {
	Phase    Phase  `json:"phase"`
	Attempt  int    `json:"attempt"`
	Goal     string `json:"goal"`
	Feedback int    `json:"feedback"`
}

// SessionState is the workflow-local state of one design session. Only
// serializable values live here; the board itself stays on the worker.
type SessionState struct {
	Input    models.SessionInput
	Config   models.SessionConfig
	Phase    Phase
	Attempt  int
	Feedback []string

	constraints []string
}

// DesignSession runs one agentic design session against a board file.
// The workflow id doubles as the session id keying the worker-side
// checkout.
func DesignSession(ctx workflow.Context, input models.SessionInput) (models.SessionResult, error) {
	logger := workflow.GetLogger(ctx)
	sessionID := workflow.GetInfo(ctx).WorkflowExecution.ID

	state := &SessionState{
		Input:  input,
		Config: input.Config.Normalized(),
		Phase:  PhaseIdle,
	}
	if err := workflow.SetQueryHandler(ctx, StatusQuery, func() (Status, error) {
		return Status{
			Phase:    state.Phase,
			Attempt:  state.Attempt,
			Goal:     input.Goal,
			Feedback: len(state.Feedback),
		}, nil
	}); err != nil {
		return models.SessionResult{}, err
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 2,
		},
	})

	result := models.SessionResult{SessionID: sessionID}

	var checkout activities.CheckoutBoardOutput
	err := workflow.ExecuteActivity(ctx, "CheckoutBoard", activities.CheckoutBoardInput{
		SessionID: sessionID,
		BoardPath: input.BoardPath,
	}).Get(ctx, &checkout)
	if err != nil {
		state.Phase = PhaseAborted
		result.Outcome = models.OutcomeAborted
		result.AbortReason = fmt.Sprintf("checkout failed: %v", err)
		return result, nil
	}
	defer state.cleanup(ctx, sessionID, &result)

	var loaded activities.LoadConstraintsOutput
	err = workflow.ExecuteActivity(ctx, "LoadConstraints", activities.LoadConstraintsInput{
		SessionID:       sessionID,
		ConstraintsPath: input.ConstraintsPath,
		DatasheetPaths:  input.DatasheetPaths,
	}).Get(ctx, &loaded)
	if err != nil {
		return state.abort(&result, fmt.Sprintf("constraint load failed: %v", err)), nil
	}
	state.constraints = loaded.Descriptions
	for _, w := range loaded.Warnings {
		logger.Warn("datasheet warning", "warning", w)
	}

	for state.Attempt = 1; state.Attempt <= state.Config.MaxAttempts; state.Attempt++ {
		result.Attempts = state.Attempt
		logger.Info("starting attempt", "attempt", state.Attempt, "max", state.Config.MaxAttempts)

		state.Phase = PhasePlanning
		var plan activities.PlanActionsOutput
		err = workflow.ExecuteActivity(ctx, "PlanActions", activities.PlanActionsInput{
			SessionID:   sessionID,
			Goal:        input.Goal,
			Config:      state.Config,
			Constraints: state.constraints,
			Feedback:    state.Feedback,
		}).Get(ctx, &plan)
		if err != nil {
			return state.abort(&result, fmt.Sprintf("planning failed: %v", err)), nil
		}

		state.Phase = PhaseExecuting
		var applied activities.ApplyActionsOutput
		err = workflow.ExecuteActivity(ctx, "ApplyActions", activities.ApplyActionsInput{
			SessionID:      sessionID,
			Actions:        plan.Actions,
			ToolRetryLimit: state.Config.ToolRetryLimit,
		}).Get(ctx, &applied)
		if err != nil {
			return state.abort(&result, fmt.Sprintf("execution failed: %v", err)), nil
		}
		if applied.Rejected != nil {
			state.Feedback = applied.Feedback
			if err := state.discard(ctx, sessionID); err != nil {
				return state.abort(&result, fmt.Sprintf("discard failed: %v", err)), nil
			}
			logger.Info("plan rejected during execution", "feedback", strings.Join(applied.Feedback, "; "))
			continue
		}

		state.Phase = PhaseValidating
		var eval activities.EvaluateBoardOutput
		err = workflow.ExecuteActivity(ctx, "EvaluateBoard", activities.EvaluateBoardInput{
			SessionID:         sessionID,
			SeverityThreshold: state.Config.SeverityThreshold,
		}).Get(ctx, &eval)
		if err != nil {
			return state.abort(&result, fmt.Sprintf("validation failed: %v", err)), nil
		}
		result.Violations = eval.Violations
		if eval.Blocking {
			state.Feedback = eval.Feedback
			if err := state.discard(ctx, sessionID); err != nil {
				return state.abort(&result, fmt.Sprintf("discard failed: %v", err)), nil
			}
			logger.Info("plan rejected during validation", "violations", len(eval.Violations))
			continue
		}

		var commit activities.CommitSessionOutput
		err = workflow.ExecuteActivity(ctx, "CommitSession", activities.SessionStateInput{
			SessionID: sessionID,
		}).Get(ctx, &commit)
		if err != nil {
			return state.abort(&result, fmt.Sprintf("commit failed: %v", err)), nil
		}

		state.Phase = PhaseCommitted
		result.Outcome = models.OutcomeCommitted
		result.Diff = splitDiff(commit.Diff)
		logger.Info("session committed", "attempts", state.Attempt)
		return result, nil
	}

	state.Attempt = state.Config.MaxAttempts
	return state.abort(&result,
		fmt.Sprintf("attempt budget exhausted after %d attempts", state.Config.MaxAttempts)), nil
}

// abort marks the session aborted. The committed board file is untouched;
// the last known violation set rides along in the result.
func (s *SessionState) abort(result *models.SessionResult, reason string) models.SessionResult {
	s.Phase = PhaseAborted
	result.Outcome = models.OutcomeAborted
	result.AbortReason = reason
	return *result
}

func (s *SessionState) discard(ctx workflow.Context, sessionID string) error {
	return workflow.ExecuteActivity(ctx, "DiscardWorkingCopy", activities.SessionStateInput{
		SessionID: sessionID,
	}).Get(ctx, nil)
}

// cleanup releases the checkout and archives the outcome. It runs on a
// disconnected context so a cancelled session still frees the board.
func (s *SessionState) cleanup(ctx workflow.Context, sessionID string, result *models.SessionResult) {
	cleanupCtx, cancel := workflow.NewDisconnectedContext(ctx)
	defer cancel()
	cleanupCtx = workflow.WithActivityOptions(cleanupCtx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 2,
		},
	})
	logger := workflow.GetLogger(cleanupCtx)

	if err := workflow.ExecuteActivity(cleanupCtx, "ReleaseBoard", activities.SessionStateInput{
		SessionID: sessionID,
	}).Get(cleanupCtx, nil); err != nil {
		logger.Warn("failed to release board", "error", err)
	}

	if err := workflow.ExecuteActivity(cleanupCtx, "ArchiveSession", activities.ArchiveSessionInput{
		SessionID:   sessionID,
		BoardPath:   s.Input.BoardPath,
		Goal:        s.Input.Goal,
		Outcome:     result.Outcome,
		Attempts:    result.Attempts,
		Diff:        strings.Join(result.Diff, "\n"),
		AbortReason: result.AbortReason,
	}).Get(cleanupCtx, nil); err != nil {
		logger.Warn("failed to archive session", "error", err)
	}
}

// splitDiff turns the activity's change summary into per-line entries.
func splitDiff(diff string) []string {
	if diff == "" {
		return nil
	}
	return strings.Split(diff, "\n")
}
