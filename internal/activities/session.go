// Package activities contains the worker-side activities backing the
// design session workflow. All file, database, and network I/O lives
// here; the workflow only sees the JSON-serializable inputs and outputs.
package activities

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.temporal.io/sdk/activity"

	"github.com/fleaxiao/PCB-MCP/internal/board"
	"github.com/fleaxiao/PCB-MCP/internal/datasheet"
	"github.com/fleaxiao/PCB-MCP/internal/llm"
	"github.com/fleaxiao/PCB-MCP/internal/models"
	"github.com/fleaxiao/PCB-MCP/internal/rules"
	"github.com/fleaxiao/PCB-MCP/internal/session"
	"github.com/fleaxiao/PCB-MCP/internal/tools"
)

// positionTolerance is the slack allowed when comparing expected against
// actual coordinates in preconditions, in mm.
const positionTolerance = 1e-6

// SessionActivities bundles the worker-side dependencies of a design
// session: the checkout store, the planner client, the tool gateway, and
// the optional session archive.
type SessionActivities struct {
	Store   *session.Store
	Planner llm.Client
	Gateway *tools.Gateway
	Archive *session.Archive
}

// NewSessionActivities creates the activity set around a shared store and
// gateway.
func NewSessionActivities(store *session.Store, planner llm.Client, gateway *tools.Gateway, archive *session.Archive) *SessionActivities {
	return &SessionActivities{Store: store, Planner: planner, Gateway: gateway, Archive: archive}
}

// CheckoutBoardInput is the input for the CheckoutBoard activity.
type CheckoutBoardInput struct {
	SessionID string `json:"session_id"`
	BoardPath string `json:"board_path"`
}

// CheckoutBoardOutput is the output from the CheckoutBoard activity.
type CheckoutBoardOutput struct {
	Summary string `json:"summary"`
}

// CheckoutBoard loads the board file and pins it for exclusive editing.
func (a *SessionActivities) CheckoutBoard(ctx context.Context, input CheckoutBoardInput) (CheckoutBoardOutput, error) {
	co, err := a.Store.Checkout(input.SessionID, input.BoardPath)
	if err != nil {
		return CheckoutBoardOutput{}, err
	}
	activity.GetLogger(ctx).Info("checked out board",
		"session", input.SessionID, "path", co.BoardPath)
	return CheckoutBoardOutput{Summary: co.Committed.Summary()}, nil
}

// LoadConstraintsInput is the input for the LoadConstraints activity.
type LoadConstraintsInput struct {
	SessionID       string   `json:"session_id"`
	ConstraintsPath string   `json:"constraints_path,omitempty"`
	DatasheetPaths  []string `json:"datasheet_paths,omitempty"`
}

// LoadConstraintsOutput is the output from the LoadConstraints activity.
type LoadConstraintsOutput struct {
	Descriptions []string `json:"descriptions"`
	Warnings     []string `json:"warnings,omitempty"`
}

// LoadConstraints assembles the session's constraint set from the YAML
// config plus best-effort datasheet extraction. Datasheets contribute the
// parseable subset with warnings; an unsupported configured constraint is
// fatal. The reference for each datasheet is its file name stem.
func (a *SessionActivities) LoadConstraints(ctx context.Context, input LoadConstraintsInput) (LoadConstraintsOutput, error) {
	logger := activity.GetLogger(ctx)
	var constraints []rules.Constraint

	if input.ConstraintsPath != "" {
		cs, err := rules.LoadConfig(input.ConstraintsPath)
		if err != nil {
			return LoadConstraintsOutput{}, err
		}
		constraints = append(constraints, cs...)
	} else {
		constraints = append(constraints, rules.Constraint{
			ID:         "default-clearance",
			Kind:       rules.KindClearance,
			Severity:   rules.SeverityError,
			Provenance: rules.ProvenanceConfig,
			Params:     map[string]any{"min_mm": rules.DefaultClearanceMM},
		})
	}

	var out LoadConstraintsOutput
	for _, path := range input.DatasheetPaths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return LoadConstraintsOutput{}, fmt.Errorf("read datasheet %s: %w", path, err)
		}
		ref := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		result := datasheet.Extract(ref, string(raw))
		constraints = append(constraints, result.Constraints...)
		for _, w := range result.Warnings {
			out.Warnings = append(out.Warnings, w.String())
			logger.Warn("datasheet extraction warning", "path", path, "warning", w.String())
		}
	}

	for _, c := range constraints {
		if err := c.Validate(); err != nil {
			return LoadConstraintsOutput{}, err
		}
		out.Descriptions = append(out.Descriptions, describeConstraint(c))
	}

	if err := a.Store.SetConstraints(input.SessionID, constraints); err != nil {
		return LoadConstraintsOutput{}, err
	}
	logger.Info("loaded constraints", "session", input.SessionID, "count", len(constraints))
	return out, nil
}

func describeConstraint(c rules.Constraint) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s, %s)", c.ID, c.Kind, c.EffectiveSeverity())
	if len(c.Params) > 0 {
		keys := make([]string, 0, len(c.Params))
		for k := range c.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, c.Params[k]))
		}
		fmt.Fprintf(&sb, ": %s", strings.Join(parts, ", "))
	}
	if c.AppliesTo != "" {
		fmt.Fprintf(&sb, " where %s", c.AppliesTo)
	}
	return sb.String()
}

// PlanActionsInput is the input for the PlanActions activity.
type PlanActionsInput struct {
	SessionID   string               `json:"session_id"`
	Goal        string               `json:"goal"`
	Config      models.SessionConfig `json:"config"`
	Constraints []string             `json:"constraints,omitempty"`
	Feedback    []string             `json:"feedback,omitempty"`
}

// PlanActionsOutput is the output from the PlanActions activity.
type PlanActionsOutput struct {
	Actions    []models.PlannedAction `json:"actions"`
	Commentary string                 `json:"commentary,omitempty"`
}

// PlanActions asks the planner for a bounded action plan against the
// current working copy.
func (a *SessionActivities) PlanActions(ctx context.Context, input PlanActionsInput) (PlanActionsOutput, error) {
	co, err := a.Store.Get(input.SessionID)
	if err != nil {
		return PlanActionsOutput{}, err
	}
	co.Lock()
	summary := co.Working.Summary()
	report := board.Report(co.Working)
	co.Unlock()

	resp, err := a.Planner.Plan(ctx, llm.PlanRequest{
		Provider:      input.Config.Provider,
		Model:         input.Config.Model,
		Goal:          input.Goal,
		BoardSummary:  summary,
		BoardReport:   report,
		Constraints:   input.Constraints,
		Feedback:      input.Feedback,
		MaxPlanLength: input.Config.MaxPlanLength,
	})
	if err != nil {
		return PlanActionsOutput{}, err
	}
	activity.GetLogger(ctx).Info("planner proposed actions",
		"session", input.SessionID, "count", len(resp.Actions))
	return PlanActionsOutput{Actions: resp.Actions, Commentary: resp.Commentary}, nil
}

// ApplyActionsInput is the input for the ApplyActions activity.
type ApplyActionsInput struct {
	SessionID      string                 `json:"session_id"`
	Actions        []models.PlannedAction `json:"actions"`
	ToolRetryLimit int                    `json:"tool_retry_limit,omitempty"`
}

// ApplyActionsOutput is the output from the ApplyActions activity.
type ApplyActionsOutput struct {
	Applied  []models.PlannedAction `json:"applied"`
	Rejected *models.PlannedAction  `json:"rejected,omitempty"`
	Feedback []string               `json:"feedback,omitempty"`
}

// ApplyActions executes a plan against the working copy through the tool
// gateway, stopping at the first rejected action. Precondition mismatches
// and board invariant rejections produce feedback; the caller decides
// whether to discard the working copy.
func (a *SessionActivities) ApplyActions(ctx context.Context, input ApplyActionsInput) (ApplyActionsOutput, error) {
	co, err := a.Store.Get(input.SessionID)
	if err != nil {
		return ApplyActionsOutput{}, err
	}

	var out ApplyActionsOutput
	for i := range input.Actions {
		action := input.Actions[i]
		if msg, ok := a.checkPrecondition(co, action); !ok {
			action.State = models.ActionRejected
			out.Rejected = &action
			out.Feedback = append(out.Feedback,
				fmt.Sprintf("action %s on %s rejected: %s", action.Kind, action.Target, msg))
			return out, nil
		}

		inv, err := invocationFor(input.SessionID, action)
		if err != nil {
			action.State = models.ActionRejected
			out.Rejected = &action
			out.Feedback = append(out.Feedback,
				fmt.Sprintf("action %s on %s rejected: %s", action.Kind, action.Target, err))
			return out, nil
		}
		inv.RetryLimit = input.ToolRetryLimit
		result, err := a.Gateway.Invoke(ctx, inv)
		if err != nil {
			return ApplyActionsOutput{}, err
		}
		if result.Success != nil && !*result.Success {
			action.State = models.ActionRejected
			out.Rejected = &action
			out.Feedback = append(out.Feedback,
				fmt.Sprintf("action %s on %s rejected: %s", action.Kind, action.Target, result.Content))
			return out, nil
		}

		action.State = models.ActionValidated
		out.Applied = append(out.Applied, action)
	}
	return out, nil
}

// checkPrecondition compares an action's expected prior state against the
// working copy. Boards drift between planning and execution only through
// this session, so a mismatch means the plan itself was inconsistent.
func (a *SessionActivities) checkPrecondition(co *session.Checkout, action models.PlannedAction) (string, bool) {
	pre := action.Precondition
	if pre == nil {
		return "", true
	}
	co.Lock()
	defer co.Unlock()

	if pre.Position != nil {
		fp := co.Working.Footprint(action.Target)
		if fp == nil {
			return fmt.Sprintf("no footprint %q", action.Target), false
		}
		if math.Abs(fp.At.X-pre.Position.X) > positionTolerance ||
			math.Abs(fp.At.Y-pre.Position.Y) > positionTolerance {
			return fmt.Sprintf("expected %s at (%.3f, %.3f), found (%.3f, %.3f)",
				action.Target, pre.Position.X, pre.Position.Y, fp.At.X, fp.At.Y), false
		}
	}
	if pre.Width != nil || pre.Layer != "" {
		t := co.Working.Track(action.Target)
		if t == nil {
			return fmt.Sprintf("no track %q", action.Target), false
		}
		if pre.Width != nil && math.Abs(t.Width-*pre.Width) > positionTolerance {
			return fmt.Sprintf("expected track %s width %.3f, found %.3f",
				action.Target, *pre.Width, t.Width), false
		}
		if pre.Layer != "" && t.Layer != pre.Layer {
			return fmt.Sprintf("expected track %s on %s, found %s",
				action.Target, pre.Layer, t.Layer), false
		}
	}
	return "", true
}

// invocationFor maps a planned action onto its tool invocation. The
// planner's parser validates plans it produces, but actions also cross
// the activity boundary as payloads, so required fields are checked
// again here rather than trusted.
func invocationFor(sessionID string, action models.PlannedAction) (*tools.ToolInvocation, error) {
	args := map[string]any{}
	var name string
	switch action.Kind {
	case models.ActionMove:
		if action.Position == nil {
			return nil, fmt.Errorf("move action is missing a position")
		}
		name = "move_footprint"
		args["reference"] = action.Target
		args["x"] = action.Position.X
		args["y"] = action.Position.Y
		if action.Rotation != nil {
			args["rotation"] = *action.Rotation
		}
	case models.ActionRoute:
		if action.Width == nil {
			return nil, fmt.Errorf("route action is missing a width")
		}
		name = "route_track"
		args["net"] = action.Target
		path := make([]any, len(action.Path))
		for i, p := range action.Path {
			path[i] = []any{p.X, p.Y}
		}
		args["path"] = path
		args["width"] = *action.Width
		args["layer"] = action.Layer
	case models.ActionResize:
		if action.Width == nil {
			return nil, fmt.Errorf("resize action is missing a width")
		}
		name = "resize_track"
		args["track_id"] = action.Target
		args["width"] = *action.Width
	case models.ActionLayerChange:
		name = "change_layer"
		args["track_id"] = action.Target
		args["layer"] = action.Layer
	default:
		return nil, fmt.Errorf("unknown action kind %q", action.Kind)
	}
	return &tools.ToolInvocation{SessionID: sessionID, Name: name, Arguments: args}, nil
}

// EvaluateBoardInput is the input for the EvaluateBoard activity.
type EvaluateBoardInput struct {
	SessionID         string `json:"session_id"`
	SeverityThreshold string `json:"severity_threshold"`
}

// EvaluateBoardOutput is the output from the EvaluateBoard activity.
type EvaluateBoardOutput struct {
	Violations []rules.Violation `json:"violations,omitempty"`
	Blocking   bool              `json:"blocking"`
	Feedback   []string          `json:"feedback,omitempty"`
}

// EvaluateBoard runs the rule engine over the working copy and gates on
// the configured severity threshold.
func (a *SessionActivities) EvaluateBoard(ctx context.Context, input EvaluateBoardInput) (EvaluateBoardOutput, error) {
	co, err := a.Store.Get(input.SessionID)
	if err != nil {
		return EvaluateBoardOutput{}, err
	}
	threshold, err := rules.ParseSeverity(input.SeverityThreshold)
	if err != nil {
		return EvaluateBoardOutput{}, err
	}

	co.Lock()
	violations, evalErr := rules.Evaluate(co.Working, co.Constraints)
	co.Unlock()
	if evalErr != nil {
		return EvaluateBoardOutput{}, evalErr
	}

	out := EvaluateBoardOutput{Violations: violations}
	for _, v := range violations {
		if v.Severity >= threshold {
			out.Blocking = true
		}
		out.Feedback = append(out.Feedback,
			fmt.Sprintf("[%s] %s: %s", v.Severity, v.ConstraintID, v.Message))
	}
	return out, nil
}

// SessionStateInput identifies a session for the working-copy activities.
type SessionStateInput struct {
	SessionID string `json:"session_id"`
}

// DiscardWorkingCopy resets the working copy to the committed snapshot.
func (a *SessionActivities) DiscardWorkingCopy(ctx context.Context, input SessionStateInput) error {
	return a.Store.DiscardWorking(input.SessionID)
}

// CommitSessionOutput is the output from the CommitSession activity.
type CommitSessionOutput struct {
	Diff string `json:"diff"`
}

// CommitSession atomically replaces the board file with the validated
// working copy and returns a human-readable change summary.
func (a *SessionActivities) CommitSession(ctx context.Context, input SessionStateInput) (CommitSessionOutput, error) {
	co, err := a.Store.Get(input.SessionID)
	if err != nil {
		return CommitSessionOutput{}, err
	}
	co.Lock()
	diff := summarizeDiff(co.Committed, co.Working)
	co.Unlock()

	if err := a.Store.Commit(input.SessionID); err != nil {
		return CommitSessionOutput{}, err
	}
	activity.GetLogger(ctx).Info("committed board", "session", input.SessionID)
	return CommitSessionOutput{Diff: diff}, nil
}

// ReleaseBoard drops the checkout, freeing the board for other sessions.
func (a *SessionActivities) ReleaseBoard(ctx context.Context, input SessionStateInput) error {
	a.Store.Release(input.SessionID)
	return nil
}

// ArchiveSessionInput is the input for the ArchiveSession activity.
type ArchiveSessionInput struct {
	SessionID   string `json:"session_id"`
	BoardPath   string `json:"board_path"`
	Goal        string `json:"goal"`
	Outcome     string `json:"outcome"`
	Attempts    int    `json:"attempts"`
	Diff        string `json:"diff,omitempty"`
	AbortReason string `json:"abort_reason,omitempty"`
}

// ArchiveSession records the session outcome. A nil archive makes this a
// no-op so the worker runs without a database in tests.
func (a *SessionActivities) ArchiveSession(ctx context.Context, input ArchiveSessionInput) error {
	if a.Archive == nil {
		return nil
	}
	return a.Archive.Save(session.Record{
		SessionID:   input.SessionID,
		BoardPath:   input.BoardPath,
		Goal:        input.Goal,
		Outcome:     input.Outcome,
		Attempts:    input.Attempts,
		Diff:        input.Diff,
		AbortReason: input.AbortReason,
	})
}

// summarizeDiff describes how working differs from committed, one line
// per changed entity.
func summarizeDiff(committed, working *board.Board) string {
	var lines []string

	for i := range working.Footprints {
		w := &working.Footprints[i]
		c := committed.Footprint(w.Reference)
		if c == nil {
			lines = append(lines, fmt.Sprintf("added footprint %s at (%.3f, %.3f)", w.Reference, w.At.X, w.At.Y))
			continue
		}
		if c.At != w.At || c.Rotation != w.Rotation {
			lines = append(lines, fmt.Sprintf("moved %s from (%.3f, %.3f) rot %.1f to (%.3f, %.3f) rot %.1f",
				w.Reference, c.At.X, c.At.Y, c.Rotation, w.At.X, w.At.Y, w.Rotation))
		}
		for pi := range w.Pads {
			cp := padNet(c, w.Pads[pi].Number)
			if cp != w.Pads[pi].Net {
				lines = append(lines, fmt.Sprintf("reassigned %s.%s from %q to %q",
					w.Reference, w.Pads[pi].Number, cp, w.Pads[pi].Net))
			}
		}
	}

	for i := range working.Tracks {
		w := &working.Tracks[i]
		c := committed.Track(w.ID)
		if c == nil {
			lines = append(lines, fmt.Sprintf("routed track %s on %s, width %.3f, layer %s", w.ID, w.Net, w.Width, w.Layer))
			continue
		}
		if c.Width != w.Width {
			lines = append(lines, fmt.Sprintf("resized track %s from %.3f to %.3f", w.ID, c.Width, w.Width))
		}
		if c.Layer != w.Layer {
			lines = append(lines, fmt.Sprintf("moved track %s from %s to %s", w.ID, c.Layer, w.Layer))
		}
	}
	for i := range committed.Tracks {
		if working.Track(committed.Tracks[i].ID) == nil {
			lines = append(lines, fmt.Sprintf("removed track %s", committed.Tracks[i].ID))
		}
	}

	if len(lines) == 0 {
		return "no changes"
	}
	return strings.Join(lines, "\n")
}

func padNet(fp *board.Footprint, number string) string {
	for _, p := range fp.Pads {
		if p.Number == number {
			return p.Net
		}
	}
	return ""
}
