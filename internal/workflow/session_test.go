package workflow

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/fleaxiao/PCB-MCP/internal/activities"
	"github.com/fleaxiao/PCB-MCP/internal/board"
	"github.com/fleaxiao/PCB-MCP/internal/llm"
	"github.com/fleaxiao/PCB-MCP/internal/models"
	"github.com/fleaxiao/PCB-MCP/internal/session"
	"github.com/fleaxiao/PCB-MCP/internal/tools"
	"github.com/fleaxiao/PCB-MCP/internal/tools/handlers"
)

const fixtureBoard = `(kicad_pcb
  (version 20240108)
  (generator "pcbnew")
  (layers
    (0 "F.Cu" signal)
    (31 "B.Cu" signal)
  )
  (net 0 "")
  (net 1 "GND")
  (net 2 "VIN")
  (footprint "Package_TO_SOT_SMD:SOT-23"
    (layer "F.Cu")
    (at 20 20)
    (property "Reference" "U1")
    (property "Value" "TPS5430")
    (fp_rect (start -2 -1.5) (end 2 1.5) (layer "F.CrtYd"))
    (pad "1" smd rect (at -1 0) (size 0.8 0.8) (net 2 "VIN"))
    (pad "2" smd rect (at 1 0) (size 0.8 0.8) (net 1 "GND"))
  )
  (footprint "Capacitor_SMD:C_0805"
    (layer "F.Cu")
    (at 40 20)
    (property "Reference" "C1")
    (property "Value" "10uF")
    (fp_rect (start -1 -0.75) (end 1 0.75) (layer "F.CrtYd"))
    (pad "1" smd rect (at -0.9 0) (size 0.7 0.7) (net 2 "VIN"))
    (pad "2" smd rect (at 0.9 0) (size 0.7 0.7) (net 1 "GND"))
  )
  (segment (start 20 20) (end 40 20) (width 0.5) (layer "F.Cu") (net 2) (uuid "seg-vin"))
  (gr_rect (start 0 0) (end 60 40) (layer "Edge.Cuts"))
)
`

const constraintsYAML = `constraints:
  - id: clearance-default
    kind: clearance
    severity: error
    params:
      min_mm: 0.2
`

// scriptedPlanner returns a different plan per attempt.
type scriptedPlanner struct {
	plans []llm.PlanResponse
	calls int
}

func (p *scriptedPlanner) Plan(ctx context.Context, req llm.PlanRequest) (llm.PlanResponse, error) {
	i := p.calls
	if i >= len(p.plans) {
		i = len(p.plans) - 1
	}
	p.calls++
	return p.plans[i], nil
}

func movePlan(target string, x, y float64) llm.PlanResponse {
	return llm.PlanResponse{Actions: []models.PlannedAction{{
		ID: "a-" + target, Kind: models.ActionMove, Target: target,
		State: models.ActionProposed, Position: &models.XY{X: x, Y: y},
	}}}
}

type workflowFixture struct {
	env       *testsuite.TestWorkflowEnvironment
	store     *session.Store
	boardPath string
	rulesPath string
}

func newWorkflowFixture(t *testing.T, planner llm.Client) *workflowFixture {
	t.Helper()
	dir := t.TempDir()
	boardPath := filepath.Join(dir, "test.kicad_pcb")
	require.NoError(t, os.WriteFile(boardPath, []byte(fixtureBoard), 0o644))
	rulesPath := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(rulesPath, []byte(constraintsYAML), 0o644))

	store := session.NewStore()
	reg := tools.NewRegistry()
	handlers.RegisterAll(reg, store)
	acts := activities.NewSessionActivities(store, planner, tools.NewGateway(reg, 3), nil)

	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DesignSession)
	env.RegisterActivity(acts)

	return &workflowFixture{env: env, store: store, boardPath: boardPath, rulesPath: rulesPath}
}

func (f *workflowFixture) run(t *testing.T, input models.SessionInput) models.SessionResult {
	t.Helper()
	f.env.ExecuteWorkflow(DesignSession, input)
	require.True(t, f.env.IsWorkflowCompleted())
	require.NoError(t, f.env.GetWorkflowError())
	var result models.SessionResult
	require.NoError(t, f.env.GetWorkflowResult(&result))
	return result
}

// A clean plan commits on the first attempt and the file reflects it.
func TestDesignSession_CommitFirstAttempt(t *testing.T) {
	planner := &scriptedPlanner{plans: []llm.PlanResponse{movePlan("C1", 30, 15)}}
	f := newWorkflowFixture(t, planner)

	result := f.run(t, models.SessionInput{
		BoardPath:       f.boardPath,
		Goal:            "tighten the layout",
		ConstraintsPath: f.rulesPath,
	})

	assert.Equal(t, models.OutcomeCommitted, result.Outcome)
	assert.Equal(t, 1, result.Attempts)
	require.NotEmpty(t, result.Diff)
	assert.Contains(t, result.Diff[0], "moved C1")

	reloaded, err := board.Load(f.boardPath)
	require.NoError(t, err)
	assert.Equal(t, 30.0, reloaded.Footprint("C1").At.X)
}

// A violating first plan is rejected with feedback and the second attempt
// commits; the file only ever shows the validated state.
func TestDesignSession_RejectThenCommit(t *testing.T) {
	planner := &scriptedPlanner{plans: []llm.PlanResponse{
		movePlan("C1", 21, 20), // lands on U1's courtyard
		movePlan("C1", 30, 15),
	}}
	f := newWorkflowFixture(t, planner)

	result := f.run(t, models.SessionInput{
		BoardPath:       f.boardPath,
		Goal:            "tighten the layout",
		ConstraintsPath: f.rulesPath,
	})

	assert.Equal(t, models.OutcomeCommitted, result.Outcome)
	assert.Equal(t, 2, result.Attempts)
	assert.Equal(t, 2, planner.calls)

	reloaded, err := board.Load(f.boardPath)
	require.NoError(t, err)
	assert.Equal(t, 30.0, reloaded.Footprint("C1").At.X)
}

// A plan that never validates exhausts the attempt budget, aborts, and
// leaves the committed file byte-identical in meaning.
func TestDesignSession_AbortExhaustsBudget(t *testing.T) {
	planner := &scriptedPlanner{plans: []llm.PlanResponse{movePlan("C1", 21, 20)}}
	f := newWorkflowFixture(t, planner)

	result := f.run(t, models.SessionInput{
		BoardPath:       f.boardPath,
		Goal:            "tighten the layout",
		ConstraintsPath: f.rulesPath,
		Config:          models.SessionConfig{MaxAttempts: 2},
	})

	assert.Equal(t, models.OutcomeAborted, result.Outcome)
	assert.Equal(t, 2, result.Attempts)
	assert.Contains(t, result.AbortReason, "attempt budget exhausted")
	require.NotEmpty(t, result.Violations)
	assert.Equal(t, "clearance-default", result.Violations[0].ConstraintID)
	assert.ElementsMatch(t, []string{"C1", "U1"}, result.Violations[0].Entities)

	reloaded, err := board.Load(f.boardPath)
	require.NoError(t, err)
	assert.Equal(t, 40.0, reloaded.Footprint("C1").At.X, "aborted session must not touch the file")
}

// An action on a nonexistent entity is rejected during execution and fed
// back to the next planning attempt.
func TestDesignSession_ExecutionRejectionFeedback(t *testing.T) {
	planner := &scriptedPlanner{plans: []llm.PlanResponse{
		movePlan("R99", 10, 10),
		movePlan("C1", 30, 15),
	}}
	f := newWorkflowFixture(t, planner)

	result := f.run(t, models.SessionInput{
		BoardPath:       f.boardPath,
		Goal:            "tidy up",
		ConstraintsPath: f.rulesPath,
	})

	assert.Equal(t, models.OutcomeCommitted, result.Outcome)
	assert.Equal(t, 2, result.Attempts)
}

// A missing board file aborts the session before any attempt runs.
func TestDesignSession_CheckoutFailure(t *testing.T) {
	f := newWorkflowFixture(t, &scriptedPlanner{plans: []llm.PlanResponse{movePlan("C1", 30, 15)}})

	result := f.run(t, models.SessionInput{
		BoardPath: filepath.Join(t.TempDir(), "missing.kicad_pcb"),
		Goal:      "anything",
	})

	assert.Equal(t, models.OutcomeAborted, result.Outcome)
	assert.Contains(t, result.AbortReason, "checkout failed")
	assert.Zero(t, result.Attempts)
}

// The checkout is released after the session ends, so the board is free
// for the next session.
func TestDesignSession_ReleasesCheckout(t *testing.T) {
	planner := &scriptedPlanner{plans: []llm.PlanResponse{movePlan("C1", 30, 15)}}
	f := newWorkflowFixture(t, planner)

	_ = f.run(t, models.SessionInput{
		BoardPath:       f.boardPath,
		Goal:            "tighten the layout",
		ConstraintsPath: f.rulesPath,
	})

	_, err := f.store.Checkout("next-session", f.boardPath)
	assert.NoError(t, err, "board should be released after the workflow completes")
}
