package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleaxiao/PCB-MCP/internal/models"
)

const validPlanJSON = `{
	"commentary": "Move C1 away from U1 and reroute VIN.",
	"actions": [
		{"kind": "move", "target": "C1", "position": {"x": 30, "y": 15}, "rotation": 90, "reason": "clearance"},
		{"kind": "route", "target": "VIN", "path": [{"x": 20, "y": 20}, {"x": 30, "y": 15}], "width": 0.5, "layer": "F.Cu"},
		{"kind": "resize", "target": "seg-1", "width": 0.8},
		{"kind": "layer-change", "target": "seg-1", "layer": "B.Cu"}
	]
}`

// A valid plan parses into proposed actions with fresh ids.
func TestParsePlan_Valid(t *testing.T) {
	resp, err := ParsePlan(validPlanJSON, 16)
	require.NoError(t, err)
	require.Len(t, resp.Actions, 4)
	assert.Equal(t, "Move C1 away from U1 and reroute VIN.", resp.Commentary)

	move := resp.Actions[0]
	assert.Equal(t, models.ActionMove, move.Kind)
	assert.Equal(t, models.ActionProposed, move.State)
	assert.NotEmpty(t, move.ID)
	require.NotNil(t, move.Position)
	assert.Equal(t, 30.0, move.Position.X)
	require.NotNil(t, move.Rotation)
	assert.Equal(t, 90.0, *move.Rotation)

	route := resp.Actions[1]
	assert.Equal(t, models.ActionRoute, route.Kind)
	assert.Len(t, route.Path, 2)

	ids := map[string]bool{}
	for _, a := range resp.Actions {
		assert.False(t, ids[a.ID], "action ids must be unique")
		ids[a.ID] = true
	}
}

// Markdown fences around the JSON are stripped before decoding.
func TestParsePlan_StripsFences(t *testing.T) {
	fenced := "```json\n" + validPlanJSON + "\n```"
	resp, err := ParsePlan(fenced, 16)
	require.NoError(t, err)
	assert.Len(t, resp.Actions, 4)
}

// Plans longer than the limit are rejected outright.
func TestParsePlan_TooLong(t *testing.T) {
	_, err := ParsePlan(validPlanJSON, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit is 2")
}

// Unknown kinds and missing per-kind fields are rejected.
func TestParsePlan_InvalidActions(t *testing.T) {
	cases := []struct {
		name string
		json string
		want string
	}{
		{"unknown kind", `{"actions":[{"kind":"teleport","target":"C1"}]}`, "unknown action kind"},
		{"missing target", `{"actions":[{"kind":"move","position":{"x":1,"y":2}}]}`, "no target"},
		{"move without position", `{"actions":[{"kind":"move","target":"C1"}]}`, "no position"},
		{"route with one point", `{"actions":[{"kind":"route","target":"VIN","path":[{"x":1,"y":2}],"width":0.5,"layer":"F.Cu"}]}`, "at least two points"},
		{"route without layer", `{"actions":[{"kind":"route","target":"VIN","path":[{"x":1,"y":2},{"x":3,"y":4}],"width":0.5}]}`, "needs a layer"},
		{"resize with zero width", `{"actions":[{"kind":"resize","target":"seg-1","width":0}]}`, "positive width"},
		{"layer-change without layer", `{"actions":[{"kind":"layer-change","target":"seg-1"}]}`, "needs a layer"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParsePlan(tc.json, 16)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

// Empty output, prose, and empty plans all fail with clear errors.
func TestParsePlan_Degenerate(t *testing.T) {
	_, err := ParsePlan("", 16)
	assert.ErrorContains(t, err, "empty output")

	_, err = ParsePlan("I cannot help with that.", 16)
	assert.ErrorContains(t, err, "not valid JSON")

	_, err = ParsePlan(`{"commentary":"nothing to do","actions":[]}`, 16)
	assert.ErrorContains(t, err, "no actions")
}

// The user prompt carries goal, rules, and feedback sections.
func TestBuildUserPrompt(t *testing.T) {
	prompt := buildUserPrompt(PlanRequest{
		Goal:          "move C1 off the edge",
		BoardSummary:  "3 footprints, 4 nets",
		Constraints:   []string{"clearance-default: clearance >= 0.2mm"},
		Feedback:      []string{"[error] clearance-default: courtyards overlap"},
		MaxPlanLength: 8,
	})
	assert.Contains(t, prompt, "Goal: move C1 off the edge")
	assert.Contains(t, prompt, "clearance-default")
	assert.Contains(t, prompt, "previous plan was rejected")
	assert.Contains(t, prompt, "at most 8 actions")
	assert.True(t, strings.HasSuffix(prompt, "Propose at most 8 actions."))
}
