package handlers

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleaxiao/PCB-MCP/internal/rules"
	"github.com/fleaxiao/PCB-MCP/internal/session"
	"github.com/fleaxiao/PCB-MCP/internal/tools"
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

// newSession checks out a fixture board and returns a gateway over the
// full handler set.
func newSession(t *testing.T) (*session.Store, *tools.Gateway) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.kicad_pcb")
	require.NoError(t, os.WriteFile(path, []byte(fixtureBoard), 0o644))

	store := session.NewStore()
	_, err := store.Checkout("sess-1", path)
	require.NoError(t, err)

	reg := tools.NewRegistry()
	RegisterAll(reg, store)
	return store, tools.NewGateway(reg, 3)
}

func invoke(t *testing.T, g *tools.Gateway, name string, args map[string]any) *tools.ToolOutput {
	t.Helper()
	out, err := g.Invoke(context.Background(), &tools.ToolInvocation{
		SessionID: "sess-1",
		Name:      name,
		Arguments: args,
	})
	require.NoError(t, err)
	return out
}

// board_info without arguments returns the board summary.
func TestBoardInfo_Summary(t *testing.T) {
	_, g := newSession(t)
	out := invoke(t, g, "board_info", nil)
	assert.Contains(t, out.Content, "2 footprints")
	assert.Contains(t, out.Content, "board outline 60.00 x 40.00 mm")
}

// board_info with a reference returns footprint details including pads.
func TestBoardInfo_Footprint(t *testing.T) {
	_, g := newSession(t)
	out := invoke(t, g, "board_info", map[string]any{"reference": "U1"})
	assert.Contains(t, out.Content, "U1 (TPS5430)")
	assert.Contains(t, out.Content, "pad 1 -> VIN")
	assert.Equal(t, 2, out.Data["pad_count"])
}

// Unknown entities are domain failures, not transport errors.
func TestBoardInfo_UnknownReference(t *testing.T) {
	_, g := newSession(t)
	out := invoke(t, g, "board_info", map[string]any{"reference": "R99"})
	require.NotNil(t, out.Success)
	assert.False(t, *out.Success)
}

// move_footprint updates the working copy but not the committed snapshot.
func TestMoveFootprint(t *testing.T) {
	store, g := newSession(t)
	out := invoke(t, g, "move_footprint", map[string]any{"reference": "C1", "x": 30.0, "y": 15.0})
	require.NotNil(t, out.Success)
	assert.True(t, *out.Success)

	co, err := store.Get("sess-1")
	require.NoError(t, err)
	assert.Equal(t, 30.0, co.Working.Footprint("C1").At.X)
	assert.Equal(t, 40.0, co.Committed.Footprint("C1").At.X)
}

// Omitting rotation preserves the footprint's current rotation.
func TestMoveFootprint_KeepsRotation(t *testing.T) {
	store, g := newSession(t)
	co, err := store.Get("sess-1")
	require.NoError(t, err)
	require.NoError(t, co.Working.MoveFootprint("C1", co.Working.Footprint("C1").At, 90))

	invoke(t, g, "move_footprint", map[string]any{"reference": "C1", "x": 35.0, "y": 20.0})
	assert.Equal(t, 90.0, co.Working.Footprint("C1").Rotation)
}

// move_footprint rejects missing arguments without touching the board.
func TestMoveFootprint_Validation(t *testing.T) {
	_, g := newSession(t)
	_, err := g.Invoke(context.Background(), &tools.ToolInvocation{
		SessionID: "sess-1",
		Name:      "move_footprint",
		Arguments: map[string]any{"reference": "C1"},
	})
	require.Error(t, err)
	var te *tools.ToolError
	require.ErrorAs(t, err, &te)
	assert.False(t, te.Retryable)
}

// route_track adds a track and reports its id.
func TestRouteTrack(t *testing.T) {
	store, g := newSession(t)
	out := invoke(t, g, "route_track", map[string]any{
		"net":   "GND",
		"path":  []any{[]any{21.0, 20.0}, []any{30.0, 25.0}, []any{39.1, 20.0}},
		"width": 0.3,
		"layer": "B.Cu",
	})
	require.NotNil(t, out.Success)
	assert.True(t, *out.Success)
	id, _ := out.Data["track_id"].(string)
	require.NotEmpty(t, id)

	co, err := store.Get("sess-1")
	require.NoError(t, err)
	track := co.Working.Track(id)
	require.NotNil(t, track)
	assert.Len(t, track.Path, 3)
}

// Routing on a nonexistent net is a domain failure.
func TestRouteTrack_UnknownNet(t *testing.T) {
	_, g := newSession(t)
	out := invoke(t, g, "route_track", map[string]any{
		"net":   "VBAT",
		"path":  []any{[]any{0.0, 0.0}, []any{1.0, 1.0}},
		"width": 0.3,
		"layer": "F.Cu",
	})
	require.NotNil(t, out.Success)
	assert.False(t, *out.Success)
	assert.Contains(t, out.Content, "no such net")
}

// resize, change_layer, and remove operate on existing tracks by id.
func TestTrackLifecycle(t *testing.T) {
	store, g := newSession(t)

	out := invoke(t, g, "resize_track", map[string]any{"track_id": "seg-vin", "width": 0.8})
	assert.True(t, *out.Success)

	out = invoke(t, g, "change_layer", map[string]any{"track_id": "seg-vin", "layer": "B.Cu"})
	assert.True(t, *out.Success)

	co, err := store.Get("sess-1")
	require.NoError(t, err)
	track := co.Working.Track("seg-vin")
	assert.Equal(t, 0.8, track.Width)
	assert.Equal(t, "B.Cu", track.Layer)

	out = invoke(t, g, "remove_track", map[string]any{"track_id": "seg-vin"})
	assert.True(t, *out.Success)
	assert.Nil(t, co.Working.Track("seg-vin"))

	out = invoke(t, g, "remove_track", map[string]any{"track_id": "seg-vin"})
	assert.False(t, *out.Success)
}

// change_layer refuses non-copper layers.
func TestChangeLayer_NonCopper(t *testing.T) {
	_, g := newSession(t)
	out := invoke(t, g, "change_layer", map[string]any{"track_id": "seg-vin", "layer": "Edge.Cuts"})
	require.NotNil(t, out.Success)
	assert.False(t, *out.Success)
}

// fit_outline shrinks the board edge to the placed area plus the margin.
func TestFitOutline(t *testing.T) {
	store, g := newSession(t)
	out := invoke(t, g, "fit_outline", map[string]any{"margin": 1.0})
	require.NotNil(t, out.Success)
	assert.True(t, *out.Success)
	assert.Equal(t, 17.0, out.Data["min_x"])
	assert.Equal(t, 42.0, out.Data["max_x"])

	co, err := store.Get("sess-1")
	require.NoError(t, err)
	require.NotNil(t, co.Working.Outline)
	assert.Equal(t, 25.0, co.Working.Outline.Width())
	assert.Equal(t, 5.0, co.Working.Outline.Height())
	// The committed snapshot keeps the original 60 x 40 edge.
	assert.Equal(t, 60.0, co.Committed.Outline.Width())
}

// fit_outline without a margin hugs the bounding box exactly.
func TestFitOutline_DefaultMargin(t *testing.T) {
	store, g := newSession(t)
	out := invoke(t, g, "fit_outline", nil)
	require.NotNil(t, out.Success)
	assert.True(t, *out.Success)

	co, err := store.Get("sess-1")
	require.NoError(t, err)
	assert.Equal(t, 18.0, co.Working.Outline.Min.X)
	assert.Equal(t, 41.0, co.Working.Outline.Max.X)
}

// fit_outline rejects a negative margin as a domain failure.
func TestFitOutline_NegativeMargin(t *testing.T) {
	_, g := newSession(t)
	out := invoke(t, g, "fit_outline", map[string]any{"margin": -1.0})
	require.NotNil(t, out.Success)
	assert.False(t, *out.Success)
	assert.Contains(t, out.Content, "negative")
}

// reassign_net moves a pad between nets and updates net pad sets.
func TestReassignNet(t *testing.T) {
	store, g := newSession(t)
	out := invoke(t, g, "reassign_net", map[string]any{"pad": "C1.1", "net": "GND"})
	assert.True(t, *out.Success)

	co, err := store.Get("sess-1")
	require.NoError(t, err)
	gnd := co.Working.Net("GND")
	require.NotNil(t, gnd)
	assert.Len(t, gnd.Pads, 3)

	out = invoke(t, g, "reassign_net", map[string]any{"pad": "C1.1", "net": ""})
	assert.Contains(t, out.Content, "disconnected")
}

// drc_check evaluates the session's constraints against the working copy.
func TestDRCCheck(t *testing.T) {
	store, g := newSession(t)
	require.NoError(t, store.SetConstraints("sess-1", []rules.Constraint{
		{
			ID:       "clearance-default",
			Kind:     rules.KindClearance,
			Severity: rules.SeverityError,
			Params:   map[string]any{"min_mm": 0.2},
		},
	}))

	out := invoke(t, g, "drc_check", nil)
	assert.True(t, *out.Success)
	assert.Equal(t, 0, out.Data["violation_count"])

	// Drop C1 onto U1's courtyard and re-check.
	invoke(t, g, "move_footprint", map[string]any{"reference": "C1", "x": 21.0, "y": 20.0})
	out = invoke(t, g, "drc_check", nil)
	assert.Equal(t, 1, out.Data["violation_count"])
	assert.Contains(t, out.Content, "clearance-default")
}

// board_report and utilization_check render their reports.
func TestReports(t *testing.T) {
	_, g := newSession(t)

	out := invoke(t, g, "board_report", nil)
	assert.Contains(t, out.Content, "U1")
	assert.Contains(t, out.Content, "C1")

	out = invoke(t, g, "utilization_check", nil)
	assert.Contains(t, out.Content, "Footprint area")
	assert.NotNil(t, out.Data["footprint_ratio"])
}

// Invocations without a checkout fail.
func TestHandlers_NoSession(t *testing.T) {
	reg := tools.NewRegistry()
	RegisterAll(reg, session.NewStore())
	g := tools.NewGateway(reg, 1)

	_, err := g.Invoke(context.Background(), &tools.ToolInvocation{SessionID: "ghost", Name: "board_info"})
	assert.Error(t, err)
}
