// Package models contains the serializable types shared by the workflow,
// activities, tool handlers and CLI: planned actions, session configuration
// and session results. Everything here crosses an activity boundary and so
// must round-trip through JSON.
package models

// ActionKind is the closed set of layout edits the planner may propose.
type ActionKind string

const (
	ActionMove        ActionKind = "move"         // reposition a footprint
	ActionRoute       ActionKind = "route"        // add a track on a net
	ActionResize      ActionKind = "resize"       // change a track's width
	ActionLayerChange ActionKind = "layer-change" // move a track to another layer
)

// KnownActionKinds reports whether k is a plannable action kind.
func KnownActionKind(k ActionKind) bool {
	switch k {
	case ActionMove, ActionRoute, ActionResize, ActionLayerChange:
		return true
	}
	return false
}

// ActionState is the lifecycle of a planned action. Proposed actions are
// validated against the working copy; terminal states are immutable.
type ActionState string

const (
	ActionProposed  ActionState = "proposed"
	ActionValidated ActionState = "validated"
	ActionCommitted ActionState = "committed"
	ActionRejected  ActionState = "rejected"
)

// XY is a board coordinate in millimetres.
type XY struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Precondition is the state an action expects to find before applying.
// A mismatch rejects the action without touching the working copy, which
// keeps re-planned actions from silently compounding on stale state.
type Precondition struct {
	Position *XY      `json:"position,omitempty"` // expected footprint position
	Width    *float64 `json:"width,omitempty"`    // expected track width
	Layer    string   `json:"layer,omitempty"`    // expected current layer
}

// PlannedAction is one step of an agent plan, a tagged variant per kind.
// Target is the entity id the action operates on: a footprint reference for
// move, a net name for route, a track id for resize and layer-change.
type PlannedAction struct {
	ID     string      `json:"id"`
	Kind   ActionKind  `json:"kind"`
	Target string      `json:"target"`
	State  ActionState `json:"state"`

	// move
	Position *XY      `json:"position,omitempty"`
	Rotation *float64 `json:"rotation,omitempty"`

	// route
	Path  []XY     `json:"path,omitempty"`
	Width *float64 `json:"width,omitempty"` // also resize
	Layer string   `json:"layer,omitempty"` // also layer-change

	Precondition *Precondition `json:"precondition,omitempty"`
	Reason       string        `json:"reason,omitempty"` // planner's stated intent
}
