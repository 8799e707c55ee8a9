// Package handlers contains the built-in board tool handlers. Every
// handler resolves the invoking session's checkout, takes the checkout
// lock, and operates on the working copy only; committed state is never
// touched here.
package handlers

import (
	"github.com/fleaxiao/PCB-MCP/internal/board"
	"github.com/fleaxiao/PCB-MCP/internal/session"
	"github.com/fleaxiao/PCB-MCP/internal/tools"
)

// RegisterAll wires every board handler into the registry.
func RegisterAll(reg *tools.Registry, store *session.Store) {
	reg.Register(&BoardInfoHandler{store: store})
	reg.Register(&BoardReportHandler{store: store})
	reg.Register(&UtilizationHandler{store: store})
	reg.Register(&DRCHandler{store: store})
	reg.Register(&MoveFootprintHandler{store: store})
	reg.Register(&RouteTrackHandler{store: store})
	reg.Register(&ResizeTrackHandler{store: store})
	reg.Register(&ChangeLayerHandler{store: store})
	reg.Register(&RemoveTrackHandler{store: store})
	reg.Register(&FitOutlineHandler{store: store})
	reg.Register(&ReassignNetHandler{store: store})
}

func checkout(store *session.Store, inv *tools.ToolInvocation) (*session.Checkout, *tools.ToolError) {
	if inv.SessionID == "" {
		return nil, tools.NewValidationError(inv.Name, "invocation has no session id")
	}
	co, err := store.Get(inv.SessionID)
	if err != nil {
		return nil, &tools.ToolError{Tool: inv.Name, Err: err}
	}
	return co, nil
}

func boolPtr(b bool) *bool { return &b }

// failure wraps a board-level rejection as a domain failure the planner
// sees, rather than a transport error.
func failure(msg string) *tools.ToolOutput {
	return &tools.ToolOutput{Content: msg, Success: boolPtr(false)}
}

func success(msg string, data map[string]any) *tools.ToolOutput {
	return &tools.ToolOutput{Content: msg, Success: boolPtr(true), Data: data}
}

// parsePath decodes a route path argument: an array of [x, y] pairs.
func parsePath(inv *tools.ToolInvocation, key string) ([]board.Point, *tools.ToolError) {
	v, ok := inv.Arguments[key]
	if !ok {
		return nil, tools.NewValidationError(inv.Name, "missing required argument: "+key)
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, tools.NewValidationError(inv.Name, key+" must be an array of [x, y] pairs")
	}
	pts := make([]board.Point, 0, len(arr))
	for _, el := range arr {
		pair, ok := el.([]any)
		if !ok || len(pair) != 2 {
			return nil, tools.NewValidationError(inv.Name, key+" entries must be [x, y] pairs")
		}
		x, okX := toFloat(pair[0])
		y, okY := toFloat(pair[1])
		if !okX || !okY {
			return nil, tools.NewValidationError(inv.Name, key+" coordinates must be numbers")
		}
		pts = append(pts, board.Point{X: x, Y: y})
	}
	return pts, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
