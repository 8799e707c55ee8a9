package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/fleaxiao/PCB-MCP/internal/board"
	"github.com/fleaxiao/PCB-MCP/internal/session"
	"github.com/fleaxiao/PCB-MCP/internal/tools"
)

// mutationResult turns a board mutation error into a domain failure; board
// invariant rejections are planner feedback, not transport faults.
func mutationResult(err error, okMsg string, data map[string]any) (*tools.ToolOutput, error) {
	if err != nil {
		var ie *board.InvariantError
		if errors.As(err, &ie) {
			return failure(ie.Error()), nil
		}
		return nil, err
	}
	return success(okMsg, data), nil
}

// MoveFootprintHandler repositions a footprint.
type MoveFootprintHandler struct {
	store *session.Store
}

func (h *MoveFootprintHandler) Spec() tools.ToolSpec {
	return tools.ToolSpec{
		Name:        "move_footprint",
		Description: "Move a footprint to a new position, optionally rotating it.",
		Parameters: []tools.ToolParameter{
			{Name: "reference", Type: "string", Description: "Footprint reference designator", Required: true},
			{Name: "x", Type: "number", Description: "Target x in mm", Required: true},
			{Name: "y", Type: "number", Description: "Target y in mm", Required: true},
			{Name: "rotation", Type: "number", Description: "Rotation in degrees, defaults to current"},
		},
	}
}

func (h *MoveFootprintHandler) IsMutating() bool { return true }

func (h *MoveFootprintHandler) Handle(ctx context.Context, inv *tools.ToolInvocation) (*tools.ToolOutput, error) {
	ref, terr := tools.StringArg(inv, "reference")
	if terr != nil {
		return nil, terr
	}
	x, terr := tools.FloatArg(inv, "x")
	if terr != nil {
		return nil, terr
	}
	y, terr := tools.FloatArg(inv, "y")
	if terr != nil {
		return nil, terr
	}
	rot, terr := tools.OptionalFloatArg(inv, "rotation")
	if terr != nil {
		return nil, terr
	}

	co, terr := checkout(h.store, inv)
	if terr != nil {
		return nil, terr
	}
	co.Lock()
	defer co.Unlock()

	rotation := 0.0
	if fp := co.Working.Footprint(ref); fp != nil {
		rotation = fp.Rotation
	}
	if rot != nil {
		rotation = *rot
	}

	err := co.Working.MoveFootprint(ref, board.Point{X: x, Y: y}, rotation)
	return mutationResult(err,
		fmt.Sprintf("moved %s to (%.3f, %.3f) rotation %.1f", ref, x, y, rotation),
		map[string]any{"reference": ref, "x": x, "y": y, "rotation": rotation})
}

// RouteTrackHandler adds a new track on a net.
type RouteTrackHandler struct {
	store *session.Store
}

func (h *RouteTrackHandler) Spec() tools.ToolSpec {
	return tools.ToolSpec{
		Name:        "route_track",
		Description: "Route a new track on a net along a path of [x, y] points.",
		Parameters: []tools.ToolParameter{
			{Name: "net", Type: "string", Description: "Net name", Required: true},
			{Name: "path", Type: "array", Description: "Array of [x, y] points, at least two", Required: true},
			{Name: "width", Type: "number", Description: "Track width in mm", Required: true},
			{Name: "layer", Type: "string", Description: "Copper layer name", Required: true},
		},
	}
}

func (h *RouteTrackHandler) IsMutating() bool { return true }

func (h *RouteTrackHandler) Handle(ctx context.Context, inv *tools.ToolInvocation) (*tools.ToolOutput, error) {
	net, terr := tools.StringArg(inv, "net")
	if terr != nil {
		return nil, terr
	}
	path, terr := parsePath(inv, "path")
	if terr != nil {
		return nil, terr
	}
	width, terr := tools.FloatArg(inv, "width")
	if terr != nil {
		return nil, terr
	}
	layer, terr := tools.StringArg(inv, "layer")
	if terr != nil {
		return nil, terr
	}

	co, terr := checkout(h.store, inv)
	if terr != nil {
		return nil, terr
	}
	co.Lock()
	defer co.Unlock()

	id, err := co.Working.AddTrack(net, path, width, layer)
	return mutationResult(err,
		fmt.Sprintf("routed track %s on net %s, width %.3f mm, layer %s", id, net, width, layer),
		map[string]any{"track_id": id, "net": net})
}

// ResizeTrackHandler changes a track's width.
type ResizeTrackHandler struct {
	store *session.Store
}

func (h *ResizeTrackHandler) Spec() tools.ToolSpec {
	return tools.ToolSpec{
		Name:        "resize_track",
		Description: "Change the width of an existing track.",
		Parameters: []tools.ToolParameter{
			{Name: "track_id", Type: "string", Description: "Track id", Required: true},
			{Name: "width", Type: "number", Description: "New width in mm", Required: true},
		},
	}
}

func (h *ResizeTrackHandler) IsMutating() bool { return true }

func (h *ResizeTrackHandler) Handle(ctx context.Context, inv *tools.ToolInvocation) (*tools.ToolOutput, error) {
	id, terr := tools.StringArg(inv, "track_id")
	if terr != nil {
		return nil, terr
	}
	width, terr := tools.FloatArg(inv, "width")
	if terr != nil {
		return nil, terr
	}

	co, terr := checkout(h.store, inv)
	if terr != nil {
		return nil, terr
	}
	co.Lock()
	defer co.Unlock()

	err := co.Working.ResizeTrack(id, width)
	return mutationResult(err,
		fmt.Sprintf("resized track %s to %.3f mm", id, width),
		map[string]any{"track_id": id, "width": width})
}

// ChangeLayerHandler moves a track to another copper layer.
type ChangeLayerHandler struct {
	store *session.Store
}

func (h *ChangeLayerHandler) Spec() tools.ToolSpec {
	return tools.ToolSpec{
		Name:        "change_layer",
		Description: "Move an existing track to a different copper layer.",
		Parameters: []tools.ToolParameter{
			{Name: "track_id", Type: "string", Description: "Track id", Required: true},
			{Name: "layer", Type: "string", Description: "Target copper layer", Required: true},
		},
	}
}

func (h *ChangeLayerHandler) IsMutating() bool { return true }

func (h *ChangeLayerHandler) Handle(ctx context.Context, inv *tools.ToolInvocation) (*tools.ToolOutput, error) {
	id, terr := tools.StringArg(inv, "track_id")
	if terr != nil {
		return nil, terr
	}
	layer, terr := tools.StringArg(inv, "layer")
	if terr != nil {
		return nil, terr
	}

	co, terr := checkout(h.store, inv)
	if terr != nil {
		return nil, terr
	}
	co.Lock()
	defer co.Unlock()

	err := co.Working.ChangeTrackLayer(id, layer)
	return mutationResult(err,
		fmt.Sprintf("moved track %s to layer %s", id, layer),
		map[string]any{"track_id": id, "layer": layer})
}

// RemoveTrackHandler deletes a track.
type RemoveTrackHandler struct {
	store *session.Store
}

func (h *RemoveTrackHandler) Spec() tools.ToolSpec {
	return tools.ToolSpec{
		Name:        "remove_track",
		Description: "Delete a track from the board.",
		Parameters: []tools.ToolParameter{
			{Name: "track_id", Type: "string", Description: "Track id", Required: true},
		},
	}
}

func (h *RemoveTrackHandler) IsMutating() bool { return true }

func (h *RemoveTrackHandler) Handle(ctx context.Context, inv *tools.ToolInvocation) (*tools.ToolOutput, error) {
	id, terr := tools.StringArg(inv, "track_id")
	if terr != nil {
		return nil, terr
	}

	co, terr := checkout(h.store, inv)
	if terr != nil {
		return nil, terr
	}
	co.Lock()
	defer co.Unlock()

	err := co.Working.RemoveTrack(id)
	return mutationResult(err,
		fmt.Sprintf("removed track %s", id),
		map[string]any{"track_id": id})
}

// FitOutlineHandler shrinks or grows the board outline to the placed area.
type FitOutlineHandler struct {
	store *session.Store
}

func (h *FitOutlineHandler) Spec() tools.ToolSpec {
	return tools.ToolSpec{
		Name:        "fit_outline",
		Description: "Fit the board outline to the bounding box of the placed footprints and tracks.",
		Parameters: []tools.ToolParameter{
			{Name: "margin", Type: "number", Description: "Uniform margin in mm around the placed area, defaults to 0"},
		},
	}
}

func (h *FitOutlineHandler) IsMutating() bool { return true }

func (h *FitOutlineHandler) Handle(ctx context.Context, inv *tools.ToolInvocation) (*tools.ToolOutput, error) {
	margin := 0.0
	if m, terr := tools.OptionalFloatArg(inv, "margin"); terr != nil {
		return nil, terr
	} else if m != nil {
		margin = *m
	}

	co, terr := checkout(h.store, inv)
	if terr != nil {
		return nil, terr
	}
	co.Lock()
	defer co.Unlock()

	box, err := co.Working.FitOutline(margin)
	return mutationResult(err,
		fmt.Sprintf("fit outline to %.2f x %.2f mm", box.Width(), box.Height()),
		map[string]any{
			"min_x": box.Min.X, "min_y": box.Min.Y,
			"max_x": box.Max.X, "max_y": box.Max.Y,
		})
}

// ReassignNetHandler connects a pad to a different net.
type ReassignNetHandler struct {
	store *session.Store
}

func (h *ReassignNetHandler) Spec() tools.ToolSpec {
	return tools.ToolSpec{
		Name:        "reassign_net",
		Description: "Connect a pad (REF.PAD) to another net, or disconnect it with an empty net.",
		Parameters: []tools.ToolParameter{
			{Name: "pad", Type: "string", Description: "Pad reference, e.g. U1.3", Required: true},
			{Name: "net", Type: "string", Description: "Target net name, empty to disconnect"},
		},
	}
}

func (h *ReassignNetHandler) IsMutating() bool { return true }

func (h *ReassignNetHandler) Handle(ctx context.Context, inv *tools.ToolInvocation) (*tools.ToolOutput, error) {
	padArg, terr := tools.StringArg(inv, "pad")
	if terr != nil {
		return nil, terr
	}
	pad, err := board.ParsePadRef(padArg)
	if err != nil {
		return nil, tools.NewValidationError(inv.Name, err.Error())
	}
	net := ""
	if v, ok := inv.Arguments["net"]; ok {
		net, _ = v.(string)
	}

	co, terr := checkout(h.store, inv)
	if terr != nil {
		return nil, terr
	}
	co.Lock()
	defer co.Unlock()

	err = co.Working.ReassignNet(pad, net)
	msg := fmt.Sprintf("connected %s to net %s", pad, net)
	if net == "" {
		msg = fmt.Sprintf("disconnected %s", pad)
	}
	return mutationResult(err, msg, map[string]any{"pad": pad.String(), "net": net})
}
