package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/fleaxiao/PCB-MCP/internal/board"
	"github.com/fleaxiao/PCB-MCP/internal/session"
	"github.com/fleaxiao/PCB-MCP/internal/tools"
)

// BoardInfoHandler answers targeted queries about the working copy: a
// whole-board summary, one footprint, one net, or one track.
type BoardInfoHandler struct {
	store *session.Store
}

func (h *BoardInfoHandler) Spec() tools.ToolSpec {
	return tools.ToolSpec{
		Name:        "board_info",
		Description: "Inspect the board: pass reference, net, or track_id for details, or nothing for a summary.",
		Parameters: []tools.ToolParameter{
			{Name: "reference", Type: "string", Description: "Footprint reference designator, e.g. U1"},
			{Name: "net", Type: "string", Description: "Net name, e.g. GND"},
			{Name: "track_id", Type: "string", Description: "Track id"},
		},
	}
}

func (h *BoardInfoHandler) IsMutating() bool { return false }

func (h *BoardInfoHandler) Handle(ctx context.Context, inv *tools.ToolInvocation) (*tools.ToolOutput, error) {
	co, terr := checkout(h.store, inv)
	if terr != nil {
		return nil, terr
	}
	co.Lock()
	defer co.Unlock()
	b := co.Working

	if v, ok := inv.Arguments["reference"]; ok {
		ref, _ := v.(string)
		fp := b.Footprint(ref)
		if fp == nil {
			return failure(fmt.Sprintf("no footprint %q on the board", ref)), nil
		}
		return success(describeFootprint(fp), map[string]any{
			"reference": fp.Reference,
			"x":         fp.At.X,
			"y":         fp.At.Y,
			"rotation":  fp.Rotation,
			"layer":     fp.Layer,
			"pad_count": len(fp.Pads),
		}), nil
	}
	if v, ok := inv.Arguments["net"]; ok {
		name, _ := v.(string)
		net := b.Net(name)
		if net == nil {
			return failure(fmt.Sprintf("no net %q on the board", name)), nil
		}
		return success(describeNet(b, net), map[string]any{
			"name":      net.Name,
			"code":      net.Code,
			"pad_count": len(net.Pads),
		}), nil
	}
	if v, ok := inv.Arguments["track_id"]; ok {
		id, _ := v.(string)
		t := b.Track(id)
		if t == nil {
			return failure(fmt.Sprintf("no track %q on the board", id)), nil
		}
		return success(describeTrack(t), map[string]any{
			"id":    t.ID,
			"net":   t.Net,
			"width": t.Width,
			"layer": t.Layer,
		}), nil
	}
	return success(b.Summary(), nil), nil
}

func describeFootprint(fp *board.Footprint) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s) at (%.3f, %.3f) rotation %.1f on %s",
		fp.Reference, fp.Value, fp.At.X, fp.At.Y, fp.Rotation, fp.Layer)
	box := fp.CourtyardBox()
	fmt.Fprintf(&sb, "; courtyard %.2f x %.2f mm", box.Width(), box.Height())
	for _, pad := range fp.Pads {
		net := pad.Net
		if net == "" {
			net = "(unconnected)"
		}
		pos := fp.PadPosition(pad)
		fmt.Fprintf(&sb, "\n  pad %s -> %s at (%.3f, %.3f)", pad.Number, net, pos.X, pos.Y)
	}
	return sb.String()
}

func describeNet(b *board.Board, net *board.Net) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "net %s (code %d), %d pads", net.Name, net.Code, len(net.Pads))
	for _, pr := range net.Pads {
		fmt.Fprintf(&sb, "\n  %s", pr)
	}
	tracks := 0
	for i := range b.Tracks {
		if b.Tracks[i].Net == net.Name {
			tracks++
		}
	}
	fmt.Fprintf(&sb, "\n%d tracks routed on this net", tracks)
	return sb.String()
}

func describeTrack(t *board.Track) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "track %s on net %s, width %.3f mm, layer %s, path", t.ID, t.Net, t.Width, t.Layer)
	for _, p := range t.Path {
		fmt.Fprintf(&sb, " (%.3f, %.3f)", p.X, p.Y)
	}
	return sb.String()
}

// BoardReportHandler renders the full layout report.
type BoardReportHandler struct {
	store *session.Store
}

func (h *BoardReportHandler) Spec() tools.ToolSpec {
	return tools.ToolSpec{
		Name:        "board_report",
		Description: "Produce a full report of modules, nets, and tracks on the board.",
	}
}

func (h *BoardReportHandler) IsMutating() bool { return false }

func (h *BoardReportHandler) Handle(ctx context.Context, inv *tools.ToolInvocation) (*tools.ToolOutput, error) {
	co, terr := checkout(h.store, inv)
	if terr != nil {
		return nil, terr
	}
	co.Lock()
	defer co.Unlock()
	return success(board.Report(co.Working), nil), nil
}

// UtilizationHandler reports placement density ratios.
type UtilizationHandler struct {
	store *session.Store
}

func (h *UtilizationHandler) Spec() tools.ToolSpec {
	return tools.ToolSpec{
		Name:        "utilization_check",
		Description: "Check footprint and board area utilization ratios.",
	}
}

func (h *UtilizationHandler) IsMutating() bool { return false }

func (h *UtilizationHandler) Handle(ctx context.Context, inv *tools.ToolInvocation) (*tools.ToolOutput, error) {
	co, terr := checkout(h.store, inv)
	if terr != nil {
		return nil, terr
	}
	co.Lock()
	defer co.Unlock()
	u := board.ComputeUtilization(co.Working)
	return success(u.String(), map[string]any{
		"footprint_ratio": u.FootprintRatio,
		"effective_ratio": u.EffectiveRatio,
		"board_area":      u.BoardArea,
	}), nil
}
