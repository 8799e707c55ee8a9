package board

import (
	"fmt"
	"sort"
	"strings"
)

const reportRule = "============================================================\n"

// Report renders a human-readable summary of the board, its modules, nets
// and tracks. Sections are sorted (modules by reference, nets by code) so
// re-runs on an unchanged board produce identical text.
func Report(b *Board) string {
	var sb strings.Builder

	sb.WriteString(reportRule)
	sb.WriteString("Board Information:\n")
	if b.Outline != nil {
		fmt.Fprintf(&sb, "Board Outline - Size: %.2f mm x %.2f mm\n", b.Outline.Width(), b.Outline.Height())
	} else {
		sb.WriteString("Board Outline - not defined\n")
	}
	box := b.BoundingBox()
	c := box.Center()
	fmt.Fprintf(&sb, "Bounding Box - Center: (%.2f mm, %.2f mm), Size: %.2f mm x %.2f mm\n",
		c.X, c.Y, box.Width(), box.Height())
	fmt.Fprintf(&sb, "Module - Number: %d\nNet - Number: %d\nTrack - Number: %d\n",
		len(b.Footprints), len(b.Nets), len(b.Tracks))

	sb.WriteString(reportRule)
	sb.WriteString("Module Information:\n")
	fps := make([]*Footprint, len(b.Footprints))
	for i := range b.Footprints {
		fps[i] = &b.Footprints[i]
	}
	sort.Slice(fps, func(i, j int) bool { return fps[i].Reference < fps[j].Reference })
	for _, fp := range fps {
		box := fp.CourtyardBox()
		var pads []string
		for _, pad := range fp.Pads {
			if pad.Net != "" {
				pads = append(pads, fmt.Sprintf("%s(%s)", pad.Number, pad.Net))
			}
		}
		padInfo := "No connected pads"
		if len(pads) > 0 {
			padInfo = strings.Join(pads, ", ")
		}
		fmt.Fprintf(&sb, "Module - Ref: %s, Footprint: %s, Size: %.2f mm x %.2f mm, Position: (%.2f mm, %.2f mm), Pads: %s\n",
			fp.Reference, fp.Lib, box.Width(), box.Height(), fp.At.X, fp.At.Y, padInfo)
	}

	sb.WriteString(reportRule)
	sb.WriteString("Net Information:\n")
	nets := make([]*Net, 0, len(b.Nets))
	for i := range b.Nets {
		if b.Nets[i].Code != 0 {
			nets = append(nets, &b.Nets[i])
		}
	}
	sort.Slice(nets, func(i, j int) bool { return nets[i].Code < nets[j].Code })
	for _, n := range nets {
		pads := make([]string, len(n.Pads))
		for i, pr := range n.Pads {
			pads[i] = pr.String()
		}
		sort.Strings(pads)
		padInfo := "No pads"
		if len(pads) > 0 {
			padInfo = strings.Join(pads, ", ")
		}
		fmt.Fprintf(&sb, "Net - Code: %d, Name: %s, Connected Pads: %s\n", n.Code, n.Name, padInfo)
	}

	sb.WriteString(reportRule)
	sb.WriteString("Track Information:\n")
	for i := range b.Tracks {
		t := &b.Tracks[i]
		net := t.Net
		if net == "" {
			net = "None"
		}
		last := len(t.Path) - 1
		fmt.Fprintf(&sb, "Track - Net: %s, Start: (%.2f mm, %.2f mm), End: (%.2f mm, %.2f mm), Width: %.2f mm, Layer: %s\n",
			net, t.Path[0].X, t.Path[0].Y, t.Path[last].X, t.Path[last].Y, t.Width, t.Layer)
	}
	sb.WriteString(reportRule)

	return sb.String()
}

// Utilization describes how densely the board area is used.
type Utilization struct {
	FootprintArea  float64 // total courtyard area, mm^2
	EffectiveArea  float64 // bounding box of placed content, mm^2
	BoardArea      float64 // outline area (falls back to effective), mm^2
	FootprintRatio float64 // footprint / effective, percent
	EffectiveRatio float64 // effective / board, percent
}

// ComputeUtilization measures placement density: the footprint-area ratio
// flags boards placed too loosely, the effective-area ratio flags unused
// board area.
func ComputeUtilization(b *Board) Utilization {
	u := Utilization{}
	for i := range b.Footprints {
		box := b.Footprints[i].CourtyardBox()
		u.FootprintArea += box.Width() * box.Height()
	}
	eff := b.BoundingBox()
	u.EffectiveArea = eff.Width() * eff.Height()
	if b.Outline != nil {
		u.BoardArea = b.Outline.Width() * b.Outline.Height()
	} else {
		u.BoardArea = u.EffectiveArea
	}
	if u.EffectiveArea > 0 {
		u.FootprintRatio = u.FootprintArea / u.EffectiveArea * 100
	}
	if u.BoardArea > 0 {
		u.EffectiveRatio = u.EffectiveArea / u.BoardArea * 100
	}
	return u
}

// String renders the utilization report with the placement advice thresholds
// used by the layout checker (40% on both ratios).
func (u Utilization) String() string {
	footprintInfo := "The modules are placed appropriately."
	if u.FootprintRatio < 40 {
		footprintInfo = "Warning: modules are placed too loosely, move them closer together."
	}
	effectInfo := "The board area is utilized effectively."
	if u.EffectiveRatio < 40 {
		effectInfo = "Warning: significant unused board area detected."
	}
	return fmt.Sprintf(
		"Footprint area: %.2f mm2. Footprint area ratio: %.2f%% (footprint area / effective area). %s\n"+
			"Effective area: %.2f mm2. Effective area ratio: %.2f%% (effective area / board area). %s\n"+
			"Board area: %.2f mm2.",
		u.FootprintArea, u.FootprintRatio, footprintInfo,
		u.EffectiveArea, u.EffectiveRatio, effectInfo,
		u.BoardArea)
}
