package board

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Minimum file format version this model understands (KiCad 6.0).
const MinSupportedVersion = 20211014

// Load reads and parses a board file from disk.
func Load(path string) (*Board, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ParseError{Path: path, Msg: err.Error()}
	}
	defer f.Close()

	b, err := Parse(f)
	if err != nil {
		if pe, ok := err.(*ParseError); ok {
			pe.Path = path
		}
		return nil, err
	}
	return b, nil
}

// Parse reads a board from r. Malformed input fails with *ParseError; a
// successfully parsed board always satisfies the referential invariants
// (tracks reference existing nets, net pad references resolve to footprints).
func Parse(r io.Reader) (*Board, error) {
	sc := newSexpScanner(r)
	root, err := sc.parseSexp()
	if err == io.EOF {
		return nil, &ParseError{Msg: "empty input"}
	}
	if err != nil {
		return nil, &ParseError{Line: sc.line, Msg: err.Error()}
	}
	if root.name() != "kicad_pcb" {
		return nil, &ParseError{Msg: fmt.Sprintf("not a board file: expected (kicad_pcb ...), got (%s ...)", root.name())}
	}

	b := &Board{}
	if vn := root.child("version"); vn != nil {
		v, err := vn.intArg(1)
		if err != nil {
			return nil, &ParseError{Msg: err.Error()}
		}
		b.Version = v
	} else {
		return nil, &ParseError{Msg: "missing (version ...)"}
	}
	if b.Version < MinSupportedVersion {
		return nil, &ParseError{Msg: fmt.Sprintf("unsupported format version %d (minimum %d)", b.Version, MinSupportedVersion)}
	}
	if gn := root.child("generator"); gn != nil {
		b.Generator, _ = gn.arg(1)
	}
	if gen := root.child("general"); gen != nil {
		if tn := gen.child("thickness"); tn != nil {
			if v, err := tn.floatArg(1); err == nil {
				b.Thickness = v
			}
		}
	}

	if err := parseLayers(root, b); err != nil {
		return nil, err
	}
	if err := parseNets(root, b); err != nil {
		return nil, err
	}
	if err := parseFootprints(root, b); err != nil {
		return nil, err
	}
	if err := parseTracks(root, b); err != nil {
		return nil, err
	}
	parseOutline(root, b)

	rebuildNetPads(b)
	if err := b.checkInvariants(); err != nil {
		return nil, &ParseError{Msg: err.Error()}
	}
	return b, nil
}

func parseLayers(root *node, b *Board) error {
	ln := root.child("layers")
	if ln == nil {
		return &ParseError{Msg: "missing (layers ...)"}
	}
	for _, entry := range ln.list[1:] {
		if !entry.isList || len(entry.list) < 3 {
			return &ParseError{Msg: "malformed layer entry"}
		}
		ord, err := entry.intArg(0)
		if err != nil {
			return &ParseError{Msg: "layer ordinal: " + err.Error()}
		}
		name, _ := entry.arg(1)
		typ, _ := entry.arg(2)
		b.Layers = append(b.Layers, Layer{Ordinal: ord, Name: name, Type: typ})
	}
	if len(b.Layers) == 0 {
		return &ParseError{Msg: "board defines no layers"}
	}
	return nil
}

func parseNets(root *node, b *Board) error {
	for _, nn := range root.children("net") {
		code, err := nn.intArg(1)
		if err != nil {
			return &ParseError{Msg: "net: " + err.Error()}
		}
		name, _ := nn.arg(2)
		b.Nets = append(b.Nets, Net{Code: code, Name: name})
	}
	return nil
}

func parseFootprints(root *node, b *Board) error {
	for _, fn := range root.children("footprint") {
		fp := Footprint{Layer: "F.Cu"}
		fp.Lib, _ = fn.arg(1)

		if ln := fn.child("layer"); ln != nil {
			fp.Layer, _ = ln.arg(1)
		}
		at := fn.child("at")
		if at == nil {
			return &ParseError{Msg: fmt.Sprintf("footprint %q: missing (at ...)", fp.Lib)}
		}
		var err error
		if fp.At.X, err = at.floatArg(1); err != nil {
			return &ParseError{Msg: "footprint at: " + err.Error()}
		}
		if fp.At.Y, err = at.floatArg(2); err != nil {
			return &ParseError{Msg: "footprint at: " + err.Error()}
		}
		if _, ok := at.arg(3); ok {
			if fp.Rotation, err = at.floatArg(3); err != nil {
				return &ParseError{Msg: "footprint rotation: " + err.Error()}
			}
		}

		for _, pn := range fn.children("property") {
			key, _ := pn.arg(1)
			val, _ := pn.arg(2)
			switch key {
			case "Reference":
				fp.Reference = val
			case "Value":
				fp.Value = val
			}
		}
		if fp.Reference == "" {
			return &ParseError{Msg: fmt.Sprintf("footprint %q has no Reference property", fp.Lib)}
		}

		for _, rn := range fn.children("fp_rect") {
			layer := ""
			if ln := rn.child("layer"); ln != nil {
				layer, _ = ln.arg(1)
			}
			if layer != "F.CrtYd" && layer != "B.CrtYd" {
				continue
			}
			start, end := rn.child("start"), rn.child("end")
			if start == nil || end == nil {
				return &ParseError{Msg: fmt.Sprintf("footprint %s: courtyard rect missing start/end", fp.Reference)}
			}
			sx, err1 := start.floatArg(1)
			sy, err2 := start.floatArg(2)
			ex, err3 := end.floatArg(1)
			ey, err4 := end.floatArg(2)
			if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
				return &ParseError{Msg: fmt.Sprintf("footprint %s: malformed courtyard rect", fp.Reference)}
			}
			r := NewRect(Point{X: sx, Y: sy}, Point{X: ex, Y: ey})
			if fp.Courtyard == nil {
				fp.Courtyard = &r
			} else {
				u := fp.Courtyard.Union(r)
				fp.Courtyard = &u
			}
		}

		for _, padn := range fn.children("pad") {
			pad := Pad{Shape: "rect"}
			pad.Number, _ = padn.arg(1)
			if pad.Number == "" {
				return &ParseError{Msg: fmt.Sprintf("footprint %s: pad without number", fp.Reference)}
			}
			if s, ok := padn.arg(3); ok {
				pad.Shape = s
			}
			if at := padn.child("at"); at != nil {
				pad.Offset.X, _ = at.floatArg(1)
				pad.Offset.Y, _ = at.floatArg(2)
			}
			if sz := padn.child("size"); sz != nil {
				pad.SizeW, _ = sz.floatArg(1)
				pad.SizeH, _ = sz.floatArg(2)
			}
			if netn := padn.child("net"); netn != nil {
				pad.Net, _ = netn.arg(2)
			}
			fp.Pads = append(fp.Pads, pad)
		}

		b.Footprints = append(b.Footprints, fp)
	}
	return nil
}

func parseTracks(root *node, b *Board) error {
	for _, sn := range root.children("segment") {
		t := Track{}
		start, end := sn.child("start"), sn.child("end")
		if start == nil || end == nil {
			return &ParseError{Msg: "segment missing start/end"}
		}
		sx, err1 := start.floatArg(1)
		sy, err2 := start.floatArg(2)
		ex, err3 := end.floatArg(1)
		ey, err4 := end.floatArg(2)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			return &ParseError{Msg: "segment has non-numeric coordinates"}
		}
		t.Path = []Point{{X: sx, Y: sy}}
		for _, pn := range sn.children("pt") {
			px, errA := pn.floatArg(1)
			py, errB := pn.floatArg(2)
			if errA != nil || errB != nil {
				return &ParseError{Msg: "segment has non-numeric bend point"}
			}
			t.Path = append(t.Path, Point{X: px, Y: py})
		}
		t.Path = append(t.Path, Point{X: ex, Y: ey})

		wn := sn.child("width")
		if wn == nil {
			return &ParseError{Msg: "segment missing width"}
		}
		w, err := wn.floatArg(1)
		if err != nil {
			return &ParseError{Msg: "segment width: " + err.Error()}
		}
		t.Width = w

		if ln := sn.child("layer"); ln != nil {
			t.Layer, _ = ln.arg(1)
		}
		if un := sn.child("uuid"); un != nil {
			t.ID, _ = un.arg(1)
		}
		if t.ID == "" {
			return &ParseError{Msg: "segment missing uuid"}
		}

		netn := sn.child("net")
		if netn == nil {
			return &ParseError{Msg: "segment missing net"}
		}
		code, err := netn.intArg(1)
		if err != nil {
			return &ParseError{Msg: "segment net: " + err.Error()}
		}
		found := false
		for _, n := range b.Nets {
			if n.Code == code {
				t.Net = n.Name
				found = true
				break
			}
		}
		if !found {
			return &ParseError{Msg: fmt.Sprintf("segment references unknown net code %d", code)}
		}

		b.Tracks = append(b.Tracks, t)
	}
	return nil
}

func parseOutline(root *node, b *Board) {
	for _, rn := range root.children("gr_rect") {
		layer := ""
		if ln := rn.child("layer"); ln != nil {
			layer, _ = ln.arg(1)
		}
		if layer != "Edge.Cuts" {
			continue
		}
		start, end := rn.child("start"), rn.child("end")
		if start == nil || end == nil {
			continue
		}
		sx, err1 := start.floatArg(1)
		sy, err2 := start.floatArg(2)
		ex, err3 := end.floatArg(1)
		ey, err4 := end.floatArg(2)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			continue
		}
		r := NewRect(Point{X: sx, Y: sy}, Point{X: ex, Y: ey})
		if b.Outline == nil {
			b.Outline = &r
		} else {
			u := b.Outline.Union(r)
			b.Outline = &u
		}
	}
}

// rebuildNetPads derives each net's pad reference set from footprint pad
// assignments. Called after parse and after net-affecting mutations.
func rebuildNetPads(b *Board) {
	for i := range b.Nets {
		b.Nets[i].Pads = nil
	}
	for fi := range b.Footprints {
		fp := &b.Footprints[fi]
		for _, pad := range fp.Pads {
			if pad.Net == "" {
				continue
			}
			for ni := range b.Nets {
				if b.Nets[ni].Name == pad.Net {
					b.Nets[ni].Pads = append(b.Nets[ni].Pads, PadRef{Reference: fp.Reference, Pad: pad.Number})
					break
				}
			}
		}
	}
}

// checkInvariants verifies referential integrity: unique footprint
// references, tracks owned by existing nets on existing layers, and net pad
// references resolving to existing footprint pads.
func (b *Board) checkInvariants() error {
	seen := make(map[string]bool, len(b.Footprints))
	for i := range b.Footprints {
		ref := b.Footprints[i].Reference
		if seen[ref] {
			return fmt.Errorf("duplicate footprint reference %q", ref)
		}
		seen[ref] = true
		for _, pad := range b.Footprints[i].Pads {
			if pad.Net != "" && b.Net(pad.Net) == nil {
				return fmt.Errorf("pad %s.%s references unknown net %q", ref, pad.Number, pad.Net)
			}
		}
	}
	for i := range b.Tracks {
		t := &b.Tracks[i]
		if t.Net != "" && b.Net(t.Net) == nil {
			return fmt.Errorf("track %s references unknown net %q", t.ID, t.Net)
		}
		if t.Layer != "" && b.Layer(t.Layer) == nil {
			return fmt.Errorf("track %s references unknown layer %q", t.ID, t.Layer)
		}
		if len(t.Path) < 2 {
			return fmt.Errorf("track %s has fewer than two path points", t.ID)
		}
	}
	for _, n := range b.Nets {
		for _, pr := range n.Pads {
			fp := b.Footprint(pr.Reference)
			if fp == nil {
				return fmt.Errorf("net %q references pad of unknown footprint %q", n.Name, pr.Reference)
			}
			found := false
			for _, pad := range fp.Pads {
				if pad.Number == pr.Pad {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("net %q references unknown pad %s", n.Name, pr)
			}
		}
	}
	return nil
}

// Summary returns a one-paragraph description used in planner prompts.
func (b *Board) Summary() string {
	var sb strings.Builder
	box := b.BoundingBox()
	fmt.Fprintf(&sb, "%d footprints, %d nets, %d tracks across %d layers; extent %.2f x %.2f mm",
		len(b.Footprints), len(b.Nets), len(b.Tracks), len(b.Layers), box.Width(), box.Height())
	if b.Outline != nil {
		fmt.Fprintf(&sb, "; board outline %.2f x %.2f mm", b.Outline.Width(), b.Outline.Height())
	}
	return sb.String()
}
