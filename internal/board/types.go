package board

import (
	"fmt"
	"strings"
)

// All coordinates are millimetres in board space, rotations in degrees.

// Point is a 2D board coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned bounding box.
type Rect struct {
	Min Point `json:"min"`
	Max Point `json:"max"`
}

// NewRect builds a normalized rect from two corners.
func NewRect(a, b Point) Rect {
	r := Rect{Min: a, Max: b}
	if r.Min.X > r.Max.X {
		r.Min.X, r.Max.X = r.Max.X, r.Min.X
	}
	if r.Min.Y > r.Max.Y {
		r.Min.Y, r.Max.Y = r.Max.Y, r.Min.Y
	}
	return r
}

// Width returns the horizontal extent.
func (r Rect) Width() float64 { return r.Max.X - r.Min.X }

// Height returns the vertical extent.
func (r Rect) Height() float64 { return r.Max.Y - r.Min.Y }

// Center returns the midpoint.
func (r Rect) Center() Point {
	return Point{X: (r.Min.X + r.Max.X) / 2, Y: (r.Min.Y + r.Max.Y) / 2}
}

// Inflate grows the rect by d on every side.
func (r Rect) Inflate(d float64) Rect {
	return Rect{
		Min: Point{X: r.Min.X - d, Y: r.Min.Y - d},
		Max: Point{X: r.Max.X + d, Y: r.Max.Y + d},
	}
}

// Intersects reports whether two rects overlap (touching edges do not count).
func (r Rect) Intersects(o Rect) bool {
	return r.Min.X < o.Max.X && o.Min.X < r.Max.X &&
		r.Min.Y < o.Max.Y && o.Min.Y < r.Max.Y
}

// Contains reports whether o lies entirely within r.
func (r Rect) Contains(o Rect) bool {
	return o.Min.X >= r.Min.X && o.Max.X <= r.Max.X &&
		o.Min.Y >= r.Min.Y && o.Max.Y <= r.Max.Y
}

// Union returns the smallest rect covering both.
func (r Rect) Union(o Rect) Rect {
	out := r
	if o.Min.X < out.Min.X {
		out.Min.X = o.Min.X
	}
	if o.Min.Y < out.Min.Y {
		out.Min.Y = o.Min.Y
	}
	if o.Max.X > out.Max.X {
		out.Max.X = o.Max.X
	}
	if o.Max.Y > out.Max.Y {
		out.Max.Y = o.Max.Y
	}
	return out
}

// Layer is one entry of the board stackup.
type Layer struct {
	Ordinal int    `json:"ordinal"`
	Name    string `json:"name"` // e.g. "F.Cu", "B.Cu", "Edge.Cuts"
	Type    string `json:"type"` // "signal", "power", "user"
}

// PadRef identifies a pad as "REF.PAD", e.g. "U1.3".
type PadRef struct {
	Reference string `json:"reference"`
	Pad       string `json:"pad"`
}

// String renders the canonical "REF.PAD" form.
func (p PadRef) String() string { return p.Reference + "." + p.Pad }

// ParsePadRef parses "REF.PAD". The pad number is everything after the last
// dot, so references containing dots are not supported (KiCad refs never do).
func ParsePadRef(s string) (PadRef, error) {
	i := strings.LastIndex(s, ".")
	if i <= 0 || i == len(s)-1 {
		return PadRef{}, fmt.Errorf("pad reference %q is not of the form REF.PAD", s)
	}
	return PadRef{Reference: s[:i], Pad: s[i+1:]}, nil
}

// Pad is a single footprint pad. Offset is relative to the footprint origin
// before rotation.
type Pad struct {
	Number string  `json:"number"`
	Net    string  `json:"net,omitempty"` // net name; "" = unconnected
	Shape  string  `json:"shape"`         // "rect", "circle", "roundrect"
	Offset Point   `json:"offset"`
	SizeW  float64 `json:"size_w"`
	SizeH  float64 `json:"size_h"`
}

// Footprint is a placed component. Reference is the entity id used in
// violations and planned actions.
type Footprint struct {
	Reference string  `json:"reference"`
	Lib       string  `json:"lib"` // library id, e.g. "Package_TO_SOT_SMD:SOT-23"
	Value     string  `json:"value,omitempty"`
	At        Point   `json:"at"`
	Rotation  float64 `json:"rotation"`
	Layer     string  `json:"layer"`
	Pads      []Pad   `json:"pads"`
	// Courtyard, when present, is the component keepout outline relative to
	// the footprint origin. When absent the pad bounding box is used.
	Courtyard *Rect `json:"courtyard,omitempty"`
}

// CourtyardBox returns the footprint's keepout box in board coordinates.
// Rotations of +-90 swap the box extents; other angles fall back to the
// unrotated box, matching how courtyards are normally drawn.
func (f *Footprint) CourtyardBox() Rect {
	var local Rect
	if f.Courtyard != nil {
		local = *f.Courtyard
	} else {
		first := true
		for _, p := range f.Pads {
			pr := NewRect(
				Point{X: p.Offset.X - p.SizeW/2, Y: p.Offset.Y - p.SizeH/2},
				Point{X: p.Offset.X + p.SizeW/2, Y: p.Offset.Y + p.SizeH/2},
			)
			if first {
				local = pr
				first = false
			} else {
				local = local.Union(pr)
			}
		}
	}
	w, h := local.Width(), local.Height()
	cx, cy := local.Center().X, local.Center().Y
	switch normalizeAngle(f.Rotation) {
	case 90:
		w, h = h, w
		cx, cy = cy, -cx
	case 180:
		cx, cy = -cx, -cy
	case 270:
		w, h = h, w
		cx, cy = -cy, cx
	}
	return NewRect(
		Point{X: f.At.X + cx - w/2, Y: f.At.Y + cy - h/2},
		Point{X: f.At.X + cx + w/2, Y: f.At.Y + cy + h/2},
	)
}

// PadPosition returns a pad's absolute board position (rotation applied for
// the 90-degree multiples KiCad placements use in practice).
func (f *Footprint) PadPosition(p Pad) Point {
	x, y := p.Offset.X, p.Offset.Y
	switch normalizeAngle(f.Rotation) {
	case 90:
		x, y = y, -x
	case 180:
		x, y = -x, -y
	case 270:
		x, y = -y, x
	}
	return Point{X: f.At.X + x, Y: f.At.Y + y}
}

func normalizeAngle(a float64) float64 {
	for a < 0 {
		a += 360
	}
	for a >= 360 {
		a -= 360
	}
	return a
}

// Net is a named electrical connection. Pads is the authoritative set of
// connected pad references, kept consistent with footprint pad assignments.
type Net struct {
	Code int      `json:"code"`
	Name string   `json:"name"`
	Pads []PadRef `json:"pads,omitempty"`
}

// Track is a routed copper segment path owned by a net.
type Track struct {
	ID    string  `json:"id"` // stable uuid, serialized as (uuid ...)
	Net   string  `json:"net"`
	Width float64 `json:"width"`
	Layer string  `json:"layer"`
	Path  []Point `json:"path"` // ordered, at least two points
}

// Bounds returns the track's bounding box including its width.
func (t *Track) Bounds() Rect {
	r := NewRect(t.Path[0], t.Path[0])
	for _, p := range t.Path[1:] {
		r = r.Union(NewRect(p, p))
	}
	return r.Inflate(t.Width / 2)
}

// Board is the document model: a mutable snapshot of one layout. A session
// owns its Board exclusively; concurrent use requires external locking.
type Board struct {
	Version   int     `json:"version"`
	Generator string  `json:"generator"`
	Thickness float64 `json:"thickness"`

	Layers     []Layer     `json:"layers"`
	Nets       []Net       `json:"nets"`
	Footprints []Footprint `json:"footprints"`
	Tracks     []Track     `json:"tracks"`

	// Outline is the Edge.Cuts board boundary, when defined.
	Outline *Rect `json:"outline,omitempty"`
}

// Footprint returns the footprint with the given reference, or nil.
func (b *Board) Footprint(ref string) *Footprint {
	for i := range b.Footprints {
		if b.Footprints[i].Reference == ref {
			return &b.Footprints[i]
		}
	}
	return nil
}

// Net returns the net with the given name, or nil. The unconnected net
// (code 0, empty name) is not addressable by name.
func (b *Board) Net(name string) *Net {
	if name == "" {
		return nil
	}
	for i := range b.Nets {
		if b.Nets[i].Name == name {
			return &b.Nets[i]
		}
	}
	return nil
}

// Track returns the track with the given id, or nil.
func (b *Board) Track(id string) *Track {
	for i := range b.Tracks {
		if b.Tracks[i].ID == id {
			return &b.Tracks[i]
		}
	}
	return nil
}

// Layer returns the stackup entry with the given name, or nil.
func (b *Board) Layer(name string) *Layer {
	for i := range b.Layers {
		if b.Layers[i].Name == name {
			return &b.Layers[i]
		}
	}
	return nil
}

// IsCopperLayer reports whether the named layer carries copper.
func (b *Board) IsCopperLayer(name string) bool {
	l := b.Layer(name)
	if l == nil {
		return false
	}
	return l.Type == "signal" || l.Type == "power" || l.Type == "mixed"
}

// BoundingBox returns the extent of everything placed on the board, or the
// outline when nothing is placed.
func (b *Board) BoundingBox() Rect {
	var box Rect
	first := true
	add := func(r Rect) {
		if first {
			box = r
			first = false
		} else {
			box = box.Union(r)
		}
	}
	for i := range b.Footprints {
		add(b.Footprints[i].CourtyardBox())
	}
	for i := range b.Tracks {
		add(b.Tracks[i].Bounds())
	}
	if first && b.Outline != nil {
		return *b.Outline
	}
	return box
}

// Clone returns an independent deep copy, used for working copies.
func (b *Board) Clone() *Board {
	out := *b
	out.Layers = append([]Layer(nil), b.Layers...)
	out.Nets = make([]Net, len(b.Nets))
	for i, n := range b.Nets {
		out.Nets[i] = n
		out.Nets[i].Pads = append([]PadRef(nil), n.Pads...)
	}
	out.Footprints = make([]Footprint, len(b.Footprints))
	for i, f := range b.Footprints {
		out.Footprints[i] = f
		out.Footprints[i].Pads = append([]Pad(nil), f.Pads...)
		if f.Courtyard != nil {
			c := *f.Courtyard
			out.Footprints[i].Courtyard = &c
		}
	}
	out.Tracks = make([]Track, len(b.Tracks))
	for i, t := range b.Tracks {
		out.Tracks[i] = t
		out.Tracks[i].Path = append([]Point(nil), t.Path...)
	}
	if b.Outline != nil {
		o := *b.Outline
		out.Outline = &o
	}
	return &out
}
