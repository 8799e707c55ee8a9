package board

import (
	"github.com/google/uuid"
)

// Mutation operations validate every referential invariant before touching
// the document, so a failed call leaves the board exactly as it was.

// MoveFootprint places the footprint at a new position and rotation.
func (b *Board) MoveFootprint(ref string, to Point, rotation float64) error {
	fp := b.Footprint(ref)
	if fp == nil {
		return invariantf("move_footprint", ref, "no such footprint")
	}
	fp.At = to
	fp.Rotation = normalizeAngle(rotation)
	return nil
}

// AddTrack routes a new track on the given net and returns its id.
func (b *Board) AddTrack(net string, path []Point, width float64, layer string) (string, error) {
	if b.Net(net) == nil {
		return "", invariantf("add_track", net, "no such net")
	}
	if len(path) < 2 {
		return "", invariantf("add_track", net, "path needs at least two points, got %d", len(path))
	}
	if width <= 0 {
		return "", invariantf("add_track", net, "width must be positive, got %v", width)
	}
	if !b.IsCopperLayer(layer) {
		return "", invariantf("add_track", net, "layer %q is not a copper layer", layer)
	}
	t := Track{
		ID:    uuid.NewString(),
		Net:   net,
		Width: width,
		Layer: layer,
		Path:  append([]Point(nil), path...),
	}
	b.Tracks = append(b.Tracks, t)
	return t.ID, nil
}

// RemoveTrack deletes a track by id.
func (b *Board) RemoveTrack(id string) error {
	for i := range b.Tracks {
		if b.Tracks[i].ID == id {
			b.Tracks = append(b.Tracks[:i], b.Tracks[i+1:]...)
			return nil
		}
	}
	return invariantf("remove_track", id, "no such track")
}

// ResizeTrack changes a track's width.
func (b *Board) ResizeTrack(id string, width float64) error {
	t := b.Track(id)
	if t == nil {
		return invariantf("resize_track", id, "no such track")
	}
	if width <= 0 {
		return invariantf("resize_track", id, "width must be positive, got %v", width)
	}
	t.Width = width
	return nil
}

// ChangeTrackLayer moves a track to another copper layer.
func (b *Board) ChangeTrackLayer(id string, layer string) error {
	t := b.Track(id)
	if t == nil {
		return invariantf("change_layer", id, "no such track")
	}
	if !b.IsCopperLayer(layer) {
		return invariantf("change_layer", id, "layer %q is not a copper layer", layer)
	}
	t.Layer = layer
	return nil
}

// FitOutline replaces the board outline with the bounding box of the
// placed footprints and tracks, expanded by a uniform margin.
func (b *Board) FitOutline(margin float64) (Rect, error) {
	if margin < 0 {
		return Rect{}, invariantf("fit_outline", "board", "margin %.3f is negative", margin)
	}
	if len(b.Footprints) == 0 && len(b.Tracks) == 0 {
		return Rect{}, invariantf("fit_outline", "board", "nothing is placed to fit the outline to")
	}
	box := b.BoundingBox()
	box.Min.X -= margin
	box.Min.Y -= margin
	box.Max.X += margin
	box.Max.Y += margin
	b.Outline = &box
	return box, nil
}

// ReassignNet connects a pad to a different net (or disconnects it when net
// is empty). Net pad sets are kept consistent with the pad assignment.
func (b *Board) ReassignNet(pad PadRef, net string) error {
	fp := b.Footprint(pad.Reference)
	if fp == nil {
		return invariantf("reassign_net", pad.String(), "no such footprint %q", pad.Reference)
	}
	var target *Pad
	for i := range fp.Pads {
		if fp.Pads[i].Number == pad.Pad {
			target = &fp.Pads[i]
			break
		}
	}
	if target == nil {
		return invariantf("reassign_net", pad.String(), "footprint %q has no pad %q", pad.Reference, pad.Pad)
	}
	if net != "" && b.Net(net) == nil {
		return invariantf("reassign_net", pad.String(), "no such net %q", net)
	}
	target.Net = net
	rebuildNetPads(b)
	return nil
}
