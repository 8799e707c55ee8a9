package board

import "strings"

// Serialize renders the board back to its file form. For any board built
// through this model's own mutation API, Parse(Serialize(b)) is structurally
// equal to b. Output is deterministic: sections appear in a fixed order and
// entities keep their document order.
func Serialize(b *Board) []byte {
	root := listNode(atomNode("kicad_pcb"))
	root.list = append(root.list,
		listNode(atomNode("version"), intNode(b.Version)),
	)
	if b.Generator != "" {
		root.list = append(root.list, listNode(atomNode("generator"), quotedNode(b.Generator)))
	}
	if b.Thickness != 0 {
		root.list = append(root.list,
			listNode(atomNode("general"), listNode(atomNode("thickness"), floatNode(b.Thickness))))
	}

	layers := listNode(atomNode("layers"))
	for _, l := range b.Layers {
		layers.list = append(layers.list,
			listNode(intNode(l.Ordinal), quotedNode(l.Name), atomNode(l.Type)))
	}
	root.list = append(root.list, layers)

	for _, n := range b.Nets {
		root.list = append(root.list, listNode(atomNode("net"), intNode(n.Code), quotedNode(n.Name)))
	}

	if b.Outline != nil {
		root.list = append(root.list, listNode(atomNode("gr_rect"),
			listNode(atomNode("start"), floatNode(b.Outline.Min.X), floatNode(b.Outline.Min.Y)),
			listNode(atomNode("end"), floatNode(b.Outline.Max.X), floatNode(b.Outline.Max.Y)),
			listNode(atomNode("layer"), quotedNode("Edge.Cuts")),
		))
	}

	for i := range b.Footprints {
		root.list = append(root.list, serializeFootprint(b, &b.Footprints[i]))
	}
	for i := range b.Tracks {
		root.list = append(root.list, serializeTrack(b, &b.Tracks[i]))
	}

	var sb strings.Builder
	writeSexp(&sb, root, 0)
	sb.WriteByte('\n')
	return []byte(sb.String())
}

func serializeFootprint(b *Board, f *Footprint) *node {
	fn := listNode(atomNode("footprint"), quotedNode(f.Lib))
	fn.list = append(fn.list, listNode(atomNode("layer"), quotedNode(f.Layer)))

	at := listNode(atomNode("at"), floatNode(f.At.X), floatNode(f.At.Y))
	if f.Rotation != 0 {
		at.list = append(at.list, floatNode(f.Rotation))
	}
	fn.list = append(fn.list, at)

	fn.list = append(fn.list,
		listNode(atomNode("property"), quotedNode("Reference"), quotedNode(f.Reference)))
	if f.Value != "" {
		fn.list = append(fn.list,
			listNode(atomNode("property"), quotedNode("Value"), quotedNode(f.Value)))
	}

	if f.Courtyard != nil {
		fn.list = append(fn.list, listNode(atomNode("fp_rect"),
			listNode(atomNode("start"), floatNode(f.Courtyard.Min.X), floatNode(f.Courtyard.Min.Y)),
			listNode(atomNode("end"), floatNode(f.Courtyard.Max.X), floatNode(f.Courtyard.Max.Y)),
			listNode(atomNode("layer"), quotedNode("F.CrtYd")),
		))
	}

	for _, pad := range f.Pads {
		pn := listNode(atomNode("pad"), quotedNode(pad.Number), atomNode("smd"), atomNode(pad.Shape),
			listNode(atomNode("at"), floatNode(pad.Offset.X), floatNode(pad.Offset.Y)),
			listNode(atomNode("size"), floatNode(pad.SizeW), floatNode(pad.SizeH)),
		)
		if pad.Net != "" {
			if net := b.Net(pad.Net); net != nil {
				pn.list = append(pn.list, listNode(atomNode("net"), intNode(net.Code), quotedNode(net.Name)))
			}
		}
		fn.list = append(fn.list, pn)
	}
	return fn
}

func serializeTrack(b *Board, t *Track) *node {
	// The end point of a multi-point path is the last path point; the
	// intermediate bend points serialize as (pt ...) children so the whole
	// path stays under one uuid.
	netCode := 0
	if net := b.Net(t.Net); net != nil {
		netCode = net.Code
	}
	last := len(t.Path) - 1
	sn := listNode(atomNode("segment"),
		listNode(atomNode("start"), floatNode(t.Path[0].X), floatNode(t.Path[0].Y)),
		listNode(atomNode("end"), floatNode(t.Path[last].X), floatNode(t.Path[last].Y)),
	)
	for _, p := range t.Path[1:last] {
		sn.list = append(sn.list,
			listNode(atomNode("pt"), floatNode(p.X), floatNode(p.Y)))
	}
	sn.list = append(sn.list,
		listNode(atomNode("width"), floatNode(t.Width)),
		listNode(atomNode("layer"), quotedNode(t.Layer)),
		listNode(atomNode("net"), intNode(netCode)),
		listNode(atomNode("uuid"), quotedNode(t.ID)),
	)
	return sn
}
