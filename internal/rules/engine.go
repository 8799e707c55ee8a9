package rules

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/fleaxiao/PCB-MCP/internal/board"
)

// Violation is one design-rule finding. Violations are never mutated, only
// superseded by re-evaluation.
type Violation struct {
	ConstraintID string   `json:"constraint_id"`
	Entities     []string `json:"entities"` // sorted offending entity ids
	Severity     Severity `json:"severity"`
	Message      string   `json:"message"`
}

// MaxSeverity returns the highest severity present, or zero for none.
func MaxSeverity(violations []Violation) Severity {
	var max Severity
	for _, v := range violations {
		if v.Severity > max {
			max = v.Severity
		}
	}
	return max
}

// Default clearance between footprint courtyards when a clearance constraint
// carries no min_mm parameter.
const DefaultClearanceMM = 0.2

// Evaluate runs every constraint against the board snapshot. It is a pure
// function of (doc, constraints): repeated calls yield the identical ordered
// list. Ordering is severity descending, then constraint id, then first
// entity id. An unknown constraint kind fails fast rather than being
// silently skipped.
func Evaluate(doc *board.Board, constraints []Constraint) ([]Violation, error) {
	var out []Violation
	for i := range constraints {
		c := &constraints[i]
		var (
			vs  []Violation
			err error
		)
		switch c.Kind {
		case KindClearance:
			vs, err = evalClearance(doc, c)
		case KindTraceWidth:
			vs, err = evalTraceWidth(doc, c)
		case KindThermal:
			vs, err = evalThermal(doc, c)
		case KindNetClass:
			vs, err = evalNetClass(doc, c)
		default:
			return nil, &UnsupportedConstraintError{ConstraintID: c.ID, Kind: c.Kind}
		}
		if err != nil {
			return nil, err
		}
		out = append(out, vs...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Severity != out[j].Severity {
			return out[i].Severity > out[j].Severity
		}
		if out[i].ConstraintID != out[j].ConstraintID {
			return out[i].ConstraintID < out[j].ConstraintID
		}
		return firstEntity(out[i]) < firstEntity(out[j])
	})
	return out, nil
}

func firstEntity(v Violation) string {
	if len(v.Entities) == 0 {
		return ""
	}
	return v.Entities[0]
}

// footprintEnv exposes a footprint to applicability predicates.
func footprintEnv(fp *board.Footprint) starlark.StringDict {
	s := starlarkstruct.FromStringDict(starlark.String("footprint"), starlark.StringDict{
		"reference": starlark.String(fp.Reference),
		"lib":       starlark.String(fp.Lib),
		"value":     starlark.String(fp.Value),
		"layer":     starlark.String(fp.Layer),
		"x":         starlark.Float(fp.At.X),
		"y":         starlark.Float(fp.At.Y),
		"rotation":  starlark.Float(fp.Rotation),
		"pad_count": starlark.MakeInt(len(fp.Pads)),
	})
	return starlark.StringDict{"footprint": s}
}

// netEnv exposes a net to applicability predicates.
func netEnv(n *board.Net) starlark.StringDict {
	s := starlarkstruct.FromStringDict(starlark.String("net"), starlark.StringDict{
		"name":      starlark.String(n.Name),
		"code":      starlark.MakeInt(n.Code),
		"pad_count": starlark.MakeInt(len(n.Pads)),
	})
	return starlark.StringDict{"net": s}
}

// matchingFootprints returns footprints passing the predicate, in document
// order.
func matchingFootprints(doc *board.Board, c *Constraint) ([]*board.Footprint, error) {
	var out []*board.Footprint
	for i := range doc.Footprints {
		fp := &doc.Footprints[i]
		ok, err := c.applies(footprintEnv(fp))
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, fp)
		}
	}
	return out, nil
}

// matchingNets returns named nets passing the predicate, in document order.
func matchingNets(doc *board.Board, c *Constraint) ([]*board.Net, error) {
	var out []*board.Net
	for i := range doc.Nets {
		n := &doc.Nets[i]
		if n.Name == "" {
			continue
		}
		ok, err := c.applies(netEnv(n))
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, n)
		}
	}
	return out, nil
}

// evalClearance flags footprint pairs whose courtyards come closer than the
// minimum clearance (the first courtyard inflated by min_mm must not
// intersect the second), and, with board_edge set, footprints outside the
// board outline.
func evalClearance(doc *board.Board, c *Constraint) ([]Violation, error) {
	minClearance, ok := floatParam(c.Params, "min_mm")
	if !ok {
		minClearance = DefaultClearanceMM
	}
	sev := c.EffectiveSeverity()

	fps, err := matchingFootprints(doc, c)
	if err != nil {
		return nil, err
	}

	var out []Violation
	for i, a := range fps {
		boxA := a.CourtyardBox()
		inflated := boxA.Inflate(minClearance)
		for _, b := range fps[i+1:] {
			boxB := b.CourtyardBox()
			if !inflated.Intersects(boxB) {
				continue
			}
			entities := []string{a.Reference, b.Reference}
			sort.Strings(entities)
			out = append(out, Violation{
				ConstraintID: c.ID,
				Entities:     entities,
				Severity:     sev,
				Message: fmt.Sprintf(
					"clearance: %s and %s closer than %.2f mm (%s at (%.2f, %.2f), %s at (%.2f, %.2f))",
					entities[0], entities[1], minClearance,
					a.Reference, a.At.X, a.At.Y, b.Reference, b.At.X, b.At.Y),
			})
		}
	}

	if boolParam(c.Params, "board_edge") && doc.Outline != nil {
		for _, fp := range fps {
			box := fp.CourtyardBox()
			if doc.Outline.Contains(box) {
				continue
			}
			out = append(out, Violation{
				ConstraintID: c.ID,
				Entities:     []string{fp.Reference},
				Severity:     sev,
				Message: fmt.Sprintf(
					"clearance: %s extends beyond the board outline (size %.2f mm x %.2f mm at (%.2f, %.2f))",
					fp.Reference, box.Width(), box.Height(), fp.At.X, fp.At.Y),
			})
		}
	}
	return out, nil
}

// evalTraceWidth flags tracks of matching nets narrower than min_width_mm.
func evalTraceWidth(doc *board.Board, c *Constraint) ([]Violation, error) {
	minWidth, ok := floatParam(c.Params, "min_width_mm")
	if !ok {
		return nil, &UnsupportedConstraintError{
			ConstraintID: c.ID, Kind: c.Kind, Reason: "trace-width requires a min_width_mm parameter",
		}
	}
	sev := c.EffectiveSeverity()

	nets, err := matchingNets(doc, c)
	if err != nil {
		return nil, err
	}
	inClass := make(map[string]bool, len(nets))
	for _, n := range nets {
		inClass[n.Name] = true
	}

	var out []Violation
	for i := range doc.Tracks {
		t := &doc.Tracks[i]
		if !inClass[t.Net] || t.Width >= minWidth {
			continue
		}
		out = append(out, Violation{
			ConstraintID: c.ID,
			Entities:     []string{t.ID},
			Severity:     sev,
			Message: fmt.Sprintf("trace-width: track %s on net %s is %.3f mm wide, minimum is %.3f mm",
				t.ID, t.Net, t.Width, minWidth),
		})
	}
	return out, nil
}

// evalThermal enforces a keepout spacing around matching (heat-dissipating)
// footprints: every other footprint must stay min_spacing_mm away.
func evalThermal(doc *board.Board, c *Constraint) ([]Violation, error) {
	spacing, ok := floatParam(c.Params, "min_spacing_mm")
	if !ok {
		return nil, &UnsupportedConstraintError{
			ConstraintID: c.ID, Kind: c.Kind, Reason: "thermal requires a min_spacing_mm parameter",
		}
	}
	sev := c.EffectiveSeverity()

	hot, err := matchingFootprints(doc, c)
	if err != nil {
		return nil, err
	}
	hotSet := make(map[string]bool, len(hot))
	for _, fp := range hot {
		hotSet[fp.Reference] = true
	}

	var out []Violation
	for _, h := range hot {
		keepout := h.CourtyardBox().Inflate(spacing)
		for i := range doc.Footprints {
			other := &doc.Footprints[i]
			if other.Reference == h.Reference || hotSet[other.Reference] && other.Reference < h.Reference {
				continue
			}
			if !keepout.Intersects(other.CourtyardBox()) {
				continue
			}
			entities := []string{h.Reference, other.Reference}
			sort.Strings(entities)
			out = append(out, Violation{
				ConstraintID: c.ID,
				Entities:     entities,
				Severity:     sev,
				Message: fmt.Sprintf("thermal: %s is within %.2f mm of heat-dissipating %s",
					other.Reference, spacing, h.Reference),
			})
		}
	}
	return out, nil
}

// evalNetClass enforces class-wide routing rules on matching nets: minimum
// track width and, when a layers parameter is present, an allowed layer set.
func evalNetClass(doc *board.Board, c *Constraint) ([]Violation, error) {
	minWidth, hasWidth := floatParam(c.Params, "min_width_mm")
	allowedLayers := stringListParam(c.Params, "layers")
	if !hasWidth && len(allowedLayers) == 0 {
		return nil, &UnsupportedConstraintError{
			ConstraintID: c.ID, Kind: c.Kind,
			Reason: "net-class requires min_width_mm and/or layers parameters",
		}
	}
	sev := c.EffectiveSeverity()

	nets, err := matchingNets(doc, c)
	if err != nil {
		return nil, err
	}
	inClass := make(map[string]bool, len(nets))
	for _, n := range nets {
		inClass[n.Name] = true
	}
	allowed := make(map[string]bool, len(allowedLayers))
	for _, l := range allowedLayers {
		allowed[l] = true
	}

	var out []Violation
	for i := range doc.Tracks {
		t := &doc.Tracks[i]
		if !inClass[t.Net] {
			continue
		}
		if hasWidth && t.Width < minWidth {
			out = append(out, Violation{
				ConstraintID: c.ID,
				Entities:     []string{t.ID},
				Severity:     sev,
				Message: fmt.Sprintf("net-class: track %s on net %s is %.3f mm wide, class minimum is %.3f mm",
					t.ID, t.Net, t.Width, minWidth),
			})
		}
		if len(allowed) > 0 && !allowed[t.Layer] {
			out = append(out, Violation{
				ConstraintID: c.ID,
				Entities:     []string{t.ID},
				Severity:     sev,
				Message: fmt.Sprintf("net-class: track %s on net %s runs on layer %s, class allows %v",
					t.ID, t.Net, t.Layer, allowedLayers),
			})
		}
	}
	return out, nil
}
