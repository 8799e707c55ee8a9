package datasheet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleaxiao/PCB-MCP/internal/rules"
)

const goodDatasheet = `
TPS5430 Step-Down Converter

Pin Functions

Pin | Name | Description
----|------|------------
1   | VIN  | Input supply
2   | GND  | Ground
3   | SW   | Switch node
4   | EN   | Enable input

Layout Guidelines

Place the input capacitor with a clearance of at least 0.3 mm from the IC.
Use a trace width of at least 0.8 mm for all power paths.
Provide a thermal relief area and keep other components 2.5 mm away from the thermal pad.
`

// TestExtract_FullDocument verifies a well-formed datasheet yields a pin
// map and clearance, thermal and power-width constraints.
func TestExtract_FullDocument(t *testing.T) {
	res := Extract("U1", goodDatasheet)

	require.Len(t, res.Pins, 4)
	assert.Equal(t, Pin{Number: "1", Name: "VIN", Function: "Input supply"}, res.Pins[0])

	byID := map[string]rules.Constraint{}
	for _, c := range res.Constraints {
		byID[c.ID] = c
	}
	require.Len(t, byID, 3)

	clr := byID["ds-U1-clearance"]
	assert.Equal(t, rules.KindClearance, clr.Kind)
	assert.Equal(t, rules.ProvenanceDatasheet, clr.Provenance)
	assert.InDelta(t, 0.3, clr.Params["min_mm"].(float64), 1e-9)
	assert.GreaterOrEqual(t, clr.Confidence, 0.5)

	th := byID["ds-U1-thermal"]
	assert.InDelta(t, 2.5, th.Params["min_spacing_mm"].(float64), 1e-9)

	pw := byID["ds-U1-power-width"]
	assert.Equal(t, rules.KindTraceWidth, pw.Kind)
	assert.InDelta(t, 0.8, pw.Params["min_width_mm"].(float64), 1e-9)
	assert.Contains(t, pw.AppliesTo, `"VIN"`)
	assert.Contains(t, pw.AppliesTo, `"SW"`)
	assert.NotContains(t, pw.AppliesTo, `"EN"`)
}

// TestExtract_ConstraintsValidate verifies every extracted constraint passes
// the rule engine's own validation (kinds and predicates evaluatable).
func TestExtract_ConstraintsValidate(t *testing.T) {
	res := Extract("U1", goodDatasheet)
	require.NotEmpty(t, res.Constraints)
	for _, c := range res.Constraints {
		assert.NoError(t, c.Validate(), "constraint %s", c.ID)
	}
}

// TestExtract_PartiallyParseableTable verifies the best-effort contract: a
// table where under half the rows parse still yields a partial pin map and
// constraints, plus at least one warning, and never a fatal error.
func TestExtract_PartiallyParseableTable(t *testing.T) {
	raw := `
Pin | Name | Description
----|------|------------
1   | VIN  | Input supply
2   | GND  | Ground
?? garbled @@ row ##
totally not a table row at all
<<<< corrupted line
`
	res := Extract("U2", raw)

	require.Len(t, res.Pins, 2, "parseable rows must survive")
	assert.NotEmpty(t, res.Constraints, "partial result must still carry constraints")
	assert.NotEmpty(t, res.Warnings, "unparseable rows must be reported")

	foundRowWarning := false
	for _, w := range res.Warnings {
		if w.Section == "pin table" {
			foundRowWarning = true
		}
	}
	assert.True(t, foundRowWarning)
}

// TestExtract_AssumedPowerWidthIsLowConfidence verifies a pin table without
// routing guidance produces a low-confidence constraint that the engine
// will cap at advisory.
func TestExtract_AssumedPowerWidthIsLowConfidence(t *testing.T) {
	raw := `
Pin | Name
----|-----
1   | VIN
2   | GND
`
	res := Extract("U3", raw)

	require.Len(t, res.Constraints, 1)
	c := res.Constraints[0]
	assert.Equal(t, rules.KindTraceWidth, c.Kind)
	assert.Less(t, c.Confidence, 0.5)
	assert.Equal(t, rules.SeverityAdvisory, c.EffectiveSeverity())
	assert.NotEmpty(t, res.Warnings)
}

// TestExtract_EmptyDocument verifies garbage input degrades to an empty
// result with a warning, not an error.
func TestExtract_EmptyDocument(t *testing.T) {
	res := Extract("U4", "nothing useful here\njust prose\n")
	assert.Empty(t, res.Constraints)
	assert.Empty(t, res.Pins)
	require.NotEmpty(t, res.Warnings)
	assert.Equal(t, "document", res.Warnings[0].Section)
}

// TestExtract_ThermalWithoutNumber verifies thermal guidance lacking a
// numeric spacing is assumed with low confidence.
func TestExtract_ThermalWithoutNumber(t *testing.T) {
	res := Extract("U5", "Connect the thermal pad to the ground plane.\n")

	var th *rules.Constraint
	for i := range res.Constraints {
		if res.Constraints[i].Kind == rules.KindThermal {
			th = &res.Constraints[i]
		}
	}
	require.NotNil(t, th)
	assert.Less(t, th.Confidence, 0.5)
	assert.Equal(t, rules.SeverityAdvisory, th.EffectiveSeverity())
}
