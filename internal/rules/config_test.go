package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `
constraints:
  - id: clearance-default
    kind: clearance
    severity: error
    params:
      min_mm: 0.2
      board_edge: true
  - id: power-width
    kind: trace-width
    severity: warning
    params:
      min_width_mm: 0.5
    applies_to: 'net.name in ["VIN", "VOUT"]'
  - id: regulator-thermal
    kind: thermal
    severity: error
    params:
      min_spacing_mm: 2.0
    applies_to: 'footprint.reference.startswith("U")'
`

// TestParseConfig_Valid verifies a full config loads with config provenance
// and full confidence.
func TestParseConfig_Valid(t *testing.T) {
	cs, err := ParseConfig([]byte(validConfig))
	require.NoError(t, err)
	require.Len(t, cs, 3)

	assert.Equal(t, "clearance-default", cs[0].ID)
	assert.Equal(t, KindClearance, cs[0].Kind)
	assert.Equal(t, SeverityError, cs[0].Severity)
	assert.Equal(t, ProvenanceConfig, cs[0].Provenance)
	assert.Equal(t, 1.0, cs[0].Confidence)

	assert.Equal(t, SeverityWarning, cs[1].Severity)
	assert.NotEmpty(t, cs[1].AppliesTo)
}

// TestParseConfig_UnknownKind verifies an unknown kind fails the whole load.
func TestParseConfig_UnknownKind(t *testing.T) {
	src := `
constraints:
  - id: x
    kind: impedance
    severity: error
`
	_, err := ParseConfig([]byte(src))
	var ue *UnsupportedConstraintError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, Kind("impedance"), ue.Kind)
}

// TestParseConfig_BadSeverity verifies unknown severities are rejected.
func TestParseConfig_BadSeverity(t *testing.T) {
	src := `
constraints:
  - id: x
    kind: clearance
    severity: fatal
`
	_, err := ParseConfig([]byte(src))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown severity")
}

// TestParseConfig_BadPredicate verifies a non-parsing applies_to expression
// is rejected at load time, not at evaluation.
func TestParseConfig_BadPredicate(t *testing.T) {
	src := `
constraints:
  - id: x
    kind: clearance
    applies_to: 'footprint.reference =='
`
	_, err := ParseConfig([]byte(src))
	var ue *UnsupportedConstraintError
	require.ErrorAs(t, err, &ue)
	assert.Contains(t, ue.Reason, "applies_to does not parse")
}

// TestParseConfig_DuplicateID verifies duplicate constraint ids are rejected.
func TestParseConfig_DuplicateID(t *testing.T) {
	src := `
constraints:
  - id: x
    kind: clearance
  - id: x
    kind: thermal
    params:
      min_spacing_mm: 1.0
`
	_, err := ParseConfig([]byte(src))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate constraint id")
}

// TestParseConfig_Empty verifies an empty set is a configuration error.
func TestParseConfig_Empty(t *testing.T) {
	_, err := ParseConfig([]byte("constraints: []"))
	require.Error(t, err)
}

// TestParseSeverity covers the round trip of severity names.
func TestParseSeverity(t *testing.T) {
	for _, name := range []string{"advisory", "warning", "error", "critical"} {
		sev, err := ParseSeverity(name)
		require.NoError(t, err)
		assert.Equal(t, name, sev.String())
	}
	_, err := ParseSeverity("nope")
	require.Error(t, err)
}
