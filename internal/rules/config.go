package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// constraintDoc is the YAML shape of a constraint set file:
//
//	constraints:
//	  - id: clearance-default
//	    kind: clearance
//	    severity: error
//	    params:
//	      min_mm: 0.2
//	      board_edge: true
//	    applies_to: 'footprint.layer == "F.Cu"'
type constraintDoc struct {
	Constraints []constraintEntry `yaml:"constraints"`
}

type constraintEntry struct {
	ID        string         `yaml:"id"`
	Kind      string         `yaml:"kind"`
	Severity  string         `yaml:"severity"`
	Params    map[string]any `yaml:"params"`
	AppliesTo string         `yaml:"applies_to"`
}

// LoadConfig reads a constraint set from a YAML file. Any unknown kind,
// unknown severity, or non-parsing predicate fails the whole load: a session
// must not start with silently dropped rules.
func LoadConfig(path string) ([]Constraint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read constraint config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML constraint config bytes.
func ParseConfig(data []byte) ([]Constraint, error) {
	var doc constraintDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse constraint config: %w", err)
	}
	if len(doc.Constraints) == 0 {
		return nil, fmt.Errorf("constraint config defines no constraints")
	}

	seen := make(map[string]bool, len(doc.Constraints))
	out := make([]Constraint, 0, len(doc.Constraints))
	for i, e := range doc.Constraints {
		if e.ID == "" {
			return nil, fmt.Errorf("constraint %d: missing id", i+1)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("duplicate constraint id %q", e.ID)
		}
		seen[e.ID] = true

		sev := SeverityError
		if e.Severity != "" {
			parsed, err := ParseSeverity(e.Severity)
			if err != nil {
				return nil, fmt.Errorf("constraint %q: %w", e.ID, err)
			}
			sev = parsed
		}

		c := Constraint{
			ID:         e.ID,
			Kind:       Kind(e.Kind),
			Severity:   sev,
			Provenance: ProvenanceConfig,
			Confidence: 1.0,
			Params:     e.Params,
			AppliesTo:  e.AppliesTo,
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
