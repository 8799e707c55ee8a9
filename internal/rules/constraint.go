// Package rules implements the design-rule engine: typed constraints
// evaluated deterministically against a board snapshot, producing an ordered
// violation list.
package rules

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Kind identifies a constraint variant.
type Kind string

const (
	KindClearance  Kind = "clearance"
	KindTraceWidth Kind = "trace-width"
	KindThermal    Kind = "thermal"
	KindNetClass   Kind = "net-class"
)

// knownKinds is the closed set of evaluatable constraint kinds.
var knownKinds = map[Kind]bool{
	KindClearance:  true,
	KindTraceWidth: true,
	KindThermal:    true,
	KindNetClass:   true,
}

// Provenance records where a constraint came from.
type Provenance string

const (
	ProvenanceConfig    Provenance = "config"
	ProvenanceDatasheet Provenance = "datasheet"
)

// Severity orders violations; the session commit gate compares against a
// configured threshold.
type Severity int

const (
	SeverityAdvisory Severity = iota + 1
	SeverityWarning
	SeverityError
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityAdvisory: "advisory",
	SeverityWarning:  "warning",
	SeverityError:    "error",
	SeverityCritical: "critical",
}

func (s Severity) String() string {
	if n, ok := severityNames[s]; ok {
		return n
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// ParseSeverity parses a severity name from configuration.
func ParseSeverity(s string) (Severity, error) {
	for sev, name := range severityNames {
		if name == s {
			return sev, nil
		}
	}
	return 0, fmt.Errorf("unknown severity %q (must be advisory, warning, error, or critical)", s)
}

// Constraint is a single typed rule. Immutable once loaded into a session.
type Constraint struct {
	ID         string         `json:"id" yaml:"id"`
	Kind       Kind           `json:"kind" yaml:"kind"`
	Severity   Severity       `json:"severity" yaml:"-"`
	Provenance Provenance     `json:"provenance" yaml:"-"`
	Confidence float64        `json:"confidence" yaml:"-"` // 1.0 for config-sourced rules
	Params     map[string]any `json:"params" yaml:"params"`
	// AppliesTo is a Starlark boolean expression over the entity the kind
	// targets (`footprint` for clearance/thermal, `net` for trace-width and
	// net-class). Empty means the rule applies to every entity.
	AppliesTo string `json:"applies_to,omitempty" yaml:"applies_to"`
}

// UnsupportedConstraintError reports a constraint kind the engine cannot
// evaluate, or a predicate that does not parse. Fatal at session start.
type UnsupportedConstraintError struct {
	ConstraintID string
	Kind         Kind
	Reason       string
}

func (e *UnsupportedConstraintError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("constraint %q: %s", e.ConstraintID, e.Reason)
	}
	return fmt.Sprintf("constraint %q: unsupported kind %q", e.ConstraintID, e.Kind)
}

// Validate checks the constraint is evaluatable: known kind and a predicate
// that parses as a Starlark expression.
func (c *Constraint) Validate() error {
	if c.ID == "" {
		return &UnsupportedConstraintError{ConstraintID: c.ID, Kind: c.Kind, Reason: "missing id"}
	}
	if !knownKinds[c.Kind] {
		return &UnsupportedConstraintError{ConstraintID: c.ID, Kind: c.Kind}
	}
	if c.AppliesTo != "" {
		if _, err := syntax.ParseExpr(c.ID, c.AppliesTo, 0); err != nil {
			return &UnsupportedConstraintError{
				ConstraintID: c.ID, Kind: c.Kind,
				Reason: fmt.Sprintf("applies_to does not parse: %v", err),
			}
		}
	}
	return nil
}

// EffectiveSeverity is the severity a violation of this constraint carries.
// Low-confidence datasheet rules are capped at advisory so a shaky parse
// never blocks a commit on its own.
func (c *Constraint) EffectiveSeverity() Severity {
	if c.Provenance == ProvenanceDatasheet && c.Confidence < 0.5 {
		return SeverityAdvisory
	}
	return c.Severity
}

// floatParam reads a numeric parameter, accepting the types YAML and JSON
// decoding produce.
func floatParam(params map[string]any, key string) (float64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func boolParam(params map[string]any, key string) bool {
	v, ok := params[key]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

func stringListParam(params map[string]any, key string) []string {
	v, ok := params[key]
	if !ok {
		return nil
	}
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// applies evaluates the constraint's predicate against a Starlark
// environment. A missing predicate matches everything. Evaluation is pure:
// the environment exposes only the entity struct.
func (c *Constraint) applies(env starlark.StringDict) (bool, error) {
	if c.AppliesTo == "" {
		return true, nil
	}
	thread := &starlark.Thread{Name: "applies:" + c.ID}
	v, err := starlark.Eval(thread, c.ID, c.AppliesTo, env)
	if err != nil {
		return false, fmt.Errorf("constraint %q: applies_to evaluation: %w", c.ID, err)
	}
	return bool(v.Truth()), nil
}
