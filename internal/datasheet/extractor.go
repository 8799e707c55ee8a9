// Package datasheet turns semi-structured component datasheet text (pin
// tables, layout-guideline prose) into typed rule constraints. Parsing is
// best effort: irrecoverable structure degrades into LowConfidenceWarnings
// and a partial result, never a failure, because downstream rule checking
// must be able to proceed with reduced coverage.
package datasheet

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/fleaxiao/PCB-MCP/internal/rules"
)

// Pin is one row of a parsed pin table.
type Pin struct {
	Number   string `json:"number"`
	Name     string `json:"name"`
	Function string `json:"function,omitempty"`
}

// LowConfidenceWarning flags a section the extractor could not fully parse.
// Non-fatal: the corresponding constraint coverage is reduced or carries a
// lowered confidence.
type LowConfidenceWarning struct {
	Section string `json:"section"`
	Line    int    `json:"line,omitempty"` // 1-based source line, 0 when section-wide
	Reason  string `json:"reason"`
}

func (w LowConfidenceWarning) String() string {
	if w.Line > 0 {
		return fmt.Sprintf("%s (line %d): %s", w.Section, w.Line, w.Reason)
	}
	return fmt.Sprintf("%s: %s", w.Section, w.Reason)
}

// Result is the outcome of one extraction run.
type Result struct {
	Reference   string                 `json:"reference"`
	Pins        []Pin                  `json:"pins,omitempty"`
	Constraints []rules.Constraint     `json:"constraints"`
	Warnings    []LowConfidenceWarning `json:"warnings,omitempty"`
}

var (
	// "a minimum clearance of 0.3 mm", "clearance of at least 0.25mm"
	clearanceRe = regexp.MustCompile(`(?i)clearance\s+of\s+(?:at\s+least\s+|a\s+minimum\s+of\s+)?(\d+(?:\.\d+)?)\s*mm`)
	minClearRe  = regexp.MustCompile(`(?i)(?:minimum|min\.?)\s+clearance\s+(?:of\s+)?(\d+(?:\.\d+)?)\s*mm`)
	// "trace width of at least 0.5 mm", "minimum trace width of 1 mm"
	traceWidthRe = regexp.MustCompile(`(?i)trace\s+width\s+of\s+(?:at\s+least\s+)?(\d+(?:\.\d+)?)\s*mm`)
	// "keep ... 2 mm ... thermal", on a line mentioning thermal
	spacingRe = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*mm`)

	pinHeaderRe = regexp.MustCompile(`(?i)\bpin\b.*\b(name|function|description)\b`)
	powerPinRe  = regexp.MustCompile(`(?i)^(vin|vout|vcc|vdd|gnd|pgnd|agnd|sw|vbus|pvin)\d*$`)

	pinNameRe   = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_+\-]*$`)
	columnGapRe = regexp.MustCompile(`\s{2,}|\t+`)
	tabularRe   = regexp.MustCompile(`\s{2,}|\t`)
)

// Extract parses datasheet text for the component with the given reference.
// All produced constraints are tagged with datasheet provenance and a
// confidence in [0,1]; the rule engine caps low-confidence rules at
// advisory severity.
func Extract(reference, raw string) Result {
	res := Result{Reference: reference}
	lines := strings.Split(raw, "\n")

	res.Pins, res.Warnings = extractPinTable(lines, res.Warnings)

	clearance, _ := findFirst(lines, clearanceRe, minClearRe)
	traceWidth, _ := findFirst(lines, traceWidthRe)
	thermalSpacing, thermalAssumed := findThermal(lines)

	if clearance > 0 {
		res.Constraints = append(res.Constraints, rules.Constraint{
			ID:         "ds-" + reference + "-clearance",
			Kind:       rules.KindClearance,
			Severity:   rules.SeverityError,
			Provenance: rules.ProvenanceDatasheet,
			Confidence: 0.8,
			Params:     map[string]any{"min_mm": clearance},
			AppliesTo:  refPredicate(reference),
		})
	}

	if thermalSpacing > 0 {
		conf := 0.8
		if thermalAssumed {
			conf = 0.3
			res.Warnings = append(res.Warnings, LowConfidenceWarning{
				Section: "layout guidelines",
				Reason:  "thermal guidance found without a numeric spacing, assumed 1.0 mm",
			})
		}
		res.Constraints = append(res.Constraints, rules.Constraint{
			ID:         "ds-" + reference + "-thermal",
			Kind:       rules.KindThermal,
			Severity:   rules.SeverityError,
			Provenance: rules.ProvenanceDatasheet,
			Confidence: conf,
			Params:     map[string]any{"min_spacing_mm": thermalSpacing},
			AppliesTo:  refPredicate(reference),
		})
	}

	if powerNets := powerNetNames(res.Pins); len(powerNets) > 0 {
		width := traceWidth
		conf := 0.8
		if width == 0 {
			// A pin table without routing guidance still implies the power
			// paths need heavier copper than signal defaults.
			width = 0.5
			conf = 0.4
			res.Warnings = append(res.Warnings, LowConfidenceWarning{
				Section: "pin table",
				Reason:  "power pins found without a trace width recommendation, assumed 0.5 mm",
			})
		}
		res.Constraints = append(res.Constraints, rules.Constraint{
			ID:         "ds-" + reference + "-power-width",
			Kind:       rules.KindTraceWidth,
			Severity:   rules.SeverityError,
			Provenance: rules.ProvenanceDatasheet,
			Confidence: conf,
			Params:     map[string]any{"min_width_mm": width},
			AppliesTo:  netListPredicate(powerNets),
		})
	} else if traceWidth > 0 {
		res.Constraints = append(res.Constraints, rules.Constraint{
			ID:         "ds-" + reference + "-width",
			Kind:       rules.KindTraceWidth,
			Severity:   rules.SeverityError,
			Provenance: rules.ProvenanceDatasheet,
			Confidence: 0.45,
			Params:     map[string]any{"min_width_mm": traceWidth},
		})
		res.Warnings = append(res.Warnings, LowConfidenceWarning{
			Section: "layout guidelines",
			Reason:  "trace width recommendation found but no pin table to scope it, applied to all nets",
		})
	}

	if len(res.Constraints) == 0 {
		res.Warnings = append(res.Warnings, LowConfidenceWarning{
			Section: "document",
			Reason:  "no layout constraints recognized",
		})
	}
	return res
}

// extractPinTable locates a pin table header and parses the rows beneath it.
// Rows that do not parse are skipped with a warning each.
func extractPinTable(lines []string, warnings []LowConfidenceWarning) ([]Pin, []LowConfidenceWarning) {
	headerIdx := -1
	for i, line := range lines {
		if pinHeaderRe.MatchString(line) && looksTabular(line) {
			headerIdx = i
			break
		}
	}
	if headerIdx == -1 {
		return nil, warnings
	}

	var pins []Pin
	total := 0
	for i := headerIdx + 1; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			break
		}
		if isRuleLine(line) {
			continue
		}
		total++
		pin, ok := parsePinRow(line)
		if !ok {
			warnings = append(warnings, LowConfidenceWarning{
				Section: "pin table",
				Line:    i + 1,
				Reason:  fmt.Sprintf("unparseable row %q", truncate(line, 40)),
			})
			continue
		}
		pins = append(pins, pin)
	}
	if total > 0 && len(pins) < total {
		warnings = append(warnings, LowConfidenceWarning{
			Section: "pin table",
			Reason:  fmt.Sprintf("only %d of %d rows parsed", len(pins), total),
		})
	}
	return pins, warnings
}

// parsePinRow splits a table row into number, name and function. Accepts
// pipe-delimited and multi-space-delimited rows; the first field must be a
// pin number.
func parsePinRow(line string) (Pin, bool) {
	fields := splitRow(line)
	if len(fields) < 2 {
		return Pin{}, false
	}
	if _, err := strconv.Atoi(fields[0]); err != nil {
		return Pin{}, false
	}
	name := fields[1]
	if name == "" || !pinNameRe.MatchString(name) {
		return Pin{}, false
	}
	pin := Pin{Number: fields[0], Name: strings.ToUpper(name)}
	if len(fields) > 2 {
		pin.Function = fields[2]
	}
	return pin, true
}

func splitRow(line string) []string {
	line = strings.Trim(line, "| \t")
	var parts []string
	if strings.Contains(line, "|") {
		parts = strings.Split(line, "|")
	} else {
		parts = columnGapRe.Split(line, -1)
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

func looksTabular(line string) bool {
	return strings.Contains(line, "|") || tabularRe.MatchString(line)
}

// isRuleLine detects Markdown-style separator rows like |---|---|.
func isRuleLine(line string) bool {
	trimmed := strings.Trim(line, "|: \t")
	return trimmed != "" && strings.Trim(trimmed, "-+ |") == ""
}

// findFirst returns the first numeric capture of any pattern across lines.
func findFirst(lines []string, patterns ...*regexp.Regexp) (float64, int) {
	for i, line := range lines {
		for _, re := range patterns {
			if m := re.FindStringSubmatch(line); m != nil {
				if v, err := strconv.ParseFloat(m[1], 64); err == nil && v > 0 {
					return v, i + 1
				}
			}
		}
	}
	return 0, 0
}

// findThermal looks for thermal guidance. Returns the recommended spacing
// and whether it had to be assumed (no number on the thermal line).
func findThermal(lines []string) (spacing float64, assumed bool) {
	for _, line := range lines {
		if !strings.Contains(strings.ToLower(line), "thermal") {
			continue
		}
		if m := spacingRe.FindStringSubmatch(line); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil && v > 0 {
				return v, false
			}
		}
		return 1.0, true
	}
	return 0, false
}

// powerNetNames returns the pin names that look like power or switching
// nets, deduplicated in first-seen order.
func powerNetNames(pins []Pin) []string {
	var out []string
	seen := make(map[string]bool)
	for _, p := range pins {
		if !powerPinRe.MatchString(p.Name) || seen[p.Name] {
			continue
		}
		seen[p.Name] = true
		out = append(out, p.Name)
	}
	return out
}

func refPredicate(ref string) string {
	return fmt.Sprintf("footprint.reference == %q", ref)
}

func netListPredicate(nets []string) string {
	quoted := make([]string, len(nets))
	for i, n := range nets {
		quoted[i] = strconv.Quote(n)
	}
	return fmt.Sprintf("net.name in [%s]", strings.Join(quoted, ", "))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
