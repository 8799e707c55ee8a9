package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/fleaxiao/PCB-MCP/internal/rules"
	"github.com/fleaxiao/PCB-MCP/internal/session"
	"github.com/fleaxiao/PCB-MCP/internal/tools"
)

// DRCHandler evaluates the session's constraint set against the working
// copy. A rule-evaluation failure (bad predicate, missing param) is a
// non-retryable tool error; violations are a normal successful result.
type DRCHandler struct {
	store *session.Store
}

func (h *DRCHandler) Spec() tools.ToolSpec {
	return tools.ToolSpec{
		Name:        "drc_check",
		Description: "Run the design rule check against the current working copy and list violations.",
	}
}

func (h *DRCHandler) IsMutating() bool { return false }

func (h *DRCHandler) Handle(ctx context.Context, inv *tools.ToolInvocation) (*tools.ToolOutput, error) {
	co, terr := checkout(h.store, inv)
	if terr != nil {
		return nil, terr
	}
	co.Lock()
	defer co.Unlock()

	violations, err := rules.Evaluate(co.Working, co.Constraints)
	if err != nil {
		return nil, &tools.ToolError{Tool: inv.Name, Err: err}
	}

	data := map[string]any{"violation_count": len(violations)}
	if len(violations) == 0 {
		return success("design rule check passed: no violations", data), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "design rule check found %d violation(s):", len(violations))
	items := make([]map[string]any, 0, len(violations))
	for _, v := range violations {
		fmt.Fprintf(&sb, "\n  [%s] %s: %s", v.Severity, v.ConstraintID, v.Message)
		items = append(items, map[string]any{
			"constraint": v.ConstraintID,
			"severity":   v.Severity.String(),
			"entities":   v.Entities,
			"message":    v.Message,
		})
	}
	data["violations"] = items
	data["max_severity"] = rules.MaxSeverity(violations).String()
	return success(sb.String(), data), nil
}
