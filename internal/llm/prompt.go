package llm

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are a PCB layout assistant. You are given a board
description, the active design rules, and a goal. Respond with a JSON object
of the form:

{"commentary": "<one sentence>", "actions": [<action>, ...]}

Each action is one of:

  {"kind": "move", "target": "<footprint reference>",
   "position": {"x": <mm>, "y": <mm>}, "rotation": <degrees, optional>,
   "reason": "<why>"}

  {"kind": "route", "target": "<net name>",
   "path": [{"x": <mm>, "y": <mm>}, ...], "width": <mm>,
   "layer": "<copper layer>", "reason": "<why>"}

  {"kind": "resize", "target": "<track id>", "width": <mm>, "reason": "<why>"}

  {"kind": "layer-change", "target": "<track id>", "layer": "<copper layer>",
   "reason": "<why>"}

Propose the smallest plan that achieves the goal without violating the
design rules. Output only the JSON object, no surrounding prose.`

// buildUserPrompt assembles the per-attempt planner input.
func buildUserPrompt(req PlanRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Goal: %s\n\n", req.Goal)
	fmt.Fprintf(&sb, "Board: %s\n\n", req.BoardSummary)
	if req.BoardReport != "" {
		fmt.Fprintf(&sb, "Current layout:\n%s\n\n", req.BoardReport)
	}
	if len(req.Constraints) > 0 {
		sb.WriteString("Active design rules:\n")
		for _, c := range req.Constraints {
			fmt.Fprintf(&sb, "  - %s\n", c)
		}
		sb.WriteString("\n")
	}
	if len(req.Feedback) > 0 {
		sb.WriteString("Your previous plan was rejected. Address this feedback:\n")
		for _, f := range req.Feedback {
			fmt.Fprintf(&sb, "  - %s\n", f)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Propose at most %d actions.", req.MaxPlanLength)
	return sb.String()
}
