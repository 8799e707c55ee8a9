package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/fleaxiao/PCB-MCP/internal/models"
)

// planEnvelope is the wire shape the planner is asked to produce.
type planEnvelope struct {
	Commentary string         `json:"commentary"`
	Actions    []actionOnWire `json:"actions"`
}

type actionOnWire struct {
	Kind     string      `json:"kind"`
	Target   string      `json:"target"`
	Position *models.XY  `json:"position,omitempty"`
	Rotation *float64    `json:"rotation,omitempty"`
	Path     []models.XY `json:"path,omitempty"`
	Width    *float64    `json:"width,omitempty"`
	Layer    string      `json:"layer,omitempty"`
	Reason   string      `json:"reason,omitempty"`
}

// ParsePlan decodes and validates planner output. Models wrap JSON in
// markdown fences often enough that the fence stripping is load-bearing.
// Every action gets a fresh id and starts in the proposed state.
func ParsePlan(raw string, maxPlanLength int) (PlanResponse, error) {
	text := stripFences(strings.TrimSpace(raw))
	if text == "" {
		return PlanResponse{}, fmt.Errorf("planner returned empty output")
	}

	var env planEnvelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return PlanResponse{}, fmt.Errorf("planner output is not valid JSON: %w", err)
	}
	if len(env.Actions) == 0 {
		return PlanResponse{}, fmt.Errorf("planner proposed no actions")
	}
	if maxPlanLength > 0 && len(env.Actions) > maxPlanLength {
		return PlanResponse{}, fmt.Errorf("planner proposed %d actions, limit is %d", len(env.Actions), maxPlanLength)
	}

	resp := PlanResponse{Commentary: env.Commentary}
	for i, w := range env.Actions {
		action, err := validateAction(w)
		if err != nil {
			return PlanResponse{}, fmt.Errorf("action %d: %w", i, err)
		}
		resp.Actions = append(resp.Actions, action)
	}
	return resp, nil
}

func validateAction(w actionOnWire) (models.PlannedAction, error) {
	kind := models.ActionKind(w.Kind)
	if !models.KnownActionKind(kind) {
		return models.PlannedAction{}, fmt.Errorf("unknown action kind %q", w.Kind)
	}
	if w.Target == "" {
		return models.PlannedAction{}, fmt.Errorf("%s action has no target", w.Kind)
	}

	a := models.PlannedAction{
		ID:       uuid.NewString(),
		Kind:     kind,
		Target:   w.Target,
		State:    models.ActionProposed,
		Position: w.Position,
		Rotation: w.Rotation,
		Path:     w.Path,
		Width:    w.Width,
		Layer:    w.Layer,
		Reason:   w.Reason,
	}

	switch kind {
	case models.ActionMove:
		if a.Position == nil {
			return models.PlannedAction{}, fmt.Errorf("move action on %s has no position", w.Target)
		}
	case models.ActionRoute:
		if len(a.Path) < 2 {
			return models.PlannedAction{}, fmt.Errorf("route action on %s needs a path of at least two points", w.Target)
		}
		if a.Width == nil || *a.Width <= 0 {
			return models.PlannedAction{}, fmt.Errorf("route action on %s needs a positive width", w.Target)
		}
		if a.Layer == "" {
			return models.PlannedAction{}, fmt.Errorf("route action on %s needs a layer", w.Target)
		}
	case models.ActionResize:
		if a.Width == nil || *a.Width <= 0 {
			return models.PlannedAction{}, fmt.Errorf("resize action on %s needs a positive width", w.Target)
		}
	case models.ActionLayerChange:
		if a.Layer == "" {
			return models.PlannedAction{}, fmt.Errorf("layer-change action on %s needs a layer", w.Target)
		}
	}
	return a, nil
}

// stripFences removes a single markdown code fence wrapper if present.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
