package extraction

import (
	"encoding/json"
	"fmt"

	"github.com/flightscout/orchestrator/internal/visionmodel"
	"github.com/flightscout/orchestrator/types"
)

// buildActionTools declares one tool per types.ActionKind so the vision
// model can invoke the Action variant set from the data model directly.
func buildActionTools() []visionmodel.ToolSpec {
	coord := map[string]any{"type": "number", "description": "normalized 0..999 coordinate"}
	return []visionmodel.ToolSpec{
		{Name: "click", Description: "Click at a normalized coordinate.", Parameters: map[string]any{
			"type": "object", "properties": map[string]any{"x": coord, "y": coord}, "required": []string{"x", "y"},
		}},
		{Name: "type", Description: "Click a field and type text into it.", Parameters: map[string]any{
			"type": "object", "properties": map[string]any{
				"x": coord, "y": coord,
				"text":        map[string]any{"type": "string"},
				"press_enter": map[string]any{"type": "boolean"},
				"clear_first": map[string]any{"type": "boolean"},
			},
			"required": []string{"x", "y", "text"},
		}},
		{Name: "drag", Description: "Drag from one normalized coordinate to another.", Parameters: map[string]any{
			"type": "object", "properties": map[string]any{"x0": coord, "y0": coord, "x1": coord, "y1": coord},
			"required": []string{"x0", "y0", "x1", "y1"},
		}},
		{Name: "scroll", Description: "Scroll at a normalized coordinate in a direction.", Parameters: map[string]any{
			"type": "object", "properties": map[string]any{
				"x": coord, "y": coord,
				"direction": map[string]any{"type": "string", "enum": []string{"up", "down", "left", "right"}},
				"magnitude": map[string]any{"type": "number"},
			},
			"required": []string{"x", "y", "direction"},
		}},
		{Name: "key", Description: "Dispatch a key chord.", Parameters: map[string]any{
			"type": "object", "properties": map[string]any{"chord": map[string]any{"type": "string"}}, "required": []string{"chord"},
		}},
		{Name: "navigate", Description: "Navigate to a URL.", Parameters: map[string]any{
			"type": "object", "properties": map[string]any{"url": map[string]any{"type": "string"}}, "required": []string{"url"},
		}},
		{Name: "wait", Description: "Wait for a number of seconds.", Parameters: map[string]any{
			"type": "object", "properties": map[string]any{"seconds": map[string]any{"type": "number"}}, "required": []string{"seconds"},
		}},
		{Name: "hover", Description: "Hover at a normalized coordinate.", Parameters: map[string]any{
			"type": "object", "properties": map[string]any{"x": coord, "y": coord}, "required": []string{"x", "y"},
		}},
		{Name: "move", Description: "Move the pointer to a normalized coordinate.", Parameters: map[string]any{
			"type": "object", "properties": map[string]any{"x": coord, "y": coord}, "required": []string{"x", "y"},
		}},
	}
}

// actionFromToolCall decodes a model tool call into the Action variant.
func actionFromToolCall(call types.ToolCall) (types.Action, error) {
	var raw struct {
		X, Y, X0, Y0, X1, Y1 float64
		Text                 string
		PressEnter           bool `json:"press_enter"`
		ClearFirst           bool `json:"clear_first"`
		Direction            string
		Magnitude            float64
		Chord                string
		URL                  string
		Seconds              float64
	}
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &raw); err != nil {
			return types.Action{}, fmt.Errorf("extraction: decode arguments for %q: %w", call.Name, err)
		}
	}

	kind := types.ActionKind(call.Name)
	switch kind {
	case types.ActionClick, types.ActionType, types.ActionDrag, types.ActionScroll,
		types.ActionKey, types.ActionNavigate, types.ActionWait, types.ActionHover, types.ActionMove:
	default:
		return types.Action{}, fmt.Errorf("extraction: unknown action %q", call.Name)
	}

	return types.Action{
		Kind: kind,
		X: raw.X, Y: raw.Y, X0: raw.X0, Y0: raw.Y0, X1: raw.X1, Y1: raw.Y1,
		Text: raw.Text, PressEnter: raw.PressEnter, ClearFirst: raw.ClearFirst,
		Direction: raw.Direction, Magnitude: raw.Magnitude, Chord: raw.Chord,
		URL: raw.URL, Seconds: raw.Seconds,
	}, nil
}
