package builtin

import (
	"context"

	"github.com/sven-run/sven/internal/tool"
	"github.com/sven-run/sven/pkg/models"
)

// SwitchMode implements the "switch mode" tool: downgrades the agent mode
// and emits a ModeChanged event. Available in Agent and Plan modes (§4.2).
type SwitchMode struct {
	// Current reports the mode in effect when this tool executes, so the
	// downgrade-only invariant can be enforced.
	Current func() models.AgentMode
}

func (SwitchMode) Name() string { return "switch_mode" }
func (SwitchMode) Description() string {
	return "Downgrade the agent's operating mode (agent -> plan -> research)."
}
func (SwitchMode) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"mode": map[string]any{
				"type": "string",
				"enum": []any{"research", "plan", "agent"},
			},
		},
		"required": []any{"mode"},
	}
}
func (SwitchMode) DefaultPolicy() models.ApprovalPolicy { return models.PolicyAuto }
func (SwitchMode) Modes() []models.AgentMode {
	return []models.AgentMode{models.ModeAgent, models.ModePlan}
}
func (SwitchMode) OutputCategory() tool.OutputCategory { return tool.CategoryText }

func (s SwitchMode) Execute(ctx context.Context, call models.ToolCall) tool.Output {
	var in struct {
		Mode string `json:"mode"`
	}
	if err := decodeArgs(call.Args, &in); err != nil {
		return tool.Errorf("invalid arguments: %s", err)
	}
	if out, bad := requireString(in.Mode, "mode"); bad {
		return out
	}

	target := models.AgentMode(in.Mode)
	switch target {
	case models.ModeResearch, models.ModePlan, models.ModeAgent:
	default:
		return tool.Errorf("unknown mode: %s", in.Mode)
	}

	var current models.AgentMode
	if s.Current != nil {
		current = s.Current()
	}
	if current != "" && !target.IsDowngradeFrom(current) {
		return tool.Errorf("switch_mode only supports downgrades, cannot switch from %s to %s", current, target)
	}

	tool.EmitEvent(ctx, tool.Event{ModeChanged: &tool.ModeChangedEvent{Mode: target}})
	return tool.Text("switched to " + string(target))
}
