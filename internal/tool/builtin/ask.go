package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/sven-run/sven/internal/tool"
	"github.com/sven-run/sven/pkg/models"
)

// OperatorChannel answers questions posed by the ask_question tool. The
// bootstrap wires a concrete implementation (e.g. a control-plane prompt).
type OperatorChannel interface {
	Ask(ctx context.Context, questions []string) ([]string, error)
}

// AskQuestion implements the "ask question" tool: poses 1-3 questions to
// the operator and returns a combined Q/A block (§4.2).
type AskQuestion struct {
	Channel OperatorChannel
}

func (AskQuestion) Name() string        { return "ask_question" }
func (AskQuestion) Description() string { return "Ask the operator one to three questions." }
func (AskQuestion) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"questions": map[string]any{
				"type":     "array",
				"items":    map[string]any{"type": "string"},
				"minItems": 1,
				"maxItems": 3,
			},
		},
		"required": []any{"questions"},
	}
}
func (AskQuestion) DefaultPolicy() models.ApprovalPolicy { return models.PolicyAuto }
func (AskQuestion) Modes() []models.AgentMode            { return nil }
func (AskQuestion) OutputCategory() tool.OutputCategory  { return tool.CategoryText }

func (a AskQuestion) Execute(ctx context.Context, call models.ToolCall) tool.Output {
	var in struct {
		Questions []string `json:"questions"`
	}
	if err := decodeArgs(call.Args, &in); err != nil {
		return tool.Errorf("invalid arguments: %s", err)
	}
	if len(in.Questions) == 0 {
		return tool.Error("missing required parameter: questions")
	}
	if len(in.Questions) > 3 {
		in.Questions = in.Questions[:3]
	}
	if a.Channel == nil {
		return tool.Error("no operator channel configured")
	}

	answers, err := a.Channel.Ask(ctx, in.Questions)
	if err != nil {
		return tool.Errorf("ask operator: %s", err)
	}

	var b strings.Builder
	for i, q := range in.Questions {
		answer := ""
		if i < len(answers) {
			answer = answers[i]
		}
		fmt.Fprintf(&b, "Q: %s\nA: %s\n", q, answer)
	}
	return tool.Text(strings.TrimRight(b.String(), "\n"))
}
