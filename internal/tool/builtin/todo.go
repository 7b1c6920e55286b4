package builtin

import (
	"context"
	"fmt"

	"github.com/sven-run/sven/internal/tool"
	"github.com/sven-run/sven/pkg/models"
)

// TodoWrite implements the "todo write" tool: replaces the todo list and
// emits a TodoUpdate event. At most one todo may be in_progress (§4.2).
type TodoWrite struct{}

func (TodoWrite) Name() string        { return "todo_write" }
func (TodoWrite) Description() string { return "Replace the current todo list." }
func (TodoWrite) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"todos": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":      map[string]any{"type": "string"},
						"content": map[string]any{"type": "string"},
						"status": map[string]any{
							"type": "string",
							"enum": []any{"pending", "in_progress", "completed", "cancelled"},
						},
					},
					"required": []any{"id", "content", "status"},
				},
			},
		},
		"required": []any{"todos"},
	}
}
func (TodoWrite) DefaultPolicy() models.ApprovalPolicy { return models.PolicyAuto }
func (TodoWrite) Modes() []models.AgentMode            { return nil }
func (TodoWrite) OutputCategory() tool.OutputCategory  { return tool.CategoryText }

func (TodoWrite) Execute(ctx context.Context, call models.ToolCall) tool.Output {
	var in struct {
		Todos []struct {
			ID      string `json:"id"`
			Content string `json:"content"`
			Status  string `json:"status"`
		} `json:"todos"`
	}
	if err := decodeArgs(call.Args, &in); err != nil {
		return tool.Errorf("invalid arguments: %s", err)
	}

	todos := make([]models.Todo, 0, len(in.Todos))
	inProgress := 0
	for _, t := range in.Todos {
		status := models.TodoStatus(t.Status)
		switch status {
		case models.TodoPending, models.TodoInProgress, models.TodoCompleted, models.TodoCancelled:
		default:
			return tool.Errorf("invalid todo status: %s", t.Status)
		}
		if status == models.TodoInProgress {
			inProgress++
		}
		todos = append(todos, models.Todo{ID: t.ID, Content: t.Content, Status: status})
	}
	if inProgress > 1 {
		return tool.Errorf("at most one todo may be in_progress, got %d", inProgress)
	}

	tool.EmitEvent(ctx, tool.Event{TodoUpdate: &tool.TodoUpdateEvent{Todos: todos}})
	return tool.Text(fmt.Sprintf("updated %d todos", len(todos)))
}
