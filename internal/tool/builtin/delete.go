package builtin

import (
	"context"
	"os"

	"github.com/sven-run/sven/internal/tool"
	"github.com/sven-run/sven/pkg/models"
)

// DeleteFile implements the "delete file" tool: refuses directories
// (§4.2).
type DeleteFile struct{}

func (DeleteFile) Name() string        { return "delete_file" }
func (DeleteFile) Description() string { return "Delete a single file. Refuses directories." }
func (DeleteFile) Parameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"path": map[string]any{"type": "string"}},
		"required":   []any{"path"},
	}
}
func (DeleteFile) DefaultPolicy() models.ApprovalPolicy { return models.PolicyAsk }
func (DeleteFile) Modes() []models.AgentMode            { return []models.AgentMode{models.ModeAgent} }
func (DeleteFile) OutputCategory() tool.OutputCategory  { return tool.CategoryText }

func (DeleteFile) Execute(_ context.Context, call models.ToolCall) tool.Output {
	var in struct {
		Path string `json:"path"`
	}
	if err := decodeArgs(call.Args, &in); err != nil {
		return tool.Errorf("invalid arguments: %s", err)
	}
	if out, bad := requireString(in.Path, "path"); bad {
		return out
	}

	info, err := os.Stat(in.Path)
	if err != nil {
		return tool.Errorf("stat %s: %s", in.Path, err)
	}
	if info.IsDir() {
		return tool.Errorf("refusing to delete directory: %s", in.Path)
	}
	if err := os.Remove(in.Path); err != nil {
		return tool.Errorf("delete %s: %s", in.Path, err)
	}
	return tool.Text("deleted " + in.Path)
}
