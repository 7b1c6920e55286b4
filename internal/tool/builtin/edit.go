package builtin

import (
	"context"
	"os"
	"strings"

	"github.com/sven-run/sven/internal/tool"
	"github.com/sven-run/sven/pkg/models"
)

// EditFile implements the "edit file" tool: replaces a unique old_str
// occurrence with new_str, failing on 0 or >1 matches (§4.2).
type EditFile struct{}

func (EditFile) Name() string        { return "edit_file" }
func (EditFile) Description() string { return "Replace a unique substring occurrence in a file." }
func (EditFile) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string"},
			"old_str": map[string]any{"type": "string", "description": "Must match exactly once."},
			"new_str": map[string]any{"type": "string"},
		},
		"required": []any{"path", "old_str", "new_str"},
	}
}
func (EditFile) DefaultPolicy() models.ApprovalPolicy { return models.PolicyAsk }
func (EditFile) Modes() []models.AgentMode            { return []models.AgentMode{models.ModeAgent} }
func (EditFile) OutputCategory() tool.OutputCategory  { return tool.CategoryText }

func (EditFile) Execute(_ context.Context, call models.ToolCall) tool.Output {
	var in struct {
		Path   string `json:"path"`
		OldStr string `json:"old_str"`
		NewStr string `json:"new_str"`
	}
	if err := decodeArgs(call.Args, &in); err != nil {
		return tool.Errorf("invalid arguments: %s", err)
	}
	if out, bad := requireString(in.Path, "path"); bad {
		return out
	}
	if out, bad := requireString(in.OldStr, "old_str"); bad {
		return out
	}

	data, err := os.ReadFile(in.Path)
	if err != nil {
		return tool.Errorf("read %s: %s", in.Path, err)
	}
	content := string(data)

	count := strings.Count(content, in.OldStr)
	if count == 0 {
		return tool.Errorf("old_str not found in %s (0 matches)", in.Path)
	}
	if count > 1 {
		return tool.Errorf("old_str is not unique in %s (%d matches)", in.Path, count)
	}

	updated := strings.Replace(content, in.OldStr, in.NewStr, 1)
	info, err := os.Stat(in.Path)
	mode := os.FileMode(0o644)
	if err == nil {
		mode = info.Mode()
	}
	if err := os.WriteFile(in.Path, []byte(updated), mode); err != nil {
		return tool.Errorf("write %s: %s", in.Path, err)
	}
	return tool.Text("edited " + in.Path)
}
