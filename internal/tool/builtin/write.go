package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sven-run/sven/internal/tool"
	"github.com/sven-run/sven/pkg/models"
)

// WriteFile implements the "write file" tool: writes bytes, creating
// parent directories, with an append mode. Agent-mode only (§4.2).
type WriteFile struct{}

func (WriteFile) Name() string        { return "write_file" }
func (WriteFile) Description() string { return "Write content to a file, creating parent directories." }
func (WriteFile) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string"},
			"content": map[string]any{"type": "string"},
			"append":  map[string]any{"type": "boolean"},
		},
		"required": []any{"path", "content"},
	}
}
func (WriteFile) DefaultPolicy() models.ApprovalPolicy { return models.PolicyAsk }
func (WriteFile) Modes() []models.AgentMode            { return []models.AgentMode{models.ModeAgent} }
func (WriteFile) OutputCategory() tool.OutputCategory  { return tool.CategoryText }

func (WriteFile) Execute(_ context.Context, call models.ToolCall) tool.Output {
	var in struct {
		Path    string `json:"path"`
		Content string `json:"content"`
		Append  bool   `json:"append"`
	}
	if err := decodeArgs(call.Args, &in); err != nil {
		return tool.Errorf("invalid arguments: %s", err)
	}
	if out, bad := requireString(in.Path, "path"); bad {
		return out
	}

	if dir := filepath.Dir(in.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return tool.Errorf("create parent directories for %s: %s", in.Path, err)
		}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if in.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(in.Path, flags, 0o644)
	if err != nil {
		return tool.Errorf("open %s: %s", in.Path, err)
	}
	defer f.Close()

	n, err := f.WriteString(in.Content)
	if err != nil {
		return tool.Errorf("write %s: %s", in.Path, err)
	}
	return tool.Text(fmt.Sprintf("wrote %d bytes to %s", n, in.Path))
}
