package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sven-run/sven/internal/tool"
	"github.com/sven-run/sven/pkg/models"
)

// ListDir implements the "list dir" tool: sorted, dirs-first listing,
// excluding the standard noise directories (§4.2).
type ListDir struct{}

func (ListDir) Name() string        { return "list_dir" }
func (ListDir) Description() string { return "List a directory's entries, dirs first, sorted." }
func (ListDir) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":  map[string]any{"type": "string"},
			"depth": map[string]any{"type": "integer", "maximum": 5},
			"limit": map[string]any{"type": "integer", "maximum": 100},
		},
		"required": []any{"path"},
	}
}
func (ListDir) DefaultPolicy() models.ApprovalPolicy { return models.PolicyAuto }
func (ListDir) Modes() []models.AgentMode            { return nil }
func (ListDir) OutputCategory() tool.OutputCategory  { return tool.CategoryText }

type listEntry struct {
	path  string
	isDir bool
}

func (ListDir) Execute(_ context.Context, call models.ToolCall) tool.Output {
	var in struct {
		Path  string `json:"path"`
		Depth int    `json:"depth"`
		Limit int    `json:"limit"`
	}
	if err := decodeArgs(call.Args, &in); err != nil {
		return tool.Errorf("invalid arguments: %s", err)
	}
	if out, bad := requireString(in.Path, "path"); bad {
		return out
	}
	depth := clampInt(in.Depth, 1, 5)
	limit := clampInt(in.Limit, 100, 100)

	var entries []listEntry
	truncated := false
	err := filepath.Walk(in.Path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if p == in.Path {
			return nil
		}
		rel, _ := filepath.Rel(in.Path, p)
		if isExcluded(rel) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.Count(filepath.ToSlash(rel), "/")+1 > depth {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if len(entries) >= limit {
			truncated = true
			return filepath.SkipAll
		}
		entries = append(entries, listEntry{path: rel, isDir: info.IsDir()})
		return nil
	})
	if err != nil {
		return tool.Errorf("list %s: %s", in.Path, err)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].isDir != entries[j].isDir {
			return entries[i].isDir
		}
		return entries[i].path < entries[j].path
	})

	var b strings.Builder
	for _, e := range entries {
		if e.isDir {
			fmt.Fprintf(&b, "%s/\n", e.path)
		} else {
			fmt.Fprintf(&b, "%s\n", e.path)
		}
	}
	if truncated {
		fmt.Fprintf(&b, "[truncated at %d entries]\n", limit)
	}
	if b.Len() == 0 {
		return tool.Text("(empty)")
	}
	return tool.Text(b.String())
}
