package builtin

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sven-run/sven/internal/tool"
	"github.com/sven-run/sven/pkg/models"
)

// Glob implements the "glob" tool: pattern-matched file discovery rooted at
// a base directory, sorted by modification time descending (§4.2).
type Glob struct{}

func (Glob) Name() string        { return "glob" }
func (Glob) Description() string { return "Find files matching a glob pattern, newest first." }
func (Glob) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{"type": "string", "description": "filepath.Match pattern tried against the relative path, then the base name, e.g. *.go"},
			"path":    map[string]any{"type": "string", "description": "Base directory, defaults to the project root."},
			"limit":   map[string]any{"type": "integer", "maximum": 200},
		},
		"required": []any{"pattern"},
	}
}
func (Glob) DefaultPolicy() models.ApprovalPolicy { return models.PolicyAuto }
func (Glob) Modes() []models.AgentMode            { return nil }
func (Glob) OutputCategory() tool.OutputCategory  { return tool.CategoryHeadTail }

type globMatch struct {
	path    string
	modTime int64
}

func (Glob) Execute(_ context.Context, call models.ToolCall) tool.Output {
	var in struct {
		Pattern string `json:"pattern"`
		Path    string `json:"path"`
		Limit   int    `json:"limit"`
	}
	if err := decodeArgs(call.Args, &in); err != nil {
		return tool.Errorf("invalid arguments: %s", err)
	}
	if out, bad := requireString(in.Pattern, "pattern"); bad {
		return out
	}
	root := in.Path
	if root == "" {
		root = "."
	}
	limit := clampInt(in.Limit, 200, 200)

	var matches []globMatch
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(root, p)
		if isExcluded(rel) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}
		ok, mErr := filepath.Match(in.Pattern, filepath.ToSlash(rel))
		if mErr != nil {
			return mErr
		}
		if !ok {
			ok, _ = filepath.Match(in.Pattern, filepath.ToSlash(filepath.Base(rel)))
		}
		if ok {
			matches = append(matches, globMatch{path: rel, modTime: info.ModTime().UnixNano()})
		}
		return nil
	})
	if err != nil {
		return tool.Errorf("glob %s: %s", in.Pattern, err)
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].modTime > matches[j].modTime })

	truncated := false
	if len(matches) > limit {
		matches = matches[:limit]
		truncated = true
	}

	if len(matches) == 0 {
		return tool.Text("(no matches)")
	}
	var b strings.Builder
	for _, m := range matches {
		b.WriteString(m.path)
		b.WriteByte('\n')
	}
	if truncated {
		b.WriteString("[truncated]\n")
	}
	return tool.Text(b.String())
}
