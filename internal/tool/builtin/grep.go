package builtin

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sven-run/sven/internal/tool"
	"github.com/sven-run/sven/pkg/models"
)

// Grep implements the "grep" tool: regex content search across files
// rooted at a base directory (§4.2).
type Grep struct{}

func (Grep) Name() string        { return "grep" }
func (Grep) Description() string { return "Search file contents with a regular expression." }
func (Grep) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern":    map[string]any{"type": "string"},
			"path":       map[string]any{"type": "string", "description": "Base directory, defaults to the project root."},
			"glob":       map[string]any{"type": "string", "description": "Restrict to files matching this glob."},
			"limit":      map[string]any{"type": "integer", "maximum": 500},
			"ignorecase": map[string]any{"type": "boolean"},
		},
		"required": []any{"pattern"},
	}
}
func (Grep) DefaultPolicy() models.ApprovalPolicy { return models.PolicyAuto }
func (Grep) Modes() []models.AgentMode            { return nil }
func (Grep) OutputCategory() tool.OutputCategory  { return tool.CategoryMatchList }

func (Grep) Execute(_ context.Context, call models.ToolCall) tool.Output {
	var in struct {
		Pattern    string `json:"pattern"`
		Path       string `json:"path"`
		Glob       string `json:"glob"`
		Limit      int    `json:"limit"`
		IgnoreCase bool   `json:"ignorecase"`
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
	limit := clampInt(in.Limit, 200, 500)

	expr := in.Pattern
	if in.IgnoreCase {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return tool.Errorf("invalid pattern: %s", err)
	}

	var b strings.Builder
	count := 0
	truncated := false
	walkErr := filepath.Walk(root, func(p string, info os.FileInfo, werr error) error {
		if werr != nil {
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
		if in.Glob != "" {
			ok, _ := filepath.Match(in.Glob, filepath.ToSlash(filepath.Base(rel)))
			if !ok {
				return nil
			}
		}
		if count >= limit {
			truncated = true
			return filepath.SkipAll
		}

		f, oerr := os.Open(p)
		if oerr != nil {
			return nil
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			if count >= limit {
				truncated = true
				break
			}
			line := scanner.Text()
			if re.MatchString(line) {
				fmt.Fprintf(&b, "%s:%d:%s\n", rel, lineNo, line)
				count++
			}
		}
		return nil
	})
	if walkErr != nil {
		return tool.Errorf("grep %s: %s", in.Pattern, walkErr)
	}

	if count == 0 {
		return tool.Text("(no matches)")
	}
	if truncated {
		b.WriteString("[truncated]\n")
	}
	return tool.Text(b.String())
}
