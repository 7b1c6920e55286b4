package builtin

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sven-run/sven/internal/tool"
	"github.com/sven-run/sven/pkg/models"
)

// MaxReadChars is the truncation ceiling for the read-file tool (§4.2).
const MaxReadChars = 200_000

// ReadFile implements the "read file" tool: numbered lines, truncated at
// MaxReadChars, with images auto-detected and returned as an Image part.
type ReadFile struct{}

func (ReadFile) Name() string        { return "read_file" }
func (ReadFile) Description() string { return "Read a file, returning numbered lines or an image." }
func (ReadFile) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":   map[string]any{"type": "string", "description": "File path to read."},
			"offset": map[string]any{"type": "integer", "description": "1-based line to start from."},
			"limit":  map[string]any{"type": "integer", "description": "Maximum number of lines to return."},
		},
		"required": []any{"path"},
	}
}
func (ReadFile) DefaultPolicy() models.ApprovalPolicy { return models.PolicyAuto }
func (ReadFile) Modes() []models.AgentMode            { return nil }
func (ReadFile) OutputCategory() tool.OutputCategory  { return tool.CategoryHeadTail }

func (ReadFile) Execute(_ context.Context, call models.ToolCall) tool.Output {
	var in struct {
		Path   string `json:"path"`
		Offset int    `json:"offset"`
		Limit  int    `json:"limit"`
	}
	if err := decodeArgs(call.Args, &in); err != nil {
		return tool.Errorf("invalid arguments: %s", err)
	}
	if out, bad := requireString(in.Path, "path"); bad {
		return out
	}

	data, err := os.ReadFile(in.Path)
	if err != nil {
		return tool.Errorf("read %s: %s", in.Path, err)
	}

	if mime := detectImageByMagic(data); mime != "" {
		return tool.Image(data, mime)
	}

	start := in.Offset
	if start < 1 {
		start = 1
	}
	limit := in.Limit
	if limit <= 0 {
		limit = 2000
	}

	var b strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	emitted := 0
	truncated := false
	for scanner.Scan() {
		lineNo++
		if lineNo < start {
			continue
		}
		if emitted >= limit {
			truncated = true
			break
		}
		line := scanner.Text()
		fmt.Fprintf(&b, "%6d\t%s\n", lineNo, line)
		emitted++
		if b.Len() > MaxReadChars {
			truncated = true
			break
		}
	}

	result := b.String()
	if len(result) > MaxReadChars {
		result = result[:MaxReadChars]
		truncated = true
	}
	if truncated {
		result += fmt.Sprintf("\n[truncated at %d characters]", MaxReadChars)
	}
	return tool.Text(result)
}

func detectImageByMagic(data []byte) string {
	switch {
	case len(data) >= 8 && string(data[:8]) == "\x89PNG\r\n\x1a\n":
		return "image/png"
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "image/jpeg"
	case len(data) >= 6 && (string(data[:6]) == "GIF87a" || string(data[:6]) == "GIF89a"):
		return "image/gif"
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return "image/webp"
	default:
		return ""
	}
}
