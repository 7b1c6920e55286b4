package gdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/sven-run/sven/internal/tool"
	"github.com/sven-run/sven/pkg/models"
)

// Command implements "gdb_command": runs a GDB CLI command in the active
// session and returns its console output (§4.9).
type Command struct {
	Session *Session
}

func (Command) Name() string { return "gdb_command" }
func (Command) Description() string {
	return "Run a GDB command in the active debugging session and return its output. " +
		"Examples: 'continue', 'break main', 'info registers', 'x/10x 0x20000000', " +
		"'backtrace', 'load', 'monitor reset halt'. Requires gdb_connect to have been called first."
}
func (Command) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command":       map[string]any{"type": "string", "description": "GDB command to execute (e.g., 'info registers', 'break main')."},
			"capture_lines": map[string]any{"type": "integer", "description": "Maximum number of console output lines to capture (default 40)."},
		},
		"required": []any{"command"},
	}
}
func (Command) DefaultPolicy() models.ApprovalPolicy { return models.PolicyAuto }
func (Command) Modes() []models.AgentMode            { return []models.AgentMode{models.ModeAgent} }
func (Command) OutputCategory() tool.OutputCategory  { return tool.CategoryHeadTail }

type commandArgs struct {
	Command      string `json:"command"`
	CaptureLines int    `json:"capture_lines"`
}

func (t Command) Execute(ctx context.Context, call models.ToolCall) tool.Output {
	var args commandArgs
	if err := decodeArgs(call.Args, &args); err != nil {
		return tool.Errorf("invalid arguments: %s", err)
	}
	if strings.TrimSpace(args.Command) == "" {
		return tool.Error("missing required parameter: command")
	}
	captureLines := args.CaptureLines
	if captureLines <= 0 {
		captureLines = 40
	}

	s := t.Session
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasClient() {
		return tool.Error("No active GDB session. Call gdb_connect first.")
	}

	res, err := s.client.RawConsoleCmdForOutput(ctx, args.Command, captureLines, s.cfg.CommandTimeout)
	if err != nil {
		return tool.Errorf("GDB command error: %s", err)
	}
	output := strings.Join(res.Lines, "\n")
	if output == "" {
		return tool.Text(fmt.Sprintf("[command %q produced no output]", args.Command))
	}
	return tool.Text(output)
}
