package builtin

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/sven-run/sven/internal/tool"
	"github.com/sven-run/sven/pkg/models"
)

// MaxTerminalBytes is the truncation ceiling for run-terminal output (§4.2).
const MaxTerminalBytes = 100_000

// defaultTerminalTimeout matches §5's "shell commands use operator-
// configurable timeout (default 30s)".
const defaultTerminalTimeout = 30 * time.Second

// RunTerminal implements the "run terminal" tool: runs a command through
// the shell, reporting stdout then a [stderr] section (§4.2).
type RunTerminal struct{}

func (RunTerminal) Name() string        { return "run_terminal" }
func (RunTerminal) Description() string { return "Run a shell command and capture its output." }
func (RunTerminal) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command":      map[string]any{"type": "string"},
			"workdir":      map[string]any{"type": "string"},
			"timeout_secs": map[string]any{"type": "integer"},
		},
		"required": []any{"command"},
	}
}
func (RunTerminal) DefaultPolicy() models.ApprovalPolicy { return models.PolicyAsk }
func (RunTerminal) Modes() []models.AgentMode            { return []models.AgentMode{models.ModeAgent} }
func (RunTerminal) OutputCategory() tool.OutputCategory  { return tool.CategoryHeadTail }

func (RunTerminal) Execute(ctx context.Context, call models.ToolCall) tool.Output {
	var in struct {
		Command     string `json:"command"`
		Workdir     string `json:"workdir"`
		TimeoutSecs int    `json:"timeout_secs"`
	}
	if err := decodeArgs(call.Args, &in); err != nil {
		return tool.Errorf("invalid arguments: %s", err)
	}
	if out, bad := requireString(in.Command, "command"); bad {
		return out
	}

	timeout := defaultTerminalTimeout
	if in.TimeoutSecs > 0 {
		timeout = time.Duration(in.TimeoutSecs) * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", in.Command)
	if in.Workdir != "" {
		cmd.Dir = in.Workdir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	result := truncateBytes(stdout.String(), MaxTerminalBytes)
	if stderr.Len() > 0 {
		result += "\n[stderr]\n" + truncateBytes(stderr.String(), MaxTerminalBytes)
	}

	if runCtx.Err() != nil {
		return tool.Errorf("command timed out after %s", timeout)
	}
	if runErr != nil {
		if result == "" {
			result = runErr.Error()
		}
		return tool.Error(result)
	}
	if result == "" {
		result = "(no output)"
	}
	return tool.Text(result)
}

func truncateBytes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + fmt.Sprintf("\n[truncated at %d bytes]", max)
}
