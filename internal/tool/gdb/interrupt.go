package gdb

import (
	"context"
	"fmt"
	"time"

	"github.com/sven-run/sven/internal/tool"
	"github.com/sven-run/sven/internal/tool/gdb/mi"
	"github.com/sven-run/sven/pkg/models"
)

const interruptPollInterval = 100 * time.Millisecond

// Interrupt implements "gdb_interrupt": halts a running target, equivalent
// to Ctrl+C at a GDB prompt (§4.9). It probes the cached status first and
// returns immediately if the target is already stopped — sending
// -exec-interrupt to an already-halted target confuses some GDB servers
// (e.g. JLinkGDBServer) into emitting spurious notifications.
type Interrupt struct {
	Session *Session
}

func (Interrupt) Name() string { return "gdb_interrupt" }
func (Interrupt) Description() string {
	return "Interrupt the currently running target (equivalent to pressing Ctrl+C in a GDB prompt). " +
		"Sends -exec-interrupt and waits for the target to halt. Use this when the target is " +
		"running and you need to pause it to inspect state. Requires gdb_connect to have been called first."
}
func (Interrupt) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"timeout_secs": map[string]any{"type": "integer", "description": "Seconds to wait for the target to halt after interrupt (default 5)."},
		},
	}
}
func (Interrupt) DefaultPolicy() models.ApprovalPolicy { return models.PolicyAuto }
func (Interrupt) Modes() []models.AgentMode            { return []models.AgentMode{models.ModeAgent} }
func (Interrupt) OutputCategory() tool.OutputCategory  { return tool.CategoryText }

type interruptArgs struct {
	TimeoutSecs int `json:"timeout_secs"`
}

func (t Interrupt) Execute(ctx context.Context, call models.ToolCall) tool.Output {
	var args interruptArgs
	if err := decodeArgs(call.Args, &args); err != nil {
		return tool.Errorf("invalid arguments: %s", err)
	}
	timeoutSecs := args.TimeoutSecs
	if timeoutSecs <= 0 {
		timeoutSecs = 5
	}
	timeout := time.Duration(timeoutSecs) * time.Second

	s := t.Session
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasClient() {
		return tool.Error("No active GDB session. Call gdb_connect first.")
	}

	if st := s.client.Status(); st.Kind == mi.Stopped {
		return tool.Text(fmt.Sprintf("Target is already stopped.\n%s", st))
	}

	if _, err := s.client.RawCmd(ctx, "-exec-interrupt", s.cfg.CommandTimeout); err != nil {
		return tool.Errorf("Failed to send interrupt: %s", err)
	}

	deadline := time.Now().Add(timeout)
	for {
		st := s.client.Status()
		if st.Kind == mi.Stopped {
			return tool.Text(fmt.Sprintf("Target interrupted and stopped.\n%s", st))
		}
		if time.Now().After(deadline) {
			return tool.Errorf("Target did not stop within %ds", timeoutSecs)
		}
		select {
		case <-ctx.Done():
			return tool.Errorf("Target did not stop: %s", ctx.Err())
		case <-time.After(interruptPollInterval):
		}
	}
}
