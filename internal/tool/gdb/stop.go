package gdb

import (
	"context"

	"github.com/sven-run/sven/internal/tool"
	"github.com/sven-run/sven/pkg/models"
)

// Stop implements "gdb_stop": tears the session down, dropping the MI
// client first so gdb-multiarch exits cleanly, then killing the server
// process if sven spawned it; a discovered server is left running (§4.9).
type Stop struct {
	Session *Session
}

func (Stop) Name() string { return "gdb_stop" }
func (Stop) Description() string {
	return "Stop the active GDB debugging session: disconnect gdb-multiarch and kill the GDB server " +
		"process (JLinkGDBServer, OpenOCD, etc.). Always call this when done debugging to clean up " +
		"background processes. A server that gdb_start_server discovered rather than spawned is left running."
}
func (Stop) Parameters() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}
func (Stop) DefaultPolicy() models.ApprovalPolicy { return models.PolicyAuto }
func (Stop) Modes() []models.AgentMode            { return []models.AgentMode{models.ModeAgent} }
func (Stop) OutputCategory() tool.OutputCategory  { return tool.CategoryText }

func (t Stop) Execute(_ context.Context, _ models.ToolCall) tool.Output {
	s := t.Session
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasServer() && !s.hasClient() {
		return tool.Text("No active GDB session to stop.")
	}

	spawned := s.server != nil
	s.clear()
	if !spawned {
		return tool.Text("GDB session stopped. No server process started by sven was running, so none was killed.")
	}
	return tool.Text("GDB session stopped. Server process killed.")
}
