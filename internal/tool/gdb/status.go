package gdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/sven-run/sven/internal/tool"
	"github.com/sven-run/sven/internal/tool/gdb/mi"
	"github.com/sven-run/sven/pkg/models"
)

// Status implements "gdb_status": a non-blocking, cached view of the
// session so the operator can orient without disturbing execution (§4.9).
type Status struct {
	Session *Session
}

func (Status) Name() string { return "gdb_status" }
func (Status) Description() string {
	return "Return the current state of the GDB debugging session without interrupting the target. " +
		"Reports: whether a GDB server is running, whether gdb-multiarch is connected, and whether " +
		"the target is stopped or running. When stopped, includes current PC, function, file, and line. " +
		"Use this to orient yourself before sending commands, or to check if the target is still " +
		"running after a gdb_command('continue')."
}
func (Status) Parameters() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}
func (Status) DefaultPolicy() models.ApprovalPolicy { return models.PolicyAuto }
func (Status) Modes() []models.AgentMode            { return []models.AgentMode{models.ModeAgent} }
func (Status) OutputCategory() tool.OutputCategory  { return tool.CategoryText }

func (t Status) Execute(_ context.Context, _ models.ToolCall) tool.Output {
	s := t.Session
	s.mu.Lock()
	defer s.mu.Unlock()

	var serverStatus string
	if s.hasServer() {
		serverStatus = fmt.Sprintf("Server: running (%s)", s.serverAddr)
	} else {
		serverStatus = "Server: not started"
	}

	if !s.hasClient() {
		return tool.Text(fmt.Sprintf(
			"%s\nGDB: not connected\nCall gdb_start_server then gdb_connect to start a session. "+
				"If the server is already running externally, gdb_start_server will detect it automatically.",
			serverStatus))
	}

	general := s.client.PopGeneral()
	var recent []string
	for _, m := range general {
		switch m.Kind {
		case "console":
			recent = append(recent, m.Text)
		case "log":
			recent = append(recent, "[log] "+m.Text)
		case "target":
			recent = append(recent, "[target] "+m.Text)
		}
	}

	var targetStatus string
	st := s.client.Status()
	switch st.Kind {
	case mi.Stopped:
		targetStatus = fmt.Sprintf("Target: stopped\nReason: %s\nAt: %s\nPC: 0x%x",
			st.Stopped.Reason, stoppedLocation(st.Stopped), st.Stopped.Address)
	case mi.Running:
		targetStatus = "Target: running\n-> Use gdb_wait_stopped to wait for it to halt, or\n-> Use gdb_interrupt to forcibly pause it."
	case mi.Exited:
		targetStatus = fmt.Sprintf("Target: exited (%s)", st.ExitReason)
	default:
		targetStatus = "Target: not started (GDB connected but no target loaded or program not run)"
	}

	parts := []string{serverStatus, "GDB: connected", targetStatus}
	if len(recent) > 0 {
		parts = append(parts, "Pending output:\n"+strings.Join(recent, "\n"))
	}
	return tool.Text(strings.Join(parts, "\n"))
}
