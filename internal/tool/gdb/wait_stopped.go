package gdb

import (
	"context"
	"fmt"
	"time"

	"github.com/sven-run/sven/internal/tool"
	"github.com/sven-run/sven/internal/tool/gdb/mi"
	"github.com/sven-run/sven/pkg/models"
)

// waitPollInterval matches the cadence of the polling loop below. Polling
// the cached status rather than registering an async awaiter avoids
// leaving stale entries behind in the MI reader after a timeout, which
// would otherwise desync it against the next *stopped notification.
const waitPollInterval = 100 * time.Millisecond

// WaitStopped implements "gdb_wait_stopped": blocks until the target
// halts and reports where (§4.9).
type WaitStopped struct {
	Session *Session
}

func (WaitStopped) Name() string { return "gdb_wait_stopped" }
func (WaitStopped) Description() string {
	return "Wait for the target to halt and return where it stopped. Call this after " +
		"gdb_command('continue'), gdb_command('step'), gdb_command('next'), gdb_command('stepi'), " +
		"gdb_command('nexti'), or gdb_command('finish') to block until execution pauses. Returns the " +
		"stop reason (breakpoint, watchpoint, signal, etc.), current PC, function name, file, and line. " +
		"Set a breakpoint with gdb_command('break <location>'), call gdb_command('continue'), then call " +
		"this tool to land at the breakpoint."
}
func (WaitStopped) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"timeout_secs": map[string]any{
				"type":        "integer",
				"description": "Seconds to wait for the target to halt (default 30). Increase for long-running tests or slow targets.",
			},
		},
	}
}
func (WaitStopped) DefaultPolicy() models.ApprovalPolicy { return models.PolicyAuto }
func (WaitStopped) Modes() []models.AgentMode            { return []models.AgentMode{models.ModeAgent} }
func (WaitStopped) OutputCategory() tool.OutputCategory  { return tool.CategoryHeadTail }

type waitStoppedArgs struct {
	TimeoutSecs int `json:"timeout_secs"`
}

func (t WaitStopped) Execute(ctx context.Context, call models.ToolCall) tool.Output {
	var args waitStoppedArgs
	if err := decodeArgs(call.Args, &args); err != nil {
		return tool.Errorf("invalid arguments: %s", err)
	}
	timeoutSecs := args.TimeoutSecs
	if timeoutSecs <= 0 {
		timeoutSecs = 30
	}

	s := t.Session
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasClient() {
		return tool.Error("No active GDB session. Call gdb_connect first.")
	}
	client := s.client

	deadline := time.Now().Add(time.Duration(timeoutSecs) * time.Second)
	for {
		st := client.Status()
		switch st.Kind {
		case mi.Stopped:
			return tool.Text(fmt.Sprintf("Target stopped.\nReason: %s\nLocation: %s", st.Stopped.Reason, stoppedLocation(st.Stopped)))
		case mi.Exited:
			return tool.Errorf("Target exited with reason: %s", st.ExitReason)
		default:
			if time.Now().After(deadline) {
				return tool.Errorf(
					"Target did not stop within %ds.\n"+
						"-> Is the target running? (check with gdb_status)\n"+
						"-> Did you call gdb_command('continue') or gdb_command('step') first?\n"+
						"-> Increase timeout_secs if the target needs longer to reach the breakpoint.\n"+
						"-> Use gdb_interrupt to forcibly halt the target.", timeoutSecs)
			}
			select {
			case <-ctx.Done():
				return tool.Errorf("Target did not stop: %s", ctx.Err())
			case <-time.After(waitPollInterval):
			}
		}
	}
}

func stoppedLocation(info mi.StoppedInfo) string {
	switch {
	case info.Function != "" && info.File != "":
		return fmt.Sprintf("%s (%s:%d)", info.Function, info.File, info.Line)
	case info.Function != "":
		return info.Function
	default:
		return fmt.Sprintf("PC=0x%x", info.Address)
	}
}
