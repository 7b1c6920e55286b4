package gdb

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/sven-run/sven/internal/tool"
	"github.com/sven-run/sven/pkg/models"
)

// commonPorts are probed, in order, when gdb_start_server is asked to
// discover an already-running server without an explicit port: J-Link's
// default, OpenOCD's default, and a generic remote-stub port.
var commonPorts = []string{"2331", "3333", "1234"}

// StartServer implements "gdb_start_server": spawns a GDB server command
// (e.g. JLinkGDBServer, openocd) or, if none is given, discovers one
// already running via a .gdbinit hint or a short port scan (§4.9).
type StartServer struct {
	Session *Session
}

func (StartServer) Name() string { return "gdb_start_server" }
func (StartServer) Description() string {
	return "Start (or discover) a GDB remote server: spawn a command such as " +
		"'JLinkGDBServer -device STM32F407VG -if SWD' or 'openocd -f board.cfg', " +
		"or, if no command is given, detect a server already listening via a " +
		".gdbinit hint or a scan of common ports (2331, 3333, 1234). " +
		"Follow with gdb_connect."
}
func (StartServer) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "Full shell command line to launch the GDB server. Omit to auto-discover an already-running one.",
			},
			"host": map[string]any{"type": "string", "description": "Server host (default localhost)."},
			"port": map[string]any{"type": "integer", "description": "Server port. Required to spawn a command; optional for discovery."},
			"gdbinit_path": map[string]any{
				"type":        "string",
				"description": "Path to a .gdbinit file to scan for a 'target remote <addr>' hint (default '.gdbinit').",
			},
		},
	}
}
func (StartServer) DefaultPolicy() models.ApprovalPolicy { return models.PolicyAsk }
func (StartServer) Modes() []models.AgentMode            { return []models.AgentMode{models.ModeAgent} }
func (StartServer) OutputCategory() tool.OutputCategory  { return tool.CategoryText }

type startServerArgs struct {
	Command     string `json:"command"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	GdbinitPath string `json:"gdbinit_path"`
}

func (t StartServer) Execute(ctx context.Context, call models.ToolCall) tool.Output {
	var args startServerArgs
	if err := decodeArgs(call.Args, &args); err != nil {
		return tool.Errorf("invalid arguments: %s", err)
	}
	host := args.Host
	if host == "" {
		host = "localhost"
	}
	gdbinitPath := args.GdbinitPath
	if gdbinitPath == "" {
		gdbinitPath = ".gdbinit"
	}

	s := t.Session
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasServer() {
		return tool.Errorf("a GDB server is already known at %s. Call gdb_stop first.", s.serverAddr)
	}

	if args.Command != "" {
		if args.Port <= 0 {
			return tool.Error("port is required when spawning a server command")
		}
		addr := fmt.Sprintf("%s:%d", host, args.Port)
		cmd := exec.CommandContext(context.Background(), "sh", "-c", args.Command)
		if err := cmd.Start(); err != nil {
			return tool.Errorf("failed to spawn server command: %s", err)
		}

		deadline := time.Now().Add(s.cfg.ServerStartTimeout)
		reachable := false
		for time.Now().Before(deadline) {
			if probeExisting(ctx, addr) {
				reachable = true
				break
			}
			time.Sleep(100 * time.Millisecond)
		}
		if !reachable {
			_ = cmd.Process.Kill()
			return tool.Errorf("server did not start listening on %s within %s", addr, s.cfg.ServerStartTimeout)
		}

		s.setServer(cmd, addr)
		return tool.Text(fmt.Sprintf("Spawned GDB server, listening at %s.", addr))
	}

	if args.Port > 0 {
		addr := fmt.Sprintf("%s:%d", host, args.Port)
		if probeExisting(ctx, addr) {
			s.setServer(nil, addr)
			return tool.Text(fmt.Sprintf("Found a GDB server already listening at %s.", addr))
		}
		return tool.Errorf("no server reachable at %s", addr)
	}

	if addr, ok := gdbinitHint(gdbinitPath); ok && probeExisting(ctx, addr) {
		s.setServer(nil, addr)
		return tool.Text(fmt.Sprintf("Discovered GDB server at %s via %s.", addr, gdbinitPath))
	}

	for _, port := range commonPorts {
		addr := fmt.Sprintf("%s:%s", host, port)
		if probeExisting(ctx, addr) {
			s.setServer(nil, addr)
			return tool.Text(fmt.Sprintf("Discovered GDB server already listening at %s.", addr))
		}
	}

	return tool.Error("no command given and no server could be discovered (checked .gdbinit and common ports 2331/3333/1234)")
}
