package gdb

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sven-run/sven/internal/tool"
	"github.com/sven-run/sven/internal/tool/gdb/mi"
	"github.com/sven-run/sven/pkg/models"
)

// Connect implements "gdb_connect": spawns gdb-multiarch and attaches it
// to a running GDB server via "target remote" (§4.9).
type Connect struct {
	Session *Session
}

func (Connect) Name() string { return "gdb_connect" }
func (Connect) Description() string {
	return "Spawn gdb-multiarch and connect it to a running GDB server via 'target remote'. " +
		"If gdb_start_server was called previously the port is inferred automatically. " +
		"You can optionally supply an ELF binary path so GDB loads debug symbols. " +
		"After connecting, use gdb_command to run debugger commands."
}
func (Connect) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"host":       map[string]any{"type": "string", "description": "GDB server host (default 'localhost')."},
			"port":       map[string]any{"type": "integer", "description": "GDB server port. Inferred from gdb_start_server if omitted."},
			"executable": map[string]any{"type": "string", "description": "Path to the ELF binary for debug symbol loading (optional)."},
			"gdb_path":   map[string]any{"type": "string", "description": "Path or name of the GDB executable to use (default 'gdb-multiarch')."},
		},
	}
}
func (Connect) DefaultPolicy() models.ApprovalPolicy { return models.PolicyAuto }
func (Connect) Modes() []models.AgentMode            { return []models.AgentMode{models.ModeAgent} }
func (Connect) OutputCategory() tool.OutputCategory  { return tool.CategoryText }

type connectArgs struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Executable string `json:"executable"`
	GDBPath    string `json:"gdb_path"`
}

func (t Connect) Execute(ctx context.Context, call models.ToolCall) tool.Output {
	var args connectArgs
	if err := decodeArgs(call.Args, &args); err != nil {
		return tool.Errorf("invalid arguments: %s", err)
	}

	s := t.Session
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasClient() {
		return tool.Error("Already connected to a GDB session. Use gdb_stop to end it first.")
	}

	host := args.Host
	if host == "" {
		host = "localhost"
	}
	port := args.Port
	if port == 0 {
		if s.serverAddr != "" {
			if _, p, err := splitHostPort(s.serverAddr); err == nil {
				port = p
			}
		}
		if port == 0 {
			port = 2331
		}
	}
	targetAddr := fmt.Sprintf("%s:%d", host, port)

	gdbPath := args.GDBPath
	if gdbPath == "" {
		gdbPath = s.cfg.GDBPath
	}

	var spawnArgs []string
	if args.Executable != "" {
		spawnArgs = append(spawnArgs, args.Executable)
	}
	client, err := mi.New(ctx, gdbPath, spawnArgs...)
	if err != nil {
		return tool.Errorf("Failed to spawn %s: %s. Is gdb-multiarch installed?", gdbPath, err)
	}
	if err := client.AwaitReady(ctx); err != nil {
		return tool.Errorf("GDB startup timeout: %s", err)
	}

	res, err := client.RawConsoleCmdForOutput(ctx, "target remote "+targetAddr, 40, s.cfg.CommandTimeout)
	output := strings.Join(res.Lines, "\n")
	lower := strings.ToLower(output)
	if err != nil {
		return tool.Errorf("Error connecting to %s: %s", targetAddr, err)
	}
	if strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such file") || strings.Contains(lower, "error") {
		return tool.Errorf("Failed to connect to %s:\n%s", targetAddr, output)
	}

	s.setClient(client)

	msg := fmt.Sprintf("Connected to GDB server at %s.\nGDB executable: %s\n", targetAddr, gdbPath)
	if args.Executable != "" {
		msg += fmt.Sprintf("Symbols loaded from: %s\n", args.Executable)
	}
	msg += "Use gdb_command to run debugger commands."
	return tool.Text(msg)
}

func splitHostPort(addr string) (string, int, error) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return "", 0, fmt.Errorf("no port in %q", addr)
	}
	p, err := strconv.Atoi(addr[idx+1:])
	if err != nil {
		return "", 0, err
	}
	return addr[:idx], p, nil
}
