package gdb

import (
	"context"
	"net"
	"strconv"
	"testing"

	"github.com/sven-run/sven/pkg/models"
)

func call(name, args string) models.ToolCall {
	return models.ToolCall{ID: "t1", Name: name, Args: args}
}

func TestStatusReportsIdleSession(t *testing.T) {
	s := NewSession(DefaultConfig())
	out := Status{Session: s}.Execute(context.Background(), call("gdb_status", "{}"))
	if out.IsError {
		t.Fatalf("unexpected error: %s", out.Content())
	}
	if !contains(out.Content(), "not started") || !contains(out.Content(), "not connected") {
		t.Fatalf("unexpected status: %s", out.Content())
	}
}

func TestStopWithNoSessionIsANoOp(t *testing.T) {
	s := NewSession(DefaultConfig())
	out := Stop{Session: s}.Execute(context.Background(), call("gdb_stop", "{}"))
	if out.IsError {
		t.Fatalf("unexpected error: %s", out.Content())
	}
	if !contains(out.Content(), "No active GDB session") {
		t.Fatalf("unexpected output: %s", out.Content())
	}
}

func TestCommandFailsWithoutConnection(t *testing.T) {
	s := NewSession(DefaultConfig())
	out := Command{Session: s}.Execute(context.Background(), call("gdb_command", `{"command":"info registers"}`))
	if !out.IsError || !contains(out.Content(), "No active GDB session") {
		t.Fatalf("expected no-session error, got %+v", out)
	}
}

func TestCommandRequiresCommandArg(t *testing.T) {
	s := NewSession(DefaultConfig())
	out := Command{Session: s}.Execute(context.Background(), call("gdb_command", `{}`))
	if !out.IsError {
		t.Fatalf("expected error for missing command")
	}
}

func TestInterruptFailsWithoutConnection(t *testing.T) {
	s := NewSession(DefaultConfig())
	out := Interrupt{Session: s}.Execute(context.Background(), call("gdb_interrupt", "{}"))
	if !out.IsError || !contains(out.Content(), "No active GDB session") {
		t.Fatalf("expected no-session error, got %+v", out)
	}
}

func TestWaitStoppedFailsWithoutConnection(t *testing.T) {
	s := NewSession(DefaultConfig())
	out := WaitStopped{Session: s}.Execute(context.Background(), call("gdb_wait_stopped", "{}"))
	if !out.IsError {
		t.Fatalf("expected error")
	}
}

func TestStartServerDiscoversListeningPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	s := NewSession(DefaultConfig())
	out := StartServer{Session: s}.Execute(context.Background(), call("gdb_start_server",
		`{"host":"127.0.0.1","port":`+strconv.Itoa(port)+`}`))
	if out.IsError {
		t.Fatalf("unexpected error: %s", out.Content())
	}
	if !s.hasServer() {
		t.Fatalf("expected server to be recorded")
	}
}

func TestStartServerRequiresPortWithCommand(t *testing.T) {
	s := NewSession(DefaultConfig())
	out := StartServer{Session: s}.Execute(context.Background(), call("gdb_start_server", `{"command":"true"}`))
	if !out.IsError {
		t.Fatalf("expected error requiring port")
	}
}

func TestStartServerRejectsDoubleStart(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	s := NewSession(DefaultConfig())
	tool := StartServer{Session: s}
	first := tool.Execute(context.Background(), call("gdb_start_server", `{"host":"127.0.0.1","port":`+strconv.Itoa(port)+`}`))
	if first.IsError {
		t.Fatalf("first call failed: %s", first.Content())
	}
	second := tool.Execute(context.Background(), call("gdb_start_server", `{"host":"127.0.0.1","port":`+strconv.Itoa(port)+`}`))
	if !second.IsError {
		t.Fatalf("expected double-start to fail")
	}
}

func TestToolsBuildsSevenTools(t *testing.T) {
	tools := Tools(DefaultConfig())
	if len(tools) != 7 {
		t.Fatalf("expected 7 tools, got %d", len(tools))
	}
	names := map[string]bool{}
	for _, tl := range tools {
		names[tl.Name()] = true
	}
	for _, want := range []string{
		"gdb_start_server", "gdb_connect", "gdb_command",
		"gdb_interrupt", "gdb_wait_stopped", "gdb_status", "gdb_stop",
	} {
		if !names[want] {
			t.Fatalf("missing tool %s", want)
		}
	}
}

func contains(s, sub string) bool {
	return len(s) >= len(sub) && (func() bool {
		for i := 0; i+len(sub) <= len(s); i++ {
			if s[i:i+len(sub)] == sub {
				return true
			}
		}
		return false
	})()
}
