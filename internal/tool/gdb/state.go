// Package gdb implements the §4.9 GDB session tool-group: seven
// cooperating tools sharing one exclusively-locked session record that
// drives a gdb-multiarch child process over GDB/MI.
package gdb

import (
	"context"
	"os/exec"
	"sync"
	"time"

	"github.com/sven-run/sven/internal/tool/gdb/mi"
)

// Config holds the operator-configurable knobs for the GDB tool-group.
type Config struct {
	// GDBPath is the GDB executable to spawn (default "gdb-multiarch").
	GDBPath string
	// CommandTimeout bounds how long a single MI command may run before
	// it's reported as timed out (default 30s).
	CommandTimeout time.Duration
	// ServerStartTimeout bounds how long gdb_start_server waits for a
	// spawned server's listening port to appear (default 5s).
	ServerStartTimeout time.Duration
}

// DefaultConfig returns sven's GDB defaults.
func DefaultConfig() Config {
	return Config{
		GDBPath:            "gdb-multiarch",
		CommandTimeout:     30 * time.Second,
		ServerStartTimeout: 5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	if c.GDBPath == "" {
		c.GDBPath = "gdb-multiarch"
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 30 * time.Second
	}
	if c.ServerStartTimeout <= 0 {
		c.ServerStartTimeout = 5 * time.Second
	}
	return c
}

// Session is the shared runtime state for one active (or idle) GDB
// debugging session: an optional server child process, an optional MI
// client connected to it, and the connected flag. Every GDB tool locks mu
// for the duration of its Execute call, which is what makes the state
// machine's transitions atomic with respect to each other.
type Session struct {
	mu sync.Mutex

	cfg Config

	server     *exec.Cmd
	serverAddr string

	client    *mi.Client
	connected bool
}

// NewSession builds an idle GDB session record.
func NewSession(cfg Config) *Session {
	return &Session{cfg: cfg.withDefaults()}
}

// hasServer reports whether a server address is known, whether sven spawned
// the process itself or merely discovered one already listening.
func (s *Session) hasServer() bool { return s.serverAddr != "" }
func (s *Session) hasClient() bool { return s.client != nil }

// setServer records addr as the server's address; cmd is nil when the
// server was discovered rather than spawned by sven, in which case clear
// leaves it running (sven does not own its lifecycle).
func (s *Session) setServer(cmd *exec.Cmd, addr string) {
	s.server = cmd
	s.serverAddr = addr
}

func (s *Session) setClient(c *mi.Client) {
	s.client = c
	s.connected = true
}

// clear tears down whatever is live: the MI client first (closing its
// stdin lets gdb-multiarch exit on its own), then the server process sven
// spawned, which is killed and given up to 2s to be reaped.
func (s *Session) clear() {
	if s.client != nil {
		s.client.Quit()
		_ = s.client.Wait(2 * time.Second)
		s.client = nil
	}
	s.connected = false

	if s.server != nil {
		_ = s.server.Process.Kill()
		done := make(chan struct{})
		go func() { _ = s.server.Wait(); close(done) }()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
		s.server = nil
	}
	s.serverAddr = ""
}

// probeExisting checks whether something is already listening on addr,
// used by gdb_start_server to detect an externally-started server instead
// of spawning a duplicate one.
func probeExisting(ctx context.Context, addr string) bool {
	d := &netDialer{}
	ok := d.canConnect(ctx, addr)
	return ok
}
