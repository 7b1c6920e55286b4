package p2p

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sven-run/sven/internal/p2p/identity"
	"github.com/sven-run/sven/internal/p2p/protocol"
	"github.com/sven-run/sven/internal/p2p/roster"
)

func newTestIdentity(t *testing.T) *identity.Identity {
	t.Helper()
	id, err := identity.LoadOrCreate(filepath.Join(t.TempDir(), "identity"))
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	return id
}

// TestServeDialSendTaskRoundTrip brings up a real agent Node over loopback
// TCP, dials it from a second Node, and exercises a full task round trip
// through the wire protocol.
func TestServeDialSendTaskRoundTrip(t *testing.T) {
	serverID := newTestIdentity(t)
	clientID := newTestIdentity(t)

	allowlistPath := filepath.Join(t.TempDir(), "peers.yaml")
	serverAllow, err := roster.LoadAllowlist(allowlistPath)
	if err != nil {
		t.Fatalf("LoadAllowlist: %v", err)
	}
	if err := serverAllow.Add(clientID.PeerID(), roster.RoleOperator, "client"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	serverCard := roster.AgentCard{PeerID: serverID.PeerID(), DisplayName: "server"}

	received := make(chan protocol.TaskRequest, 1)
	server := NewNode(Config{
		Role:       RoleAgent,
		ListenAddr: "127.0.0.1:0",
		Identity:   serverID,
		Allowlist:  serverAllow,
		Roster:     roster.NewRoster(),
		Card:       serverCard,
		OnTask: func(_ context.Context, req protocol.TaskRequest) protocol.TaskResponse {
			received <- req
			return protocol.TaskResponse{
				RequestID: req.ID,
				Agent:     serverCard,
				Result:    []protocol.ContentBlock{protocol.TextBlock("ack: " + req.Description)},
				Status:    protocol.Completed(),
			}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(ctx) }()

	addr := waitForListener(t, server)

	client := NewNode(Config{
		Role:     RoleAgent,
		Identity: clientID,
		Roster:   roster.NewRoster(),
	})

	conn, err := client.Dial(ctx, addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	task := protocol.NewTaskRequest("room-1", "hello", nil)
	resp, err := client.SendTask(ctx, conn, task)
	if err != nil {
		t.Fatalf("SendTask: %v", err)
	}
	if resp.Text() != "ack: hello" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.RequestID != task.ID {
		t.Fatalf("expected response to echo request id %q, got %q", task.ID, resp.RequestID)
	}

	select {
	case req := <-received:
		if req.Description != "hello" {
			t.Fatalf("unexpected request seen server-side: %+v", req)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server never observed the task")
	}

	cancel()
	<-serveErr
}

// TestServeRejectsUnauthorizedPeer confirms a non-nil Allowlist denies a
// peer absent from it, per §4.7's authorization check on Serve.
func TestServeRejectsUnauthorizedPeer(t *testing.T) {
	serverID := newTestIdentity(t)
	clientID := newTestIdentity(t)

	denyAll, err := roster.LoadAllowlist(filepath.Join(t.TempDir(), "peers.yaml"))
	if err != nil {
		t.Fatalf("LoadAllowlist: %v", err)
	}

	server := NewNode(Config{
		Role:       RoleAgent,
		ListenAddr: "127.0.0.1:0",
		Identity:   serverID,
		Allowlist:  denyAll,
		Roster:     roster.NewRoster(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(ctx) }()

	addr := waitForListener(t, server)

	client := NewNode(Config{Role: RoleAgent, Identity: clientID})
	if _, err := client.Dial(ctx, addr); err == nil {
		t.Fatalf("expected Dial to fail against a server that denies this peer")
	}

	cancel()
	<-serveErr
}

// TestSendTaskWithNoHandlerReturnsError confirms a node with no OnTask
// configured reports the condition back to the caller rather than hanging.
func TestSendTaskWithNoHandlerReturnsError(t *testing.T) {
	serverID := newTestIdentity(t)
	clientID := newTestIdentity(t)

	server := NewNode(Config{
		Role:       RoleAgent,
		ListenAddr: "127.0.0.1:0",
		Identity:   serverID,
		Roster:     roster.NewRoster(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(ctx) }()

	addr := waitForListener(t, server)

	client := NewNode(Config{Role: RoleAgent, Identity: clientID})
	conn, err := client.Dial(ctx, addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	resp, err := client.SendTask(ctx, conn, protocol.NewTaskRequest("", "hello", nil))
	if err != nil {
		t.Fatalf("SendTask: %v", err)
	}
	if !resp.IsError() {
		t.Fatalf("expected an error response from a node with no task handler")
	}

	cancel()
	<-serveErr
}

// waitForListener polls until Serve has bound its listener, since Serve
// runs in its own goroutine and binds before the caller can observe it.
func waitForListener(t *testing.T, n *Node) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if n.listener != nil {
			return n.listener.Addr().String()
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("node never bound a listener")
	return ""
}
