// Package p2p wires identity, transport, protocol, roster and discovery
// into the two node roles described in §4.7: a relay node that publishes
// its listen address to discovery, and an agent node that dials peers
// directly and serves the task protocol. Neither role forwards circuits
// between other peers or reserves a circuit slot.
package p2p

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/sven-run/sven/internal/p2p/discovery"
	"github.com/sven-run/sven/internal/p2p/identity"
	"github.com/sven-run/sven/internal/p2p/protocol"
	"github.com/sven-run/sven/internal/p2p/roster"
	"github.com/sven-run/sven/internal/p2p/transport"
)

// Role is a node's position in the relay-assisted connectivity scheme
// (§4.7).
type Role string

const (
	RoleRelay Role = "relay"
	RoleAgent Role = "agent"
)

// TaskHandler services an inbound Task request, e.g. by driving the
// delegation tool's logic against a locally-spawned sub-agent.
type TaskHandler func(ctx context.Context, req protocol.TaskRequest) protocol.TaskResponse

// Config configures a Node.
type Config struct {
	Role      Role
	ListenAddr string
	Rooms     []string
	Identity  *identity.Identity
	Discovery discovery.Provider
	Allowlist *roster.Allowlist
	Roster    *roster.Roster
	Card      roster.AgentCard
	OnTask    TaskHandler
	Logger    *slog.Logger
}

// Node runs one P2P fabric participant.
type Node struct {
	cfg Config
	log *slog.Logger

	listener *transport.Listener

	mu       sync.Mutex
	outbound map[identity.PeerID]*transport.Conn // agent role: live connections to peers
}

// NewNode constructs a Node but does not yet listen.
func NewNode(cfg Config) *Node {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Node{
		cfg:      cfg,
		log:      cfg.Logger,
		outbound: make(map[identity.PeerID]*transport.Conn),
	}
}

// Serve binds ListenAddr and accepts connections until ctx is cancelled.
// Relay nodes additionally publish their listen address to Discovery.
// Agent nodes only listen: Serve does not dial relays, reserve a circuit
// slot, publish to Rooms, or attempt hole-punching.
func (n *Node) Serve(ctx context.Context) error {
	ln, err := transport.Listen(n.cfg.ListenAddr, n.cfg.Identity)
	if err != nil {
		return err
	}
	n.listener = ln

	if n.cfg.Role == RoleRelay && n.cfg.Discovery != nil {
		if err := n.cfg.Discovery.PublishRelayAddrs([]string{ln.Addr().String()}); err != nil {
			n.log.Warn("p2p: publish relay address failed", "error", err)
		}
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				n.log.Warn("p2p: accept failed", "error", err)
				continue
			}
		}
		if n.cfg.Allowlist != nil && n.cfg.Allowlist.Authorize(conn.PeerID) == roster.RoleDenied {
			n.log.Info("p2p: rejecting unauthorized peer", "peer", conn.PeerID)
			conn.Close()
			continue
		}
		go n.serveConn(ctx, conn)
	}
}

// SweepIdlePeers purges roster entries that have been offline for more than
// maxAge, returning the count removed (§4.7's "roster maintenance" periodic
// sweep). A no-op when the node has no configured Roster.
func (n *Node) SweepIdlePeers(maxAge time.Duration) int {
	if n.cfg.Roster == nil {
		return 0
	}
	swept := n.cfg.Roster.SweepIdle(maxAge)
	if swept > 0 {
		n.log.Info("p2p: swept idle peers", "count", swept)
	}
	return swept
}

// Allowlist returns the node's authorization list, so a caller can watch
// its backing file and reload it into the same live node (§4.7 "revoke
// takes effect immediately").
func (n *Node) Allowlist() *roster.Allowlist { return n.cfg.Allowlist }

// ReachableAddr formats the circuit address of self behind relayAddr, per
// §4.7's "<relay>/p2p-circuit/p2p/<self>" format. It only builds the
// string; no slot is reserved on the relay.
func ReachableAddr(relayAddr string, self identity.PeerID) string {
	return fmt.Sprintf("%s/p2p-circuit/p2p/%s", relayAddr, self)
}

// serveConn handles one authenticated peer connection, in either role: each
// inbound stream carries one task-protocol request. There are no
// circuit-relay streams.
func (n *Node) serveConn(ctx context.Context, conn *transport.Conn) {
	defer func() {
		if n.cfg.Roster != nil {
			n.cfg.Roster.MarkOffline(conn.PeerID)
		}
	}()
	for {
		stream, err := conn.AcceptStream()
		if err != nil {
			return
		}
		go n.serveStream(ctx, conn.PeerID, stream)
	}
}

func (n *Node) serveStream(ctx context.Context, peer identity.PeerID, stream net.Conn) {
	defer stream.Close()

	var req protocol.Request
	if err := protocol.ReadFrame(stream, &req); err != nil {
		n.log.Warn("p2p: read request failed", "peer", peer, "error", err)
		return
	}

	switch req.Kind {
	case protocol.RequestAnnounce:
		if req.Announce != nil && n.cfg.Roster != nil {
			n.cfg.Roster.Announce(*req.Announce)
		}
		_ = protocol.WriteFrame(stream, protocol.AckResponse())
	case protocol.RequestTask:
		if req.Task == nil || n.cfg.OnTask == nil {
			_ = protocol.WriteFrame(stream, protocol.TaskResultResponse(
				protocol.ErrorTaskResponse(requestIDOf(req.Task), n.cfg.Card, "node has no task handler configured"),
			))
			return
		}
		result := n.cfg.OnTask(ctx, *req.Task)
		_ = protocol.WriteFrame(stream, protocol.TaskResultResponse(result))
	default:
		n.log.Warn("p2p: unknown request kind", "kind", req.Kind)
	}
}

// requestIDOf returns task.ID, or "" if task is nil (an absent Task variant
// on an otherwise well-formed Request).
func requestIDOf(task *protocol.TaskRequest) string {
	if task == nil {
		return ""
	}
	return task.ID
}

// Dial connects to a peer at addr, announces this node's card, and caches
// the connection for subsequent SendTask calls.
func (n *Node) Dial(ctx context.Context, addr string) (*transport.Conn, error) {
	conn, err := transport.Dial(ctx, addr, n.cfg.Identity)
	if err != nil {
		return nil, err
	}

	stream, err := conn.OpenStream()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := protocol.WriteFrame(stream, protocol.AnnounceRequest(n.cfg.Card)); err != nil {
		stream.Close()
		conn.Close()
		return nil, err
	}
	var resp protocol.Response
	if err := protocol.ReadFrame(stream, &resp); err != nil {
		stream.Close()
		conn.Close()
		return nil, err
	}
	stream.Close()

	n.mu.Lock()
	n.outbound[conn.PeerID] = conn
	n.mu.Unlock()
	return conn, nil
}

// SendTask opens a fresh stream on an existing connection and sends task,
// returning the peer's TaskResult — the wire form of the roster's
// "delegate" tool (§4.7).
func (n *Node) SendTask(ctx context.Context, conn *transport.Conn, task protocol.TaskRequest) (protocol.TaskResponse, error) {
	stream, err := conn.OpenStream()
	if err != nil {
		return protocol.TaskResponse{}, fmt.Errorf("p2p: open task stream: %w", err)
	}
	defer stream.Close()
	_ = stream.SetDeadline(time.Now().Add(protocol.RequestTimeoutSeconds * time.Second))

	if err := protocol.WriteFrame(stream, protocol.TaskRequestMsg(task)); err != nil {
		return protocol.TaskResponse{}, err
	}
	var resp protocol.Response
	if err := protocol.ReadFrame(stream, &resp); err != nil {
		return protocol.TaskResponse{}, err
	}
	if resp.Kind != protocol.ResponseTaskResult || resp.TaskResult == nil {
		return protocol.TaskResponse{}, fmt.Errorf("p2p: unexpected response kind %q for task", resp.Kind)
	}
	return *resp.TaskResult, nil
}
