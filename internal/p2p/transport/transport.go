package transport

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/hashicorp/yamux"

	"github.com/sven-run/sven/internal/p2p/identity"
)

// IdleTimeout closes a connection that has carried no application
// substream activity for this long (§4.7). A periodic ping keeps the
// underlying yamux session alive but deliberately does not count as
// activity.
const IdleTimeout = 300 * time.Second

// pingInterval is how often Conn.Ping is invoked against idle connections.
const pingInterval = 30 * time.Second

// Conn is an authenticated, multiplexed connection to one peer: the
// result of a completed handshake plus a Yamux session running over the
// resulting secure channel.
type Conn struct {
	PeerID identity.PeerID

	session      *yamux.Session
	lastActivity int64 // unix nanos, atomic
	closeCh      chan struct{}
}

// Dial opens a TCP connection to addr, performs the handshake as the
// initiator, and returns a multiplexed Conn.
func Dial(ctx context.Context, addr string, self *identity.Identity) (*Conn, error) {
	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return newConn(raw, self, true)
}

// Accept performs the handshake as the responder over an already-accepted
// TCP connection, typically from a net.Listener.Accept() call.
func Accept(raw net.Conn, self *identity.Identity) (*Conn, error) {
	return newConn(raw, self, false)
}

func newConn(raw net.Conn, self *identity.Identity, initiator bool) (*Conn, error) {
	peerID, keys, err := handshake(raw, self, initiator)
	if err != nil {
		raw.Close()
		return nil, err
	}

	sendAEAD, err := newAEAD(keys.sendKey)
	if err != nil {
		raw.Close()
		return nil, err
	}
	recvAEAD, err := newAEAD(keys.recvKey)
	if err != nil {
		raw.Close()
		return nil, err
	}
	secure := newSecureConn(raw, sendAEAD, recvAEAD)

	cfg := yamux.DefaultConfig()
	cfg.EnableKeepAlive = false // sven drives its own ping/idle policy below

	var session *yamux.Session
	if initiator {
		session, err = yamux.Client(secure, cfg)
	} else {
		session, err = yamux.Server(secure, cfg)
	}
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("transport: establish yamux session: %w", err)
	}

	c := &Conn{PeerID: peerID, session: session, closeCh: make(chan struct{})}
	c.touch()
	go c.idleWatch()
	return c, nil
}

func (c *Conn) touch() {
	atomic.StoreInt64(&c.lastActivity, time.Now().UnixNano())
}

func (c *Conn) idleSince() time.Duration {
	return time.Since(time.Unix(0, atomic.LoadInt64(&c.lastActivity)))
}

// idleWatch pings the session periodically (not counted as activity) and
// closes it once IdleTimeout has elapsed with no application substream
// activity.
func (c *Conn) idleWatch() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.closeCh:
			return
		case <-ticker.C:
			if c.idleSince() >= IdleTimeout {
				c.Close()
				return
			}
			_, _ = c.session.Ping()
		}
	}
}

// OpenStream opens a new application substream; opening counts as activity.
func (c *Conn) OpenStream() (net.Conn, error) {
	stream, err := c.session.Open()
	if err != nil {
		return nil, fmt.Errorf("transport: open stream: %w", err)
	}
	c.touch()
	return &activityStream{Conn: stream, onActivity: c.touch}, nil
}

// AcceptStream blocks for the next inbound application substream; accepting
// counts as activity.
func (c *Conn) AcceptStream() (net.Conn, error) {
	stream, err := c.session.Accept()
	if err != nil {
		return nil, fmt.Errorf("transport: accept stream: %w", err)
	}
	c.touch()
	return &activityStream{Conn: stream, onActivity: c.touch}, nil
}

// Close tears down the session and stops the idle watcher.
func (c *Conn) Close() error {
	select {
	case <-c.closeCh:
	default:
		close(c.closeCh)
	}
	return c.session.Close()
}

// activityStream wraps a yamux stream so every Read/Write refreshes the
// parent Conn's idle timer (§4.7: "application substreams do [reset the
// idle timer]").
type activityStream struct {
	net.Conn
	onActivity func()
}

func (s *activityStream) Read(p []byte) (int, error) {
	n, err := s.Conn.Read(p)
	if n > 0 {
		s.onActivity()
	}
	return n, err
}

func (s *activityStream) Write(p []byte) (int, error) {
	n, err := s.Conn.Write(p)
	if n > 0 {
		s.onActivity()
	}
	return n, err
}
