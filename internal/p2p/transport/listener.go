package transport

import (
	"fmt"
	"net"

	"github.com/sven-run/sven/internal/p2p/identity"
)

// Listener accepts TCP connections and authenticates each one as the
// handshake responder before handing back a multiplexed Conn.
type Listener struct {
	raw  net.Listener
	self *identity.Identity
}

// Listen binds addr and returns a Listener.
func Listen(addr string, self *identity.Identity) (*Listener, error) {
	raw, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	return &Listener{raw: raw, self: self}, nil
}

// Addr returns the listener's bound address.
func (l *Listener) Addr() net.Addr { return l.raw.Addr() }

// Accept blocks for the next inbound connection and authenticates it.
// A handshake failure from one dialer does not close the Listener; the
// caller should loop calling Accept.
func (l *Listener) Accept() (*Conn, error) {
	raw, err := l.raw.Accept()
	if err != nil {
		return nil, fmt.Errorf("transport: accept: %w", err)
	}
	conn, err := Accept(raw, l.self)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Close stops accepting new connections.
func (l *Listener) Close() error { return l.raw.Close() }
