package transport

import (
	"crypto/cipher"
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// cipherAEAD aliases the standard AEAD interface so handshake.go doesn't
// need to import crypto/cipher directly.
type cipherAEAD = cipher.AEAD

// secureConn wraps a net.Conn with per-message ChaCha20-Poly1305 sealing
// keyed by the handshake's derived session keys. Each side keeps its own
// monotonic nonce counter; messages are length-prefixed like protocol
// frames so reads can recover record boundaries.
type secureConn struct {
	net.Conn
	send       cipherAEAD
	recv       cipherAEAD
	sendNonce  uint64
	recvNonce  uint64
	readBuf    []byte
}

func newSecureConn(conn net.Conn, send, recv cipherAEAD) *secureConn {
	return &secureConn{Conn: conn, send: send, recv: recv}
}

func nonceFor(counter uint64, size int) []byte {
	nonce := make([]byte, size)
	binary.BigEndian.PutUint64(nonce[size-8:], counter)
	return nonce
}

func (c *secureConn) Write(p []byte) (int, error) {
	nonce := nonceFor(c.sendNonce, c.send.NonceSize())
	c.sendNonce++
	sealed := c.send.Seal(nil, nonce, p, nil)

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(sealed)))
	if _, err := c.Conn.Write(lenBuf[:]); err != nil {
		return 0, fmt.Errorf("transport: write secure record length: %w", err)
	}
	if _, err := c.Conn.Write(sealed); err != nil {
		return 0, fmt.Errorf("transport: write secure record: %w", err)
	}
	return len(p), nil
}

func (c *secureConn) Read(p []byte) (int, error) {
	if len(c.readBuf) == 0 {
		var lenBuf [4]byte
		if _, err := io.ReadFull(c.Conn, lenBuf[:]); err != nil {
			return 0, err
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		sealed := make([]byte, n)
		if _, err := io.ReadFull(c.Conn, sealed); err != nil {
			return 0, err
		}

		nonce := nonceFor(c.recvNonce, c.recv.NonceSize())
		c.recvNonce++
		plain, err := c.recv.Open(nil, nonce, sealed, nil)
		if err != nil {
			return 0, fmt.Errorf("transport: open secure record: %w", err)
		}
		c.readBuf = plain
	}

	n := copy(p, c.readBuf)
	c.readBuf = c.readBuf[n:]
	return n, nil
}
