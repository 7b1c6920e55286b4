// Package transport implements the P2P fabric's wire transport: a Noise-style
// authenticated key exchange over TCP, followed by Yamux stream
// multiplexing (§4.7 "Transport").
package transport

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"

	"github.com/sven-run/sven/internal/p2p/identity"
)

// handshakeMsg is exchanged by both sides: an ephemeral X25519 public key,
// the sender's long-lived Ed25519 public key, and a signature over the
// ephemeral key binding it to that identity — the authentication half of
// the Noise-equivalent handshake described in §4.7.
type handshakeMsg struct {
	Ephemeral [32]byte
	Static    ed25519.PublicKey
	Signature []byte
}

func writeHandshakeMsg(w io.Writer, m handshakeMsg) error {
	buf := make([]byte, 0, 32+len(m.Static)+len(m.Signature)+8)
	buf = append(buf, m.Ephemeral[:]...)
	buf = appendLenPrefixed(buf, m.Static)
	buf = appendLenPrefixed(buf, m.Signature)
	_, err := w.Write(buf)
	return err
}

func appendLenPrefixed(buf, field []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(field)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, field...)
}

func readLenPrefixed(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > 1<<20 {
		return nil, fmt.Errorf("transport: handshake field of %d bytes too large", n)
	}
	buf := make([]byte, n)
	_, err := io.ReadFull(r, buf)
	return buf, err
}

func readHandshakeMsg(r io.Reader) (handshakeMsg, error) {
	var m handshakeMsg
	if _, err := io.ReadFull(r, m.Ephemeral[:]); err != nil {
		return m, err
	}
	static, err := readLenPrefixed(r)
	if err != nil {
		return m, err
	}
	m.Static = ed25519.PublicKey(static)
	sig, err := readLenPrefixed(r)
	if err != nil {
		return m, err
	}
	m.Signature = sig
	return m, nil
}

// sessionKeys are the two directional ChaCha20-Poly1305 AEADs derived from
// the shared ECDH secret; initiator and responder each use the other's
// send key as their receive key.
type sessionKeys struct {
	sendKey [32]byte
	recvKey [32]byte
}

// handshake runs the mutual-authentication key exchange over rw and
// returns the peer's verified identity plus derived session keys. initiator
// is true for the dialing side, which determines send/recv key ordering.
func handshake(rw io.ReadWriter, self *identity.Identity, initiator bool) (identity.PeerID, sessionKeys, error) {
	var ephPriv [32]byte
	if _, err := rand.Read(ephPriv[:]); err != nil {
		return "", sessionKeys{}, fmt.Errorf("transport: generate ephemeral key: %w", err)
	}
	var ephPub [32]byte
	curve25519.ScalarBaseMult(&ephPub, &ephPriv)

	sig := self.Sign(ephPub[:])
	out := handshakeMsg{Ephemeral: ephPub, Static: self.Public, Signature: sig}

	var peerMsg handshakeMsg
	var writeErr, readErr error
	done := make(chan struct{})
	go func() {
		writeErr = writeHandshakeMsg(rw, out)
		close(done)
	}()
	peerMsg, readErr = readHandshakeMsg(rw)
	<-done
	if writeErr != nil {
		return "", sessionKeys{}, fmt.Errorf("transport: send handshake: %w", writeErr)
	}
	if readErr != nil {
		return "", sessionKeys{}, fmt.Errorf("transport: receive handshake: %w", readErr)
	}

	if !identity.Verify(peerMsg.Static, peerMsg.Ephemeral[:], peerMsg.Signature) {
		return "", sessionKeys{}, fmt.Errorf("transport: peer handshake signature invalid")
	}

	shared, err := curve25519.X25519(ephPriv[:], peerMsg.Ephemeral[:])
	if err != nil {
		return "", sessionKeys{}, fmt.Errorf("transport: derive shared secret: %w", err)
	}

	aToB := sha256.Sum256(append(append([]byte{}, shared...), []byte("sven-p2p:a->b")...))
	bToA := sha256.Sum256(append(append([]byte{}, shared...), []byte("sven-p2p:b->a")...))

	var keys sessionKeys
	if initiator {
		keys.sendKey, keys.recvKey = aToB, bToA
	} else {
		keys.sendKey, keys.recvKey = bToA, aToB
	}

	peerID := identity.PeerIDFromPublicKey(peerMsg.Static)
	return peerID, keys, nil
}

// newAEAD builds the ChaCha20-Poly1305 AEAD for a derived session key.
func newAEAD(key [32]byte) (cipherAEAD, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("transport: build AEAD: %w", err)
	}
	return aead, nil
}
