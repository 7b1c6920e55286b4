// Package identity manages the Ed25519 keypair that authenticates a node in
// the P2P fabric (C7, §4.7): "Ed25519 keypair persisted on first start in a
// mode-0600 file under the operator's config directory."
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// multihashEd25519 is the multicodec prefix sven uses to tag an Ed25519
// public key inside a PeerID, loosely after the multihash convention
// libp2p peer IDs use (varint code + length + digest); sven's fabric never
// imports a libp2p stack, so this is a minimal, self-contained analogue.
const multihashEd25519 = 0xed

// PeerID is the public, wire-visible identifier derived from a public key.
type PeerID string

// Identity holds a node's long-lived keypair.
type Identity struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// PeerID derives this identity's PeerID from its public key.
func (id *Identity) PeerID() PeerID { return PeerIDFromPublicKey(id.Public) }

// PeerIDFromPublicKey builds a PeerID as hex(multihash-prefix || pubkey).
func PeerIDFromPublicKey(pub ed25519.PublicKey) PeerID {
	buf := make([]byte, 0, 1+len(pub))
	buf = append(buf, multihashEd25519)
	buf = append(buf, pub...)
	return PeerID(hex.EncodeToString(buf))
}

// Fingerprint returns the 128-bit, 16-colon-separated-hex-pair SHA-256
// fingerprint of a PeerID, for operator visual confirmation during pairing
// (§4.7: "strong preimage resistance unlike a naive 32-bit prefix").
func Fingerprint(id PeerID) string {
	sum := sha256.Sum256([]byte(id))
	half := sum[:16]
	out := make([]byte, 0, 16*2+15)
	for i, b := range half {
		if i > 0 {
			out = append(out, ':')
		}
		out = append(out, []byte(hex.EncodeToString([]byte{b}))...)
	}
	return string(out)
}

type keyFile struct {
	Public  string `json:"public"`
	Private string `json:"private"`
}

// LoadOrCreate reads an Identity from path, generating and persisting a
// fresh keypair on first start. The file is written with mode 0600.
func LoadOrCreate(path string) (*Identity, error) {
	if raw, err := os.ReadFile(path); err == nil {
		var kf keyFile
		if err := json.Unmarshal(raw, &kf); err != nil {
			return nil, fmt.Errorf("identity: parse %s: %w", path, err)
		}
		pub, err := hex.DecodeString(kf.Public)
		if err != nil {
			return nil, fmt.Errorf("identity: decode public key: %w", err)
		}
		priv, err := hex.DecodeString(kf.Private)
		if err != nil {
			return nil, fmt.Errorf("identity: decode private key: %w", err)
		}
		return &Identity{Public: ed25519.PublicKey(pub), Private: ed25519.PrivateKey(priv)}, nil
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generate keypair: %w", err)
	}
	id := &Identity{Public: pub, Private: priv}
	if err := persist(path, id); err != nil {
		return nil, err
	}
	return id, nil
}

func persist(path string, id *Identity) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("identity: create config dir: %w", err)
		}
	}
	kf := keyFile{
		Public:  hex.EncodeToString(id.Public),
		Private: hex.EncodeToString(id.Private),
	}
	raw, err := json.Marshal(kf)
	if err != nil {
		return fmt.Errorf("identity: marshal keypair: %w", err)
	}
	return os.WriteFile(path, raw, 0o600)
}

// Sign signs msg with this identity's private key.
func (id *Identity) Sign(msg []byte) []byte {
	return ed25519.Sign(id.Private, msg)
}

// Verify checks sig over msg against pub.
func Verify(pub ed25519.PublicKey, msg, sig []byte) bool {
	return ed25519.Verify(pub, msg, sig)
}
