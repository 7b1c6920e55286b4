// Package discovery defines the synchronous key/value seam the P2P fabric
// uses to publish and find relay addresses and room peers (§4.7 "Discovery
// provider"), plus two reference implementations: in-memory and a
// git-ref-backed store.
package discovery

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/sven-run/sven/internal/p2p/identity"
)

// PeerRecord is one entry published under a room by publish_peer.
type PeerRecord struct {
	Room      string
	PeerID    identity.PeerID
	RelayAddr string
}

// Provider is the discovery seam (§4.7): every relay address is keyed by
// its own content hash so concurrent relays never collide; peers are keyed
// by (room, peer_id).
type Provider interface {
	PublishRelayAddrs(addrs []string) error
	FetchRelayAddrs() ([]string, error)
	DeleteRelayAddrs(addrs []string) error

	PublishPeer(room string, peer identity.PeerID, relayAddr string) error
	FetchPeers(room string) ([]PeerRecord, error)
	DeletePeer(room string, peer identity.PeerID) error
}

// addrKey hashes addr to the content-addressed key publish_relay_addrs
// uses, so two relays publishing the same address collide intentionally
// (dedup) while different addresses never collide by accident.
func addrKey(addr string) string {
	sum := sha256.Sum256([]byte(addr))
	return hex.EncodeToString(sum[:])
}
