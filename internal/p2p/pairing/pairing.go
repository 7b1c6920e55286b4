// Package pairing builds and parses the short `sven://` URI an operator
// exchanges out-of-band to introduce a peer (§4.7 "Pairing").
package pairing

import (
	"fmt"
	"strings"

	"github.com/sven-run/sven/internal/p2p/identity"
)

// URI is a parsed `sven://<peer-id>[/<multiaddr>]` pairing link.
type URI struct {
	PeerID   identity.PeerID
	Multiaddr string // empty if the URI carried no address hint
}

// Build renders a pairing URI, omitting the multiaddr segment if addr is
// empty.
func Build(peer identity.PeerID, addr string) string {
	if addr == "" {
		return fmt.Sprintf("sven://%s", peer)
	}
	return fmt.Sprintf("sven://%s/%s", peer, addr)
}

// Parse reads a pairing URI. Only the "sven://" scheme is accepted; the
// spec's predecessor scheme "sven-pair://" is intentionally not (§9's
// redesign note: "The spec standardises on sven://").
func Parse(uri string) (URI, error) {
	const scheme = "sven://"
	if !strings.HasPrefix(uri, scheme) {
		return URI{}, fmt.Errorf("pairing: unsupported scheme in %q", uri)
	}
	rest := strings.TrimPrefix(uri, scheme)
	if rest == "" {
		return URI{}, fmt.Errorf("pairing: missing peer id in %q", uri)
	}

	peer, addr, _ := strings.Cut(rest, "/")
	if peer == "" {
		return URI{}, fmt.Errorf("pairing: missing peer id in %q", uri)
	}
	return URI{PeerID: identity.PeerID(peer), Multiaddr: addr}, nil
}

// Fingerprint returns the 128-bit colon-separated fingerprint an operator
// should visually confirm before adding this peer to the allowlist.
func (u URI) Fingerprint() string {
	return identity.Fingerprint(u.PeerID)
}
