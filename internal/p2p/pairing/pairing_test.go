package pairing

import (
	"testing"

	"github.com/sven-run/sven/internal/p2p/identity"
)

func TestBuildParseRoundTripWithAddr(t *testing.T) {
	uri := Build(identity.PeerID("peer-1"), "1.2.3.4:4001")
	parsed, err := Parse(uri)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.PeerID != "peer-1" || parsed.Multiaddr != "1.2.3.4:4001" {
		t.Fatalf("unexpected parse result: %+v", parsed)
	}
}

func TestBuildParseRoundTripWithoutAddr(t *testing.T) {
	uri := Build(identity.PeerID("peer-2"), "")
	parsed, err := Parse(uri)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.PeerID != "peer-2" || parsed.Multiaddr != "" {
		t.Fatalf("unexpected parse result: %+v", parsed)
	}
}

func TestParseRejectsUnsupportedScheme(t *testing.T) {
	if _, err := Parse("sven-pair://peer-1"); err == nil {
		t.Fatalf("expected the legacy scheme to be rejected")
	}
}

func TestParseRejectsMissingPeerID(t *testing.T) {
	if _, err := Parse("sven://"); err == nil {
		t.Fatalf("expected an error for a missing peer id")
	}
}

func TestURIFingerprintMatchesIdentityFingerprint(t *testing.T) {
	peer := identity.PeerID("peer-3")
	uri := URI{PeerID: peer}
	if uri.Fingerprint() != identity.Fingerprint(peer) {
		t.Fatalf("expected URI.Fingerprint to delegate to identity.Fingerprint")
	}
}
