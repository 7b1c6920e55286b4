package identity

import (
	"path/filepath"
	"testing"
)

func TestLoadOrCreateGeneratesAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity")

	first, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate (generate): %v", err)
	}
	second, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate (reload): %v", err)
	}

	if first.PeerID() != second.PeerID() {
		t.Fatalf("expected the same identity to be reloaded, got different peer ids")
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	id, err := LoadOrCreate(filepath.Join(t.TempDir(), "identity"))
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	msg := []byte("announce me")
	sig := id.Sign(msg)
	if !Verify(id.Public, msg, sig) {
		t.Fatalf("expected signature to verify")
	}
	if Verify(id.Public, []byte("tampered"), sig) {
		t.Fatalf("expected signature to fail over a different message")
	}
}

func TestFingerprintIsStableAndDeterministic(t *testing.T) {
	id, err := LoadOrCreate(filepath.Join(t.TempDir(), "identity"))
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	peer := id.PeerID()
	fp1 := Fingerprint(peer)
	fp2 := Fingerprint(peer)
	if fp1 != fp2 {
		t.Fatalf("fingerprint must be deterministic")
	}
	if len(fp1) != 16*2+15 {
		t.Fatalf("unexpected fingerprint length %d (%q)", len(fp1), fp1)
	}
}

func TestPeerIDFromPublicKeyIsDeterministic(t *testing.T) {
	id, err := LoadOrCreate(filepath.Join(t.TempDir(), "identity"))
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	if PeerIDFromPublicKey(id.Public) != id.PeerID() {
		t.Fatalf("PeerIDFromPublicKey must match Identity.PeerID")
	}
}
