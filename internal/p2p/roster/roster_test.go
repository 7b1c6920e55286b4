package roster

import (
	"path/filepath"
	"testing"

	"github.com/sven-run/sven/internal/p2p/identity"
)

func TestLoadAllowlistMissingFileIsDenyAll(t *testing.T) {
	allow, err := LoadAllowlist(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadAllowlist: %v", err)
	}
	if allow.Authorize("anyone") != RoleDenied {
		t.Fatalf("expected deny-all on a missing file")
	}
}

func TestAddAuthorizeSaveReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peers.yaml")
	allow, err := LoadAllowlist(path)
	if err != nil {
		t.Fatalf("LoadAllowlist: %v", err)
	}
	if err := allow.Add("peer-1", RoleOperator, "alice"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := allow.Add("peer-2", RoleObserver, "bob"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := allow.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := LoadAllowlist(path)
	if err != nil {
		t.Fatalf("LoadAllowlist (reload): %v", err)
	}
	if reloaded.Authorize("peer-1") != RoleOperator {
		t.Fatalf("expected peer-1 to be an operator")
	}
	if reloaded.Authorize("peer-2") != RoleObserver {
		t.Fatalf("expected peer-2 to be an observer")
	}
	if reloaded.Authorize("peer-3") != RoleDenied {
		t.Fatalf("expected unknown peer to be denied")
	}
}

func TestRemoveRevokesBothRoles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peers.yaml")
	allow, err := LoadAllowlist(path)
	if err != nil {
		t.Fatalf("LoadAllowlist: %v", err)
	}
	_ = allow.Add("peer-1", RoleOperator, "alice")
	allow.Remove("peer-1")
	if allow.Authorize("peer-1") != RoleDenied {
		t.Fatalf("expected peer-1 to be denied after Remove")
	}
}

func TestPeersWithRole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peers.yaml")
	allow, err := LoadAllowlist(path)
	if err != nil {
		t.Fatalf("LoadAllowlist: %v", err)
	}
	_ = allow.Add("peer-1", RoleOperator, "alice")
	_ = allow.Add("peer-2", RoleOperator, "bob")
	_ = allow.Add("peer-3", RoleObserver, "carol")

	ops := allow.PeersWithRole(RoleOperator)
	if len(ops) != 2 {
		t.Fatalf("expected 2 operators, got %d", len(ops))
	}
	obs := allow.PeersWithRole(RoleObserver)
	if len(obs) != 1 || obs[0].Label != "carol" {
		t.Fatalf("unexpected observers: %+v", obs)
	}
}

func TestRosterAnnounceMarkOfflinePurge(t *testing.T) {
	r := NewRoster()
	card := AgentCard{PeerID: identity.PeerID("peer-1"), DisplayName: "alice"}
	r.Announce(card)

	got, ok := r.Lookup(card.PeerID)
	if !ok || got.PeerID != card.PeerID {
		t.Fatalf("expected to find the announced card")
	}

	snap := r.Snapshot()
	if len(snap) != 1 || !snap[0].Online {
		t.Fatalf("expected one online peer in the snapshot")
	}

	r.MarkOffline(card.PeerID)
	snap = r.Snapshot()
	if snap[0].Online {
		t.Fatalf("expected the peer to be marked offline")
	}

	r.Purge(card.PeerID)
	if _, ok := r.Lookup(card.PeerID); ok {
		t.Fatalf("expected the peer to be purged")
	}
}
