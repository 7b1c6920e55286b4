package discovery

import "testing"

func TestMemoryProviderRelayAddrsDedup(t *testing.T) {
	m := NewMemoryProvider()
	if err := m.PublishRelayAddrs([]string{"1.2.3.4:4001", "1.2.3.4:4001"}); err != nil {
		t.Fatalf("PublishRelayAddrs: %v", err)
	}
	addrs, err := m.FetchRelayAddrs()
	if err != nil {
		t.Fatalf("FetchRelayAddrs: %v", err)
	}
	if len(addrs) != 1 {
		t.Fatalf("expected the duplicate address to collide under the same content hash, got %d entries", len(addrs))
	}

	if err := m.DeleteRelayAddrs(addrs); err != nil {
		t.Fatalf("DeleteRelayAddrs: %v", err)
	}
	addrs, _ = m.FetchRelayAddrs()
	if len(addrs) != 0 {
		t.Fatalf("expected addresses to be deleted")
	}
}

func TestMemoryProviderPeersByRoom(t *testing.T) {
	m := NewMemoryProvider()
	if err := m.PublishPeer("room-a", "peer-1", "1.2.3.4:4001"); err != nil {
		t.Fatalf("PublishPeer: %v", err)
	}
	if err := m.PublishPeer("room-b", "peer-2", "5.6.7.8:4001"); err != nil {
		t.Fatalf("PublishPeer: %v", err)
	}

	roomA, err := m.FetchPeers("room-a")
	if err != nil {
		t.Fatalf("FetchPeers: %v", err)
	}
	if len(roomA) != 1 || roomA[0].PeerID != "peer-1" {
		t.Fatalf("unexpected room-a peers: %+v", roomA)
	}

	if err := m.DeletePeer("room-a", "peer-1"); err != nil {
		t.Fatalf("DeletePeer: %v", err)
	}
	roomA, _ = m.FetchPeers("room-a")
	if len(roomA) != 0 {
		t.Fatalf("expected peer-1 to be deleted from room-a")
	}
}
