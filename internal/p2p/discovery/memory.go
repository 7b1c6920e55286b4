package discovery

import (
	"sync"

	"github.com/sven-run/sven/internal/p2p/identity"
)

// MemoryProvider is an in-memory Provider, for tests and single-process
// deployments (§4.7).
type MemoryProvider struct {
	mu         sync.RWMutex
	relayAddrs map[string]string // content-hash -> addr
	peers      map[string]map[identity.PeerID]string // room -> peer -> relay addr
}

// NewMemoryProvider returns an empty MemoryProvider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		relayAddrs: make(map[string]string),
		peers:      make(map[string]map[identity.PeerID]string),
	}
}

func (m *MemoryProvider) PublishRelayAddrs(addrs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, addr := range addrs {
		m.relayAddrs[addrKey(addr)] = addr
	}
	return nil
}

func (m *MemoryProvider) FetchRelayAddrs() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.relayAddrs))
	for _, addr := range m.relayAddrs {
		out = append(out, addr)
	}
	return out, nil
}

func (m *MemoryProvider) DeleteRelayAddrs(addrs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, addr := range addrs {
		delete(m.relayAddrs, addrKey(addr))
	}
	return nil
}

func (m *MemoryProvider) PublishPeer(room string, peer identity.PeerID, relayAddr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.peers[room] == nil {
		m.peers[room] = make(map[identity.PeerID]string)
	}
	m.peers[room][peer] = relayAddr
	return nil
}

func (m *MemoryProvider) FetchPeers(room string) ([]PeerRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]PeerRecord, 0, len(m.peers[room]))
	for peer, addr := range m.peers[room] {
		out = append(out, PeerRecord{Room: room, PeerID: peer, RelayAddr: addr})
	}
	return out, nil
}

func (m *MemoryProvider) DeletePeer(room string, peer identity.PeerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.peers[room], peer)
	return nil
}
