// Package roster implements the P2P fabric's authorization allowlist and
// connected-peer cache (§4.7 "Authorization" and "Roster maintenance").
package roster

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sven-run/sven/internal/p2p/identity"
)

// Role is a peer's authorization level.
type Role string

const (
	RoleOperator Role = "operator"
	RoleObserver Role = "observer"
	RoleDenied   Role = ""
)

// allowlistFile is the YAML shape loaded from the operator's roster file:
// `{operators: {peer_id: label}, observers: {peer_id: label}}`.
type allowlistFile struct {
	Operators map[identity.PeerID]string `yaml:"operators"`
	Observers map[identity.PeerID]string `yaml:"observers"`
}

// Allowlist is the authorization source of truth, built from a YAML file.
// Default (empty file or missing keys) is deny-all.
type Allowlist struct {
	mu        sync.RWMutex
	operators map[identity.PeerID]string
	observers map[identity.PeerID]string
}

// LoadAllowlist reads an Allowlist from a YAML file at path. A missing file
// is treated as an empty (deny-all) allowlist, matching the spec's "default
// empty ≡ deny-all".
func LoadAllowlist(path string) (*Allowlist, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Allowlist{operators: map[identity.PeerID]string{}, observers: map[identity.PeerID]string{}}, nil
		}
		return nil, fmt.Errorf("roster: read %s: %w", path, err)
	}
	var file allowlistFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("roster: parse %s: %w", path, err)
	}
	if file.Operators == nil {
		file.Operators = map[identity.PeerID]string{}
	}
	if file.Observers == nil {
		file.Observers = map[identity.PeerID]string{}
	}
	return &Allowlist{operators: file.Operators, observers: file.Observers}, nil
}

// ReloadFrom re-reads path and swaps a's contents in place, so a live
// *Allowlist already wired into a running p2p.Node picks up the change on
// its very next Authorize call with no restart (§4.7 "revoke takes effect
// immediately").
func (a *Allowlist) ReloadFrom(path string) error {
	fresh, err := LoadAllowlist(path)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.operators = fresh.operators
	a.observers = fresh.observers
	return nil
}

// Authorize returns the role granted to peer, or RoleDenied if the peer
// appears in neither list.
func (a *Allowlist) Authorize(peer identity.PeerID) Role {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if _, ok := a.operators[peer]; ok {
		return RoleOperator
	}
	if _, ok := a.observers[peer]; ok {
		return RoleObserver
	}
	return RoleDenied
}

// Add grants peer a role with a human label, e.g. after an operator
// confirms a pairing fingerprint (§4.7 "Pairing").
func (a *Allowlist) Add(peer identity.PeerID, role Role, label string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch role {
	case RoleOperator:
		a.operators[peer] = label
	case RoleObserver:
		a.observers[peer] = label
	default:
		return fmt.Errorf("roster: invalid role %q", role)
	}
	return nil
}

// AllowlistEntry is one labeled peer, as returned by PeersWithRole.
type AllowlistEntry struct {
	ID    identity.PeerID
	Label string
}

// PeersWithRole lists every peer holding role, for CLI/diagnostic listing
// (e.g. list_peers).
func (a *Allowlist) PeersWithRole(role Role) []AllowlistEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var src map[identity.PeerID]string
	switch role {
	case RoleOperator:
		src = a.operators
	case RoleObserver:
		src = a.observers
	default:
		return nil
	}
	out := make([]AllowlistEntry, 0, len(src))
	for id, label := range src {
		out = append(out, AllowlistEntry{ID: id, Label: label})
	}
	return out
}

// Remove revokes any role peer holds.
func (a *Allowlist) Remove(peer identity.PeerID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.operators, peer)
	delete(a.observers, peer)
}

// Save writes the allowlist back to path as YAML, mode 0600.
func (a *Allowlist) Save(path string) error {
	a.mu.RLock()
	file := allowlistFile{Operators: a.operators, Observers: a.observers}
	a.mu.RUnlock()

	raw, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("roster: marshal: %w", err)
	}
	return os.WriteFile(path, raw, 0o600)
}

// AgentCard is the self-description a peer sends on its first connection
// (§4.7: "Announce(AgentCard)").
type AgentCard struct {
	PeerID       identity.PeerID `cbor:"peer_id"`
	DisplayName  string          `cbor:"display_name"`
	Description  string          `cbor:"description,omitempty"`
	Capabilities []string        `cbor:"capabilities"`
	Version      string          `cbor:"version,omitempty"`
}

// entry is a cached, possibly-offline peer in the Roster.
type entry struct {
	card     AgentCard
	online   bool
	lastSeen time.Time
}

// Roster caches AgentCards announced by peers, independent of Allowlist
// authorization — a peer can be known to the roster (announced, perhaps
// since gone offline) without being authorized to act.
type Roster struct {
	mu      sync.RWMutex
	entries map[identity.PeerID]*entry
}

// NewRoster returns an empty Roster.
func NewRoster() *Roster {
	return &Roster{entries: make(map[identity.PeerID]*entry)}
}

// Announce records or refreshes a peer's card and marks it online.
func (r *Roster) Announce(card AgentCard) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[card.PeerID] = &entry{card: card, online: true, lastSeen: time.Now()}
}

// MarkOffline flags peer as offline without purging its cached card
// (§4.7: "mark peer as offline but keep the card cached until the next
// successful fetch_peers purges it").
func (r *Roster) MarkOffline(peer identity.PeerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[peer]; ok {
		e.online = false
	}
}

// Purge drops peer from the roster entirely, called after a discovery
// provider's fetch_peers no longer lists it.
func (r *Roster) Purge(peer identity.PeerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, peer)
}

// PeerSnapshot is one Roster entry as returned by Snapshot.
type PeerSnapshot struct {
	Card     AgentCard
	Online   bool
	LastSeen time.Time
}

// Snapshot returns every known peer, for the list-peers tool.
func (r *Roster) Snapshot() []PeerSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PeerSnapshot, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, PeerSnapshot{Card: e.card, Online: e.online, LastSeen: e.lastSeen})
	}
	return out
}

// SweepIdle purges every offline entry last seen more than maxAge ago,
// returning the count removed. Online peers are never purged regardless of
// lastSeen, matching Announce's refresh-on-every-connect semantics.
func (r *Roster) SweepIdle(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	var swept int
	for id, e := range r.entries {
		if !e.online && e.lastSeen.Before(cutoff) {
			delete(r.entries, id)
			swept++
		}
	}
	return swept
}

// Lookup returns the cached card for peer, if any.
func (r *Roster) Lookup(peer identity.PeerID) (AgentCard, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[peer]
	if !ok {
		return AgentCard{}, false
	}
	return e.card, true
}
