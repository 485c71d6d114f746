// Package peer maintains the set of known peer URLs a node gossips blocks
// with.
package peer

import "sync"

// Peer identifies a node in the network by its base URL, e.g.
// "http://10.0.0.4:9080".
type Peer struct {
	URL string
}

// New constructs a Peer for the given URL.
func New(url string) Peer {
	return Peer{URL: url}
}

// Match reports whether url refers to this peer.
func (p Peer) Match(url string) bool {
	return p.URL == url
}

// =============================================================================

// Set is the unordered collection of known peer URLs. Membership changes
// through Add/Remove, which both accept one or many URLs so a single
// register/deregister message can carry a batch.
type Set struct {
	mu  sync.RWMutex
	set map[Peer]struct{}
}

// NewSet constructs an empty peer set.
func NewSet() *Set {
	return &Set{set: make(map[Peer]struct{})}
}

// Add inserts every peer in peers not already present and reports whether
// at least one was newly added.
func (s *Set) Add(peers ...Peer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := false
	for _, p := range peers {
		if _, exists := s.set[p]; !exists {
			s.set[p] = struct{}{}
			added = true
		}
	}
	return added
}

// Remove deletes every peer in peers from the set. This removes the URL
// from this node's own view only; it does not notify the removed peer or
// any other node.
func (s *Set) Remove(peers ...Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range peers {
		delete(s.set, p)
	}
}

// Copy returns every known peer except self, if self is among them.
func (s *Set) Copy(self string) []Peer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Peer, 0, len(s.set))
	for p := range s.set {
		if !p.Match(self) {
			out = append(out, p)
		}
	}
	return out
}

// Contains reports whether url is currently a known peer.
func (s *Set) Contains(url string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.set[Peer{URL: url}]
	return ok
}
