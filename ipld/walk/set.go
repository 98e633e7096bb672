package walk

import (
	"sync"

	"github.com/ipfs/go-cid"
)

// Set is a thread-safe set of Cids, used to track which blocks a traversal
// has already visited.
type Set struct {
	set map[cid.Cid]struct{}
	lk  sync.Mutex
}

// NewSet initializes and returns a new Set.
func NewSet() *Set {
	return &Set{set: make(map[cid.Cid]struct{})}
}

// Add puts a Cid in the Set.
func (s *Set) Add(c cid.Cid) {
	s.lk.Lock()
	defer s.lk.Unlock()
	s.set[c] = struct{}{}
}

// Has returns if the Set contains a given Cid.
func (s *Set) Has(c cid.Cid) bool {
	s.lk.Lock()
	defer s.lk.Unlock()
	_, ok := s.set[c]
	return ok
}

// Remove deletes a Cid from the Set.
func (s *Set) Remove(c cid.Cid) {
	s.lk.Lock()
	defer s.lk.Unlock()
	delete(s.set, c)
}

// Len returns how many elements the Set has.
func (s *Set) Len() int {
	s.lk.Lock()
	defer s.lk.Unlock()
	return len(s.set)
}

// Keys returns the Cids in the set.
func (s *Set) Keys() []cid.Cid {
	s.lk.Lock()
	defer s.lk.Unlock()
	out := make([]cid.Cid, 0, len(s.set))
	for k := range s.set {
		out = append(out, k)
	}
	return out
}

// Visit adds a Cid to the set only if it was not already present, returning
// whether the add happened. This is the primitive a traversal uses to
// decide whether to descend into a link.
func (s *Set) Visit(c cid.Cid) bool {
	s.lk.Lock()
	defer s.lk.Unlock()
	if _, ok := s.set[c]; ok {
		return false
	}
	s.set[c] = struct{}{}
	return true
}
