package ipld

import (
	"context"
	"sync"

	"github.com/ipfs/go-cid"
)

// MemStore is an in-memory Store, used by tests and by genesis
// construction. It is safe for concurrent use.
type MemStore struct {
	mu     sync.RWMutex
	blocks map[cid.Cid][]byte
}

// NewMemStore returns an empty in-memory block store.
func NewMemStore() *MemStore {
	return &MemStore{blocks: make(map[cid.Cid][]byte)}
}

var _ Store = (*MemStore)(nil)

// Has implements Store.
func (s *MemStore) Has(_ context.Context, c cid.Cid) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blocks[c]
	return ok, nil
}

// Get implements Store.
func (s *MemStore) Get(_ context.Context, c cid.Cid) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blocks[c]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

// Put implements Store. Re-putting an existing CID is a no-op.
func (s *MemStore) Put(_ context.Context, c cid.Cid, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blocks[c]; ok {
		return nil
	}
	s.blocks[c] = data
	return nil
}

// Len returns the number of stored blocks, mostly useful in tests.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blocks)
}
