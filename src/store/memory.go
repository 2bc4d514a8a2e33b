package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store.
// Used for local mode, the MCP server, and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string]Snapshot
	puts  int
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snaps: make(map[string]Snapshot),
	}
}

// Put stores a copy of snap.
func (s *MemoryStore) Put(ctx context.Context, recordID string, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap.RecordID = recordID
	snap.Data = append([]byte(nil), snap.Data...)
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now().UTC()
	}
	s.snaps[recordID] = snap
	s.puts++
	return nil
}

// Get returns a copy of the stored snapshot.
func (s *MemoryStore) Get(ctx context.Context, recordID string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snaps[recordID]
	if !ok {
		return Snapshot{}, ErrNotFound{RecordID: recordID}
	}
	snap.Data = append([]byte(nil), snap.Data...)
	return snap, nil
}

// Puts returns how many writes the store has accepted.
func (s *MemoryStore) Puts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.puts
}

// Close is a no-op for in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
