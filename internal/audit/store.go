package audit

import (
	"context"
	"sync"

	"gatekeep/internal/types"
)

// MemoryStore keeps audit chains in memory. Appends are copy-on-append: the
// slice returned by Entries is always a fresh copy, so callers can never
// mutate the log in place.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]types.AuditEntry
}

// NewMemoryStore creates an empty in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]types.AuditEntry)}
}

// Append adds an entry to the thread's log.
func (s *MemoryStore) Append(_ context.Context, entry types.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.ThreadID] = append(s.entries[entry.ThreadID], entry)
	return nil
}

// LastHash returns the current_hash of the last entry on the thread, or ""
// when the thread has no entries yet.
func (s *MemoryStore) LastHash(_ context.Context, threadID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.entries[threadID]
	if len(list) == 0 {
		return "", nil
	}
	return list[len(list)-1].HashChain.CurrentHash, nil
}

// Entries returns a copy of the thread's log in append order.
func (s *MemoryStore) Entries(_ context.Context, threadID string) ([]types.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.entries[threadID]
	out := make([]types.AuditEntry, len(list))
	copy(out, list)
	return out, nil
}
