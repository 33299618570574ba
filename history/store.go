// Package history records executed inputs across kernel sessions and serves
// history requests.
package history

import (
	"context"
	"slices"
	"sort"
	"sync"
)

// Store persists history one session at a time. Implementations are
// stateless; History keeps the working set in memory.
type Store interface {
	// Sessions returns the stored session numbers in ascending order.
	Sessions(ctx context.Context) ([]int, error)
	// Load returns the entries of one session ordered by line.
	Load(ctx context.Context, session int) ([]Entry, error)
	// Save replaces the stored entries of one session.
	Save(ctx context.Context, session int, entries []Entry) error
}

type memoryStore struct {
	sessions map[int][]Entry
	mu       sync.RWMutex
}

// NewMemoryStore creates a Store that lives as long as the process.
func NewMemoryStore() Store {
	return &memoryStore{sessions: make(map[int][]Entry)}
}

func (s *memoryStore) Sessions(_ context.Context) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

func (s *memoryStore) Load(_ context.Context, session int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, ok := s.sessions[session]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return slices.Clone(entries), nil
}

func (s *memoryStore) Save(_ context.Context, session int, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session] = slices.Clone(entries)
	return nil
}
