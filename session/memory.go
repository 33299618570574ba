package session

import (
	"slices"
	"sync"

	"github.com/google/uuid"
)

type memorySession struct {
	id       string
	username string
	key      []byte

	mu     sync.RWMutex
	count  int
	status Status
}

// NewMemorySession creates a Session held in memory. The session is assigned
// a unique UUIDv7 identifier, starts in Starting with a count of zero.
func NewMemorySession(username string, key []byte) Session {
	return &memorySession{
		id:       uuid.Must(uuid.NewV7()).String(),
		username: username,
		key:      slices.Clone(key),
		status:   Starting,
	}
}

func (s *memorySession) ID() string {
	return s.id
}

func (s *memorySession) Username() string {
	return s.username
}

func (s *memorySession) Key() []byte {
	return slices.Clone(s.key)
}

func (s *memorySession) ExecutionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

func (s *memorySession) NextExecutionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	return s.count
}

func (s *memorySession) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *memorySession) SetStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}
