package persistence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"memo-web/internal/domain"
)

type memoryEntry struct {
	session  domain.Session
	storedAt time.Time
}

// MemoryStorage keeps sessions in process memory. Entries older than ttl
// are dropped on read and by Sweep.
type MemoryStorage struct {
	mu       sync.RWMutex
	sessions map[string]memoryEntry
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryStorage creates an in-memory session storage. A ttl of zero keeps
// entries until they are deleted.
func NewMemoryStorage(ttl time.Duration) *MemoryStorage {
	return &MemoryStorage{
		sessions: make(map[string]memoryEntry),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Load retrieves the session stored for clientID.
func (s *MemoryStorage) Load(ctx context.Context, clientID string) (*domain.Session, error) {
	s.mu.RLock()
	entry, exists := s.sessions[clientID]
	s.mu.RUnlock()

	if !exists {
		return nil, nil
	}
	if s.isExpired(entry) {
		_ = s.Delete(ctx, clientID)
		return nil, nil
	}

	session := entry.session
	return &session, nil
}

// Save stores a copy of session for clientID.
func (s *MemoryStorage) Save(ctx context.Context, clientID string, session *domain.Session) error {
	if clientID == "" || session == nil {
		return fmt.Errorf("invalid session entry")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[clientID] = memoryEntry{session: *session, storedAt: s.now()}
	return nil
}

// Delete removes the session stored for clientID.
func (s *MemoryStorage) Delete(ctx context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, clientID)
	return nil
}

// Sweep removes every expired entry and returns how many were dropped.
func (s *MemoryStorage) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, entry := range s.sessions {
		if s.isExpired(entry) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

func (s *MemoryStorage) isExpired(entry memoryEntry) bool {
	return s.ttl > 0 && s.now().Sub(entry.storedAt) > s.ttl
}
