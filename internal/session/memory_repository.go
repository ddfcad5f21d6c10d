package session

import (
	"context"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository for
// testing and local development.
type InMemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewInMemoryRepository creates a new in-memory session repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{sessions: make(map[string]*Session)}
}

// Put stores a session.
func (r *InMemoryRepository) Put(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *s
	r.sessions[s.ID] = &copied
}

// GetSession retrieves the session context by ID.
func (r *InMemoryRepository) GetSession(_ context.Context, sessionID string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	copied := *s
	return &copied, nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
