package session

import "context"

// Repository defines the interface for session context reads.
type Repository interface {
	// GetSession retrieves the session context by ID. Returns
	// ErrSessionNotFound when absent.
	GetSession(ctx context.Context, sessionID string) (*Session, error)
}
