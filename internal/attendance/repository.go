package attendance

import (
	"context"
	"time"
)

// Repository defines the interface for attendance persistence.
type Repository interface {
	// Insert stores a record idempotently. When a record with the same
	// (session, student, event timestamp) already exists, the stored
	// original is returned with created=false and nothing is written.
	Insert(ctx context.Context, record *Record) (stored *Record, created bool, err error)

	// Get retrieves a record by its idempotency key. Returns nil, nil when
	// absent.
	Get(ctx context.Context, sessionID, studentID string, at time.Time) (*Record, error)

	// ListBySession retrieves a session's records, oldest first.
	ListBySession(ctx context.Context, sessionID string) ([]*Record, error)
}
