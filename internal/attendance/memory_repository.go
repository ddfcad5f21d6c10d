package attendance

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository is an in-memory implementation of Repository for
// testing and local development.
type InMemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*Record // key: sessionID/studentID/unix-nanos
}

// NewInMemoryRepository creates a new in-memory attendance repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{records: make(map[string]*Record)}
}

func recordKey(sessionID, studentID string, at time.Time) string {
	return fmt.Sprintf("%s/%s/%d", sessionID, studentID, at.UnixNano())
}

// Insert stores a record idempotently.
func (r *InMemoryRepository) Insert(_ context.Context, record *Record) (*Record, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := recordKey(record.SessionID, record.StudentID, record.At)
	if existing, ok := r.records[key]; ok {
		copied := *existing
		return &copied, false, nil
	}

	copied := *record
	if copied.ID == "" {
		copied.ID = "att_" + uuid.New().String()[:22]
	}
	r.records[key] = &copied

	out := copied
	return &out, true, nil
}

// Get retrieves a record by its idempotency key.
func (r *InMemoryRepository) Get(_ context.Context, sessionID, studentID string, at time.Time) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	existing, ok := r.records[recordKey(sessionID, studentID, at)]
	if !ok {
		return nil, nil
	}
	copied := *existing
	return &copied, nil
}

// ListBySession retrieves a session's records, oldest first.
func (r *InMemoryRepository) ListBySession(_ context.Context, sessionID string) ([]*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Record
	for _, rec := range r.records {
		if rec.SessionID == sessionID {
			copied := *rec
			out = append(out, &copied)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
