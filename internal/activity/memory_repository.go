package activity

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// InMemoryRepository is an in-memory implementation of Repository for
// testing and local development.
type InMemoryRepository struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewInMemoryRepository creates a new in-memory activity repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

// Append adds an entry to the log.
func (r *InMemoryRepository) Append(_ context.Context, entry Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry.ID == "" {
		entry.ID = "act_" + uuid.New().String()[:22]
	}
	r.entries = append(r.entries, entry)
	return nil
}

// List retrieves entries matching the filter, newest first.
func (r *InMemoryRepository) List(_ context.Context, filter Filter) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Entry
	for _, e := range r.entries {
		if filter.StudentID != "" && e.StudentID != filter.StudentID {
			continue
		}
		if filter.DeviceFingerprint != "" && e.DeviceFingerprint != filter.DeviceFingerprint {
			continue
		}
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		if !filter.From.IsZero() && e.At.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && e.At.After(filter.To) {
			continue
		}
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].At.After(out[j].At) })

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
