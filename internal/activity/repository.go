package activity

import "context"

// Repository defines the interface for audit log persistence.
type Repository interface {
	// Append adds an entry to the log.
	Append(ctx context.Context, entry Entry) error

	// List retrieves entries matching the filter, newest first.
	List(ctx context.Context, filter Filter) ([]Entry, error)
}
