package binding

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryRepository is an in-memory implementation of Repository for
// testing and local development.
type InMemoryRepository struct {
	mu       sync.RWMutex
	devices  map[string]*Device        // key: studentID + "/" + fingerprint
	requests map[string]*SwitchRequest // key: request ID
}

// NewInMemoryRepository creates a new in-memory binding repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		devices:  make(map[string]*Device),
		requests: make(map[string]*SwitchRequest),
	}
}

func deviceKey(studentID, fingerprint string) string {
	return studentID + "/" + fingerprint
}

// GetBoundDevice retrieves the student's currently bound device.
func (r *InMemoryRepository) GetBoundDevice(_ context.Context, studentID string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, d := range r.devices {
		if d.StudentID == studentID && d.Bound {
			copied := *d
			return &copied, nil
		}
	}
	return nil, ErrDeviceNotBound
}

// GetDeviceByFingerprint retrieves a student's device record for a
// fingerprint.
func (r *InMemoryRepository) GetDeviceByFingerprint(_ context.Context, studentID, fingerprint string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[deviceKey(studentID, fingerprint)]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	copied := *d
	return &copied, nil
}

// SaveDevice creates or updates a device record.
func (r *InMemoryRepository) SaveDevice(_ context.Context, device *Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *device
	r.devices[deviceKey(device.StudentID, device.Fingerprint)] = &copied
	return nil
}

// GetPendingSwitchRequest retrieves the student's pending switch request.
func (r *InMemoryRepository) GetPendingSwitchRequest(_ context.Context, studentID string) (*SwitchRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, req := range r.requests {
		if req.StudentID == studentID && req.Status == SwitchPending {
			copied := *req
			return &copied, nil
		}
	}
	return nil, ErrRequestNotFound
}

// GetSwitchRequest retrieves a switch request by ID.
func (r *InMemoryRepository) GetSwitchRequest(_ context.Context, requestID string) (*SwitchRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	req, ok := r.requests[requestID]
	if !ok {
		return nil, ErrRequestNotFound
	}
	copied := *req
	return &copied, nil
}

// SaveSwitchRequest creates or updates a switch request.
func (r *InMemoryRepository) SaveSwitchRequest(_ context.Context, request *SwitchRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *request
	r.requests[request.ID] = &copied
	return nil
}

// ListSwitchRequests retrieves requests matching the filter, newest first.
func (r *InMemoryRepository) ListSwitchRequests(_ context.Context, filter SwitchRequestFilter) ([]*SwitchRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*SwitchRequest
	for _, req := range r.requests {
		if filter.StudentID != "" && req.StudentID != filter.StudentID {
			continue
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		if !filter.CooldownCompleteBefore.IsZero() && !req.CooldownCompleteAt.Before(filter.CooldownCompleteBefore) {
			continue
		}
		copied := *req
		out = append(out, &copied)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// ListStalePending retrieves pending requests requested before the given
// instant.
func (r *InMemoryRepository) ListStalePending(_ context.Context, requestedBefore time.Time) ([]*SwitchRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*SwitchRequest
	for _, req := range r.requests {
		if req.Status == SwitchPending && req.RequestedAt.Before(requestedBefore) {
			copied := *req
			out = append(out, &copied)
		}
	}
	return out, nil
}

// CompleteSwitch applies the three writes of a switch completion under one
// lock so no reader observes a student with zero or two bound devices.
func (r *InMemoryRepository) CompleteSwitch(_ context.Context, request *SwitchRequest, oldDevice, newDevice *Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	oldCopy := *oldDevice
	newCopy := *newDevice
	reqCopy := *request
	r.devices[deviceKey(oldDevice.StudentID, oldDevice.Fingerprint)] = &oldCopy
	r.devices[deviceKey(newDevice.StudentID, newDevice.Fingerprint)] = &newCopy
	r.requests[request.ID] = &reqCopy
	return nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
