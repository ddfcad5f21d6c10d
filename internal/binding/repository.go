package binding

import (
	"context"
	"time"
)

// Repository defines the interface for binding persistence.
type Repository interface {
	// GetBoundDevice retrieves the student's currently bound device.
	// Returns ErrDeviceNotBound when none is bound.
	GetBoundDevice(ctx context.Context, studentID string) (*Device, error)

	// GetDeviceByFingerprint retrieves a student's device record for a
	// fingerprint, bound or not. Returns ErrDeviceNotFound when absent.
	GetDeviceByFingerprint(ctx context.Context, studentID, fingerprint string) (*Device, error)

	// SaveDevice creates or updates a device record.
	SaveDevice(ctx context.Context, device *Device) error

	// GetPendingSwitchRequest retrieves the student's pending switch
	// request. Returns ErrRequestNotFound when none is pending.
	GetPendingSwitchRequest(ctx context.Context, studentID string) (*SwitchRequest, error)

	// GetSwitchRequest retrieves a switch request by ID.
	GetSwitchRequest(ctx context.Context, requestID string) (*SwitchRequest, error)

	// SaveSwitchRequest creates or updates a switch request.
	SaveSwitchRequest(ctx context.Context, request *SwitchRequest) error

	// ListSwitchRequests retrieves requests matching the filter, newest
	// first.
	ListSwitchRequests(ctx context.Context, filter SwitchRequestFilter) ([]*SwitchRequest, error)

	// ListStalePending retrieves pending requests requested before the
	// given instant.
	ListStalePending(ctx context.Context, requestedBefore time.Time) ([]*SwitchRequest, error)

	// CompleteSwitch atomically deactivates the old device, activates
	// and binds the new one, and marks the request approved.
	CompleteSwitch(ctx context.Context, request *SwitchRequest, oldDevice, newDevice *Device) error
}
