// Package binding enforces the single-active-device policy: each student
// has at most one bound device, and switching to a new device passes a
// dual gate of a mandatory cooldown and an explicit admin approval.
package binding

import (
	"errors"
	"time"
)

// Policy durations.
const (
	// SwitchCooldown is the waiting period after a switch request before
	// it may complete.
	SwitchCooldown = 48 * time.Hour

	// PendingMaxAge is how long a pending switch request survives before
	// it expires.
	PendingMaxAge = 7 * 24 * time.Hour

	// BindingDuration is how long a device binding lasts before it must
	// be refreshed by a login.
	BindingDuration = 180 * 24 * time.Hour
)

// Binding errors.
var (
	ErrDeviceNotFound         = errors.New("device not found")
	ErrRequestNotFound        = errors.New("switch request not found")
	ErrInvalidStateTransition = errors.New("invalid switch request state transition")
	ErrDeviceNotBound         = errors.New("no bound device for student")
	ErrDeviceLimitedAccess    = errors.New("device has limited access")
)

// Device is one physical handset, keyed by its stable fingerprint.
// Devices are soft-deactivated and never hard-deleted.
type Device struct {
	ID               string
	StudentID        string
	Fingerprint      string
	Bound            bool
	ActivatedAt      time.Time
	DeactivatedAt    *time.Time
	BindingExpiresAt *time.Time
}

// SwitchStatus is the lifecycle state of a switch request.
type SwitchStatus string

const (
	SwitchPending  SwitchStatus = "pending"
	SwitchApproved SwitchStatus = "approved"
	SwitchRejected SwitchStatus = "rejected"
	SwitchExpired  SwitchStatus = "expired"
)

// SwitchRequest is a student's attempt to rebind while an old device is
// bound. At most one request per student is pending at any instant.
type SwitchRequest struct {
	ID                 string
	StudentID          string
	OldFingerprint     string
	NewFingerprint     string
	RequestedAt        time.Time
	CooldownCompleteAt time.Time
	AdminApproved      bool
	ApprovedBy         string
	ApprovedAt         *time.Time
	Status             SwitchStatus
	RejectedReason     string
}

// CooldownElapsed reports whether the cooldown gate is open at now.
func (r *SwitchRequest) CooldownElapsed(now time.Time) bool {
	return !now.Before(r.CooldownCompleteAt)
}

// StaleAt reports whether the request has outlived PendingMaxAge at now.
func (r *SwitchRequest) StaleAt(now time.Time) bool {
	return now.Sub(r.RequestedAt) > PendingMaxAge
}

// LoginOutcomeKind discriminates the result of a login registration.
type LoginOutcomeKind string

const (
	// LoginActivatedFirstDevice: no prior binding existed; the device is
	// now bound.
	LoginActivatedFirstDevice LoginOutcomeKind = "activated_first_device"

	// LoginFullAccess: fingerprint matches the bound device.
	LoginFullAccess LoginOutcomeKind = "full_access"

	// LoginLimitedAccess: fingerprint differs from the bound device; the
	// caller may read data but not submit scan events.
	LoginLimitedAccess LoginOutcomeKind = "limited_access"

	// LoginAwaitingApproval: cooldown elapsed but no admin approval yet.
	LoginAwaitingApproval LoginOutcomeKind = "awaiting_approval"

	// LoginSwitchCompleted: both gates passed; the new device is bound.
	LoginSwitchCompleted LoginOutcomeKind = "switch_completed"
)

// LoginOutcome is the discriminated result of RegisterLogin.
type LoginOutcome struct {
	Kind    LoginOutcomeKind
	Device  *Device
	Request *SwitchRequest
}

// SwitchRequestFilter selects switch requests for the admin read view.
type SwitchRequestFilter struct {
	StudentID string
	Status    SwitchStatus

	// CooldownCompleteBefore selects requests whose cooldown gate is
	// already open at the given instant.
	CooldownCompleteBefore time.Time

	Limit int
}
