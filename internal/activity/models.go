// Package activity provides the append-only audit log of binding and
// attendance events, keyed by (student, device, timestamp).
package activity

import "time"

// Activity types recorded in the log.
const (
	TypeDeviceActivated     = "device_activated"
	TypeDeviceDeactivated   = "device_deactivated"
	TypeSwitchRequested     = "switch_requested"
	TypeSwitchApproved      = "switch_approved"
	TypeSwitchRejected      = "switch_rejected"
	TypeSwitchCompleted     = "switch_completed"
	TypeSwitchExpired       = "switch_expired"
	TypeEmergencyActivation = "emergency_activation"
	TypeScanAccepted        = "scan_accepted"
	TypeScanRejected        = "scan_rejected"
)

// Entry is one audit log record. Entries are never updated or deleted.
type Entry struct {
	ID                string
	StudentID         string
	DeviceFingerprint string
	Type              string
	Actor             string
	Reason            string
	At                time.Time
}

// Filter selects entries for the admin read view.
type Filter struct {
	StudentID         string
	DeviceFingerprint string
	Type              string
	From              time.Time
	To                time.Time
	Limit             int
}
