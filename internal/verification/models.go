// Package verification fuses the individually unreliable presence signals
// of a scan event into a single pass/fail decision with an auditable score.
package verification

import (
	"time"

	"github.com/presenceguard/presenceguard/internal/beacon"
	"github.com/presenceguard/presenceguard/pkg/geo"
)

// Fixed component weights, summing to 100. These are auditable constants,
// not tuned parameters.
const (
	TokenWeight    = 40
	GeofenceWeight = 25
	NetworkWeight  = 20
	BeaconWeight   = 15

	// AcceptThreshold is the minimum total score for an accept, compared
	// on the unrounded value.
	AcceptThreshold = 70

	// DefaultGeofenceRadiusMeters applies when the session carries no
	// explicit geofence radius.
	DefaultGeofenceRadiusMeters = 50.0

	// BeaconRSSIFloor is the weakest smoothed signal strength that still
	// counts as beacon presence. A reading must be strictly stronger.
	BeaconRSSIFloor = -80.0
)

// Human-readable component reasons surfaced in the breakdown.
const (
	ReasonInvalidToken      = "invalid token"
	ReasonOutOfRange        = "out of range"
	ReasonNetworkMismatch   = "network mismatch"
	ReasonNoBeaconDetected  = "no beacon detected"
	ReasonSignalUnavailable = "signal unavailable"
	ReasonBeaconDisabled    = "beacon scoring disabled"
	ReasonNotEvaluated      = "not evaluated"
)

// NetworkFingerprint pairs a wireless network's broadcast name with its
// hardware address.
type NetworkFingerprint struct {
	SSID  string
	BSSID string
}

// BeaconObservation is one decoded beacon record with its smoothed signal
// strength, taken from the proximity ring buffer.
type BeaconObservation struct {
	Record       beacon.Record
	SmoothedRSSI float64
}

// ScanEvent is one attendance attempt as produced by the client. Immutable;
// consumed once.
type ScanEvent struct {
	StudentID         string
	SessionID         string
	SessionToken      uint32
	DeviceFingerprint string
	At                time.Time

	// Location, Network, and Beacons are optional; absence zero-scores the
	// corresponding component.
	Location *geo.Point
	Network  *NetworkFingerprint
	Beacons  []BeaconObservation
}

// ComponentResult is one component's contribution to the decision.
type ComponentResult struct {
	Passed bool   `json:"passed"`
	Points int    `json:"points"`
	Reason string `json:"reason,omitempty"`
}

// Result is the scored decision with its full breakdown. Folded into the
// attendance record, never persisted standalone.
type Result struct {
	Accepted bool   `json:"accepted"`
	Score    int    `json:"score"`
	Reason   string `json:"reason,omitempty"`

	Token    ComponentResult `json:"token"`
	Location ComponentResult `json:"location"`
	Network  ComponentResult `json:"network"`
	Beacon   ComponentResult `json:"beacon"`
}
