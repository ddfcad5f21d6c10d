// Package proximity runs bounded pre-session radio scan cycles and buffers
// the readings the attendance flow folds into a scan event.
package proximity

import (
	"context"
	"time"
)

// Advertisement is one raw observation delivered by the radio driver.
type Advertisement struct {
	// DeviceAddress is the transmitter's hardware address.
	DeviceAddress string

	// RSSI is the raw received signal strength for this observation.
	RSSI float64

	// Raw is the advertisement payload, passed to the beacon codec.
	Raw []byte
}

// ScanHandle is a running scan. Results delivers observations until the
// scan ends; Stop releases the underlying radio resource and is safe to
// call more than once.
type ScanHandle interface {
	Results() <-chan Advertisement
	Stop()
}

// Driver starts radio scans. Implementations must return a handle whose
// Stop method deterministically releases the scan resource.
type Driver interface {
	// StartQuickScan begins a short low-latency scan.
	StartQuickScan(ctx context.Context) (ScanHandle, error)

	// StartExtendedDiscovery begins a longer discovery-mode scan.
	StartExtendedDiscovery(ctx context.Context) (ScanHandle, error)
}

// LocationFix is a point estimate of the device's position.
type LocationFix struct {
	Lat            float64
	Lon            float64
	AccuracyMeters float64
	At             time.Time
}

// NetworkFingerprint pairs a wireless network's broadcast name with its
// hardware address.
type NetworkFingerprint struct {
	SSID  string
	BSSID string
}

// LocationSource provides the current location fix, if one is available.
type LocationSource interface {
	CurrentFix(ctx context.Context) (*LocationFix, error)
}

// NetworkSource provides the currently joined network's fingerprint, if any.
type NetworkSource interface {
	CurrentFingerprint(ctx context.Context) (*NetworkFingerprint, error)
}
