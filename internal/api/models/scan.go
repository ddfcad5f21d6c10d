package models

import "time"

// Network is a Wi-Fi fingerprint captured alongside a scan.
type Network struct {
	SSID  string `json:"ssid"`
	BSSID string `json:"bssid"`
}

// BeaconReading is one decoded beacon observation, already smoothed by the
// submitting agent.
type BeaconReading struct {
	DeviceAddress string  `json:"deviceAddress"`
	Version       uint8   `json:"version"`
	ClassID       uint16  `json:"classId"`
	SessionToken  uint32  `json:"sessionToken"`
	FacultyID     uint16  `json:"facultyId"`
	Flags         uint8   `json:"flags"`
	SmoothedRSSI  float64 `json:"smoothedRssi"`
}

// ScanSubmissionRequest is the request body for a scan submission.
type ScanSubmissionRequest struct {
	SessionID         string          `json:"sessionId" validate:"required"`
	SessionToken      uint32          `json:"sessionToken"`
	DeviceFingerprint string          `json:"deviceFingerprint" validate:"required"`
	Timestamp         time.Time       `json:"timestamp" validate:"required"`
	Location          *Point          `json:"location,omitempty"`
	Network           *Network        `json:"network,omitempty"`
	Beacons           []BeaconReading `json:"beacons,omitempty"`
}

// ComponentScore is the outcome of one verification component.
type ComponentScore struct {
	Passed bool   `json:"passed"`
	Points int    `json:"points"`
	Reason string `json:"reason,omitempty"`
}

// ScoreBreakdown is the per-component view of a scored scan.
type ScoreBreakdown struct {
	Token    ComponentScore `json:"token"`
	Location ComponentScore `json:"location"`
	Network  ComponentScore `json:"network"`
	Beacon   ComponentScore `json:"beacon"`
}

// ScanDecision is the response body for a scan submission.
type ScanDecision struct {
	Accepted   bool           `json:"accepted"`
	Score      int            `json:"score"`
	Reason     string         `json:"reason,omitempty"`
	Duplicate  bool           `json:"duplicate,omitempty"`
	Breakdown  ScoreBreakdown `json:"breakdown"`
	RecordedAt Timestamp      `json:"recordedAt"`
}

// AttendanceRecord is one recorded scan decision in the admin read view.
type AttendanceRecord struct {
	ID                string    `json:"id"`
	SessionID         string    `json:"sessionId"`
	StudentID         string    `json:"studentId"`
	DeviceFingerprint string    `json:"deviceFingerprint"`
	Timestamp         Timestamp `json:"timestamp"`
	Accepted          bool      `json:"accepted"`
	Score             int       `json:"score"`
	Reason            string    `json:"reason,omitempty"`
	RecordedAt        Timestamp `json:"recordedAt"`
}

// PagedAttendance is a page of attendance records.
type PagedAttendance struct {
	Items []AttendanceRecord `json:"items"`
	Meta  PagedResponseMeta  `json:"meta"`
}
