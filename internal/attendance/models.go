// Package attendance orchestrates scan submission: binding gate, session
// context load, scoring, and the idempotent attendance write.
package attendance

import (
	"errors"
	"time"

	"github.com/presenceguard/presenceguard/internal/verification"
)

// Attendance errors.
var (
	// ErrRetriable indicates the final attendance write failed; the client
	// may resubmit the identical scan event without double counting.
	ErrRetriable = errors.New("attendance write failed, safe to resubmit")

	// ErrSubmissionsDisabled indicates the scan submission kill switch is
	// on.
	ErrSubmissionsDisabled = errors.New("scan submissions are disabled")
)

// Record is the persisted outcome of one scan event, keyed uniquely by
// (session, student, event timestamp) so resubmission cannot double count.
type Record struct {
	ID                string
	SessionID         string
	StudentID         string
	DeviceFingerprint string

	// At is the client event timestamp, part of the idempotency key.
	At time.Time

	Accepted   bool
	Score      int
	Reason     string
	Breakdown  verification.Result
	RecordedAt time.Time
}

// SubmitResult is what the caller renders after a submission.
type SubmitResult struct {
	Record *Record

	// Duplicate is true when an identical event had already been recorded;
	// Record then holds the original outcome.
	Duplicate bool
}
