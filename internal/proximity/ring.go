package proximity

import (
	"sync"
	"time"

	"github.com/presenceguard/presenceguard/internal/beacon"
)

// Observation is one decoded and smoothed beacon reading within a cycle.
type Observation struct {
	DeviceAddress string
	Record        beacon.Record
	SmoothedRSSI  float64
}

// CycleSample holds everything captured during one scan cycle.
type CycleSample struct {
	At           time.Time
	Observations []Observation
	Network      *NetworkFingerprint
	Location     *LocationFix
}

// SampleRing is a fixed-capacity buffer of cycle samples. The scheduler is
// the only writer; readers take a snapshot copy so a read never observes a
// partial append.
type SampleRing struct {
	mu    sync.Mutex
	buf   []CycleSample
	next  int
	count int
}

// NewSampleRing creates a ring holding at most capacity samples; the oldest
// sample is evicted first.
func NewSampleRing(capacity int) *SampleRing {
	if capacity <= 0 {
		capacity = 16
	}
	return &SampleRing{buf: make([]CycleSample, capacity)}
}

// Append adds a sample, evicting the oldest when full.
func (r *SampleRing) Append(s CycleSample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.next] = s
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// Snapshot returns a copy of the buffered samples, oldest first.
func (r *SampleRing) Snapshot() []CycleSample {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]CycleSample, 0, r.count)
	start := r.next - r.count
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

// Len returns the number of buffered samples.
func (r *SampleRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
