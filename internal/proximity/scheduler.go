package proximity

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/presenceguard/presenceguard/internal/beacon"
)

// Scheduler timing defaults.
const (
	DefaultWarmWindow    = 3 * time.Minute
	DefaultCycleInterval = 30 * time.Second
	DefaultQuickScan     = 700 * time.Millisecond
	DefaultExtendedScan  = 12 * time.Second
	DefaultSourceTimeout = 2 * time.Second
	DefaultRingCapacity  = 16
)

// ErrWindowClosed is returned by Run when the warm window has already ended.
var ErrWindowClosed = errors.New("scan window already closed")

// SchedulerConfig holds configuration for a scan scheduler.
type SchedulerConfig struct {
	Driver   Driver
	Location LocationSource
	Network  NetworkSource
	Logger   zerolog.Logger

	// SessionStart is when the session begins; scanning runs only inside
	// the warm window ending at this instant.
	SessionStart time.Time

	// ClassID identifies the relevant beacons for this session.
	ClassID uint16

	// WarmWindow is how long before SessionStart scanning may run.
	WarmWindow time.Duration

	// CycleInterval is the spacing between scan cycles.
	CycleInterval time.Duration

	// QuickScanDuration bounds the low-latency scan in each cycle.
	QuickScanDuration time.Duration

	// ExtendedScanDuration bounds the one fallback discovery scan.
	ExtendedScanDuration time.Duration

	// SourceTimeout bounds the location and network fingerprint fetches;
	// on timeout the sample records "signal unavailable".
	SourceTimeout time.Duration

	// RingCapacity is the sample buffer size.
	RingCapacity int
}

// Scheduler orchestrates bounded scan cycles inside the warm window and
// owns the sample ring buffer.
type Scheduler struct {
	cfg      SchedulerConfig
	smoother *beacon.Smoother
	ring     *SampleRing
	logger   zerolog.Logger

	stop chan struct{}
}

// NewScheduler creates a scheduler. Zero durations select the defaults.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.WarmWindow <= 0 {
		cfg.WarmWindow = DefaultWarmWindow
	}
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = DefaultCycleInterval
	}
	if cfg.QuickScanDuration <= 0 {
		cfg.QuickScanDuration = DefaultQuickScan
	}
	if cfg.ExtendedScanDuration <= 0 {
		cfg.ExtendedScanDuration = DefaultExtendedScan
	}
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = DefaultSourceTimeout
	}
	if cfg.RingCapacity <= 0 {
		cfg.RingCapacity = DefaultRingCapacity
	}

	return &Scheduler{
		cfg:      cfg,
		smoother: beacon.NewSmoother(beacon.DefaultAlpha),
		ring:     NewSampleRing(cfg.RingCapacity),
		stop:     make(chan struct{}),
	}
}

// Samples returns the scheduler's ring buffer.
func (s *Scheduler) Samples() *SampleRing {
	return s.ring
}

// Stop ends the schedule. Safe to call from any goroutine; the running
// cycle is cancelled and the scan handle released before Run returns.
func (s *Scheduler) Stop() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}

// Run executes scan cycles until the warm window ends, Stop is called, or
// ctx is cancelled. It blocks; callers run it on its own goroutine.
func (s *Scheduler) Run(ctx context.Context) error {
	windowStart := s.cfg.SessionStart.Add(-s.cfg.WarmWindow)
	now := time.Now()

	if !now.Before(s.cfg.SessionStart) {
		return ErrWindowClosed
	}

	// Sleep until the window opens.
	if now.Before(windowStart) {
		timer := time.NewTimer(windowStart.Sub(now))
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-s.stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	windowEnd := time.NewTimer(time.Until(s.cfg.SessionStart))
	defer windowEnd.Stop()

	ticker := time.NewTicker(s.cfg.CycleInterval)
	defer ticker.Stop()

	s.logger.Info().
		Time("session_start", s.cfg.SessionStart).
		Dur("warm_window", s.cfg.WarmWindow).
		Msg("scan window open")

	// First cycle runs immediately; subsequent cycles on the ticker.
	s.runCycle(ctx)

	for {
		select {
		case <-ticker.C:
			s.runCycle(ctx)
		case <-windowEnd.C:
			s.logger.Info().Msg("scan window closed")
			return nil
		case <-s.stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// runCycle performs one scan cycle: a quick scan, one extended-discovery
// fallback if nothing relevant was heard, and a concurrent capture of the
// network fingerprint and location fix. A cycle that exceeds its hard
// timeout is abandoned without stalling the schedule.
func (s *Scheduler) runCycle(ctx context.Context) {
	cycleCtx, cancel := context.WithTimeout(ctx, s.cfg.CycleInterval)
	defer cancel()

	started := time.Now()

	// Capture collaborators concurrently with the radio scan.
	netCh := make(chan *NetworkFingerprint, 1)
	locCh := make(chan *LocationFix, 1)
	go func() { netCh <- s.fetchNetwork(cycleCtx) }()
	go func() { locCh <- s.fetchLocation(cycleCtx) }()

	observations := s.scan(cycleCtx, s.cfg.Driver.StartQuickScan, s.cfg.QuickScanDuration)
	if !s.anyRelevant(observations) {
		// Fall back once to discovery mode, then end the cycle.
		observations = append(observations,
			s.scan(cycleCtx, s.cfg.Driver.StartExtendedDiscovery, s.cfg.ExtendedScanDuration)...)
	}

	sample := CycleSample{
		At:           started,
		Observations: observations,
		Network:      <-netCh,
		Location:     <-locCh,
	}

	if cycleCtx.Err() != nil && len(observations) == 0 {
		// No reading this cycle.
		s.logger.Debug().Msg("scan cycle aborted")
		return
	}

	s.ring.Append(sample)

	s.logger.Debug().
		Int("observations", len(observations)).
		Bool("relevant", s.anyRelevant(observations)).
		Dur("duration", time.Since(started)).
		Msg("scan cycle complete")
}

// scan starts a scan via start, collects observations for at most d, and
// always releases the handle.
func (s *Scheduler) scan(ctx context.Context, start func(context.Context) (ScanHandle, error), d time.Duration) []Observation {
	handle, err := start(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("scan start failed")
		return nil
	}
	defer handle.Stop()

	deadline := time.NewTimer(d)
	defer deadline.Stop()

	var out []Observation
	for {
		select {
		case adv, ok := <-handle.Results():
			if !ok {
				return out
			}
			rec := beacon.Decode(adv.Raw)
			if rec == nil {
				// Malformed or foreign payload; treated as absence.
				continue
			}
			out = append(out, Observation{
				DeviceAddress: adv.DeviceAddress,
				Record:        *rec,
				SmoothedRSSI:  s.smoother.Update(adv.DeviceAddress, adv.RSSI),
			})
		case <-deadline.C:
			return out
		case <-ctx.Done():
			return out
		}
	}
}

func (s *Scheduler) anyRelevant(obs []Observation) bool {
	for _, o := range obs {
		if o.Record.ClassID == s.cfg.ClassID {
			return true
		}
	}
	return false
}

func (s *Scheduler) fetchNetwork(ctx context.Context) *NetworkFingerprint {
	if s.cfg.Network == nil {
		return nil
	}
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.SourceTimeout)
	defer cancel()

	fp, err := s.cfg.Network.CurrentFingerprint(fetchCtx)
	if err != nil {
		s.logger.Debug().Err(err).Msg("network fingerprint unavailable")
		return nil
	}
	return fp
}

func (s *Scheduler) fetchLocation(ctx context.Context) *LocationFix {
	if s.cfg.Location == nil {
		return nil
	}
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.SourceTimeout)
	defer cancel()

	fix, err := s.cfg.Location.CurrentFix(fetchCtx)
	if err != nil {
		s.logger.Debug().Err(err).Msg("location fix unavailable")
		return nil
	}
	return fix
}
