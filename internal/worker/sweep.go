// Package worker provides background job processing for PresenceGuard.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper expires stale pending switch requests. Satisfied by the binding
// service.
type Sweeper interface {
	ExpireStale(ctx context.Context) (int, error)
}

// FlagSource reports whether the sweep is paused.
type FlagSource interface {
	IsSwitchExpirySweepDisabled(ctx context.Context) bool
}

// SweepJob runs the pending switch-request expiry sweep.
type SweepJob struct {
	sweeper Sweeper
	flags   FlagSource
	logger  zerolog.Logger
	metrics *SweepMetrics
}

// SweepJobConfig holds configuration for creating a SweepJob.
type SweepJobConfig struct {
	Sweeper Sweeper
	Flags   FlagSource // optional
	Logger  zerolog.Logger
}

// NewSweepJob creates a new sweep job processor.
func NewSweepJob(cfg SweepJobConfig) *SweepJob {
	return &SweepJob{
		sweeper: cfg.Sweeper,
		flags:   cfg.Flags,
		logger:  cfg.Logger,
		metrics: &SweepMetrics{},
	}
}

// SweepMetrics tracks sweep job statistics.
type SweepMetrics struct {
	mu sync.RWMutex

	TotalRuns    int64
	FailedRuns   int64
	SkippedRuns  int64
	TotalExpired int64

	LastRunAt       time.Time
	LastRunDuration time.Duration
	LastRunExpired  int
}

// SweepResult contains the result of one sweep run.
type SweepResult struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Expired   int
	Skipped   bool
	Err       error
}

// Run executes one expiry sweep.
func (j *SweepJob) Run(ctx context.Context) *SweepResult {
	start := time.Now()
	result := &SweepResult{StartTime: start}

	if j.flags != nil && j.flags.IsSwitchExpirySweepDisabled(ctx) {
		result.Skipped = true
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(start)

		j.recordRun(result)
		j.logger.Info().Msg("switch expiry sweep disabled, skipping")
		return result
	}

	expired, err := j.sweeper.ExpireStale(ctx)
	result.Expired = expired
	result.Err = err
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(start)

	j.recordRun(result)

	if err != nil {
		j.logger.Error().Err(err).
			Int("expired", expired).
			Dur("duration", result.Duration).
			Msg("switch expiry sweep failed")
		return result
	}

	j.logger.Info().
		Int("expired", expired).
		Dur("duration", result.Duration).
		Msg("switch expiry sweep completed")
	return result
}

// Metrics returns a snapshot of the job metrics.
func (j *SweepJob) Metrics() SweepMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return SweepMetrics{
		TotalRuns:       j.metrics.TotalRuns,
		FailedRuns:      j.metrics.FailedRuns,
		SkippedRuns:     j.metrics.SkippedRuns,
		TotalExpired:    j.metrics.TotalExpired,
		LastRunAt:       j.metrics.LastRunAt,
		LastRunDuration: j.metrics.LastRunDuration,
		LastRunExpired:  j.metrics.LastRunExpired,
	}
}

func (j *SweepJob) recordRun(result *SweepResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	switch {
	case result.Skipped:
		j.metrics.SkippedRuns++
	case result.Err != nil:
		j.metrics.FailedRuns++
	default:
		j.metrics.TotalExpired += int64(result.Expired)
	}
	j.metrics.LastRunAt = result.StartTime
	j.metrics.LastRunDuration = result.Duration
	j.metrics.LastRunExpired = result.Expired
}
