package attendance

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/presenceguard/presenceguard/internal/activity"
	"github.com/presenceguard/presenceguard/internal/binding"
	"github.com/presenceguard/presenceguard/internal/session"
	"github.com/presenceguard/presenceguard/internal/verification"
)

// sessionRetryInterval spaces the single transparent retry of the session
// context read.
const sessionRetryInterval = 150 * time.Millisecond

// BindingGate authorizes a fingerprint to submit scans for a student.
// Satisfied by the binding service.
type BindingGate interface {
	Authorize(ctx context.Context, studentID, fingerprint string) error
}

// Scorer turns a scan event plus session context into a decision.
// Satisfied by the verification scorer.
type Scorer interface {
	Score(ctx context.Context, now time.Time, event *verification.ScanEvent, sess *session.Session) *verification.Result
}

// FlagSource reports the submission kill switch.
type FlagSource interface {
	IsScanSubmissionDisabled(ctx context.Context) bool
}

// ServiceConfig holds configuration for the attendance service.
type ServiceConfig struct {
	Binding  BindingGate
	Sessions session.Repository
	Scorer   Scorer
	Repo     Repository
	Activity activity.Repository
	Flags    FlagSource
	Clock    binding.Clock
	Logger   zerolog.Logger
}

// Service is the request-level orchestrator for scan submissions.
type Service struct {
	binding  BindingGate
	sessions session.Repository
	scorer   Scorer
	repo     Repository
	activity activity.Repository
	flags    FlagSource
	clock    binding.Clock
	logger   zerolog.Logger
}

// NewService creates a new attendance service.
func NewService(cfg ServiceConfig) *Service {
	clock := cfg.Clock
	if clock == nil {
		clock = binding.SystemClock()
	}
	return &Service{
		binding:  cfg.Binding,
		sessions: cfg.Sessions,
		scorer:   cfg.Scorer,
		repo:     cfg.Repo,
		activity: cfg.Activity,
		flags:    cfg.Flags,
		clock:    clock,
		logger:   cfg.Logger,
	}
}

// Submit verifies and records one scan event. Binding-gate failures return
// the typed binding errors; a failed final write returns ErrRetriable and
// the identical event may be resubmitted without double counting.
func (s *Service) Submit(ctx context.Context, event *verification.ScanEvent) (*SubmitResult, error) {
	if s.flags != nil && s.flags.IsScanSubmissionDisabled(ctx) {
		return nil, ErrSubmissionsDisabled
	}

	if err := s.binding.Authorize(ctx, event.StudentID, event.DeviceFingerprint); err != nil {
		s.recordGateRejection(ctx, event, err)
		return nil, err
	}

	sess, err := s.loadSession(ctx, event.SessionID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	result := s.scorer.Score(ctx, now, event, sess)

	// Re-check the binding right before the final accept: a switch
	// completed or an emergency activation mid-flight must not admit a
	// scan from the stale device.
	if result.Accepted {
		if err := s.binding.Authorize(ctx, event.StudentID, event.DeviceFingerprint); err != nil {
			s.recordGateRejection(ctx, event, err)
			return nil, err
		}
	}

	record := &Record{
		SessionID:         event.SessionID,
		StudentID:         event.StudentID,
		DeviceFingerprint: event.DeviceFingerprint,
		At:                event.At,
		Accepted:          result.Accepted,
		Score:             result.Score,
		Reason:            result.Reason,
		Breakdown:         *result,
		RecordedAt:        now,
	}

	stored, created, err := s.repo.Insert(ctx, record)
	if err != nil {
		s.logger.Error().Err(err).
			Str("student_id", event.StudentID).
			Str("session_id", event.SessionID).
			Msg("attendance write failed")
		return nil, ErrRetriable
	}

	if created {
		entryType := activity.TypeScanAccepted
		if !stored.Accepted {
			entryType = activity.TypeScanRejected
		}
		s.record(ctx, activity.Entry{
			StudentID:         event.StudentID,
			DeviceFingerprint: event.DeviceFingerprint,
			Type:              entryType,
			Actor:             event.StudentID,
			Reason:            stored.Reason,
			At:                now,
		})
	}

	s.logger.Info().
		Str("student_id", event.StudentID).
		Str("session_id", event.SessionID).
		Bool("accepted", stored.Accepted).
		Int("score", stored.Score).
		Bool("duplicate", !created).
		Msg("scan submission processed")

	return &SubmitResult{Record: stored, Duplicate: !created}, nil
}

// ListBySession exposes the per-session attendance projection.
func (s *Service) ListBySession(ctx context.Context, sessionID string) ([]*Record, error) {
	return s.repo.ListBySession(ctx, sessionID)
}

// loadSession reads the session context, retrying a transient failure once.
// A missing session is permanent.
func (s *Service) loadSession(ctx context.Context, sessionID string) (*session.Session, error) {
	var sess *session.Session

	operation := func() error {
		var err error
		sess, err = s.sessions.GetSession(ctx, sessionID)
		if errors.Is(err, session.ErrSessionNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(sessionRetryInterval), 1),
		ctx,
	)
	if err := backoff.Retry(operation, bo); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) recordGateRejection(ctx context.Context, event *verification.ScanEvent, gateErr error) {
	s.record(ctx, activity.Entry{
		StudentID:         event.StudentID,
		DeviceFingerprint: event.DeviceFingerprint,
		Type:              activity.TypeScanRejected,
		Actor:             event.StudentID,
		Reason:            gateErr.Error(),
		At:                s.clock.Now(),
	})
}

func (s *Service) record(ctx context.Context, entry activity.Entry) {
	if s.activity == nil {
		return
	}
	if err := s.activity.Append(ctx, entry); err != nil {
		s.logger.Warn().Err(err).
			Str("student_id", entry.StudentID).
			Str("activity_type", entry.Type).
			Msg("failed to append activity log entry")
	}
}
