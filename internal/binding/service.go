package binding

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/presenceguard/presenceguard/internal/activity"
)

// Clock provides the current time. Injectable so cooldown math is
// deterministic under test; transitions never trust client-reported time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }

// ServiceConfig holds configuration for the binding service.
type ServiceConfig struct {
	Repo     Repository
	Activity activity.Repository
	Clock    Clock
	Logger   zerolog.Logger

	// Cooldown overrides SwitchCooldown; zero selects the default.
	Cooldown time.Duration

	// MaxPendingAge overrides PendingMaxAge; zero selects the default.
	MaxPendingAge time.Duration
}

// Service is the device-binding state machine. Transitions for one student
// are serialized through a per-student lock; different students proceed in
// parallel.
type Service struct {
	repo          Repository
	activity      activity.Repository
	clock         Clock
	logger        zerolog.Logger
	cooldown      time.Duration
	maxPendingAge time.Duration

	mu           sync.Mutex
	studentLocks map[string]*sync.Mutex
}

// NewService creates a new binding service.
func NewService(cfg ServiceConfig) *Service {
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock()
	}
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = SwitchCooldown
	}
	maxPendingAge := cfg.MaxPendingAge
	if maxPendingAge <= 0 {
		maxPendingAge = PendingMaxAge
	}

	return &Service{
		repo:          cfg.Repo,
		activity:      cfg.Activity,
		clock:         clock,
		logger:        cfg.Logger,
		cooldown:      cooldown,
		maxPendingAge: maxPendingAge,
		studentLocks:  make(map[string]*sync.Mutex),
	}
}

// lockStudent acquires the per-student transition lock.
func (s *Service) lockStudent(studentID string) *sync.Mutex {
	s.mu.Lock()
	l, ok := s.studentLocks[studentID]
	if !ok {
		l = &sync.Mutex{}
		s.studentLocks[studentID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l
}

// RegisterLogin records a login from a device fingerprint and returns the
// discriminated access outcome. Cooldown and approval are both re-checked
// here, atomically under the student lock, so a login can never complete a
// switch on conditions cached from an earlier call.
func (s *Service) RegisterLogin(ctx context.Context, studentID, fingerprint string) (*LoginOutcome, error) {
	l := s.lockStudent(studentID)
	defer l.Unlock()

	now := s.clock.Now()

	bound, err := s.repo.GetBoundDevice(ctx, studentID)
	if errors.Is(err, ErrDeviceNotBound) {
		return s.activateFirstDevice(ctx, studentID, fingerprint, now)
	}
	if err != nil {
		return nil, err
	}

	if bound.Fingerprint == fingerprint {
		exp := now.Add(BindingDuration)
		bound.BindingExpiresAt = &exp
		if err := s.repo.SaveDevice(ctx, bound); err != nil {
			return nil, err
		}
		return &LoginOutcome{Kind: LoginFullAccess, Device: bound}, nil
	}

	// Fingerprint differs from the bound device.
	req, err := s.repo.GetPendingSwitchRequest(ctx, studentID)
	if errors.Is(err, ErrRequestNotFound) {
		req, err = s.createSwitchRequest(ctx, studentID, bound.Fingerprint, fingerprint, now)
		if err != nil {
			return nil, err
		}
		return &LoginOutcome{Kind: LoginLimitedAccess, Device: bound, Request: req}, nil
	}
	if err != nil {
		return nil, err
	}

	if now.Sub(req.RequestedAt) > s.maxPendingAge {
		if err := s.expireRequest(ctx, req, now); err != nil {
			return nil, err
		}
		fresh, err := s.createSwitchRequest(ctx, studentID, bound.Fingerprint, fingerprint, now)
		if err != nil {
			return nil, err
		}
		return &LoginOutcome{Kind: LoginLimitedAccess, Device: bound, Request: fresh}, nil
	}

	if req.NewFingerprint != fingerprint {
		// The single pending slot is already held by another device.
		return &LoginOutcome{Kind: LoginLimitedAccess, Device: bound, Request: req}, nil
	}

	if !req.CooldownElapsed(now) {
		return &LoginOutcome{Kind: LoginLimitedAccess, Device: bound, Request: req}, nil
	}
	if !req.AdminApproved {
		return &LoginOutcome{Kind: LoginAwaitingApproval, Device: bound, Request: req}, nil
	}

	return s.completeSwitch(ctx, req, bound, now)
}

// ApproveSwitch records an admin approval on a pending request. Approval
// alone never rebinds; completion happens on the next login once the
// cooldown has elapsed.
func (s *Service) ApproveSwitch(ctx context.Context, requestID, adminID string) error {
	req, err := s.repo.GetSwitchRequest(ctx, requestID)
	if err != nil {
		return err
	}

	l := s.lockStudent(req.StudentID)
	defer l.Unlock()

	// Re-load under the lock so the state check and the mutation are one
	// transition.
	req, err = s.repo.GetSwitchRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status != SwitchPending {
		return ErrInvalidStateTransition
	}

	now := s.clock.Now()
	req.AdminApproved = true
	req.ApprovedBy = adminID
	req.ApprovedAt = &now
	if err := s.repo.SaveSwitchRequest(ctx, req); err != nil {
		return err
	}

	s.record(ctx, activity.Entry{
		StudentID:         req.StudentID,
		DeviceFingerprint: req.NewFingerprint,
		Type:              activity.TypeSwitchApproved,
		Actor:             adminID,
		At:                now,
	})

	s.logger.Info().
		Str("request_id", req.ID).
		Str("student_id", req.StudentID).
		Str("admin_id", adminID).
		Msg("switch request approved")
	return nil
}

// RejectSwitch marks a pending request rejected. The old device stays
// bound; the new fingerprint remains limited until a fresh request is
// created.
func (s *Service) RejectSwitch(ctx context.Context, requestID, adminID, reason string) error {
	req, err := s.repo.GetSwitchRequest(ctx, requestID)
	if err != nil {
		return err
	}

	l := s.lockStudent(req.StudentID)
	defer l.Unlock()

	req, err = s.repo.GetSwitchRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status != SwitchPending {
		return ErrInvalidStateTransition
	}

	now := s.clock.Now()
	req.Status = SwitchRejected
	req.RejectedReason = reason
	if err := s.repo.SaveSwitchRequest(ctx, req); err != nil {
		return err
	}

	s.record(ctx, activity.Entry{
		StudentID:         req.StudentID,
		DeviceFingerprint: req.NewFingerprint,
		Type:              activity.TypeSwitchRejected,
		Actor:             adminID,
		Reason:            reason,
		At:                now,
	})

	s.logger.Info().
		Str("request_id", req.ID).
		Str("student_id", req.StudentID).
		Str("admin_id", adminID).
		Str("reason", reason).
		Msg("switch request rejected")
	return nil
}

// EmergencyActivate bypasses both gates: the bound device is deactivated
// immediately and the new fingerprint bound. The admin identity and reason
// are mandatory audit fields.
func (s *Service) EmergencyActivate(ctx context.Context, studentID, newFingerprint, adminID, reason string) (*Device, error) {
	l := s.lockStudent(studentID)
	defer l.Unlock()

	now := s.clock.Now()

	old, err := s.repo.GetBoundDevice(ctx, studentID)
	if err != nil && !errors.Is(err, ErrDeviceNotBound) {
		return nil, err
	}
	if old != nil {
		old.Bound = false
		old.DeactivatedAt = &now
		if err := s.repo.SaveDevice(ctx, old); err != nil {
			return nil, err
		}
		s.record(ctx, activity.Entry{
			StudentID:         studentID,
			DeviceFingerprint: old.Fingerprint,
			Type:              activity.TypeDeviceDeactivated,
			Actor:             adminID,
			Reason:            reason,
			At:                now,
		})
	}

	// A pending request for this student is superseded.
	if pending, err := s.repo.GetPendingSwitchRequest(ctx, studentID); err == nil {
		pending.Status = SwitchRejected
		pending.RejectedReason = "superseded by emergency activation"
		if err := s.repo.SaveSwitchRequest(ctx, pending); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, ErrRequestNotFound) {
		return nil, err
	}

	device, err := s.bindDevice(ctx, studentID, newFingerprint, now)
	if err != nil {
		return nil, err
	}

	// The audit trail is the point of this operation; failing to write it
	// fails the activation.
	if err := s.activity.Append(ctx, activity.Entry{
		StudentID:         studentID,
		DeviceFingerprint: newFingerprint,
		Type:              activity.TypeEmergencyActivation,
		Actor:             adminID,
		Reason:            reason,
		At:                now,
	}); err != nil {
		return nil, err
	}

	s.logger.Warn().
		Str("student_id", studentID).
		Str("fingerprint", newFingerprint).
		Str("admin_id", adminID).
		Str("reason", reason).
		Msg("emergency device activation")
	return device, nil
}

// Authorize reports whether a fingerprint may submit scan events for the
// student right now.
func (s *Service) Authorize(ctx context.Context, studentID, fingerprint string) error {
	bound, err := s.repo.GetBoundDevice(ctx, studentID)
	if errors.Is(err, ErrDeviceNotBound) {
		return ErrDeviceNotBound
	}
	if err != nil {
		return err
	}
	if bound.Fingerprint != fingerprint {
		return ErrDeviceLimitedAccess
	}
	return nil
}

// ExpireStale transitions pending requests older than the max age to
// expired. Returns the number of requests expired.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	now := s.clock.Now()
	stale, err := s.repo.ListStalePending(ctx, now.Add(-s.maxPendingAge))
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, req := range stale {
		l := s.lockStudent(req.StudentID)
		err := s.expireRequest(ctx, req, now)
		l.Unlock()
		if err != nil {
			return expired, err
		}
		expired++
	}
	return expired, nil
}

// ListSwitchRequests retrieves requests for the admin read view.
func (s *Service) ListSwitchRequests(ctx context.Context, filter SwitchRequestFilter) ([]*SwitchRequest, error) {
	return s.repo.ListSwitchRequests(ctx, filter)
}

func (s *Service) activateFirstDevice(ctx context.Context, studentID, fingerprint string, now time.Time) (*LoginOutcome, error) {
	device, err := s.bindDevice(ctx, studentID, fingerprint, now)
	if err != nil {
		return nil, err
	}

	s.record(ctx, activity.Entry{
		StudentID:         studentID,
		DeviceFingerprint: fingerprint,
		Type:              activity.TypeDeviceActivated,
		Actor:             studentID,
		At:                now,
	})

	s.logger.Info().
		Str("student_id", studentID).
		Str("fingerprint", fingerprint).
		Msg("first device activated")
	return &LoginOutcome{Kind: LoginActivatedFirstDevice, Device: device}, nil
}

// bindDevice activates and binds the fingerprint's device record, creating
// it if this is the first sighting.
func (s *Service) bindDevice(ctx context.Context, studentID, fingerprint string, now time.Time) (*Device, error) {
	device, err := s.repo.GetDeviceByFingerprint(ctx, studentID, fingerprint)
	if errors.Is(err, ErrDeviceNotFound) {
		device = &Device{
			ID:          "dev_" + uuid.New().String()[:22],
			StudentID:   studentID,
			Fingerprint: fingerprint,
		}
	} else if err != nil {
		return nil, err
	}

	exp := now.Add(BindingDuration)
	device.Bound = true
	device.ActivatedAt = now
	device.DeactivatedAt = nil
	device.BindingExpiresAt = &exp

	if err := s.repo.SaveDevice(ctx, device); err != nil {
		return nil, err
	}
	return device, nil
}

// createSwitchRequest opens the student's single pending slot and ensures
// an unbound device record exists for the new fingerprint.
func (s *Service) createSwitchRequest(ctx context.Context, studentID, oldFingerprint, newFingerprint string, now time.Time) (*SwitchRequest, error) {
	if _, err := s.repo.GetDeviceByFingerprint(ctx, studentID, newFingerprint); errors.Is(err, ErrDeviceNotFound) {
		device := &Device{
			ID:          "dev_" + uuid.New().String()[:22],
			StudentID:   studentID,
			Fingerprint: newFingerprint,
			ActivatedAt: now,
		}
		if err := s.repo.SaveDevice(ctx, device); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	req := &SwitchRequest{
		ID:                 "swr_" + uuid.New().String()[:22],
		StudentID:          studentID,
		OldFingerprint:     oldFingerprint,
		NewFingerprint:     newFingerprint,
		RequestedAt:        now,
		CooldownCompleteAt: now.Add(s.cooldown),
		Status:             SwitchPending,
	}
	if err := s.repo.SaveSwitchRequest(ctx, req); err != nil {
		return nil, err
	}

	s.record(ctx, activity.Entry{
		StudentID:         studentID,
		DeviceFingerprint: newFingerprint,
		Type:              activity.TypeSwitchRequested,
		Actor:             studentID,
		At:                now,
	})

	s.logger.Info().
		Str("student_id", studentID).
		Str("request_id", req.ID).
		Time("cooldown_complete_at", req.CooldownCompleteAt).
		Msg("switch request created")
	return req, nil
}

func (s *Service) completeSwitch(ctx context.Context, req *SwitchRequest, old *Device, now time.Time) (*LoginOutcome, error) {
	newDevice, err := s.repo.GetDeviceByFingerprint(ctx, req.StudentID, req.NewFingerprint)
	if errors.Is(err, ErrDeviceNotFound) {
		newDevice = &Device{
			ID:          "dev_" + uuid.New().String()[:22],
			StudentID:   req.StudentID,
			Fingerprint: req.NewFingerprint,
		}
	} else if err != nil {
		return nil, err
	}

	old.Bound = false
	old.DeactivatedAt = &now

	exp := now.Add(BindingDuration)
	newDevice.Bound = true
	newDevice.ActivatedAt = now
	newDevice.DeactivatedAt = nil
	newDevice.BindingExpiresAt = &exp

	req.Status = SwitchApproved

	if err := s.repo.CompleteSwitch(ctx, req, old, newDevice); err != nil {
		return nil, err
	}

	s.record(ctx, activity.Entry{
		StudentID:         req.StudentID,
		DeviceFingerprint: req.NewFingerprint,
		Type:              activity.TypeSwitchCompleted,
		Actor:             req.StudentID,
		At:                now,
	})

	s.logger.Info().
		Str("student_id", req.StudentID).
		Str("request_id", req.ID).
		Str("old_fingerprint", old.Fingerprint).
		Str("new_fingerprint", newDevice.Fingerprint).
		Msg("device switch completed")
	return &LoginOutcome{Kind: LoginSwitchCompleted, Device: newDevice, Request: req}, nil
}

func (s *Service) expireRequest(ctx context.Context, req *SwitchRequest, now time.Time) error {
	req.Status = SwitchExpired
	if err := s.repo.SaveSwitchRequest(ctx, req); err != nil {
		return err
	}

	s.record(ctx, activity.Entry{
		StudentID:         req.StudentID,
		DeviceFingerprint: req.NewFingerprint,
		Type:              activity.TypeSwitchExpired,
		At:                now,
	})
	return nil
}

// record appends an audit entry best-effort; the transition itself has
// already been persisted.
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
