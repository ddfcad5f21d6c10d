package verification

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/presenceguard/presenceguard/internal/session"
	"github.com/presenceguard/presenceguard/pkg/geo"
)

// FlagSource reports runtime toggles that affect scoring. Satisfied by the
// feature flag service.
type FlagSource interface {
	IsBeaconScoringDisabled(ctx context.Context) bool
}

// Scorer combines the mandatory token gate with the weighted optional
// checks. Stateless; safe for concurrent use.
type Scorer struct {
	flags  FlagSource
	logger zerolog.Logger
}

// NewScorer creates a scorer. flags may be nil, in which case beacon
// scoring is always on.
func NewScorer(flags FlagSource, logger zerolog.Logger) *Scorer {
	return &Scorer{flags: flags, logger: logger}
}

// Score verifies a scan event against its session context at the
// server-observed now. Component failures never surface as errors; they
// zero the component and show up in the breakdown.
func (s *Scorer) Score(ctx context.Context, now time.Time, event *ScanEvent, sess *session.Session) *Result {
	result := &Result{}

	// Token is a gate, not a weighted vote. Failure rejects with score 0
	// and no partial credit from the other components.
	if event.SessionToken != sess.Token || !sess.TokenValidAt(now) {
		result.Token = ComponentResult{Reason: ReasonInvalidToken}
		result.Location = ComponentResult{Reason: ReasonNotEvaluated}
		result.Network = ComponentResult{Reason: ReasonNotEvaluated}
		result.Beacon = ComponentResult{Reason: ReasonNotEvaluated}
		result.Reason = ReasonInvalidToken

		s.logger.Info().
			Str("student_id", event.StudentID).
			Str("session_id", event.SessionID).
			Msg("scan rejected by token gate")
		return result
	}
	result.Token = ComponentResult{Passed: true, Points: TokenWeight}

	result.Location = s.scoreGeofence(event, sess)
	result.Network = s.scoreNetwork(event, sess)
	result.Beacon = s.scoreBeacon(ctx, event, sess)

	result.Score = result.Token.Points + result.Location.Points + result.Network.Points + result.Beacon.Points
	result.Accepted = result.Score >= AcceptThreshold
	if !result.Accepted {
		result.Reason = dominantFailure(result)
	}

	s.logger.Debug().
		Str("student_id", event.StudentID).
		Str("session_id", event.SessionID).
		Int("score", result.Score).
		Bool("accepted", result.Accepted).
		Msg("scan scored")
	return result
}

func (s *Scorer) scoreGeofence(event *ScanEvent, sess *session.Session) ComponentResult {
	if event.Location == nil {
		return ComponentResult{Reason: ReasonSignalUnavailable}
	}

	radius := sess.GeofenceRadiusMeters
	if radius <= 0 {
		radius = DefaultGeofenceRadiusMeters
	}

	// Boundary distance equals the radius: inclusive pass.
	if geo.Distance(*event.Location, sess.Location) <= radius {
		return ComponentResult{Passed: true, Points: GeofenceWeight}
	}
	return ComponentResult{Reason: ReasonOutOfRange}
}

func (s *Scorer) scoreNetwork(event *ScanEvent, sess *session.Session) ComponentResult {
	if event.Network == nil || (event.Network.SSID == "" && event.Network.BSSID == "") {
		return ComponentResult{Reason: ReasonSignalUnavailable}
	}
	if sess.HasNetwork(event.Network.SSID, event.Network.BSSID) {
		return ComponentResult{Passed: true, Points: NetworkWeight}
	}
	return ComponentResult{Reason: ReasonNetworkMismatch}
}

func (s *Scorer) scoreBeacon(ctx context.Context, event *ScanEvent, sess *session.Session) ComponentResult {
	// Flag off is indistinguishable from every radio being off.
	if s.flags != nil && s.flags.IsBeaconScoringDisabled(ctx) {
		return ComponentResult{Reason: ReasonBeaconDisabled}
	}
	if len(event.Beacons) == 0 {
		return ComponentResult{Reason: ReasonNoBeaconDetected}
	}

	for _, obs := range event.Beacons {
		if obs.Record.ClassID == sess.ClassID && obs.SmoothedRSSI > BeaconRSSIFloor {
			return ComponentResult{Passed: true, Points: BeaconWeight}
		}
	}
	return ComponentResult{Reason: ReasonNoBeaconDetected}
}

// dominantFailure picks the highest-weight failing component's reason for
// the rejection message.
func dominantFailure(r *Result) string {
	for _, c := range []ComponentResult{r.Location, r.Network, r.Beacon} {
		if !c.Passed {
			return c.Reason
		}
	}
	return ""
}
