package verification

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/presenceguard/presenceguard/internal/beacon"
	"github.com/presenceguard/presenceguard/internal/session"
	"github.com/presenceguard/presenceguard/pkg/geo"
)

type fakeFlags struct {
	beaconDisabled bool
}

func (f *fakeFlags) IsBeaconScoringDisabled(context.Context) bool { return f.beaconDisabled }

var sessionStart = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

func testSession() *session.Session {
	return &session.Session{
		ID:                   "ses-1",
		ClassID:              301,
		FacultyID:            7,
		Token:                0xAB12CD34,
		StartsAt:             sessionStart,
		EndsAt:               sessionStart.Add(time.Hour),
		Location:             geo.Point{Lat: 52.52, Lon: 13.405},
		GeofenceRadiusMeters: 50,
		Networks: []session.Network{
			{SSID: "campus", BSSID: "aa:bb:cc:dd:ee:ff"},
		},
	}
}

func goodEvent(sess *session.Session) *ScanEvent {
	near := sess.Location
	near.Lat += 0.0002 // ~22m north
	return &ScanEvent{
		StudentID:         "stu-1",
		SessionID:         sess.ID,
		SessionToken:      sess.Token,
		DeviceFingerprint: "fp-a",
		At:                sessionStart.Add(time.Minute),
		Location:          &near,
		Network:           &NetworkFingerprint{SSID: "campus", BSSID: "aa:bb:cc:dd:ee:ff"},
		Beacons: []BeaconObservation{
			{Record: beacon.Record{Version: 1, ClassID: 301, SessionToken: sess.Token, FacultyID: 7}, SmoothedRSSI: -62},
		},
	}
}

func TestScoreAllSignalsPresent(t *testing.T) {
	scorer := NewScorer(&fakeFlags{}, zerolog.Nop())
	sess := testSession()

	result := scorer.Score(context.Background(), sessionStart, goodEvent(sess), sess)

	if !result.Accepted {
		t.Fatalf("Accepted = false, reason %q", result.Reason)
	}
	if result.Score != 100 {
		t.Errorf("Score = %d, want 100", result.Score)
	}
	for name, c := range map[string]ComponentResult{
		"token":    result.Token,
		"location": result.Location,
		"network":  result.Network,
		"beacon":   result.Beacon,
	} {
		if !c.Passed {
			t.Errorf("%s component failed: %q", name, c.Reason)
		}
	}
}

func TestScoreTokenGateDominates(t *testing.T) {
	scorer := NewScorer(&fakeFlags{}, zerolog.Nop())
	sess := testSession()

	// Perfect geofence/network/beacon cannot rescue a bad token.
	event := goodEvent(sess)
	event.SessionToken = sess.Token + 1

	result := scorer.Score(context.Background(), sessionStart, event, sess)

	if result.Accepted {
		t.Fatal("token failure must reject")
	}
	if result.Score != 0 {
		t.Errorf("Score = %d, want 0 (no partial credit)", result.Score)
	}
	if result.Reason != ReasonInvalidToken {
		t.Errorf("Reason = %q, want %q", result.Reason, ReasonInvalidToken)
	}
	if result.Location.Reason != ReasonNotEvaluated {
		t.Errorf("location reason = %q, want %q", result.Location.Reason, ReasonNotEvaluated)
	}
}

func TestScoreTokenExpiry(t *testing.T) {
	scorer := NewScorer(&fakeFlags{}, zerolog.Nop())
	sess := testSession()
	event := goodEvent(sess)

	tests := []struct {
		name   string
		now    time.Time
		accept bool
	}{
		{"during session", sessionStart.Add(30 * time.Minute), true},
		{"within grace after end", sess.EndsAt.Add(time.Hour), true},
		{"past grace period", sess.EndsAt.Add(session.TokenGracePeriod + time.Minute), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := scorer.Score(context.Background(), tt.now, event, sess)
			if result.Accepted != tt.accept {
				t.Errorf("Accepted = %v, want %v (reason %q)", result.Accepted, tt.accept, result.Reason)
			}
		})
	}
}

func TestScoreOutOfRange(t *testing.T) {
	scorer := NewScorer(&fakeFlags{}, zerolog.Nop())
	sess := testSession()

	// Token valid, ~200m away, network match, no beacon: 40+0+20+0 = 60.
	far := sess.Location
	far.Lat += 0.0018
	event := goodEvent(sess)
	event.Location = &far
	event.Beacons = nil

	result := scorer.Score(context.Background(), sessionStart, event, sess)

	if result.Accepted {
		t.Fatal("expected reject below threshold")
	}
	if result.Score != 60 {
		t.Errorf("Score = %d, want 60", result.Score)
	}
	if result.Reason != ReasonOutOfRange {
		t.Errorf("Reason = %q, want %q", result.Reason, ReasonOutOfRange)
	}
	if result.Beacon.Reason != ReasonNoBeaconDetected {
		t.Errorf("beacon reason = %q, want %q", result.Beacon.Reason, ReasonNoBeaconDetected)
	}
}

func TestScoreGeofenceBoundaryInclusive(t *testing.T) {
	scorer := NewScorer(&fakeFlags{}, zerolog.Nop())
	sess := testSession()

	// Pin the radius to the exact distance of the fix: the boundary is a
	// pass.
	at := sess.Location
	at.Lat += 0.0004
	sess.GeofenceRadiusMeters = geo.Distance(at, sess.Location)

	event := goodEvent(sess)
	event.Location = &at

	result := scorer.Score(context.Background(), sessionStart, event, sess)
	if !result.Location.Passed {
		t.Errorf("boundary distance must pass, reason %q", result.Location.Reason)
	}
}

func TestScoreMissingSignals(t *testing.T) {
	scorer := NewScorer(&fakeFlags{}, zerolog.Nop())
	sess := testSession()

	event := goodEvent(sess)
	event.Location = nil
	event.Network = nil
	event.Beacons = nil

	result := scorer.Score(context.Background(), sessionStart, event, sess)

	// Token alone: 40 < 70.
	if result.Accepted {
		t.Fatal("expected reject with only a token")
	}
	if result.Score != TokenWeight {
		t.Errorf("Score = %d, want %d", result.Score, TokenWeight)
	}
	if result.Location.Reason != ReasonSignalUnavailable {
		t.Errorf("location reason = %q, want %q", result.Location.Reason, ReasonSignalUnavailable)
	}
	if result.Network.Reason != ReasonSignalUnavailable {
		t.Errorf("network reason = %q, want %q", result.Network.Reason, ReasonSignalUnavailable)
	}
}

func TestScoreNetworkMismatch(t *testing.T) {
	scorer := NewScorer(&fakeFlags{}, zerolog.Nop())
	sess := testSession()

	tests := []struct {
		name    string
		network NetworkFingerprint
	}{
		{"wrong ssid", NetworkFingerprint{SSID: "cafe-wifi", BSSID: "aa:bb:cc:dd:ee:ff"}},
		{"wrong bssid", NetworkFingerprint{SSID: "campus", BSSID: "11:22:33:44:55:66"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := goodEvent(sess)
			event.Network = &tt.network

			result := scorer.Score(context.Background(), sessionStart, event, sess)
			if result.Network.Passed {
				t.Error("expected network component to fail")
			}
			if result.Network.Reason != ReasonNetworkMismatch {
				t.Errorf("network reason = %q, want %q", result.Network.Reason, ReasonNetworkMismatch)
			}
		})
	}
}

func TestScoreBeaconComponent(t *testing.T) {
	scorer := NewScorer(&fakeFlags{}, zerolog.Nop())
	sess := testSession()

	tests := []struct {
		name string
		obs  BeaconObservation
		pass bool
	}{
		{"matching class, strong signal", BeaconObservation{Record: beacon.Record{ClassID: 301}, SmoothedRSSI: -70}, true},
		{"just above the floor", BeaconObservation{Record: beacon.Record{ClassID: 301}, SmoothedRSSI: -79.9}, true},
		{"exactly at the floor", BeaconObservation{Record: beacon.Record{ClassID: 301}, SmoothedRSSI: -80}, false},
		{"wrong class id", BeaconObservation{Record: beacon.Record{ClassID: 999}, SmoothedRSSI: -50}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := goodEvent(sess)
			event.Beacons = []BeaconObservation{tt.obs}

			result := scorer.Score(context.Background(), sessionStart, event, sess)
			if result.Beacon.Passed != tt.pass {
				t.Errorf("beacon passed = %v, want %v (reason %q)", result.Beacon.Passed, tt.pass, result.Beacon.Reason)
			}
		})
	}
}

func TestScoreBeaconFlagDisabled(t *testing.T) {
	scorer := NewScorer(&fakeFlags{beaconDisabled: true}, zerolog.Nop())
	sess := testSession()

	result := scorer.Score(context.Background(), sessionStart, goodEvent(sess), sess)

	if result.Beacon.Passed || result.Beacon.Points != 0 {
		t.Errorf("beacon = %+v, want zero contribution under the flag", result.Beacon)
	}
	if result.Beacon.Reason != ReasonBeaconDisabled {
		t.Errorf("beacon reason = %q, want %q", result.Beacon.Reason, ReasonBeaconDisabled)
	}
	// 40+25+20 = 85 still clears the threshold.
	if !result.Accepted || result.Score != 85 {
		t.Errorf("accepted=%v score=%d, want accepted with 85", result.Accepted, result.Score)
	}
}
