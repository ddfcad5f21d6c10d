// Package session exposes the read-only session context the scorer needs:
// the current token, the classroom geofence, and the registered networks.
// Session CRUD itself is owned elsewhere; this package only reads.
package session

import (
	"errors"
	"time"

	"github.com/presenceguard/presenceguard/pkg/geo"
)

// TokenGracePeriod is how long after session end the session token stays
// valid.
const TokenGracePeriod = 2 * time.Hour

// ErrSessionNotFound indicates no session exists for the given ID.
var ErrSessionNotFound = errors.New("session not found")

// Network is a wireless network registered to a classroom, identified by
// its broadcast name and hardware address.
type Network struct {
	SSID  string `json:"ssid"`
	BSSID string `json:"bssid"`
}

// Session is the context a scan event is verified against.
type Session struct {
	ID                   string    `json:"id"`
	ClassID              uint16    `json:"class_id"`
	FacultyID            uint16    `json:"faculty_id"`
	Token                uint32    `json:"token"`
	StartsAt             time.Time `json:"starts_at"`
	EndsAt               time.Time `json:"ends_at"`
	Location             geo.Point `json:"location"`
	GeofenceRadiusMeters float64   `json:"geofence_radius_meters"`
	Networks             []Network `json:"networks"`
}

// TokenValidAt reports whether the session token is still within its
// validity window at now.
func (s *Session) TokenValidAt(now time.Time) bool {
	return !now.After(s.EndsAt.Add(TokenGracePeriod))
}

// HasNetwork reports whether the ssid+bssid pair is registered to the
// session's classroom. Both fields must match the same entry.
func (s *Session) HasNetwork(ssid, bssid string) bool {
	for _, n := range s.Networks {
		if n.SSID == ssid && n.BSSID == bssid {
			return true
		}
	}
	return false
}
