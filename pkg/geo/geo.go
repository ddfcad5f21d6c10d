// Package geo provides great-circle distance math for geofence checks.
package geo

import (
	"fmt"
	"math"
)

// Point represents a geographic point with latitude and longitude.
type Point struct {
	Lat float64
	Lon float64
}

const earthRadiusMeters = 6371000

// Distance calculates the great-circle distance between two points in meters
// using the haversine formula.
func Distance(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	sinDLat := math.Sin(dLat / 2)
	sinDLon := math.Sin(dLon / 2)

	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLon*sinDLon
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

// Validate checks that a point lies within valid coordinate ranges.
func Validate(p Point) error {
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("latitude %f out of range [-90, 90]", p.Lat)
	}
	if p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("longitude %f out of range [-180, 180]", p.Lon)
	}
	return nil
}
