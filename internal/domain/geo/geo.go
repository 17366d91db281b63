// Package geo computes great-circle distances and picks the vendor closest to
// a shopper.
package geo

import (
	"context"
	"math"
)

// EarthRadiusKm is the mean Earth radius used by DistanceKm.
const EarthRadiusKm = 6371.0

// Coordinate is a WGS 84 point in degrees.
type Coordinate struct {
	Latitude  float64
	Longitude float64
}

// Valid reports whether the coordinate lies within latitude [-90,90] and
// longitude [-180,180].
func (c Coordinate) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180
}

// DistanceKm returns the haversine distance between a and b in kilometres.
func DistanceKm(a, b Coordinate) float64 {
	if a == b {
		return 0
	}
	lat1 := radians(a.Latitude)
	lat2 := radians(b.Latitude)
	dLat := radians(b.Latitude - a.Latitude)
	dLng := radians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	// Rounding can push h a hair past 1 for antipodal points.
	h = math.Min(h, 1)
	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Candidate is a location that may be chosen by Nearest. Location is nil when
// the candidate has no known position.
type Candidate struct {
	ID       string
	Location *Coordinate
}

// Nearest returns the candidate closest to origin together with its distance.
// Candidates without a location are skipped. ok is false when no candidate has
// a location. Ties resolve to the earliest candidate.
func Nearest(origin Coordinate, candidates []Candidate) (id string, distanceKm float64, ok bool) {
	best := math.Inf(1)
	for _, c := range candidates {
		if c.Location == nil {
			continue
		}
		d := DistanceKm(origin, *c.Location)
		if d < best {
			best = d
			id = c.ID
			ok = true
		}
	}
	if !ok {
		return "", 0, false
	}
	return id, best, true
}

// Locator supplies the shopper's position. A nil coordinate means the
// position is unknown.
type Locator interface {
	Locate(ctx context.Context) (*Coordinate, error)
}

// StaticLocator always reports the same position. The zero value reports no
// position.
type StaticLocator struct {
	Point *Coordinate
}

// Locate implements Locator.
func (s StaticLocator) Locate(context.Context) (*Coordinate, error) {
	if s.Point == nil {
		return nil, nil
	}
	p := *s.Point
	return &p, nil
}
