package world

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// LatLng is a WGS84-style coordinate in degrees.
// On the wire it is encoded as a [lat, lng] pair, which is what the map client expects.
type LatLng struct {
	Lat float64
	Lng float64
}

// Point converts to an orb point. orb orders coordinates as [x, y] = [lng, lat].
func (p LatLng) Point() orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

// DistanceTo returns the planar (degree-space) distance between two coordinates.
func (p LatLng) DistanceTo(o LatLng) float64 {
	return planar.Distance(p.Point(), o.Point())
}

// Valid reports whether both axes are finite and inside WGS84 bounds.
func (p LatLng) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

func (p LatLng) String() string {
	return fmt.Sprintf("[%.6f, %.6f]", p.Lat, p.Lng)
}

// MarshalJSON encodes the coordinate as [lat, lng].
func (p LatLng) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.Lat, p.Lng})
}

// UnmarshalJSON accepts exactly two numbers.
func (p *LatLng) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("location: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("location: want [lat, lng], got %d values", len(pair))
	}
	p.Lat, p.Lng = pair[0], pair[1]
	return nil
}
