package domain

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Position is a WGS-84 point. Coordinates are stored in GeoJSON order (lon, lat).
type Position struct {
	Lon float64
	Lat float64
}

// NewPosition returns a validated Position.
func NewPosition(lon, lat float64) (Position, error) {
	p := Position{Lon: lon, Lat: lat}
	if err := p.Validate(); err != nil {
		return Position{}, err
	}
	return p, nil
}

// Validate enforces lon ∈ [-180, 180] and lat ∈ [-90, 90].
func (p Position) Validate() error {
	if math.IsNaN(p.Lon) || math.IsInf(p.Lon, 0) || math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) {
		return Errorf(KindInvalidGeometry, "position coordinates must be finite")
	}
	if p.Lon < -180 || p.Lon > 180 {
		return Errorf(KindInvalidGeometry, "longitude %g out of range [-180, 180]", p.Lon)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return Errorf(KindInvalidGeometry, "latitude %g out of range [-90, 90]", p.Lat)
	}
	return nil
}

// String formats the position in GeoJSON order as "lon,lat".
func (p Position) String() string {
	return fmt.Sprintf("%g,%g", p.Lon, p.Lat)
}

// Point returns the position as an orb point.
func (p Position) Point() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// PositionFromGeometry extracts a validated position from a GeoJSON geometry.
// Only Point geometries carry a resolvable position.
func PositionFromGeometry(g orb.Geometry) (Position, error) {
	if g == nil {
		return Position{}, Errorf(KindInvalidGeometry, "geometry is required")
	}
	pt, ok := g.(orb.Point)
	if !ok {
		return Position{}, Errorf(KindInvalidGeometry, "geometry must be a Point, got %s", g.GeoJSONType())
	}
	return NewPosition(pt[0], pt[1])
}
