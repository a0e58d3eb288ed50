// Package geo provides the coordinate type and great-circle distance
// math used for proximity filtering of civic issues.
package geo

import (
	"math"

	"github.com/civictrack/civictrack-service/internal/errs"
)

// earthRadiusKm is the mean Earth radius used by the Haversine formula.
const earthRadiusKm = 6371.0

type Coordinate struct {
	Lat float64
	Lon float64
}

func (c Coordinate) Validate(op string) error {
	fields := map[string]string{}

	if !isFinite(c.Lat) || c.Lat < -90 || c.Lat > 90 {
		fields["lat"] = "must be between -90 and 90"
	}
	if !isFinite(c.Lon) || c.Lon < -180 || c.Lon > 180 {
		fields["lon"] = "must be between -180 and 180"
	}
	if len(fields) > 0 {
		return errs.E(errs.KindInvalid, "INVALID_COORDINATES", op, "invalid coordinates", fields, nil)
	}

	return nil
}

// DistanceKm computes the Haversine distance between two coordinates in
// kilometers. Non-finite components are rejected rather than folded into
// the math, so parsing bugs upstream surface instead of reading as
// "issue not visible". Out-of-range but finite values are the caller's
// contract to avoid.
func DistanceKm(a, b Coordinate) (float64, error) {
	const op = "geo.distance_km"

	if !finiteCoordinate(a) || !finiteCoordinate(b) {
		return 0, errs.E(errs.KindInvalid, "INVALID_COORDINATE", op, "coordinate components must be finite", nil, nil)
	}

	dLat := radians(b.Lat - a.Lat)
	dLon := radians(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(a.Lat))*math.Cos(radians(b.Lat))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h)), nil
}

// WithinRadius reports whether loc lies within radiusKm of user. The
// boundary is inclusive. A missing coordinate on either side means the
// location cannot be confirmed visible.
func WithinRadius(user, loc *Coordinate, radiusKm float64) (bool, error) {
	if user == nil || loc == nil {
		return false, nil
	}

	d, err := DistanceKm(*user, *loc)
	if err != nil {
		return false, err
	}
	return d <= radiusKm, nil
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func finiteCoordinate(c Coordinate) bool {
	return isFinite(c.Lat) && isFinite(c.Lon)
}
