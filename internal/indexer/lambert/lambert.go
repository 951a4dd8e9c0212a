// Package lambert converts Lambert-93 projected coordinates (the French
// national grid) to WGS84 latitude/longitude.
package lambert

import (
	"errors"
	"fmt"
	"math"
)

// Projection constants for Lambert-93 over the WGS84 ellipsoid.
const (
	eWGS84      = 0.08181919106 // first eccentricity
	e2          = eWGS84 / 2.0
	lonMeridian = 3.0 * math.Pi / 180.0 // central meridian, 3°E (IERS)
	n           = 0.7256077650          // cone constant
	c           = 11754255.426
	xs          = 700000.000
	ys          = 12655612.050

	eps           = 1e-10
	maxIterations = 100
)

// ErrNoConvergence is returned when the isometric-latitude iteration fails
// to settle within maxIterations. Does not happen for coordinates inside
// the projection's validity domain.
var ErrNoConvergence = errors.New("latitude iteration did not converge")

// latitudeFromIsometric inverts the isometric latitude by fixed-point
// iteration until successive estimates differ by less than eps radians.
func latitudeFromIsometric(latISO float64) (float64, error) {
	phi0 := 2*math.Atan(math.Exp(latISO)) - math.Pi/2
	for i := 0; i < maxIterations; i++ {
		s := eWGS84 * math.Sin(phi0)
		phi := 2*math.Atan(math.Pow((1+s)/(1-s), e2)*math.Exp(latISO)) - math.Pi/2
		if math.Abs(phi-phi0) < eps {
			return phi, nil
		}
		phi0 = phi
	}
	return 0, ErrNoConvergence
}

// ToLatLon converts a Lambert-93 easting/northing pair to latitude and
// longitude in degrees.
func ToLatLon(x, y float64) (lat, lon float64, err error) {
	dX := x - xs
	dY := y - ys
	r := math.Sqrt(dX*dX + dY*dY)
	gamma := math.Atan(dX / -dY)
	latISO := -1 / n * math.Log(math.Abs(r/c))

	phi, err := latitudeFromIsometric(latISO)
	if err != nil {
		return 0, 0, err
	}
	return phi * 180 / math.Pi, (lonMeridian + gamma/n) * 180 / math.Pi, nil
}

// ToLatLonString formats the converted coordinates as "lat, lon", the
// geopoint representation stored in the index.
func ToLatLonString(x, y float64) (string, error) {
	lat, lon, err := ToLatLon(x, y)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%v, %v", lat, lon), nil
}
