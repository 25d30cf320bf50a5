// Package propagation wraps SGP4 for a single element set.
package propagation

import (
	"errors"
	"fmt"
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/yonda-yonda/tle-with-mapbox/internal/tle"
	"github.com/yonda-yonda/tle-with-mapbox/internal/transform"
)

// SGP4 library choice: github.com/joshuaferrara/go-satellite
//
// Pure Go, explicit TEME output. Propagate() takes Satellite by value so SGP4
// error codes are not visible to the caller; failures are detected by checking
// the output for NaN/Inf and for a radius below the Earth's surface.

// ErrPropagation is wrapped by every propagation failure.
var ErrPropagation = errors.New("sgp4 propagation failed")

// SGP4Propagator holds an initialized SGP4 model for one element set.
// Immutable after construction; safe for concurrent use.
type SGP4Propagator struct {
	sat        satellite.Satellite
	elements   tle.Elements
	meanMotion float64 // rad/min, Kozai correction removed
}

// WGS-84 constants of the go-satellite gravity model.
const (
	wgs84Mu       = 398600.5         // km^3/s^2
	wgs84RadiusKm = 6378.137         // km
	wgs84J2       = 0.00108262998905 // unitless
)

// decayRadiusKm is the geocentric radius below which the orbit has decayed.
const decayRadiusKm = 6200.0

// NewSGP4Propagator validates the two lines and initializes SGP4 on WGS-84.
func NewSGP4Propagator(line1, line2 string) (*SGP4Propagator, error) {
	e, err := tle.ParseElements(line1, line2)
	if err != nil {
		return nil, err
	}
	return FromElements(e)
}

// FromElements initializes SGP4 from already validated elements.
//
// go-satellite calls log.Fatal on unparsable input, so elements must come from
// tle.ParseElements, which checks every column the library reads.
func FromElements(e tle.Elements) (*SGP4Propagator, error) {
	sat := satellite.TLEToSat(e.Line1, e.Line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init failed for catalog %d: code=%d %s", e.CatalogNumber, sat.Error, sat.ErrorStr)
	}
	return &SGP4Propagator{sat: sat, elements: e, meanMotion: brouwerMeanMotion(e)}, nil
}

// Elements returns the element set the model was built from.
func (p *SGP4Propagator) Elements() tle.Elements {
	return p.elements
}

// MeanMotion returns the mean motion SGP4 propagates with, in rad/min. This is
// the line-2 value with the Kozai correction removed, as set during SGP4
// initialization.
func (p *SGP4Propagator) MeanMotion() float64 {
	return p.meanMotion
}

// brouwerMeanMotion repeats the SGP4 initialization step that recovers the
// Brouwer mean motion from the Kozai mean motion of a TLE.
func brouwerMeanMotion(e tle.Elements) float64 {
	xke := 60.0 / math.Sqrt(wgs84RadiusKm*wgs84RadiusKm*wgs84RadiusKm/wgs84Mu)
	n := e.MeanMotionRadPerMin()

	cosio := math.Cos(e.Inclination * math.Pi / 180)
	omeosq := 1 - e.Eccentricity*e.Eccentricity
	d1 := 0.75 * wgs84J2 * (3*cosio*cosio - 1) / (math.Sqrt(omeosq) * omeosq)

	ak := math.Pow(xke/n, 2.0/3.0)
	del := d1 / (ak * ak)
	adel := ak * (1 - del*del - del*(1.0/3.0+134.0*del*del/81.0))
	del = d1 / (adel * adel)
	return n / (1 + del)
}

// Propagate computes the TEME state (km, km/s) at t. Sub-second precision is
// dropped: SGP4 is evaluated at whole UTC seconds.
func (p *SGP4Propagator) Propagate(t time.Time) (transform.PositionTEME, error) {
	t = t.UTC()
	pos, vel := satellite.Propagate(p.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())

	if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsNaN(pos.Z) ||
		math.IsInf(pos.X, 0) || math.IsInf(pos.Y, 0) || math.IsInf(pos.Z, 0) {
		return transform.PositionTEME{}, fmt.Errorf("%w for catalog %d at %s: output is NaN/Inf",
			ErrPropagation, p.elements.CatalogNumber, t.Format(time.RFC3339))
	}

	state := transform.PositionTEME{X: pos.X, Y: pos.Y, Z: pos.Z, VX: vel.X, VY: vel.Y, VZ: vel.Z}

	if r := state.Radius(); r < decayRadiusKm {
		return transform.PositionTEME{}, fmt.Errorf("%w for catalog %d at %s: decayed, radius %.1f km",
			ErrPropagation, p.elements.CatalogNumber, t.Format(time.RFC3339), r)
	}
	return state, nil
}
