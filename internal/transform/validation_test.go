package transform

import (
	"math"
	"testing"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

// TestJulianDate verifies our Julian Date calculation against known values.
func TestJulianDate(t *testing.T) {
	tests := []struct {
		name     string
		time     time.Time
		expected float64
	}{
		{
			name:     "J2000.0 epoch",
			time:     time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC),
			expected: 2451545.0,
		},
		{
			name:     "Unix epoch",
			time:     time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
			expected: 2440587.5,
		},
		{
			// Vallado Example 3-15: April 6, 2004, 07:51:28.386 UTC
			name:     "Vallado example date",
			time:     time.Date(2004, 4, 6, 7, 51, 28, 386009000, time.UTC),
			expected: 2453101.827411875,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := JulianDate(tt.time)
			diff := math.Abs(got - tt.expected)
			if diff > 1e-6 {
				t.Errorf("JulianDate(%v) = %.10f, want %.10f (diff=%.2e)", tt.time, got, tt.expected, diff)
			}
		})
	}
}

// TestGMST validates our GMST calculation against the go-satellite library's
// GSTimeFromDate function, which uses the same IAU-82 model.
func TestGMST(t *testing.T) {
	tests := []struct {
		name string
		time time.Time
	}{
		{
			name: "J2000.0 epoch",
			time: time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			name: "Vallado example date",
			time: time.Date(2004, 4, 6, 7, 51, 28, 0, time.UTC), // integer seconds for library compat
		},
		{
			name: "recent date 2026",
			time: time.Date(2026, 2, 6, 4, 1, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			our := GMST(tt.time)
			// go-satellite's GSTimeFromDate returns GMST in radians.
			ref := satellite.GSTimeFromDate(
				tt.time.Year(), int(tt.time.Month()), tt.time.Day(),
				tt.time.Hour(), tt.time.Minute(), tt.time.Second(),
			)

			diff := math.Abs(our - ref)
			// Allow small difference for float precision; 1e-8 radians ≈ 0.06 arcsec.
			if diff > 1e-8 {
				t.Errorf("GMST(%v) = %.12f rad, go-satellite = %.12f rad (diff=%.2e)", tt.time, our, ref, diff)
			}
		})
	}
}

// TestTEMEToECEF checks the rotation against go-satellite's ECIToECEF with the
// same GMST. Both are GMST-only rotations and agree to float precision.
func TestTEMEToECEF(t *testing.T) {
	tests := []struct {
		name string
		teme PositionTEME
		time time.Time
	}{
		{
			// Vallado "Fundamentals of Astrodynamics" Example 3-15
			name: "Vallado example 3-15",
			teme: PositionTEME{
				X: 5094.18016, Y: 6127.64465, Z: 6380.34453,
				VX: -4.746131487, VY: 0.786598499, VZ: 5.531931288,
			},
			time: time.Date(2004, 4, 6, 7, 51, 28, 0, time.UTC),
		},
		{
			// Typical LEO satellite (roughly ISS-like orbit)
			name: "LEO equatorial",
			teme: PositionTEME{
				X: 6778.0, Y: 0.0, Z: 0.0,
				VX: 0.0, VY: 7.5, VZ: 0.0,
			},
			time: time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC),
		},
		{
			// Polar orbit
			name: "LEO polar",
			teme: PositionTEME{
				X: 0.0, Y: 0.0, Z: 6978.0,
				VX: 7.4, VY: 0.0, VZ: 0.0,
			},
			time: time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Compute GMST using go-satellite as reference.
			gmst := satellite.GSTimeFromDate(
				tt.time.Year(), int(tt.time.Month()), tt.time.Day(),
				tt.time.Hour(), tt.time.Minute(), tt.time.Second(),
			)

			// Our transform (uses meters output).
			ourECEF := TEMEToECEFWithGMST(tt.teme, gmst)

			// Reference: go-satellite's ECIToECEF (uses km).
			refVec := satellite.ECIToECEF(
				satellite.Vector3{X: tt.teme.X, Y: tt.teme.Y, Z: tt.teme.Z},
				gmst,
			)

			// Compare positions (our output is meters, reference is km).
			diffX := math.Abs(ourECEF.X - refVec.X*1000.0)
			diffY := math.Abs(ourECEF.Y - refVec.Y*1000.0)
			diffZ := math.Abs(ourECEF.Z - refVec.Z*1000.0)

			// Tolerance: 1 meter.
			const tolerance = 1.0 // meter
			if diffX > tolerance || diffY > tolerance || diffZ > tolerance {
				t.Errorf("position mismatch (tolerance=%.0fm):\n  ours:  [%.3f, %.3f, %.3f] m\n  ref:   [%.3f, %.3f, %.3f] m\n  diff:  [%.6f, %.6f, %.6f] m",
					tolerance,
					ourECEF.X, ourECEF.Y, ourECEF.Z,
					refVec.X*1000, refVec.Y*1000, refVec.Z*1000,
					diffX, diffY, diffZ)
			}

		})
	}
}

func TestECEFToGeodetic(t *testing.T) {
	tests := []struct {
		name    string
		pos     PositionECEF
		lat     float64
		lon     float64
		altM    float64
		checkAl bool
	}{
		{"equator prime meridian", PositionECEF{X: wgs84A + 400000}, 0, 0, 400000, true},
		{"equator 90E", PositionECEF{Y: wgs84A + 400000}, 0, 90, 400000, true},
		{"equator 90W", PositionECEF{Y: -(wgs84A + 400000)}, 0, -90, 400000, true},
		{"just west of anti-meridian", PositionECEF{X: -7000000, Y: -1}, 0, -180, 0, false},
		{"just east of anti-meridian", PositionECEF{X: -7000000, Y: 1}, 0, 180, 0, false},
		{"north pole", PositionECEF{Z: 6356752.314245 + 1000}, 90, 0, 1000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ECEFToGeodetic(tt.pos)
			if math.Abs(got.LatDeg-tt.lat) > 1e-6 {
				t.Errorf("lat = %.8f, want %.8f", got.LatDeg, tt.lat)
			}
			if math.Abs(got.LonDeg-tt.lon) > 1e-4 {
				t.Errorf("lon = %.8f, want %.8f", got.LonDeg, tt.lon)
			}
			if tt.checkAl && math.Abs(got.AltM-tt.altM) > 0.01 {
				t.Errorf("alt = %.3f m, want %.3f m", got.AltM, tt.altM)
			}
		})
	}
}

// TestSubSatellitePointMatchesLibrary compares the sub-satellite point with
// go-satellite's ECIToLLA for a LEO position. Latitudes differ slightly since the
// library uses its own ellipsoid iteration, so the tolerance is loose.
func TestSubSatellitePointMatchesLibrary(t *testing.T) {
	teme := PositionTEME{X: 5094.18016, Y: 6127.64465, Z: 1380.34453}
	at := time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)

	got := SubSatellitePoint(teme, at)

	gmst := satellite.GSTimeFromDate(at.Year(), int(at.Month()), at.Day(), at.Hour(), at.Minute(), at.Second())
	_, _, lla := satellite.ECIToLLA(satellite.Vector3{X: teme.X, Y: teme.Y, Z: teme.Z}, gmst)

	wantLon := math.Mod(lla.Longitude*180/math.Pi+540, 360) - 180
	if d := math.Abs(got.LonDeg - wantLon); d > 0.01 && math.Abs(d-360) > 0.01 {
		t.Errorf("lon = %.4f, go-satellite = %.4f", got.LonDeg, wantLon)
	}
	if d := math.Abs(got.LatDeg - lla.Latitude*180/math.Pi); d > 0.2 {
		t.Errorf("lat = %.4f, go-satellite = %.4f", got.LatDeg, lla.Latitude*180/math.Pi)
	}
}

func TestPositionTEMEMagnitudes(t *testing.T) {
	p := PositionTEME{X: 3, Y: 4, Z: 0, VX: 0, VY: 0, VZ: 7.5}
	if p.Radius() != 5 {
		t.Errorf("Radius = %v, want 5", p.Radius())
	}
	if p.Speed() != 7.5 {
		t.Errorf("Speed = %v, want 7.5", p.Speed())
	}
}
