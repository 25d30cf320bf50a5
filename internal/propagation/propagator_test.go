package propagation

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/yonda-yonda/tle-with-mapbox/internal/tle"
	"github.com/yonda-yonda/tle-with-mapbox/internal/transform"
)

const (
	issLine1 = "1 25544U 98067A   25138.37048074  .00007749  00000+0  14567-3 0  9994"
	issLine2 = "2 25544  51.6369  94.7823 0002558 120.7586  15.7840 15.49587957510533"

	// Highly eccentric deep-space orbit with a 13.8 day period.
	heoLine1 = "1 43435U 18038A   25138.50000000 -.00000123  00000-0  00000+0 0  9999"
	heoLine2 = "2 43435  51.8000  80.0000 6000000 200.0000 300.0000  0.07250000  4563"
)

// TestPropagateISS verifies the TEME state near epoch is a plausible ISS orbit.
func TestPropagateISS(t *testing.T) {
	prop, err := NewSGP4Propagator(issLine1, issLine2)
	if err != nil {
		t.Fatalf("NewSGP4Propagator failed: %v", err)
	}

	target := time.Date(2025, 5, 18, 12, 0, 0, 0, time.UTC)
	teme, err := prop.Propagate(target)
	if err != nil {
		t.Fatalf("Propagate failed: %v", err)
	}

	// ~6371 + 420 km.
	if r := teme.Radius(); r < 6600 || r > 6900 {
		t.Errorf("radius = %.1f km, expected ~6790 km", r)
	}
	// Circular LEO speed ~7.66 km/s.
	if v := teme.Speed(); v < 7.4 || v > 7.9 {
		t.Errorf("speed = %.3f km/s, expected ~7.66 km/s", v)
	}

	geo := transform.SubSatellitePoint(teme, target)
	if math.Abs(geo.LatDeg) > 51.7 {
		t.Errorf("latitude %.2f exceeds inclination", geo.LatDeg)
	}
}

// TestPropagateWholeSeconds verifies sub-second parts of the time are ignored.
func TestPropagateWholeSeconds(t *testing.T) {
	prop, err := NewSGP4Propagator(issLine1, issLine2)
	if err != nil {
		t.Fatal(err)
	}

	base := time.Date(2025, 5, 18, 12, 0, 0, 0, time.UTC)
	a, err := prop.Propagate(base)
	if err != nil {
		t.Fatal(err)
	}
	b, err := prop.Propagate(base.Add(900 * time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("states differ within the same second: %+v vs %+v", a, b)
	}
}

// TestMeanMotion verifies the Kozai correction is removed from the line-2
// mean motion: for ISS (cos²i > 1/3) the Brouwer value is slightly smaller.
func TestMeanMotion(t *testing.T) {
	prop, err := NewSGP4Propagator(issLine1, issLine2)
	if err != nil {
		t.Fatal(err)
	}
	kozai := 15.49587957 * 2 * math.Pi / 1440
	got := prop.MeanMotion()
	if got >= kozai {
		t.Errorf("MeanMotion = %v rad/min, want below the Kozai value %v", got, kozai)
	}
	if rel := (kozai - got) / kozai; rel > 1e-3 {
		t.Errorf("MeanMotion = %v rad/min differs from %v by %.2e", got, kozai, rel)
	}
	if prop.Elements().CatalogNumber != 25544 {
		t.Errorf("catalog = %d, want 25544", prop.Elements().CatalogNumber)
	}
}

// TestPropagateInvalidTLE verifies an invalid TLE is rejected before it reaches
// the SGP4 library.
func TestPropagateInvalidTLE(t *testing.T) {
	_, err := NewSGP4Propagator("invalid line 1", "invalid line 2")
	if !errors.Is(err, tle.ErrMalformed) {
		t.Fatalf("err = %v, want tle.ErrMalformed", err)
	}
}

// TestPropagateHighEccentricOrbit verifies orbits reaching far beyond
// geostationary distance propagate for a whole day.
func TestPropagateHighEccentricOrbit(t *testing.T) {
	prop, err := NewSGP4Propagator(heoLine1, heoLine2)
	if err != nil {
		t.Fatalf("NewSGP4Propagator failed: %v", err)
	}

	start := time.Date(2025, 5, 18, 12, 0, 0, 0, time.UTC)
	var maxRadius float64
	for m := 0; m < 1440; m++ {
		teme, err := prop.Propagate(start.Add(time.Duration(m) * time.Minute))
		if err != nil {
			t.Fatalf("Propagate at +%dm: %v", m, err)
		}
		maxRadius = math.Max(maxRadius, teme.Radius())
	}
	if maxRadius < 50000 {
		t.Errorf("max radius = %.1f km, expected a high orbit", maxRadius)
	}
}
