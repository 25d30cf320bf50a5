package groundtrack

import (
	"math"

	"github.com/yonda-yonda/tle-with-mapbox/internal/transform"
)

// Rotation is the sense of orbital motion seen from above the north pole.
type Rotation int

const (
	Clockwise Rotation = iota
	Counterclockwise
)

func (r Rotation) String() string {
	if r == Counterclockwise {
		return "counterclockwise"
	}
	return "clockwise"
}

// AngularVelocityZ returns the z component of (r × v) / (|r||v|).
func AngularVelocityZ(s transform.PositionTEME) float64 {
	return (s.X*s.VY - s.Y*s.VX) / s.Radius() / s.Speed()
}

// DetectRotation classifies a state as counterclockwise when the orbital
// angular momentum points north. Degenerate states count as clockwise.
func DetectRotation(s transform.PositionTEME) Rotation {
	z := AngularVelocityZ(s)
	if !math.IsNaN(z) && z > 0 {
		return Counterclockwise
	}
	return Clockwise
}
