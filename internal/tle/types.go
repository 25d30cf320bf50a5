package tle

import (
	"math"
	"time"
)

// Elements is a validated two-line element set.
type Elements struct {
	Name          string
	CatalogNumber int
	Epoch         time.Time
	Inclination   float64 // degrees
	RAAN          float64 // degrees
	Eccentricity  float64
	ArgPerigee    float64 // degrees
	MeanAnomaly   float64 // degrees
	MeanMotion    float64 // revolutions per day
	Line1         string
	Line2         string
}

// MeanMotionRadPerMin returns the mean motion in radians per minute, the unit
// SGP4 works in.
func (e Elements) MeanMotionRadPerMin() float64 {
	return e.MeanMotion * 2 * math.Pi / 1440.0
}

// Period returns the orbital period derived from the mean motion.
func (e Elements) Period() time.Duration {
	seconds := 2 * math.Pi / (e.MeanMotionRadPerMin() / 60.0)
	return time.Duration(seconds * float64(time.Second))
}
