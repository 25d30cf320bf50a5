// Package transform converts SGP4 output into map coordinates.
//
// SGP4 produces TEME (True Equator Mean Equinox) state vectors. A ground track
// needs the sub-satellite point, so the chain is TEME → ECEF (rotation by GMST
// only, polar motion and equation of equinoxes ignored) → geodetic on WGS-84.
// The simplification costs tens of meters, far below map resolution.
//
// Reference: Vallado, "Fundamentals of Astrodynamics and Applications", Ch. 3.
package transform

import (
	"math"
	"time"
)

// PositionTEME is a satellite state vector in the TEME frame.
type PositionTEME struct {
	X, Y, Z    float64 // km
	VX, VY, VZ float64 // km/s
}

// Radius returns the distance from Earth's center in km.
func (p PositionTEME) Radius() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
}

// Speed returns the inertial speed in km/s.
func (p PositionTEME) Speed() float64 {
	return math.Sqrt(p.VX*p.VX + p.VY*p.VY + p.VZ*p.VZ)
}

// PositionECEF is a satellite position in the ECEF frame.
type PositionECEF struct {
	X, Y, Z float64 // meters
}

// TEMEToECEF rotates a TEME position into ECEF at the given UTC time.
func TEMEToECEF(teme PositionTEME, t time.Time) PositionECEF {
	return TEMEToECEFWithGMST(teme, GMST(t))
}

// TEMEToECEFWithGMST rotates a TEME position by R3(gmst) and converts km to meters.
func TEMEToECEFWithGMST(teme PositionTEME, gmst float64) PositionECEF {
	cosG := math.Cos(gmst)
	sinG := math.Sin(gmst)

	return PositionECEF{
		X: (teme.X*cosG + teme.Y*sinG) * 1000.0,
		Y: (-teme.X*sinG + teme.Y*cosG) * 1000.0,
		Z: teme.Z * 1000.0,
	}
}
