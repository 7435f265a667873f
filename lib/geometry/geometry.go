// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

package geometry

import "math"

// Vector is a point or direction in centimetres. Vectors are values;
// copying one never aliases another.
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// IsZero reports whether all three components are exactly zero. Hand
// trackers report the zero vector when they lose the hand, so this is
// the tracking-loss sentinel rather than a geometric test.
func (v Vector) IsZero() bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

// Add returns the component-wise sum.
func (v Vector) Add(other Vector) Vector {
	return Vector{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Rotation is a set of Euler angles in degrees. The zero value is the
// identity rotation.
type Rotation struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

// IsZero reports whether the rotation is the identity.
func (r Rotation) IsZero() bool {
	return r.Pitch == 0 && r.Yaw == 0 && r.Roll == 0
}

// Radians converts an angle in degrees to radians.
func Radians(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// Transform moves localPoint from the tracker's frame into
// head-relative space: translate by axisOffset, then rotate by the
// negated head angles.
//
// Internally the rotation runs in a relabelled frame (down, left,
// forward) so that yaw turns the horizontal plane; the result is
// relabelled back to the input's left/forward/down axes.
func Transform(headRotation Rotation, localPoint Vector, axisOffset Vector) Vector {
	x := localPoint.Z + axisOffset.Z
	y := localPoint.X + axisOffset.X
	z := localPoint.Y + axisOffset.Y

	a := -Radians(headRotation.Yaw)
	b := -Radians(headRotation.Pitch)
	c := -Radians(headRotation.Roll)

	sinA, cosA := math.Sincos(a)
	sinB, cosB := math.Sincos(b)
	sinC, cosC := math.Sincos(c)

	m11 := cosB * cosC
	m12 := sinA*sinB*cosC - cosA*sinC
	m13 := cosA*sinB*cosC + sinA*sinC

	m21 := cosB * sinC
	m22 := sinA*sinB*sinC + cosA*cosC
	m23 := cosA*sinB*sinC - sinA*cosC

	m31 := -sinB
	m32 := sinA * cosB
	m33 := cosA * cosB

	down := m11*x + m12*y + m13*z
	left := m21*x + m22*y + m23*z
	forward := m31*x + m32*y + m33*z

	return Vector{X: left, Y: forward, Z: down}
}

// DefaultHandOffset is the mounting offset of the headset hand tracker
// relative to the head's rotation centre, in centimetres.
var DefaultHandOffset = Vector{X: 0, Y: 15, Z: -6}
