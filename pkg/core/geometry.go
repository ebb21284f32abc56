// pkg/core/geometry.go
package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Vector is a world-space position or velocity in game units (Z up).
type Vector = mgl64.Vec3

// QAngle is an Euler rotation in degrees, laid out the way the host engine
// reports it: positive pitch looks down, yaw rotates counter-clockwise around Z.
type QAngle struct {
	Pitch float64
	Yaw   float64
	Roll  float64
}

// Pose is the position and orientation of an entity.
type Pose struct {
	Origin   Vector
	Rotation QAngle
}

// NormalizeAngle wraps an angle in degrees into (-180, 180].
func NormalizeAngle(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg > 180 {
		deg -= 360
	} else if deg <= -180 {
		deg += 360
	}
	return deg
}

// YawBasis returns the horizontal forward and right unit vectors for a yaw in
// degrees. Pitch and roll are ignored.
func YawBasis(yaw float64) (forward, right Vector) {
	rad := mgl64.DegToRad(yaw)
	sy, cy := math.Sincos(rad)
	forward = Vector{cy, sy, 0}
	right = Vector{sy, -cy, 0}
	return forward, right
}

// Horizontal returns the XY components of v with Z zeroed.
func Horizontal(v Vector) Vector {
	return Vector{v.X(), v.Y(), 0}
}

// HorizontalSpeed is the magnitude of the XY components of v.
func HorizontalSpeed(v Vector) float64 {
	return math.Hypot(v.X(), v.Y())
}

// Heading returns the yaw in degrees of the horizontal part of v.
func Heading(v Vector) float64 {
	return mgl64.RadToDeg(math.Atan2(v.Y(), v.X()))
}

// ClampHorizontal scales the XY components of v down so their magnitude does
// not exceed max. A non-positive max disables the clamp.
func ClampHorizontal(v Vector, max float64) Vector {
	if max <= 0 {
		return v
	}
	speed := HorizontalSpeed(v)
	if speed <= max || speed == 0 {
		return v
	}
	scale := max / speed
	return Vector{v.X() * scale, v.Y() * scale, v.Z()}
}
