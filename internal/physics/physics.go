// Package physics computes the velocity of a mounted player for one tick.
package physics

import (
	"math"

	"github.com/OCAP2/parachute/internal/config"
	"github.com/OCAP2/parachute/pkg/core"
)

// Apply runs the velocity model selected by cfg.
func Apply(v core.Vector, buttons core.Buttons, eye core.QAngle, cfg config.MountConfig) core.Vector {
	if cfg.VelocityMode == config.VelocityThrust {
		return Thrust(v, buttons, eye, cfg)
	}
	return Descent(v, buttons, cfg)
}

// Descent pins a falling player to the terminal fall speed. Strafing scales
// the horizontal components by the side modifier before clamping them to the
// max velocity. Rising or level velocity is returned unchanged.
func Descent(v core.Vector, buttons core.Buttons, cfg config.MountConfig) core.Vector {
	if v.Z() >= 0 {
		return v
	}
	out := core.Vector{v.X(), v.Y(), -cfg.FallSpeed}
	if buttons.Any(core.ButtonMoveLeft | core.ButtonMoveRight) {
		out[0] *= cfg.SideMovementModifier
		out[1] *= cfg.SideMovementModifier
		out = core.ClampHorizontal(out, cfg.MaxVelocity)
	}
	return out
}

// Target is the horizontal goal of the thrust model for one tick.
type Target struct {
	Yaw   float64
	Speed float64
	// Contributes is false when no movement key nets out; the velocity then
	// keeps its own heading and speed.
	Contributes bool
}

// ResolveIntent maps held movement keys onto a yaw relative to lookYaw.
// Opposing keys cancel. Diagonals shift by a fixed offset instead of summing
// the two directions.
func ResolveIntent(buttons core.Buttons, lookYaw float64) (float64, bool) {
	fwd := buttons.Has(core.ButtonForward)
	back := buttons.Has(core.ButtonBack)
	left := buttons.Has(core.ButtonMoveLeft)
	right := buttons.Has(core.ButtonMoveRight)
	if fwd && back {
		fwd, back = false, false
	}
	if left && right {
		left, right = false, false
	}

	var offset float64
	switch {
	case fwd && left:
		offset = 15
	case fwd && right:
		offset = -15
	case back && left:
		offset = 105
	case back && right:
		offset = -105
	case fwd:
		offset = 0
	case back:
		offset = 180
	case left:
		offset = 90
	case right:
		offset = -90
	default:
		return 0, false
	}
	return core.NormalizeAngle(lookYaw + offset), true
}

// ThrustTarget resolves the horizontal goal for velocity v.
func ThrustTarget(v core.Vector, buttons core.Buttons, eye core.QAngle, cfg config.MountConfig) Target {
	speed := core.HorizontalSpeed(v)
	yaw, ok := ResolveIntent(buttons, eye.Yaw)
	if !ok {
		return Target{Yaw: core.Heading(v), Speed: speed}
	}
	return Target{
		Yaw:         yaw,
		Speed:       math.Max(speed, cfg.Thrust.MinSpeed) * cfg.Thrust.MovementModifier,
		Contributes: true,
	}
}

// VerticalThrust derives the vertical speed from look pitch. Looking down
// climbs, looking up descends faster than the fall speed, and pitches within
// the level deadzone hold altitude.
func VerticalThrust(pitch float64, cfg config.MountConfig) float64 {
	t := cfg.Thrust
	pitch = math.Max(-90, math.Min(90, pitch))
	switch {
	case math.Abs(pitch) <= t.LevelDeadzone:
		return 0
	case pitch > 0:
		return t.ClimbSpeed * pitch / 90
	default:
		return -cfg.FallSpeed * t.DescentMultiplier * -pitch / 90
	}
}

// Thrust steers the player with look pitch and movement keys. The horizontal
// velocity eases toward the target with a factor that shrinks as the current
// speed approaches the max, then is clamped to it.
func Thrust(v core.Vector, buttons core.Buttons, eye core.QAngle, cfg config.MountConfig) core.Vector {
	horiz := core.Horizontal(v)
	target := ThrustTarget(v, buttons, eye, cfg)
	if target.Contributes {
		forward, _ := core.YawBasis(target.Yaw)
		goal := forward.Mul(target.Speed)
		factor := LerpFactor(core.HorizontalSpeed(v), cfg)
		horiz = horiz.Add(goal.Sub(horiz).Mul(factor))
	}
	out := core.Vector{horiz.X(), horiz.Y(), VerticalThrust(eye.Pitch, cfg)}
	return core.ClampHorizontal(out, cfg.MaxVelocity)
}

// LerpFactor returns the smoothing factor for the current speed.
func LerpFactor(speed float64, cfg config.MountConfig) float64 {
	t := cfg.Thrust
	if cfg.MaxVelocity <= 0 {
		return t.LerpFactor
	}
	f := t.LerpFactor * (1 - speed/cfg.MaxVelocity)
	return math.Max(t.MinLerpFactor, math.Min(t.LerpFactor, f))
}
