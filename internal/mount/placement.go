package mount

import (
	"math"

	"github.com/OCAP2/parachute/internal/config"
	"github.com/OCAP2/parachute/pkg/core"
)

// ComputeOffset returns the pose a mount of type t takes for a player at pose.
// bank is the airplane roll and is ignored by every other placement.
func ComputeOffset(t Type, pose core.Pose, bank float64) core.Pose {
	yaw := pose.Rotation.Yaw
	forward, right := core.YawBasis(yaw)
	off := t.Offset()
	up := core.Vector{0, 0, off.Up}

	switch t.Placement() {
	case PlaceBackpack:
		return core.Pose{
			Origin:   pose.Origin.Sub(forward.Mul(off.Back)).Add(right.Mul(off.Side)).Add(up),
			Rotation: core.QAngle{Pitch: 90, Yaw: yaw},
		}
	case PlaceCarpet:
		return core.Pose{
			Origin:   pose.Origin.Sub(forward.Mul(off.Back)).Sub(right.Mul(off.Side)).Add(up),
			Rotation: core.QAngle{Yaw: core.NormalizeAngle(yaw + 90)},
		}
	case PlaceAirplane:
		return core.Pose{
			Origin:   pose.Origin.Sub(forward.Mul(off.Back)).Add(right.Mul(off.Side)).Add(up),
			Rotation: core.QAngle{Yaw: yaw, Roll: bank},
		}
	case PlaceVehicle:
		return core.Pose{
			Origin:   pose.Origin.Add(up),
			Rotation: core.QAngle{Yaw: core.NormalizeAngle(yaw - 90)},
		}
	default:
		return pose
	}
}

// Bank eases the roll of an airplane mount toward a target proportional to
// the player's yaw rate.
type Bank struct {
	Roll    float64
	lastYaw float64
	primed  bool
}

// Step advances the bank by one tick and returns the new roll. Turning toward
// increasing yaw banks to negative roll.
func (b *Bank) Step(yaw float64, cfg config.AirplaneConfig) float64 {
	if !b.primed {
		b.lastYaw = yaw
		b.primed = true
		return b.Roll
	}
	rate := core.NormalizeAngle(yaw - b.lastYaw)
	b.lastYaw = yaw

	target := clamp(-rate*cfg.BankPerDegree, -cfg.MaxBank, cfg.MaxBank)
	b.Roll += clamp(target-b.Roll, -cfg.BankRate, cfg.BankRate)
	return b.Roll
}

// Reset levels the wings and forgets the last yaw.
func (b *Bank) Reset() {
	*b = Bank{}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
