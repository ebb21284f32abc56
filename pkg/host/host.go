// Package host defines the contracts the parachute core consumes from the game
// server it is embedded in. Implementations are expected to be synchronous and
// non-blocking; every call is made from the host's tick callback.
package host

import (
	"image/color"
	"time"

	"github.com/OCAP2/parachute/pkg/core"
)

// Handle identifies a host entity. The zero handle is never valid.
type Handle uint32

// InvalidHandle is the zero handle.
const InvalidHandle Handle = 0

// EntityFactory spawns and manipulates companion props. Every method other
// than Spawn is a no-op on a destroyed or unknown handle.
type EntityFactory interface {
	Spawn(model string, scale float64) (Handle, error)
	Destroy(h Handle)
	Valid(h Handle) bool
	Teleport(h Handle, pos *core.Vector, rot *core.QAngle, vel *core.Vector)
	SetTint(h Handle, c color.RGBA)
	EmitSound(h Handle, sound string)
}

// Pawn is the physical body a player currently controls.
type Pawn interface {
	Valid() bool
	LifeState() core.LifeState
	Origin() core.Vector
	Rotation() core.QAngle
	EyeAngles() core.QAngle
	Velocity() core.Vector
	SetVelocity(v core.Vector)
	Grounded() bool
	MoveType() core.MoveType
	// CarryingRestricted reports whether the body carries a hostage-like prop.
	CarryingRestricted() bool
}

// Player is one connected client.
type Player interface {
	Slot() int
	Valid() bool
	IsBot() bool
	Name() string
	Team() core.Team
	Buttons() core.Buttons
	HasPermission(flag string) bool
	// Pawn returns the body the player is currently controlling, if any.
	Pawn() (Pawn, bool)
}

// World is the per-tick query surface of the host.
type World interface {
	// Players returns the live roster in host order.
	Players() []Player
	// Player looks up a connected player by slot.
	Player(slot int) (Player, bool)
	// Now is the host's game time since map start.
	Now() time.Duration
}

// Scheduler runs a callback once after a delay, measured in game time.
type Scheduler interface {
	After(d time.Duration, fn func())
}

// Broadcaster delivers best-effort text. Failures are swallowed by the host.
type Broadcaster interface {
	ChatAll(msg string)
	Chat(p Player, msg string)
	Center(p Player, msg string)
}

// Host bundles every collaborator the core needs.
type Host struct {
	Entities    EntityFactory
	World       World
	Scheduler   Scheduler
	Broadcaster Broadcaster
}
