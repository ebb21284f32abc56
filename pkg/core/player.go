// pkg/core/player.go
package core

// Buttons is the input bitmask a player held during the current tick.
type Buttons uint64

// Button bits as reported by the host.
const (
	ButtonAttack    Buttons = 1 << 0
	ButtonJump      Buttons = 1 << 1
	ButtonDuck      Buttons = 1 << 2
	ButtonForward   Buttons = 1 << 3
	ButtonBack      Buttons = 1 << 4
	ButtonUse       Buttons = 1 << 5
	ButtonCancel    Buttons = 1 << 6
	ButtonLeft      Buttons = 1 << 7
	ButtonRight     Buttons = 1 << 8
	ButtonMoveLeft  Buttons = 1 << 9
	ButtonMoveRight Buttons = 1 << 10
	ButtonAttack2   Buttons = 1 << 11
	ButtonRun       Buttons = 1 << 12
	ButtonReload    Buttons = 1 << 13
	ButtonSpeed     Buttons = 1 << 16
)

// Has reports whether every bit in mask is held.
func (b Buttons) Has(mask Buttons) bool {
	return b&mask == mask
}

// Any reports whether at least one bit in mask is held.
func (b Buttons) Any(mask Buttons) bool {
	return b&mask != 0
}

// LifeState mirrors the host's pawn life state.
type LifeState uint8

const (
	LifeAlive LifeState = iota
	LifeDying
	LifeDead
	LifeRespawnable
	LifeDiscardBody
)

func (l LifeState) String() string {
	switch l {
	case LifeAlive:
		return "alive"
	case LifeDying:
		return "dying"
	case LifeDead:
		return "dead"
	case LifeRespawnable:
		return "respawnable"
	case LifeDiscardBody:
		return "discard"
	default:
		return "unknown"
	}
}

// Team is a player's side.
type Team uint8

const (
	TeamNone Team = iota
	TeamSpectator
	TeamAttackers
	TeamDefenders
)

func (t Team) String() string {
	switch t {
	case TeamSpectator:
		return "spectator"
	case TeamAttackers:
		return "attackers"
	case TeamDefenders:
		return "defenders"
	default:
		return "none"
	}
}

// ParseTeam is the inverse of Team.String. Unknown names give TeamNone.
func ParseTeam(s string) Team {
	switch s {
	case "spectator":
		return TeamSpectator
	case "attackers":
		return TeamAttackers
	case "defenders":
		return TeamDefenders
	default:
		return TeamNone
	}
}

// MoveType is the movement mode of a pawn.
type MoveType uint8

const (
	MoveWalk MoveType = iota
	MoveLadder
	MoveNoclip
	MoveObserver
	MoveNone
)

// OnLadder reports whether the move type is a ladder mode.
func (m MoveType) OnLadder() bool {
	return m == MoveLadder
}
