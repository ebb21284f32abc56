package memhost

import (
	"github.com/OCAP2/parachute/pkg/core"
	"github.com/OCAP2/parachute/pkg/host"
)

// Player is a scriptable connected client.
type Player struct {
	SlotID      int
	PlayerName  string
	Bot         bool
	Side        core.Team
	Input       core.Buttons
	Permissions []string
	Invalid     bool

	// Body is the controlled pawn; nil means the player has no body.
	Body *Body
}

func (p *Player) Slot() int             { return p.SlotID }
func (p *Player) Valid() bool           { return !p.Invalid }
func (p *Player) IsBot() bool           { return p.Bot }
func (p *Player) Name() string          { return p.PlayerName }
func (p *Player) Team() core.Team       { return p.Side }
func (p *Player) Buttons() core.Buttons { return p.Input }

func (p *Player) HasPermission(flag string) bool {
	for _, f := range p.Permissions {
		if f == flag {
			return true
		}
	}
	return false
}

func (p *Player) Pawn() (host.Pawn, bool) {
	if p.Body == nil {
		return nil, false
	}
	return p.Body, true
}

// Airborne lifts the player off the ground at height z.
func (p *Player) Airborne(z float64) *Player {
	p.Body.OnGround = false
	p.Body.Position = core.Vector{p.Body.Position.X(), p.Body.Position.Y(), z}
	return p
}

// Land puts the player back on the ground.
func (p *Player) Land() *Player {
	p.Body.OnGround = true
	return p
}

// Hold sets the held buttons.
func (p *Player) Hold(b core.Buttons) *Player {
	p.Input = b
	return p
}

// Body is a scriptable pawn.
type Body struct {
	Invalid    bool
	Life       core.LifeState
	Position   core.Vector
	Angles     core.QAngle
	Look       core.QAngle
	Vel        core.Vector
	OnGround   bool
	Movement   core.MoveType
	Restricted bool

	VelocityWrites int
}

func (b *Body) Valid() bool               { return !b.Invalid }
func (b *Body) LifeState() core.LifeState { return b.Life }
func (b *Body) Origin() core.Vector       { return b.Position }
func (b *Body) Rotation() core.QAngle     { return b.Angles }
func (b *Body) EyeAngles() core.QAngle    { return b.Look }
func (b *Body) Velocity() core.Vector     { return b.Vel }
func (b *Body) Grounded() bool            { return b.OnGround }
func (b *Body) MoveType() core.MoveType   { return b.Movement }
func (b *Body) CarryingRestricted() bool  { return b.Restricted }

func (b *Body) SetVelocity(v core.Vector) {
	b.Vel = v
	b.VelocityWrites++
}
