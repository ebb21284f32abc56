package main

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/OCAP2/parachute/internal/handlers"
	"github.com/OCAP2/parachute/pkg/core"
	"github.com/OCAP2/parachute/pkg/host/memhost"
)

const gravity = 800.0

type demoOptions struct {
	Players     int
	Rounds      int
	TickRate    int
	RoundLength time.Duration
	MapName     string
	Realtime    bool
	Verbose     bool
}

// jumper is the script of one player: climb to a ledge, jump, glide, land,
// wait and repeat.
type jumper struct {
	player   *memhost.Player
	height   float64
	heading  float64
	landedAt time.Duration
	rest     time.Duration
	// releaseAfter lets go of use this long into a flight. Zero keeps it held.
	releaseAfter time.Duration
	jumpedAt     time.Duration
}

func newJumper(p *memhost.Player, i int) *jumper {
	return &jumper{
		player:       p,
		height:       300 + 60*float64(i%5),
		heading:      float64(i) * 2 * math.Pi / 7,
		rest:         time.Duration(1+i%3) * time.Second,
		releaseAfter: time.Duration(i%4) * 600 * time.Millisecond,
		landedAt:     -time.Hour,
	}
}

func (j *jumper) step(now time.Duration, dt float64) {
	body := j.player.Body
	if body.OnGround {
		if now-j.landedAt < j.rest {
			return
		}
		j.player.Airborne(j.height).Hold(core.ButtonUse)
		body.Vel = core.Vector{120 * math.Cos(j.heading), 120 * math.Sin(j.heading), 0}
		body.Angles = core.QAngle{Yaw: j.heading * 180 / math.Pi}
		j.jumpedAt = now
		return
	}

	if j.releaseAfter > 0 && now-j.jumpedAt >= j.releaseAfter {
		j.player.Hold(0)
	}
	body.Vel = body.Vel.Add(core.Vector{0, 0, -gravity * dt})
	body.Position = body.Position.Add(body.Vel.Mul(dt))
	if body.Position.Z() <= 0 {
		j.respawn(now)
	}
}

// respawn puts the player back on the ground, after a landing or a death.
func (j *jumper) respawn(now time.Duration) {
	body := j.player.Body
	body.Position = core.Vector{body.Position.X(), body.Position.Y(), 0}
	body.Vel = core.Vector{}
	j.player.Land().Hold(0)
	j.landedAt = now
}

// runDemo plays opts.Rounds rounds on opts.MapName through the host bridge.
func runDemo(a *app, opts demoOptions, out io.Writer) error {
	if opts.TickRate <= 0 {
		return fmt.Errorf("tick rate must be positive, got %d", opts.TickRate)
	}
	tick := time.Second / time.Duration(opts.TickRate)
	dt := tick.Seconds()

	var log io.Writer
	if opts.Verbose {
		log = out
	}
	call := func(cmd string, args ...string) error {
		reply := a.call(log, cmd, args...)
		if strings.HasPrefix(reply, `["error"`) {
			return fmt.Errorf("%s failed: %s", cmd, reply)
		}
		return nil
	}

	if err := call(handlers.CmdMapStart, opts.MapName); err != nil {
		return err
	}

	jumpers := make([]*jumper, 0, opts.Players)
	for i := range opts.Players {
		team := core.TeamAttackers
		if i%2 == 1 {
			team = core.TeamDefenders
		}
		p := a.host.AddPlayer(i, "player"+strconv.Itoa(i), team)
		p.Bot = i == opts.Players-1
		if err := call(handlers.CmdPlayerConnect, strconv.Itoa(i)); err != nil {
			return err
		}
		jumpers = append(jumpers, newJumper(p, i))
	}

	ticksPerRound := int(opts.RoundLength / tick)
	for round := 1; round <= opts.Rounds; round++ {
		if err := call(handlers.CmdRoundStart); err != nil {
			return err
		}
		if err := call(handlers.CmdFreezeEnd); err != nil {
			return err
		}

		for i := range ticksPerRound {
			now := a.host.Now()
			for _, j := range jumpers {
				j.step(now, dt)
			}
			// one player is shot out of the air halfway through every round
			if i == ticksPerRound/2 && len(jumpers) > 0 {
				victim := jumpers[round%len(jumpers)]
				if err := call(handlers.CmdPlayerDeath, strconv.Itoa(victim.player.Slot()), "-1", "awp"); err != nil {
					return err
				}
				victim.respawn(now)
			}
			a.sim.Tick()
			a.host.Advance(tick)
			if opts.Realtime {
				time.Sleep(tick)
			}
		}

		if err := call(handlers.CmdRoundEnd, "3", "ct_win"); err != nil {
			return err
		}
		fmt.Fprintf(out, "round %d: %s\n", round, a.call(nil, handlers.CmdStatus))
	}

	if a.recorder != nil {
		if err := call(handlers.CmdRecorderFlush); err != nil {
			return err
		}
	}
	return nil
}
