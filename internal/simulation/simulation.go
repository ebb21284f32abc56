// Package simulation runs the per-tick mount loop: it decides who flies,
// attaches and detaches mounts, applies flight physics and keeps every mount
// glued to its player.
package simulation

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/OCAP2/parachute/internal/config"
	"github.com/OCAP2/parachute/internal/flight"
	"github.com/OCAP2/parachute/internal/mount"
	"github.com/OCAP2/parachute/internal/physics"
	"github.com/OCAP2/parachute/internal/round"
	"github.com/OCAP2/parachute/pkg/core"
	"github.com/OCAP2/parachute/pkg/host"
)

// Observer receives flight lifecycle notifications. Calls happen on the host
// thread and must not block.
type Observer interface {
	FlightStarted(p host.Player, mountType string, pos core.Vector, now time.Duration)
	FlightSampled(slot int, pos core.Vector, vel core.Vector, now time.Duration)
	FlightEnded(slot int, reason core.DetachReason, now time.Duration)
}

// Stats is the state published after every tick. It may be read from any
// goroutine.
type Stats struct {
	Phase    string
	Tracked  int
	Mounted  int
	TickTime time.Duration
}

// Simulator owns the flight arena, the round machine and the mount factory.
type Simulator struct {
	logger   *slog.Logger
	world    host.World
	factory  *mount.Factory
	arena    *flight.Arena
	machine  *round.Machine
	cfg      config.MountConfig
	observer Observer
	metrics  *metrics

	lastPhase round.Phase
	stats     atomic.Pointer[Stats]
}

// New wires a simulator and its round machine to h.
func New(logger *slog.Logger, h host.Host, factory *mount.Factory, cfg config.MountConfig, roundCfg config.RoundConfig, msgs config.Messages) (*Simulator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m, err := newMetrics()
	if err != nil {
		return nil, err
	}
	s := &Simulator{
		logger:  logger,
		world:   h.World,
		factory: factory,
		arena:   flight.NewArena(),
		cfg:     cfg,
		metrics: m,
	}
	s.machine = round.NewMachine(logger.With("component", "round"), h, s, roundCfg, msgs)
	s.machine.Audience = s.tracks
	return s, nil
}

// SetObserver installs the flight observer. Nil disables notifications.
func (s *Simulator) SetObserver(o Observer) {
	s.observer = o
}

// Round returns the round machine driving this simulator.
func (s *Simulator) Round() *round.Machine {
	return s.machine
}

// Arena returns the tracked flight states.
func (s *Simulator) Arena() *flight.Arena {
	return s.arena
}

// Factory returns the mount factory in use.
func (s *Simulator) Factory() *mount.Factory {
	return s.factory
}

// ActiveMounts returns the number of attached mounts.
func (s *Simulator) ActiveMounts() int {
	return s.arena.Mounted()
}

// Reconfigure detaches every mount and switches to a new factory and mount
// configuration.
func (s *Simulator) Reconfigure(factory *mount.Factory, cfg config.MountConfig) {
	s.DetachAll(core.DetachReload)
	s.factory = factory
	s.cfg = cfg
}

// Tick runs one simulation step over the host roster.
func (s *Simulator) Tick() {
	phase := s.machine.Phase()
	if phase == round.Disabled {
		s.publish(phase, 0)
		return
	}
	start := time.Now()
	now := s.world.Now()
	if phase != s.lastPhase {
		// cached verdicts were taken under the old phase
		s.arena.Each(func(st *flight.State) { st.Invalidate() })
		s.lastPhase = phase
	}

	for _, p := range s.world.Players() {
		err := s.tickPlayer(p, phase, now)
		if err == nil {
			continue
		}
		if errors.Is(err, flight.ErrInvalidHandle) {
			s.logger.Debug("dropping flight state", "slot", p.Slot(), "error", err)
			s.drop(p.Slot(), core.DetachInvalid, now)
			continue
		}
		s.logger.Warn("flight update failed", "slot", p.Slot(), "error", err)
	}

	took := time.Since(start)
	s.metrics.recordTick(float64(took.Microseconds()) / 1000)
	s.publish(phase, took)
}

func (s *Simulator) publish(phase round.Phase, took time.Duration) {
	s.stats.Store(&Stats{
		Phase:    phase.String(),
		Tracked:  s.arena.Len(),
		Mounted:  s.arena.Mounted(),
		TickTime: took,
	})
}

// Stats returns the state as of the last tick.
func (s *Simulator) Stats() Stats {
	if st := s.stats.Load(); st != nil {
		return *st
	}
	return Stats{Phase: round.Disabled.String()}
}

func (s *Simulator) tickPlayer(p host.Player, phase round.Phase, now time.Duration) error {
	slot := p.Slot()
	st, tracked := s.arena.Get(slot)

	if !p.Valid() {
		if tracked {
			return fmt.Errorf("%w: player in slot %d", flight.ErrInvalidHandle, slot)
		}
		return nil
	}
	if !s.tracks(p) {
		if tracked {
			s.detach(st, core.DetachIneligible, now)
		}
		return nil
	}
	pawn, ok := p.Pawn()
	if !ok || !pawn.Valid() {
		if tracked {
			s.detach(st, core.DetachIneligible, now)
		}
		return nil
	}

	if !tracked {
		var err error
		if st, err = s.arena.Ensure(slot); err != nil {
			return err
		}
	}

	if st.Mounted() && !s.factory.Valid(st.Handle()) {
		return fmt.Errorf("%w: mount %d of slot %d vanished", flight.ErrInvalidHandle, st.Handle(), slot)
	}

	snap := flight.Snapshot{
		Buttons:    p.Buttons(),
		Life:       pawn.LifeState(),
		Grounded:   pawn.Grounded(),
		OnLadder:   pawn.MoveType().OnLadder(),
		Restricted: pawn.CarryingRestricted(),
	}

	if !st.Observe(snap, s.cfg.CacheRefreshTicks) {
		if st.Mounted() {
			s.fly(p, pawn, st, now)
		}
		return nil
	}

	eligible := s.eligible(p, snap)
	switch {
	case st.Mounted() && !eligible:
		s.detach(st, core.DetachIneligible, now)
	case !st.Mounted() && eligible && phase == round.Enabled:
		s.attach(p, pawn, st, now)
	case st.Mounted():
		s.fly(p, pawn, st, now)
	}
	return nil
}

// tracks reports whether p takes part in the simulation at all.
func (s *Simulator) tracks(p host.Player) bool {
	return !(s.cfg.DisableForBots && p.IsBot())
}

// eligible reports whether a player in the given state should have a mount.
func (s *Simulator) eligible(p host.Player, snap flight.Snapshot) bool {
	if !snap.Buttons.Has(core.ButtonUse) || snap.Life != core.LifeAlive {
		return false
	}
	if snap.Grounded || snap.OnLadder {
		return false
	}
	if s.cfg.DisableWhenCarryingHostage && snap.Restricted {
		return false
	}
	return s.cfg.AccessFlag == "" || p.HasPermission(s.cfg.AccessFlag)
}

func (s *Simulator) attach(p host.Player, pawn host.Pawn, st *flight.State, now time.Duration) {
	a, err := s.factory.Attach(p)
	if err != nil {
		s.metrics.recordSpawnFailure()
		s.logger.Debug("mount attach failed", "slot", st.Slot, "error", err)
		// retry on the next tick instead of waiting out the cache
		st.Invalidate()
		return
	}
	st.SetMount(a, now)
	s.metrics.recordAttach(a.Type.Name)
	s.logger.Debug("mount attached", "slot", st.Slot, "player", p.Name(), "type", a.Type.Name, "handle", a.Handle)
	if s.observer != nil {
		s.observer.FlightStarted(p, a.Type.Name, pawn.Origin(), now)
	}
	s.fly(p, pawn, st, now)
}

func (s *Simulator) fly(p host.Player, pawn host.Pawn, st *flight.State, now time.Duration) {
	vel := pawn.Velocity()
	next := physics.Apply(vel, p.Buttons(), pawn.EyeAngles(), s.cfg)
	if next != vel {
		pawn.SetVelocity(next)
	}

	pose := core.Pose{Origin: pawn.Origin(), Rotation: pawn.Rotation()}
	s.factory.Place(*st.Mount, pose, next, &st.Bank)

	if flight.CueDue(&st.NextSound, now, s.cfg.SoundInterval) {
		s.factory.Emit(st.Handle(), st.Mount.Type.Sound)
	}
	if flight.CueDue(&st.NextEffect, now, s.cfg.EffectInterval) {
		s.factory.Emit(st.Handle(), s.cfg.Effect)
	}

	if s.observer != nil {
		s.observer.FlightSampled(st.Slot, pose.Origin, next, now)
	}
}

func (s *Simulator) detach(st *flight.State, reason core.DetachReason, now time.Duration) {
	st.Invalidate()
	if !st.Mounted() {
		return
	}
	s.factory.Detach(st.Handle())
	st.ClearMount()
	s.metrics.recordDetach(string(reason))
	s.logger.Debug("mount detached", "slot", st.Slot, "reason", reason)
	if s.observer != nil {
		s.observer.FlightEnded(st.Slot, reason, now)
	}
}

// drop removes the record of slot, releasing its mount if the entity still
// exists.
func (s *Simulator) drop(slot int, reason core.DetachReason, now time.Duration) {
	st, ok := s.arena.Remove(slot)
	if !ok {
		return
	}
	s.detach(st, reason, now)
}

// Connect starts tracking a player.
func (s *Simulator) Connect(slot int) error {
	if p, ok := s.world.Player(slot); ok && !s.tracks(p) {
		return nil
	}
	_, err := s.arena.Ensure(slot)
	return err
}

// Disconnect detaches and forgets a player.
func (s *Simulator) Disconnect(slot int) {
	s.drop(slot, core.DetachDisconnect, s.world.Now())
}

// PlayerDeath detaches the player's mount.
func (s *Simulator) PlayerDeath(slot int) {
	s.ForceDetach(slot, core.DetachDeath)
}

// ForceDetach removes the mount of slot, if any. Calling it again is a no-op.
func (s *Simulator) ForceDetach(slot int, reason core.DetachReason) {
	if st, ok := s.arena.Get(slot); ok {
		s.detach(st, reason, s.world.Now())
	}
}

// DetachAll removes every mount and resets every cache gate.
func (s *Simulator) DetachAll(reason core.DetachReason) {
	now := s.world.Now()
	s.arena.Each(func(st *flight.State) {
		s.detach(st, reason, now)
	})
}

// HotAttach tracks every connected player, for loading while a match is
// running. With anyone connected the round is treated as live and attachment
// is activated. It returns the number of tracked players.
func (s *Simulator) HotAttach() (int, error) {
	var errs []error
	tracked := 0
	for _, p := range s.world.Players() {
		if !p.Valid() || !s.tracks(p) {
			continue
		}
		if _, err := s.arena.Ensure(p.Slot()); err != nil {
			errs = append(errs, err)
			continue
		}
		tracked++
	}
	if tracked > 0 {
		s.machine.Activate()
	}
	return tracked, errors.Join(errs...)
}

// Shutdown detaches every mount, disables the round and forgets all players.
func (s *Simulator) Shutdown() {
	s.machine.Disable(core.DetachShutdown)
	s.arena.Reset()
}
