// Package round gates mount attachment on the round lifecycle.
package round

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/OCAP2/parachute/internal/config"
	"github.com/OCAP2/parachute/internal/util"
	"github.com/OCAP2/parachute/pkg/core"
	"github.com/OCAP2/parachute/pkg/host"
)

// Phase is the process-wide round state.
type Phase uint8

const (
	Disabled Phase = iota
	TimerPending
	Enabled
)

func (p Phase) String() string {
	switch p {
	case TimerPending:
		return "timer_pending"
	case Enabled:
		return "enabled"
	default:
		return "disabled"
	}
}

// Detacher removes every attached mount.
type Detacher interface {
	DetachAll(reason core.DetachReason)
}

// Machine is the round lifecycle state machine. It is driven from the host
// thread only.
type Machine struct {
	logger    *slog.Logger
	world     host.World
	scheduler host.Scheduler
	notify    host.Broadcaster
	detacher  Detacher

	cfg  config.RoundConfig
	msgs config.Messages

	phase    Phase
	deadline time.Duration
	// generation invalidates timers scheduled before the latest transition
	generation uint64
	round      int
	// resume is the phase an admin suspend interrupted
	resume resumePoint

	// Audience filters who receives the ready notice. Nil means everyone.
	Audience func(host.Player) bool
}

type resumePoint struct {
	phase    Phase
	deadline time.Duration
}

// NewMachine creates a machine in the Disabled phase.
func NewMachine(logger *slog.Logger, h host.Host, detacher Detacher, cfg config.RoundConfig, msgs config.Messages) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		logger:    logger,
		world:     h.World,
		scheduler: h.Scheduler,
		notify:    h.Broadcaster,
		detacher:  detacher,
		cfg:       cfg,
		msgs:      msgs,
	}
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	return m.phase
}

// Deadline returns the pending timer deadline while in TimerPending.
func (m *Machine) Deadline() (time.Duration, bool) {
	return m.deadline, m.phase == TimerPending
}

// Round returns the number of rounds started since the last map start.
func (m *Machine) Round() int {
	return m.round
}

// AllowsAttach reports whether new mounts may be attached.
func (m *Machine) AllowsAttach() bool {
	return m.phase == Enabled
}

// Configure replaces the settings used by later transitions.
func (m *Machine) Configure(cfg config.RoundConfig, msgs config.Messages) {
	m.cfg = cfg
	m.msgs = msgs
}

// ResetRounds clears the round counter for a new map.
func (m *Machine) ResetRounds() {
	m.round = 0
}

// RoundStart disables attachment and detaches every mount. A suspended phase
// from the previous round is forgotten.
func (m *Machine) RoundStart() {
	m.round++
	m.resume = resumePoint{}
	m.disable(core.DetachRoundReset)
}

// FreezeEnd starts the round-start delay, or enables immediately when no
// delay is configured. It does nothing while the feature is switched off.
func (m *Machine) FreezeEnd() {
	if !m.cfg.Enabled {
		m.logger.Debug("freeze end ignored, feature disabled")
		return
	}
	m.resume = resumePoint{}
	if m.cfg.RoundStartDelay <= 0 {
		m.enable()
		return
	}
	m.startTimer(m.cfg.RoundStartDelay)
}

func (m *Machine) startTimer(delay time.Duration) {
	m.generation++
	gen := m.generation
	m.phase = TimerPending
	m.deadline = m.world.Now() + delay
	m.logger.Debug("round delay started", "delay", delay, "deadline", m.deadline)

	seconds := strconv.FormatFloat(delay.Seconds(), 'f', -1, 64)
	m.broadcast(util.Template(m.msgs.Countdown, map[string]string{"seconds": seconds}))
	m.scheduler.After(delay, func() { m.expire(gen) })
}

// RoundEnd disables attachment when configured to reset on round end.
func (m *Machine) RoundEnd() {
	if m.cfg.DisableOnRoundEnd {
		m.disable(core.DetachRoundReset)
	}
}

// Disable forces the Disabled phase and detaches every mount.
func (m *Machine) Disable(reason core.DetachReason) {
	m.disable(reason)
}

// Enable skips any pending delay and enables attachment immediately.
func (m *Machine) Enable() {
	m.resume = resumePoint{}
	m.enable()
}

// Activate enables attachment right away when the feature is switched on, for
// joining a round that is already running.
func (m *Machine) Activate() Phase {
	if m.cfg.Enabled {
		m.Enable()
	}
	return m.phase
}

// Suspend disables like Disable but remembers the interrupted phase so Resume
// can restore it within the same round.
func (m *Machine) Suspend(reason core.DetachReason) {
	if m.phase != Disabled {
		m.resume = resumePoint{phase: m.phase, deadline: m.deadline}
	}
	m.disable(reason)
}

// Resume restores the phase interrupted by Suspend. A pending delay resumes
// with its remaining time. Without a suspended phase, or while the feature is
// switched off, the phase is left for the next freeze end.
func (m *Machine) Resume() Phase {
	if !m.cfg.Enabled {
		return m.phase
	}
	r := m.resume
	m.resume = resumePoint{}
	switch r.phase {
	case Enabled:
		m.enable()
	case TimerPending:
		if remaining := r.deadline - m.world.Now(); remaining > 0 {
			m.startTimer(remaining)
		} else {
			m.enable()
		}
	}
	return m.phase
}

func (m *Machine) disable(reason core.DetachReason) {
	m.generation++
	if m.phase != Disabled {
		m.logger.Debug("round phase changed", "from", m.phase, "to", Disabled, "reason", reason)
	}
	m.phase = Disabled
	m.deadline = 0
	if m.detacher != nil {
		m.detacher.DetachAll(reason)
	}
}

func (m *Machine) expire(gen uint64) {
	if gen != m.generation || m.phase != TimerPending {
		m.logger.Debug("stale round timer ignored", "generation", gen)
		return
	}
	m.enable()
}

func (m *Machine) enable() {
	m.generation++
	m.logger.Debug("round phase changed", "from", m.phase, "to", Enabled)
	m.phase = Enabled
	m.deadline = 0

	m.broadcast(m.msgs.Ready)
	if m.msgs.ReadyCenter == "" {
		return
	}
	for _, p := range m.world.Players() {
		if !p.Valid() || (m.Audience != nil && !m.Audience(p)) {
			continue
		}
		m.notify.Center(p, m.msgs.ReadyCenter)
	}
}

func (m *Machine) broadcast(msg string) {
	if msg == "" {
		return
	}
	m.notify.ChatAll(m.msgs.Prefix + msg)
}
