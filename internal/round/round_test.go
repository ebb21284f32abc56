package round

import (
	"testing"
	"time"

	"github.com/OCAP2/parachute/internal/config"
	"github.com/OCAP2/parachute/pkg/core"
	"github.com/OCAP2/parachute/pkg/host"
	"github.com/OCAP2/parachute/pkg/host/memhost"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDetacher struct {
	reasons []core.DetachReason
}

func (d *recordingDetacher) DetachAll(reason core.DetachReason) {
	d.reasons = append(d.reasons, reason)
}

var testMessages = config.Messages{
	Prefix:      "[P] ",
	Countdown:   "available in {seconds} seconds",
	Ready:       "ready",
	ReadyCenter: "go!",
}

func newMachine(t *testing.T, cfg config.RoundConfig) (*Machine, *memhost.Host, *recordingDetacher) {
	t.Helper()
	h := memhost.New()
	d := &recordingDetacher{}
	return NewMachine(nil, h.Bundle(), d, cfg, testMessages), h, d
}

func TestMachine_StartsDisabled(t *testing.T) {
	m, _, _ := newMachine(t, config.RoundConfig{Enabled: true})
	assert.Equal(t, Disabled, m.Phase())
	assert.False(t, m.AllowsAttach())
}

func TestMachine_RoundStartDetachesAll(t *testing.T) {
	m, _, d := newMachine(t, config.RoundConfig{Enabled: true})
	m.Enable()
	require.True(t, m.AllowsAttach())

	m.RoundStart()
	assert.Equal(t, Disabled, m.Phase())
	assert.Equal(t, []core.DetachReason{core.DetachRoundReset}, d.reasons)
	assert.Equal(t, 1, m.Round())
}

func TestMachine_FreezeEndWithDelay(t *testing.T) {
	m, h, _ := newMachine(t, config.RoundConfig{Enabled: true, RoundStartDelay: 10 * time.Second})
	h.AddPlayer(1, "alice", core.TeamAttackers)
	h.AddPlayer(2, "bob", core.TeamDefenders)

	h.Advance(5 * time.Second)
	m.RoundStart()
	m.FreezeEnd()

	assert.Equal(t, TimerPending, m.Phase())
	deadline, ok := m.Deadline()
	require.True(t, ok)
	assert.Equal(t, 15*time.Second, deadline)
	assert.False(t, m.AllowsAttach(), "only detachment while the timer runs")
	require.Len(t, h.Messages, 1)
	assert.Equal(t, memhost.Message{Slot: -1, Text: "[P] available in 10 seconds"}, h.Messages[0])

	h.Advance(9 * time.Second)
	assert.Equal(t, TimerPending, m.Phase())

	h.Advance(time.Second)
	assert.Equal(t, Enabled, m.Phase())
	_, ok = m.Deadline()
	assert.False(t, ok)

	assert.Equal(t, []memhost.Message{
		{Slot: -1, Text: "[P] available in 10 seconds"},
		{Slot: -1, Text: "[P] ready"},
		{Slot: 1, Center: true, Text: "go!"},
		{Slot: 2, Center: true, Text: "go!"},
	}, h.Messages)
}

func TestMachine_FreezeEndWithoutDelay(t *testing.T) {
	m, h, _ := newMachine(t, config.RoundConfig{Enabled: true})
	m.FreezeEnd()

	assert.Equal(t, Enabled, m.Phase())
	assert.Zero(t, h.PendingTimers())
}

func TestMachine_FreezeEndFeatureDisabled(t *testing.T) {
	m, h, _ := newMachine(t, config.RoundConfig{Enabled: false, RoundStartDelay: time.Second})
	m.FreezeEnd()

	assert.Equal(t, Disabled, m.Phase())
	assert.Empty(t, h.Messages)
	assert.Zero(t, h.PendingTimers())
}

func TestMachine_StaleTimerIgnored(t *testing.T) {
	m, h, _ := newMachine(t, config.RoundConfig{Enabled: true, RoundStartDelay: 10 * time.Second})
	m.FreezeEnd()

	h.Advance(5 * time.Second)
	m.RoundStart()
	h.Advance(5 * time.Second)
	assert.Equal(t, Disabled, m.Phase(), "timer from the previous round must not enable")

	m.FreezeEnd()
	h.Advance(9 * time.Second)
	assert.Equal(t, TimerPending, m.Phase())
	h.Advance(time.Second)
	assert.Equal(t, Enabled, m.Phase())
}

func TestMachine_RoundEnd(t *testing.T) {
	m, _, d := newMachine(t, config.RoundConfig{Enabled: true})
	m.Enable()
	m.RoundEnd()
	assert.Equal(t, Enabled, m.Phase(), "no transition without reset on round end")
	assert.Empty(t, d.reasons)

	m.Configure(config.RoundConfig{Enabled: true, DisableOnRoundEnd: true}, testMessages)
	m.RoundEnd()
	assert.Equal(t, Disabled, m.Phase())
	assert.Equal(t, []core.DetachReason{core.DetachRoundReset}, d.reasons)
}

func TestMachine_DisableCancelsTimer(t *testing.T) {
	m, h, d := newMachine(t, config.RoundConfig{Enabled: true, RoundStartDelay: time.Second})
	m.FreezeEnd()
	m.Disable(core.DetachDisabled)
	h.Advance(2 * time.Second)

	assert.Equal(t, Disabled, m.Phase())
	assert.Equal(t, []core.DetachReason{core.DetachDisabled}, d.reasons)
}

func TestMachine_Audience(t *testing.T) {
	m, h, _ := newMachine(t, config.RoundConfig{Enabled: true})
	h.AddPlayer(1, "alice", core.TeamAttackers)
	h.AddPlayer(2, "bot", core.TeamAttackers).Bot = true
	h.AddPlayer(3, "gone", core.TeamAttackers).Invalid = true
	m.Audience = func(p host.Player) bool { return !p.IsBot() }

	m.Enable()

	var centers []int
	for _, msg := range h.Messages {
		if msg.Center {
			centers = append(centers, msg.Slot)
		}
	}
	assert.Equal(t, []int{1}, centers)
}

func TestMachine_ResetRounds(t *testing.T) {
	m, _, _ := newMachine(t, config.RoundConfig{})
	m.RoundStart()
	m.RoundStart()
	assert.Equal(t, 2, m.Round())
	m.ResetRounds()
	assert.Zero(t, m.Round())
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "disabled", Disabled.String())
	assert.Equal(t, "timer_pending", TimerPending.String())
	assert.Equal(t, "enabled", Enabled.String())
}

func TestMachine_SuspendResumeEnabled(t *testing.T) {
	m, h, d := newMachine(t, config.RoundConfig{Enabled: true})
	m.FreezeEnd()
	require.Equal(t, Enabled, m.Phase())

	m.Suspend(core.DetachDisabled)
	assert.Equal(t, Disabled, m.Phase())
	assert.Equal(t, []core.DetachReason{core.DetachDisabled}, d.reasons)

	assert.Equal(t, Enabled, m.Resume())
	ready := len(h.Messages)
	assert.Equal(t, Enabled, m.Resume())
	assert.Len(t, h.Messages, ready, "second resume announces nothing")
}

func TestMachine_ResumeKeepsRemainingDelay(t *testing.T) {
	m, h, _ := newMachine(t, config.RoundConfig{Enabled: true, RoundStartDelay: 10 * time.Second})
	m.RoundStart()
	m.FreezeEnd()
	h.Advance(4 * time.Second)

	m.Suspend(core.DetachDisabled)
	h.Advance(2 * time.Second)
	assert.Equal(t, Disabled, m.Phase())

	assert.Equal(t, TimerPending, m.Resume())
	deadline, ok := m.Deadline()
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, deadline)
	assert.Equal(t, memhost.Message{Slot: -1, Text: "[P] available in 4 seconds"}, h.Messages[len(h.Messages)-1])

	h.Advance(3 * time.Second)
	assert.Equal(t, TimerPending, m.Phase())
	h.Advance(time.Second)
	assert.Equal(t, Enabled, m.Phase())
}

func TestMachine_ResumeAfterDeadlineEnables(t *testing.T) {
	m, h, _ := newMachine(t, config.RoundConfig{Enabled: true, RoundStartDelay: 2 * time.Second})
	m.FreezeEnd()
	m.Suspend(core.DetachDisabled)
	h.Advance(5 * time.Second)

	assert.Equal(t, Enabled, m.Resume())
}

func TestMachine_ResumeWithoutSuspendedPhase(t *testing.T) {
	m, h, _ := newMachine(t, config.RoundConfig{Enabled: true, RoundStartDelay: 10 * time.Second})
	m.RoundStart()
	m.Suspend(core.DetachDisabled)

	assert.Equal(t, Disabled, m.Resume(), "the round has not reached freeze end")
	assert.Zero(t, h.PendingTimers())
}

func TestMachine_RoundStartForgetsSuspendedPhase(t *testing.T) {
	m, _, _ := newMachine(t, config.RoundConfig{Enabled: true})
	m.Enable()
	m.Suspend(core.DetachDisabled)
	m.RoundStart()

	assert.Equal(t, Disabled, m.Resume())
}

func TestMachine_ResumeWhileSwitchedOff(t *testing.T) {
	m, _, _ := newMachine(t, config.RoundConfig{Enabled: true})
	m.Enable()
	m.Configure(config.RoundConfig{Enabled: false}, testMessages)
	m.Suspend(core.DetachDisabled)

	assert.Equal(t, Disabled, m.Resume())

	m.Configure(config.RoundConfig{Enabled: true}, testMessages)
	assert.Equal(t, Enabled, m.Resume(), "the suspended phase survives until the switch is back on")
}
