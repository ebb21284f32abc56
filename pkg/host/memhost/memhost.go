// Package memhost is an in-memory implementation of the host contracts. It is
// driven manually (Advance) and records every side effect so tests and the
// headless demo can observe what the core did.
package memhost

import (
	"errors"
	"image/color"
	"sort"
	"time"

	"github.com/OCAP2/parachute/pkg/core"
	"github.com/OCAP2/parachute/pkg/host"
)

// ErrEntityLimit is returned by Spawn when the entity table is full.
var ErrEntityLimit = errors.New("entity limit reached")

// Entity is a spawned prop.
type Entity struct {
	Handle   host.Handle
	Model    string
	Scale    float64
	Pose     core.Pose
	Velocity core.Vector
	Tint     color.RGBA
	Tinted   bool
	Sounds   []string
	Moves    int
}

// Message is a captured broadcast.
type Message struct {
	Slot   int // -1 for broadcasts to everyone
	Center bool
	Text   string
}

type timer struct {
	due time.Duration
	seq int
	fn  func()
}

// Host implements host.EntityFactory, host.World, host.Scheduler and
// host.Broadcaster.
type Host struct {
	now time.Duration

	players map[int]*Player
	order   []int

	entities   map[host.Handle]*Entity
	nextHandle host.Handle
	maxEntity  int

	timers   []timer
	timerSeq int

	// SpawnErr, when set, makes every Spawn fail with it.
	SpawnErr error

	Messages     []Message
	SpawnCalls   int
	DestroyCalls int
}

// New creates an empty host at game time zero.
func New() *Host {
	return &Host{
		players:  make(map[int]*Player),
		entities: make(map[host.Handle]*Entity),
	}
}

// Bundle returns the host collaborators backed by h.
func (h *Host) Bundle() host.Host {
	return host.Host{
		Entities:    h,
		World:       h,
		Scheduler:   h,
		Broadcaster: h,
	}
}

// SetEntityLimit caps the number of live entities. Zero means unlimited.
func (h *Host) SetEntityLimit(n int) {
	h.maxEntity = n
}

// AddPlayer connects a live, grounded player with a body at the origin.
func (h *Host) AddPlayer(slot int, name string, team core.Team) *Player {
	p := &Player{
		SlotID:     slot,
		PlayerName: name,
		Side:       team,
		Body:       &Body{OnGround: true},
	}
	if _, exists := h.players[slot]; !exists {
		h.order = append(h.order, slot)
	}
	h.players[slot] = p
	return p
}

// RemovePlayer disconnects the player in slot.
func (h *Host) RemovePlayer(slot int) {
	delete(h.players, slot)
	for i, s := range h.order {
		if s == slot {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

// Advance moves game time forward and fires every timer that became due, in
// deadline order.
func (h *Host) Advance(d time.Duration) {
	h.now += d
	for {
		due := -1
		for i, t := range h.timers {
			if t.due > h.now {
				continue
			}
			if due < 0 || t.due < h.timers[due].due || (t.due == h.timers[due].due && t.seq < h.timers[due].seq) {
				due = i
			}
		}
		if due < 0 {
			return
		}
		t := h.timers[due]
		h.timers = append(h.timers[:due], h.timers[due+1:]...)
		t.fn()
	}
}

// PendingTimers returns the number of timers that have not fired yet.
func (h *Host) PendingTimers() int {
	return len(h.timers)
}

// Entity returns the live entity for handle.
func (h *Host) Entity(handle host.Handle) (*Entity, bool) {
	e, ok := h.entities[handle]
	return e, ok
}

// Entities returns all live entities ordered by handle.
func (h *Host) Entities() []*Entity {
	out := make([]*Entity, 0, len(h.entities))
	for _, e := range h.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}

// EntityFactory

func (h *Host) Spawn(model string, scale float64) (host.Handle, error) {
	h.SpawnCalls++
	if h.SpawnErr != nil {
		return host.InvalidHandle, h.SpawnErr
	}
	if h.maxEntity > 0 && len(h.entities) >= h.maxEntity {
		return host.InvalidHandle, ErrEntityLimit
	}
	h.nextHandle++
	e := &Entity{Handle: h.nextHandle, Model: model, Scale: scale}
	h.entities[e.Handle] = e
	return e.Handle, nil
}

func (h *Host) Destroy(handle host.Handle) {
	if _, ok := h.entities[handle]; !ok {
		return
	}
	h.DestroyCalls++
	delete(h.entities, handle)
}

func (h *Host) Valid(handle host.Handle) bool {
	_, ok := h.entities[handle]
	return ok
}

func (h *Host) Teleport(handle host.Handle, pos *core.Vector, rot *core.QAngle, vel *core.Vector) {
	e, ok := h.entities[handle]
	if !ok {
		return
	}
	if pos != nil {
		e.Pose.Origin = *pos
	}
	if rot != nil {
		e.Pose.Rotation = *rot
	}
	if vel != nil {
		e.Velocity = *vel
	}
	e.Moves++
}

func (h *Host) SetTint(handle host.Handle, c color.RGBA) {
	if e, ok := h.entities[handle]; ok {
		e.Tint = c
		e.Tinted = true
	}
}

func (h *Host) EmitSound(handle host.Handle, sound string) {
	if e, ok := h.entities[handle]; ok {
		e.Sounds = append(e.Sounds, sound)
	}
}

// World

func (h *Host) Players() []host.Player {
	out := make([]host.Player, 0, len(h.order))
	for _, slot := range h.order {
		out = append(out, h.players[slot])
	}
	return out
}

func (h *Host) Player(slot int) (host.Player, bool) {
	p, ok := h.players[slot]
	if !ok {
		return nil, false
	}
	return p, true
}

func (h *Host) Now() time.Duration {
	return h.now
}

// Scheduler

func (h *Host) After(d time.Duration, fn func()) {
	h.timerSeq++
	h.timers = append(h.timers, timer{due: h.now + d, seq: h.timerSeq, fn: fn})
}

// Broadcaster

func (h *Host) ChatAll(msg string) {
	h.Messages = append(h.Messages, Message{Slot: -1, Text: msg})
}

func (h *Host) Chat(p host.Player, msg string) {
	h.Messages = append(h.Messages, Message{Slot: p.Slot(), Text: msg})
}

func (h *Host) Center(p host.Player, msg string) {
	h.Messages = append(h.Messages, Message{Slot: p.Slot(), Center: true, Text: msg})
}
