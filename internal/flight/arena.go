package flight

import (
	"errors"
	"fmt"
)

// MaxSlots bounds the slot identifiers the arena accepts.
const MaxSlots = 1024

// ErrInvalidHandle is returned when a player or mount handle is no longer
// usable. The owning record is dropped and the tick continues.
var ErrInvalidHandle = errors.New("invalid handle")

// Arena stores flight states indexed by player slot. Records are reused
// across reconnects of the same slot only after Remove.
type Arena struct {
	states []*State
	count  int
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{}
}

// Get returns the state tracked for slot.
func (a *Arena) Get(slot int) (*State, bool) {
	if slot < 0 || slot >= len(a.states) || a.states[slot] == nil {
		return nil, false
	}
	return a.states[slot], true
}

// Ensure returns the state for slot, creating it if needed.
func (a *Arena) Ensure(slot int) (*State, error) {
	if slot < 0 || slot >= MaxSlots {
		return nil, fmt.Errorf("%w: slot %d out of range", ErrInvalidHandle, slot)
	}
	if slot >= len(a.states) {
		grown := make([]*State, slot+1)
		copy(grown, a.states)
		a.states = grown
	}
	if a.states[slot] == nil {
		a.states[slot] = &State{Slot: slot}
		a.count++
	}
	return a.states[slot], nil
}

// Remove drops the state for slot and returns it so the caller can release
// its mount.
func (a *Arena) Remove(slot int) (*State, bool) {
	s, ok := a.Get(slot)
	if !ok {
		return nil, false
	}
	a.states[slot] = nil
	a.count--
	return s, true
}

// Each calls fn for every tracked state in slot order.
func (a *Arena) Each(fn func(*State)) {
	for _, s := range a.states {
		if s != nil {
			fn(s)
		}
	}
}

// Len returns the number of tracked players.
func (a *Arena) Len() int {
	return a.count
}

// Mounted returns the number of tracked players with a mount attached.
func (a *Arena) Mounted() int {
	n := 0
	a.Each(func(s *State) {
		if s.Mounted() {
			n++
		}
	})
	return n
}

// Reset drops every state.
func (a *Arena) Reset() {
	a.states = nil
	a.count = 0
}
