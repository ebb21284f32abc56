// Package match tracks the map and round the server is currently playing.
package match

import (
	"sync"
	"time"

	"github.com/OCAP2/parachute/pkg/core"
)

// NoMap is the map name before the first map start.
const NoMap = "No map loaded"

// Info is a copy of the match state.
type Info struct {
	MapName    string
	MapStarted time.Time
	Round      int
	InRound    bool
	LastWinner core.Team
	LastReason string
}

// Context holds the current match state. It is written from the host thread
// and read by the recorder worker and the log context provider.
type Context struct {
	mu   sync.RWMutex
	info Info
}

// NewContext creates a new Context with default values
func NewContext() *Context {
	return &Context{info: Info{MapName: NoMap}}
}

// Info returns the current state.
func (c *Context) Info() Info {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info
}

// MapName returns the current map name.
func (c *Context) MapName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info.MapName
}

// Round returns the number of the current or last round on this map.
func (c *Context) Round() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info.Round
}

// StartMap records a map change and resets the round counter.
func (c *Context) StartMap(name string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.info = Info{MapName: name, MapStarted: now}
}

// BeginRound advances the round counter and returns the new round number.
func (c *Context) BeginRound() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.info.Round++
	c.info.InRound = true
	return c.info.Round
}

// EndRound records the outcome of the current round.
func (c *Context) EndRound(winner core.Team, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.info.InRound = false
	c.info.LastWinner = winner
	c.info.LastReason = reason
}
