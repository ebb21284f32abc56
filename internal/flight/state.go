package flight

import (
	"time"

	"github.com/OCAP2/parachute/internal/mount"
	"github.com/OCAP2/parachute/pkg/core"
	"github.com/OCAP2/parachute/pkg/host"
)

// Snapshot is the per-tick input and physical summary compared by the cache
// gate. It must stay comparable with ==.
type Snapshot struct {
	Buttons    core.Buttons
	Life       core.LifeState
	Grounded   bool
	OnLadder   bool
	Restricted bool
}

// State is the flight record of one tracked player.
type State struct {
	Slot int

	// Mount is nil while the player is not flying.
	Mount *mount.Attachment
	Bank  mount.Bank

	NextSound  time.Duration
	NextEffect time.Duration

	snapshot          Snapshot
	hasSnapshot       bool
	ticksSinceRefresh int
}

// Mounted reports whether a mount is attached.
func (s *State) Mounted() bool {
	return s.Mount != nil
}

// Handle returns the mount handle, or host.InvalidHandle.
func (s *State) Handle() host.Handle {
	if s.Mount == nil {
		return host.InvalidHandle
	}
	return s.Mount.Handle
}

// SetMount records a new attachment and restarts the cue timers at now.
func (s *State) SetMount(a mount.Attachment, now time.Duration) {
	s.Mount = &a
	s.Bank.Reset()
	s.NextSound = now
	s.NextEffect = now
}

// ClearMount forgets the attachment and its timers. The caller destroys the
// entity.
func (s *State) ClearMount() {
	s.Mount = nil
	s.Bank.Reset()
	s.NextSound = 0
	s.NextEffect = 0
}

// Observe runs the cache gate for one tick. It reports true when the caller
// must fully re-evaluate eligibility: the snapshot changed, nothing was cached
// yet, or refreshTicks ticks have passed since the last full evaluation.
func (s *State) Observe(snap Snapshot, refreshTicks int) bool {
	s.ticksSinceRefresh++
	if s.hasSnapshot && snap == s.snapshot && s.ticksSinceRefresh < refreshTicks {
		return false
	}
	s.snapshot = snap
	s.hasSnapshot = true
	s.ticksSinceRefresh = 0
	return true
}

// Invalidate forces a full evaluation on the next Observe.
func (s *State) Invalidate() {
	s.hasSnapshot = false
}

// TicksSinceRefresh returns the number of gated ticks since the last full
// evaluation.
func (s *State) TicksSinceRefresh() int {
	return s.ticksSinceRefresh
}

// CueDue reports whether a throttled cue fires at now and, if so, schedules
// the next one interval later. A non-positive interval fires only once per
// attachment.
func CueDue(next *time.Duration, now, interval time.Duration) bool {
	if *next < 0 || now < *next {
		return false
	}
	if interval <= 0 {
		*next = -1
		return true
	}
	*next = now + interval
	return true
}
