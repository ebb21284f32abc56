package recorder

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/OCAP2/parachute/internal/config"
	"github.com/OCAP2/parachute/internal/match"
	"github.com/OCAP2/parachute/internal/storage/memory"
	"github.com/OCAP2/parachute/pkg/core"
	"github.com/OCAP2/parachute/pkg/host/memhost"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var wall = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return wall }

// fakeStore counts calls and fails RecordFlight while failing is set.
type fakeStore struct {
	mu       sync.Mutex
	failing  bool
	flights  []string
	starts   []string
	ends     int
	flushes  int
	closed   bool
	startErr error
}

func (s *fakeStore) Init() error { return nil }

func (s *fakeStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeStore) StartMap(m *core.MapSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.starts = append(s.starts, m.MapName)
	m.ID = uint(len(s.starts))
	return nil
}

func (s *fakeStore) EndMap() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ends++
	return nil
}

func (s *fakeStore) RecordFlight(f *core.FlightSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errors.New("disk full")
	}
	s.flights = append(s.flights, f.ID)
	return nil
}

func (s *fakeStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return nil
}

func (s *fakeStore) setFailing(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = v
}

type fakeTelemetry struct {
	flights []*core.FlightSession
	err     error
}

func (t *fakeTelemetry) WriteFlight(f *core.FlightSession) error {
	t.flights = append(t.flights, f)
	return t.err
}

type fakeUploader struct {
	mu    sync.Mutex
	paths []string
	metas []core.UploadMetadata
	err   error
}

func (u *fakeUploader) Upload(path string, meta core.UploadMetadata) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.paths = append(u.paths, filepath.Base(path))
	u.metas = append(u.metas, meta)
	return u.err
}

func newRecorder(t *testing.T, cfg config.RecorderConfig, deps Dependencies) *Recorder {
	t.Helper()
	deps.Clock = fixedClock
	r, err := New(cfg, deps)
	require.NoError(t, err)
	require.NoError(t, r.Start())
	return r
}

func fly(r *Recorder, p *memhost.Player, ticks int, reason core.DetachReason) {
	tick := 10 * time.Millisecond
	r.FlightStarted(p, "parachute", core.Vector{0, 0, 300}, 0)
	for i := 1; i <= ticks; i++ {
		now := time.Duration(i) * tick
		r.FlightSampled(p.Slot(), core.Vector{float64(i), 0, 300 - float64(10*i)}, core.Vector{0, 0, -float64(i)}, now)
	}
	r.FlightEnded(p.Slot(), reason, time.Duration(ticks)*tick)
}

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(config.RecorderConfig{}, Dependencies{})
	assert.Error(t, err)
}

func TestStart_OpensSessionForCurrentMap(t *testing.T) {
	mc := match.NewContext()
	mc.StartMap("de_inferno", wall.Add(-time.Minute))
	store := &fakeStore{}

	r := newRecorder(t, config.RecorderConfig{SampleTicks: 1}, Dependencies{Store: store, Match: mc})

	s := r.Session()
	require.NotNil(t, s)
	assert.Equal(t, uint(1), s.ID)
	assert.Equal(t, "de_inferno", s.MapName)
	assert.Equal(t, wall.Add(-time.Minute), s.StartedAt)
}

func TestStart_BeforeAnyMapUsesClock(t *testing.T) {
	store := &fakeStore{}
	r := newRecorder(t, config.RecorderConfig{}, Dependencies{Store: store})

	s := r.Session()
	require.NotNil(t, s)
	assert.Equal(t, match.NoMap, s.MapName)
	assert.Equal(t, wall, s.StartedAt)
}

func TestFlight_Summary(t *testing.T) {
	mc := match.NewContext()
	mc.StartMap("de_nuke", wall)
	mc.BeginRound()
	store := &fakeStore{}
	tel := &fakeTelemetry{}
	r := newRecorder(t, config.RecorderConfig{SampleTicks: 2}, Dependencies{Store: store, Match: mc, Telemetry: tel})

	p := &memhost.Player{SlotID: 3, PlayerName: "alice", Side: core.TeamAttackers}
	fly(r, p, 5, core.DetachDeath)

	assert.Equal(t, 0, r.InFlight())
	assert.Equal(t, 1, r.QueueLength())
	require.NoError(t, r.Flush(context.Background()))
	assert.Equal(t, 0, r.QueueLength())

	require.Len(t, tel.flights, 1)
	f := tel.flights[0]
	assert.NotEmpty(t, f.ID)
	assert.Equal(t, []string{f.ID}, store.flights)
	assert.Equal(t, "de_nuke", f.MapName)
	assert.Equal(t, 1, f.Round)
	assert.Equal(t, 3, f.Slot)
	assert.Equal(t, "alice", f.PlayerName)
	assert.Equal(t, core.TeamAttackers, f.Team)
	assert.Equal(t, "parachute", f.MountType)
	assert.Equal(t, core.DetachDeath, f.Reason)
	assert.Equal(t, 50*time.Millisecond, f.Airtime)
	assert.Equal(t, wall, f.StartedAt)
	assert.Equal(t, wall.Add(50*time.Millisecond), f.EndedAt)
	assert.InDelta(t, 5.0, f.MaxSpeed, 1e-9)

	// first position, ticks 2 and 4, then the final tick
	require.Len(t, f.Path, 4)
	assert.Equal(t, time.Duration(0), f.Path[0].Offset)
	assert.Equal(t, 20*time.Millisecond, f.Path[1].Offset)
	assert.Equal(t, 40*time.Millisecond, f.Path[2].Offset)
	assert.Equal(t, 50*time.Millisecond, f.Path[3].Offset)
	assert.InDelta(t, 5.0, f.Distance, 1e-9)
	assert.InDelta(t, 50.0, f.Drop, 1e-9)
	assert.Equal(t, 1, store.flushes)
}

func TestFlight_FinalTickNotDuplicated(t *testing.T) {
	store := &fakeStore{}
	tel := &fakeTelemetry{}
	r := newRecorder(t, config.RecorderConfig{SampleTicks: 2}, Dependencies{Store: store, Telemetry: tel})

	fly(r, &memhost.Player{SlotID: 1}, 4, core.DetachIneligible)
	require.NoError(t, r.Flush(context.Background()))

	require.Len(t, tel.flights, 1)
	assert.Len(t, tel.flights[0].Path, 3)
}

func TestFlightEnded_UnknownSlotIgnored(t *testing.T) {
	store := &fakeStore{}
	r := newRecorder(t, config.RecorderConfig{SampleTicks: 1}, Dependencies{Store: store})

	r.FlightSampled(9, core.Vector{}, core.Vector{}, time.Second)
	r.FlightEnded(9, core.DetachDeath, time.Second)
	assert.Equal(t, 0, r.QueueLength())
}

func TestFlightStarted_ReplacesOpenFlight(t *testing.T) {
	store := &fakeStore{}
	tel := &fakeTelemetry{}
	r := newRecorder(t, config.RecorderConfig{SampleTicks: 1}, Dependencies{Store: store, Telemetry: tel})

	p := &memhost.Player{SlotID: 2}
	r.FlightStarted(p, "parachute", core.Vector{0, 0, 100}, 0)
	r.FlightStarted(p, "hoverboard", core.Vector{0, 0, 100}, time.Second)
	assert.Equal(t, 1, r.InFlight())

	require.NoError(t, r.Flush(context.Background()))
	require.Len(t, tel.flights, 1)
	assert.Equal(t, core.DetachInvalid, tel.flights[0].Reason)
	assert.Equal(t, time.Second, tel.flights[0].Airtime)
}

func TestFlush_RequeuesOnStoreError(t *testing.T) {
	store := &fakeStore{failing: true}
	r := newRecorder(t, config.RecorderConfig{SampleTicks: 1}, Dependencies{Store: store})

	fly(r, &memhost.Player{SlotID: 1}, 2, core.DetachDeath)
	fly(r, &memhost.Player{SlotID: 2}, 2, core.DetachDeath)

	err := r.Flush(context.Background())
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, 2, r.QueueLength())

	store.setFailing(false)
	require.NoError(t, r.Flush(context.Background()))
	assert.Equal(t, 0, r.QueueLength())
	assert.Len(t, store.flights, 2)
}

func TestFlush_CancelledContext(t *testing.T) {
	store := &fakeStore{}
	r := newRecorder(t, config.RecorderConfig{SampleTicks: 1}, Dependencies{Store: store})
	fly(r, &memhost.Player{SlotID: 1}, 1, core.DetachDeath)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Flush(ctx), context.Canceled)
	assert.Equal(t, 1, r.QueueLength())
}

func TestFlush_TelemetryErrorDoesNotRequeue(t *testing.T) {
	store := &fakeStore{}
	tel := &fakeTelemetry{err: errors.New("influx down")}
	r := newRecorder(t, config.RecorderConfig{SampleTicks: 1}, Dependencies{Store: store, Telemetry: tel})
	fly(r, &memhost.Player{SlotID: 1}, 1, core.DetachDeath)

	require.NoError(t, r.Flush(context.Background()))
	assert.Equal(t, 0, r.QueueLength())
	assert.Len(t, store.flights, 1)
}

func TestStartMap_FlushesAndRotatesSession(t *testing.T) {
	store := memory.New(config.MemoryConfig{})
	r := newRecorder(t, config.RecorderConfig{SampleTicks: 1}, Dependencies{Store: store})

	fly(r, &memhost.Player{SlotID: 1}, 3, core.DetachDeath)
	require.NoError(t, r.Flush(context.Background()))
	assert.Len(t, store.Flights(), 1)

	fly(r, &memhost.Player{SlotID: 1}, 3, core.DetachRoundReset)
	require.NoError(t, r.StartMap("de_ancient", wall))
	assert.Equal(t, 0, r.QueueLength())
	assert.Empty(t, store.Flights())

	s := store.Session()
	require.NotNil(t, s)
	assert.Equal(t, "de_ancient", s.MapName)
	assert.Equal(t, uint(2), s.ID)
	assert.Equal(t, s.ID, r.Session().ID)
}

func TestStartMap_StoreError(t *testing.T) {
	store := &fakeStore{}
	r := newRecorder(t, config.RecorderConfig{}, Dependencies{Store: store})

	store.startErr = errors.New("no db")
	err := r.StartMap("de_dust2", wall)
	assert.ErrorContains(t, err, "failed to start map session")
	assert.Nil(t, r.Session())
}

func TestStop_FlushesAndCloses(t *testing.T) {
	store := &fakeStore{}
	r := newRecorder(t, config.RecorderConfig{SampleTicks: 1, FlushInterval: time.Hour}, Dependencies{Store: store})
	fly(r, &memhost.Player{SlotID: 1}, 2, core.DetachShutdown)

	require.NoError(t, r.Stop(context.Background()))
	assert.Len(t, store.flights, 1)
	assert.Equal(t, 1, store.ends)
	assert.True(t, store.closed)
	assert.Nil(t, r.Session())
}

func TestFlushLoop(t *testing.T) {
	store := &fakeStore{}
	r := newRecorder(t, config.RecorderConfig{SampleTicks: 1, FlushInterval: 5 * time.Millisecond}, Dependencies{Store: store})
	defer r.Stop(context.Background())

	fly(r, &memhost.Player{SlotID: 1}, 2, core.DetachDeath)

	assert.Eventually(t, func() bool {
		return r.QueueLength() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestUpload_EveryExportOnce(t *testing.T) {
	store := memory.New(config.MemoryConfig{OutputDir: t.TempDir()})
	up := &fakeUploader{}
	r := newRecorder(t, config.RecorderConfig{SampleTicks: 1}, Dependencies{Store: store, Uploader: up})

	require.NoError(t, r.StartMap("de_ancient", wall))
	fly(r, &memhost.Player{SlotID: 1}, 3, core.DetachDeath)
	require.NoError(t, r.Stop(context.Background()))

	up.mu.Lock()
	defer up.mu.Unlock()
	assert.ElementsMatch(t, []string{"unknown_20260314_180000.json", "de_ancient_20260314_180000.json"}, up.paths)
	flights := make(map[string]int)
	for _, m := range up.metas {
		flights[m.MapName] = m.Flights
	}
	assert.Equal(t, map[string]int{"": 0, "de_ancient": 1}, flights)
}

func TestUpload_ErrorIsLoggedOnly(t *testing.T) {
	store := memory.New(config.MemoryConfig{OutputDir: t.TempDir()})
	up := &fakeUploader{err: errors.New("archive down")}
	r := newRecorder(t, config.RecorderConfig{}, Dependencies{Store: store, Uploader: up})

	assert.NoError(t, r.Stop(context.Background()))
	assert.Len(t, up.paths, 1)
}

func TestUpload_StoreWithoutExports(t *testing.T) {
	up := &fakeUploader{}
	r := newRecorder(t, config.RecorderConfig{}, Dependencies{Store: &fakeStore{}, Uploader: up})

	require.NoError(t, r.Stop(context.Background()))
	assert.Empty(t, up.paths)
}
