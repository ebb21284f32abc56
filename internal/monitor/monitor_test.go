package monitor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/OCAP2/parachute/internal/config"
	"github.com/OCAP2/parachute/internal/match"
	"github.com/OCAP2/parachute/internal/model"
	"github.com/OCAP2/parachute/internal/simulation"
	"github.com/OCAP2/parachute/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeSim struct{ stats simulation.Stats }

func (f fakeSim) Stats() simulation.Stats { return f.stats }

type fakeRecorder struct{ session *core.MapSession }

func (f fakeRecorder) Session() *core.MapSession { return f.session }
func (fakeRecorder) InFlight() int               { return 2 }
func (fakeRecorder) QueueLength() int            { return 3 }

type fakeStore struct {
	mu   sync.Mutex
	rows []model.RecorderPerformance
}

func (f *fakeStore) RecordPerformance(p model.RecorderPerformance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, p)
	return nil
}

func (f *fakeStore) QueueLength() int                 { return 4 }
func (f *fakeStore) LastWriteDuration() time.Duration { return 1500 * time.Microsecond }

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeTelemetry struct {
	tags   map[string]string
	fields map[string]any
}

func (f *fakeTelemetry) WritePerformance(tags map[string]string, fields map[string]any, _ time.Time) error {
	f.tags, f.fields = tags, fields
	return nil
}

func newDeps(session *core.MapSession) (Dependencies, *fakeStore, *fakeTelemetry) {
	mc := match.NewContext()
	mc.StartMap("de_mirage", now)
	mc.BeginRound()
	store := &fakeStore{}
	tel := &fakeTelemetry{}
	return Dependencies{
		Simulator: fakeSim{simulation.Stats{Phase: "enabled", Tracked: 10, Mounted: 4, TickTime: 250 * time.Microsecond}},
		Match:     mc,
		Recorder:  fakeRecorder{session: session},
		Store:     store,
		Telemetry: tel,
		Clock:     func() time.Time { return now },
	}, store, tel
}

func TestGetStatus(t *testing.T) {
	deps, _, _ := newDeps(&core.MapSession{ID: 9})
	s := NewService(config.MonitorConfig{}, deps)

	st := s.GetStatus()
	assert.Equal(t, Status{
		Time:              now,
		Map:               "de_mirage",
		Round:             1,
		Phase:             "enabled",
		Tracked:           10,
		Mounted:           4,
		TickTimeMs:        0.25,
		InFlight:          2,
		RecorderQueue:     3,
		StoreQueue:        4,
		LastWriteDuration: 1.5,
		MapSessionID:      9,
	}, st)
}

func TestGetStatus_NoOptionalDeps(t *testing.T) {
	s := NewService(config.MonitorConfig{}, Dependencies{})
	st := s.GetStatus()
	assert.Equal(t, match.NoMap, st.Map)
	assert.Empty(t, st.Phase)
}

func TestPerformance(t *testing.T) {
	p := Performance(Status{Time: now, MapSessionID: 2, Phase: "enabled", Tracked: 70000, Mounted: -1, RecorderQueue: 1, StoreQueue: 2, LastWriteDuration: 3})
	assert.Equal(t, uint16(0xFFFF), p.Tracked)
	assert.Equal(t, uint16(0), p.Mounted)
	assert.Equal(t, uint16(3), p.QueueLength)
	assert.Equal(t, float32(3), p.LastWriteDurationMs)
	assert.Equal(t, uint(2), p.MapSessionID)
}

func TestSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	deps, store, tel := newDeps(&core.MapSession{ID: 9})
	s := NewService(config.MonitorConfig{Path: path}, deps)

	s.Sample()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var st Status
	require.NoError(t, json.Unmarshal(data, &st))
	assert.Equal(t, "de_mirage", st.Map)
	assert.Equal(t, 4, st.Mounted)

	require.Equal(t, 1, store.count())
	assert.Equal(t, uint(9), store.rows[0].MapSessionID)
	assert.Equal(t, map[string]string{"map": "de_mirage", "phase": "enabled"}, tel.tags)
	assert.Equal(t, 4, tel.fields["mounted"])
}

func TestSample_SkipsPerformanceWithoutSession(t *testing.T) {
	deps, store, tel := newDeps(nil)
	s := NewService(config.MonitorConfig{}, deps)

	s.Sample()
	assert.Zero(t, store.count())
	assert.Nil(t, tel.tags)
}

func TestStartStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "status.json")
	deps, store, _ := newDeps(&core.MapSession{ID: 1})
	deps.Telemetry = nil
	s := NewService(config.MonitorConfig{Interval: 5 * time.Millisecond, Path: path}, deps)

	require.NoError(t, s.Start())
	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())

	assert.Eventually(t, func() bool { return store.count() > 0 }, time.Second, 5*time.Millisecond)
	s.Stop()
	s.Stop()
	assert.False(t, s.IsRunning())
	assert.FileExists(t, path)
}

func TestStart_BadInterval(t *testing.T) {
	s := NewService(config.MonitorConfig{}, Dependencies{})
	assert.Error(t, s.Start())
	assert.False(t, s.IsRunning())
}
