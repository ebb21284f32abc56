package gormstorage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/OCAP2/parachute/internal/database"
	"github.com/OCAP2/parachute/internal/model"
	"github.com/OCAP2/parachute/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// newQueueOnlyBackend creates a Backend with no DB for unit testing the queues.
func newQueueOnlyBackend() *Backend {
	return New(Dependencies{WriteInterval: time.Hour})
}

func newSQLiteBackend(t *testing.T) (*Backend, *gorm.DB) {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "flights.db"))
	require.NoError(t, err)

	b := New(Dependencies{DB: db, WriteInterval: time.Hour})
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })
	return b, db
}

func flight(id string) *core.FlightSession {
	start := time.Date(2026, 5, 2, 18, 0, 0, 0, time.UTC)
	return &core.FlightSession{
		ID:        id,
		MapName:   "de_nuke",
		Round:     2,
		Slot:      3,
		MountType: "parachute",
		StartedAt: start,
		EndedAt:   start.Add(2 * time.Second),
		Airtime:   2 * time.Second,
		Reason:    core.DetachIneligible,
		Path: []core.PathSample{
			{Position: core.Vector{0, 0, 500}},
			{Offset: time.Second, Position: core.Vector{10, 0, 400}},
		},
	}
}

func TestInitClose_QueueOnly(t *testing.T) {
	b := newQueueOnlyBackend()

	require.NoError(t, b.Init())
	require.NotNil(t, b.stopChan)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close(), "second close is a no-op")
}

func TestRecordFlight_QueuesWithoutDB(t *testing.T) {
	b := newQueueOnlyBackend()
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartMap(&core.MapSession{ID: 5, MapName: "de_nuke"}))
	require.NoError(t, b.RecordFlight(flight("a")))
	require.NoError(t, b.RecordPerformance(model.RecorderPerformance{Phase: "enabled"}))

	assert.Equal(t, 2, b.QueueLength())
	require.NoError(t, b.Flush())
	assert.Equal(t, 2, b.QueueLength(), "rows stay queued until a DB exists")

	rows := b.queues.Flights.GetAndEmpty()
	require.Len(t, rows, 1)
	assert.Equal(t, uint(5), rows[0].MapSessionID)
}

func TestInit_OpenError(t *testing.T) {
	b := New(Dependencies{Open: func() (*gorm.DB, error) {
		return nil, errors.New("refused")
	}})

	err := b.Init()
	assert.ErrorContains(t, err, "refused")
}

func TestSQLite_MapSessionAndFlights(t *testing.T) {
	b, db := newSQLiteBackend(t)

	s := &core.MapSession{MapName: "de_nuke", StartedAt: time.Now()}
	require.NoError(t, b.StartMap(s))
	require.NotZero(t, s.ID)

	require.NoError(t, b.RecordFlight(flight("f-1")))
	require.NoError(t, b.RecordFlight(flight("f-2")))
	require.NoError(t, b.Flush())
	assert.Zero(t, b.QueueLength())
	assert.Positive(t, b.LastWriteDuration())

	var rows []model.Flight
	require.NoError(t, db.Order("uuid").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, s.ID, rows[0].MapSessionID)

	got, err := rows[0].Session()
	require.NoError(t, err)
	assert.Equal(t, "f-1", got.ID)
	assert.Len(t, got.Path, 2)

	require.NoError(t, b.EndMap())
	var session model.MapSession
	require.NoError(t, db.First(&session, s.ID).Error)
	assert.True(t, session.EndedAt.Valid)
	assert.Zero(t, b.MapSessionID())
}

func TestSQLite_MapReused(t *testing.T) {
	b, db := newSQLiteBackend(t)

	first := &core.MapSession{MapName: "de_dust2", StartedAt: time.Now()}
	second := &core.MapSession{MapName: "de_dust2", StartedAt: time.Now()}
	require.NoError(t, b.StartMap(first))
	require.NoError(t, b.StartMap(second))
	assert.NotEqual(t, first.ID, second.ID)

	var maps int64
	require.NoError(t, db.Model(&model.GameMap{}).Count(&maps).Error)
	assert.Equal(t, int64(1), maps)
}

func TestSQLite_DuplicateFlightIsRequeued(t *testing.T) {
	b, _ := newSQLiteBackend(t)
	require.NoError(t, b.StartMap(&core.MapSession{MapName: "de_inferno", StartedAt: time.Now()}))

	require.NoError(t, b.RecordFlight(flight("dup")))
	require.NoError(t, b.Flush())

	require.NoError(t, b.RecordFlight(flight("dup")))
	err := b.Flush()
	assert.ErrorContains(t, err, "error creating flights")
	assert.Equal(t, 1, b.QueueLength())
}

func TestClose_FlushesQueue(t *testing.T) {
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "close.db"))
	require.NoError(t, err)
	b := New(Dependencies{DB: db, WriteInterval: time.Hour})
	require.NoError(t, b.Init())
	require.NoError(t, b.StartMap(&core.MapSession{MapName: "de_train", StartedAt: time.Now()}))
	require.NoError(t, b.RecordFlight(flight("last")))

	require.NoError(t, b.Close())

	var n int64
	require.NoError(t, db.Model(&model.Flight{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}
