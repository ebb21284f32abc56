// Package gormstorage implements storage.Backend on GORM with internal queues
// and a background writer goroutine. The sqlite and postgres stores wrap it.
package gormstorage

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OCAP2/parachute/internal/database"
	"github.com/OCAP2/parachute/internal/model"
	"github.com/OCAP2/parachute/internal/queue"
	"github.com/OCAP2/parachute/pkg/core"

	"gorm.io/gorm"
)

// DefaultWriteInterval is how often queued rows are written when
// Dependencies.WriteInterval is zero.
const DefaultWriteInterval = 2 * time.Second

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	// DB is used as is. When nil, Open is called from Init.
	DB   *gorm.DB
	Open func() (*gorm.DB, error)

	Logger        *slog.Logger
	WriteInterval time.Duration
}

// queues holds the write queues for batch DB insertion.
type queues struct {
	Flights      *queue.Queue[model.Flight]
	Performances *queue.Queue[model.RecorderPerformance]
}

func newQueues() *queues {
	return &queues{
		Flights:      queue.New[model.Flight](),
		Performances: queue.New[model.RecorderPerformance](),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps   Dependencies
	logger *slog.Logger
	db     *gorm.DB
	queues *queues

	mapSessionID atomic.Uint64
	lastWrite    atomic.Int64

	// writeMu serializes the writer goroutine with Flush.
	writeMu  sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.WriteInterval <= 0 {
		deps.WriteInterval = DefaultWriteInterval
	}
	return &Backend{
		deps:   deps,
		logger: logger,
		db:     deps.DB,
		queues: newQueues(),
	}
}

// Init connects if needed, migrates the schema and starts the writer.
func (b *Backend) Init() error {
	if b.db == nil && b.deps.Open != nil {
		db, err := b.deps.Open()
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		b.db = db
	}
	if b.db != nil {
		if err := database.Ping(b.db); err != nil {
			return fmt.Errorf("failed to reach database: %w", err)
		}
		if err := database.Migrate(b.db); err != nil {
			return err
		}
	}

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.writeLoop()
	return nil
}

// Close stops the writer and writes whatever is still queued.
func (b *Backend) Close() error {
	if b.stopChan != nil {
		close(b.stopChan)
		<-b.done
		b.stopChan = nil
	}
	return b.Flush()
}

// DB returns the connection, nil before Init when Open is used.
func (b *Backend) DB() *gorm.DB {
	return b.db
}

// StartMap records a map session and stamps its ID on s.
func (b *Backend) StartMap(s *core.MapSession) error {
	if b.db == nil {
		b.mapSessionID.Store(uint64(s.ID))
		return nil
	}

	gameMap := model.GameMap{Name: s.MapName}
	if _, err := gameMap.GetOrInsert(b.db); err != nil {
		return fmt.Errorf("failed to get or insert map %q: %w", s.MapName, err)
	}
	session := model.MapSession{GameMapID: gameMap.ID, StartedAt: s.StartedAt}
	if err := b.db.Create(&session).Error; err != nil {
		return fmt.Errorf("failed to create map session: %w", err)
	}

	s.ID = session.ID
	b.mapSessionID.Store(uint64(session.ID))
	b.logger.Info("map session started", "map", s.MapName, "id", session.ID)
	return nil
}

// EndMap writes queued flights and closes the current map session.
func (b *Backend) EndMap() error {
	flushErr := b.Flush()

	id := uint(b.mapSessionID.Swap(0))
	if b.db == nil || id == 0 {
		return flushErr
	}
	err := b.db.Model(&model.MapSession{}).
		Where("id = ?", id).
		Update("ended_at", sql.NullTime{Time: time.Now(), Valid: true}).Error
	if err != nil {
		err = fmt.Errorf("failed to close map session %d: %w", id, err)
	}
	return errors.Join(flushErr, err)
}

// MapSessionID is the session new flights are filed under. Zero before the
// first StartMap.
func (b *Backend) MapSessionID() uint {
	return uint(b.mapSessionID.Load())
}

// RecordFlight converts f and queues it for the writer.
func (b *Backend) RecordFlight(f *core.FlightSession) error {
	row, err := model.NewFlight(b.MapSessionID(), f)
	if err != nil {
		return err
	}
	b.queues.Flights.Push(row)
	return nil
}

// RecordPerformance queues a recorder snapshot under the current map session.
func (b *Backend) RecordPerformance(p model.RecorderPerformance) error {
	p.MapSessionID = b.MapSessionID()
	b.queues.Performances.Push(p)
	return nil
}

// QueueLength is the number of rows waiting for the writer.
func (b *Backend) QueueLength() int {
	return b.queues.Flights.Len() + b.queues.Performances.Len()
}

// LastWriteDuration is how long the last non-empty write cycle took.
func (b *Backend) LastWriteDuration() time.Duration {
	return time.Duration(b.lastWrite.Load())
}

// Flush writes every queued row now. Without a database the rows stay queued.
func (b *Backend) Flush() error {
	if b.db == nil {
		return nil
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	start := time.Now()
	wrote := false
	var errs []error

	n, err := writeQueue(b.db, b.queues.Flights, "flights")
	wrote = wrote || n > 0
	errs = append(errs, err)

	n, err = writeQueue(b.db, b.queues.Performances, "recorder performances")
	wrote = wrote || n > 0
	errs = append(errs, err)

	if wrote {
		b.lastWrite.Store(int64(time.Since(start)))
	}
	return errors.Join(errs...)
}

// writeQueue writes all items from a queue to the database in a transaction.
// Failed batches go back to the head of the queue.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string) (int, error) {
	if q.Empty() {
		return 0, nil
	}

	tx := db.Begin()
	if tx.Error != nil {
		return 0, fmt.Errorf("failed to begin %s transaction: %w", name, tx.Error)
	}
	items := q.GetAndEmpty()
	if err := tx.Create(&items).Error; err != nil {
		tx.Rollback()
		q.Requeue(items...)
		return 0, fmt.Errorf("error creating %s: %w", name, err)
	}
	if err := tx.Commit().Error; err != nil {
		q.Requeue(items...)
		return 0, fmt.Errorf("error committing %s: %w", name, err)
	}
	return len(items), nil
}

// writeLoop periodically drains the queues into the DB.
func (b *Backend) writeLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.deps.WriteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.Flush(); err != nil {
				b.logger.Error("db write failed", "error", err)
			}
		}
	}
}
