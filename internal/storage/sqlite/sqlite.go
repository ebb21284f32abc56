// Package sqlitestorage implements the storage.Backend interface on SQLite.
// It wraps the GORM backend; the only SQLite-specific concerns are opening
// the database and, for the in-memory variant, the periodic disk dump.
package sqlitestorage

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/OCAP2/parachute/internal/config"
	"github.com/OCAP2/parachute/internal/database"
	gormstorage "github.com/OCAP2/parachute/internal/storage/gorm"

	"gorm.io/gorm"
)

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*gormstorage.Backend
	db       *gorm.DB
	cfg      config.SQLiteConfig
	logger   *slog.Logger
	stopChan chan struct{}
	done     chan struct{}
}

// New opens the database. An empty cfg.Path keeps it in memory and dumps it
// to cfg.DumpPath every cfg.DumpInterval.
func New(cfg config.SQLiteConfig, logger *slog.Logger, writeInterval time.Duration) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := database.OpenSQLite(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite DB: %w", err)
	}

	gormBackend := gormstorage.New(gormstorage.Dependencies{
		DB:            db,
		Logger:        logger,
		WriteInterval: writeInterval,
	})

	return &Backend{
		Backend: gormBackend,
		db:      db,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// InMemory reports whether the database lives only in memory.
func (b *Backend) InMemory() bool {
	return b.cfg.Path == ""
}

// Init initializes the embedded GORM backend and starts the dump goroutine.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}

	if b.InMemory() && b.cfg.DumpPath != "" && b.cfg.DumpInterval > 0 {
		b.stopChan = make(chan struct{})
		b.done = make(chan struct{})
		go b.dumpLoop()
	}
	return nil
}

// EndMap closes the map session and dumps the in-memory database.
func (b *Backend) EndMap() error {
	return errors.Join(b.Backend.EndMap(), b.dump())
}

// Close stops the dump goroutine, closes the embedded GORM backend and
// writes a final dump.
func (b *Backend) Close() error {
	if b.stopChan != nil {
		close(b.stopChan)
		<-b.done
		b.stopChan = nil
	}
	return errors.Join(b.Backend.Close(), b.dump())
}

// ExportedFilePath is the dump file, empty for file-backed databases.
func (b *Backend) ExportedFilePath() string {
	if !b.InMemory() {
		return ""
	}
	return b.cfg.DumpPath
}

func (b *Backend) dump() error {
	if !b.InMemory() || b.cfg.DumpPath == "" {
		return nil
	}
	start := time.Now()
	if err := database.DumpToDisk(b.db, b.cfg.DumpPath); err != nil {
		return err
	}
	b.logger.Debug("dumped sqlite to disk", "path", b.cfg.DumpPath, "duration", time.Since(start))
	return nil
}

// dumpLoop periodically dumps the in-memory SQLite database to disk via VACUUM INTO.
func (b *Backend) dumpLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.dump(); err != nil {
				b.logger.Error("error dumping sqlite to disk", "error", err)
			}
		}
	}
}
