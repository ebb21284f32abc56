// Package postgres implements the storage.Backend interface on PostgreSQL
// through the queued GORM backend.
package postgres

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/OCAP2/parachute/internal/config"
	"github.com/OCAP2/parachute/internal/database"
	gormstorage "github.com/OCAP2/parachute/internal/storage/gorm"

	"gorm.io/gorm"
)

// maxOpenConns caps the pool; only the writer goroutine and map lifecycle
// calls use it.
const maxOpenConns = 10

// Backend is the GORM backend connected to Postgres on Init.
type Backend struct {
	*gormstorage.Backend
	cfg config.PostgresConfig
}

// New creates a Postgres backend. Nothing is dialed until Init.
func New(cfg config.PostgresConfig, logger *slog.Logger, writeInterval time.Duration) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Backend{cfg: cfg}
	b.Backend = gormstorage.New(gormstorage.Dependencies{
		Open: func() (*gorm.DB, error) {
			logger.Debug("connecting to postgres", "host", cfg.Host, "port", cfg.Port, "database", cfg.Database)
			return b.open()
		},
		Logger:        logger,
		WriteInterval: writeInterval,
	})
	return b
}

func (b *Backend) open() (*gorm.DB, error) {
	db, err := database.OpenPostgres(b.cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres at %s:%s: %w", b.cfg.Host, b.cfg.Port, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql interface: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	return db, nil
}
