package storage

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/OCAP2/parachute/internal/config"
	"github.com/OCAP2/parachute/internal/storage/memory"
	"github.com/OCAP2/parachute/internal/storage/postgres"
	sqlitestorage "github.com/OCAP2/parachute/internal/storage/sqlite"
	"github.com/OCAP2/parachute/internal/storage/websocket"
)

// Storage type names accepted in storage.type.
const (
	TypeMemory    = "memory"
	TypeSQLite    = "sqlite"
	TypePostgres  = "postgres"
	TypeWebSocket = "websocket"
)

// NewBackend creates a storage backend based on configuration. The returned
// backend is not initialized.
func NewBackend(cfg config.StorageConfig, logger *slog.Logger, writeInterval time.Duration) (Backend, error) {
	switch cfg.Type {
	case TypeMemory, "":
		return memory.New(cfg.Memory), nil
	case TypeSQLite:
		b, err := sqlitestorage.New(cfg.SQLite, logger, writeInterval)
		if err != nil {
			return nil, err
		}
		return b, nil
	case TypePostgres:
		return postgres.New(cfg.Postgres, logger, writeInterval), nil
	case TypeWebSocket:
		if cfg.WebSocket.URL == "" {
			return nil, fmt.Errorf("%w: storage.websocket.url is required", config.ErrInvalidConfig)
		}
		return websocket.New(cfg.WebSocket, logger), nil
	default:
		return nil, fmt.Errorf("%w: unknown storage type %q", config.ErrInvalidConfig, cfg.Type)
	}
}
