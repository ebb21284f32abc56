// Package memory keeps flight sessions in memory and exports one JSON file per
// map session.
package memory

import (
	"os"
	"sync"

	"github.com/OCAP2/parachute/internal/config"
	"github.com/OCAP2/parachute/pkg/core"
)

// Backend stores flight sessions in memory and exports to JSON
type Backend struct {
	cfg config.MemoryConfig

	session *core.MapSession
	flights []core.FlightSession

	idCounter      uint
	lastExportPath string
	lastExportMeta core.UploadMetadata
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{cfg: cfg}
}

// Init creates the output directory when one is configured.
func (b *Backend) Init() error {
	if b.cfg.OutputDir == "" {
		return nil
	}
	return os.MkdirAll(b.cfg.OutputDir, 0755)
}

// Close exports a map session that was never ended.
func (b *Backend) Close() error {
	return b.EndMap()
}

// StartMap begins collecting flights for a new map session. A session that
// was still open is exported first.
func (b *Backend) StartMap(s *core.MapSession) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	err := b.finish()

	b.idCounter++
	s.ID = b.idCounter
	session := *s
	b.session = &session
	b.flights = make([]core.FlightSession, 0)
	return err
}

// EndMap exports and clears the current map session.
func (b *Backend) EndMap() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.finish()
}

// RecordFlight stores a copy of f. Flights recorded before any map session
// are kept under an implicit one.
func (b *Backend) RecordFlight(f *core.FlightSession) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		b.idCounter++
		b.session = &core.MapSession{ID: b.idCounter, MapName: f.MapName, StartedAt: f.StartedAt}
	}
	b.flights = append(b.flights, *f)
	return nil
}

// Session returns the open map session, nil when none is open.
func (b *Backend) Session() *core.MapSession {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.session == nil {
		return nil
	}
	s := *b.session
	return &s
}

// Flights returns a copy of the flights recorded in the open map session.
func (b *Backend) Flights() []core.FlightSession {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]core.FlightSession, len(b.flights))
	copy(out, b.flights)
	return out
}

// ExportedFilePath returns the path of the last export, empty before the
// first one.
func (b *Backend) ExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// ExportMetadata describes the last export. Tag is left for the uploader.
func (b *Backend) ExportMetadata() core.UploadMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportMeta
}

// finish exports the open session, if any, and clears it. Callers hold mu.
func (b *Backend) finish() error {
	if b.session == nil {
		return nil
	}
	var err error
	if b.cfg.OutputDir != "" {
		err = b.exportJSON()
	}
	b.session = nil
	b.flights = nil
	return err
}
