// Package storage defines the flight session stores.
package storage

import "github.com/OCAP2/parachute/pkg/core"

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Map management. StartMap assigns the session ID when the store has one.
	StartMap(s *core.MapSession) error
	EndMap() error

	RecordFlight(f *core.FlightSession) error
}

// Exporter is an optional interface for backends that write a file when a map
// ends.
type Exporter interface {
	ExportedFilePath() string
}

// Flusher is an optional interface for backends that buffer writes.
type Flusher interface {
	Flush() error
}

// Uploadable is an optional interface for backends whose exports can be sent
// to a flight archive.
type Uploadable interface {
	Exporter
	ExportMetadata() core.UploadMetadata
}
