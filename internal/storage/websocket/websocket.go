// Package websocket streams flight sessions to a remote server as they finish.
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/OCAP2/parachute/internal/config"
	"github.com/OCAP2/parachute/internal/geo"
	"github.com/OCAP2/parachute/pkg/core"
)

// Backend streams flight data over WebSocket. It implements storage.Backend
// but not storage.Exporter.
type Backend struct {
	conn      *connection
	cfg       config.WebSocketConfig
	sessionID atomic.Uint64
}

// New creates a new WebSocket storage backend.
func New(cfg config.WebSocketConfig, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		conn: newConnection(logger),
		cfg:  cfg,
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.conn.close()
}

// Connected reports whether the socket is currently up.
func (b *Backend) Connected() bool {
	return b.conn.connected()
}

// Dropped is the number of messages discarded because the socket was down or
// the send queue was full.
func (b *Backend) Dropped() uint64 {
	return b.conn.dropped.Load()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// StartMap sends start_map and waits for the server ack. The server does not
// assign IDs, so sessions are numbered locally.
func (b *Backend) StartMap(s *core.MapSession) error {
	if s.ID == 0 {
		s.ID = uint(b.sessionID.Add(1))
	} else {
		b.sessionID.Store(uint64(s.ID))
	}

	data, err := marshalEnvelope(TypeStartMap, StartMapPayload{Session: s})
	if err != nil {
		return err
	}

	b.conn.mu.Lock()
	b.conn.cachedStartMsg = data
	b.conn.mu.Unlock()

	return b.conn.sendAndWait(data, TypeStartMap, ackTimeout)
}

// EndMap sends end_map and waits for the server ack.
func (b *Backend) EndMap() error {
	data, err := marshalEnvelope(TypeEndMap, nil)
	if err != nil {
		return err
	}
	err = b.conn.sendAndWait(data, TypeEndMap, ackTimeout)

	// Clear cached state regardless of error.
	b.conn.mu.Lock()
	b.conn.cachedStartMsg = nil
	b.conn.mu.Unlock()

	return err
}

// RecordFlight sends the flight without waiting for an ack.
func (b *Backend) RecordFlight(f *core.FlightSession) error {
	payload := FlightPayload{
		SessionID: uint(b.sessionID.Load()),
		Flight:    f,
	}
	if len(f.Path) >= 2 {
		payload.PathWKT = geo.PathWKT(f.Path)
	}
	data, err := marshalEnvelope(TypeFlight, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}
