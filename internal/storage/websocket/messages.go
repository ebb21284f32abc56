package websocket

import (
	"encoding/json"

	"github.com/OCAP2/parachute/pkg/core"
)

// Message types of the flight stream.
const (
	TypeStartMap = "start_map"
	TypeEndMap   = "end_map"
	TypeFlight   = "flight"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartMapPayload opens a map session on the server.
type StartMapPayload struct {
	Session *core.MapSession `json:"session"`
}

// FlightPayload carries one finished flight and its path as WKT.
type FlightPayload struct {
	SessionID uint                `json:"sessionId"`
	Flight    *core.FlightSession `json:"flight"`
	PathWKT   string              `json:"pathWkt,omitempty"`
}
