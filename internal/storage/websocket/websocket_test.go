package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/parachute/internal/config"
	"github.com/OCAP2/parachute/pkg/core"
)

// testServer creates an httptest server that upgrades to WebSocket,
// records received messages, and acks start_map/end_map.
func testServer(t *testing.T) (*httptest.Server, *messageLog) {
	t.Helper()
	ml := &messageLog{}

	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ml.setSecret(r.URL.Query().Get("secret"))
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer c.Close()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}

			var env Envelope
			if err := json.Unmarshal(msg, &env); err != nil {
				continue
			}
			ml.add(env)

			if env.Type == TypeStartMap || env.Type == TypeEndMap {
				data, _ := json.Marshal(AckMessage{Type: "ack", For: env.Type})
				if err := c.WriteMessage(ws.TextMessage, data); err != nil {
					return
				}
			}
		}
	}))

	return srv, ml
}

type messageLog struct {
	mu       sync.Mutex
	secret   string
	messages []Envelope
}

func (m *messageLog) setSecret(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secret = s
}

func (m *messageLog) add(env Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, env)
}

func (m *messageLog) all() []Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]Envelope, len(m.messages))
	copy(cp, m.messages)
	return cp
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestStartAndEndMap(t *testing.T) {
	srv, ml := testServer(t)
	defer srv.Close()

	b := New(config.WebSocketConfig{URL: wsURL(srv), Secret: "test"}, nil)
	require.NoError(t, b.Init())
	defer b.Close()
	assert.True(t, b.Connected())

	s := &core.MapSession{MapName: "de_mirage", StartedAt: time.Now()}
	require.NoError(t, b.StartMap(s))
	assert.Equal(t, uint(1), s.ID)
	require.NoError(t, b.EndMap())

	msgs := ml.all()
	require.Len(t, msgs, 2)
	assert.Equal(t, TypeStartMap, msgs[0].Type)
	assert.Equal(t, TypeEndMap, msgs[1].Type)

	var payload StartMapPayload
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &payload))
	assert.Equal(t, "de_mirage", payload.Session.MapName)

	ml.mu.Lock()
	assert.Equal(t, "test", ml.secret)
	ml.mu.Unlock()
}

func TestRecordFlight(t *testing.T) {
	srv, ml := testServer(t)
	defer srv.Close()

	b := New(config.WebSocketConfig{URL: wsURL(srv)}, nil)
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartMap(&core.MapSession{ID: 7, MapName: "de_overpass"}))
	require.NoError(t, b.RecordFlight(&core.FlightSession{
		ID:        "f-1",
		MountType: "parachute",
		Path: []core.PathSample{
			{Position: core.Vector{0, 0, 100}},
			{Position: core.Vector{5, 5, 50}},
		},
	}))
	// end_map is acked after the flight, so the flight has arrived by then
	require.NoError(t, b.EndMap())

	var flight *FlightPayload
	for _, m := range ml.all() {
		if m.Type == TypeFlight {
			flight = &FlightPayload{}
			require.NoError(t, json.Unmarshal(m.Payload, flight))
		}
	}
	require.NotNil(t, flight)
	assert.Equal(t, uint(7), flight.SessionID)
	assert.Equal(t, "f-1", flight.Flight.ID)
	assert.Contains(t, flight.PathWKT, "LINESTRING Z")
}

func TestInit_DialError(t *testing.T) {
	b := New(config.WebSocketConfig{URL: "ws://127.0.0.1:1/stream"}, nil)
	err := b.Init()
	assert.ErrorContains(t, err, "websocket dial failed")
}

func TestInit_BadURL(t *testing.T) {
	b := New(config.WebSocketConfig{URL: "://nope"}, nil)
	err := b.Init()
	assert.ErrorContains(t, err, "invalid websocket URL")
}

func TestEndMap_TimesOutAfterClose(t *testing.T) {
	srv, _ := testServer(t)
	defer srv.Close()

	b := New(config.WebSocketConfig{URL: wsURL(srv)}, nil)
	require.NoError(t, b.Init())
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	err := b.EndMap()
	assert.ErrorContains(t, err, "connection closed")
}

func TestNextBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Second, nextBackoff(time.Second))
	assert.Equal(t, maxBackoff, nextBackoff(20*time.Second))
}
