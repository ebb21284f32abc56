package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"
)

const (
	sendChSize   = 1024
	ackChSize    = 16
	maxReconnect = 10
	maxBackoff   = 30 * time.Second
	writeWait    = 10 * time.Second
	ackTimeout   = 10 * time.Second
	dialTimeout  = 5 * time.Second
)

// connection owns one WebSocket and the single goroutine allowed to write it.
type connection struct {
	mu     sync.Mutex
	conn   *ws.Conn
	closed bool

	sendCh chan []byte
	ackCh  chan AckMessage
	done   chan struct{}

	wsURL  string
	secret string
	dialer *ws.Dialer

	// start_map of the open session, replayed after a reconnect.
	cachedStartMsg []byte

	dropped atomic.Uint64
	logger  *slog.Logger
}

func newConnection(logger *slog.Logger) *connection {
	return &connection{
		sendCh: make(chan []byte, sendChSize),
		ackCh:  make(chan AckMessage, ackChSize),
		done:   make(chan struct{}),
		dialer: &ws.Dialer{
			Proxy:            ws.DefaultDialer.Proxy,
			HandshakeTimeout: dialTimeout,
		},
		logger: logger,
	}
}

// dial connects and starts the read and write loops.
func (c *connection) dial(rawURL, secret string) error {
	c.wsURL = rawURL
	c.secret = secret

	conn, err := c.dialOnce()
	if err != nil {
		return err
	}
	c.setConn(conn)

	go c.writeLoop()
	go c.readLoop()
	return nil
}

func (c *connection) dialOnce() (*ws.Conn, error) {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	if c.secret != "" {
		q := u.Query()
		q.Set("secret", c.secret)
		u.RawQuery = q.Encode()
	}

	conn, _, err := c.dialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

func (c *connection) setConn(conn *ws.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *connection) current() *ws.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// connected reports whether a socket is currently up.
func (c *connection) connected() bool {
	return c.current() != nil
}

func (c *connection) write(conn *ws.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(ws.TextMessage, data)
}

// writeLoop drains sendCh. It exits on shutdown or on the first write error,
// handing over to reconnect.
func (c *connection) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.sendCh:
			conn := c.current()
			if conn == nil {
				c.dropped.Add(1)
				continue
			}
			if err := c.write(conn, data); err != nil {
				c.logger.Warn("websocket write error", "error", err)
				go c.reconnect()
				return
			}
		}
	}
}

// readLoop routes acks to ackCh and ignores anything else.
func (c *connection) readLoop() {
	for {
		conn := c.current()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.logger.Warn("websocket read error", "error", err)
			go c.reconnect()
			return
		}

		var ack AckMessage
		if err := json.Unmarshal(message, &ack); err != nil || ack.Type != "ack" {
			c.logger.Debug("ignoring server message", "raw", string(message))
			continue
		}
		select {
		case c.ackCh <- ack:
		default:
			c.logger.Debug("ack channel full, dropping", "for", ack.For)
		}
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// reconnect re-dials with exponential backoff. On success it replays the
// cached start_map message and restarts the read/write loops. Both loops may
// call it; the first one to take the socket does the work.
func (c *connection) reconnect() {
	c.mu.Lock()
	if c.closed || c.conn == nil {
		c.mu.Unlock()
		return
	}
	_ = c.conn.Close()
	c.conn = nil
	c.mu.Unlock()

	backoff := time.Second
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		c.logger.Info("reconnecting to websocket", "attempt", attempt, "backoff", backoff)
		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}

		conn, err := c.dialOnce()
		if err != nil {
			c.logger.Warn("reconnect dial failed", "attempt", attempt, "error", err)
			backoff = nextBackoff(backoff)
			continue
		}

		c.mu.Lock()
		cached := c.cachedStartMsg
		c.mu.Unlock()

		if cached != nil {
			if err := c.write(conn, cached); err != nil {
				c.logger.Warn("failed to replay start_map after reconnect", "error", err)
				_ = conn.Close()
				backoff = nextBackoff(backoff)
				continue
			}
		}

		c.setConn(conn)
		c.logger.Info("websocket reconnected", "attempt", attempt)
		go c.writeLoop()
		go c.readLoop()
		return
	}

	c.logger.Error("websocket reconnect failed after max attempts", "maxAttempts", maxReconnect)
}

// send queues data for the write loop. It never blocks; a full queue drops.
func (c *connection) send(data []byte) {
	select {
	case c.sendCh <- data:
	default:
		c.dropped.Add(1)
		c.logger.Warn("websocket send channel full, dropping message")
	}
}

// sendAndWait sends data and blocks until the matching ack arrives or the
// timeout expires.
func (c *connection) sendAndWait(data []byte, ackFor string, timeout time.Duration) error {
	c.send(data)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ack := <-c.ackCh:
			if ack.For == ackFor {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("timeout waiting for ack of %q", ackFor)
		case <-c.done:
			return fmt.Errorf("connection closed while waiting for ack of %q", ackFor)
		}
	}
}

// close sends a close frame and stops every goroutine. Safe to call twice.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.WriteMessage(
		ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
	)
	return conn.Close()
}
