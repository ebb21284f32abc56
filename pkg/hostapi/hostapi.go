// Package hostapi is the string-command bridge the host plugin calls into.
// Every call is routed through the dispatcher and answered with a reply the
// plugin can parse as an array: ["ok", result] or ["error", message].
package hostapi

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/OCAP2/parachute/internal/dispatcher"
)

// Built-in commands answered without a registered handler.
const (
	CmdVersion   = ":VERSION:"
	CmdTimestamp = ":TIMESTAMP:"
)

// Bridge answers host calls.
type Bridge struct {
	mu         sync.RWMutex
	version    string
	dispatcher *dispatcher.Dispatcher
	now        func() time.Time
}

// New creates a bridge. A nil dispatcher answers only the built-ins.
func New(version string, d *dispatcher.Dispatcher) *Bridge {
	if version == "" {
		version = "No version set"
	}
	return &Bridge{version: version, dispatcher: d, now: time.Now}
}

// SetDispatcher replaces the dispatcher, for example after a reload.
func (b *Bridge) SetDispatcher(d *dispatcher.Dispatcher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dispatcher = d
}

// Version is the reply to the plugin's version probe.
func (b *Bridge) Version() string {
	return b.version
}

// Call dispatches command with args and formats the reply.
func (b *Bridge) Call(command string, args []string) string {
	switch command {
	case CmdVersion:
		return FormatResponse(b.version, nil)
	case CmdTimestamp:
		return FormatResponse(strconv.FormatInt(b.now().UTC().UnixNano(), 10), nil)
	}

	b.mu.RLock()
	d := b.dispatcher
	b.mu.RUnlock()

	if d == nil || !d.HasHandler(command) {
		return FormatResponse(nil, fmt.Errorf("%w: %s", dispatcher.ErrUnknownCommand, command))
	}
	result, err := d.Dispatch(dispatcher.Event{
		Command:   command,
		Args:      args,
		Timestamp: b.now(),
	})
	return FormatResponse(result, err)
}

// CallRaw handles the single-string form "command|arg|arg". When the full
// input is itself a registered command it is dispatched unsplit.
func (b *Bridge) CallRaw(input string) string {
	b.mu.RLock()
	d := b.dispatcher
	b.mu.RUnlock()

	if d != nil && d.HasHandler(input) {
		return b.Call(input, nil)
	}
	parts := strings.Split(input, "|")
	return b.Call(parts[0], parts[1:])
}

// FormatResponse renders a dispatcher result. Results are JSON-encoded; a
// result that cannot be encoded is reported as an error.
func FormatResponse(result any, err error) string {
	if err != nil {
		return encode("error", err.Error())
	}
	if result == nil {
		return `["ok"]`
	}
	raw, mErr := json.Marshal(result)
	if mErr != nil {
		return encode("error", fmt.Sprintf("failed to encode result: %v", mErr))
	}
	return `["ok", ` + string(raw) + `]`
}

func encode(status, msg string) string {
	raw, _ := json.Marshal(msg)
	return `["` + status + `", ` + string(raw) + `]`
}
