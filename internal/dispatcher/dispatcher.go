// Package dispatcher routes game events and admin commands from the host
// plugin to registered handlers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrUnknownCommand is returned when no handler is registered for a command.
var ErrUnknownCommand = errors.New("unknown command")

// ErrQueueFull is returned when a buffered handler drops an event.
var ErrQueueFull = errors.New("queue full")

// Event is one call from the host plugin.
type Event struct {
	Command   string
	Args      []string
	Timestamp time.Time
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*options)

type options struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered makes the handler async with a queue of the given size.
func Buffered(size int) Option {
	return func(o *options) {
		o.bufferSize = size
	}
}

// Blocking makes a buffered handler block when the queue is full instead of dropping.
func Blocking() Option {
	return func(o *options) {
		o.blocking = true
	}
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(o *options) {
		o.logged = true
	}
}

type route struct {
	handler HandlerFunc
	queue   *queue
}

// queue feeds a buffered handler. mu orders sends against close so an event
// racing Unregister is refused instead of sent on a closed channel.
type queue struct {
	mu     sync.RWMutex
	closed bool
	events chan Event
	done   chan struct{}
}

// Dispatcher routes events to registered handlers. It is safe for concurrent
// use. A buffered event that loses a race with Unregister or a replacing
// Register fails with ErrUnknownCommand.
type Dispatcher struct {
	logger Logger

	mu     sync.RWMutex
	routes map[string]*route

	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter
	failed    metric.Int64Counter
}

// New creates a Dispatcher. Metrics go to the global OTel meter and are
// no-ops unless a provider is installed.
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		logger: logger,
		routes: make(map[string]*route),
	}

	m := meter()
	var err error

	d.queueSize, err = m.Int64ObservableGauge(
		"parachute.dispatcher.queue.size",
		metric.WithDescription("Events waiting in a buffered handler queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}
	_, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		d.mu.RLock()
		defer d.mu.RUnlock()
		for cmd, r := range d.routes {
			if r.queue == nil {
				continue
			}
			o.ObserveInt64(d.queueSize, int64(len(r.queue.events)),
				metric.WithAttributes(attribute.String("command", cmd)))
		}
		return nil
	}, d.queueSize)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	if d.processed, err = m.Int64Counter(
		"parachute.dispatcher.events.processed",
		metric.WithDescription("Events handled"),
	); err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}
	if d.dropped, err = m.Int64Counter(
		"parachute.dispatcher.events.dropped",
		metric.WithDescription("Events dropped due to a full queue"),
	); err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}
	if d.failed, err = m.Int64Counter(
		"parachute.dispatcher.events.failed",
		metric.WithDescription("Events whose handler returned an error"),
	); err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}

	return d, nil
}

// Register adds a handler for command, replacing any previous one.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	handler := h
	if o.logged {
		handler = d.withLogging(command, handler)
	}

	r := &route{}
	if o.bufferSize > 0 {
		r.queue = d.startQueue(command, o.bufferSize, handler)
		handler = d.enqueue(command, r.queue, o.blocking)
	}
	r.handler = handler

	d.mu.Lock()
	old := d.routes[command]
	d.routes[command] = r
	d.mu.Unlock()

	if old != nil {
		old.stop()
	}
}

// Unregister removes the handler for command. Buffered handlers finish the
// events already queued before Unregister returns.
func (d *Dispatcher) Unregister(command string) bool {
	d.mu.Lock()
	r, ok := d.routes[command]
	delete(d.routes, command)
	d.mu.Unlock()

	if ok {
		r.stop()
	}
	return ok
}

// Close unregisters every handler.
func (d *Dispatcher) Close() {
	for _, cmd := range d.Commands() {
		d.Unregister(cmd)
	}
}

// Dispatch routes an event to its registered handler.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	d.mu.RLock()
	r, ok := d.routes[e.Command]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, e.Command)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return r.handler(e)
}

// HasHandler returns true if a handler is registered for the command.
func (d *Dispatcher) HasHandler(command string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.routes[command]
	return ok
}

// Commands returns the registered commands in sorted order.
func (d *Dispatcher) Commands() []string {
	d.mu.RLock()
	cmds := make([]string, 0, len(d.routes))
	for cmd := range d.routes {
		cmds = append(cmds, cmd)
	}
	d.mu.RUnlock()
	sort.Strings(cmds)
	return cmds
}

func (d *Dispatcher) startQueue(command string, size int, h HandlerFunc) *queue {
	q := &queue{
		events: make(chan Event, size),
		done:   make(chan struct{}),
	}
	cmdAttr := metric.WithAttributes(attribute.String("command", command))

	go func() {
		defer close(q.done)
		for e := range q.events {
			if _, err := h(e); err != nil {
				d.failed.Add(context.Background(), 1, cmdAttr)
				d.logger.Error("buffered event failed", "command", command, "error", err)
			}
			d.processed.Add(context.Background(), 1, cmdAttr)
		}
	}()
	return q
}

func (d *Dispatcher) enqueue(command string, q *queue, blocking bool) HandlerFunc {
	cmdAttr := metric.WithAttributes(attribute.String("command", command))

	return func(e Event) (any, error) {
		q.mu.RLock()
		defer q.mu.RUnlock()
		if q.closed {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, command)
		}
		if blocking {
			q.events <- e
			return "queued", nil
		}
		select {
		case q.events <- e:
			return "queued", nil
		default:
			d.dropped.Add(context.Background(), 1, cmdAttr)
			return nil, fmt.Errorf("%w: %s", ErrQueueFull, command)
		}
	}
}

func (d *Dispatcher) withLogging(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling event", "command", command, "args", len(e.Args))

		result, err := h(e)
		if err != nil {
			d.logger.Error("event failed", "command", command, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "command", command, "duration", time.Since(start))
		}
		return result, err
	}
}

func (r *route) stop() {
	if r.queue == nil {
		return
	}
	q := r.queue
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.events)
	}
	q.mu.Unlock()
	<-q.done
}
