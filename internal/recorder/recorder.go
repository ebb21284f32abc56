// Package recorder turns mount attach/detach notifications into flight
// sessions and hands them to the configured store off the tick thread.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/OCAP2/parachute/internal/config"
	"github.com/OCAP2/parachute/internal/geo"
	"github.com/OCAP2/parachute/internal/match"
	"github.com/OCAP2/parachute/internal/queue"
	"github.com/OCAP2/parachute/internal/storage"
	"github.com/OCAP2/parachute/pkg/core"
	"github.com/OCAP2/parachute/pkg/host"
	"github.com/google/uuid"
)

// FlightWriter receives every finished flight after it was stored.
type FlightWriter interface {
	WriteFlight(f *core.FlightSession) error
}

// Uploader sends an exported map session to a flight archive.
type Uploader interface {
	Upload(path string, meta core.UploadMetadata) error
}

// Dependencies holds everything the recorder writes to.
type Dependencies struct {
	Store storage.Backend
	// Telemetry is optional.
	Telemetry FlightWriter
	// Uploader is optional and only used with stores that export files.
	Uploader Uploader
	Match    *match.Context
	Logger   *slog.Logger
	// Clock stamps session wall times. Defaults to time.Now.
	Clock func() time.Time
}

type openFlight struct {
	session   core.FlightSession
	startedAt time.Duration
	ticks     int
	last      core.PathSample
}

// Recorder implements simulation.Observer. Observer calls come from the tick
// thread; Flush and the map lifecycle may run on any goroutine.
type Recorder struct {
	cfg    config.RecorderConfig
	deps   Dependencies
	logger *slog.Logger

	mu   sync.Mutex
	open map[int]*openFlight

	finished *queue.Queue[*core.FlightSession]

	// storeMu serializes every call into the store.
	storeMu  sync.Mutex
	session  *core.MapSession
	uploaded string
	uploads  sync.WaitGroup

	stopChan chan struct{}
	done     chan struct{}
}

// New creates a recorder. Call Start before the first tick.
func New(cfg config.RecorderConfig, deps Dependencies) (*Recorder, error) {
	if deps.Store == nil {
		return nil, errors.New("recorder needs a store")
	}
	if cfg.SampleTicks < 1 {
		cfg.SampleTicks = 1
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Match == nil {
		deps.Match = match.NewContext()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Recorder{
		cfg:      cfg,
		deps:     deps,
		logger:   deps.Logger,
		open:     make(map[int]*openFlight),
		finished: queue.New[*core.FlightSession](),
	}, nil
}

// Start initializes the store, opens a map session for the current map and
// starts the flush worker.
func (r *Recorder) Start() error {
	if err := r.deps.Store.Init(); err != nil {
		return fmt.Errorf("failed to init flight store: %w", err)
	}
	info := r.deps.Match.Info()
	started := info.MapStarted
	if started.IsZero() {
		started = r.deps.Clock()
	}
	if err := r.StartMap(info.MapName, started); err != nil {
		return err
	}

	if r.cfg.FlushInterval > 0 {
		r.stopChan = make(chan struct{})
		r.done = make(chan struct{})
		go r.flushLoop()
	}
	return nil
}

// Stop stops the worker, writes everything still queued and closes the store.
// Flights the simulator has not ended by then are not recorded.
func (r *Recorder) Stop(ctx context.Context) error {
	if r.stopChan != nil {
		close(r.stopChan)
		<-r.done
		r.stopChan = nil
	}

	flushErr := r.Flush(ctx)

	r.storeMu.Lock()
	defer r.storeMu.Unlock()
	var endErr error
	if r.session != nil {
		endErr = r.deps.Store.EndMap()
		r.session = nil
	}
	closeErr := r.deps.Store.Close()
	r.uploadExport()
	r.uploads.Wait()
	return errors.Join(flushErr, endErr, closeErr)
}

// StartMap flushes the flights of the previous map and opens a new session.
func (r *Recorder) StartMap(name string, at time.Time) error {
	flushErr := r.Flush(context.Background())

	r.storeMu.Lock()
	defer r.storeMu.Unlock()

	var endErr error
	if r.session != nil {
		endErr = r.deps.Store.EndMap()
		r.uploadExport()
	}
	s := &core.MapSession{MapName: name, StartedAt: at}
	if err := r.deps.Store.StartMap(s); err != nil {
		r.session = nil
		return errors.Join(flushErr, endErr, fmt.Errorf("failed to start map session: %w", err))
	}
	r.session = s
	r.logger.Debug("recording map session", "map", name, "id", s.ID)
	return errors.Join(flushErr, endErr)
}

// uploadExport sends the file the store exported last unless it was already
// sent. Callers hold storeMu.
func (r *Recorder) uploadExport() {
	up, ok := r.deps.Store.(storage.Uploadable)
	if !ok || r.deps.Uploader == nil {
		return
	}
	path := up.ExportedFilePath()
	if path == "" || path == r.uploaded {
		return
	}
	r.uploaded = path
	meta := up.ExportMetadata()

	r.uploads.Add(1)
	go func() {
		defer r.uploads.Done()
		if err := r.deps.Uploader.Upload(path, meta); err != nil {
			r.logger.Error("failed to upload flights", "path", path, "error", err)
			return
		}
		r.logger.Info("uploaded flights", "path", path, "map", meta.MapName, "flights", meta.Flights)
	}()
}

// Session returns the open map session, nil before Start.
func (r *Recorder) Session() *core.MapSession {
	r.storeMu.Lock()
	defer r.storeMu.Unlock()
	if r.session == nil {
		return nil
	}
	s := *r.session
	return &s
}

// FlightStarted opens a session for the player.
func (r *Recorder) FlightStarted(p host.Player, mountType string, pos core.Vector, now time.Duration) {
	info := r.deps.Match.Info()
	first := core.PathSample{Position: pos}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.open[p.Slot()]; ok {
		r.finishLocked(prev, core.DetachInvalid, now)
	}
	r.open[p.Slot()] = &openFlight{
		session: core.FlightSession{
			ID:         uuid.NewString(),
			MapName:    info.MapName,
			Round:      info.Round,
			Slot:       p.Slot(),
			PlayerName: p.Name(),
			Team:       p.Team(),
			MountType:  mountType,
			StartedAt:  r.deps.Clock(),
			Path:       []core.PathSample{first},
		},
		startedAt: now,
		last:      first,
	}
}

// FlightSampled tracks the top speed and keeps every SampleTicks-th position.
func (r *Recorder) FlightSampled(slot int, pos core.Vector, vel core.Vector, now time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	of, ok := r.open[slot]
	if !ok {
		return
	}
	speed := vel.Len()
	if speed > of.session.MaxSpeed {
		of.session.MaxSpeed = speed
	}
	of.last = core.PathSample{Offset: now - of.startedAt, Position: pos, Speed: speed}
	of.ticks++
	if of.ticks%r.cfg.SampleTicks == 0 {
		of.session.Path = append(of.session.Path, of.last)
	}
}

// FlightEnded closes the session and queues it for the store.
func (r *Recorder) FlightEnded(slot int, reason core.DetachReason, now time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	of, ok := r.open[slot]
	if !ok {
		return
	}
	r.finishLocked(of, reason, now)
}

func (r *Recorder) finishLocked(of *openFlight, reason core.DetachReason, now time.Duration) {
	delete(r.open, of.session.Slot)

	s := of.session
	if tail := s.Path[len(s.Path)-1]; tail.Offset != of.last.Offset {
		s.Path = append(s.Path, of.last)
	}
	s.Airtime = now - of.startedAt
	s.EndedAt = s.StartedAt.Add(s.Airtime)
	s.Reason = reason
	s.Distance = geo.GroundDistance(s.Path)
	s.Drop = geo.Drop(s.Path)

	r.finished.Push(&s)
}

// InFlight is the number of sessions not yet ended.
func (r *Recorder) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.open)
}

// QueueLength is the number of finished sessions not yet handed to the store.
func (r *Recorder) QueueLength() int {
	return r.finished.Len()
}

// Flush hands every finished session to the store and telemetry. Sessions the
// store rejects stay queued for the next flush.
func (r *Recorder) Flush(ctx context.Context) error {
	r.storeMu.Lock()
	defer r.storeMu.Unlock()

	batch := r.finished.GetAndEmpty()
	for i, f := range batch {
		if err := ctx.Err(); err != nil {
			r.finished.Requeue(batch[i:]...)
			return err
		}
		if err := r.deps.Store.RecordFlight(f); err != nil {
			r.finished.Requeue(batch[i:]...)
			return fmt.Errorf("failed to store flight %s: %w", f.ID, err)
		}
		if r.deps.Telemetry != nil {
			if err := r.deps.Telemetry.WriteFlight(f); err != nil {
				r.logger.Warn("failed to write flight telemetry", "flight", f.ID, "error", err)
			}
		}
	}

	if fl, ok := r.deps.Store.(storage.Flusher); ok {
		if err := fl.Flush(); err != nil {
			return fmt.Errorf("failed to flush flight store: %w", err)
		}
	}
	if len(batch) > 0 {
		r.logger.Debug("flights recorded", "count", len(batch))
	}
	return nil
}

func (r *Recorder) flushLoop() {
	defer close(r.done)

	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			if err := r.Flush(context.Background()); err != nil {
				r.logger.Error("flight flush failed", "error", err)
			}
		}
	}
}
