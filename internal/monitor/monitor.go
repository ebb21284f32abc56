// Package monitor periodically writes a status file and records recorder
// performance snapshots.
package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/OCAP2/parachute/internal/config"
	"github.com/OCAP2/parachute/internal/match"
	"github.com/OCAP2/parachute/internal/model"
	"github.com/OCAP2/parachute/internal/simulation"
	"github.com/OCAP2/parachute/pkg/core"
)

// StatsSource publishes simulator state.
type StatsSource interface {
	Stats() simulation.Stats
}

// RecorderStatus reports the flight recorder pipeline.
type RecorderStatus interface {
	Session() *core.MapSession
	InFlight() int
	QueueLength() int
}

// PerformanceStore persists performance snapshots.
type PerformanceStore interface {
	RecordPerformance(p model.RecorderPerformance) error
	QueueLength() int
	LastWriteDuration() time.Duration
}

// PerformanceWriter sends performance snapshots to a time series backend.
type PerformanceWriter interface {
	WritePerformance(tags map[string]string, fields map[string]any, at time.Time) error
}

// Dependencies holds all dependencies for the monitor service. Everything
// except Simulator is optional.
type Dependencies struct {
	Simulator StatsSource
	Match     *match.Context
	Recorder  RecorderStatus
	Store     PerformanceStore
	Telemetry PerformanceWriter
	Logger    *slog.Logger
	Clock     func() time.Time
}

// Status is one snapshot of the program state.
type Status struct {
	Time              time.Time `json:"time"`
	Map               string    `json:"map"`
	Round             int       `json:"round"`
	Phase             string    `json:"phase"`
	Tracked           int       `json:"tracked"`
	Mounted           int       `json:"mounted"`
	TickTimeMs        float64   `json:"tickTimeMs"`
	InFlight          int       `json:"inFlight"`
	RecorderQueue     int       `json:"recorderQueue"`
	StoreQueue        int       `json:"storeQueue"`
	LastWriteDuration float64   `json:"lastWriteDurationMs"`
	MapSessionID      uint      `json:"mapSessionId"`
}

// Service manages status monitoring
type Service struct {
	cfg       config.MonitorConfig
	deps      Dependencies
	logger    *slog.Logger
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(cfg config.MonitorConfig, deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Match == nil {
		deps.Match = match.NewContext()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Service{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger,
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetStatus collects the current program status.
func (s *Service) GetStatus() Status {
	info := s.deps.Match.Info()
	st := Status{
		Time:  s.deps.Clock(),
		Map:   info.MapName,
		Round: info.Round,
	}
	if s.deps.Simulator != nil {
		sim := s.deps.Simulator.Stats()
		st.Phase = sim.Phase
		st.Tracked = sim.Tracked
		st.Mounted = sim.Mounted
		st.TickTimeMs = float64(sim.TickTime.Microseconds()) / 1000
	}
	if s.deps.Recorder != nil {
		st.InFlight = s.deps.Recorder.InFlight()
		st.RecorderQueue = s.deps.Recorder.QueueLength()
		if session := s.deps.Recorder.Session(); session != nil {
			st.MapSessionID = session.ID
		}
	}
	if s.deps.Store != nil {
		st.StoreQueue = s.deps.Store.QueueLength()
		st.LastWriteDuration = float64(s.deps.Store.LastWriteDuration().Microseconds()) / 1000
	}
	return st
}

// Performance converts a status into the stored snapshot row.
func Performance(st Status) model.RecorderPerformance {
	return model.RecorderPerformance{
		Time:                st.Time,
		MapSessionID:        st.MapSessionID,
		Phase:               st.Phase,
		Tracked:             clampUint16(st.Tracked),
		Mounted:             clampUint16(st.Mounted),
		QueueLength:         clampUint16(st.RecorderQueue + st.StoreQueue),
		LastWriteDurationMs: float32(st.LastWriteDuration),
	}
}

func clampUint16(n int) uint16 {
	switch {
	case n < 0:
		return 0
	case n > 0xFFFF:
		return 0xFFFF
	}
	return uint16(n)
}

// WriteStatusFile replaces path with the indented JSON status.
func WriteStatusFile(path string, st Status) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write status file: %w", err)
	}
	return os.Rename(tmp, path)
}

// Sample takes one snapshot and sends it everywhere it is wanted.
func (s *Service) Sample() Status {
	st := s.GetStatus()

	if s.cfg.Path != "" {
		if err := WriteStatusFile(s.cfg.Path, st); err != nil {
			s.logger.Error("Error writing status file", "error", err)
		}
	}

	// nothing to file performance rows under until a map session is open
	if st.MapSessionID == 0 {
		return st
	}
	if s.deps.Store != nil {
		if err := s.deps.Store.RecordPerformance(Performance(st)); err != nil {
			s.logger.Error("Error queueing performance snapshot", "error", err)
		}
	}
	if s.deps.Telemetry != nil {
		err := s.deps.Telemetry.WritePerformance(
			map[string]string{"map": st.Map, "phase": st.Phase},
			map[string]any{
				"tracked":        st.Tracked,
				"mounted":        st.Mounted,
				"in_flight":      st.InFlight,
				"recorder_queue": st.RecorderQueue,
				"store_queue":    st.StoreQueue,
				"tick_ms":        st.TickTimeMs,
				"last_write_ms":  st.LastWriteDuration,
			},
			st.Time,
		)
		if err != nil {
			s.logger.Error("Error writing performance telemetry", "error", err)
		}
	}
	return st
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	if s.cfg.Interval <= 0 {
		return fmt.Errorf("monitor interval must be positive, got %s", s.cfg.Interval)
	}
	if s.cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(s.cfg.Path), 0755); err != nil {
			return fmt.Errorf("failed to create status directory: %w", err)
		}
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(s.stopChan, s.done)
	s.logger.Debug("Starting status monitor", "path", s.cfg.Path, "interval", s.cfg.Interval)
	return nil
}

func (s *Service) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Sample()
		}
	}
}

// Stop stops the status monitor and waits for the last sample to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()

	<-done
}
