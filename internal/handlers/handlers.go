// Package handlers binds host plugin commands to the simulator.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/OCAP2/parachute/internal/config"
	"github.com/OCAP2/parachute/internal/dispatcher"
	"github.com/OCAP2/parachute/internal/match"
	"github.com/OCAP2/parachute/internal/parser"
	"github.com/OCAP2/parachute/internal/simulation"
	"github.com/OCAP2/parachute/pkg/core"
)

// Command names sent by the host plugin.
const (
	CmdPlayerConnect    = ":PLAYER:CONNECT:"
	CmdPlayerDisconnect = ":PLAYER:DISCONNECT:"
	CmdPlayerDeath      = ":PLAYER:DEATH:"
	CmdRoundStart       = ":ROUND:START:"
	CmdFreezeEnd        = ":ROUND:FREEZE_END:"
	CmdRoundEnd         = ":ROUND:END:"
	CmdMapStart         = ":MAP:START:"
	CmdPrecache         = ":PRECACHE:"
	CmdAdminEnable      = ":ADMIN:ENABLE:"
	CmdAdminDisable     = ":ADMIN:DISABLE:"
	CmdAdminReload      = ":ADMIN:RELOAD:"
	CmdAdminDetach      = ":ADMIN:DETACH:"
	CmdHotLoad          = ":HOTLOAD:"
	CmdStatus           = ":STATUS:"
	CmdLog              = ":LOG:"
	CmdRecorderFlush    = ":RECORDER:FLUSH:"
	CmdMetric           = ":METRIC:"
)

// Flusher persists buffered flight sessions.
type Flusher interface {
	Flush(ctx context.Context) error
}

// MapStarter is implemented by recorders that key flights by map session.
type MapStarter interface {
	StartMap(name string, at time.Time) error
}

// MetricWriter accepts host-submitted metrics.
type MetricWriter interface {
	WriteMetric(args []string) error
}

// Dependencies holds everything the handlers act on.
type Dependencies struct {
	Simulator *simulation.Simulator
	Match     *match.Context
	Parser    *parser.Parser
	Logger    *slog.Logger
	// WriteLog receives :LOG: lines. Nil drops them.
	WriteLog func(functionName, data, level string)
	// Recorder is optional; without it :RECORDER:FLUSH: is not registered.
	// A recorder that also implements MapStarter is told about map changes.
	Recorder Flusher
	// Metrics is optional; without it :METRIC: is not registered.
	Metrics MetricWriter
}

// Status is the reply to :STATUS:.
type Status struct {
	Enabled bool   `json:"enabled"`
	Phase   string `json:"phase"`
	Map     string `json:"map"`
	Round   int    `json:"round"`
	Tracked int    `json:"tracked"`
	Mounted int    `json:"mounted"`
}

// Service provides handler methods for host commands.
type Service struct {
	deps       Dependencies
	logger     *slog.Logger
	registered []string
}

// NewService creates a new handler service
func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Match == nil {
		deps.Match = match.NewContext()
	}
	if deps.Parser == nil {
		deps.Parser = parser.NewParser(logger)
	}
	return &Service{deps: deps, logger: logger}
}

// Match returns the match context the service updates.
func (s *Service) Match() *match.Context {
	return s.deps.Match
}

// Register subscribes every handler on d. Lifecycle events run synchronously
// so they are applied before the next tick.
func (s *Service) Register(d *dispatcher.Dispatcher) {
	s.register(d, CmdPlayerConnect, s.handlePlayerConnect, dispatcher.Logged())
	s.register(d, CmdPlayerDisconnect, s.handlePlayerDisconnect, dispatcher.Logged())
	s.register(d, CmdPlayerDeath, s.handlePlayerDeath, dispatcher.Logged())

	s.register(d, CmdRoundStart, s.handleRoundStart, dispatcher.Logged())
	s.register(d, CmdFreezeEnd, s.handleFreezeEnd, dispatcher.Logged())
	s.register(d, CmdRoundEnd, s.handleRoundEnd, dispatcher.Logged())
	s.register(d, CmdMapStart, s.handleMapStart, dispatcher.Logged())
	s.register(d, CmdPrecache, s.handlePrecache)

	s.register(d, CmdAdminEnable, s.handleAdminEnable, dispatcher.Logged())
	s.register(d, CmdAdminDisable, s.handleAdminDisable, dispatcher.Logged())
	s.register(d, CmdAdminReload, s.handleAdminReload, dispatcher.Logged())
	s.register(d, CmdAdminDetach, s.handleAdminDetach, dispatcher.Logged())
	s.register(d, CmdHotLoad, s.handleHotLoad, dispatcher.Logged())
	s.register(d, CmdStatus, s.handleStatus)
	s.register(d, CmdLog, s.handleLog)

	if s.deps.Recorder != nil {
		s.register(d, CmdRecorderFlush, s.handleRecorderFlush, dispatcher.Buffered(8), dispatcher.Logged())
	}
	if s.deps.Metrics != nil {
		s.register(d, CmdMetric, s.handleMetric, dispatcher.Buffered(256))
	}
}

// Unregister removes every handler Register added.
func (s *Service) Unregister(d *dispatcher.Dispatcher) {
	for _, cmd := range s.registered {
		d.Unregister(cmd)
	}
	s.registered = nil
}

func (s *Service) register(d *dispatcher.Dispatcher, cmd string, h dispatcher.HandlerFunc, opts ...dispatcher.Option) {
	d.Register(cmd, h, opts...)
	s.registered = append(s.registered, cmd)
}

func (s *Service) handlePlayerConnect(e dispatcher.Event) (any, error) {
	slot, err := s.deps.Parser.ParseSlot(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connect: %w", err)
	}
	if err := s.deps.Simulator.Connect(slot); err != nil {
		return nil, fmt.Errorf("failed to track slot %d: %w", slot, err)
	}
	return nil, nil
}

func (s *Service) handlePlayerDisconnect(e dispatcher.Event) (any, error) {
	slot, err := s.deps.Parser.ParseSlot(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to parse disconnect: %w", err)
	}
	s.deps.Simulator.Disconnect(slot)
	return nil, nil
}

func (s *Service) handlePlayerDeath(e dispatcher.Event) (any, error) {
	death, err := s.deps.Parser.ParsePlayerDeath(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to parse death: %w", err)
	}
	s.deps.Simulator.PlayerDeath(death.Victim)
	return nil, nil
}

func (s *Service) handleRoundStart(dispatcher.Event) (any, error) {
	round := s.deps.Match.BeginRound()
	s.deps.Simulator.Round().RoundStart()
	s.logger.Debug("round started", "round", round)
	return nil, nil
}

func (s *Service) handleFreezeEnd(dispatcher.Event) (any, error) {
	s.deps.Simulator.Round().FreezeEnd()
	return nil, nil
}

func (s *Service) handleRoundEnd(e dispatcher.Event) (any, error) {
	end, err := s.deps.Parser.ParseRoundEnd(e.Args)
	if err != nil {
		s.logger.Warn("bad round end arguments", "error", err)
	}
	s.deps.Match.EndRound(end.Winner, end.Reason)
	s.deps.Simulator.Round().RoundEnd()
	return nil, nil
}

func (s *Service) handleMapStart(e dispatcher.Event) (any, error) {
	ms, err := s.deps.Parser.ParseMapStart(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to parse map start: %w", err)
	}
	s.deps.Match.StartMap(ms.Name, e.Timestamp)
	s.deps.Simulator.Round().Disable(core.DetachRoundReset)
	s.deps.Simulator.Round().ResetRounds()
	if starter, ok := s.deps.Recorder.(MapStarter); ok {
		if err := starter.StartMap(s.deps.Match.MapName(), e.Timestamp); err != nil {
			s.logger.Warn("failed to start flight recording for map", "error", err)
		}
	}
	s.logger.Info("map started", "map", ms.Name)
	return nil, nil
}

func (s *Service) handlePrecache(dispatcher.Event) (any, error) {
	return s.deps.Simulator.Factory().Models(), nil
}

// handleAdminEnable switches the feature back on. The round only returns to
// the phase the admin disable interrupted; otherwise it waits for freeze end.
func (s *Service) handleAdminEnable(dispatcher.Event) (any, error) {
	config.SetEnabled(true)
	s.deps.Simulator.Round().Configure(config.GetRoundConfig(), config.GetMessages())
	phase := s.deps.Simulator.Round().Resume()
	s.logger.Info("mounts enabled by admin", "phase", phase)
	return "enabled", nil
}

func (s *Service) handleAdminDisable(dispatcher.Event) (any, error) {
	config.SetEnabled(false)
	s.deps.Simulator.Round().Configure(config.GetRoundConfig(), config.GetMessages())
	s.deps.Simulator.Round().Suspend(core.DetachDisabled)
	s.logger.Info("mounts disabled by admin")
	return "disabled", nil
}

func (s *Service) handleHotLoad(dispatcher.Event) (any, error) {
	n, err := s.deps.Simulator.HotAttach()
	if err != nil {
		return nil, fmt.Errorf("failed to track connected players: %w", err)
	}
	s.logger.Info("hot loaded", "players", n, "phase", s.deps.Simulator.Round().Phase())
	return n, nil
}

func (s *Service) handleAdminReload(dispatcher.Event) (any, error) {
	if err := config.Reload(); err != nil {
		return nil, fmt.Errorf("failed to reload config: %w", err)
	}
	cfg := config.GetMountConfig()
	factory, err := s.deps.Simulator.Factory().Rebuild(cfg)
	if err != nil {
		return nil, fmt.Errorf("rejected reloaded config: %w", err)
	}
	s.deps.Simulator.Reconfigure(factory, cfg)

	roundCfg := config.GetRoundConfig()
	s.deps.Simulator.Round().Configure(roundCfg, config.GetMessages())
	if !roundCfg.Enabled {
		s.deps.Simulator.Round().Suspend(core.DetachDisabled)
	} else {
		s.deps.Simulator.Round().Resume()
	}
	s.logger.Info("config reloaded", "mountType", cfg.MountType, "velocityMode", cfg.VelocityMode)
	return "reloaded", nil
}

func (s *Service) handleAdminDetach(e dispatcher.Event) (any, error) {
	slot, err := s.deps.Parser.ParseSlot(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to parse detach: %w", err)
	}
	s.deps.Simulator.ForceDetach(slot, core.DetachAdmin)
	return nil, nil
}

func (s *Service) handleStatus(dispatcher.Event) (any, error) {
	info := s.deps.Match.Info()
	return Status{
		Enabled: config.GetBool("enabled"),
		Phase:   s.deps.Simulator.Round().Phase().String(),
		Map:     info.MapName,
		Round:   info.Round,
		Tracked: s.deps.Simulator.Arena().Len(),
		Mounted: s.deps.Simulator.ActiveMounts(),
	}, nil
}

func (s *Service) handleLog(e dispatcher.Event) (any, error) {
	line, err := s.deps.Parser.ParseLog(e.Args)
	if err != nil {
		return nil, err
	}
	if s.deps.WriteLog != nil {
		s.deps.WriteLog(line.Function, line.Message, line.Level)
	}
	return nil, nil
}

func (s *Service) handleRecorderFlush(dispatcher.Event) (any, error) {
	if s.deps.Recorder == nil {
		return nil, errors.New("no recorder configured")
	}
	return nil, s.deps.Recorder.Flush(context.Background())
}

func (s *Service) handleMetric(e dispatcher.Event) (any, error) {
	if err := s.deps.Metrics.WriteMetric(e.Args); err != nil {
		return nil, fmt.Errorf("failed to write metric: %w", err)
	}
	return nil, nil
}
