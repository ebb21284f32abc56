package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/OCAP2/parachute/internal/api"
	"github.com/OCAP2/parachute/internal/config"
	"github.com/OCAP2/parachute/internal/dispatcher"
	"github.com/OCAP2/parachute/internal/handlers"
	"github.com/OCAP2/parachute/internal/influx"
	"github.com/OCAP2/parachute/internal/logging"
	"github.com/OCAP2/parachute/internal/match"
	"github.com/OCAP2/parachute/internal/monitor"
	"github.com/OCAP2/parachute/internal/mount"
	intOtel "github.com/OCAP2/parachute/internal/otel"
	"github.com/OCAP2/parachute/internal/recorder"
	"github.com/OCAP2/parachute/internal/simulation"
	"github.com/OCAP2/parachute/internal/storage"
	"github.com/OCAP2/parachute/pkg/core"
	"github.com/OCAP2/parachute/pkg/host/memhost"
	"github.com/OCAP2/parachute/pkg/hostapi"
	"github.com/rs/zerolog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

const extensionName = "parachute"

// app owns every long-lived service of one run.
type app struct {
	started time.Time
	logFile *os.File

	slogManager *logging.SlogManager
	logger      *slog.Logger
	otel        *intOtel.Provider
	influx      *influx.Manager

	host     *memhost.Host
	match    *match.Context
	sim      *simulation.Simulator
	live     atomic.Pointer[simulation.Simulator]
	store    storage.Backend
	recorder *recorder.Recorder
	monitor  *monitor.Service
	handlers *handlers.Service
	events   *dispatcher.Dispatcher
	bridge   *hostapi.Bridge
	closed   bool
}

// taggedUploader stamps the configured tag on every archive upload.
type taggedUploader struct {
	client *api.Client
	tag    string
}

func (u taggedUploader) Upload(path string, meta core.UploadMetadata) error {
	meta.Tag = u.tag
	return u.client.Upload(path, meta)
}

// newApp loads configuration from configDir and wires every service against
// h. Players already connected to h are picked up mid-round. The caller must
// call close.
func newApp(configDir string, h *memhost.Host, started time.Time) (*app, error) {
	a := &app{
		started:     started,
		slogManager: logging.NewSlogManager(),
		match:       match.NewContext(),
		host:        h,
	}

	// console logging until the log file exists
	a.slogManager.Setup(nil, "info", nil)
	a.logger = a.slogManager.Logger()

	if err := config.Load(configDir); err != nil {
		a.logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		a.logger.Info("Loaded config", "dir", configDir)
	}

	if err := a.setupLogging(); err != nil {
		return nil, err
	}

	if err := a.setupSimulation(); err != nil {
		a.close()
		return nil, err
	}
	if err := a.setupRecording(); err != nil {
		a.close()
		return nil, err
	}
	if err := a.setupCommands(); err != nil {
		a.close()
		return nil, err
	}
	a.hotAttach()
	return a, nil
}

// hotAttach tracks players that were connected before the extension loaded.
func (a *app) hotAttach() {
	n, err := a.sim.HotAttach()
	if err != nil {
		a.logger.Warn("Failed to track some connected players", "error", err)
	}
	if n > 0 {
		a.logger.Info("Hot attached to running match", "players", n, "phase", a.sim.Round().Phase())
	}
}

func (a *app) setupLogging() error {
	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}
	logPath := logging.LogFilePath(logsDir, extensionName, a.started)
	if _, err := os.Stat(logPath); err == nil {
		_ = os.Rename(logPath, logPath+".old")
	}
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	a.logFile = f

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		cfg := intOtel.Config{
			Enabled:        true,
			ServiceName:    otelCfg.ServiceName,
			BatchTimeout:   otelCfg.BatchTimeout,
			LogWriter:      f,
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
			MetricInterval: otelCfg.MetricInterval,
		}
		if otelCfg.Metrics {
			cfg.MetricWriter = f
		}
		a.otel, err = intOtel.New(cfg)
		if err != nil {
			a.logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			a.logger.Info("OTel provider initialized", "file", logPath, "endpoint", otelCfg.Endpoint)
		}
	}

	graylogCfg := config.GetGraylogConfig()
	if graylogCfg.Enabled {
		w, err := logging.NewGraylogWriter(graylogCfg.Address, extensionName)
		if err != nil {
			a.logger.Error("Failed to connect to Graylog", "error", err)
		} else {
			a.slogManager.SetGraylog(w)
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if a.otel != nil {
		otelLogProvider = a.otel.LoggerProvider()
	}
	a.slogManager.SetStateProvider(a.logState)
	a.slogManager.Setup(f, config.GetString("logLevel"), otelLogProvider)
	a.logger = a.slogManager.Logger()
	a.logger.Info("Logging to file", "path", logPath)
	return nil
}

func (a *app) setupSimulation() error {
	mountCfg := config.GetMountConfig()
	seed := uint64(a.started.UnixNano())
	factory, err := mount.Build(a.host, mountCfg, rand.NewPCG(seed, seed>>1))
	if err != nil {
		return fmt.Errorf("failed to build mount factory: %w", err)
	}
	a.sim, err = simulation.New(
		a.logger.With("component", "simulation"),
		a.host.Bundle(),
		factory,
		mountCfg,
		config.GetRoundConfig(),
		config.GetMessages(),
	)
	if err != nil {
		return fmt.Errorf("failed to create simulator: %w", err)
	}
	a.live.Store(a.sim)
	return nil
}

// logState is stamped on every log record. It runs on whichever goroutine
// logs, so the simulator is read through live.
func (a *app) logState() logging.MatchState {
	info := a.match.Info()
	state := logging.MatchState{Round: info.Round}
	if info.MapName != match.NoMap {
		state.Map = info.MapName
	}
	if sim := a.live.Load(); sim != nil {
		st := sim.Stats()
		state.Phase = st.Phase
		state.Tracked = st.Tracked
		state.Mounted = st.Mounted
	}
	return state
}

func (a *app) setupRecording() error {
	influxCfg := config.GetInfluxConfig()
	if influxCfg.Enabled {
		zl := zerolog.New(a.logFile).With().Timestamp().Str("component", "influx").Logger()
		a.influx = influx.NewManager(zl, influxCfg)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := a.influx.Connect(ctx)
		cancel()
		if err != nil {
			a.logger.Error("InfluxDB unavailable, telemetry disabled", "error", err)
			a.influx = nil
		}
	}

	recCfg := config.GetRecorderConfig()
	if !recCfg.Enabled {
		a.logger.Info("Flight recording disabled")
		return nil
	}

	var err error
	a.store, err = storage.NewBackend(config.GetStorageConfig(), a.logger.With("component", "storage"), recCfg.FlushInterval)
	if err != nil {
		return fmt.Errorf("failed to create storage backend: %w", err)
	}

	deps := recorder.Dependencies{
		Store:  a.store,
		Match:  a.match,
		Logger: a.logger.With("component", "recorder"),
	}
	if a.influx != nil {
		deps.Telemetry = a.influx
	}
	if apiCfg := config.GetAPIConfig(); apiCfg.Upload {
		client := api.New(apiCfg.ServerURL, apiCfg.APIKey)
		if err := client.Healthcheck(); err != nil {
			a.logger.Warn("Flight archive unreachable, uploads may fail", "url", apiCfg.ServerURL, "error", err)
		}
		deps.Uploader = taggedUploader{client: client, tag: apiCfg.Tag}
	}
	a.recorder, err = recorder.New(recCfg, deps)
	if err != nil {
		return err
	}
	if err := a.recorder.Start(); err != nil {
		return err
	}
	a.sim.SetObserver(a.recorder)
	a.logger.Info("Flight recording started", "storage", config.GetStorageConfig().Type)
	return nil
}

func (a *app) setupCommands() error {
	zl := zerolog.New(a.logFile).With().Timestamp().Str("component", "dispatcher").Logger()
	d, err := dispatcher.New(logging.NewDispatcherLogger(zl))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	a.events = d

	deps := handlers.Dependencies{
		Simulator: a.sim,
		Match:     a.match,
		Logger:    a.logger.With("component", "handlers"),
		WriteLog:  a.slogManager.WriteLog,
	}
	if a.recorder != nil {
		deps.Recorder = a.recorder
	}
	if a.influx != nil {
		deps.Metrics = a.influx
	}
	a.handlers = handlers.NewService(deps)
	a.handlers.Register(d)
	a.bridge = hostapi.New(version, d)

	monCfg := config.GetMonitorConfig()
	if !monCfg.Enabled {
		return nil
	}
	if monCfg.Path != "" && !filepath.IsAbs(monCfg.Path) {
		monCfg.Path = filepath.Join(config.GetString("logsDir"), monCfg.Path)
	}
	monDeps := monitor.Dependencies{
		Simulator: a.sim,
		Match:     a.match,
		Logger:    a.logger.With("component", "monitor"),
	}
	if a.recorder != nil {
		monDeps.Recorder = a.recorder
	}
	if ps, ok := a.store.(monitor.PerformanceStore); ok {
		monDeps.Store = ps
	}
	if a.influx != nil {
		monDeps.Telemetry = a.influx
	}
	a.monitor = monitor.NewService(monCfg, monDeps)
	return a.monitor.Start()
}

// close shuts every service down in reverse start order.
func (a *app) close() error {
	if a.closed {
		return nil
	}
	a.closed = true

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var errs []error
	if a.sim != nil {
		a.sim.Shutdown()
	}
	if a.monitor != nil {
		a.monitor.Stop()
	}
	if a.events != nil {
		a.handlers.Unregister(a.events)
		a.events.Close()
	}
	if a.recorder != nil {
		if err := a.recorder.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("recorder: %w", err))
		}
		if ex, ok := a.store.(storage.Exporter); ok && ex.ExportedFilePath() != "" {
			a.logger.Info("Flights exported", "path", ex.ExportedFilePath())
		}
	}
	if a.influx != nil {
		if err := a.influx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("influx: %w", err))
		}
	}
	if err := a.slogManager.Flush(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.otel != nil {
		if err := a.otel.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("otel: %w", err))
		}
	}
	if a.logFile != nil {
		errs = append(errs, a.logFile.Close())
	}
	return errors.Join(errs...)
}

// call sends one host command through the bridge and logs the reply.
func (a *app) call(out io.Writer, command string, args ...string) string {
	reply := a.bridge.Call(command, args)
	if out != nil {
		fmt.Fprintf(out, "%s %v -> %s\n", command, args, reply)
	}
	return reply
}
