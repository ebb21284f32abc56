package simulation

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/OCAP2/parachute/internal/simulation"

type metrics struct {
	attached      metric.Int64Counter
	detached      metric.Int64Counter
	spawnFailures metric.Int64Counter
	tickDuration  metric.Float64Histogram
	activeGauge   metric.Int64ObservableGauge

	// active mirrors the arena's mounted count for the gauge callback, which
	// runs off the host thread.
	active atomic.Int64
}

func newMetrics() (*metrics, error) {
	m := otel.Meter(instrumentationName)
	out := &metrics{}

	var err error
	out.attached, err = m.Int64Counter(
		"parachute.mounts.attached",
		metric.WithDescription("Total mounts attached"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating attached counter: %w", err)
	}

	out.detached, err = m.Int64Counter(
		"parachute.mounts.detached",
		metric.WithDescription("Total mounts detached, by reason"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating detached counter: %w", err)
	}

	out.spawnFailures, err = m.Int64Counter(
		"parachute.mounts.spawn_failures",
		metric.WithDescription("Total failed mount spawns"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating spawn failure counter: %w", err)
	}

	out.tickDuration, err = m.Float64Histogram(
		"parachute.tick.duration",
		metric.WithDescription("Wall time spent in one simulation tick"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tick duration histogram: %w", err)
	}

	out.activeGauge, err = m.Int64ObservableGauge(
		"parachute.mounts.active",
		metric.WithDescription("Mounts currently attached"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating active gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(out.activeGauge, out.active.Load())
			return nil
		},
		out.activeGauge,
	)
	if err != nil {
		return nil, fmt.Errorf("registering active callback: %w", err)
	}

	return out, nil
}

func (m *metrics) recordAttach(mountType string) {
	m.attached.Add(context.Background(), 1, metric.WithAttributes(attribute.String("type", mountType)))
	m.active.Add(1)
}

func (m *metrics) recordDetach(reason string) {
	m.detached.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", reason)))
	m.active.Add(-1)
}

func (m *metrics) recordSpawnFailure() {
	m.spawnFailures.Add(context.Background(), 1)
}

func (m *metrics) recordTick(ms float64) {
	m.tickDuration.Record(context.Background(), ms)
}
