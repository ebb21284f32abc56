package influx

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/OCAP2/parachute/internal/config"
	"github.com/OCAP2/parachute/pkg/core"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lineOf(p *influxdb2_write.Point) string {
	return influxdb2_write.PointToLineProtocol(p, time.Nanosecond)
}

func TestConnect_Disabled(t *testing.T) {
	m := NewManager(zerolog.Nop(), config.InfluxConfig{})
	assert.ErrorIs(t, m.Connect(context.Background()), ErrDisabled)
}

func TestWritePoint_NotConnected(t *testing.T) {
	m := NewManager(zerolog.Nop(), config.InfluxConfig{})
	err := m.WriteFlight(&core.FlightSession{})
	assert.ErrorContains(t, err, "backup writer not available")
}

func TestConnect_UnreachableNeedsBackupPath(t *testing.T) {
	m := NewManager(zerolog.Nop(), config.InfluxConfig{
		Enabled:  true,
		Protocol: "http",
		Host:     "127.0.0.1",
		Port:     "1",
	})
	err := m.Connect(context.Background())
	assert.ErrorContains(t, err, "no backup path")
}

func TestConnect_UnreachableWritesBackup(t *testing.T) {
	backup := filepath.Join(t.TempDir(), "influx_backup.log.gz")
	m := NewManager(zerolog.Nop(), config.InfluxConfig{
		Enabled:    true,
		Protocol:   "http",
		Host:       "127.0.0.1",
		Port:       "1",
		BackupPath: backup,
	})
	require.NoError(t, m.Connect(context.Background()))
	assert.False(t, m.IsValid)
	assert.Equal(t, "http://127.0.0.1:1", m.ServerURL())

	end := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, m.WriteFlight(&core.FlightSession{
		MapName:   "de_nuke",
		MountType: "parachute",
		Reason:    core.DetachDeath,
		Airtime:   1500 * time.Millisecond,
		EndedAt:   end,
	}))
	require.NoError(t, m.WriteMetric([]string{`"host_metrics"`, "tick", "tag::server::eu1", "field::float::ms::15.6"}))
	require.NoError(t, m.Close())

	f, err := os.Open(backup)
	require.NoError(t, err)
	defer f.Close()
	r, err := gzip.NewReader(f)
	require.NoError(t, err)
	raw, err := io.ReadAll(r)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "flight,"))
	assert.Contains(t, lines[0], "airtime_ms=1500i")
	assert.Contains(t, lines[0], "mount_type=parachute")
	assert.True(t, strings.HasPrefix(lines[1], "tick,server=eu1"))
}

func TestFlightPoint(t *testing.T) {
	line := lineOf(FlightPoint(&core.FlightSession{
		MapName:   "de_vertigo",
		MountType: "hoverboard",
		Team:      core.TeamAttackers,
		Reason:    core.DetachIneligible,
		MaxSpeed:  250.5,
		Round:     3,
		Path:      make([]core.PathSample, 4),
		EndedAt:   time.Unix(10, 0),
	}))

	assert.True(t, strings.HasPrefix(line, "flight,"))
	assert.Contains(t, line, "team=attackers")
	assert.Contains(t, line, "reason=ineligible")
	assert.Contains(t, line, "max_speed=250.5")
	assert.Contains(t, line, "samples=4i")
	assert.Contains(t, line, "round=3i")
}

func TestParseMetric(t *testing.T) {
	tests := []struct {
		name       string
		input      []string
		wantBucket string
		contains   []string
		wantErr    bool
	}{
		{
			name:       "tags and fields",
			input:      []string{"perf", "fps", "tag::map::de_dust2", "field::int::players::10", "field::float::avg::63.5", "field::string::note::ok"},
			wantBucket: "perf",
			contains:   []string{"fps,map=de_dust2", "players=10i", "avg=63.5", `note="ok"`},
		},
		{
			name:       "default bucket",
			input:      []string{`""`, "fps", "field::int::n::1"},
			wantBucket: BucketHost,
			contains:   []string{"fps n=1i"},
		},
		{name: "too few args", input: []string{"perf"}, wantErr: true},
		{name: "bad int", input: []string{"perf", "fps", "field::int::n::x"}, wantErr: true},
		{name: "bad float", input: []string{"perf", "fps", "field::float::n::x"}, wantErr: true},
		{name: "unknown type", input: []string{"perf", "fps", "field::bool::n::true"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, point, err := ParseMetric(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBucket, bucket)
			line := lineOf(point)
			for _, c := range tt.contains {
				assert.Contains(t, line, c)
			}
		})
	}
}
