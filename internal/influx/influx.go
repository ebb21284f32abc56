// Package influx ships flight and recorder telemetry to InfluxDB, falling back
// to a gzipped line-protocol file when the server is unreachable.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/OCAP2/parachute/internal/config"
	"github.com/OCAP2/parachute/internal/util"
	"github.com/OCAP2/parachute/pkg/core"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"
)

// Bucket names written by the extension.
const (
	BucketFlights     = "parachute_flights"
	BucketPerformance = "parachute_performance"
	BucketHost        = "host_metrics"
)

// DefaultBucketNames are the buckets created on connect.
var DefaultBucketNames = []string{
	BucketFlights,
	BucketPerformance,
	BucketHost,
}

// ErrDisabled is returned by Connect when influx.enabled is false.
var ErrDisabled = errors.New("influx is disabled")

const retentionSeconds = 60 * 60 * 24 * 90

// Manager handles InfluxDB connections and writes.
type Manager struct {
	cfg         config.InfluxConfig
	Client      influxdb2.Client
	Writers     map[string]influxdb2_api.WriteAPI
	BucketNames []string
	Logger      zerolog.Logger

	mu           sync.Mutex
	IsValid      bool
	backupFile   *os.File
	BackupWriter *gzip.Writer
}

// NewManager creates a new InfluxDB manager.
func NewManager(log zerolog.Logger, cfg config.InfluxConfig) *Manager {
	return &Manager{
		cfg:         cfg,
		Writers:     make(map[string]influxdb2_api.WriteAPI),
		BucketNames: DefaultBucketNames,
		Logger:      log,
	}
}

// ServerURL is the base URL built from the configured protocol, host and port.
func (m *Manager) ServerURL() string {
	return fmt.Sprintf("%s://%s:%s", m.cfg.Protocol, m.cfg.Host, m.cfg.Port)
}

// Connect establishes a connection to InfluxDB. When the server does not
// answer, points go to the backup file instead.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}

	m.Client = influxdb2.NewClientWithOptions(
		m.ServerURL(),
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)

	running, err := m.Client.Ping(ctx)
	if err != nil || !running {
		m.Logger.Warn().Err(err).Str("backupPath", m.cfg.BackupPath).
			Msg("InfluxDB unreachable, writing to backup file")
		return m.openBackup()
	}

	if err := m.setupOrganizationAndBuckets(ctx); err != nil {
		return err
	}
	m.createWriters()

	m.mu.Lock()
	m.IsValid = true
	m.mu.Unlock()
	m.Logger.Info().Str("url", m.ServerURL()).Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) openBackup() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.BackupWriter != nil {
		return nil
	}
	if m.cfg.BackupPath == "" {
		return errors.New("influx is unreachable and no backup path is set")
	}
	file, err := os.OpenFile(m.cfg.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.backupFile = file
	m.BackupWriter = gzip.NewWriter(file)
	return nil
}

func (m *Manager) setupOrganizationAndBuckets(ctx context.Context) error {
	orgName := m.cfg.Org

	// ensure org exists
	influxOrg, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Info().Str("org", orgName).Msg("Organization not found, creating")
		influxOrg, err = m.Client.OrganizationsAPI().CreateOrganizationWithName(ctx, orgName)
		if err != nil {
			m.Logger.Error().Err(err).Str("org", orgName).Msg("Error creating organization")
			return err
		}
	}

	// ensure buckets exist with 90 day retention
	for _, bucket := range m.BucketNames {
		if _, err := m.Client.BucketsAPI().FindBucketByName(ctx, bucket); err == nil {
			continue
		}
		m.Logger.Info().Str("bucket", bucket).Msg("Bucket not found, creating")

		rule := domain.RetentionRuleTypeExpire
		_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, influxOrg, bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: retentionSeconds,
		})
		if err != nil {
			m.Logger.Error().Err(err).Str("bucket", bucket).Msg("Error creating bucket")
			return err
		}
	}

	return nil
}

// createWriters creates write APIs for all configured buckets.
func (m *Manager) createWriters() {
	for _, bucket := range m.BucketNames {
		m.Writers[bucket] = m.Client.WriteAPI(m.cfg.Org, bucket)

		go func(bucketName string, errorsCh <-chan error) {
			for writeErr := range errorsCh {
				m.Logger.Error().Err(writeErr).Str("bucket", bucketName).
					Msg("Error sending data to InfluxDB")
			}
		}(bucket, m.Writers[bucket].Errors())
	}

	m.Logger.Debug().Int("buckets", len(m.BucketNames)).Msg("InfluxDB writers initialized")
}

// WritePoint writes a point to InfluxDB or the backup file.
func (m *Manager) WritePoint(bucket string, point *influxdb2_write.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.IsValid {
		w, ok := m.Writers[bucket]
		if !ok {
			return fmt.Errorf("influxDB bucket '%s' not registered", bucket)
		}
		w.WritePoint(point)
		return nil
	}

	if m.BackupWriter == nil {
		return errors.New("influxDB client not initialized and backup writer not available")
	}
	line := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	if _, err := m.BackupWriter.Write([]byte(line)); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// FlightPoint is the measurement written for one finished flight.
func FlightPoint(f *core.FlightSession) *influxdb2_write.Point {
	return influxdb2_write.NewPoint(
		"flight",
		map[string]string{
			"map":        f.MapName,
			"mount_type": f.MountType,
			"reason":     string(f.Reason),
			"team":       f.Team.String(),
		},
		map[string]any{
			"airtime_ms": f.Airtime.Milliseconds(),
			"max_speed":  f.MaxSpeed,
			"distance":   f.Distance,
			"drop":       f.Drop,
			"samples":    len(f.Path),
			"round":      f.Round,
			"slot":       f.Slot,
		},
		f.EndedAt,
	)
}

// WriteFlight writes the flight measurement.
func (m *Manager) WriteFlight(f *core.FlightSession) error {
	return m.WritePoint(BucketFlights, FlightPoint(f))
}

// WritePerformance writes a recorder status snapshot.
func (m *Manager) WritePerformance(tags map[string]string, fields map[string]any, at time.Time) error {
	return m.WritePoint(BucketPerformance, influxdb2_write.NewPoint("recorder", tags, fields, at))
}

// WriteMetric parses a host-submitted metric and writes it.
func (m *Manager) WriteMetric(args []string) error {
	bucket, point, err := ParseMetric(args)
	if err != nil {
		return err
	}
	return m.WritePoint(bucket, point)
}

// Close flushes pending writes and releases the client and backup file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range m.Writers {
		w.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
	}

	var errs []error
	if m.BackupWriter != nil {
		errs = append(errs, m.BackupWriter.Close())
		errs = append(errs, m.backupFile.Close())
		m.BackupWriter = nil
	}
	m.IsValid = false
	return errors.Join(errs...)
}

// ParseMetric parses a host metric and returns its bucket name and point.
//
// Arguments: bucket, measurement, then any number of "tag::name::value" and
// "field::type::name::value" entries where type is string, int or float.
// A missing bucket defaults to the host bucket.
func ParseMetric(data []string) (
	bucket string,
	point *influxdb2_write.Point,
	err error,
) {
	if len(data) < 2 {
		return "", nil, fmt.Errorf("metric needs a bucket and a measurement, got %d args", len(data))
	}
	data = util.CleanArgs(data)

	bucket = data[0]
	if bucket == "" {
		bucket = BucketHost
	}
	point = influxdb2_write.NewPointWithMeasurement(data[1])
	point.SetTime(time.Now())

	for _, entry := range data[2:] {
		parts := strings.Split(entry, "::")
		switch {
		case parts[0] == "tag" && len(parts) >= 3:
			point.AddTag(parts[1], parts[2])

		case parts[0] == "field" && len(parts) >= 4:
			fieldType, fieldName, fieldValue := parts[1], parts[2], parts[3]
			switch fieldType {
			case "string":
				point.AddField(fieldName, fieldValue)
			case "int":
				intVal, err := strconv.Atoi(fieldValue)
				if err != nil {
					return "", nil, fmt.Errorf("error converting field value '%s' to int: %w", fieldValue, err)
				}
				point.AddField(fieldName, intVal)
			case "float":
				floatVal, err := strconv.ParseFloat(fieldValue, 64)
				if err != nil {
					return "", nil, fmt.Errorf("error converting field value '%s' to float: %w", fieldValue, err)
				}
				point.AddField(fieldName, floatVal)
			default:
				return "", nil, fmt.Errorf("unknown field type %q", fieldType)
			}
		}
	}

	return bucket, point, nil
}
