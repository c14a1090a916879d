package stats

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"

	"github.com/fleetvis/markerpipe/internal/config"
	"github.com/fleetvis/markerpipe/pkg/core"
)

const statsMeasurement = "marker_pipeline"

// InfluxManager handles the InfluxDB connection and stats writes. When
// the server is unreachable, points are spooled to a gzip backup file
// in line protocol.
type InfluxManager struct {
	Client       influxdb2.Client
	Writer       influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	Bucket       string
	Logger       zerolog.Logger
	BackupPath   string

	cfg config.InfluxConfig
}

// NewInfluxManager creates a new InfluxDB stats manager.
func NewInfluxManager(log zerolog.Logger, cfg config.InfluxConfig, backupPath string) *InfluxManager {
	return &InfluxManager{
		IsValid:    false,
		Bucket:     cfg.Bucket,
		Logger:     log,
		BackupPath: backupPath,
		cfg:        cfg,
	}
}

// Connect establishes a connection to InfluxDB.
func (m *InfluxManager) Connect() error {
	if !m.cfg.Enabled {
		return errors.New("influx.enabled is false")
	}

	m.Client = influxdb2.NewClientWithOptions(
		fmt.Sprintf("%s://%s:%s", m.cfg.Protocol, m.cfg.Host, m.cfg.Port),
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)

	// validate client connection health
	running, err := m.Client.Ping(context.Background())

	if err != nil || !running {
		m.IsValid = false
		// create backup writer
		if m.BackupWriter == nil {
			m.Logger.Info().Str("backupPath", m.BackupPath).
				Msg("Failed to initialize InfluxDB client, writing to backup file")

			file, err := os.OpenFile(m.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return fmt.Errorf("error creating backup file: %v", err)
			}
			m.BackupWriter = gzip.NewWriter(file)
		}
	} else {
		m.IsValid = true
	}

	if m.IsValid {
		if err := m.setupOrganizationAndBucket(); err != nil {
			return err
		}
		m.createWriter()
		m.Logger.Info().Msg("InfluxDB client initialized")
	} else {
		m.Logger.Warn().Msg("InfluxDB client failed to initialize, using backup writer")
	}

	return nil
}

func (m *InfluxManager) setupOrganizationAndBucket() error {
	ctx := context.Background()
	orgName := m.cfg.Org

	// ensure org exists
	_, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Info().Str("org", orgName).Msg("Organization not found, creating")
		_, err = m.Client.OrganizationsAPI().CreateOrganizationWithName(ctx, orgName)
		if err != nil {
			m.Logger.Error().Err(err).Str("org", orgName).Msg("Error creating organization")
			return err
		}
	}

	influxOrg, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Error().Err(err).Str("org", orgName).Msg("Error getting organization")
		return err
	}

	// ensure bucket exists with 90 day retention
	_, err = m.Client.BucketsAPI().FindBucketByName(ctx, m.Bucket)
	if err != nil {
		m.Logger.Info().Str("bucket", m.Bucket).Msg("Bucket not found, creating")

		rule := domain.RetentionRuleTypeExpire
		_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, influxOrg, m.Bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: 60 * 60 * 24 * 90, // 90 days
		})
		if err != nil {
			m.Logger.Error().Err(err).Str("bucket", m.Bucket).Msg("Error creating bucket")
			return err
		}
	}

	return nil
}

func (m *InfluxManager) createWriter() {
	m.Writer = m.Client.WriteAPI(m.cfg.Org, m.Bucket)

	errorsCh := m.Writer.Errors()
	go func(errorsCh <-chan error) {
		for writeErr := range errorsCh {
			m.Logger.Error().Err(writeErr).Str("bucket", m.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}(errorsCh)

	m.Logger.Debug().Msg("InfluxDB writer initialized")
}

// Publish writes one stats snapshot as a point.
func (m *InfluxManager) Publish(ctx context.Context, s core.PipelineStats) error {
	point := influxdb2_write.NewPointWithMeasurement(statsMeasurement).
		AddField("cycles", int64(s.Cycles)).
		AddField("created", int64(s.Created)).
		AddField("modified", int64(s.Modified)).
		AddField("reused", int64(s.Reused)).
		AddField("removed", int64(s.Removed)).
		AddField("invalid", int64(s.Invalid)).
		AddField("dropped", int64(s.Dropped)).
		AddField("cache_hits", int64(s.CacheHits)).
		AddField("cache_misses", int64(s.CacheMisses)).
		AddField("evictions", int64(s.Evictions)).
		AddField("efficiency", s.Efficiency).
		SetTime(time.Now())
	return m.WritePoint(ctx, point)
}

// WritePoint writes a point to InfluxDB or the backup file.
func (m *InfluxManager) WritePoint(_ context.Context, point *influxdb2_write.Point) error {
	if m.IsValid {
		if m.Writer == nil {
			return fmt.Errorf("influxDB bucket '%s' not registered", m.Bucket)
		}
		m.Writer.WritePoint(point)
		return nil
	}

	if m.BackupWriter == nil {
		return fmt.Errorf("influxDB client not initialized and backup writer not available")
	}

	lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Duration(1*time.Nanosecond))
	if _, err := m.BackupWriter.Write([]byte(lineProtocol + "\n")); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %s", err)
	}
	return nil
}

// Close flushes pending writes and shuts the client down.
func (m *InfluxManager) Close() error {
	if m.Writer != nil {
		m.Writer.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
	}
	if m.BackupWriter != nil {
		return m.BackupWriter.Close()
	}
	return nil
}
