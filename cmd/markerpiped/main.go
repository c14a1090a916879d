package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/fleetvis/markerpipe/internal/config"
	"github.com/fleetvis/markerpipe/internal/dispatcher"
	"github.com/fleetvis/markerpipe/internal/logging"
	"github.com/fleetvis/markerpipe/internal/metadata"
	"github.com/fleetvis/markerpipe/internal/motion"
	intOtel "github.com/fleetvis/markerpipe/internal/otel"
	"github.com/fleetvis/markerpipe/internal/pipeline"
	"github.com/fleetvis/markerpipe/internal/render"
	"github.com/fleetvis/markerpipe/internal/stats"
	"github.com/fleetvis/markerpipe/internal/telemetry"
	"github.com/fleetvis/markerpipe/pkg/core"
)

// Version and BuildDate can be set at build time via ldflags.
var (
	Version   string = "0.0.1"
	BuildDate string = "unknown"

	AppName string = "markerpiped"
)

var (
	SessionStartTime time.Time = time.Now()

	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider
)

func setup() error {
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(nil, "info", nil)
	Logger = SlogManager.Logger()

	if err := config.Load("."); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config")
	}

	logsDir := viper.GetString("logsDir")
	if _, err := os.Stat(logsDir); os.IsNotExist(err) {
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return fmt.Errorf("creating logs dir: %w", err)
		}
	}

	logPath := logging.LogFilePath(logsDir, AppName, SessionStartTime)
	logFile, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}

	otelCfg := config.Otel()
	OTelProvider, err = intOtel.New(intOtel.Config{
		Enabled:      otelCfg.Enabled,
		ServiceName:  AppName,
		BatchTimeout: time.Duration(otelCfg.BatchTimeoutMs) * time.Millisecond,
		LogWriter:    logFile,
		Endpoint:     otelCfg.Endpoint,
		Insecure:     otelCfg.Insecure,
	})
	if err != nil {
		return fmt.Errorf("initializing otel: %w", err)
	}

	SlogManager.Setup(logFile, viper.GetString("logLevel"), OTelProvider.LoggerProvider())
	Logger = SlogManager.Logger()
	Logger.Info("Starting up...", "version", Version, "buildDate", BuildDate)
	return nil
}

func main() {
	if err := setup(); err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	meta, err := metadata.NewSource(config.Metadata())
	if err != nil {
		Logger.Error("Metadata store init failed", "error", err)
		os.Exit(1)
	}
	defer meta.Close()

	zlog := zerolog.New(os.Stdout).With().Timestamp().Logger()

	statsConsumer := buildStatsConsumer(zlog)

	cacheCfg := config.Cache()
	cache := render.NewImageCache(render.WithCapacity(cacheCfg.Capacity))

	motionCfg := config.Motion()
	interp := motion.New(motion.WithDuration(motionCfg.Duration()))

	pipeCfg := config.Pipeline()
	pipe := pipeline.New(
		pipeline.Config{
			DebounceWindow: pipeCfg.DebounceWindow(),
			ResultBuffer:   pipeCfg.ResultBuffer,
			WarmupBudget:   cacheCfg.WarmupBudget,
			MotionTick:     motionCfg.Tick(),
		},
		cache, newBadgeRenderer(), interp, meta, statsConsumer, Logger,
	)

	// Seed the roster from the metadata store so fallback positions
	// survive restarts.
	if records, err := meta.List(ctx); err == nil && len(records) > 0 {
		pipe.SetEntities(records)
		Logger.Info("Roster restored", "entities", len(records))
	}

	disp, err := dispatcher.New(logging.NewDispatcherLogger(zlog))
	if err != nil {
		Logger.Error("Dispatcher init failed", "error", err)
		os.Exit(1)
	}
	registerPipelineHandlers(disp, pipe)

	args := os.Args[1:]
	if len(args) > 0 && strings.ToLower(args[0]) == "replay" {
		go runReplay(ctx, disp)
	} else {
		feedCfg := config.Telemetry()
		feed, err := telemetry.Dial(feedCfg.URL, feedCfg.Secret, Logger)
		if err != nil {
			Logger.Error("Feed connection failed", "url", feedCfg.URL, "error", err)
			os.Exit(1)
		}
		defer feed.Close()
		go pumpFeed(ctx, feed, disp)
	}

	go consumeResults(ctx, pipe)

	Logger.Info("Pipeline running")
	pipe.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := SlogManager.Flush(shutdownCtx); err != nil {
		Logger.Warn("Log flush failed", "error", err)
	}
	if err := OTelProvider.Shutdown(shutdownCtx); err != nil {
		Logger.Warn("OTel shutdown failed", "error", err)
	}
	Logger.Info("Shutdown complete")
}

// buildStatsConsumer assembles the stats fanout: structured log always,
// InfluxDB when enabled.
func buildStatsConsumer(zlog zerolog.Logger) stats.Consumer {
	consumers := []stats.Consumer{stats.NewLogSink(Logger)}

	influxCfg := config.Influx()
	if influxCfg.Enabled {
		backup := filepath.Join(viper.GetString("logsDir"), "stats_backup.gz")
		manager := stats.NewInfluxManager(zlog, influxCfg, backup)
		if err := manager.Connect(); err != nil {
			Logger.Warn("InfluxDB stats disabled", "error", err)
		} else {
			consumers = append(consumers, manager)
		}
	}

	return stats.NewFanout(Logger, consumers...)
}

// registerPipelineHandlers routes feed and view commands into the
// pipeline. Telemetry is buffered so a slow cycle never blocks the
// feed reader; view actions stay synchronous.
func registerPipelineHandlers(d *dispatcher.Dispatcher, pipe *pipeline.Pipeline) {
	d.Register("telemetry", func(e dispatcher.Event) (any, error) {
		samples, ok := e.Payload.([]core.TelemetrySample)
		if !ok {
			return nil, fmt.Errorf("telemetry payload has type %T", e.Payload)
		}
		pipe.SubmitTelemetry(samples)
		return nil, nil
	}, dispatcher.Buffered(256))

	d.Register("entities", func(e dispatcher.Event) (any, error) {
		records, ok := e.Payload.([]core.EntityRecord)
		if !ok {
			return nil, fmt.Errorf("entities payload has type %T", e.Payload)
		}
		pipe.SetEntities(records)
		return nil, nil
	}, dispatcher.Buffered(16), dispatcher.Logged())

	d.Register("selection", func(e dispatcher.Event) (any, error) {
		ids, ok := e.Payload.([]core.EntityID)
		if !ok {
			return nil, fmt.Errorf("selection payload has type %T", e.Payload)
		}
		pipe.SetSelection(ids)
		return nil, nil
	}, dispatcher.Logged())

	d.Register("query", func(e dispatcher.Event) (any, error) {
		q, ok := e.Payload.(string)
		if !ok {
			return nil, fmt.Errorf("query payload has type %T", e.Payload)
		}
		pipe.SetQuery(q)
		return nil, nil
	}, dispatcher.Logged())

	d.Register("refresh", func(e dispatcher.Event) (any, error) {
		pipe.Refresh()
		return nil, nil
	}, dispatcher.Logged())

	d.Register("flush", func(e dispatcher.Event) (any, error) {
		pipe.Flush()
		return nil, nil
	})
}

// pumpFeed forwards feed batches to the dispatcher until the feed
// shuts down or the context is cancelled.
func pumpFeed(ctx context.Context, feed *telemetry.Feed, disp *dispatcher.Dispatcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-feed.Done():
			return
		case batch := <-feed.Samples():
			if _, err := disp.Dispatch(dispatcher.Event{
				Command:   "telemetry",
				Payload:   batch,
				Timestamp: time.Now(),
			}); err != nil {
				Logger.Warn("Telemetry dispatch failed", "error", err)
			}
		case records := <-feed.Entities():
			if _, err := disp.Dispatch(dispatcher.Event{
				Command:   "entities",
				Payload:   records,
				Timestamp: time.Now(),
			}); err != nil {
				Logger.Warn("Roster dispatch failed", "error", err)
			}
		}
	}
}

// consumeResults drains the view channel, logging cycle summaries.
func consumeResults(ctx context.Context, pipe *pipeline.Pipeline) {
	for {
		select {
		case <-ctx.Done():
			return
		case res := <-pipe.Results().Receive():
			Logger.Debug("Markers updated",
				"visible", len(res.Markers),
				"created", res.Created,
				"modified", res.Modified,
				"reused", res.Reused,
				"removed", res.Removed,
			)
		}
	}
}
