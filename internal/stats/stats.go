// Package stats fans pipeline counters out to consumers: a structured
// log sink always, InfluxDB when configured.
package stats

import (
	"context"
	"log/slog"

	"github.com/fleetvis/markerpipe/pkg/core"
)

// Consumer receives one stats snapshot per publication interval.
type Consumer interface {
	Publish(ctx context.Context, s core.PipelineStats) error
}

// LogSink writes stats snapshots to the structured log.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a stats consumer that logs snapshots at debug.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Publish logs one snapshot.
func (l *LogSink) Publish(_ context.Context, s core.PipelineStats) error {
	l.logger.Debug("Pipeline stats",
		"cycles", s.Cycles,
		"created", s.Created,
		"modified", s.Modified,
		"reused", s.Reused,
		"removed", s.Removed,
		"invalid", s.Invalid,
		"dropped", s.Dropped,
		"cacheHits", s.CacheHits,
		"cacheMisses", s.CacheMisses,
		"evictions", s.Evictions,
		"efficiency", s.Efficiency,
	)
	return nil
}

// Fanout publishes every snapshot to all consumers, logging failures
// through the supplied logger instead of aborting the fanout.
type Fanout struct {
	consumers []Consumer
	logger    *slog.Logger
}

// NewFanout creates a fanout over the given consumers.
func NewFanout(logger *slog.Logger, consumers ...Consumer) *Fanout {
	return &Fanout{consumers: consumers, logger: logger}
}

// Publish delivers the snapshot to every consumer.
func (f *Fanout) Publish(ctx context.Context, s core.PipelineStats) error {
	for _, c := range f.consumers {
		if err := c.Publish(ctx, s); err != nil {
			f.logger.Warn("Stats consumer failed", "error", err)
		}
	}
	return nil
}
