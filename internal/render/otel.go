package render

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fleetvis/markerpipe/internal/render"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// WithMeterProvider overrides the global OTel meter provider for the
// cache instruments. Mainly for tests.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *ImageCache) {
		c.meterProvider = mp
	}
}

// registerMetrics exposes the cache counters as observable instruments
// on the global OTel meter (no-op if not configured). Registration is
// best effort; a cache without metrics still serves images.
func (c *ImageCache) registerMetrics() {
	m := meter()
	if c.meterProvider != nil {
		m = c.meterProvider.Meter(instrumentationName)
	}

	hits, err := m.Int64ObservableCounter(
		"render.cache.hits",
		metric.WithDescription("Total image cache hits"),
	)
	if err != nil {
		return
	}
	misses, err := m.Int64ObservableCounter(
		"render.cache.misses",
		metric.WithDescription("Total image cache misses"),
	)
	if err != nil {
		return
	}
	evictions, err := m.Int64ObservableCounter(
		"render.cache.evictions",
		metric.WithDescription("Total image cache evictions"),
	)
	if err != nil {
		return
	}
	size, err := m.Int64ObservableGauge(
		"render.cache.size",
		metric.WithDescription("Current number of cached images"),
	)
	if err != nil {
		return
	}

	_, _ = m.RegisterCallback(
		func(_ context.Context, o metric.Observer) error {
			o.ObserveInt64(hits, int64(c.hits.Load()))
			o.ObserveInt64(misses, int64(c.misses.Load()))
			o.ObserveInt64(evictions, int64(c.evictions.Load()))
			o.ObserveInt64(size, int64(c.Len()))
			return nil
		},
		hits, misses, evictions, size,
	)
}
