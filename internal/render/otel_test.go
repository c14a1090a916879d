package render

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestImageCache_PublishesMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	r := &countingRenderer{}
	c := NewImageCache(WithCapacity(4), WithMeterProvider(provider))

	ctx := context.Background()
	_, err := c.GetOrRender(ctx, fieldsFor("a"), r) // miss
	require.NoError(t, err)
	_, err = c.GetOrRender(ctx, fieldsFor("a"), r) // hit
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	values := make(map[string]int64)
	for _, scope := range rm.ScopeMetrics {
		if scope.Scope.Name != instrumentationName {
			continue
		}
		for _, m := range scope.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					values[m.Name] = dp.Value
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					values[m.Name] = dp.Value
				}
			}
		}
	}

	assert.Equal(t, int64(1), values["render.cache.hits"])
	assert.Equal(t, int64(1), values["render.cache.misses"])
	assert.Equal(t, int64(0), values["render.cache.evictions"])
	assert.Equal(t, int64(1), values["render.cache.size"])
}
