package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestMetricsRecords(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := New(provider)
	require.NoError(t, err)

	m.AddEnrolled(2)
	m.AddAdvanced(3)
	m.AddAdvanced(1)
	m.AddCompleted(1)
	m.AddErrors(0)
	m.AddDead(1)
	m.SetDue(7)
	m.SetDue(5)
	m.ObserveBatchDuration(250 * time.Millisecond)

	data := collect(t, reader)

	sum := func(name string) int64 {
		agg, ok := data[name].(metricdata.Sum[int64])
		require.True(t, ok, name)
		require.Len(t, agg.DataPoints, 1, name)
		return agg.DataPoints[0].Value
	}
	require.EqualValues(t, 2, sum("cadence.enrollments.created"))
	require.EqualValues(t, 4, sum("cadence.steps.advanced"))
	require.EqualValues(t, 1, sum("cadence.enrollments.completed"))
	require.EqualValues(t, 1, sum("cadence.advance.dead"))
	_, recorded := data["cadence.advance.errors"]
	require.False(t, recorded)

	gauge, ok := data["cadence.enrollments.due"].(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	require.EqualValues(t, 5, gauge.DataPoints[0].Value)

	hist, ok := data["cadence.batch.duration"].(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	require.EqualValues(t, 1, hist.DataPoints[0].Count)
	require.InDelta(t, 0.25, hist.DataPoints[0].Sum, 1e-9)
}

func TestNewUsesGlobalProvider(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)
	m.AddEnrolled(1)
	m.SetDue(1)
}
