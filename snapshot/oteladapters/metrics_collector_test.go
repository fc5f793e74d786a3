package oteladapters_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/AntonStoeckl/versioned-snapshots-go/snapshot/oteladapters"
)

func newMeter() (metric.Meter, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	return provider.Meter("test"), reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var resourceMetrics metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &resourceMetrics))

	return resourceMetrics
}

func findMetric(t *testing.T, resourceMetrics metricdata.ResourceMetrics, name string) metricdata.Metrics {
	t.Helper()

	for _, scopeMetrics := range resourceMetrics.ScopeMetrics {
		for _, m := range scopeMetrics.Metrics {
			if m.Name == name {
				return m
			}
		}
	}

	t.Fatalf("metric %s not found", name)

	return metricdata.Metrics{}
}

func Test_MetricsCollector_RecordDuration(t *testing.T) {
	meter, reader := newMeter()
	collector := oteladapters.NewMetricsCollector(meter)

	collector.RecordDuration(
		"snapshot_state_operation_duration_seconds",
		150*time.Millisecond,
		map[string]string{"operation": "get_snapshots", "status": "success"},
	)

	found := findMetric(t, collect(t, reader), "snapshot_state_operation_duration_seconds")
	assert.Equal(t, "s", found.Unit)
	assert.Equal(t, "Snapshot state store operation duration", found.Description)

	histogram, ok := found.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, histogram.DataPoints, 1)

	dataPoint := histogram.DataPoints[0]
	assert.Equal(t, uint64(1), dataPoint.Count)
	assert.InDelta(t, 0.15, dataPoint.Sum, 0.001)

	expectedAttrs := attribute.NewSet(
		attribute.String("operation", "get_snapshots"),
		attribute.String("status", "success"),
	)
	assert.True(t, dataPoint.Attributes.Equals(&expectedAttrs))
}

func Test_MetricsCollector_IncrementCounter(t *testing.T) {
	meter, reader := newMeter()
	collector := oteladapters.NewMetricsCollector(meter)
	labels := map[string]string{"error_type": "evaluation"}

	collector.IncrementCounter("snapshot_scheduler_run_errors_total", labels)
	collector.IncrementCounterContext(context.Background(), "snapshot_scheduler_run_errors_total", labels)

	found := findMetric(t, collect(t, reader), "snapshot_scheduler_run_errors_total")
	assert.Equal(t, "Snapshot scheduler count", found.Description)

	sum, ok := found.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(2), sum.DataPoints[0].Value)
	assert.True(t, sum.IsMonotonic)
}

func Test_MetricsCollector_RecordValue(t *testing.T) {
	meter, reader := newMeter()
	collector := oteladapters.NewMetricsCollector(meter)

	collector.RecordValue("snapshot_state_rows_total", 3, map[string]string{"operation": "push_snapshots"})
	collector.RecordValueContext(context.Background(), "snapshot_state_rows_total", 5, map[string]string{"operation": "push_snapshots"})

	gauge, ok := findMetric(t, collect(t, reader), "snapshot_state_rows_total").Data.(metricdata.Gauge[float64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.InDelta(t, 5.0, gauge.DataPoints[0].Value, 0.001)
}

func Test_MetricsCollector_NilLabels(t *testing.T) {
	meter, reader := newMeter()
	collector := oteladapters.NewMetricsCollector(meter)

	collector.RecordDuration("custom_duration_seconds", time.Second, nil)

	found := findMetric(t, collect(t, reader), "custom_duration_seconds")
	assert.Equal(t, "Snapshot duration", found.Description)

	histogram, ok := found.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, histogram.DataPoints, 1)
	assert.Equal(t, 0, histogram.DataPoints[0].Attributes.Len())
}

func Test_MetricsCollector_ConcurrentUse(t *testing.T) {
	meter, reader := newMeter()
	collector := oteladapters.NewMetricsCollector(meter)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.IncrementCounter("snapshot_scheduler_batches_total", map[string]string{"status": "success"})
		}()
	}
	wg.Wait()

	sum, ok := findMetric(t, collect(t, reader), "snapshot_scheduler_batches_total").Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(20), sum.DataPoints[0].Value)
}

// failingMeter refuses to create any instrument.
type failingMeter struct {
	noop.Meter
}

var errInstrument = errors.New("instrument creation failed")

func (failingMeter) Float64Histogram(string, ...metric.Float64HistogramOption) (metric.Float64Histogram, error) {
	return nil, errInstrument
}

func (failingMeter) Int64Counter(string, ...metric.Int64CounterOption) (metric.Int64Counter, error) {
	return nil, errInstrument
}

func (failingMeter) Float64Gauge(string, ...metric.Float64GaugeOption) (metric.Float64Gauge, error) {
	return nil, errInstrument
}

func Test_MetricsCollector_InstrumentCreationErrors(t *testing.T) {
	collector := oteladapters.NewMetricsCollector(failingMeter{})
	ctx := context.Background()

	assert.NotPanics(t, func() {
		collector.RecordDuration("d", time.Second, nil)
		collector.RecordDurationContext(ctx, "d", time.Second, nil)
		collector.IncrementCounter("c", nil)
		collector.IncrementCounterContext(ctx, "c", nil)
		collector.RecordValue("v", 1, nil)
		collector.RecordValueContext(ctx, "v", 1, nil)
	})
}
