package oteladapters_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AntonStoeckl/versioned-snapshots-go/snapshot"
	"github.com/AntonStoeckl/versioned-snapshots-go/snapshot/oteladapters"
	"github.com/AntonStoeckl/versioned-snapshots-go/snapshot/scheduler"
	"github.com/AntonStoeckl/versioned-snapshots-go/snapshot/sqlengine"
	"github.com/AntonStoeckl/versioned-snapshots-go/testutil/dbtest"
	"github.com/AntonStoeckl/versioned-snapshots-go/testutil/fixtures"
)

func Test_SchedulerRunWithStateStore_IsTraced(t *testing.T) {
	ctx := context.Background()
	exporter := tracetest.NewInMemoryExporter()
	tracing := oteladapters.NewTracingCollector(
		sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter)).Tracer("snapshots"),
	)
	reader := sdkmetric.NewManualReader()
	metrics := oteladapters.NewMetricsCollector(
		sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("snapshots"),
	)

	store, err := sqlengine.NewStateStoreFromSQLDB(
		dbtest.OpenSQLite(t),
		sqlengine.DialectSQLite,
		sqlengine.WithClock(fixtures.FixedClock),
		sqlengine.WithTracing(tracing),
		sqlengine.WithMetrics(metrics),
	)
	require.NoError(t, err)
	require.NoError(t, store.CreateSchema(ctx))

	snaps, err := fixtures.CategorizedSnapshots(fixtures.DailyModel("db.orders"))
	require.NoError(t, err)
	orders := snaps["db.orders"]
	require.NoError(t, store.PushSnapshots(ctx, orders))

	s, err := scheduler.New(
		store,
		scheduler.EvaluatorFunc(func(context.Context, *snapshot.Snapshot, snapshot.Interval) error { return nil }),
		scheduler.WithTracing(tracing),
		scheduler.WithMetrics(metrics),
	)
	require.NoError(t, err)

	_, err = s.Run(ctx, []*snapshot.Snapshot{orders}, fixtures.Day(1), fixtures.Day(3), snapshot.MissingOptions{})
	require.NoError(t, err)

	spansByName := make(map[string]tracetest.SpanStub)
	for _, span := range exporter.GetSpans() {
		spansByName[span.Name] = span
	}

	require.Contains(t, spansByName, "snapshot_scheduler.run")
	require.Contains(t, spansByName, "snapshot_state.add_intervals")
	require.Contains(t, spansByName, "snapshot_state.push_snapshots")

	run := spansByName["snapshot_scheduler.run"]
	addIntervals := spansByName["snapshot_state.add_intervals"]
	assert.Equal(t, run.SpanContext.SpanID(), addIntervals.Parent.SpanID(), "store spans are children of the run")

	var resourceMetrics metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &resourceMetrics))
	assert.NotEmpty(t, findMetric(t, resourceMetrics, "snapshot_state_operation_duration_seconds").Name)
	assert.NotEmpty(t, findMetric(t, resourceMetrics, "snapshot_scheduler_batches_total").Name)
}
