package sqlengine_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/versioned-snapshots-go/snapshot"
	"github.com/AntonStoeckl/versioned-snapshots-go/snapshot/sqlengine"
	"github.com/AntonStoeckl/versioned-snapshots-go/testutil/dbtest"
	"github.com/AntonStoeckl/versioned-snapshots-go/testutil/fixtures"
	"github.com/AntonStoeckl/versioned-snapshots-go/testutil/spies"
)

func Test_StateStore_Logging(t *testing.T) {
	ctx := context.Background()
	logHandler := spies.NewLogHandlerSpy(false)
	contextualHandler := spies.NewLogHandlerSpy(false)

	store := newSQLiteStore(
		t,
		sqlengine.WithLogger(slog.New(logHandler)),
		sqlengine.WithContextualLogger(slog.New(contextualHandler)),
	)

	orders := categorizedSnapshot(t, fixtures.DailyModel("db.orders"))
	require.NoError(t, store.PushSnapshots(ctx, orders))

	for _, handler := range []*spies.LogHandlerSpy{logHandler, contextualHandler} {
		assert.True(t, handler.HasDebugLogWithMessage("executed sql for: push_snapshots").WithDurationMS().WithAttr("query").Assert())
		assert.True(t, handler.HasInfoLogWithMessage("state store operation: push_snapshots").WithDurationMS().WithAttr("row_count").Assert())
	}

	err := store.UpdateSnapshots(ctx, newSnapshot(t, fixtures.DailyModel("db.unknown")))
	require.ErrorIs(t, err, sqlengine.ErrSnapshotNotFound)

	assert.True(t, logHandler.HasErrorLogWithMessage("state store operation failed").
		WithAttrValue("operation", "update_snapshots").
		WithAttrValue("error_type", "not_found").
		Assert())
}

func Test_StateStore_Metrics(t *testing.T) {
	ctx := context.Background()
	metrics := spies.NewMetricsCollectorSpy()
	store := newSQLiteStore(t, sqlengine.WithMetrics(metrics))

	orders := categorizedSnapshot(t, fixtures.DailyModel("db.orders"))
	require.NoError(t, store.PushSnapshots(ctx, orders))

	_, err := store.GetSnapshots(ctx, orders.SnapshotID())
	require.NoError(t, err)

	assert.True(t, metrics.HasDurationRecord("snapshot_state_operation_duration_seconds", "operation", "push_snapshots"))
	assert.True(t, metrics.HasDurationRecord("snapshot_state_operation_duration_seconds", "operation", "get_snapshots"))
	assert.True(t, metrics.HasValueRecord("snapshot_state_rows_total", "operation", "get_snapshots"))
	assert.Positive(t, metrics.GetContextCallCount())

	withoutSchema, err := sqlengine.NewStateStoreFromSQLDB(
		dbtest.OpenSQLite(t),
		sqlengine.DialectSQLite,
		sqlengine.WithMetrics(metrics),
	)
	require.NoError(t, err)

	_, err = withoutSchema.GetIntervals(ctx, orders.SnapshotID())
	require.ErrorIs(t, err, sqlengine.ErrQueryingStateFailed)

	assert.True(t, metrics.HasCounterRecord("snapshot_state_database_errors_total", "error_type", "database_query"))
	assert.True(t, metrics.HasDurationRecord("snapshot_state_operation_duration_seconds", "status", "error"))
}

func Test_StateStore_Tracing(t *testing.T) {
	ctx := context.Background()
	tracing := spies.NewTracingCollectorSpy()
	store := newSQLiteStore(t, sqlengine.WithTracing(tracing))

	orders := categorizedSnapshot(t, fixtures.DailyModel("db.orders"))
	require.NoError(t, store.PushSnapshots(ctx, orders))

	err := store.AddInterval(ctx, orders, snapshot.Interval{Start: fixtures.TS(1), End: fixtures.TS(2)}, false)
	require.NoError(t, err)

	span, found := tracing.FindSpan("snapshot_state.add_intervals")
	require.True(t, found)
	assert.Equal(t, "add_intervals", span.StartAttributes["operation"])
	assert.Equal(t, "success", span.Status)
	assert.Equal(t, "1", span.EndAttributes["row_count"])
	assert.Equal(t, "success", span.SpanContext.GetStatus())

	err = store.UpdateSnapshots(ctx, newSnapshot(t, fixtures.DailyModel("db.unknown")))
	require.Error(t, err)

	span, found = tracing.FindSpan("snapshot_state.update_snapshots")
	require.True(t, found)
	assert.Equal(t, "error", span.Status)
	assert.Equal(t, "not_found", span.EndAttributes["error_type"])
}
