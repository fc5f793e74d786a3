package sqlengine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/versioned-snapshots-go/snapshot"
	"github.com/AntonStoeckl/versioned-snapshots-go/snapshot/model"
	"github.com/AntonStoeckl/versioned-snapshots-go/snapshot/sqlengine"
	"github.com/AntonStoeckl/versioned-snapshots-go/testutil/dbtest"
	"github.com/AntonStoeckl/versioned-snapshots-go/testutil/fixtures"
)

func newSQLiteStore(t *testing.T, options ...sqlengine.Option) *sqlengine.StateStore {
	t.Helper()

	options = append([]sqlengine.Option{sqlengine.WithClock(fixtures.FixedClock)}, options...)

	store, err := sqlengine.NewStateStoreFromSQLDB(dbtest.OpenSQLite(t), sqlengine.DialectSQLite, options...)
	require.NoError(t, err)
	require.NoError(t, store.CreateSchema(context.Background()))

	return store
}

func newSnapshot(t *testing.T, definition *model.Definition, options ...snapshot.Option) *snapshot.Snapshot {
	t.Helper()

	options = append([]snapshot.Option{snapshot.WithClock(fixtures.FixedClock)}, options...)

	s, err := snapshot.NewSnapshotFromModel(definition, fixtures.ModelsOf(definition), options...)
	require.NoError(t, err)

	return s
}

func categorizedSnapshot(t *testing.T, definition *model.Definition, options ...snapshot.Option) *snapshot.Snapshot {
	t.Helper()

	s := newSnapshot(t, definition, options...)
	require.NoError(t, s.CategorizeAs(snapshot.Breaking))

	return s
}

// forwardOnlySuccessor returns a changed version of the model which reuses the physical version of previous.
func forwardOnlySuccessor(t *testing.T, previous *snapshot.Snapshot) *snapshot.Snapshot {
	t.Helper()

	dataVersion, err := previous.DataVersion()
	require.NoError(t, err)

	changed := fixtures.DailyModel(previous.Name(), func(spec *model.Spec) {
		spec.Query = "SELECT id, ds, amount FROM raw.orders"
	})

	s := newSnapshot(t, changed, snapshot.WithPreviousVersions(dataVersion))
	require.NoError(t, s.CategorizeAs(snapshot.ForwardOnly))
	require.Equal(t, previous.Version(), s.Version())
	require.NotEqual(t, previous.Identifier(), s.Identifier())

	return s
}

func Test_NewStateStore_Errors(t *testing.T) {
	_, err := sqlengine.NewStateStoreFromSQLDB(nil, sqlengine.DialectSQLite)
	assert.ErrorIs(t, err, sqlengine.ErrNilDatabaseConnection)

	_, err = sqlengine.NewStateStoreFromPGXPool(nil)
	assert.ErrorIs(t, err, sqlengine.ErrNilDatabaseConnection)

	_, err = sqlengine.NewStateStoreFromSQLX(nil, sqlengine.DialectPostgres)
	assert.ErrorIs(t, err, sqlengine.ErrNilDatabaseConnection)

	db := dbtest.OpenSQLite(t)

	_, err = sqlengine.NewStateStoreFromSQLDB(db, sqlengine.Dialect("oracle"))
	assert.ErrorIs(t, err, sqlengine.ErrUnsupportedDialect)

	_, err = sqlengine.NewStateStoreFromSQLDB(db, sqlengine.DialectSQLite, sqlengine.WithSnapshotsTableName(""))
	assert.ErrorIs(t, err, sqlengine.ErrEmptySnapshotsTableName)

	_, err = sqlengine.NewStateStoreFromSQLDB(db, sqlengine.DialectSQLite, sqlengine.WithIntervalsTableName(""))
	assert.ErrorIs(t, err, sqlengine.ErrEmptyIntervalsTableName)
}

func Test_StateStore_CreateSchema_IsIdempotent(t *testing.T) {
	store := newSQLiteStore(t)

	assert.NoError(t, store.CreateSchema(context.Background()))
}

func Test_StateStore_PushAndGetSnapshots(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	orders := categorizedSnapshot(t, fixtures.DailyModel("db.orders"), snapshot.WithProject("shop"))
	customers := newSnapshot(t, fixtures.DailyModel("db.customers"))

	require.NoError(t, store.PushSnapshots(ctx, orders, customers))
	require.NoError(t, store.PushSnapshots(ctx, orders), "pushing a stored snapshot again is a no-op")

	records, err := store.GetSnapshots(
		ctx,
		orders.SnapshotID(),
		customers.SnapshotID(),
		snapshot.SnapshotID{Name: "db.unknown", Identifier: "1"},
	)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, customers.SnapshotID(), records[0].SnapshotID())
	assert.Empty(t, records[0].Version)
	assert.Nil(t, records[0].ChangeCategory)

	assert.Equal(t, orders.SnapshotID(), records[1].SnapshotID())
	assert.Equal(t, orders.Version(), records[1].Version)
	assert.Equal(t, "shop", records[1].Project)
	require.NotNil(t, records[1].ChangeCategory)
	assert.Equal(t, snapshot.Breaking, *records[1].ChangeCategory)
	assert.NotNil(t, records[1].Intervals)
	assert.Empty(t, records[1].Intervals)
	assert.NotNil(t, records[1].DevIntervals)

	restored, err := snapshot.RestoreSnapshot(records[1], orders.Model())
	require.NoError(t, err)
	assert.True(t, orders.Equal(restored))
	assert.True(t, restored.IntervalsHydrated())
}

func Test_StateStore_GetSnapshots_WithoutIDs(t *testing.T) {
	store := newSQLiteStore(t)

	records, err := store.GetSnapshots(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func Test_StateStore_Intervals(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	orders := categorizedSnapshot(t, fixtures.DailyModel("db.orders"))
	require.NoError(t, store.PushSnapshots(ctx, orders))

	require.NoError(t, store.AddInterval(ctx, orders, fixtures.DailyInterval(1, 3), false))
	require.NoError(t, store.AddInterval(ctx, orders, fixtures.DailyInterval(3, 5), false))
	require.NoError(t, store.AddInterval(ctx, orders, fixtures.DailyInterval(8, 9), false))

	intervals, err := store.GetIntervals(ctx, orders.SnapshotID())
	require.NoError(t, err)
	require.Len(t, intervals, 1)
	assert.Equal(t, orders.Version(), intervals[0].Version)
	assert.Equal(t, snapshot.Intervals{fixtures.DailyInterval(1, 5), fixtures.DailyInterval(8, 9)}, intervals[0].Intervals)
	assert.Empty(t, intervals[0].DevIntervals)

	require.NoError(t, store.RemoveInterval(ctx, orders, fixtures.DailyInterval(2, 3)))
	require.NoError(t, store.AddInterval(ctx, orders, fixtures.DailyInterval(9, 10), false))

	intervals, err = store.GetIntervals(ctx, orders.SnapshotID())
	require.NoError(t, err)
	assert.Equal(
		t,
		snapshot.Intervals{fixtures.DailyInterval(1, 2), fixtures.DailyInterval(3, 5), fixtures.DailyInterval(8, 10)},
		intervals[0].Intervals,
	)
}

func Test_StateStore_Intervals_AreSharedByVersion(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	previous := categorizedSnapshot(t, fixtures.DailyModel("db.orders"))
	successor := forwardOnlySuccessor(t, previous)
	require.NoError(t, store.PushSnapshots(ctx, previous, successor))

	require.NoError(t, store.AddInterval(ctx, previous, fixtures.DailyInterval(1, 4), false))
	require.NoError(t, store.AddInterval(ctx, successor, fixtures.DailyInterval(4, 6), true))

	intervals, err := store.GetIntervals(ctx, previous.SnapshotID(), successor.SnapshotID())
	require.NoError(t, err)
	require.Len(t, intervals, 2)

	byIdentifier := map[string]snapshot.SnapshotIntervals{
		intervals[0].Identifier: intervals[0],
		intervals[1].Identifier: intervals[1],
	}

	assert.Equal(t, snapshot.Intervals{fixtures.DailyInterval(1, 4)}, byIdentifier[previous.Identifier()].Intervals)
	assert.Empty(t, byIdentifier[previous.Identifier()].DevIntervals)

	assert.Equal(t, snapshot.Intervals{fixtures.DailyInterval(1, 4)}, byIdentifier[successor.Identifier()].Intervals)
	assert.Equal(t, snapshot.Intervals{fixtures.DailyInterval(4, 6)}, byIdentifier[successor.Identifier()].DevIntervals)
}

func Test_StateStore_Intervals_InheritOnlyBeforeEffectiveFrom(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	previous := categorizedSnapshot(t, fixtures.DailyModel("db.orders"))
	require.NoError(t, store.PushSnapshots(ctx, previous))
	require.NoError(t, store.AddInterval(ctx, previous, fixtures.DailyInterval(1, 10), false))

	successor := forwardOnlySuccessor(t, previous)
	effectiveFrom := fixtures.Day(5)
	successor.SetEffectiveFrom(&effectiveFrom)
	require.NoError(t, store.PushSnapshots(ctx, successor))
	require.NoError(t, store.AddInterval(ctx, successor, fixtures.DailyInterval(7, 8), false))

	inherited := snapshot.Intervals{fixtures.DailyInterval(1, 5), fixtures.DailyInterval(7, 8)}

	t.Run("hydrate", func(t *testing.T) {
		require.NoError(t, store.HydrateIntervals(ctx, successor))

		intervals, err := successor.Intervals()
		require.NoError(t, err)
		assert.Equal(t, inherited, intervals)

		missing, err := successor.MissingIntervals(fixtures.Day(1), fixtures.Day(10), snapshot.MissingOptions{})
		require.NoError(t, err)
		assert.Equal(
			t,
			snapshot.Intervals{
				fixtures.DailyInterval(5, 6),
				fixtures.DailyInterval(6, 7),
				fixtures.DailyInterval(8, 9),
				fixtures.DailyInterval(9, 10),
			},
			missing,
		)
	})

	t.Run("get_intervals", func(t *testing.T) {
		intervals, err := store.GetIntervals(ctx, successor.SnapshotID())
		require.NoError(t, err)
		require.Len(t, intervals, 1)
		assert.Equal(t, inherited, intervals[0].Intervals)
	})

	t.Run("get_snapshots", func(t *testing.T) {
		records, err := store.GetSnapshots(ctx, successor.SnapshotID())
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, inherited, records[0].Intervals)
	})

	t.Run("the_previous_snapshot_keeps_everything", func(t *testing.T) {
		intervals, err := store.GetIntervals(ctx, previous.SnapshotID())
		require.NoError(t, err)
		require.Len(t, intervals, 1)
		assert.Equal(t, snapshot.Intervals{fixtures.DailyInterval(1, 10)}, intervals[0].Intervals)
	})

	t.Run("removals_apply_to_every_writer", func(t *testing.T) {
		require.NoError(t, store.RemoveInterval(ctx, successor, fixtures.DailyInterval(2, 8)))

		intervals, err := store.GetIntervals(ctx, previous.SnapshotID(), successor.SnapshotID())
		require.NoError(t, err)
		require.Len(t, intervals, 2)

		byIdentifier := map[string]snapshot.Intervals{
			intervals[0].Identifier: intervals[0].Intervals,
			intervals[1].Identifier: intervals[1].Intervals,
		}

		assert.Equal(
			t,
			snapshot.Intervals{fixtures.DailyInterval(1, 2), fixtures.DailyInterval(8, 10)},
			byIdentifier[previous.Identifier()],
		)
		assert.Equal(t, snapshot.Intervals{fixtures.DailyInterval(1, 2)}, byIdentifier[successor.Identifier()])
	})
}

func Test_StateStore_AddInterval_Errors(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	uncategorized := newSnapshot(t, fixtures.DailyModel("db.orders"))
	err := store.AddInterval(ctx, uncategorized, fixtures.DailyInterval(1, 2), false)
	assert.ErrorIs(t, err, snapshot.ErrNotVersioned)

	orders := categorizedSnapshot(t, fixtures.DailyModel("db.orders"))
	err = store.AddInterval(ctx, orders, fixtures.DailyInterval(2, 2), false)
	assert.ErrorIs(t, err, snapshot.ErrInvalidInterval)

	err = store.RemoveInterval(ctx, orders, fixtures.DailyInterval(3, 1))
	assert.ErrorIs(t, err, snapshot.ErrInvalidInterval)
}

func Test_StateStore_AddSnapshotIntervals(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	orders := categorizedSnapshot(t, fixtures.DailyModel("db.orders"))
	require.NoError(t, orders.AddInterval(fixtures.Day(1), fixtures.Day(3), false))
	require.NoError(t, orders.AddInterval(fixtures.Day(5), fixtures.Day(6), false))
	require.NoError(t, store.PushSnapshots(ctx, orders))

	snapshotIntervals, err := orders.SnapshotIntervals()
	require.NoError(t, err)
	require.NoError(t, store.AddSnapshotIntervals(ctx, snapshotIntervals))

	intervals, err := store.GetIntervals(ctx, orders.SnapshotID())
	require.NoError(t, err)
	assert.Equal(t, snapshotIntervals.Intervals, intervals[0].Intervals)

	err = store.AddSnapshotIntervals(ctx, snapshot.SnapshotIntervals{Name: "db.orders", Identifier: "1"})
	assert.ErrorIs(t, err, snapshot.ErrNotVersioned)
}

func Test_StateStore_HydrateIntervals(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	definition := fixtures.DailyModel("db.orders")
	orders := categorizedSnapshot(t, definition)
	require.NoError(t, store.PushSnapshots(ctx, orders))
	require.NoError(t, store.AddInterval(ctx, orders, fixtures.DailyInterval(1, 3), false))

	record := orders.ToRecord()
	record.Intervals = nil
	record.DevIntervals = nil

	restored, err := snapshot.RestoreSnapshot(record, definition, snapshot.WithClock(fixtures.FixedClock))
	require.NoError(t, err)
	require.False(t, restored.IntervalsHydrated())

	require.NoError(t, store.HydrateIntervals(ctx, restored))

	intervals, err := restored.Intervals()
	require.NoError(t, err)
	assert.Equal(t, snapshot.Intervals{fixtures.DailyInterval(1, 3)}, intervals)

	missing, err := restored.MissingIntervals(fixtures.Day(1), fixtures.Day(5), snapshot.MissingOptions{})
	require.NoError(t, err)
	assert.Equal(t, snapshot.Intervals{fixtures.DailyInterval(3, 4), fixtures.DailyInterval(4, 5)}, missing)

	err = store.HydrateIntervals(ctx, newSnapshot(t, definition))
	assert.ErrorIs(t, err, snapshot.ErrNotVersioned)
}

func Test_StateStore_UpdateSnapshots(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	orders := newSnapshot(t, fixtures.DailyModel("db.orders"))
	require.NoError(t, store.PushSnapshots(ctx, orders))

	require.NoError(t, orders.CategorizeAs(snapshot.NonBreaking))
	require.NoError(t, store.UpdateSnapshots(ctx, orders))

	records, err := store.GetSnapshots(ctx, orders.SnapshotID())
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].ChangeCategory)
	assert.Equal(t, snapshot.NonBreaking, *records[0].ChangeCategory)
	assert.Equal(t, orders.Version(), records[0].Version)

	unknown := newSnapshot(t, fixtures.DailyModel("db.unknown"))
	err = store.UpdateSnapshots(ctx, unknown)
	assert.ErrorIs(t, err, sqlengine.ErrSnapshotNotFound)
}

func Test_StateStore_UnpauseAndExpire(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	orders := categorizedSnapshot(t, fixtures.DailyModel("db.orders"))
	customers := categorizedSnapshot(t, fixtures.DailyModel("db.customers"), snapshot.WithTTL("in 1 day"))
	require.NoError(t, store.PushSnapshots(ctx, orders, customers))

	expired, err := store.ExpiredSnapshots(ctx, fixtures.FixedNow.Add(12*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, expired)

	expired, err = store.ExpiredSnapshots(ctx, fixtures.FixedNow.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []snapshot.SnapshotID{customers.SnapshotID()}, expired)

	expired, err = store.ExpiredSnapshots(ctx, fixtures.FixedNow.Add(8*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []snapshot.SnapshotID{customers.SnapshotID(), orders.SnapshotID()}, expired)

	require.NoError(t, store.UnpauseSnapshots(ctx, fixtures.FixedNow.Add(90*time.Minute), orders))

	expired, err = store.ExpiredSnapshots(ctx, fixtures.FixedNow.Add(8*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []snapshot.SnapshotID{customers.SnapshotID()}, expired)

	records, err := store.GetSnapshots(ctx, orders.SnapshotID())
	require.NoError(t, err)
	require.NotNil(t, records[0].UnpausedTS)
	assert.Equal(t, fixtures.FixedNow.UnixMilli(), *records[0].UnpausedTS, "unpaused time is floored to the schedule")
}

func Test_StateStore_DeleteSnapshots(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	previous := categorizedSnapshot(t, fixtures.DailyModel("db.orders"))
	successor := forwardOnlySuccessor(t, previous)
	require.NoError(t, store.PushSnapshots(ctx, previous, successor))
	require.NoError(t, store.AddInterval(ctx, previous, fixtures.DailyInterval(1, 4), false))
	require.NoError(t, store.AddInterval(ctx, successor, fixtures.DailyInterval(4, 6), true))

	deleted, err := store.DeleteSnapshots(ctx, successor.SnapshotID())
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	records, err := store.GetSnapshots(ctx, previous.SnapshotID(), successor.SnapshotID())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, snapshot.Intervals{fixtures.DailyInterval(1, 4)}, records[0].Intervals, "shared intervals survive")

	// pushing the successor again must not resurrect its development intervals
	require.NoError(t, store.PushSnapshots(ctx, successor))

	intervals, err := store.GetIntervals(ctx, successor.SnapshotID())
	require.NoError(t, err)
	require.Len(t, intervals, 1)
	assert.Empty(t, intervals[0].DevIntervals)

	deleted, err = store.DeleteSnapshots(ctx, previous.SnapshotID(), successor.SnapshotID())
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	require.NoError(t, store.PushSnapshots(ctx, previous))

	intervals, err = store.GetIntervals(ctx, previous.SnapshotID())
	require.NoError(t, err)
	assert.Empty(t, intervals[0].Intervals, "orphaned shared intervals are removed")

	deleted, err = store.DeleteSnapshots(ctx, snapshot.SnapshotID{Name: "db.unknown", Identifier: "1"})
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func Test_StateStore_DeleteSnapshots_RollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	db := dbtest.OpenSQLite(t)

	store, err := sqlengine.NewStateStoreFromSQLDB(db, sqlengine.DialectSQLite)
	require.NoError(t, err)
	require.NoError(t, store.CreateSchema(ctx))

	orders := categorizedSnapshot(t, fixtures.DailyModel("db.orders"))
	require.NoError(t, store.PushSnapshots(ctx, orders))

	// the interval delete fails after the snapshot delete succeeded
	_, err = db.ExecContext(ctx, `DROP TABLE "intervals"`)
	require.NoError(t, err)

	_, err = store.DeleteSnapshots(ctx, orders.SnapshotID())
	assert.ErrorIs(t, err, sqlengine.ErrWritingStateFailed)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM "snapshots"`).Scan(&count))
	assert.Equal(t, 1, count, "the snapshot delete was rolled back")
}

func Test_StateStore_SQLX(t *testing.T) {
	ctx := context.Background()

	store, err := sqlengine.NewStateStoreFromSQLX(
		dbtest.OpenSQLiteX(t),
		sqlengine.DialectSQLite,
		sqlengine.WithSnapshotsTableName("state_snapshots"),
		sqlengine.WithIntervalsTableName("state_intervals"),
	)
	require.NoError(t, err)
	require.NoError(t, store.CreateSchema(ctx))

	orders := categorizedSnapshot(t, fixtures.DailyModel("db.orders"))
	require.NoError(t, store.PushSnapshots(ctx, orders))
	require.NoError(t, store.AddInterval(ctx, orders, fixtures.DailyInterval(1, 2), false))

	records, err := store.GetSnapshots(ctx, orders.SnapshotID())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, snapshot.Intervals{fixtures.DailyInterval(1, 2)}, records[0].Intervals)
}

func Test_StateStore_QueryFailure(t *testing.T) {
	db := dbtest.OpenSQLite(t)

	store, err := sqlengine.NewStateStoreFromSQLDB(db, sqlengine.DialectSQLite)
	require.NoError(t, err)

	// no schema
	_, err = store.GetSnapshots(context.Background(), snapshot.SnapshotID{Name: "db.orders", Identifier: "1"})
	assert.ErrorIs(t, err, sqlengine.ErrQueryingStateFailed)

	require.NoError(t, db.Close())

	err = store.CreateSchema(context.Background())
	assert.ErrorIs(t, err, sqlengine.ErrWritingStateFailed)
}
