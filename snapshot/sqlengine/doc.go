// Package sqlengine persists snapshot state in a SQL database.
//
// Two tables are used. The snapshots table holds one row per snapshot with its record encoded as JSON
// (without intervals) next to the columns needed for lookups and expiry. The intervals table is an
// append-only log of added and removed intervals which is replayed on read. Non-development intervals
// are shared by all snapshots with the same name and version, development intervals belong to a single
// snapshot.
//
// PostgreSQL is supported through pgx, database/sql and sqlx, SQLite through database/sql and sqlx.
//
// Usage examples:
//
//	pool, _ := pgxpool.New(ctx, dsn)
//	store, _ := sqlengine.NewStateStoreFromPGXPool(pool, sqlengine.WithLogger(logger))
//	_ = store.CreateSchema(ctx)
//
//	_ = store.PushSnapshots(ctx, snaps...)
//	_ = store.AddInterval(ctx, snap, interval, false)
//	_ = store.HydrateIntervals(ctx, snaps...)
//
//	db, _ := sql.Open("sqlite", "file:state.db")
//	store, _ = sqlengine.NewStateStoreFromSQLDB(db, sqlengine.DialectSQLite)
package sqlengine
