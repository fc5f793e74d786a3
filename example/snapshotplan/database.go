package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"  // postgres driver for database/sql and sqlx
	_ "modernc.org/sqlite" // sqlite driver for database/sql

	"github.com/AntonStoeckl/versioned-snapshots-go/snapshot/sqlengine"
)

const connectTimeout = 5 * time.Second

// openStateStore connects to the configured database and creates the state store schema.
// The returned close function releases the connection.
func openStateStore(
	ctx context.Context,
	cfg DatabaseConfig,
	options ...sqlengine.Option,
) (*sqlengine.StateStore, func(), error) {

	options = append(
		options,
		sqlengine.WithSnapshotsTableName(cfg.SnapshotsTable),
		sqlengine.WithIntervalsTableName(cfg.IntervalsTable),
	)

	var (
		store     *sqlengine.StateStore
		closeFunc func()
		err       error
	)

	switch cfg.Driver {
	case driverPGX:
		store, closeFunc, err = openPGX(ctx, cfg, options)
	case driverPQ:
		store, closeFunc, err = openSQLDB(ctx, "postgres", cfg.DSN, sqlengine.DialectPostgres, cfg.MaxConns, options)
	case driverSQLite:
		store, closeFunc, err = openSQLDB(ctx, "sqlite", cfg.DSN, sqlengine.DialectSQLite, 1, options)
	case driverSQLX:
		store, closeFunc, err = openSQLX(ctx, cfg, options)
	default:
		err = fmt.Errorf("%w: unknown database driver %q", ErrInvalidConfig, cfg.Driver)
	}

	if err != nil {
		return nil, nil, err
	}

	if err = store.CreateSchema(ctx); err != nil {
		closeFunc()
		return nil, nil, err
	}

	return store, closeFunc, nil
}

func openPGX(ctx context.Context, cfg DatabaseConfig, options []sqlengine.Option) (*sqlengine.StateStore, func(), error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, nil, errors.Join(ErrInvalidConfig, err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.ConnConfig.ConnectTimeout = connectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, err
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	store, err := sqlengine.NewStateStoreFromPGXPool(pool, options...)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	return store, pool.Close, nil
}

func openSQLDB(
	ctx context.Context,
	driverName string,
	dsn string,
	dialect sqlengine.Dialect,
	maxConns int32,
	options []sqlengine.Option,
) (*sqlengine.StateStore, func(), error) {

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, nil, err
	}

	db.SetMaxOpenConns(int(maxConns))

	closeFunc := func() { _ = db.Close() }

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err = db.PingContext(pingCtx); err != nil {
		closeFunc()
		return nil, nil, err
	}

	store, err := sqlengine.NewStateStoreFromSQLDB(db, dialect, options...)
	if err != nil {
		closeFunc()
		return nil, nil, err
	}

	return store, closeFunc, nil
}

func openSQLX(ctx context.Context, cfg DatabaseConfig, options []sqlengine.Option) (*sqlengine.StateStore, func(), error) {
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	db, err := sqlx.ConnectContext(connectCtx, "postgres", cfg.DSN)
	if err != nil {
		return nil, nil, err
	}

	db.SetMaxOpenConns(int(cfg.MaxConns))

	closeFunc := func() { _ = db.Close() }

	store, err := sqlengine.NewStateStoreFromSQLX(db, sqlengine.DialectPostgres, options...)
	if err != nil {
		closeFunc()
		return nil, nil, err
	}

	return store, closeFunc, nil
}
