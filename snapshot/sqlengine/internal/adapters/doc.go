// Package adapters wraps the supported database handles behind one small interface.
//
// The state store builds fully interpolated SQL with goqu and hands it to a DBAdapter.
// pgxpool.Pool, sql.DB (PostgreSQL through lib/pq or pgx stdlib, SQLite through modernc)
// and sqlx.DB are supported.
package adapters
