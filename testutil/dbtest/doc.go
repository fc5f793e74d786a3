// Package dbtest opens databases for state store tests.
//
// SQLite databases live in memory and need no setup. PostgreSQL tests run against the database
// addressed by SNAPSHOTS_PG_DSN and are skipped when it is not set.
package dbtest
