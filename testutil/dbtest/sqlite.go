package dbtest

import (
	"database/sql"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // sqlite driver
)

const sqliteDriverName = "sqlite"

// OpenSQLite opens a private in-memory SQLite database which is closed when the test ends.
// It is limited to one connection, every new connection would see an empty database.
func OpenSQLite(t testing.TB) *sql.DB {
	t.Helper()

	db, err := sql.Open(sqliteDriverName, ":memory:")
	if err != nil {
		t.Fatalf("failed to open sqlite database: %v", err)
	}

	db.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

// OpenSQLiteX is OpenSQLite wrapped in sqlx.
func OpenSQLiteX(t testing.TB) *sqlx.DB {
	t.Helper()

	return sqlx.NewDb(OpenSQLite(t), sqliteDriverName)
}
