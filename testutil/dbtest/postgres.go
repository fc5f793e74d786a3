package dbtest

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
)

// PostgresDSNEnv names the environment variable holding the DSN of the test database.
const PostgresDSNEnv = "SNAPSHOTS_PG_DSN"

// PostgresDSN returns the DSN of the test database or skips the test.
func PostgresDSN(t testing.TB) string {
	t.Helper()

	dsn := os.Getenv(PostgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s is not set", PostgresDSNEnv)
	}

	return dsn
}

// OpenPGXPool connects a pgx pool to the test database.
func OpenPGXPool(t testing.TB) *pgxpool.Pool {
	t.Helper()

	config, err := pgxpool.ParseConfig(PostgresDSN(t))
	if err != nil {
		t.Fatalf("failed to parse postgres dsn: %v", err)
	}

	config.MaxConns = 4
	config.ConnConfig.ConnectTimeout = 5 * time.Second

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}

	t.Cleanup(pool.Close)

	return pool
}

// OpenPostgresSQLDB connects a sql.DB through lib/pq to the test database.
func OpenPostgresSQLDB(t testing.TB) *sql.DB {
	t.Helper()

	db, err := sql.Open("postgres", PostgresDSN(t))
	if err != nil {
		t.Fatalf("failed to open postgres database: %v", err)
	}

	if pingErr := db.PingContext(context.Background()); pingErr != nil {
		t.Fatalf("failed to ping postgres: %v", pingErr)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

// OpenPostgresSQLX is OpenPostgresSQLDB wrapped in sqlx.
func OpenPostgresSQLX(t testing.TB) *sqlx.DB {
	t.Helper()

	return sqlx.NewDb(OpenPostgresSQLDB(t), "postgres")
}
