package adapters

import "context"

// DBAdapter is the set of database operations the state store needs.
type DBAdapter interface {
	Query(ctx context.Context, query string) (DBRows, error)
	Exec(ctx context.Context, query string) (DBResult, error)

	// ExecInTx runs the statements in one transaction. It rolls back on the first failing statement.
	ExecInTx(ctx context.Context, queries ...string) ([]DBResult, error)
}

// DBRows is a forward-only cursor over query results.
type DBRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// DBResult reports the outcome of a statement.
type DBResult interface {
	RowsAffected() (int64, error)
}
