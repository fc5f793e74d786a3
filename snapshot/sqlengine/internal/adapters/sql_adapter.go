package adapters

import (
	"context"
	"database/sql"
)

// SQLAdapter implements DBAdapter for sql.DB.
type SQLAdapter struct {
	db *sql.DB
}

// NewSQLAdapter creates a new SQL adapter.
func NewSQLAdapter(db *sql.DB) *SQLAdapter {
	return &SQLAdapter{db: db}
}

// Query runs a statement returning rows.
func (s *SQLAdapter) Query(ctx context.Context, query string) (DBRows, error) {
	return queryStd(ctx, s.db, query)
}

// Exec runs a statement without rows.
func (s *SQLAdapter) Exec(ctx context.Context, query string) (DBResult, error) {
	return execStd(ctx, s.db, query)
}

// ExecInTx runs the statements in one transaction.
func (s *SQLAdapter) ExecInTx(ctx context.Context, queries ...string) ([]DBResult, error) {
	return execInTxStd(ctx, s.db, queries)
}
