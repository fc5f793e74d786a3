package adapters

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// SQLXAdapter implements DBAdapter for sqlx.DB.
type SQLXAdapter struct {
	db *sqlx.DB
}

// NewSQLXAdapter creates a new SQLX adapter.
func NewSQLXAdapter(db *sqlx.DB) *SQLXAdapter {
	return &SQLXAdapter{db: db}
}

// Query runs a statement returning rows.
func (s *SQLXAdapter) Query(ctx context.Context, query string) (DBRows, error) {
	return queryStd(ctx, s.db, query)
}

// Exec runs a statement without rows.
func (s *SQLXAdapter) Exec(ctx context.Context, query string) (DBResult, error) {
	return execStd(ctx, s.db, query)
}

// ExecInTx runs the statements in one transaction.
func (s *SQLXAdapter) ExecInTx(ctx context.Context, queries ...string) ([]DBResult, error) {
	return execInTxStd(ctx, s.db, queries)
}
