package adapters

import (
	"context"
	"database/sql"
)

// sqlQueryer is what sql.DB and sqlx.DB have in common for our purposes.
type sqlQueryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

func queryStd(ctx context.Context, db sqlQueryer, query string) (DBRows, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}

	return &stdRows{rows: rows}, nil
}

func execStd(ctx context.Context, db sqlQueryer, query string) (DBResult, error) {
	result, err := db.ExecContext(ctx, query)
	if err != nil {
		return nil, err
	}

	return result, nil
}

func execInTxStd(ctx context.Context, db sqlQueryer, queries []string) ([]DBResult, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	results := make([]DBResult, 0, len(queries))

	for _, query := range queries {
		result, execErr := tx.ExecContext(ctx, query)
		if execErr != nil {
			_ = tx.Rollback()
			return nil, execErr
		}

		results = append(results, result)
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	return results, nil
}

// stdRows wraps sql.Rows.
type stdRows struct {
	rows *sql.Rows
}

func (s *stdRows) Next() bool {
	return s.rows.Next()
}

func (s *stdRows) Scan(dest ...any) error {
	return s.rows.Scan(dest...)
}

func (s *stdRows) Err() error {
	return s.rows.Err()
}

func (s *stdRows) Close() error {
	return s.rows.Close()
}
