package storage

import (
	"context"
	"database/sql"
	"errors"
)

// SQLTx adapts *sql.Tx to Tx for database/sql backends (sqlite, mssql).
type SQLTx struct {
	tx *sql.Tx
}

// BeginSQL opens a transaction on db with the driver's default isolation.
func BeginSQL(ctx context.Context, db *sql.DB) (*SQLTx, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &SQLTx{tx: tx}, nil
}

func (t *SQLTx) Exec(ctx context.Context, query string, args ...any) error {
	_, err := t.tx.ExecContext(ctx, query, args...)
	return err
}

func (t *SQLTx) QueryRow(ctx context.Context, query string, args ...any) Row {
	return sqlRow{row: t.tx.QueryRowContext(ctx, query, args...)}
}

func (t *SQLTx) Commit(context.Context) error { return t.tx.Commit() }

func (t *SQLTx) Rollback(context.Context) error { return t.tx.Rollback() }

type sqlRow struct {
	row *sql.Row
}

func (r sqlRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNoRows
	}
	return err
}

var _ Tx = (*SQLTx)(nil)
