package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"sparkify/internal/storage"
)

/*
Repo implements storage.Repository for Postgres.

It holds a single pgx connection. The loader is strictly serial, so a pool
would only add idle connections; every statement and transaction shares conn.
*/
type Repo struct {
	conn  *pgx.Conn
	stmts storage.Statements
}

// New connects to Postgres and verifies the connection with a ping.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	conn, err := pgx.Connect(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	stmts, err := Statements()
	if err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}
	return &Repo{conn: conn, stmts: stmts}, nil
}

// Close closes the connection.
func (r *Repo) Close() {
	_ = r.conn.Close(context.Background())
}

func (r *Repo) Kind() string { return "postgres" }

func (r *Repo) Statements() storage.Statements { return r.stmts }

func (r *Repo) Exec(ctx context.Context, query string, args ...any) error {
	_, err := r.conn.Exec(ctx, query, args...)
	return err
}

func (r *Repo) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := r.conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin: %w", err)
	}
	return &pgTx{tx: tx}, nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Exec(ctx context.Context, query string, args ...any) error {
	_, err := t.tx.Exec(ctx, query, args...)
	return err
}

func (t *pgTx) QueryRow(ctx context.Context, query string, args ...any) storage.Row {
	return pgRow{row: t.tx.QueryRow(ctx, query, args...)}
}

func (t *pgTx) Commit(ctx context.Context) error { return t.tx.Commit(ctx) }

func (t *pgTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

type pgRow struct {
	row pgx.Row
}

func (r pgRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNoRows
	}
	return err
}

var (
	_ storage.Repository = (*Repo)(nil)
	_ storage.Tx         = (*pgTx)(nil)
)
