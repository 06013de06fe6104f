package pipeline

import (
	"context"
	"fmt"

	"sparkify/internal/storage"
)

// FileTx is the transaction scope of one input file.
//
// The underlying storage.Tx is opened on first use. Abandon rolls it back
// after a failed row group, and the next statement opens a fresh one, so
// rows written before the failure in the same file are discarded. Commit
// ends the file.
type FileTx struct {
	repo    storage.Repository
	tx      storage.Tx
	pending int
}

func newFileTx(repo storage.Repository) *FileTx {
	return &FileTx{repo: repo}
}

func (f *FileTx) begin(ctx context.Context) error {
	if f.tx != nil {
		return nil
	}
	tx, err := f.repo.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	f.tx = tx
	return nil
}

// Exec runs one statement in the open transaction.
func (f *FileTx) Exec(ctx context.Context, query string, args ...any) error {
	if err := f.begin(ctx); err != nil {
		return err
	}
	if err := f.tx.Exec(ctx, query, args...); err != nil {
		return err
	}
	f.pending++
	return nil
}

// QueryRow runs a single-row query in the open transaction.
func (f *FileTx) QueryRow(ctx context.Context, query string, args ...any) storage.Row {
	if err := f.begin(ctx); err != nil {
		return errRow{err: err}
	}
	return f.tx.QueryRow(ctx, query, args...)
}

// Abandon rolls back the open transaction and reports how many written
// rows it discarded.
func (f *FileTx) Abandon(ctx context.Context) (int, error) {
	if f.tx == nil {
		return 0, nil
	}
	n := f.pending
	err := f.tx.Rollback(ctx)
	f.tx, f.pending = nil, 0
	if err != nil {
		return n, fmt.Errorf("rollback: %w", err)
	}
	return n, nil
}

// Commit commits the open transaction, if any.
func (f *FileTx) Commit(ctx context.Context) error {
	if f.tx == nil {
		return nil
	}
	err := f.tx.Commit(ctx)
	f.tx, f.pending = nil, 0
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close rolls back anything not committed. It is safe after Commit.
func (f *FileTx) Close(ctx context.Context) {
	_, _ = f.Abandon(ctx)
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }
