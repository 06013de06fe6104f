// Package pipeline drives the two loader passes: walk an input tree, hand
// each file to a handler inside its own transaction, commit, and report
// progress.
//
// Files are processed one at a time in discovery order. A crash leaves
// every committed file loaded; rerunning reprocesses everything, which is
// harmless for songs, artists and users and duplicates time and songplay
// rows.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"sparkify/internal/config"
	"sparkify/internal/metrics"
	"sparkify/internal/storage"
	"sparkify/internal/transformer"
	"sparkify/internal/walker"
)

// Logger is the subset of *log.Logger the pipeline writes to.
type Logger interface {
	Printf(format string, v ...any)
}

// Handler loads one input file through ftx.
type Handler interface {
	// Pass names the pass for logs and metric labels ("song", "log").
	Pass() string
	Handle(ctx context.Context, ftx *FileTx, path string) (FileReport, error)
}

// Options configures a Runner.
type Options struct {
	// Ext selects input files; empty means ".json".
	Ext string
	// OnRowError is config.OnRowErrorContinue (default) or config.OnRowErrorAbort.
	OnRowError string

	Song transformer.SongOptions
	Log  transformer.LogOptions

	// Logger receives progress lines. nil discards them.
	Logger Logger
}

// Runner owns the storage handle for a run.
type Runner struct {
	repo  storage.Repository
	stmts storage.Statements
	opts  Options
	log   Logger

	warnedLongitude bool
}

// NewRunner checks the backend's statement set and the row error policy.
func NewRunner(repo storage.Repository, opts Options) (*Runner, error) {
	if repo == nil {
		return nil, fmt.Errorf("pipeline: nil repository")
	}
	stmts := repo.Statements()
	if err := stmts.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	if opts.Ext == "" {
		opts.Ext = config.DefaultExt
	}
	switch opts.OnRowError {
	case "":
		opts.OnRowError = config.OnRowErrorContinue
	case config.OnRowErrorContinue, config.OnRowErrorAbort:
	default:
		return nil, fmt.Errorf("pipeline: unknown on_row_error policy %q", opts.OnRowError)
	}

	lg := opts.Logger
	if lg == nil {
		lg = log.New(io.Discard, "", 0)
	}
	return &Runner{repo: repo, stmts: stmts, opts: opts, log: lg}, nil
}

// Run loads songRoot with the song handler, then logRoot with the log
// handler. The log pass starts only after the song pass succeeded, so
// songplay lookups see every song.
func (r *Runner) Run(ctx context.Context, songRoot, logRoot string) error {
	if _, err := r.Process(ctx, songRoot, r.SongHandler()); err != nil {
		return err
	}
	if _, err := r.Process(ctx, logRoot, r.LogHandler()); err != nil {
		return err
	}
	return nil
}

// Process walks root and loads every matching file with h, committing
// after each file. The first handler or commit error stops the pass and is
// returned; files committed before it stay loaded.
func (r *Runner) Process(ctx context.Context, root string, h Handler) (PassReport, error) {
	start := time.Now()
	step := h.Pass() + "_pass"
	rep := PassReport{Pass: h.Pass(), Root: root}

	files := walker.Find(root, r.opts.Ext)
	rep.Files = len(files)
	r.log.Printf("%d files found in %s", len(files), root)

	for i, path := range files {
		if err := ctx.Err(); err != nil {
			metrics.RecordStep(step, "canceled", time.Since(start).Seconds())
			return rep, err
		}

		fr, err := r.processFile(ctx, h, path)
		if err != nil {
			metrics.IncCounter(metrics.FilesTotal, 1, metrics.Labels{"pass": h.Pass(), "status": "error"})
			metrics.RecordStep(step, "error", time.Since(start).Seconds())
			r.log.Printf("stage=%s file=%s status=error err=%v", step, path, err)
			return rep, fmt.Errorf("%s pass: %s: %w", h.Pass(), path, err)
		}

		status := "ok"
		if len(fr.Failed) > 0 {
			status = "partial"
			r.log.Printf("stage=%s file=%s status=partial failed=%d discarded=%d %s",
				step, path, len(fr.Failed), fr.Discarded, formatCounts(fr.Inserted))
		}
		metrics.IncCounter(metrics.FilesTotal, 1, metrics.Labels{"pass": h.Pass(), "status": status})
		for table, n := range fr.Inserted {
			metrics.IncCounter(metrics.RecordsTotal, float64(n), metrics.Labels{"kind": table})
		}

		rep.add(fr)
		r.log.Printf("%d/%d files processed.", i+1, len(files))
	}

	metrics.RecordStep(step, "ok", time.Since(start).Seconds())
	r.log.Printf("stage=%s files=%d failed_rows=%d discarded=%d elapsed_ms=%d %s",
		step, rep.Processed, len(rep.Failed), rep.Discarded, durMS(time.Since(start)), formatCounts(rep.Inserted))
	return rep, nil
}

func (r *Runner) processFile(ctx context.Context, h Handler, path string) (FileReport, error) {
	ftx := newFileTx(r.repo)
	defer ftx.Close(ctx)

	fr, err := h.Handle(ctx, ftx, path)
	if err != nil {
		return fr, err
	}
	if err := ftx.Commit(ctx); err != nil {
		return fr, err
	}
	return fr, nil
}

// insertGroup writes one row group and applies the row error policy.
// Under "continue" a failure is logged, the file transaction is rolled back
// and nil is returned so the handler moves on.
func (r *Runner) insertGroup(ctx context.Context, ftx *FileTx, fr *FileReport, table, key, query string, args []any) error {
	err := ftx.Exec(ctx, query, args...)
	if err == nil {
		fr.Inserted[table]++
		return nil
	}

	res := Result{Table: table, Key: key, Err: err}
	fr.Failed = append(fr.Failed, res)
	metrics.IncCounter(metrics.RowErrorsTotal, 1, metrics.Labels{"table": table})

	if r.opts.OnRowError == config.OnRowErrorAbort {
		return fmt.Errorf("insert %s %s: %w", table, key, err)
	}

	n, rbErr := ftx.Abandon(ctx)
	fr.Discarded += n
	r.log.Printf("stage=insert file=%s %s; rolled back %d rows", fr.Path, res, n)
	if rbErr != nil {
		return rbErr
	}
	return nil
}

func durMS(d time.Duration) int64 { return d.Milliseconds() }
