package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"sparkify/internal/config"
	"sparkify/internal/metrics"
	"sparkify/internal/metrics/datadog"
	"sparkify/internal/pipeline"
	"sparkify/internal/storage"

	// register all backends with the storage factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "sparkify/internal/storage/all"
)

const usage = "usage: etl [-config pipeline.json|.yaml] [-song-data dir] [-log-data dir] [-storage kind] [-dsn dsn] [-metrics-backend none|datadog] [-validate] [-v]"

// runner is the part of *pipeline.Runner the CLI drives.
type runner interface {
	Run(ctx context.Context, songRoot, logRoot string) error
}

// metricsBackend is what initMetrics needs from a constructed backend.
type metricsBackend interface {
	Close() error
}

// appDeps are the side-effecting seams of runMain.
type appDeps struct {
	loadEnv     func() error
	readFile    func(string) ([]byte, error)
	decode      func(path string, data []byte, p *config.Pipeline) error
	initMetrics func(ctx context.Context, jobName, backendName, runID string) (func(), error)
	newRunner   func(ctx context.Context, p config.Pipeline, logger pipeline.Logger) (runner, func(), error)
}

// Package-level seams for initMetrics.
var (
	newDatadogBackend = func(ctx context.Context, opts datadog.Options) (metricsBackend, error) {
		return datadog.NewBackend(ctx, opts)
	}
	setMetricsBackend = func(b any) {
		if mb, ok := b.(metrics.Backend); ok {
			metrics.SetBackend(mb)
		}
	}
	logPrintf = log.Printf
	newRunID  = uuid.NewString
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr, defaultDeps())
	stop()
	os.Exit(code)
}

func defaultDeps() appDeps {
	return appDeps{
		loadEnv:     func() error { return config.LoadDotEnv() },
		readFile:    os.ReadFile,
		decode:      config.Decode,
		initMetrics: initMetrics,
		newRunner:   newStorageRunner,
	}
}

// runMain loads the pipeline config, applies flag overrides, validates,
// initializes metrics and runs the song pass then the log pass.
//
// Exit codes: 0 success, 1 runtime or config error, 2 usage error.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps appDeps) int {
	fs := flag.NewFlagSet("etl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		cfgPath    = fs.String("config", "", "pipeline config path (.json, .yaml, .yml)")
		songData   = fs.String("song-data", "", "song metadata root (overrides source.song_data)")
		logData    = fs.String("log-data", "", "event log root (overrides source.log_data)")
		kind       = fs.String("storage", "", "storage backend: postgres, sqlite, mssql (overrides storage.kind)")
		dsn        = fs.String("dsn", "", "storage DSN (overrides storage.dsn and DATABASE_URL)")
		metricsFlg = fs.String("metrics-backend", "", "metrics backend: none, datadog (default from METRICS_BACKEND)")
		validate   = fs.Bool("validate", false, "validate the configuration and exit")
		verbose    = fs.Bool("v", false, "enable verbose logs")
	)

	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(stderr, usage)
		return 2
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected arguments: %s\n%s\n", strings.Join(fs.Args(), " "), usage)
		return 2
	}

	if err := deps.loadEnv(); err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	var p config.Pipeline
	if path := strings.TrimSpace(*cfgPath); path != "" {
		raw, err := deps.readFile(path)
		if err != nil {
			fmt.Fprintf(stderr, "read config: %v\n", err)
			return 1
		}
		if err := deps.decode(path, raw, &p); err != nil {
			fmt.Fprintf(stderr, "parse config: %v\n", err)
			return 1
		}
	}

	applyOverrides(&p, *songData, *logData, *kind, *dsn)
	p.ApplyDefaults()

	issues := config.ValidatePipeline(p)
	for _, iss := range issues {
		fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		fmt.Fprintln(stderr, "configuration is invalid")
		return 1
	}
	if *validate {
		fmt.Fprintln(stdout, "ok")
		return 0
	}

	runID := newRunID()
	logger := log.New(stderr, "", log.LstdFlags)
	if *verbose {
		logger.Printf("pipeline: run=%s job=%s storage=%s song_data=%s log_data=%s on_row_error=%s",
			runID, p.Job, p.Storage.Kind, p.Source.SongData, p.Source.LogData, p.OnRowError)
	}

	backendName := *metricsFlg
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	cleanup, err := deps.initMetrics(ctx, p.Job, backendName, runID)
	if err != nil {
		fmt.Fprintf(stderr, "init metrics: %v\n", err)
		return 1
	}
	defer cleanup()

	r, closeRunner, err := deps.newRunner(ctx, p, logger)
	if err != nil {
		fmt.Fprintf(stderr, "open storage: %v\n", err)
		return 1
	}
	defer closeRunner()

	start := time.Now()
	if err := r.Run(ctx, p.Source.SongData, p.Source.LogData); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(stderr, "run: interrupted; files committed so far stay loaded")
			return 1
		}
		fmt.Fprintf(stderr, "run: %v\n", err)
		return 1
	}
	if *verbose {
		logger.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}

	fmt.Fprintln(stdout, "ok")
	return 0
}

// applyOverrides copies non-empty flag values over the config. DATABASE_URL
// fills the DSN when neither the flag nor the file set one.
func applyOverrides(p *config.Pipeline, songData, logData, kind, dsn string) {
	if songData != "" {
		p.Source.SongData = songData
	}
	if logData != "" {
		p.Source.LogData = logData
	}
	if kind != "" {
		p.Storage.Kind = kind
	}
	switch {
	case dsn != "":
		p.Storage.DSN = dsn
	case p.Storage.DSN == "":
		p.Storage.DSN = os.Getenv("DATABASE_URL")
	}
}

// newStorageRunner opens the configured backend, makes sure the five tables
// exist and builds a pipeline.Runner on it.
func newStorageRunner(ctx context.Context, p config.Pipeline, logger pipeline.Logger) (runner, func(), error) {
	loc, err := p.Location()
	if err != nil {
		return nil, nil, err
	}

	repo, err := storage.New(ctx, storage.Config{Kind: p.Storage.Kind, DSN: p.Storage.DSN})
	if err != nil {
		return nil, nil, err
	}
	if err := storage.EnsureSchema(ctx, repo); err != nil {
		repo.Close()
		return nil, nil, err
	}

	opts := pipeline.Options{
		Ext:        p.Source.Ext,
		OnRowError: p.OnRowError,
		Logger:     logger,
	}
	opts.Song.CorrectArtistLongitude = p.Transform.CorrectArtistLongitude
	opts.Log.SongPlayPage = p.Transform.SongPlayPage
	opts.Log.Location = loc

	r, err := pipeline.NewRunner(repo, opts)
	if err != nil {
		repo.Close()
		return nil, nil, err
	}
	return r, repo.Close, nil
}

// initMetrics wires the selected backend into the metrics package.
// The returned cleanup is never nil and flushes the backend.
func initMetrics(ctx context.Context, jobName, backendName, runID string) (func(), error) {
	switch strings.ToLower(strings.TrimSpace(backendName)) {
	case "", "none", "noop":
		return func() {}, nil

	case "datadog", "dd":
		tags := datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))
		if runID != "" {
			tags = append(tags, "run:"+runID)
		}
		b, err := newDatadogBackend(ctx, datadog.Options{
			JobName:    jobName,
			Tags:       tags,
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			return func() {}, datadog.WrapInitErr(err)
		}
		setMetricsBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				logPrintf("metrics: datadog close error: %v", err)
			}
		}, nil

	default:
		return func() {}, fmt.Errorf("unknown metrics backend %q (want none|datadog)", backendName)
	}
}
