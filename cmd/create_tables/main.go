// create_tables drops the five star schema tables and creates them empty.
// Run it before the first load, or to start over.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"sparkify/internal/config"
	"sparkify/internal/storage"

	_ "sparkify/internal/storage/all"
)

const usage = "usage: create_tables [-config pipeline.json|.yaml] [-storage kind] [-dsn dsn]"

type appDeps struct {
	loadEnv  func() error
	load     func(path string) (config.Pipeline, error)
	openRepo func(ctx context.Context, cfg storage.Config) (storage.Repository, error)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr, appDeps{
		loadEnv:  func() error { return config.LoadDotEnv() },
		load:     config.Load,
		openRepo: storage.New,
	})
	stop()
	os.Exit(code)
}

func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps appDeps) int {
	fs := flag.NewFlagSet("create_tables", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfgPath := fs.String("config", "", "pipeline config path (.json, .yaml, .yml)")
	kind := fs.String("storage", "", "storage backend: postgres, sqlite, mssql")
	dsn := fs.String("dsn", "", "storage DSN (overrides storage.dsn and DATABASE_URL)")

	if err := fs.Parse(args); err != nil || fs.NArg() > 0 {
		fmt.Fprintln(stderr, usage)
		return 2
	}

	if err := deps.loadEnv(); err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	var p config.Pipeline
	if path := strings.TrimSpace(*cfgPath); path != "" {
		var err error
		if p, err = deps.load(path); err != nil {
			fmt.Fprintf(stderr, "%v\n", err)
			return 1
		}
	}
	if *kind != "" {
		p.Storage.Kind = *kind
	}
	switch {
	case *dsn != "":
		p.Storage.DSN = *dsn
	case p.Storage.DSN == "":
		p.Storage.DSN = os.Getenv("DATABASE_URL")
	}
	p.ApplyDefaults()

	if p.Storage.DSN == "" {
		fmt.Fprintf(stderr, "error: storage.dsn: %v\n", config.ErrMissingDSN)
		return 1
	}

	repo, err := deps.openRepo(ctx, storage.Config{Kind: p.Storage.Kind, DSN: p.Storage.DSN})
	if err != nil {
		fmt.Fprintf(stderr, "open storage: %v\n", err)
		return 1
	}
	defer repo.Close()

	if err := storage.ResetSchema(ctx, repo); err != nil {
		fmt.Fprintf(stderr, "reset schema: %v\n", err)
		return 1
	}

	fmt.Fprintln(stdout, "ok")
	return 0
}
