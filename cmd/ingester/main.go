package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rickgao/fmp-data/internal/config"
	"github.com/rickgao/fmp-data/internal/version"
)

const usage = `usage: ingester [-config path] <command> [args]

commands:
  order             print the dependency schedule of the catalog
  createdb          create the database and the timescaledb extension
  migrate           apply state migrations and create entity tables
  import [target]   import one entity or "all" (default) and exit
  report            print row counts and sizes per entity table
  serve             run the control API, scheduled refresh and event publishing
`

func main() {
	configPath := flag.String("config", "configs/ingester.local.yaml", "path to config file")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// order only reads the built-in catalog.
	if cmd == "order" {
		if err := runOrder(os.Stdout); err != nil {
			logger.Error("order failed", "error", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = newLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting ingester",
		"version", version.String(),
		"command", cmd,
		"instance_id", cfg.Instance.ID,
		"config", *configPath,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	switch cmd {
	case "createdb":
		err = runCreateDB(ctx, cfg, logger)
	case "migrate":
		err = runMigrate(ctx, cfg, logger)
	case "import":
		target := "all"
		if len(args) > 0 {
			target = args[0]
		}
		err = runImport(ctx, cfg, target, logger)
	case "report":
		err = runReport(ctx, cfg, os.Stdout, logger)
	case "serve":
		err = runServe(ctx, cfg, logger)
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("interrupted", "command", cmd)
			os.Exit(130)
		}
		logger.Error(cmd+" failed", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
