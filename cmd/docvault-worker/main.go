package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/docvault/internal/app"
	"github.com/hashicorp-forge/docvault/internal/config"
)

func main() {
	configPath := flag.String("config", "config.hcl", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		hclog.Default().Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "docvault-worker",
		Level: hclog.LevelFromString(cfg.LogLevel),
	})
	logger.Info("starting docvault-worker",
		"config", *configPath, "queue", cfg.Queue.Backend)

	if cfg.Queue.Backend == "memory" {
		// The memory queue lives inside one process; a standalone worker
		// would consume nothing.
		logger.Error("the memory queue backend requires the embedded worker; configure kafka")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("worker failed", "error", err)
		cancel()
		os.Exit(1)
	}
	logger.Info("docvault-worker stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger hclog.Logger) error {
	a, err := app.Build(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Provider.EnsureIndex(ctx); err != nil {
		logger.Warn("failed to ensure search index", "error", err)
	}

	err = a.Consumer.Run(ctx, a.Worker.Handle)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
