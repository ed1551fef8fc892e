package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/docvault/internal/api"
	"github.com/hashicorp-forge/docvault/internal/app"
	"github.com/hashicorp-forge/docvault/internal/config"
	"github.com/hashicorp-forge/docvault/internal/server"
)

func main() {
	configPath := flag.String("config", "config.hcl", "Path to configuration file")
	embeddedWorker := flag.Bool("embedded-worker", false,
		"Run the task consumer in-process (single-binary deployments)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		hclog.Default().Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "docvault",
		Level: hclog.LevelFromString(cfg.LogLevel),
	})
	logger.Info("starting docvault", "config", *configPath, "addr", cfg.Server.Addr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, logger, *embeddedWorker); err != nil {
		logger.Error("server failed", "error", err)
		cancel()
		os.Exit(1)
	}
	logger.Info("docvault stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger hclog.Logger, embeddedWorker bool) error {
	a, err := app.Build(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Provider.EnsureIndex(ctx); err != nil {
		// Search comes back up on its own; reads fall back to PostgreSQL
		// until it does.
		logger.Warn("failed to ensure search index", "error", err)
	}

	// The memory queue only works when its consumer runs in-process.
	if embeddedWorker || cfg.Queue.Backend == "memory" {
		go func() {
			if err := a.Consumer.Run(ctx, a.Worker.Handle); err != nil && ctx.Err() == nil {
				logger.Error("embedded worker stopped", "error", err)
			}
		}()
	}

	v1 := &api.API{
		DB:       a.DB,
		Catalog:  a.Catalog,
		Intake:   a.Intake,
		Rules:    a.Rules,
		Backfill: a.Backfill,
		Syncer:   a.Syncer,
		Queue:    a.Queue,
		Issuer:   a.Issuer,
		Provider: a.Provider,
		Fallback: a.Fallback,
		Config:   cfg,
		Logger:   logger,
	}

	return server.New(cfg.Server.Addr, v1, a.DB, logger).Run(ctx)
}
