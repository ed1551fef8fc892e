// Package app wires the shared dependency graph used by both the API
// server and the worker binary.
package app

import (
	"fmt"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/docvault/internal/config"
	"github.com/hashicorp-forge/docvault/internal/db"
	"github.com/hashicorp-forge/docvault/pkg/actiontoken"
	"github.com/hashicorp-forge/docvault/pkg/backfill"
	"github.com/hashicorp-forge/docvault/pkg/catalog"
	"github.com/hashicorp-forge/docvault/pkg/ingest"
	"github.com/hashicorp-forge/docvault/pkg/notify"
	"github.com/hashicorp-forge/docvault/pkg/queue"
	"github.com/hashicorp-forge/docvault/pkg/rules"
	"github.com/hashicorp-forge/docvault/pkg/search"
	dbadapter "github.com/hashicorp-forge/docvault/pkg/search/adapters/db"
	meilisearchadapter "github.com/hashicorp-forge/docvault/pkg/search/adapters/meilisearch"
	"github.com/hashicorp-forge/docvault/pkg/searchsync"
	"github.com/hashicorp-forge/docvault/pkg/storage"
	"github.com/hashicorp-forge/docvault/pkg/storage/disk"
	"github.com/hashicorp-forge/docvault/pkg/storage/s3"
	"github.com/hashicorp-forge/docvault/pkg/worker"
)

// App is the wired dependency graph. The server and worker binaries
// share everything up to the HTTP/consumer loop.
type App struct {
	Config *config.Config
	Logger hclog.Logger

	DB      *gorm.DB
	Backend storage.Backend

	Queue    queue.Queue
	Consumer queue.Consumer

	// Provider is the configured search backend; Fallback is the
	// PostgreSQL adapter the API degrades to. They are the same object
	// when the db provider is configured directly.
	Provider search.Provider
	Fallback search.Provider

	Issuer   *actiontoken.Issuer
	Notifier *notify.Notifier
	Rules    *rules.Repository
	Syncer   *searchsync.Syncer
	Catalog  *catalog.Service
	Pipeline *ingest.Pipeline
	Intake   *ingest.Intake
	Backfill *backfill.Engine
	Worker   *worker.Worker
}

// Build connects to PostgreSQL, runs migrations, and wires every
// component from the configuration.
func Build(cfg *config.Config, logger hclog.Logger) (*App, error) {
	gormDB, err := db.Connect(cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(gormDB, logger); err != nil {
		return nil, err
	}

	backend, err := buildStorage(cfg.Storage, logger)
	if err != nil {
		return nil, err
	}

	q, consumer, err := buildQueue(cfg.Queue, logger)
	if err != nil {
		return nil, err
	}

	fallback, err := dbadapter.NewAdapter(gormDB, logger)
	if err != nil {
		return nil, err
	}
	provider := search.Provider(fallback)
	if cfg.Search.Provider == "meilisearch" {
		provider, err = meilisearchadapter.NewAdapter(cfg.Search.Meilisearch, logger)
		if err != nil {
			return nil, err
		}
	}

	issuer, err := actiontoken.NewIssuer(cfg.Ingest.ActionTokenSecret, cfg.Ingest.ActionTokenTTL())
	if err != nil {
		return nil, err
	}

	notifier := notify.New(*cfg.Notifier, issuer, logger)
	ruleRepo := rules.NewRepository(gormDB, logger)
	syncer := searchsync.New(gormDB, provider, q, logger)
	if !cfg.Search.AutoSyncEnabled() {
		syncer.DisableAutoSync()
	}
	cat := catalog.New(gormDB, backend, syncer, logger)
	pipeline := ingest.NewPipeline(gormDB, backend, ruleRepo, cat, notifier, syncer, logger)
	intake := ingest.NewIntake(gormDB, q, logger)
	bf := backfill.New(gormDB, cat, syncer, logger)
	wk := worker.New(pipeline, syncer, bf, q, cfg.Ingest.RetryPolicy(), logger)

	return &App{
		Config:   cfg,
		Logger:   logger,
		DB:       gormDB,
		Backend:  backend,
		Queue:    q,
		Consumer: consumer,
		Provider: provider,
		Fallback: fallback,
		Issuer:   issuer,
		Notifier: notifier,
		Rules:    ruleRepo,
		Syncer:   syncer,
		Catalog:  cat,
		Pipeline: pipeline,
		Intake:   intake,
		Backfill: bf,
		Worker:   wk,
	}, nil
}

// Close releases the queue transport and the database pool.
func (a *App) Close() {
	a.Queue.Close()
	if sqlDB, err := a.DB.DB(); err == nil {
		sqlDB.Close()
	}
}

func buildStorage(cfg *config.Storage, logger hclog.Logger) (storage.Backend, error) {
	switch cfg.Backend {
	case "disk":
		return disk.NewAdapter(cfg.Disk, logger)
	case "s3":
		return s3.NewAdapter(cfg.S3, logger)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}

func buildQueue(cfg *config.Queue, logger hclog.Logger) (queue.Queue, queue.Consumer, error) {
	switch cfg.Backend {
	case "memory":
		m := queue.NewMemory(0, logger)
		return m, m, nil
	case "kafka":
		k, err := queue.NewKafka(queue.KafkaConfig{
			Brokers:       cfg.Brokers,
			Topic:         cfg.Topic,
			ConsumerGroup: cfg.ConsumerGroup,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return k, k, nil
	default:
		return nil, nil, fmt.Errorf("unsupported queue backend %q", cfg.Backend)
	}
}
