// Package db opens the PostgreSQL connection and applies migrations.
package db

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/hashicorp-forge/docvault/internal/config"
	"github.com/hashicorp-forge/docvault/pkg/models"
)

// Connect opens the database and verifies the connection.
func Connect(cfg *config.Database, logger hclog.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("error getting database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	logger.Info("connected to database", "host", cfg.Host, "dbname", cfg.DBName)
	return db, nil
}

// Migrate applies the schema: auto-migrated models plus the partial
// indexes GORM tags cannot express.
func Migrate(db *gorm.DB, logger hclog.Logger) error {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	if err := db.AutoMigrate(models.ModelsToAutoMigrate()...); err != nil {
		return fmt.Errorf("error running migrations: %w", err)
	}

	// Chat-bot re-deliveries must collide; manual uploads may repeat a
	// source_ref freely.
	err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS uq_ingest_jobs_chatbot_source_ref
		ON ingest_jobs (source, source_ref)
		WHERE source = 'chat-bot' AND source_ref IS NOT NULL`).Error
	if err != nil {
		return fmt.Errorf("error creating chat-bot source_ref index: %w", err)
	}

	err = db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS uq_documents_chatbot_source_ref
		ON documents (source, source_ref)
		WHERE source = 'chat-bot' AND source_ref IS NOT NULL`).Error
	if err != nil {
		return fmt.Errorf("error creating document source_ref index: %w", err)
	}

	// The review queue lists only NEEDS_REVIEW rows ordered by recency;
	// a partial index keeps that page cheap as the catalog grows.
	err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_documents_review_queue
		ON documents (ingested_at DESC)
		WHERE review_status = 'NEEDS_REVIEW'`).Error
	if err != nil {
		return fmt.Errorf("error creating review queue index: %w", err)
	}

	logger.Info("database migrations applied")
	return nil
}
