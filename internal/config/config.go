// Package config loads and validates the docvault HCL configuration
// shared by the server and worker binaries.
package config

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/hashicorp-forge/docvault/pkg/ingest"
	"github.com/hashicorp-forge/docvault/pkg/notify"
	meilisearchadapter "github.com/hashicorp-forge/docvault/pkg/search/adapters/meilisearch"
	"github.com/hashicorp-forge/docvault/pkg/storage/disk"
	"github.com/hashicorp-forge/docvault/pkg/storage/s3"
)

// Config is the root configuration document.
type Config struct {
	LogLevel string `hcl:"log_level,optional"`

	Database *Database      `hcl:"database,block"`
	Server   *Server        `hcl:"server,block"`
	Storage  *Storage       `hcl:"storage,block"`
	Search   *Search        `hcl:"search,block"`
	Queue    *Queue         `hcl:"queue,block"`
	Notifier *notify.Config `hcl:"notifier,block"`
	Ingest   *Ingest        `hcl:"ingest,block"`
}

// Database holds the PostgreSQL connection settings.
type Database struct {
	Host     string `hcl:"host"`
	Port     int    `hcl:"port,optional"`
	User     string `hcl:"user"`
	Password string `hcl:"password,optional"`
	DBName   string `hcl:"dbname"`
	SSLMode  string `hcl:"sslmode,optional"`
}

// DSN renders the connection string.
func (d *Database) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		d.Host, d.User, d.Password, d.DBName, d.Port, d.SSLMode)
}

// Server holds the HTTP listener settings.
type Server struct {
	Addr string `hcl:"addr,optional"`

	// ReadOnly rejects every mutating request while set; background
	// workers are unaffected.
	ReadOnly bool `hcl:"read_only,optional"`

	// CORSAllowedOrigins lists origins allowed to call the API from a
	// browser. "*" allows any origin. Empty disables CORS headers.
	CORSAllowedOrigins []string `hcl:"cors_allowed_origins,optional"`
}

// Storage selects and configures the blob backend.
type Storage struct {
	// Backend is "disk" or "s3".
	Backend string `hcl:"backend"`

	Disk *disk.Config `hcl:"disk,block"`
	S3   *s3.Config   `hcl:"s3,block"`
}

// Search selects and configures the search provider.
type Search struct {
	// Provider is "meilisearch" or "db". The db provider serves
	// degraded full-text search straight from PostgreSQL.
	Provider string `hcl:"provider,optional"`

	// AutoSync controls whether catalog writes enqueue index updates.
	// Defaults to true; explicit rebuilds work either way.
	AutoSync *bool `hcl:"auto_sync,optional"`

	Meilisearch *meilisearchadapter.Config `hcl:"meilisearch,block"`
}

// AutoSyncEnabled resolves the tri-state flag.
func (s *Search) AutoSyncEnabled() bool {
	return s.AutoSync == nil || *s.AutoSync
}

// Queue selects and configures the task transport.
type Queue struct {
	// Backend is "kafka" or "memory".
	Backend string `hcl:"backend,optional"`

	Brokers       []string `hcl:"brokers,optional"`
	Topic         string   `hcl:"topic,optional"`
	ConsumerGroup string   `hcl:"consumer_group,optional"`
}

// Ingest tunes the pipeline and its operator surfaces.
type Ingest struct {
	TempDir string `hcl:"temp_dir,optional"`

	MaxAttempts       int `hcl:"max_attempts,optional"`
	RetryBaseSeconds  int `hcl:"retry_base_seconds,optional"`
	RetryMaxSeconds   int `hcl:"retry_max_seconds,optional"`
	BatchMaxFiles     int `hcl:"batch_max_files,optional"`
	ActionTokenTTLSec int `hcl:"action_token_ttl_seconds,optional"`

	ActionTokenSecret string `hcl:"action_token_secret"`
}

// RetryPolicy builds the pipeline backoff policy.
func (i *Ingest) RetryPolicy() ingest.RetryPolicy {
	return ingest.RetryPolicy{
		Base: time.Duration(i.RetryBaseSeconds) * time.Second,
		Max:  time.Duration(i.RetryMaxSeconds) * time.Second,
	}
}

// ActionTokenTTL returns the token lifetime.
func (i *Ingest) ActionTokenTTL() time.Duration {
	return time.Duration(i.ActionTokenTTLSec) * time.Second
}

// Load reads, defaults, and validates a config file.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := hclsimple.DecodeFile(path, nil, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// SetDefaults fills unset optional fields.
func (c *Config) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Database != nil {
		if c.Database.Port == 0 {
			c.Database.Port = 5432
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "disable"
		}
	}
	if c.Server == nil {
		c.Server = &Server{}
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8000"
	}
	if c.Storage != nil && c.Storage.S3 != nil {
		c.Storage.S3.SetDefaults()
	}
	if c.Search == nil {
		c.Search = &Search{}
	}
	if c.Search.Provider == "" {
		c.Search.Provider = "db"
	}
	if c.Search.Meilisearch != nil {
		c.Search.Meilisearch.SetDefaults()
	}
	if c.Queue == nil {
		c.Queue = &Queue{}
	}
	if c.Queue.Backend == "" {
		c.Queue.Backend = "memory"
	}
	if c.Queue.Topic == "" {
		c.Queue.Topic = "docvault-tasks"
	}
	if c.Queue.ConsumerGroup == "" {
		c.Queue.ConsumerGroup = "docvault-workers"
	}
	if c.Notifier == nil {
		c.Notifier = &notify.Config{}
	}
	if c.Ingest == nil {
		c.Ingest = &Ingest{}
	}
	if c.Ingest.TempDir == "" {
		c.Ingest.TempDir = "/tmp/docvault-uploads"
	}
	if c.Ingest.MaxAttempts == 0 {
		c.Ingest.MaxAttempts = 5
	}
	if c.Ingest.RetryBaseSeconds == 0 {
		c.Ingest.RetryBaseSeconds = 30
	}
	if c.Ingest.RetryMaxSeconds == 0 {
		c.Ingest.RetryMaxSeconds = 1800
	}
	if c.Ingest.BatchMaxFiles == 0 {
		c.Ingest.BatchMaxFiles = 50
	}
	if c.Ingest.ActionTokenTTLSec == 0 {
		c.Ingest.ActionTokenTTLSec = 86400
	}
}

// Validate checks the cross-block invariants.
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database block is required")
	}
	err := validation.ValidateStruct(c.Database,
		validation.Field(&c.Database.Host, validation.Required),
		validation.Field(&c.Database.User, validation.Required),
		validation.Field(&c.Database.DBName, validation.Required),
	)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if c.Storage == nil {
		return fmt.Errorf("storage block is required")
	}
	switch c.Storage.Backend {
	case "disk":
		if c.Storage.Disk == nil {
			return fmt.Errorf("storage: disk block is required for backend %q", c.Storage.Backend)
		}
		if err := c.Storage.Disk.Validate(); err != nil {
			return fmt.Errorf("storage.disk: %w", err)
		}
	case "s3":
		if c.Storage.S3 == nil {
			return fmt.Errorf("storage: s3 block is required for backend %q", c.Storage.Backend)
		}
		if err := c.Storage.S3.Validate(); err != nil {
			return fmt.Errorf("storage.s3: %w", err)
		}
	default:
		return fmt.Errorf("storage: unsupported backend %q (disk, s3)", c.Storage.Backend)
	}

	switch c.Search.Provider {
	case "meilisearch":
		if c.Search.Meilisearch == nil {
			return fmt.Errorf("search: meilisearch block is required for provider %q", c.Search.Provider)
		}
		if err := c.Search.Meilisearch.Validate(); err != nil {
			return fmt.Errorf("search.meilisearch: %w", err)
		}
	case "db":
	default:
		return fmt.Errorf("search: unsupported provider %q (meilisearch, db)", c.Search.Provider)
	}

	switch c.Queue.Backend {
	case "kafka":
		if len(c.Queue.Brokers) == 0 {
			return fmt.Errorf("queue: at least one broker is required for backend %q", c.Queue.Backend)
		}
	case "memory":
	default:
		return fmt.Errorf("queue: unsupported backend %q (kafka, memory)", c.Queue.Backend)
	}

	err = validation.ValidateStruct(c.Ingest,
		validation.Field(&c.Ingest.ActionTokenSecret, validation.Required, validation.Length(16, 0)),
	)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	return nil
}
