package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `
log_level = "debug"

database {
  host   = "localhost"
  user   = "docvault"
  dbname = "docvault"
}

server {
  addr = ":9000"
}

storage {
  backend = "disk"
  disk {
    root_dir = "/var/lib/docvault/blobs"
  }
}

search {
  provider = "meilisearch"
  meilisearch {
    host = "http://localhost:7700"
  }
}

queue {
  backend = "kafka"
  brokers = ["localhost:9092"]
}

notifier {
  enabled      = true
  callback_url = "http://bot.local/callback"
}

ingest {
  action_token_secret = "0123456789abcdef0123456789abcdef"
}
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.hcl")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Contains(t, cfg.Database.DSN(), "host=localhost")
	assert.Equal(t, "meilisearch", cfg.Search.Provider)
	assert.Equal(t, "docvault-documents", cfg.Search.Meilisearch.IndexName)
	assert.Equal(t, "docvault-tasks", cfg.Queue.Topic)
	assert.Equal(t, 5, cfg.Ingest.MaxAttempts)
	assert.Equal(t, 30, cfg.Ingest.RetryBaseSeconds)
	assert.Equal(t, 86400, cfg.Ingest.ActionTokenTTLSec)
	assert.True(t, cfg.Notifier.Enabled)
}

func TestLoadRejectsMissingStorage(t *testing.T) {
	body := `
database {
  host   = "localhost"
  user   = "docvault"
  dbname = "docvault"
}
ingest {
  action_token_secret = "0123456789abcdef0123456789abcdef"
}
`
	_, err := Load(writeConfig(t, body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage")
}

func TestLoadRejectsShortTokenSecret(t *testing.T) {
	body := `
database {
  host   = "localhost"
  user   = "docvault"
  dbname = "docvault"
}
storage {
  backend = "disk"
  disk {
    root_dir = "/tmp/blobs"
  }
}
ingest {
  action_token_secret = "short"
}
`
	_, err := Load(writeConfig(t, body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest")
}

func TestRetryPolicyFromIngest(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	policy := cfg.Ingest.RetryPolicy()
	assert.Equal(t, 30.0, policy.Base.Seconds())
	assert.Equal(t, 1800.0, policy.Max.Seconds())
	assert.Equal(t, 86400.0, cfg.Ingest.ActionTokenTTL().Seconds())
}
