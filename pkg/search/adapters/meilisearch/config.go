package meilisearch

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config configures the Meilisearch search backend.
type Config struct {
	// Host is the Meilisearch endpoint, e.g. "http://localhost:7700".
	Host string `hcl:"host"`

	// APIKey authenticates against the instance. Optional for
	// unsecured development instances.
	APIKey string `hcl:"api_key,optional"`

	// IndexName is the document index uid.
	IndexName string `hcl:"index_name,optional"`

	// TimeoutSeconds bounds each request. Defaults to 10.
	TimeoutSeconds int `hcl:"timeout_seconds,optional"`
}

// SetDefaults fills in default values.
func (c *Config) SetDefaults() {
	if c.IndexName == "" {
		c.IndexName = "docvault-documents"
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 10
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Host, validation.Required.Error("host required")),
	)
}
