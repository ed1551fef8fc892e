package s3

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config configures the S3-compatible storage adapter. MinIO works via
// Endpoint with path-style addressing.
type Config struct {
	Endpoint           string `hcl:"endpoint,optional"`
	Region             string `hcl:"region,optional"`
	Bucket             string `hcl:"bucket"`
	AccessKey          string `hcl:"access_key,optional"`
	SecretKey          string `hcl:"secret_key,optional"`
	InsecureSkipVerify bool   `hcl:"insecure_skip_verify,optional"`

	// RequestTimeoutSeconds bounds each S3 HTTP call.
	RequestTimeoutSeconds int `hcl:"request_timeout_seconds,optional"`

	// CreateBucket makes EnsureBucket create a missing bucket instead
	// of failing. Useful for MinIO, off for managed buckets.
	CreateBucket bool `hcl:"create_bucket,optional"`
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Bucket, validation.Required),
		validation.Field(&c.RequestTimeoutSeconds, validation.Min(0)),
	)
}

// SetDefaults fills in default values.
func (c *Config) SetDefaults() {
	if c.Region == "" {
		c.Region = "us-east-1"
	}
	if c.RequestTimeoutSeconds == 0 {
		c.RequestTimeoutSeconds = 30
	}
}
