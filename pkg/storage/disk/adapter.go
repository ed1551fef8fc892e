// Package disk stores blobs on a local filesystem tree.
package disk

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"
)

// Config configures the disk storage adapter.
type Config struct {
	// RootDir is the directory blobs are stored under.
	RootDir string `hcl:"root_dir"`
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.RootDir == "" {
		return fmt.Errorf("root_dir is required")
	}
	return nil
}

// Adapter implements storage.Backend on a filesystem. Writes go to a
// temp file first and rename into place so readers never observe a
// partial blob.
type Adapter struct {
	fs     afero.Fs
	root   string
	logger hclog.Logger
}

// NewAdapter creates a disk adapter rooted at cfg.RootDir.
func NewAdapter(cfg *Config, logger hclog.Logger) (*Adapter, error) {
	return NewAdapterWithFs(cfg, afero.NewOsFs(), logger)
}

// NewAdapterWithFs creates a disk adapter on an explicit filesystem.
// Tests use an in-memory fs.
func NewAdapterWithFs(cfg *Config, fs afero.Fs, logger hclog.Logger) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid disk storage configuration: %w", err)
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &Adapter{
		fs:     fs,
		root:   cfg.RootDir,
		logger: logger.Named("disk-storage"),
	}, nil
}

// Name returns the backend kind.
func (a *Adapter) Name() string {
	return "disk"
}

// Bucket returns the root directory, which stands in for a bucket.
func (a *Adapter) Bucket() string {
	return a.root
}

// EnsureBucket creates the root directory.
func (a *Adapter) EnsureBucket(ctx context.Context) error {
	if err := a.fs.MkdirAll(a.root, 0o755); err != nil {
		return fmt.Errorf("failed to create storage root %s: %w", a.root, err)
	}
	return nil
}

func (a *Adapter) blobPath(key string) string {
	return path.Join(a.root, key)
}

// Put streams the blob to a temp file next to the target and renames
// it into place.
func (a *Adapter) Put(ctx context.Context, key, contentType string, r io.Reader, size int64) error {
	target := a.blobPath(key)
	dir := path.Dir(target)
	if err := a.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create blob directory %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(a.fs, dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		a.fs.Remove(tmpName)
		return fmt.Errorf("failed to write blob %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		a.fs.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := a.fs.Rename(tmpName, target); err != nil {
		a.fs.Remove(tmpName)
		return fmt.Errorf("failed to finalize blob %s: %w", key, err)
	}

	a.logger.Debug("blob written", "key", key, "size", size)
	return nil
}

// Get opens the blob for reading.
func (a *Adapter) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := a.fs.Open(a.blobPath(key))
	if err != nil {
		return nil, fmt.Errorf("failed to open blob %s: %w", key, err)
	}
	return f, nil
}

// Exists reports whether the blob is present.
func (a *Adapter) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := afero.Exists(a.fs, a.blobPath(key))
	if err != nil {
		return false, fmt.Errorf("failed to stat blob %s: %w", key, err)
	}
	return ok, nil
}

// Delete removes the blob; a missing blob is not an error.
func (a *Adapter) Delete(ctx context.Context, key string) error {
	err := a.fs.Remove(a.blobPath(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob %s: %w", key, err)
	}
	return nil
}
