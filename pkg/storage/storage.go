// Package storage defines the blob store behind the catalog. Blobs are
// content-addressed: the SHA-256 of the bytes determines the key, so
// identical uploads land on the same object.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// checksumChunkSize bounds memory while hashing large uploads.
const checksumChunkSize = 1024 * 1024

// Backend is one physical blob store. Implementations live under
// adapters of this package (disk, s3).
type Backend interface {
	// Name identifies the backend kind, persisted on each file row.
	Name() string

	// Bucket returns the bucket (or root namespace) blobs land in.
	Bucket() string

	// EnsureBucket makes sure the bucket exists before first use.
	EnsureBucket(ctx context.Context) error

	// Put streams a blob to the given key, overwriting any existing
	// object at that key.
	Put(ctx context.Context, key, contentType string, r io.Reader, size int64) error

	// Get opens the blob for reading. The caller closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists reports whether the key currently holds a blob.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes the blob. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Checksum hashes a blob stream, returning the lowercase hex SHA-256
// and the byte count.
func Checksum(r io.Reader) (string, int64, error) {
	hasher := sha256.New()
	buf := make([]byte, checksumChunkSize)
	size, err := io.CopyBuffer(hasher, r, buf)
	if err != nil {
		return "", 0, fmt.Errorf("failed to hash content: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), size, nil
}

// Key builds the storage key for a checksum: two levels of hex fan-out
// followed by the full hash and a lowercase extension. An empty
// extension falls back to "bin".
func Key(checksum, extension string) string {
	ext := strings.ToLower(strings.TrimPrefix(extension, "."))
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("%s/%s/%s.%s", checksum[0:2], checksum[2:4], checksum, ext)
}
