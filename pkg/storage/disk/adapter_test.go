package disk

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	adapter, err := NewAdapterWithFs(&Config{RootDir: "/blobs"}, afero.NewMemMapFs(), nil)
	require.NoError(t, err)
	require.NoError(t, adapter.EnsureBucket(context.Background()))
	return adapter
}

func TestNewAdapterRequiresRoot(t *testing.T) {
	_, err := NewAdapterWithFs(&Config{}, afero.NewMemMapFs(), nil)
	assert.Error(t, err)
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	adapter := newTestAdapter(t)

	key := "ab/cd/abcd1234.pdf"
	err := adapter.Put(ctx, key, "application/pdf", strings.NewReader("blob-bytes"), 10)
	require.NoError(t, err)

	rc, err := adapter.Get(ctx, key)
	require.NoError(t, err)
	defer rc.Close()

	content, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "blob-bytes", string(content))

	ok, err := adapter.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPutOverwrites(t *testing.T) {
	ctx := context.Background()
	adapter := newTestAdapter(t)

	key := "ab/cd/abcd.bin"
	require.NoError(t, adapter.Put(ctx, key, "application/octet-stream", strings.NewReader("one"), 3))
	require.NoError(t, adapter.Put(ctx, key, "application/octet-stream", strings.NewReader("two"), 3))

	rc, err := adapter.Get(ctx, key)
	require.NoError(t, err)
	defer rc.Close()
	content, _ := io.ReadAll(rc)
	assert.Equal(t, "two", string(content))
}

func TestDeleteMissingIsNoError(t *testing.T) {
	ctx := context.Background()
	adapter := newTestAdapter(t)

	assert.NoError(t, adapter.Delete(ctx, "no/such/blob.bin"))
}

func TestDeleteRemovesBlob(t *testing.T) {
	ctx := context.Background()
	adapter := newTestAdapter(t)

	key := "aa/bb/aabb.txt"
	require.NoError(t, adapter.Put(ctx, key, "text/plain", strings.NewReader("x"), 1))
	require.NoError(t, adapter.Delete(ctx, key))

	ok, err := adapter.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}
