package meilisearch

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/docvault/pkg/search"
)

func TestNewAdapter(t *testing.T) {
	a, err := NewAdapter(&Config{Host: "http://localhost:7700"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "meilisearch", a.Name())
	assert.Equal(t, "docvault-documents", a.index)

	_, err = NewAdapter(&Config{}, nil)
	assert.Error(t, err)

	_, err = NewAdapter(nil, nil)
	assert.Error(t, err)
}

func TestUpsertManyEmptyBatchSkipsClient(t *testing.T) {
	a, err := NewAdapter(&Config{Host: "http://localhost:7700"}, nil)
	require.NoError(t, err)

	// An empty batch returns before the index is touched, so no network
	// call is made against the unreachable test host.
	assert.NoError(t, a.UpsertMany(context.Background(), nil))
	assert.NoError(t, a.UpsertMany(context.Background(), []search.Document{}))
}

func TestDecodeHitIDs(t *testing.T) {
	want := uuid.New()
	hits := []map[string]interface{}{
		{"id": want.String(), "title": "정비 보고서"},
		{"id": "not-a-uuid", "title": "foreign document"},
	}
	raw, err := json.Marshal(hits)
	require.NoError(t, err)
	var decoded interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	ids, err := decodeHitIDs(decoded)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{want}, ids)
}

func TestIndexErrorClassification(t *testing.T) {
	assert.False(t, isIndexNotFound(nil))
	assert.False(t, isIndexAlreadyExists(nil))
	assert.True(t, isIndexNotFound(errString("Index `docvault-documents` not found. index_not_found")))
	assert.True(t, isIndexAlreadyExists(errString("index_already_exists")))
}

type errString string

func (e errString) Error() string { return string(e) }
