package searchsync

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/docvault/pkg/queue"
	"github.com/hashicorp-forge/docvault/pkg/search"
)

type fakeProvider struct {
	failures    int
	deleteCalls int
	upsertCalls int
	deleted     []uuid.UUID
}

func (f *fakeProvider) Name() string                            { return "fake" }
func (f *fakeProvider) EnsureIndex(ctx context.Context) error   { return nil }
func (f *fakeProvider) Healthy(ctx context.Context) bool        { return true }
func (f *fakeProvider) Search(ctx context.Context, q search.Query) (*search.Result, error) {
	return &search.Result{}, nil
}

func (f *fakeProvider) UpsertMany(ctx context.Context, docs []search.Document) error {
	f.upsertCalls++
	if f.failures > 0 {
		f.failures--
		return errors.New("backend unavailable")
	}
	return nil
}

func (f *fakeProvider) DeleteOne(ctx context.Context, id uuid.UUID) error {
	f.deleteCalls++
	if f.failures > 0 {
		f.failures--
		return errors.New("backend unavailable")
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func TestEnqueueHelpers(t *testing.T) {
	mem := queue.NewMemory(16, nil)
	s := New(nil, &fakeProvider{}, mem, nil)
	ctx := context.Background()

	docID := uuid.New()
	s.EnqueueSyncOne(ctx, docID)
	s.EnqueueDelete(ctx, docID)
	s.EnqueueSyncBatch(ctx, []uuid.UUID{docID, uuid.New()})
	s.EnqueueSyncBatch(ctx, nil) // no-op
	s.EnqueueRebuild(ctx)

	assert.Equal(t, 4, mem.Len())
}

func TestEnqueueFailureIsSwallowed(t *testing.T) {
	mem := queue.NewMemory(1, nil)
	mem.Close()

	s := New(nil, &fakeProvider{}, mem, nil)
	// Must not panic or surface the closed-queue error.
	s.EnqueueSyncOne(context.Background(), uuid.New())
}

func TestDeleteRetriesTransientFailures(t *testing.T) {
	provider := &fakeProvider{failures: 2}
	s := New(nil, provider, nil, nil)

	id := uuid.New()
	require.NoError(t, s.Delete(context.Background(), id))
	assert.Equal(t, 3, provider.deleteCalls)
	assert.Equal(t, []uuid.UUID{id}, provider.deleted)
}

func TestDeleteGivesUpAfterMaxAttempts(t *testing.T) {
	provider := &fakeProvider{failures: 10}
	s := New(nil, provider, nil, nil)

	err := s.Delete(context.Background(), uuid.New())
	assert.Error(t, err)
	assert.Equal(t, providerAttempts, provider.deleteCalls)
}

func TestSyncBatchEmptyIsNoOp(t *testing.T) {
	provider := &fakeProvider{}
	s := New(nil, provider, nil, nil)

	require.NoError(t, s.SyncBatch(context.Background(), nil))
	assert.Zero(t, provider.upsertCalls)
}
