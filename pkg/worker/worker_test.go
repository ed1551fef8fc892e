package worker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/docvault/pkg/ingest"
	"github.com/hashicorp-forge/docvault/pkg/queue"
)

func testPolicy() ingest.RetryPolicy {
	return ingest.RetryPolicy{Base: 30 * time.Second, Max: 30 * time.Minute}
}

func TestBackfillFilterArg(t *testing.T) {
	catID := uuid.New()

	t.Run("full filter", func(t *testing.T) {
		task := queue.NewTask(queue.TaskBackfillRun, map[string]interface{}{
			"filter": map[string]interface{}{
				"category_id": catID.String(),
				"from":        "2024-01-01",
				"to":          "2024-06-30",
				"review_only": true,
			},
		})

		filter := backfillFilterArg(task)
		require.NotNil(t, filter)
		require.NotNil(t, filter.CategoryID)
		assert.Equal(t, catID, *filter.CategoryID)
		require.NotNil(t, filter.From)
		assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *filter.From)
		assert.True(t, filter.ReviewOnly)
	})

	t.Run("missing filter", func(t *testing.T) {
		task := queue.NewTask(queue.TaskBackfillRun, nil)
		assert.Nil(t, backfillFilterArg(task))
	})

	t.Run("malformed fields ignored", func(t *testing.T) {
		task := queue.NewTask(queue.TaskBackfillRun, map[string]interface{}{
			"filter": map[string]interface{}{
				"category_id": "not-a-uuid",
				"from":        "January 1st",
			},
		})

		filter := backfillFilterArg(task)
		require.NotNil(t, filter)
		assert.Nil(t, filter.CategoryID)
		assert.Nil(t, filter.From)
	})
}

func TestDocumentIDsArgSkipsInvalid(t *testing.T) {
	w := New(nil, nil, nil, nil, testPolicy(), nil)

	a, b := uuid.New(), uuid.New()
	task := queue.NewTask(queue.TaskSearchSyncBatch, map[string]interface{}{
		"document_ids": []interface{}{a.String(), "garbage", b.String()},
	})

	assert.Equal(t, []uuid.UUID{a, b}, w.documentIDsArg(task))
}

func TestHandleUnknownTaskIsDropped(t *testing.T) {
	w := New(nil, nil, nil, nil, testPolicy(), nil)

	task := queue.NewTask("no.such.task", nil)
	assert.NoError(t, w.Handle(context.Background(), task))
}
