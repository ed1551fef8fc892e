// Package searchsync keeps the external search index in step with the
// catalog. Sync work rides the task queue and is always best-effort
// from the caller's point of view: a broken search backend must never
// fail an ingest or a catalog write.
package searchsync

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/docvault/pkg/models"
	"github.com/hashicorp-forge/docvault/pkg/queue"
	"github.com/hashicorp-forge/docvault/pkg/search"
)

// rebuildBatchSize is the page size for full index rebuilds.
const rebuildBatchSize = 500

// providerAttempts bounds retries against the search backend per task.
const providerAttempts = 3

// Syncer pushes catalog changes into a search provider.
type Syncer struct {
	db       *gorm.DB
	provider search.Provider
	queue    queue.Queue
	disabled bool
	logger   hclog.Logger
}

// New creates a syncer. The queue may be nil for callers that only run
// sync tasks and never enqueue them.
func New(db *gorm.DB, provider search.Provider, q queue.Queue, logger hclog.Logger) *Syncer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Syncer{
		db:       db,
		provider: provider,
		queue:    q,
		logger:   logger.Named("searchsync"),
	}
}

// DisableAutoSync turns off automatic enqueueing after catalog writes.
// Explicit rebuilds still work; operators use this during bulk imports.
func (s *Syncer) DisableAutoSync() {
	s.disabled = true
}

// Provider returns the underlying search backend.
func (s *Syncer) Provider() search.Provider {
	return s.provider
}

// EnqueueSyncOne schedules an index update for one document. Failures
// are logged, never returned: the document row is the source of truth
// and a rebuild can recover the index later.
func (s *Syncer) EnqueueSyncOne(ctx context.Context, documentID uuid.UUID) {
	s.enqueue(ctx, queue.NewTask(queue.TaskSearchSyncOne, map[string]interface{}{
		"document_id": documentID.String(),
	}))
}

// EnqueueSyncBatch schedules an index update for several documents.
func (s *Syncer) EnqueueSyncBatch(ctx context.Context, documentIDs []uuid.UUID) {
	if len(documentIDs) == 0 {
		return
	}
	ids := make([]interface{}, len(documentIDs))
	for i, id := range documentIDs {
		ids[i] = id.String()
	}
	s.enqueue(ctx, queue.NewTask(queue.TaskSearchSyncBatch, map[string]interface{}{
		"document_ids": ids,
	}))
}

// EnqueueDelete schedules removal of one document from the index.
func (s *Syncer) EnqueueDelete(ctx context.Context, documentID uuid.UUID) {
	s.enqueue(ctx, queue.NewTask(queue.TaskSearchDelete, map[string]interface{}{
		"document_id": documentID.String(),
	}))
}

// EnqueueRebuild schedules a full index rebuild.
func (s *Syncer) EnqueueRebuild(ctx context.Context) {
	s.enqueue(ctx, queue.NewTask(queue.TaskSearchRebuild, nil))
}

func (s *Syncer) enqueue(ctx context.Context, task *queue.Task) {
	if s.queue == nil {
		return
	}
	if s.disabled && task.Name != queue.TaskSearchRebuild {
		return
	}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		s.logger.Warn("failed to enqueue search task",
			"task", task.Name, "error", err)
	}
}

// SyncOne pushes one document into the index. A document that no
// longer exists is deleted from the index instead, so stale tasks
// self-heal.
func (s *Syncer) SyncOne(ctx context.Context, documentID uuid.UUID) error {
	docs, err := search.BuildDocuments(s.db.WithContext(ctx), []uuid.UUID{documentID})
	if err != nil {
		return fmt.Errorf("failed to build search payload for %s: %w", documentID, err)
	}
	if len(docs) == 0 {
		s.logger.Debug("document gone, removing from index", "document_id", documentID)
		return s.withRetry(ctx, func() error {
			return s.provider.DeleteOne(ctx, documentID)
		})
	}
	return s.withRetry(ctx, func() error {
		return s.provider.UpsertMany(ctx, docs)
	})
}

// SyncBatch pushes several documents into the index, deleting the ones
// that vanished since the task was enqueued.
func (s *Syncer) SyncBatch(ctx context.Context, documentIDs []uuid.UUID) error {
	if len(documentIDs) == 0 {
		return nil
	}
	docs, err := search.BuildDocuments(s.db.WithContext(ctx), documentIDs)
	if err != nil {
		return fmt.Errorf("failed to build search payloads: %w", err)
	}

	found := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		found[doc.ID] = struct{}{}
	}
	for _, id := range documentIDs {
		if _, ok := found[id.String()]; ok {
			continue
		}
		id := id
		if err := s.withRetry(ctx, func() error {
			return s.provider.DeleteOne(ctx, id)
		}); err != nil {
			return err
		}
	}

	if len(docs) == 0 {
		return nil
	}
	return s.withRetry(ctx, func() error {
		return s.provider.UpsertMany(ctx, docs)
	})
}

// Delete removes one document from the index.
func (s *Syncer) Delete(ctx context.Context, documentID uuid.UUID) error {
	return s.withRetry(ctx, func() error {
		return s.provider.DeleteOne(ctx, documentID)
	})
}

// RebuildAll reindexes the whole catalog in creation order and returns
// the number of documents pushed.
func (s *Syncer) RebuildAll(ctx context.Context) (int, error) {
	if err := s.provider.EnsureIndex(ctx); err != nil {
		return 0, err
	}

	total := 0
	var lastCreated time.Time
	var lastID uuid.UUID
	for {
		var ids []uuid.UUID
		tx := s.db.WithContext(ctx).Model(&models.Document{}).
			Order("created_at ASC, id ASC").
			Limit(rebuildBatchSize)
		if total > 0 {
			tx = tx.Where("(created_at, id) > (?, ?)", lastCreated, lastID)
		}
		if err := tx.Pluck("id", &ids).Error; err != nil {
			return total, fmt.Errorf("failed to page documents for rebuild: %w", err)
		}
		if len(ids) == 0 {
			break
		}

		docs, err := search.BuildDocuments(s.db.WithContext(ctx), ids)
		if err != nil {
			return total, fmt.Errorf("failed to build rebuild payloads: %w", err)
		}
		if err := s.withRetry(ctx, func() error {
			return s.provider.UpsertMany(ctx, docs)
		}); err != nil {
			return total, err
		}
		total += len(docs)

		last := ids[len(ids)-1]
		var row models.Document
		if err := s.db.WithContext(ctx).Select("id", "created_at").
			First(&row, "id = ?", last).Error; err != nil {
			return total, fmt.Errorf("failed to read rebuild cursor: %w", err)
		}
		lastCreated, lastID = row.CreatedAt, row.ID

		if len(ids) < rebuildBatchSize {
			break
		}
	}

	s.logger.Info("search index rebuilt", "backend", s.provider.Name(), "documents", total)
	return total, nil
}

// withRetry runs a provider call with exponential backoff. Transient
// backend hiccups are absorbed here; persistent failures surface to
// the task runner for queue-level retry.
func (s *Syncer) withRetry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	return backoff.Retry(op,
		backoff.WithContext(backoff.WithMaxRetries(bo, providerAttempts-1), ctx))
}
