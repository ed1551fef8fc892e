// Package meilisearch implements the search provider on a Meilisearch
// instance.
package meilisearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	meili "github.com/meilisearch/meilisearch-go"

	"github.com/hashicorp-forge/docvault/pkg/search"
)

// Index attribute settings. Searchable order doubles as relevance
// priority.
var (
	searchableAttributes = []string{
		"title", "description", "summary", "caption_raw",
		"category", "tags", "source_ref",
	}
	filterableAttributes = []string{
		"category_id", "category", "review_status", "source",
		"source_ref", "event_date", "tag_slugs", "is_uncategorized",
	}
	sortableAttributes = []string{
		"event_date", "ingested_at", "title", "created_at",
	}
)

// Adapter implements search.Provider on Meilisearch.
type Adapter struct {
	client meili.ServiceManager
	index  string
	logger hclog.Logger

	mu    sync.Mutex
	ready bool
}

// NewAdapter creates a Meilisearch adapter from configuration.
func NewAdapter(cfg *Config, logger hclog.Logger) (*Adapter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("meilisearch config is required")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid meilisearch config: %w", err)
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	client := meili.New(cfg.Host,
		meili.WithAPIKey(cfg.APIKey),
		meili.WithCustomClient(&http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		}),
	)

	return &Adapter{
		client: client,
		index:  cfg.IndexName,
		logger: logger.Named("meilisearch"),
	}, nil
}

// Name returns the adapter name.
func (a *Adapter) Name() string {
	return "meilisearch"
}

// EnsureIndex creates the index and applies attribute settings once per
// process. Subsequent calls are cheap; a failed attempt is retried on
// the next call.
func (a *Adapter) EnsureIndex(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ready {
		return nil
	}

	_, err := a.client.CreateIndexWithContext(ctx, &meili.IndexConfig{
		Uid:        a.index,
		PrimaryKey: "id",
	})
	if err != nil && !isIndexAlreadyExists(err) {
		return fmt.Errorf("failed to create index %q: %w", a.index, err)
	}

	// Tasks are queued in order, so the settings update lands after
	// the index creation without waiting on the create task.
	_, err = a.client.Index(a.index).UpdateSettingsWithContext(ctx, &meili.Settings{
		SearchableAttributes: searchableAttributes,
		FilterableAttributes: filterableAttributes,
		SortableAttributes:   sortableAttributes,
	})
	if err != nil {
		return fmt.Errorf("failed to update index settings: %w", err)
	}

	a.ready = true
	a.logger.Debug("index ready", "index", a.index)
	return nil
}

// invalidateIndex clears the readiness cache so the next call recreates
// the index. Used when the instance was wiped underneath us.
func (a *Adapter) invalidateIndex() {
	a.mu.Lock()
	a.ready = false
	a.mu.Unlock()
}

// UpsertMany adds or replaces document payloads.
func (a *Adapter) UpsertMany(ctx context.Context, docs []search.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := a.EnsureIndex(ctx); err != nil {
		return err
	}

	// The primary key is fixed at index creation; passing nil avoids
	// re-stating it per batch.
	_, err := a.client.Index(a.index).AddDocumentsWithContext(ctx, docs, nil)
	if isIndexNotFound(err) {
		a.invalidateIndex()
		if err = a.EnsureIndex(ctx); err != nil {
			return err
		}
		_, err = a.client.Index(a.index).AddDocumentsWithContext(ctx, docs, nil)
	}
	if err != nil {
		return fmt.Errorf("failed to index %d documents: %w", len(docs), err)
	}
	return nil
}

// DeleteOne removes one document from the index. Deleting a document
// that was never indexed is not an error.
func (a *Adapter) DeleteOne(ctx context.Context, id uuid.UUID) error {
	if err := a.EnsureIndex(ctx); err != nil {
		return err
	}
	_, err := a.client.Index(a.index).DeleteDocumentWithContext(ctx, id.String())
	if isIndexNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	return nil
}

// Search returns the matching document IDs for a query page.
func (a *Adapter) Search(ctx context.Context, q search.Query) (*search.Result, error) {
	if err := a.EnsureIndex(ctx); err != nil {
		return nil, err
	}

	sortBy, order := q.Sort()
	req := &meili.SearchRequest{
		Offset: int64(q.Offset()),
		Limit:  int64(q.Limit()),
		Sort:   []string{fmt.Sprintf("%s:%s", sortBy, order)},
	}
	if filter := buildFilterExpression(q); filter != "" {
		req.Filter = filter
	}

	resp, err := a.client.Index(a.index).SearchWithContext(ctx, q.Text, req)
	if isIndexNotFound(err) {
		a.invalidateIndex()
		if err = a.EnsureIndex(ctx); err != nil {
			return nil, err
		}
		resp, err = a.client.Index(a.index).SearchWithContext(ctx, q.Text, req)
	}
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}

	ids, err := decodeHitIDs(resp.Hits)
	if err != nil {
		return nil, err
	}
	total := resp.TotalHits
	if total == 0 {
		total = resp.EstimatedTotalHits
	}
	return &search.Result{IDs: ids, Total: total}, nil
}

// Healthy reports whether the instance answers health checks.
func (a *Adapter) Healthy(ctx context.Context) bool {
	return a.client.IsHealthy()
}

// decodeHitIDs extracts document IDs from raw search hits via a JSON
// round trip, which tolerates hit representation changes across client
// versions.
func decodeHitIDs(hits interface{}) ([]uuid.UUID, error) {
	raw, err := json.Marshal(hits)
	if err != nil {
		return nil, fmt.Errorf("failed to encode search hits: %w", err)
	}
	var rows []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode search hits: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		id, err := uuid.Parse(row.ID)
		if err != nil {
			// Foreign documents in the index are skipped, not fatal.
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func isIndexNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "index_not_found")
}

func isIndexAlreadyExists(err error) bool {
	return err != nil && strings.Contains(err.Error(), "index_already_exists")
}
