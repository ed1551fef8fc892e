// Package db implements the search provider on the catalog database
// itself, using the documents table's tsvector column. It is the
// fallback backend when no Meilisearch instance is configured, and
// needs no index synchronization.
package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/docvault/pkg/models"
	"github.com/hashicorp-forge/docvault/pkg/search"
)

// Adapter implements search.Provider on the primary database.
type Adapter struct {
	db     *gorm.DB
	logger hclog.Logger
}

// NewAdapter creates a database-backed search provider.
func NewAdapter(db *gorm.DB, logger hclog.Logger) (*Adapter, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle is required")
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Adapter{db: db, logger: logger.Named("search-db")}, nil
}

// Name returns the adapter name.
func (a *Adapter) Name() string {
	return "db"
}

// EnsureIndex is a no-op; the tsvector index is created by migration.
func (a *Adapter) EnsureIndex(ctx context.Context) error {
	return nil
}

// UpsertMany is a no-op; the database reads its own rows.
func (a *Adapter) UpsertMany(ctx context.Context, docs []search.Document) error {
	return nil
}

// DeleteOne is a no-op; deleted rows stop matching on their own.
func (a *Adapter) DeleteOne(ctx context.Context, id uuid.UUID) error {
	return nil
}

// Search runs a full-text query against the documents table.
func (a *Adapter) Search(ctx context.Context, q search.Query) (*search.Result, error) {
	tx := a.db.WithContext(ctx).Model(&models.Document{})

	if text := strings.TrimSpace(q.Text); text != "" {
		tx = tx.Where("documents.search_vector @@ plainto_tsquery('simple', ?)", text)
	}
	if q.CategoryID != nil {
		tx = tx.Where("documents.category_id = ?", q.CategoryID)
	}
	if q.CategoryName != "" {
		if q.CategoryName == "미분류" {
			tx = tx.Where("documents.category_id IS NULL")
		} else {
			tx = tx.Where(
				"documents.category_id IN (SELECT id FROM categories WHERE name = ?)",
				q.CategoryName)
		}
	}
	if q.TagSlug != "" {
		tx = tx.Where(
			`EXISTS (SELECT 1 FROM document_tags dt
			 JOIN tags t ON t.id = dt.tag_id
			 WHERE dt.document_id = documents.id
			   AND regexp_replace(lower(trim(t.name)), '\s+', '-', 'g') = ?)`,
			q.TagSlug)
	}
	if q.EventDateFrom != nil {
		tx = tx.Where("documents.event_date >= ?", q.EventDateFrom.Format("2006-01-02"))
	}
	if q.EventDateTo != nil {
		tx = tx.Where("documents.event_date <= ?", q.EventDateTo.Format("2006-01-02"))
	}
	if q.ReviewStatus != "" {
		tx = tx.Where("documents.review_status = ?", q.ReviewStatus)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count search matches: %w", err)
	}

	var ids []uuid.UUID
	err := tx.Order(orderClause(q)).
		Offset(q.Offset()).
		Limit(q.Limit()).
		Pluck("documents.id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to run search query: %w", err)
	}

	return &search.Result{IDs: ids, Total: total}, nil
}

// Healthy reports whether the database answers a ping.
func (a *Adapter) Healthy(ctx context.Context) bool {
	sqlDB, err := a.db.DB()
	if err != nil {
		return false
	}
	return sqlDB.PingContext(ctx) == nil
}

// orderClause maps the validated sort onto a SQL ORDER BY expression.
// Nullable sort keys push missing values last regardless of direction.
func orderClause(q search.Query) string {
	sortBy, order := q.Sort()
	column := "documents." + sortBy
	if sortBy == search.SortEventDate {
		return fmt.Sprintf("%s %s NULLS LAST, documents.ingested_at DESC", column, strings.ToUpper(order))
	}
	return fmt.Sprintf("%s %s", column, strings.ToUpper(order))
}
