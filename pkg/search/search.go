// Package search defines the search provider interface and the
// document payload pushed into external indexes.
package search

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sort keys accepted by providers.
const (
	SortEventDate  = "event_date"
	SortIngestedAt = "ingested_at"
	SortTitle      = "title"
	SortCreatedAt  = "created_at"
)

// Document is the denormalized search payload for one catalog entry.
type Document struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Summary         string   `json:"summary"`
	CaptionRaw      string   `json:"caption_raw"`
	Source          string   `json:"source"`
	SourceRef       *string  `json:"source_ref"`
	CategoryID      *string  `json:"category_id"`
	Category        *string  `json:"category"`
	EventDate       *string  `json:"event_date"`
	IngestedAt      string   `json:"ingested_at"`
	CreatedAt       string   `json:"created_at"`
	ReviewStatus    string   `json:"review_status"`
	Tags            []string `json:"tags"`
	TagSlugs        []string `json:"tag_slugs"`
	IsUncategorized bool     `json:"is_uncategorized"`
}

// Query is one search request.
type Query struct {
	Text string
	Page int
	Size int

	SortBy    string
	SortOrder string

	CategoryID    *uuid.UUID
	CategoryName  string
	TagSlug       string
	EventDateFrom *time.Time
	EventDateTo   *time.Time
	ReviewStatus  string
}

// Offset returns the zero-based offset for the query's page.
func (q Query) Offset() int {
	offset := (q.Page - 1) * q.Size
	if offset < 0 {
		return 0
	}
	return offset
}

// Limit returns the page size, at least one.
func (q Query) Limit() int {
	if q.Size < 1 {
		return 1
	}
	return q.Size
}

// Sort returns the validated sort key and order.
func (q Query) Sort() (string, string) {
	sortBy := q.SortBy
	switch sortBy {
	case SortEventDate, SortIngestedAt, SortTitle, SortCreatedAt:
	default:
		sortBy = SortEventDate
	}
	order := strings.ToLower(q.SortOrder)
	if order != "asc" {
		order = "desc"
	}
	return sortBy, order
}

// Result is the ordered ID page plus the total match count.
type Result struct {
	IDs   []uuid.UUID
	Total int64
}

// Provider is one search backend.
type Provider interface {
	// Name identifies the backend for logs and metrics.
	Name() string

	// EnsureIndex prepares the index (creation, attribute settings).
	// Safe to call repeatedly; implementations cache readiness.
	EnsureIndex(ctx context.Context) error

	// UpsertMany adds or replaces document payloads.
	UpsertMany(ctx context.Context, docs []Document) error

	// DeleteOne removes one document from the index.
	DeleteOne(ctx context.Context, id uuid.UUID) error

	// Search returns the matching document IDs for a query page.
	Search(ctx context.Context, q Query) (*Result, error)

	// Healthy reports whether the backend is reachable.
	Healthy(ctx context.Context) bool
}

var tagSlugRe = regexp.MustCompile(`\s+`)

// TagSlug normalizes a tag name to its filterable slug form.
func TagSlug(name string) string {
	return tagSlugRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}
