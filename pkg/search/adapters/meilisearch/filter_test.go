package meilisearch

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/hashicorp-forge/docvault/pkg/search"
)

func TestBuildFilterExpression(t *testing.T) {
	categoryID := uuid.MustParse("6f1e43d2-9a7b-4c3d-8e5f-0a1b2c3d4e5f")
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		query search.Query
		want  string
	}{
		{
			name:  "no filters",
			query: search.Query{Text: "pump"},
			want:  "",
		},
		{
			name:  "category id",
			query: search.Query{CategoryID: &categoryID},
			want:  `category_id = "6f1e43d2-9a7b-4c3d-8e5f-0a1b2c3d4e5f"`,
		},
		{
			name:  "category name",
			query: search.Query{CategoryName: "도면"},
			want:  `category = "도면"`,
		},
		{
			name:  "uncategorized virtual category",
			query: search.Query{CategoryName: "미분류"},
			want:  "is_uncategorized = true",
		},
		{
			name:  "tag slug",
			query: search.Query{TagSlug: "kind:manual"},
			want:  `tag_slugs = "kind:manual"`,
		},
		{
			name:  "date range",
			query: search.Query{EventDateFrom: &from, EventDateTo: &to},
			want:  `event_date >= "2024-03-01" AND event_date <= "2024-03-31"`,
		},
		{
			name:  "review status",
			query: search.Query{ReviewStatus: "NEEDS_REVIEW"},
			want:  `review_status = "NEEDS_REVIEW"`,
		},
		{
			name: "all filters joined with AND",
			query: search.Query{
				CategoryID:    &categoryID,
				CategoryName:  "도면",
				TagSlug:       "rev:a",
				EventDateFrom: &from,
				ReviewStatus:  "NONE",
			},
			want: `category_id = "6f1e43d2-9a7b-4c3d-8e5f-0a1b2c3d4e5f"` +
				` AND category = "도면" AND tag_slugs = "rev:a"` +
				` AND event_date >= "2024-03-01" AND review_status = "NONE"`,
		},
		{
			name:  "quotes escaped in category name",
			query: search.Query{CategoryName: `My "Special" Category`},
			want:  `category = "My \"Special\" Category"`,
		},
		{
			name:  "backslashes escaped",
			query: search.Query{TagSlug: `path\to\tag`},
			want:  `tag_slugs = "path\\to\\tag"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildFilterExpression(tt.query))
		})
	}
}

func TestDecodeHitIDs(t *testing.T) {
	a := uuid.New()
	b := uuid.New()

	hits := []map[string]interface{}{
		{"id": a.String(), "title": "first"},
		{"id": "not-a-uuid", "title": "foreign"},
		{"id": b.String(), "title": "second"},
	}

	ids, err := decodeHitIDs(hits)
	assert.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a, b}, ids)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{
			name:    "valid config",
			cfg:     &Config{Host: "http://localhost:7700", APIKey: "masterKey123"},
			wantErr: false,
		},
		{
			name:    "missing host",
			cfg:     &Config{APIKey: "masterKey123"},
			wantErr: true,
		},
		{
			name:    "api key optional",
			cfg:     &Config{Host: "https://search.example.com"},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.SetDefaults()
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, "docvault-documents", tt.cfg.IndexName)
			assert.Equal(t, 10, tt.cfg.TimeoutSeconds)
		})
	}
}
