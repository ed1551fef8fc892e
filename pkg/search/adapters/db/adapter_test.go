package db

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/docvault/pkg/search"
)

func TestNewAdapterRequiresDB(t *testing.T) {
	_, err := NewAdapter(nil, nil)
	assert.Error(t, err)
}

func TestNoOpOperations(t *testing.T) {
	a := &Adapter{db: &gorm.DB{}}
	ctx := context.Background()

	assert.Equal(t, "db", a.Name())
	assert.NoError(t, a.EnsureIndex(ctx))
	assert.NoError(t, a.UpsertMany(ctx, []search.Document{{ID: "x"}}))
	assert.NoError(t, a.DeleteOne(ctx, uuid.New()))
}

func TestOrderClause(t *testing.T) {
	tests := []struct {
		name  string
		query search.Query
		want  string
	}{
		{
			name:  "default event date desc with nulls last",
			query: search.Query{},
			want:  "documents.event_date DESC NULLS LAST, documents.ingested_at DESC",
		},
		{
			name:  "event date asc keeps nulls last",
			query: search.Query{SortBy: search.SortEventDate, SortOrder: "asc"},
			want:  "documents.event_date ASC NULLS LAST, documents.ingested_at DESC",
		},
		{
			name:  "title asc",
			query: search.Query{SortBy: search.SortTitle, SortOrder: "asc"},
			want:  "documents.title ASC",
		},
		{
			name:  "unknown sort falls back to event date",
			query: search.Query{SortBy: "evil; DROP TABLE", SortOrder: "asc"},
			want:  "documents.event_date ASC NULLS LAST, documents.ingested_at DESC",
		},
		{
			name:  "ingested at desc",
			query: search.Query{SortBy: search.SortIngestedAt, SortOrder: "desc"},
			want:  "documents.ingested_at DESC",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, orderClause(tt.query))
		})
	}
}
