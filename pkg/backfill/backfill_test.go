package backfill

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestSortedSet(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{
			name:  "dedupes and sorts",
			input: []string{"b", "a", "b", "c"},
			want:  []string{"a", "b", "c"},
		},
		{
			name:  "trims and drops empties",
			input: []string{" 도면 ", "", "  ", "점검"},
			want:  []string{"도면", "점검"},
		},
		{
			name:  "nil input",
			input: nil,
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sortedSet(tt.input))
		})
	}
}

func TestFilterDetail(t *testing.T) {
	assert.Nil(t, filterDetail(nil))

	catID := uuid.New()
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	detail := filterDetail(&Filter{
		CategoryID: &catID,
		From:       &from,
		ReviewOnly: true,
	})

	assert.Equal(t, catID.String(), detail["category_id"])
	assert.Equal(t, "2024-03-01", detail["from"])
	assert.Equal(t, true, detail["review_only"])
	assert.NotContains(t, detail, "to")
}
