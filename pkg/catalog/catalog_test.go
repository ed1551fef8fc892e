package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTagNames(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{
			name:  "trims and drops empties",
			input: []string{" 점검 ", "", "  ", "도면"},
			want:  []string{"점검", "도면"},
		},
		{
			name:  "dedupes by slug keeping first casing",
			input: []string{"Pump Manual", "pump manual", "PUMP MANUAL"},
			want:  []string{"Pump Manual"},
		},
		{
			name:  "structured tags kept verbatim",
			input: []string{"kind:manual", "rev:a", "kind:manual"},
			want:  []string{"kind:manual", "rev:a"},
		},
		{
			name:  "nil input",
			input: nil,
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeTagNames(tt.input))
		})
	}
}

func TestRemoveReason(t *testing.T) {
	reasons := []string{"CLASSIFY_FAIL", "DATE_MISSING", "DUPLICATE_SUSPECT"}

	assert.Equal(t,
		[]string{"CLASSIFY_FAIL", "DUPLICATE_SUSPECT"},
		removeReason(reasons, "DATE_MISSING"))
	assert.Equal(t, reasons, removeReason(reasons, "UNKNOWN"))
	assert.Empty(t, removeReason([]string{"X"}, "X"))
}

func TestSameTagSet(t *testing.T) {
	assert.True(t, sameTagSet([]string{"a", "b"}, []string{"b", "a"}))
	assert.True(t, sameTagSet(nil, []string{}))
	assert.False(t, sameTagSet([]string{"a"}, []string{"a", "b"}))
	assert.False(t, sameTagSet([]string{"a", "c"}, []string{"a", "b"}))
}
