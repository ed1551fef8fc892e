package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractStructuredTagMap(t *testing.T) {
	tags := []string{
		"crane", "kind:manual", " rev: 3 ", "kind:guide", "lang:", "set:dcp",
		"color:red",
	}
	got := ExtractStructuredTagMap(tags)

	assert.Equal(t, map[string]string{
		"kind": "manual",
		"rev":  "3",
		"set":  "dcp",
	}, got)
}

func TestExtractRevisionFromTitle(t *testing.T) {
	cases := []struct {
		title string
		want  string
	}{
		{"Crane Manual Rev.3", "3"},
		{"Outline revision B final", "b"},
		{"rev 2a plan", "2a"},
		{"no marker here", ""},
	}

	for _, tc := range cases {
		got := ExtractRevisionFromTitle(tc.title)
		assert.Equal(t, tc.want, normalizeOrEmpty(got), tc.title)
	}
}

func normalizeOrEmpty(s string) string {
	if s == "" {
		return ""
	}
	return normalizeSlugValue(s)
}

func TestInferStructuredTags(t *testing.T) {
	t.Run("set rule adds set and dockey", func(t *testing.T) {
		got := InferStructuredTags("Document Control Procedure Rev.2", "", "dcp_rev2.pdf", nil)
		assert.Contains(t, got, "set:dcp")
		assert.Contains(t, got, "dockey:document-control-procedure")
		assert.Contains(t, got, "rev:2")
	})

	t.Run("existing keys never overridden", func(t *testing.T) {
		got := InferStructuredTags("DCP manual", "", "", []string{"set:custom", "kind:drawing"})
		assert.NotContains(t, got, "set:dcp")
		for _, tag := range got {
			assert.NotContains(t, tag, "kind:")
		}
		// dockey still inferable from the matched set rule
		assert.Contains(t, got, "dockey:document-control-procedure")
	})

	t.Run("draft revision from text", func(t *testing.T) {
		got := InferStructuredTags("General Arrangement Drawing draft", "", "", nil)
		assert.Contains(t, got, "set:general-arrangement-drawing")
		assert.Contains(t, got, "rev:draft")
	})

	t.Run("language keywords", func(t *testing.T) {
		got := InferStructuredTags("계정 리스트 (영문)", "", "", nil)
		assert.Contains(t, got, "kind:account-list")
		assert.Contains(t, got, "lang:en")
	})

	t.Run("nothing inferable", func(t *testing.T) {
		got := InferStructuredTags("잡담", "", "photo.jpg", nil)
		assert.Empty(t, got)
	})
}
