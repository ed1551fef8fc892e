package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		name     string
		filename string
		want     string
	}{
		{"simple", "report.pdf", "report"},
		{"separators collapse", "site_survey--2024.xlsx", "site survey 2024"},
		{"path stripped", "/tmp/upload/설비_점검.hwp", "설비 점검"},
		{"windows path stripped", `C:\docs\crane manual.pdf`, "crane manual"},
		{"no extension", "README", "README"},
		{"dotfile keeps name", ".env", ".env"},
		{"empty", "", "Untitled"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SanitizeFilename(tc.filename))
		})
	}
}

func TestParseCaption(t *testing.T) {
	t.Run("empty caption falls back to filename", func(t *testing.T) {
		got := ParseCaption("", "crane_manual_rev3.pdf")
		assert.Equal(t, "crane manual rev3", got.Title)
		assert.Empty(t, got.Description)
		assert.Empty(t, got.ExplicitCategory)
		assert.Empty(t, got.ExplicitTags)
	})

	t.Run("directives lifted out of description", func(t *testing.T) {
		caption := "크레인 정기점검 보고서\n" +
			"#분류: 점검\n" +
			"#날짜: 2024-03-15\n" +
			"#태그: 크레인, 정기점검 , \n" +
			"월간 점검 결과입니다."
		got := ParseCaption(caption, "x.pdf")

		assert.Equal(t, "크레인 정기점검 보고서", got.Title)
		assert.Equal(t, "점검", got.ExplicitCategory)
		assert.Equal(t, "2024-03-15", got.ExplicitDate)
		assert.Equal(t, []string{"크레인", "정기점검"}, got.ExplicitTags)
		assert.Equal(t, "월간 점검 결과입니다.", got.Description)
		assert.Equal(t, caption, got.CaptionRaw)
	})

	t.Run("escaped newlines normalized when no real ones", func(t *testing.T) {
		got := ParseCaption(`제목\n#분류: 도면`, "x.pdf")
		assert.Equal(t, "제목", got.Title)
		assert.Equal(t, "도면", got.ExplicitCategory)
	})

	t.Run("escaped newlines untouched beside real ones", func(t *testing.T) {
		got := ParseCaption("제목\nliteral \\n stays", "x.pdf")
		assert.Equal(t, "제목", got.Title)
		assert.Equal(t, "literal \\n stays", got.Description)
	})

	t.Run("whitespace-only caption falls back", func(t *testing.T) {
		got := ParseCaption("   \n  ", "doc.txt")
		assert.Equal(t, "doc", got.Title)
	})

	t.Run("directive matching is case insensitive on prefix", func(t *testing.T) {
		got := ParseCaption("title\n#태그:a,b", "x.pdf")
		assert.Equal(t, []string{"a", "b"}, got.ExplicitTags)
	})
}
