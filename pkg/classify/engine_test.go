package classify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRules = Rules{
	"default_category": "기타",
	"category_rules": []interface{}{
		map[string]interface{}{
			"category": "점검",
			"keywords": map[string]interface{}{
				"title":    []interface{}{"점검", "inspection"},
				"filename": []interface{}{"inspect"},
			},
			"tags": []interface{}{"점검"},
		},
		map[string]interface{}{
			"category": "도면",
			"keywords": map[string]interface{}{
				"filename": []interface{}{"dwg", "drawing"},
			},
		},
		map[string]interface{}{
			"category": "DCP",
			"keywords": map[string]interface{}{
				"body": []interface{}{"document control procedure"},
			},
		},
	},
	"tag_category_rules": []interface{}{
		map[string]interface{}{
			"category": "매뉴얼",
			"tags":     []interface{}{"kind:manual", "manual*"},
		},
		map[string]interface{}{
			"category": "절차",
			"tags":     []interface{}{"sop", "approved*"},
			"match":    "all",
		},
	},
}

func testInput(caption Caption, title, filename string) Input {
	return Input{
		Caption:    caption,
		Title:      title,
		Filename:   filename,
		IngestedAt: time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestApplyExplicitCategory(t *testing.T) {
	t.Run("explicit category in ruleset wins", func(t *testing.T) {
		caption := Caption{
			ExplicitCategory: "점검",
			ExplicitDate:     "2024-03-15",
			ExplicitTags:     []string{"크레인"},
		}
		got := Apply(testInput(caption, "아무 제목", "file.pdf"), testRules)

		assert.Equal(t, "점검", got.Category)
		assert.Equal(t, date(2024, time.March, 15), got.EventDate)
		assert.Empty(t, got.ReviewReasons)
		assert.Contains(t, got.Tags, "크레인")
	})

	t.Run("explicit category outside ruleset flags review", func(t *testing.T) {
		caption := Caption{ExplicitCategory: "비밀분류", ExplicitDate: "2024-01-01"}
		got := Apply(testInput(caption, "아무 제목", "file.pdf"), testRules)

		assert.Equal(t, "기타", got.Category)
		assert.Contains(t, got.ReviewReasons, ReasonCategoryOutOfRuleset)
	})

	t.Run("case and spacing insensitive match keeps canonical spelling", func(t *testing.T) {
		rules := Rules{
			"default_category": "Misc",
			"category_rules": []interface{}{
				map[string]interface{}{
					"category": "Account List",
					"keywords": map[string]interface{}{"title": []interface{}{"account"}},
				},
			},
		}
		caption := Caption{ExplicitCategory: "  account  list ", ExplicitDate: "2024-01-01"}
		got := Apply(testInput(caption, "t", "f.pdf"), rules)

		assert.Equal(t, "Account List", got.Category)
	})
}

func TestApplyKeywordRules(t *testing.T) {
	t.Run("title beats filename", func(t *testing.T) {
		caption := Caption{ExplicitDate: "2024-01-01"}
		got := Apply(testInput(caption, "월간 점검 보고", "drawing_007.pdf"), testRules)

		assert.Equal(t, "점검", got.Category)
		assert.Contains(t, got.Tags, "점검")
	})

	t.Run("filename rule fires when title silent", func(t *testing.T) {
		caption := Caption{ExplicitDate: "2024-01-01"}
		got := Apply(testInput(caption, "무제", "crane_drawing.pdf"), testRules)

		assert.Equal(t, "도면", got.Category)
	})

	t.Run("keyword match is substring and case insensitive", func(t *testing.T) {
		caption := Caption{ExplicitDate: "2024-01-01"}
		got := Apply(testInput(caption, "Monthly INSPECTION summary", "x.pdf"), testRules)

		assert.Equal(t, "점검", got.Category)
	})
}

func TestApplyTagInference(t *testing.T) {
	t.Run("structured kind routes through tag rules", func(t *testing.T) {
		caption := Caption{ExplicitDate: "2024-01-01", ExplicitTags: []string{"kind:manual"}}
		got := Apply(testInput(caption, "크레인", "x.pdf"), testRules)

		assert.Equal(t, "매뉴얼", got.Category)
		assert.Empty(t, got.ReviewReasons)
	})

	t.Run("all-mode rule needs every pattern", func(t *testing.T) {
		caption := Caption{ExplicitDate: "2024-01-01", ExplicitTags: []string{"sop"}}
		got := Apply(testInput(caption, "무언가", "x.pdf"), testRules)
		assert.NotEqual(t, "절차", got.Category)

		caption.ExplicitTags = []string{"sop", "approved-2024"}
		got = Apply(testInput(caption, "무언가", "x.pdf"), testRules)
		assert.Equal(t, "절차", got.Category)
	})

	t.Run("structured set map resolves known document sets", func(t *testing.T) {
		caption := Caption{ExplicitDate: "2024-01-01", ExplicitTags: []string{"set:dcp"}}
		got := Apply(testInput(caption, "무언가", "x.pdf"), testRules)
		assert.Equal(t, "DCP", got.Category)
	})

	t.Run("inferred structured tags can resolve category", func(t *testing.T) {
		caption := Caption{ExplicitDate: "2024-01-01"}
		got := Apply(testInput(caption, "Equipment Manual Rev.2", "x.pdf"), testRules)

		// kind:manual is inferred from the title, then the tag rule maps
		// it to 매뉴얼.
		assert.Equal(t, "매뉴얼", got.Category)
		assert.Empty(t, got.ReviewReasons)
	})

	t.Run("nothing resolves falls back to default with review", func(t *testing.T) {
		caption := Caption{ExplicitDate: "2024-01-01"}
		got := Apply(testInput(caption, "ㅁ", "ㅁ.bin"), testRules)

		assert.Equal(t, "기타", got.Category)
		assert.Contains(t, got.ReviewReasons, ReasonClassifyFail)
	})
}

func TestApplyEventDate(t *testing.T) {
	t.Run("explicit date beats title date", func(t *testing.T) {
		caption := Caption{ExplicitCategory: "점검", ExplicitDate: "2023-05-05"}
		got := Apply(testInput(caption, "보고 2024-01-01", "x.pdf"), testRules)
		assert.Equal(t, date(2023, time.May, 5), got.EventDate)
	})

	t.Run("filename date used when caption silent", func(t *testing.T) {
		caption := Caption{ExplicitCategory: "점검"}
		got := Apply(testInput(caption, "무제", "scan_20240315.pdf"), testRules)
		assert.Equal(t, date(2024, time.March, 15), got.EventDate)
		assert.NotContains(t, got.ReviewReasons, ReasonDateMissing)
	})

	t.Run("free-form metadata date avoids the fallback", func(t *testing.T) {
		in := testInput(Caption{ExplicitCategory: "점검"}, "무제", "x.pdf")
		in.MetadataDateText = "March 5, 2026"
		got := Apply(in, testRules)

		assert.Equal(t, date(2026, time.March, 5), got.EventDate)
		assert.NotContains(t, got.ReviewReasons, ReasonDateMissing)
	})

	t.Run("missing date falls back to ingest day", func(t *testing.T) {
		caption := Caption{ExplicitCategory: "점검"}
		got := Apply(testInput(caption, "무제", "x.pdf"), testRules)
		assert.Equal(t, date(2024, time.June, 1), got.EventDate)
		assert.Contains(t, got.ReviewReasons, ReasonDateMissing)
	})
}

func TestApplyTagLimits(t *testing.T) {
	t.Run("auto tags capped at three beyond explicit", func(t *testing.T) {
		caption := Caption{
			ExplicitCategory: "점검",
			ExplicitDate:     "2024-01-01",
			ExplicitTags:     []string{"유지보수"},
		}
		in := testInput(caption, "crane hoist gearbox motor brake coupling", "x.pdf")
		got := Apply(in, testRules)

		autoCount := 0
		for _, tag := range got.Tags {
			if tag != "유지보수" {
				autoCount++
			}
		}
		assert.LessOrEqual(t, autoCount, autoTagLimit)
		assert.Contains(t, got.Tags, "유지보수")
	})

	t.Run("tags are sorted and unique", func(t *testing.T) {
		caption := Caption{
			ExplicitCategory: "점검",
			ExplicitDate:     "2024-01-01",
			ExplicitTags:     []string{"b-tag", "a-tag", "b-tag"},
		}
		got := Apply(testInput(caption, "무제", "x.pdf"), testRules)

		require.NotEmpty(t, got.Tags)
		for i := 1; i < len(got.Tags); i++ {
			assert.LessOrEqual(t, got.Tags[i-1], got.Tags[i])
		}
	})

	t.Run("non-default category joins tags", func(t *testing.T) {
		caption := Caption{ExplicitCategory: "점검", ExplicitDate: "2024-01-01"}
		got := Apply(testInput(caption, "ㅁ", "ㅁ.bin"), testRules)
		assert.Contains(t, got.Tags, "점검")
	})
}

func TestApplyNilRules(t *testing.T) {
	caption := Caption{ExplicitDate: "2024-01-01"}
	got := Apply(testInput(caption, "무제", "x.pdf"), nil)

	assert.Equal(t, DefaultCategory, got.Category)
	assert.Contains(t, got.ReviewReasons, ReasonClassifyFail)
}

func TestCategoryNames(t *testing.T) {
	names := CategoryNames(testRules)
	assert.Equal(t, []string{"점검", "도면", "DCP", "매뉴얼", "절차", "기타"}, names)

	assert.Equal(t, []string{DefaultCategory}, CategoryNames(Rules{}))
}

func TestExtractKeywordTags(t *testing.T) {
	got := extractKeywordTags(
		"Crane Inspection 2024 Report", "the quick 점검 결과", "", []string{"crane"},
	)

	assert.NotContains(t, got, "crane")
	assert.NotContains(t, got, "the")
	assert.NotContains(t, got, "2024")
	assert.Contains(t, got, "inspection")
	assert.Contains(t, got, "점검")
	assert.LessOrEqual(t, len(got), keywordTagLimit)
}
