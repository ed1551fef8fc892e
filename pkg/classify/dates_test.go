package classify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseEventDate(t *testing.T) {
	ingestedAt := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		text   string
		want   time.Time
		wantOK bool
	}{
		{"iso dashes", "점검 보고서 2024-03-15 최종", date(2024, time.March, 15), true},
		{"dots", "2023.11.02 작성", date(2023, time.November, 2), true},
		{"slashes", "rev 2022/01/31", date(2022, time.January, 31), true},
		{"compact eight digits", "doc_20240315_final", date(2024, time.March, 15), true},
		{"yymmdd current century", "scan_240315", date(2024, time.March, 15), true},
		{"yymmdd previous century", "archive 991231", date(1999, time.December, 31), true},
		{"yymmdd next year allowed", "250101 plan", date(2025, time.January, 1), true},
		{"invalid calendar date skipped", "2024-13-45", time.Time{}, false},
		{"seven digit run ignored", "serial 2403155", time.Time{}, false},
		{"no date", "그냥 텍스트", time.Time{}, false},
		{"empty", "", time.Time{}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseEventDate(tc.text, ingestedAt)
			assert.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func TestInferCentury(t *testing.T) {
	ingestedAt := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 2024, inferCentury(24, ingestedAt))
	assert.Equal(t, 2025, inferCentury(25, ingestedAt))
	assert.Equal(t, 1926, inferCentury(26, ingestedAt))
	assert.Equal(t, 1999, inferCentury(99, ingestedAt))
	assert.Equal(t, 2000, inferCentury(0, ingestedAt))
}

func TestParseMetadataDate(t *testing.T) {
	cases := []struct {
		name   string
		text   string
		want   time.Time
		wantOK bool
	}{
		{"rfc3339", "2024-03-01T12:34:56+09:00", date(2024, time.March, 1), true},
		{"space separated", "2024-03-01 12:34:56", date(2024, time.March, 1), true},
		{"unix-style text", "Mar 1, 2024 12:04 PM", date(2024, time.March, 1), true},
		// Producer timestamps are free-form text, so month names parse
		// here even though ParseEventDate only accepts digit patterns.
		{"long month name", "March 5, 2026", date(2026, time.March, 5), true},
		{"day first month name", "5 March 2026", date(2026, time.March, 5), true},
		{"garbage", "yesterday-ish", time.Time{}, false},
		{"empty", "  ", time.Time{}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseMetadataDate(tc.text)
			assert.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}
