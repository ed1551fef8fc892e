package classify

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

var fullDatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`),
	regexp.MustCompile(`(\d{4})\.(\d{2})\.(\d{2})`),
	regexp.MustCompile(`(\d{4})/(\d{2})/(\d{2})`),
	regexp.MustCompile(`(\d{4})(\d{2})(\d{2})`),
}

var digitRunRe = regexp.MustCompile(`[0-9]+`)

// safeDate validates a calendar date; time.Date normalizes overflow
// (month 13, day 32) instead of rejecting it, so round-trip and check.
func safeDate(y, m, d int) (time.Time, bool) {
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

// inferCentury expands a two-digit year relative to the ingest time:
// years up to the current two-digit year plus one are 20xx, the rest
// 19xx, then pulled back a century if that lands more than a year in
// the future.
func inferCentury(twoDigitYear int, ingestedAt time.Time) int {
	base := ingestedAt.Year() % 100
	year := 1900 + twoDigitYear
	if twoDigitYear <= base+1 {
		year = 2000 + twoDigitYear
	}
	candidate := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	if candidate.After(ingestedAt.AddDate(1, 0, 0)) {
		year -= 100
	}
	return year
}

// ParseEventDate scans free text for a date. Four-digit-year forms
// (YYYY-MM-DD, YYYY.MM.DD, YYYY/MM/DD, YYYYMMDD) are tried first, then
// a bare YYMMDD run with century inference. Returns the zero time when
// nothing parses.
func ParseEventDate(text string, ingestedAt time.Time) (time.Time, bool) {
	if text == "" {
		return time.Time{}, false
	}

	for _, pattern := range fullDatePatterns {
		m := pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		if t, ok := safeDate(y, mo, d); ok {
			return t, true
		}
	}

	// YYMMDD must be exactly six digits with no digit neighbors, which
	// in RE2 terms is a digit run of length six.
	for _, run := range digitRunRe.FindAllString(text, -1) {
		if len(run) != 6 {
			continue
		}
		yy, _ := strconv.Atoi(run[0:2])
		mo, _ := strconv.Atoi(run[2:4])
		d, _ := strconv.Atoi(run[4:6])
		y := inferCentury(yy, ingestedAt)
		if t, ok := safeDate(y, mo, d); ok {
			return t, true
		}
		return time.Time{}, false
	}

	return time.Time{}, false
}

// ParseMetadataDate parses a producer-supplied timestamp (the chat
// message's sent_at), which arrives in whatever format the producer
// emits. The result is truncated to a date.
func ParseMetadataDate(text string) (time.Time, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false
	}
	t, err := dateparse.ParseAny(text)
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
}
