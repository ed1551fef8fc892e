package classify

import (
	"regexp"
	"strings"
)

// Structured tags carry a "key:value" form. The recognized keys map a
// document into a revisioned set: set, dockey, rev, kind, lang.

var (
	revisionRe = regexp.MustCompile(`(?i)\brev(?:ision)?\.?\s*([a-z0-9\-_]+)\b`)
	nonSlugRe  = regexp.MustCompile(`[^0-9a-z]+`)
	draftRe    = regexp.MustCompile(`\bdraft\b`)
)

type setRule struct {
	set      string
	dockey   string
	patterns []*regexp.Regexp
}

type keywordRule struct {
	value    string
	patterns []*regexp.Regexp
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

var setRules = []setRule{
	{
		set:      "dcp",
		dockey:   "document-control-procedure",
		patterns: compileAll(`\bdcp\b`, `document control procedure`),
	},
	{
		set:      "general-arrangement-drawing",
		dockey:   "general-arrangement-drawing",
		patterns: compileAll(`general arrangement drawing`, `\bgad\b`),
	},
}

var kindRules = []keywordRule{
	{"manual", compileAll(`\bmanual\b`, `매뉴얼`)},
	{"guide", compileAll(`\bguide\b`, `이용 방법`, `문서 교환 시스템 소개`)},
	{"account-list", compileAll(`account list`, `계정 리스트`, `necessaryinformation`)},
	{"drawing", compileAll(`\bdrawing\b`, `도면`)},
	{"main", compileAll(`\bprocedure\b`, `절차`)},
}

var langRules = []keywordRule{
	{"ko", compileAll(`한글`, `국문`, `korean`)},
	{"en", compileAll(`영문`, `english`)},
}

// ExtractRevisionFromTitle pulls a "Rev.3" / "revision B" marker out of
// free text, returning the raw revision token or "".
func ExtractRevisionFromTitle(title string) string {
	m := revisionRe.FindStringSubmatch(title)
	if m == nil {
		return ""
	}
	return m[1]
}

// ExtractStructuredTagMap collects the first value seen per recognized
// structured key. Later duplicates never override.
func ExtractStructuredTagMap(tags []string) map[string]string {
	tagMap := make(map[string]string)
	for _, raw := range tags {
		tag := strings.TrimSpace(raw)
		key, value, found := strings.Cut(tag, ":")
		if !found {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		switch key {
		case "set", "dockey", "rev", "kind", "lang":
			if _, ok := tagMap[key]; !ok {
				tagMap[key] = value
			}
		}
	}
	return tagMap
}

func normalizeSlugValue(value string) string {
	lowered := whitespaceRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(value)), " ")
	return strings.Trim(nonSlugRe.ReplaceAllString(lowered, "-"), "-")
}

func anyMatch(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// InferStructuredTags derives structured tags from the document's
// title, description, and filename. Existing structured keys are never
// overridden.
func InferStructuredTags(title, description, filename string, existingTags []string) []string {
	var inferred []string
	existing := ExtractStructuredTagMap(existingTags)
	merged := strings.ToLower(strings.Join([]string{title, description, filename}, " "))

	_, hasSet := existing["set"]
	_, hasDockey := existing["dockey"]
	if !hasSet || !hasDockey {
		for _, rule := range setRules {
			if !anyMatch(rule.patterns, merged) {
				continue
			}
			if !hasSet {
				inferred = append(inferred, "set:"+rule.set)
				existing["set"] = rule.set
			}
			if !hasDockey {
				inferred = append(inferred, "dockey:"+rule.dockey)
				existing["dockey"] = rule.dockey
			}
			break
		}
	}

	if _, ok := existing["rev"]; !ok {
		revision := ExtractRevisionFromTitle(title)
		if revision == "" {
			revision = ExtractRevisionFromTitle(filename)
		}
		if revision != "" {
			if normalized := normalizeSlugValue(revision); normalized != "" {
				inferred = append(inferred, "rev:"+normalized)
				existing["rev"] = normalized
			}
		} else if draftRe.MatchString(merged) {
			inferred = append(inferred, "rev:draft")
			existing["rev"] = "draft"
		}
	}

	if _, ok := existing["kind"]; !ok {
		for _, rule := range kindRules {
			if anyMatch(rule.patterns, merged) {
				inferred = append(inferred, "kind:"+rule.value)
				existing["kind"] = rule.value
				break
			}
		}
	}

	if _, ok := existing["lang"]; !ok {
		for _, rule := range langRules {
			if anyMatch(rule.patterns, merged) {
				inferred = append(inferred, "lang:"+rule.value)
				existing["lang"] = rule.value
				break
			}
		}
	}

	return inferred
}
