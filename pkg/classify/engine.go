package classify

import (
	"regexp"
	"sort"
	"strings"
	"time"
)

// Rules is the decoded JSON body of an active rule version. Shape:
//
//	{
//	  "default_category": "기타",
//	  "category_rules": [
//	    {"category": "...", "keywords": {"title": [...], "filename": [...]}, "tags": [...]}
//	  ],
//	  "tag_category_rules": [
//	    {"category": "...", "tags": ["pattern", "prefix*"], "match": "any"|"all"}
//	  ]
//	}
type Rules map[string]interface{}

// Input carries everything the engine may consult for one document.
type Input struct {
	Caption          Caption
	Title            string
	Description      string
	Filename         string
	BodyText         string
	MetadataDateText string
	IngestedAt       time.Time
}

// Output is the classification verdict. Tags is sorted and de-duped;
// ReviewReasons is empty when the document needs no operator attention.
type Output struct {
	Category      string
	Tags          []string
	EventDate     time.Time
	ReviewReasons []string
}

const autoTagLimit = 3
const keywordTagLimit = 12

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "from": {}, "this": {},
	"that": {}, "document": {}, "file": {}, "title": {}, "description": {},
	"manual": {}, "note": {},
	"분류": {}, "날짜": {}, "태그": {}, "문서": {}, "파일": {}, "제목": {},
	"설명": {}, "작성": {}, "수정": {}, "및": {}, "또는": {}, "그리고": {},
}

var (
	tokenRe      = regexp.MustCompile(`[0-9A-Za-z가-힣]{2,}`)
	shortDigitRe = regexp.MustCompile(`^\d{2,8}$`)
	pureDigitRe  = regexp.MustCompile(`^[0-9]+$`)
	symbolOnlyRe = regexp.MustCompile(`^[0-9._/\-]+$`)
)

var kindCategoryMap = map[string]string{
	"manual":       "매뉴얼",
	"guide":        "가이드",
	"account-list": "계정 리스트",
	"drawing":      "도면",
	"main":         "절차",
}

var setCategoryMap = map[string]string{
	"dcp":                         "DCP",
	"general-arrangement-drawing": "General Arrangement Drawing",
}

var genericCategoryKeys = []string{"기타", "default", "misc", "unknown", "uncategorized", "미분류"}

// DefaultCategory is used when a ruleset names no default of its own.
const DefaultCategory = "기타"

func normalizeTagKey(value string) string {
	return whitespaceRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(value)), " ")
}

func slugifyCategory(value string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(value)), " ", "-")
}

func asList(v interface{}) []interface{} {
	if list, ok := v.([]interface{}); ok {
		return list
	}
	return nil
}

func asMap(v interface{}) map[string]interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	return nil
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func stringList(v interface{}) []string {
	var out []string
	for _, item := range asList(v) {
		if s := strings.TrimSpace(asString(item)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// CategoryNames lists every category a ruleset can assign: those named
// by keyword rules, those named by tag rules, and the default. Order is
// first occurrence; a slug-level duplicate keeps its first spelling.
func CategoryNames(rules Rules) []string {
	var names []string
	seen := make(map[string]struct{})

	add := func(raw interface{}) {
		name := strings.TrimSpace(asString(raw))
		if name == "" {
			return
		}
		key := slugifyCategory(name)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		names = append(names, name)
	}

	for _, item := range asList(rules["category_rules"]) {
		if m := asMap(item); m != nil {
			add(m["category"])
		}
	}
	for _, item := range asList(rules["tag_category_rules"]) {
		if m := asMap(item); m != nil {
			add(m["category"])
		}
	}
	add(rules["default_category"])

	if len(names) == 0 {
		names = append(names, DefaultCategory)
	}
	return names
}

func buildAllowedCategoryMap(rules Rules) map[string]string {
	allowed := make(map[string]string)
	for _, name := range CategoryNames(rules) {
		key := normalizeTagKey(name)
		if _, ok := allowed[key]; !ok {
			allowed[key] = name
		}
	}
	return allowed
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

func matchKeywords(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// extractKeywordTags mines lightweight tags out of the title,
// description, and raw caption: tokens of 2+ word characters, minus
// stopwords, pure numbers, and anything already tagged.
func extractKeywordTags(title, description, captionRaw string, existingTags []string) []string {
	merged := strings.TrimSpace(strings.Join([]string{title, description, captionRaw}, " "))
	if merged == "" {
		return nil
	}

	existingKeys := make(map[string]struct{})
	for _, tag := range existingTags {
		if strings.TrimSpace(tag) != "" {
			existingKeys[normalizeTagKey(tag)] = struct{}{}
		}
	}

	var inferred []string
	for _, token := range tokenRe.FindAllString(merged, -1) {
		lowered := strings.ToLower(token)
		if _, ok := stopwords[lowered]; ok {
			continue
		}
		if pureDigitRe.MatchString(token) {
			continue
		}
		if shortDigitRe.MatchString(token) {
			continue
		}

		normalized := token
		if isASCII(token) {
			normalized = lowered
		}
		key := normalizeTagKey(normalized)
		if _, ok := existingKeys[key]; ok {
			continue
		}

		inferred = append(inferred, normalized)
		existingKeys[key] = struct{}{}
		if len(inferred) >= keywordTagLimit {
			break
		}
	}
	return inferred
}

func tagMatchesPattern(tagKeys map[string]struct{}, pattern string) bool {
	normalized := normalizeTagKey(pattern)
	if normalized == "" {
		return false
	}
	if strings.HasSuffix(normalized, "*") {
		prefix := normalized[:len(normalized)-1]
		if prefix == "" {
			return false
		}
		for key := range tagKeys {
			if strings.HasPrefix(key, prefix) {
				return true
			}
		}
		return false
	}
	_, ok := tagKeys[normalized]
	return ok
}

func inferCategoryFromTagRules(tags []string, rules Rules) string {
	tagRules := asList(rules["tag_category_rules"])
	if len(tagRules) == 0 {
		return ""
	}

	tagKeys := make(map[string]struct{})
	for _, tag := range tags {
		if strings.TrimSpace(tag) != "" {
			tagKeys[normalizeTagKey(tag)] = struct{}{}
		}
	}
	if len(tagKeys) == 0 {
		return ""
	}

	for _, item := range tagRules {
		rule := asMap(item)
		if rule == nil {
			continue
		}
		category := strings.TrimSpace(asString(rule["category"]))
		patterns := stringList(rule["tags"])
		if category == "" || len(patterns) == 0 {
			continue
		}

		matchMode := strings.ToLower(strings.TrimSpace(asString(rule["match"])))
		matched := false
		if matchMode == "all" {
			matched = true
			for _, pattern := range patterns {
				if !tagMatchesPattern(tagKeys, pattern) {
					matched = false
					break
				}
			}
		} else {
			for _, pattern := range patterns {
				if tagMatchesPattern(tagKeys, pattern) {
					matched = true
					break
				}
			}
		}
		if matched {
			return category
		}
	}
	return ""
}

func choosePlainTagAsCategory(tags []string, defaultCategory string) string {
	generic := make(map[string]struct{}, len(genericCategoryKeys)+1)
	for _, key := range genericCategoryKeys {
		generic[normalizeTagKey(key)] = struct{}{}
	}
	generic[normalizeTagKey(defaultCategory)] = struct{}{}

	for _, raw := range tags {
		tag := strings.TrimSpace(raw)
		if tag == "" || strings.Contains(tag, ":") {
			continue
		}
		if _, ok := generic[normalizeTagKey(tag)]; ok {
			continue
		}
		if symbolOnlyRe.MatchString(tag) {
			continue
		}
		return tag
	}
	return ""
}

// inferCategoryFromTags resolves a category from the tag set: explicit
// tag rules first, then the kind:/set: structured maps, then optionally
// the first meaningful plain tag.
func inferCategoryFromTags(explicitTags, autoTagCandidates []string, rules Rules, defaultCategory string, allowPlainFallback bool) string {
	seen := make(map[string]struct{})
	var ordered []string
	for _, raw := range append(append([]string{}, explicitTags...), autoTagCandidates...) {
		tag := strings.TrimSpace(raw)
		if tag == "" {
			continue
		}
		key := normalizeTagKey(tag)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		ordered = append(ordered, tag)
	}
	if len(ordered) == 0 {
		return ""
	}

	if byRule := inferCategoryFromTagRules(ordered, rules); byRule != "" {
		return byRule
	}

	structured := ExtractStructuredTagMap(ordered)
	if kind := strings.ToLower(strings.TrimSpace(structured["kind"])); kind != "" {
		if category, ok := kindCategoryMap[kind]; ok {
			return category
		}
	}
	if setKey := strings.ToLower(strings.TrimSpace(structured["set"])); setKey != "" {
		if category, ok := setCategoryMap[setKey]; ok {
			return category
		}
	}

	if allowPlainFallback {
		return choosePlainTagAsCategory(ordered, defaultCategory)
	}
	return ""
}

// Apply runs the full classification pass for one document.
//
// Category resolution order: explicit caption directive (must be in the
// ruleset), then keyword rules over title → description → filename →
// body with the first match winning, then tag-driven inference, then
// the default with a CLASSIFY_FAIL review reason. Auto tags beyond the
// explicit set are capped at three.
func Apply(in Input, rules Rules) Output {
	if rules == nil {
		rules = Rules{}
	}
	allowed := buildAllowedCategoryMap(rules)

	defaultCategory := strings.TrimSpace(asString(rules["default_category"]))
	if defaultCategory == "" {
		defaultCategory = DefaultCategory
	}
	defaultKey := normalizeTagKey(defaultCategory)
	if canonical, ok := allowed[defaultKey]; ok {
		defaultCategory = canonical
	} else {
		allowed[defaultKey] = defaultCategory
	}

	resolveAllowed := func(raw string) string {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return ""
		}
		return allowed[normalizeTagKey(raw)]
	}

	var reviewReasons []string

	var explicitTags []string
	for _, tag := range in.Caption.ExplicitTags {
		if tag = strings.TrimSpace(tag); tag != "" {
			explicitTags = append(explicitTags, tag)
		}
	}
	tags := append([]string{}, explicitTags...)
	var autoTagCandidates []string

	category := defaultCategory
	categoryResolved := false
	if in.Caption.ExplicitCategory != "" {
		if allowedExplicit := resolveAllowed(in.Caption.ExplicitCategory); allowedExplicit != "" {
			category = allowedExplicit
			categoryResolved = true
		} else {
			reviewReasons = append(reviewReasons, ReasonCategoryOutOfRuleset)
		}
	}

	if !categoryResolved {
		orderedSources := []struct {
			name string
			text string
		}{
			{"title", in.Title},
			{"description", in.Description},
			{"filename", in.Filename},
			{"body", in.BodyText},
		}

	sources:
		for _, source := range orderedSources {
			if source.text == "" {
				continue
			}
			for _, item := range asList(rules["category_rules"]) {
				rule := asMap(item)
				if rule == nil {
					continue
				}
				var keywords []string
				if kw := asMap(rule["keywords"]); kw != nil {
					keywords = stringList(kw[source.name])
				}
				if len(keywords) == 0 || !matchKeywords(source.text, keywords) {
					continue
				}
				if resolved := resolveAllowed(asString(rule["category"])); resolved != "" {
					category = resolved
				} else {
					category = defaultCategory
				}
				autoTagCandidates = append(autoTagCandidates, stringList(rule["tags"])...)
				categoryResolved = true
				break sources
			}
		}
	}

	dateCandidates := []string{
		in.Caption.ExplicitDate,
		in.Caption.CaptionRaw,
		in.Title,
		in.Filename,
		in.MetadataDateText,
	}
	var eventDate time.Time
	dateFound := false
	for _, candidate := range dateCandidates {
		if parsed, ok := ParseEventDate(candidate, in.IngestedAt); ok {
			eventDate = parsed
			dateFound = true
			break
		}
	}
	if !dateFound {
		// The producer timestamp is free-form, not limited to the digit
		// patterns above.
		if parsed, ok := ParseMetadataDate(in.MetadataDateText); ok {
			eventDate = parsed
			dateFound = true
		}
	}
	if !dateFound {
		eventDate = in.IngestedAt.UTC().Truncate(24 * time.Hour)
		reviewReasons = append(reviewReasons, ReasonDateMissing)
	}

	autoTagCandidates = append(autoTagCandidates, InferStructuredTags(
		in.Title, in.Description, in.Filename,
		append(append([]string{}, tags...), autoTagCandidates...),
	)...)

	// Keyword tags are mined before category inference so the tag rules
	// can match on them.
	autoTagCandidates = append(autoTagCandidates, extractKeywordTags(
		in.Title, in.Description, in.Caption.CaptionRaw,
		append(append([]string{}, tags...), autoTagCandidates...),
	)...)

	if !categoryResolved {
		inferred := inferCategoryFromTags(explicitTags, autoTagCandidates, rules, defaultCategory, false)
		if strings.TrimSpace(inferred) != "" {
			if allowedInferred := resolveAllowed(inferred); allowedInferred != "" {
				category = allowedInferred
				categoryResolved = true
			} else {
				reviewReasons = append(reviewReasons, ReasonCategoryOutOfRuleset)
			}
		} else {
			reviewReasons = append(reviewReasons, ReasonClassifyFail)
		}
	}

	if !categoryResolved && !containsString(reviewReasons, ReasonClassifyFail) {
		reviewReasons = append(reviewReasons, ReasonClassifyFail)
	}

	if category != "" && category != defaultCategory {
		autoTagCandidates = append(autoTagCandidates, category)
	}

	explicitKeys := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		explicitKeys[normalizeTagKey(tag)] = struct{}{}
	}
	autoKeys := make(map[string]struct{})
	var limitedAutoTags []string
	for _, raw := range autoTagCandidates {
		tag := strings.TrimSpace(raw)
		if tag == "" {
			continue
		}
		key := normalizeTagKey(tag)
		if _, ok := explicitKeys[key]; ok {
			continue
		}
		if _, ok := autoKeys[key]; ok {
			continue
		}
		autoKeys[key] = struct{}{}
		limitedAutoTags = append(limitedAutoTags, tag)
		if len(limitedAutoTags) >= autoTagLimit {
			break
		}
	}

	finalSet := make(map[string]struct{})
	var finalTags []string
	for _, tag := range append(tags, limitedAutoTags...) {
		if _, ok := finalSet[tag]; ok {
			continue
		}
		finalSet[tag] = struct{}{}
		finalTags = append(finalTags, tag)
	}
	sort.Strings(finalTags)

	return Output{
		Category:      category,
		Tags:          finalTags,
		EventDate:     eventDate,
		ReviewReasons: reviewReasons,
	}
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
