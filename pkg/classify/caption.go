// Package classify turns a raw caption and file metadata into a
// category, tags, and an event date by applying the active ruleset.
package classify

import (
	"regexp"
	"strings"
)

// Review reasons attached to documents that need operator attention.
const (
	ReasonClassifyFail         = "CLASSIFY_FAIL"
	ReasonDateMissing          = "DATE_MISSING"
	ReasonCategoryOutOfRuleset = "CATEGORY_OUT_OF_RULESET"
	ReasonDuplicateSuspect     = "DUPLICATE_SUSPECT"
	ReasonLegacyFileMissing    = "LEGACY_FILE_MISSING"
)

// Caption is the parsed form of a producer caption. The first non-empty
// line becomes the title; #분류/#날짜/#태그 directive lines are lifted out
// of the description.
type Caption struct {
	Title            string
	Description      string
	CaptionRaw       string
	ExplicitCategory string
	ExplicitDate     string
	ExplicitTags     []string
}

var (
	captionCategoryRe = regexp.MustCompile(`(?i)^#분류\s*:\s*(.+)$`)
	captionDateRe     = regexp.MustCompile(`(?i)^#날짜\s*:\s*(.+)$`)
	captionTagsRe     = regexp.MustCompile(`(?i)^#태그\s*:\s*(.+)$`)

	filenameSeparatorRe = regexp.MustCompile(`[_\-]+`)
	whitespaceRe        = regexp.MustCompile(`\s+`)
)

// SanitizeFilename derives a human title from a filename: strip any
// directory part and extension, then collapse separators to spaces.
func SanitizeFilename(filename string) string {
	name := filename
	if idx := strings.LastIndexByte(name, '/'); idx >= 0 {
		name = name[idx+1:]
	}
	if idx := strings.LastIndexByte(name, '\\'); idx >= 0 {
		name = name[idx+1:]
	}
	if idx := strings.LastIndexByte(name, '.'); idx > 0 {
		name = name[:idx]
	}
	name = filenameSeparatorRe.ReplaceAllString(name, " ")
	name = strings.TrimSpace(whitespaceRe.ReplaceAllString(name, " "))
	if name == "" {
		return "Untitled"
	}
	return name
}

// Manual multipart uploads occasionally send escaped newlines as plain
// text. Normalize only when real newline characters are absent.
func normalizeCaptionText(caption string) string {
	if !strings.Contains(caption, "\n") && strings.Contains(caption, `\n`) {
		caption = strings.ReplaceAll(caption, `\r\n`, "\n")
		caption = strings.ReplaceAll(caption, `\n`, "\n")
	}
	return caption
}

// ParseCaption splits a caption into title, description, and explicit
// directives. An empty caption falls back to the sanitized filename as
// the title.
func ParseCaption(caption, filename string) Caption {
	result := Caption{
		CaptionRaw:   caption,
		ExplicitTags: []string{},
	}

	var bodyLines []string
	if strings.TrimSpace(caption) != "" {
		normalized := normalizeCaptionText(caption)
		var nonEmpty []string
		for _, line := range strings.Split(normalized, "\n") {
			line = strings.TrimRight(line, " \t\r")
			if strings.TrimSpace(line) != "" {
				nonEmpty = append(nonEmpty, line)
			}
		}
		if len(nonEmpty) > 0 {
			result.Title = strings.TrimSpace(nonEmpty[0])
			bodyLines = nonEmpty[1:]
		} else {
			result.Title = SanitizeFilename(filename)
		}
	} else {
		result.Title = SanitizeFilename(filename)
	}

	var cleaned []string
	for _, line := range bodyLines {
		s := strings.TrimSpace(line)
		if m := captionCategoryRe.FindStringSubmatch(s); m != nil {
			result.ExplicitCategory = strings.TrimSpace(m[1])
			continue
		}
		if m := captionDateRe.FindStringSubmatch(s); m != nil {
			result.ExplicitDate = strings.TrimSpace(m[1])
			continue
		}
		if m := captionTagsRe.FindStringSubmatch(s); m != nil {
			result.ExplicitTags = result.ExplicitTags[:0]
			for _, t := range strings.Split(m[1], ",") {
				if t = strings.TrimSpace(t); t != "" {
					result.ExplicitTags = append(result.ExplicitTags, t)
				}
			}
			continue
		}
		cleaned = append(cleaned, line)
	}
	result.Description = strings.TrimSpace(strings.Join(cleaned, "\n"))

	return result
}
