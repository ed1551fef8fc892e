package ingest

import (
	"fmt"
	"strings"

	"github.com/hashicorp-forge/docvault/pkg/classify"
)

// summaryMaxRunes caps caption-derived summaries.
const summaryMaxRunes = 500

// BuildSummary derives the document summary. A caption wins; otherwise
// a stable fallback names the file. Body-text extraction is not part of
// the pipeline, so the fallback is the common path for captionless
// uploads.
func BuildSummary(caption classify.Caption, filename string) string {
	if text := strings.TrimSpace(caption.CaptionRaw); text != "" {
		runes := []rune(text)
		if len(runes) > summaryMaxRunes {
			return string(runes[:summaryMaxRunes])
		}
		return text
	}
	return fmt.Sprintf("파일 요약 없음 (%s)", filename)
}
