package meilisearch

import (
	"fmt"
	"strings"

	"github.com/hashicorp-forge/docvault/pkg/search"
)

// uncategorizedName is the virtual category that filters on documents
// without a category instead of matching a name.
const uncategorizedName = "미분류"

func escapeFilterValue(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	return strings.ReplaceAll(value, `"`, `\"`)
}

// buildFilterExpression renders a query's filters into a Meilisearch
// filter string, or "" when unfiltered.
func buildFilterExpression(q search.Query) string {
	var clauses []string

	if q.CategoryID != nil {
		clauses = append(clauses, fmt.Sprintf(`category_id = "%s"`, q.CategoryID))
	}
	if q.CategoryName != "" {
		if q.CategoryName == uncategorizedName {
			clauses = append(clauses, "is_uncategorized = true")
		} else {
			clauses = append(clauses, fmt.Sprintf(`category = "%s"`, escapeFilterValue(q.CategoryName)))
		}
	}
	if q.TagSlug != "" {
		clauses = append(clauses, fmt.Sprintf(`tag_slugs = "%s"`, escapeFilterValue(q.TagSlug)))
	}
	if q.EventDateFrom != nil {
		clauses = append(clauses, fmt.Sprintf(`event_date >= "%s"`, q.EventDateFrom.Format("2006-01-02")))
	}
	if q.EventDateTo != nil {
		clauses = append(clauses, fmt.Sprintf(`event_date <= "%s"`, q.EventDateTo.Format("2006-01-02")))
	}
	if q.ReviewStatus != "" {
		clauses = append(clauses, fmt.Sprintf(`review_status = "%s"`, escapeFilterValue(q.ReviewStatus)))
	}

	return strings.Join(clauses, " AND ")
}
