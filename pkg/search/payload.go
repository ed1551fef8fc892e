package search

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/docvault/pkg/models"
)

// BuildDocuments loads the denormalized search payload for a set of
// documents. IDs that no longer exist are silently skipped so a stale
// sync task self-heals instead of failing.
func BuildDocuments(db *gorm.DB, ids []uuid.UUID) ([]Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	seen := make(map[uuid.UUID]struct{}, len(ids))
	unique := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	type docRow struct {
		models.Document
		CategoryName *string
	}
	var rows []docRow
	err := db.Model(&models.Document{}).
		Select("documents.*, categories.name AS category_name").
		Joins("LEFT JOIN categories ON categories.id = documents.category_id").
		Where("documents.id IN ?", unique).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	rowMap := make(map[uuid.UUID]docRow, len(rows))
	for _, row := range rows {
		rowMap[row.ID] = row
	}

	type tagRow struct {
		DocumentID uuid.UUID
		Name       string
	}
	var tagRows []tagRow
	err = db.Model(&models.DocumentTag{}).
		Select("document_tags.document_id, tags.name").
		Joins("JOIN tags ON tags.id = document_tags.tag_id").
		Where("document_tags.document_id IN ?", unique).
		Order("document_tags.document_id ASC, tags.name ASC").
		Find(&tagRows).Error
	if err != nil {
		return nil, err
	}
	tagNames := make(map[uuid.UUID][]string)
	for _, tr := range tagRows {
		tagNames[tr.DocumentID] = append(tagNames[tr.DocumentID], tr.Name)
	}

	docs := make([]Document, 0, len(unique))
	for _, id := range unique {
		row, ok := rowMap[id]
		if !ok {
			continue
		}

		names := tagNames[id]
		if names == nil {
			names = []string{}
		}
		slugs := make([]string, len(names))
		for i, name := range names {
			slugs[i] = TagSlug(name)
		}

		var categoryID *string
		if row.CategoryID != nil {
			s := row.CategoryID.String()
			categoryID = &s
		}
		var eventDate *string
		if row.EventDate != nil {
			s := row.EventDate.Format("2006-01-02")
			eventDate = &s
		}

		docs = append(docs, Document{
			ID:              row.ID.String(),
			Title:           row.Title,
			Description:     row.Description,
			Summary:         row.Summary,
			CaptionRaw:      row.CaptionRaw,
			Source:          string(row.Source),
			SourceRef:       row.SourceRef,
			CategoryID:      categoryID,
			Category:        row.CategoryName,
			EventDate:       eventDate,
			IngestedAt:      row.IngestedAt.UTC().Format(time.RFC3339),
			CreatedAt:       row.CreatedAt.UTC().Format(time.RFC3339),
			ReviewStatus:    string(row.ReviewStatus),
			Tags:            names,
			TagSlugs:        slugs,
			IsUncategorized: row.CategoryID == nil,
		})
	}
	return docs, nil
}
