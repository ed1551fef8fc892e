// Package catalog owns the curated document records: creation from the
// ingest pipeline, operator edits, file attachment, deletion with
// orphan-blob cleanup, and the review queue. Every semantic change
// appends an immutable DocumentVersion snapshot.
package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/docvault/pkg/models"
	"github.com/hashicorp-forge/docvault/pkg/search"
	"github.com/hashicorp-forge/docvault/pkg/searchsync"
	"github.com/hashicorp-forge/docvault/pkg/storage"
)

// Service mediates all catalog mutations.
type Service struct {
	db      *gorm.DB
	backend storage.Backend
	syncer  *searchsync.Syncer
	logger  hclog.Logger
}

// New creates a catalog service. The syncer may be nil in contexts that
// never propagate changes to the search index (tests, migrations).
func New(db *gorm.DB, backend storage.Backend, syncer *searchsync.Syncer, logger hclog.Logger) *Service {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Service{
		db:      db,
		backend: backend,
		syncer:  syncer,
		logger:  logger.Named("catalog"),
	}
}

// CreateInput carries the classified pipeline output for one new
// document.
type CreateInput struct {
	Source    models.SourceType
	SourceRef *string

	Title       string
	Description string
	CaptionRaw  string
	Summary     string

	CategoryID *uuid.UUID
	EventDate  *time.Time
	IngestedAt time.Time

	ReviewReasons []string
	TagNames      []string

	// FileID links the stored blob as the document's primary file.
	FileID uuid.UUID
}

// CreateFromPipeline materializes a document from a classified ingest
// job: the row itself, the primary file link, tags, and the version 1
// snapshot, all in one transaction.
func (s *Service) CreateFromPipeline(ctx context.Context, in CreateInput) (*models.Document, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("document title is required")
	}

	status := models.ReviewNone
	if len(in.ReviewReasons) > 0 {
		status = models.ReviewNeedsReview
	}

	doc := models.Document{
		Source:        in.Source,
		SourceRef:     in.SourceRef,
		Title:         in.Title,
		Description:   in.Description,
		CaptionRaw:    in.CaptionRaw,
		Summary:       in.Summary,
		CategoryID:    in.CategoryID,
		EventDate:     in.EventDate,
		IngestedAt:    in.IngestedAt,
		ReviewStatus:  status,
		ReviewReasons: models.StringList(in.ReviewReasons),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&doc).Error; err != nil {
			return fmt.Errorf("failed to create document: %w", err)
		}

		link := models.DocumentFile{
			DocumentID: doc.ID,
			FileID:     in.FileID,
			IsPrimary:  true,
		}
		if err := tx.Create(&link).Error; err != nil {
			return fmt.Errorf("failed to link file: %w", err)
		}

		tagNames, err := s.linkTags(tx, doc.ID, in.TagNames)
		if err != nil {
			return err
		}

		version := models.DocumentVersion{
			DocumentID:   doc.ID,
			VersionNo:    1,
			Title:        doc.Title,
			Description:  doc.Description,
			Summary:      doc.Summary,
			CategoryID:   doc.CategoryID,
			EventDate:    doc.EventDate,
			TagsSnapshot: models.StringList(tagNames),
			ChangeReason: "initial_ingest",
		}
		if err := tx.Create(&version).Error; err != nil {
			return fmt.Errorf("failed to snapshot version 1: %w", err)
		}

		return refreshSearchVector(tx, doc.ID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("document created", "document_id", doc.ID, "source", doc.Source)
	return &doc, nil
}

// normalizeTagNames trims, drops empties, and dedupes by slug while
// preserving first-seen order and original casing.
func normalizeTagNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		slug := search.TagSlug(name)
		if _, ok := seen[slug]; ok {
			continue
		}
		seen[slug] = struct{}{}
		out = append(out, name)
	}
	return out
}

// linkTags upserts tags by name and links them to the document,
// returning the linked names.
func (s *Service) linkTags(tx *gorm.DB, documentID uuid.UUID, names []string) ([]string, error) {
	linked := make([]string, 0, len(names))
	for _, name := range normalizeTagNames(names) {
		tag, err := models.FirstOrCreateTag(tx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert tag %q: %w", name, err)
		}
		link := models.DocumentTag{DocumentID: documentID, TagID: tag.ID}
		if err := tx.Where(&link).FirstOrCreate(&link).Error; err != nil {
			return nil, fmt.Errorf("failed to link tag %q: %w", name, err)
		}
		linked = append(linked, tag.Name)
	}
	return linked, nil
}

// replaceTags swaps a document's tag set and returns the new names.
func (s *Service) replaceTags(tx *gorm.DB, documentID uuid.UUID, names []string) ([]string, error) {
	err := tx.Where("document_id = ?", documentID).Delete(&models.DocumentTag{}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to clear tags: %w", err)
	}
	return s.linkTags(tx, documentID, names)
}

// appendVersion bumps the document's version counter and snapshots the
// current field values.
func appendVersion(tx *gorm.DB, doc *models.Document, changeReason string, tagsSnapshot []string) error {
	doc.CurrentVersionNo++
	if err := tx.Save(doc).Error; err != nil {
		return fmt.Errorf("failed to bump document version: %w", err)
	}
	version := models.DocumentVersion{
		DocumentID:   doc.ID,
		VersionNo:    doc.CurrentVersionNo,
		Title:        doc.Title,
		Description:  doc.Description,
		Summary:      doc.Summary,
		CategoryID:   doc.CategoryID,
		EventDate:    doc.EventDate,
		TagsSnapshot: models.StringList(tagsSnapshot),
		ChangeReason: changeReason,
	}
	if err := tx.Create(&version).Error; err != nil {
		return fmt.Errorf("failed to snapshot version %d: %w", version.VersionNo, err)
	}
	return nil
}

// refreshSearchVector rebuilds the tsvector column from the document's
// text fields. Runs inside the mutating transaction so the fallback
// search never observes a stale vector.
func refreshSearchVector(tx *gorm.DB, documentID uuid.UUID) error {
	err := tx.Exec(`UPDATE documents
		SET search_vector = to_tsvector('simple',
			concat_ws(' ', title, description, summary, caption_raw))
		WHERE id = ?`, documentID).Error
	if err != nil {
		return fmt.Errorf("failed to refresh search vector: %w", err)
	}
	return nil
}

// enqueueSync pushes the document to the search index, best-effort.
func (s *Service) enqueueSync(ctx context.Context, documentID uuid.UUID) {
	if s.syncer != nil {
		s.syncer.EnqueueSyncOne(ctx, documentID)
	}
}
