package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/docvault/pkg/models"
)

// ReclassifyInput is a recomputed classification for one document.
// ReviewReasons and Tags are expected as sorted sets; the review status
// is derived from the reasons.
type ReclassifyInput struct {
	CategoryID    *uuid.UUID
	EventDate     *time.Time
	ReviewReasons []string
	Tags          []string
	ChangeReason  string
	Actor         string
}

// Reclassify applies a rule re-run to one document. Nothing is written
// when the recomputed output matches the current state; otherwise the
// document is updated, a version snapshot appended, and a before/after
// audit row recorded. Returns whether the document changed. Search sync
// is the caller's job so batch runs can enqueue once.
func (s *Service) Reclassify(ctx context.Context, documentID uuid.UUID, in ReclassifyInput) (bool, error) {
	updated := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doc, err := models.GetDocument(tx, documentID)
		if err != nil {
			return err
		}
		oldTags, err := models.GetDocumentTagNames(tx, doc.ID)
		if err != nil {
			return err
		}

		newStatus := models.ReviewNone
		if len(in.ReviewReasons) > 0 {
			newStatus = models.ReviewNeedsReview
		}

		changed := !sameUUIDPtr(doc.CategoryID, in.CategoryID) ||
			!sameDatePtr(doc.EventDate, in.EventDate) ||
			!sameTagSet(doc.ReviewReasons, in.ReviewReasons) ||
			doc.ReviewStatus != newStatus ||
			!sameTagSet(oldTags, in.Tags)
		if !changed {
			return nil
		}

		tagsSnapshot := oldTags
		if !sameTagSet(oldTags, in.Tags) {
			tagsSnapshot, err = s.replaceTags(tx, doc.ID, in.Tags)
			if err != nil {
				return err
			}
		}

		before := docClassificationState(doc, oldTags)

		doc.CategoryID = in.CategoryID
		doc.EventDate = in.EventDate
		doc.ReviewReasons = models.StringList(in.ReviewReasons)
		doc.ReviewStatus = newStatus
		if err := appendVersion(tx, doc, in.ChangeReason, tagsSnapshot); err != nil {
			return err
		}
		if err := refreshSearchVector(tx, doc.ID); err != nil {
			return err
		}

		err = models.RecordAudit(tx, models.AuditDocumentBackfill, "document", &doc.ID, in.Actor,
			models.JSONMap(map[string]interface{}{
				"before": before,
				"after":  docClassificationState(doc, tagsSnapshot),
			}))
		if err != nil {
			return err
		}

		updated = true
		return nil
	})
	return updated, err
}

func docClassificationState(doc *models.Document, tags []string) map[string]interface{} {
	state := map[string]interface{}{
		"category_id":    nil,
		"event_date":     nil,
		"review_status":  string(doc.ReviewStatus),
		"review_reasons": []string(doc.ReviewReasons),
		"tags":           tags,
	}
	if doc.CategoryID != nil {
		state["category_id"] = doc.CategoryID.String()
	}
	if doc.EventDate != nil {
		state["event_date"] = doc.EventDate.Format("2006-01-02")
	}
	return state
}

func sameUUIDPtr(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// sameDatePtr compares event dates at day resolution.
func sameDatePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Format("2006-01-02") == b.Format("2006-01-02")
}
