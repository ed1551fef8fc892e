package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/docvault/pkg/classify"
	"github.com/hashicorp-forge/docvault/pkg/models"
)

// ReviewQueueItem is one pending document in the review queue.
type ReviewQueueItem struct {
	DocumentID uuid.UUID  `json:"document_id"`
	Title      string     `json:"title"`
	SourceRef  *string    `json:"source_ref"`
	Reasons    []string   `json:"reasons"`
	EventDate  *time.Time `json:"event_date,omitempty"`
	IngestedAt time.Time  `json:"ingested_at"`
}

// ReviewQueuePage is one page of the review queue.
type ReviewQueuePage struct {
	Items []ReviewQueueItem `json:"items"`
	Total int64             `json:"total"`
}

// ListReviewQueue returns documents waiting on review, newest ingested
// first, optionally filtered by a single reason code.
func (s *Service) ListReviewQueue(ctx context.Context, reason string, page, size int) (*ReviewQueuePage, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 200 {
		size = 50
	}

	tx := s.db.WithContext(ctx).Model(&models.Document{}).
		Where("review_status = ?", models.ReviewNeedsReview)
	if reason != "" {
		tx = tx.Where("review_reasons @> ?", fmt.Sprintf(`[%q]`, reason))
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count review queue: %w", err)
	}

	var docs []models.Document
	err := tx.Order("ingested_at DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load review queue: %w", err)
	}

	items := make([]ReviewQueueItem, len(docs))
	for i, doc := range docs {
		items[i] = ReviewQueueItem{
			DocumentID: doc.ID,
			Title:      doc.Title,
			SourceRef:  doc.SourceRef,
			Reasons:    doc.ReviewReasons,
			EventDate:  doc.EventDate,
			IngestedAt: doc.IngestedAt,
		}
	}
	return &ReviewQueuePage{Items: items, Total: total}, nil
}

// ReviewUpdate is one operator resolution step. Supplying a category
// clears the CLASSIFY_FAIL reason; supplying an event date clears
// DATE_MISSING. Approve resolves the document regardless of remaining
// reasons.
type ReviewUpdate struct {
	CategoryID   *uuid.UUID
	CategoryName string

	EventDate *time.Time

	Tags *[]string

	ReasonRemove []string
	Approve      bool
	Note         string
	Actor        string
}

// ReviewUpdateResult reports the outcome for one document.
type ReviewUpdateResult struct {
	DocumentID    uuid.UUID           `json:"document_id"`
	Updated       bool                `json:"updated"`
	ReviewStatus  models.ReviewStatus `json:"review_status"`
	ReviewReasons []string            `json:"review_reasons"`
}

// ApplyReviewUpdate resolves review items on one document. The change
// reason records whether the update came from a single edit or a bulk
// operation.
func (s *Service) ApplyReviewUpdate(ctx context.Context, documentID uuid.UUID, upd ReviewUpdate, bulk bool) (*ReviewUpdateResult, error) {
	var result *ReviewUpdateResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doc, err := models.GetDocument(tx, documentID)
		if err != nil {
			return err
		}
		var txErr error
		result, txErr = s.applyReviewUpdateTx(tx, doc, upd, bulk)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	if result.Updated {
		s.enqueueSync(ctx, documentID)
	}
	return result, nil
}

func (s *Service) applyReviewUpdateTx(tx *gorm.DB, doc *models.Document, upd ReviewUpdate, bulk bool) (*ReviewUpdateResult, error) {
	oldTags, err := models.GetDocumentTagNames(tx, doc.ID)
	if err != nil {
		return nil, err
	}

	changed := false
	reasons := []string(doc.ReviewReasons)

	categoryProvided := upd.CategoryID != nil || strings.TrimSpace(upd.CategoryName) != ""
	if upd.CategoryID != nil {
		if doc.CategoryID == nil || *doc.CategoryID != *upd.CategoryID {
			doc.CategoryID = upd.CategoryID
			changed = true
		}
	} else if name := strings.TrimSpace(upd.CategoryName); name != "" {
		cat, err := models.FirstOrCreateCategory(tx, name)
		if err != nil {
			return nil, err
		}
		if doc.CategoryID == nil || *doc.CategoryID != cat.ID {
			doc.CategoryID = &cat.ID
			changed = true
		}
	}
	if categoryProvided {
		if next := removeReason(reasons, classify.ReasonClassifyFail); len(next) != len(reasons) {
			reasons = next
			changed = true
		}
	}

	if upd.EventDate != nil {
		if doc.EventDate == nil || !doc.EventDate.Equal(*upd.EventDate) {
			doc.EventDate = upd.EventDate
			changed = true
		}
		if next := removeReason(reasons, classify.ReasonDateMissing); len(next) != len(reasons) {
			reasons = next
			changed = true
		}
	}

	if len(upd.ReasonRemove) > 0 {
		next := reasons
		for _, r := range upd.ReasonRemove {
			next = removeReason(next, r)
		}
		if len(next) != len(reasons) {
			reasons = next
			changed = true
		}
	}

	newTags := oldTags
	if upd.Tags != nil {
		requested := normalizeTagNames(*upd.Tags)
		if !sameTagSet(oldTags, requested) {
			newTags, err = s.replaceTags(tx, doc.ID, requested)
			if err != nil {
				return nil, err
			}
			changed = true
		}
	}

	if upd.Approve {
		if len(reasons) > 0 {
			reasons = nil
			changed = true
		}
		if doc.ReviewStatus != models.ReviewResolved {
			doc.ReviewStatus = models.ReviewResolved
			changed = true
		}
	} else {
		desired := models.ReviewResolved
		if len(reasons) > 0 {
			desired = models.ReviewNeedsReview
		}
		if doc.ReviewStatus != desired {
			doc.ReviewStatus = desired
			changed = true
		}
	}
	doc.ReviewReasons = models.StringList(reasons)

	if !changed {
		return &ReviewUpdateResult{
			DocumentID:    doc.ID,
			Updated:       false,
			ReviewStatus:  doc.ReviewStatus,
			ReviewReasons: doc.ReviewReasons,
		}, nil
	}

	changeReason := "review_queue_single"
	if bulk {
		changeReason = "review_queue_bulk"
	}
	if err := appendVersion(tx, doc, changeReason, newTags); err != nil {
		return nil, err
	}
	if err := refreshSearchVector(tx, doc.ID); err != nil {
		return nil, err
	}
	err = models.RecordAudit(tx, models.AuditReviewResolve, "document", &doc.ID, upd.Actor,
		models.JSONMap(map[string]interface{}{
			"review_status":  string(doc.ReviewStatus),
			"review_reasons": []string(doc.ReviewReasons),
			"tags":           newTags,
			"note":           upd.Note,
		}))
	if err != nil {
		return nil, err
	}

	return &ReviewUpdateResult{
		DocumentID:    doc.ID,
		Updated:       true,
		ReviewStatus:  doc.ReviewStatus,
		ReviewReasons: doc.ReviewReasons,
	}, nil
}

// BulkReviewResult summarizes a bulk review update.
type BulkReviewResult struct {
	Requested int                  `json:"requested"`
	Updated   int                  `json:"updated"`
	NotFound  []uuid.UUID          `json:"not_found"`
	Results   []ReviewUpdateResult `json:"results"`
}

// BulkReviewUpdate applies the same resolution to several documents.
// Missing documents are reported, not fatal.
func (s *Service) BulkReviewUpdate(ctx context.Context, documentIDs []uuid.UUID, upd ReviewUpdate) (*BulkReviewResult, error) {
	if len(documentIDs) == 0 {
		return nil, fmt.Errorf("document_ids required")
	}

	out := &BulkReviewResult{Requested: len(documentIDs)}
	var updatedIDs []uuid.UUID
	for _, id := range documentIDs {
		result, err := s.ApplyReviewUpdate(ctx, id, upd, true)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				out.NotFound = append(out.NotFound, id)
				continue
			}
			return nil, err
		}
		out.Results = append(out.Results, *result)
		if result.Updated {
			out.Updated++
			updatedIDs = append(updatedIDs, id)
		}
	}

	err := models.RecordAudit(s.db.WithContext(ctx), models.AuditReviewResolve, "review_queue", nil, upd.Actor,
		models.JSONMap(map[string]interface{}{
			"requested": out.Requested,
			"updated":   out.Updated,
			"not_found": len(out.NotFound),
		}))
	if err != nil {
		s.logger.Warn("failed to audit bulk review update", "error", err)
	}

	if s.syncer != nil && len(updatedIDs) > 0 {
		s.syncer.EnqueueSyncBatch(ctx, updatedIDs)
	}
	return out, nil
}

func removeReason(reasons []string, drop string) []string {
	out := make([]string, 0, len(reasons))
	for _, r := range reasons {
		if r != drop {
			out = append(out, r)
		}
	}
	return out
}

func sameTagSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
