// Package backfill re-classifies existing documents against a chosen
// rule version, writing a new document version only where the verdict
// actually changed.
package backfill

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/docvault/pkg/catalog"
	"github.com/hashicorp-forge/docvault/pkg/classify"
	"github.com/hashicorp-forge/docvault/pkg/models"
	"github.com/hashicorp-forge/docvault/pkg/searchsync"
)

const defaultBatchSize = 500

// errorSampleCap bounds the per-document error samples in the summary.
const errorSampleCap = 30

// Engine runs backfill passes.
type Engine struct {
	db      *gorm.DB
	catalog *catalog.Service
	syncer  *searchsync.Syncer
	logger  hclog.Logger
}

// New creates a backfill engine. The syncer may be nil; updated
// documents then simply wait for the next full rebuild.
func New(db *gorm.DB, cat *catalog.Service, syncer *searchsync.Syncer, logger hclog.Logger) *Engine {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Engine{db: db, catalog: cat, syncer: syncer, logger: logger.Named("backfill")}
}

// Filter narrows which documents a pass visits.
type Filter struct {
	CategoryID *uuid.UUID
	From       *time.Time
	To         *time.Time
	ReviewOnly bool
}

// Request describes one backfill pass.
type Request struct {
	RuleVersionID uuid.UUID
	BatchSize     int
	Filter        *Filter
	Actor         string
}

// DocError is one failed document in the summary sample.
type DocError struct {
	DocumentID uuid.UUID `json:"document_id"`
	Error      string    `json:"error"`
}

// Summary reports the outcome of one pass.
type Summary struct {
	RuleVersionID uuid.UUID  `json:"rule_version_id"`
	RuleVersionNo int        `json:"rule_version_no"`
	Updated       int        `json:"updated"`
	Skipped       int        `json:"skipped"`
	Failed        int        `json:"failed"`
	Errors        []DocError `json:"errors"`
	FinishedAt    time.Time  `json:"finished_at"`
}

// Run re-classifies every matching document, oldest first. Per-document
// failures are counted and sampled, never fatal to the pass.
func (e *Engine) Run(ctx context.Context, req Request) (*Summary, error) {
	var rv models.RuleVersion
	if err := e.db.WithContext(ctx).First(&rv, "id = ?", req.RuleVersionID).Error; err != nil {
		return nil, fmt.Errorf("rule version not found: %w", err)
	}

	var rules classify.Rules
	if err := json.Unmarshal([]byte(rv.Rules), &rules); err != nil {
		return nil, fmt.Errorf("invalid rules JSON on version %s: %w", rv.ID, err)
	}

	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	changeReason := fmt.Sprintf("backfill_rule_v%d", rv.VersionNo)

	err := models.RecordAudit(e.db.WithContext(ctx), models.AuditBackfillStart, "rule_version", &rv.ID, req.Actor,
		models.JSONMap(map[string]interface{}{
			"batch_size": batchSize,
			"filter":     filterDetail(req.Filter),
		}))
	if err != nil {
		return nil, fmt.Errorf("failed to audit backfill start: %w", err)
	}
	e.logger.Info("backfill started",
		"rule_version", rv.VersionNo, "batch_size", batchSize)

	summary := &Summary{RuleVersionID: rv.ID, RuleVersionNo: rv.VersionNo}
	var updatedIDs []uuid.UUID

	offset := 0
	for {
		var docs []models.Document
		err := e.filteredDocs(ctx, req.Filter).
			Order("created_at ASC").
			Offset(offset).
			Limit(batchSize).
			Find(&docs).Error
		if err != nil {
			return nil, fmt.Errorf("failed to page documents: %w", err)
		}
		if len(docs) == 0 {
			break
		}

		for i := range docs {
			doc := &docs[i]
			updated, err := e.reclassifyOne(ctx, doc, rules, changeReason, req.Actor)
			if err != nil {
				summary.Failed++
				if len(summary.Errors) < errorSampleCap {
					summary.Errors = append(summary.Errors, DocError{DocumentID: doc.ID, Error: err.Error()})
				}
				e.logger.Warn("backfill document failed", "document_id", doc.ID, "error", err)
				continue
			}
			if updated {
				summary.Updated++
				updatedIDs = append(updatedIDs, doc.ID)
			} else {
				summary.Skipped++
			}
		}

		offset += batchSize
	}

	summary.FinishedAt = time.Now().UTC()
	err = models.RecordAudit(e.db.WithContext(ctx), models.AuditBackfillDone, "rule_version", &rv.ID, req.Actor,
		models.JSONMap(map[string]interface{}{
			"updated":     summary.Updated,
			"skipped":     summary.Skipped,
			"failed":      summary.Failed,
			"finished_at": summary.FinishedAt.Format(time.RFC3339),
		}))
	if err != nil {
		e.logger.Warn("failed to audit backfill completion", "error", err)
	}

	if e.syncer != nil && len(updatedIDs) > 0 {
		e.syncer.EnqueueSyncBatch(ctx, updatedIDs)
	}

	e.logger.Info("backfill completed",
		"rule_version", rv.VersionNo,
		"updated", summary.Updated, "skipped", summary.Skipped, "failed", summary.Failed)
	return summary, nil
}

// reclassifyOne re-runs the rule engine over one document's stored text
// and hands the verdict to the catalog.
func (e *Engine) reclassifyOne(ctx context.Context, doc *models.Document, rules classify.Rules, changeReason, actor string) (bool, error) {
	filename, err := models.GetPrimaryFilename(e.db.WithContext(ctx), doc.ID)
	if err != nil {
		return false, err
	}

	parsed := classify.ParseCaption(doc.CaptionRaw, filename)
	out := classify.Apply(classify.Input{
		Caption:     parsed,
		Title:       doc.Title,
		Description: doc.Description,
		Filename:    filename,
		IngestedAt:  doc.IngestedAt,
	}, rules)

	var categoryID *uuid.UUID
	if name := strings.TrimSpace(out.Category); name != "" {
		category, err := models.FirstOrCreateCategory(e.db.WithContext(ctx), name)
		if err != nil {
			return false, err
		}
		categoryID = &category.ID
	}

	reasons := append([]string(nil), out.ReviewReasons...)
	if doc.ReviewReasons.Contains(classify.ReasonDuplicateSuspect) &&
		!contains(reasons, classify.ReasonDuplicateSuspect) {
		reasons = append(reasons, classify.ReasonDuplicateSuspect)
	}

	eventDate := out.EventDate
	return e.catalog.Reclassify(ctx, doc.ID, catalog.ReclassifyInput{
		CategoryID:    categoryID,
		EventDate:     &eventDate,
		ReviewReasons: sortedSet(reasons),
		Tags:          sortedSet(out.Tags),
		ChangeReason:  changeReason,
		Actor:         actor,
	})
}

// filteredDocs builds the document query for a pass. From/To bound the
// event date; ReviewOnly restricts to the review queue.
func (e *Engine) filteredDocs(ctx context.Context, f *Filter) *gorm.DB {
	tx := e.db.WithContext(ctx).Model(&models.Document{})
	if f == nil {
		return tx
	}
	if f.CategoryID != nil {
		tx = tx.Where("category_id = ?", *f.CategoryID)
	}
	if f.From != nil {
		tx = tx.Where("event_date >= ?", f.From.Format("2006-01-02"))
	}
	if f.To != nil {
		tx = tx.Where("event_date <= ?", f.To.Format("2006-01-02"))
	}
	if f.ReviewOnly {
		tx = tx.Where("review_status = ?", models.ReviewNeedsReview)
	}
	return tx
}

func filterDetail(f *Filter) map[string]interface{} {
	if f == nil {
		return nil
	}
	detail := map[string]interface{}{"review_only": f.ReviewOnly}
	if f.CategoryID != nil {
		detail["category_id"] = f.CategoryID.String()
	}
	if f.From != nil {
		detail["from"] = f.From.Format("2006-01-02")
	}
	if f.To != nil {
		detail["to"] = f.To.Format("2006-01-02")
	}
	return detail
}

// sortedSet trims, dedupes, and sorts.
func sortedSet(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
