// Package ingest drives uploaded artifacts through the state machine
// RECEIVED → STORED → EXTRACTED → CLASSIFIED → INDEXED →
// PUBLISHED/NEEDS_REVIEW, recording one IngestEvent per transition.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/docvault/pkg/catalog"
	"github.com/hashicorp-forge/docvault/pkg/classify"
	"github.com/hashicorp-forge/docvault/pkg/models"
	"github.com/hashicorp-forge/docvault/pkg/notify"
	"github.com/hashicorp-forge/docvault/pkg/rules"
	"github.com/hashicorp-forge/docvault/pkg/searchsync"
	"github.com/hashicorp-forge/docvault/pkg/storage"
)

// Event types recorded on the ingest trail.
const (
	EventStateTransition = "STATE_TRANSITION"
	EventError           = "ERROR"
	EventWarning         = "WARNING"
	EventRetryScheduled  = "RETRY_SCHEDULED"
	EventDeadLetter      = "DEAD_LETTER"
)

// Pipeline processes ingest jobs end to end.
type Pipeline struct {
	db       *gorm.DB
	backend  storage.Backend
	rules    *rules.Repository
	catalog  *catalog.Service
	notifier *notify.Notifier
	syncer   *searchsync.Syncer
	logger   hclog.Logger
}

// NewPipeline wires the pipeline dependencies.
func NewPipeline(
	db *gorm.DB,
	backend storage.Backend,
	ruleRepo *rules.Repository,
	cat *catalog.Service,
	notifier *notify.Notifier,
	syncer *searchsync.Syncer,
	logger hclog.Logger,
) *Pipeline {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Pipeline{
		db:       db,
		backend:  backend,
		rules:    ruleRepo,
		catalog:  cat,
		notifier: notifier,
		syncer:   syncer,
		logger:   logger.Named("pipeline"),
	}
}

// Result reports the outcome of one processing attempt.
type Result struct {
	OK         bool
	JobID      uuid.UUID
	DocumentID *uuid.UUID
	ErrorCode  string
	ErrorStage string
	ErrorMsg   string
}

// setState moves the job to a new state and appends the transition
// event in one commit. Terminal states stamp finished_at.
func (p *Pipeline) setState(ctx context.Context, job *models.IngestJob, to models.IngestState, message, eventType string, payload map[string]interface{}) error {
	from := job.State
	job.State = to
	if to.IsTerminal() {
		now := time.Now().UTC()
		job.FinishedAt = &now
	}

	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(job).Error; err != nil {
			return err
		}
		event := models.IngestEvent{
			IngestJobID:  job.ID,
			FromState:    &from,
			ToState:      to,
			EventType:    eventType,
			EventMessage: message,
			EventPayload: models.JSONMap(payload),
		}
		return tx.Create(&event).Error
	})
}

// addEvent appends a non-transition event at the job's current state.
func (p *Pipeline) addEvent(ctx context.Context, job *models.IngestJob, eventType, message string, payload map[string]interface{}) error {
	state := job.State
	event := models.IngestEvent{
		IngestJobID:  job.ID,
		FromState:    &state,
		ToState:      state,
		EventType:    eventType,
		EventMessage: message,
		EventPayload: models.JSONMap(payload),
	}
	return p.db.WithContext(ctx).Create(&event).Error
}

// storeResult is the outcome of the STORED stage.
type storeResult struct {
	file             *models.File
	checksum         string
	mimeType         string
	sizeBytes        int64
	duplicateSuspect bool
}

// storeFile checksums the temp file, dedupes against existing blobs,
// and writes new content to the backend. A checksum hit on a blob that
// other documents already link flags the job as a duplicate suspect.
func (p *Pipeline) storeFile(ctx context.Context, job *models.IngestJob) (*storeResult, error) {
	if job.FilePathTemp == nil || *job.FilePathTemp == "" {
		return nil, fmt.Errorf("temp file not found: %w", os.ErrNotExist)
	}
	tempPath := *job.FilePathTemp

	f, err := os.Open(tempPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open temp file %s: %w", tempPath, err)
	}
	defer f.Close()

	checksum, size, err := storage.Checksum(f)
	if err != nil {
		return nil, fmt.Errorf("failed to checksum temp file: %w", err)
	}

	filename := p.jobFilename(job)
	if filename == "" {
		filename = filepath.Base(tempPath)
	}
	mimeType := mime.TypeByExtension(filepath.Ext(filename))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	existing, err := models.GetFileByChecksum(p.db.WithContext(ctx), checksum)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		linked, err := models.CountFileLinks(p.db.WithContext(ctx), existing.ID)
		if err != nil {
			return nil, err
		}
		return &storeResult{
			file:             existing,
			checksum:         checksum,
			mimeType:         mimeType,
			sizeBytes:        size,
			duplicateSuspect: linked > 0,
		}, nil
	}

	ext := strings.TrimPrefix(filepath.Ext(filename), ".")
	key := storage.Key(checksum, ext)

	if _, err := f.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("failed to rewind temp file: %w", err)
	}
	if err := p.backend.Put(ctx, key, mimeType, f, size); err != nil {
		return nil, fmt.Errorf("failed to store blob: %w", err)
	}

	file := models.File{
		Source:           job.Source,
		SourceRef:        job.SourceRef,
		StorageBackend:   models.StorageBackend(p.backend.Name()),
		Bucket:           p.backend.Bucket(),
		StorageKey:       key,
		OriginalFilename: filename,
		ChecksumSHA256:   checksum,
		MimeType:         mimeType,
		SizeBytes:        size,
	}
	if ext != "" {
		lower := strings.ToLower(ext)
		file.Extension = &lower
	}
	if err := p.db.WithContext(ctx).Create(&file).Error; err != nil {
		if recovered, err2 := models.GetFileByChecksum(p.db.WithContext(ctx), checksum); err2 == nil && recovered != nil {
			return &storeResult{file: recovered, checksum: checksum, mimeType: mimeType, sizeBytes: size}, nil
		}
		return nil, fmt.Errorf("failed to create file row: %w", err)
	}

	return &storeResult{
		file:      &file,
		checksum:  checksum,
		mimeType:  mimeType,
		sizeBytes: size,
	}, nil
}

// jobFilename reads the producer-supplied filename from the job
// payload.
func (p *Pipeline) jobFilename(job *models.IngestJob) string {
	payload := job.Payload.String()
	if payload == "" {
		return ""
	}
	var fields struct {
		Filename string `json:"filename"`
	}
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		return ""
	}
	return fields.Filename
}

// jobMetadataDateText reads the producer-supplied sent-at text, used as
// a lower-priority event date candidate.
func (p *Pipeline) jobMetadataDateText(job *models.IngestJob) string {
	payload := job.Payload.String()
	if payload == "" {
		return ""
	}
	var fields struct {
		SentAt string `json:"sent_at"`
	}
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		return ""
	}
	return fields.SentAt
}

// Process runs one attempt for a job. All failures resolve to a FAILED
// terminal state with an ERROR event; the returned Result mirrors what
// was persisted. The queue-level retry decision is the caller's.
func (p *Pipeline) Process(ctx context.Context, jobID uuid.UUID) (*Result, error) {
	job, err := models.GetIngestJob(p.db.WithContext(ctx), jobID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			p.logger.Warn("ingest job not found", "job_id", jobID)
			return &Result{OK: false, JobID: jobID, ErrorCode: "job_not_found"}, nil
		}
		return nil, err
	}

	now := time.Now().UTC()
	job.StartedAt = &now
	job.AttemptCount++
	job.RetryAfter = nil
	if err := p.db.WithContext(ctx).Save(job).Error; err != nil {
		return nil, fmt.Errorf("failed to start attempt: %w", err)
	}
	p.logger.Info("processing ingest job",
		"job_id", job.ID, "source", job.Source, "attempt", job.AttemptCount)

	result, perr := p.run(ctx, job)
	if perr != nil {
		return p.failJob(ctx, job, result, perr)
	}
	return result, nil
}

// run executes the pipeline stages. A returned *PipelineError carries
// the stage and code to fail the job with.
func (p *Pipeline) run(ctx context.Context, job *models.IngestJob) (*Result, *PipelineError) {
	result := &Result{JobID: job.ID}

	// STORED
	store, err := p.storeFile(ctx, job)
	if err != nil {
		return result, stageError(err, StageStored)
	}
	if err := p.setState(ctx, job, models.StateStored, "file stored", EventStateTransition, map[string]interface{}{
		"checksum_sha256": store.checksum,
		"file_id":         store.file.ID.String(),
	}); err != nil {
		return result, stageError(err, StageStored)
	}

	// EXTRACTED
	filename := p.jobFilename(job)
	if filename == "" {
		filename = store.file.OriginalFilename
	}
	caption := ""
	if job.Caption != nil {
		caption = *job.Caption
	}
	parsed := classify.ParseCaption(caption, filename)
	summary := BuildSummary(parsed, filename)

	if err := p.setState(ctx, job, models.StateExtracted, "caption and metadata extracted", EventStateTransition, map[string]interface{}{
		"title": parsed.Title,
	}); err != nil {
		return result, stageError(err, StageExtracted)
	}

	// CLASSIFIED
	activeRules, err := p.rules.ActiveRules()
	if err != nil {
		return result, stageError(err, StageClassified)
	}
	ruleOut := classify.Apply(classify.Input{
		Caption:          parsed,
		Title:            parsed.Title,
		Description:      parsed.Description,
		Filename:         filename,
		BodyText:         "",
		MetadataDateText: p.jobMetadataDateText(job),
		IngestedAt:       job.ReceivedAt,
	}, activeRules)

	reviewReasons := append([]string(nil), ruleOut.ReviewReasons...)
	if store.duplicateSuspect && !contains(reviewReasons, classify.ReasonDuplicateSuspect) {
		reviewReasons = append(reviewReasons, classify.ReasonDuplicateSuspect)
	}

	var categoryID *uuid.UUID
	var categoryName *string
	if name := strings.TrimSpace(ruleOut.Category); name != "" {
		category, err := models.FirstOrCreateCategory(p.db.WithContext(ctx), name)
		if err != nil {
			return result, stageError(err, StageClassified)
		}
		categoryID = &category.ID
		categoryName = &category.Name
	}

	if err := p.setState(ctx, job, models.StateClassified, "classification completed", EventStateTransition, map[string]interface{}{
		"category":       derefString(categoryName),
		"event_date":     ruleOut.EventDate.Format("2006-01-02"),
		"tags":           ruleOut.Tags,
		"review_reasons": reviewReasons,
	}); err != nil {
		return result, stageError(err, StageClassified)
	}

	// INDEXED
	eventDate := ruleOut.EventDate
	doc, err := p.catalog.CreateFromPipeline(ctx, catalog.CreateInput{
		Source:        job.Source,
		SourceRef:     job.SourceRef,
		Title:         parsed.Title,
		Description:   parsed.Description,
		CaptionRaw:    parsed.CaptionRaw,
		Summary:       summary,
		CategoryID:    categoryID,
		EventDate:     &eventDate,
		IngestedAt:    job.ReceivedAt,
		ReviewReasons: reviewReasons,
		TagNames:      ruleOut.Tags,
		FileID:        store.file.ID,
	})
	if err != nil {
		return result, stageError(err, StageIndexed)
	}
	result.DocumentID = &doc.ID

	job.DocumentID = &doc.ID
	if err := p.db.WithContext(ctx).Save(job).Error; err != nil {
		return result, stageError(err, StageIndexed)
	}
	if err := p.setState(ctx, job, models.StateIndexed, "document indexed", EventStateTransition, map[string]interface{}{
		"document_id": doc.ID.String(),
	}); err != nil {
		return result, stageError(err, StageIndexed)
	}
	if p.syncer != nil {
		p.syncer.EnqueueSyncOne(ctx, doc.ID)
	}

	// Terminal state
	if len(reviewReasons) > 0 {
		if err := p.setState(ctx, job, models.StateNeedsReview, "document requires review", EventStateTransition, map[string]interface{}{
			"review_reasons": reviewReasons,
		}); err != nil {
			return result, stageError(err, StageIndexed)
		}
	} else {
		if err := p.setState(ctx, job, models.StatePublished, "document published", EventStateTransition, nil); err != nil {
			return result, stageError(err, StageIndexed)
		}
	}

	if err := p.notifyResult(ctx, job, doc, "", "", categoryName); err != nil {
		return result, &PipelineError{
			Code:    ErrCodeNotifyCallbackFail,
			Stage:   StagePublished,
			Message: err.Error(),
			Err:     err,
		}
	}

	result.OK = true
	p.logger.Info("ingest job completed",
		"job_id", job.ID, "document_id", doc.ID, "state", job.State)
	return result, nil
}

// failJob records the error on the job, transitions it to FAILED, and
// fires a best-effort failure callback.
func (p *Pipeline) failJob(ctx context.Context, job *models.IngestJob, result *Result, perr *PipelineError) (*Result, error) {
	code := perr.Code
	msg := perr.Message

	job.LastErrorCode = &code
	job.LastErrorMessage = &msg
	if err := p.db.WithContext(ctx).Save(job).Error; err != nil {
		return nil, fmt.Errorf("failed to record job error: %w", err)
	}

	err := p.setState(ctx, job, models.StateFailed,
		fmt.Sprintf("ingest failed at %s", perr.Stage), EventError, map[string]interface{}{
			"error_code":  perr.Code,
			"error_stage": perr.Stage,
			"error":       perr.Message,
		})
	if err != nil {
		return nil, fmt.Errorf("failed to mark job FAILED: %w", err)
	}

	var doc *models.Document
	if result.DocumentID != nil {
		doc, _ = models.GetDocument(p.db.WithContext(ctx), *result.DocumentID)
	}
	if nerr := p.notifyResult(ctx, job, doc, perr.Code, perr.Message, nil); nerr != nil {
		p.logger.Warn("failure callback undelivered", "job_id", job.ID, "error", nerr)
	}

	p.logger.Error("ingest job failed",
		"job_id", job.ID, "error_code", perr.Code, "stage", perr.Stage, "error", perr.Message)

	result.OK = false
	result.ErrorCode = perr.Code
	result.ErrorStage = perr.Stage
	result.ErrorMsg = perr.Message
	return result, nil
}

// notifyResult posts the job outcome back to the producer.
func (p *Pipeline) notifyResult(ctx context.Context, job *models.IngestJob, doc *models.Document, errorCode, errorMessage string, categoryName *string) error {
	if p.notifier == nil || !p.notifier.Enabled() {
		return nil
	}

	payload := &notify.ResultPayload{
		JobID:   job.ID.String(),
		State:   string(job.State),
		Success: errorCode == "",
		Actions: p.notifier.BuildResultActions(job, errorCode),
		Extra:   map[string]interface{}{"source_ref": job.SourceRef},
	}
	if doc != nil {
		id := doc.ID.String()
		payload.DocumentID = &id
		payload.Title = &doc.Title
		payload.ReviewNeeded = doc.ReviewStatus == models.ReviewNeedsReview
		payload.DashboardURL = p.notifier.DashboardURL(doc.ID)
		if doc.EventDate != nil {
			s := doc.EventDate.Format("2006-01-02")
			payload.EventDate = &s
		}
	}
	payload.Category = categoryName
	if errorCode != "" {
		payload.ErrorCode = &errorCode
		payload.ErrorMessage = &errorMessage
	}

	return p.notifier.Send(ctx, payload)
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
