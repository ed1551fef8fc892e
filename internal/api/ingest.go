package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/docvault/pkg/actiontoken"
	"github.com/hashicorp-forge/docvault/pkg/ingest"
	"github.com/hashicorp-forge/docvault/pkg/models"
)

// maxUploadBytes bounds one multipart upload.
const maxUploadBytes = 256 << 20

// acceptedJob is the 202 body for one queued upload.
type acceptedJob struct {
	JobID     uuid.UUID         `json:"job_id"`
	State     string            `json:"state"`
	Source    models.SourceType `json:"source"`
	SourceRef *string           `json:"source_ref"`
	QueuedAt  time.Time         `json:"queued_at"`
}

// batchItemResult reports one file of a batch request.
type batchItemResult struct {
	Index     int        `json:"index"`
	Filename  string     `json:"filename"`
	JobID     *uuid.UUID `json:"job_id,omitempty"`
	SourceRef *string    `json:"source_ref,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// saveTempFile spools one uploaded part into the ingest temp directory.
// The pipeline owns the file from here; it is deleted only via orphan
// cleanup or duplicate rejection.
func (a *API) saveTempFile(part *multipart.FileHeader) (string, error) {
	dir := a.Config.Ingest.TempDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}

	src, err := part.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	name := fmt.Sprintf("%s_%s", uuid.New(), filepath.Base(part.Filename))
	path := filepath.Join(dir, name)
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to spool upload: %w", err)
	}
	return path, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// chatBotIngestHandler accepts one file from the chat-bot producer.
// (source, source_ref) dedupes re-deliveries of the same message.
func (a *API) chatBotIngestHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			respondError(w, http.StatusBadRequest, "invalid multipart request: %v", err)
			return
		}

		files := r.MultipartForm.File["file"]
		if len(files) == 0 {
			respondError(w, http.StatusBadRequest, "file is required")
			return
		}

		messageID := r.FormValue("message_id")
		sourceRef := r.FormValue("source_ref")
		if sourceRef == "" {
			if messageID == "" {
				respondError(w, http.StatusBadRequest, "message_id or source_ref is required")
				return
			}
			sourceRef = "msg:" + messageID
		}

		job, status, err := a.queueUpload(r, files[0], models.SourceChatBot, &sourceRef, map[string]interface{}{
			"filename":   files[0].Filename,
			"message_id": messageID,
			"chat_id":    r.FormValue("chat_id"),
			"sent_at":    r.FormValue("sent_at"),
		})
		if err != nil {
			if errors.Is(err, ingest.ErrDuplicateSourceRef) {
				respondDetail(w, http.StatusConflict, ingest.ErrDuplicateSourceRef.Error())
				return
			}
			respondError(w, status, "%v", err)
			return
		}
		respondJSON(w, http.StatusAccepted, job)
	})
}

// chatBotBatchHandler accepts up to the configured maximum of files in
// one request. Source refs are "<prefix>:<index>", 1-based.
func (a *API) chatBotBatchHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			respondError(w, http.StatusBadRequest, "invalid multipart request: %v", err)
			return
		}

		files := r.MultipartForm.File["files"]
		if len(files) == 0 {
			respondError(w, http.StatusBadRequest, "files are required")
			return
		}
		if max := a.Config.Ingest.BatchMaxFiles; len(files) > max {
			respondError(w, http.StatusBadRequest, "too many files: %d (max %d)", len(files), max)
			return
		}

		messageID := r.FormValue("message_id")
		prefix := r.FormValue("source_ref_prefix")
		if prefix == "" {
			if messageID == "" {
				respondError(w, http.StatusBadRequest, "message_id or source_ref_prefix is required")
				return
			}
			prefix = "msg:" + messageID
		}

		accepted := make([]batchItemResult, 0, len(files))
		rejected := make([]batchItemResult, 0)
		for i, part := range files {
			index := i + 1
			sourceRef := fmt.Sprintf("%s:%d", prefix, index)
			job, _, err := a.queueUpload(r, part, models.SourceChatBot, &sourceRef, map[string]interface{}{
				"filename":   part.Filename,
				"message_id": messageID,
				"chat_id":    r.FormValue("chat_id"),
				"sent_at":    r.FormValue("sent_at"),
				"batch_idx":  index,
			})
			if err != nil {
				rejected = append(rejected, batchItemResult{
					Index: index, Filename: part.Filename, Error: err.Error(),
				})
				continue
			}
			accepted = append(accepted, batchItemResult{
				Index: index, Filename: part.Filename, JobID: &job.JobID, SourceRef: job.SourceRef,
			})
		}

		respondJSON(w, http.StatusAccepted, map[string]interface{}{
			"accepted": accepted,
			"rejected": rejected,
		})
	})
}

// manualIngestHandler accepts an operator or API upload. Manual uploads
// carry no dedupe constraint.
func (a *API) manualIngestHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			respondError(w, http.StatusBadRequest, "invalid multipart request: %v", err)
			return
		}

		files := r.MultipartForm.File["file"]
		if len(files) == 0 {
			respondError(w, http.StatusBadRequest, "file is required")
			return
		}

		source, err := manualSource(r.FormValue("source"))
		if err != nil {
			respondError(w, http.StatusBadRequest, "%v", err)
			return
		}

		job, status, err := a.queueUpload(r, files[0], source, optional(r.FormValue("source_ref")), map[string]interface{}{
			"filename":    files[0].Filename,
			"title":       r.FormValue("title"),
			"description": r.FormValue("description"),
		})
		if err != nil {
			if errors.Is(err, ingest.ErrDuplicateSourceRef) {
				respondDetail(w, http.StatusConflict, ingest.ErrDuplicateSourceRef.Error())
				return
			}
			respondError(w, status, "%v", err)
			return
		}
		respondJSON(w, http.StatusAccepted, job)
	})
}

// manualBatchHandler queues several operator uploads at once.
func (a *API) manualBatchHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			respondError(w, http.StatusBadRequest, "invalid multipart request: %v", err)
			return
		}

		files := r.MultipartForm.File["files"]
		if len(files) == 0 {
			respondError(w, http.StatusBadRequest, "files are required")
			return
		}
		if max := a.Config.Ingest.BatchMaxFiles; len(files) > max {
			respondError(w, http.StatusBadRequest, "too many files: %d (max %d)", len(files), max)
			return
		}

		source, err := manualSource(r.FormValue("source"))
		if err != nil {
			respondError(w, http.StatusBadRequest, "%v", err)
			return
		}
		prefix := r.FormValue("source_ref_prefix")

		accepted := make([]batchItemResult, 0, len(files))
		rejected := make([]batchItemResult, 0)
		for i, part := range files {
			index := i + 1
			var sourceRef *string
			if prefix != "" {
				ref := fmt.Sprintf("%s:%d", prefix, index)
				sourceRef = &ref
			}
			job, _, err := a.queueUpload(r, part, source, sourceRef, map[string]interface{}{
				"filename":  part.Filename,
				"batch_idx": index,
			})
			if err != nil {
				rejected = append(rejected, batchItemResult{
					Index: index, Filename: part.Filename, Error: err.Error(),
				})
				continue
			}
			accepted = append(accepted, batchItemResult{
				Index: index, Filename: part.Filename, JobID: &job.JobID, SourceRef: job.SourceRef,
			})
		}

		respondJSON(w, http.StatusAccepted, map[string]interface{}{
			"accepted": accepted,
			"rejected": rejected,
		})
	})
}

func manualSource(raw string) (models.SourceType, error) {
	switch raw {
	case "", string(models.SourceManual):
		return models.SourceManual, nil
	case string(models.SourceAPI):
		return models.SourceAPI, nil
	default:
		return "", fmt.Errorf("unsupported source %q (manual, api)", raw)
	}
}

// queueUpload spools the part and enqueues the job. Duplicate source
// refs surface as the bare sentinel so single-upload handlers can emit
// the detail body chat-bot producers parse; batch handlers record its
// message on the rejected item.
func (a *API) queueUpload(r *http.Request, part *multipart.FileHeader, source models.SourceType, sourceRef *string, payload map[string]interface{}) (*acceptedJob, int, error) {
	tempPath, err := a.saveTempFile(part)
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}

	job, err := a.Intake.EnqueueJob(r.Context(), ingest.NewJobInput{
		Source:       source,
		SourceRef:    sourceRef,
		FilePathTemp: tempPath,
		Caption:      optional(r.FormValue("caption")),
		Payload:      payload,
	})
	if err != nil {
		os.Remove(tempPath)
		if errors.Is(err, ingest.ErrDuplicateSourceRef) {
			return nil, http.StatusConflict, ingest.ErrDuplicateSourceRef
		}
		return nil, http.StatusInternalServerError, fmt.Errorf("failed to queue ingest job")
	}

	return &acceptedJob{
		JobID:     job.ID,
		State:     string(job.State),
		Source:    job.Source,
		SourceRef: job.SourceRef,
		QueuedAt:  job.ReceivedAt,
	}, http.StatusAccepted, nil
}

// jobStatusResponse is the full job view with its event trail.
type jobStatusResponse struct {
	JobID            uuid.UUID         `json:"job_id"`
	State            string            `json:"state"`
	Source           models.SourceType `json:"source"`
	SourceRef        *string           `json:"source_ref"`
	DocumentID       *uuid.UUID        `json:"document_id"`
	AttemptCount     int               `json:"attempt_count"`
	MaxAttempts      int               `json:"max_attempts"`
	RetryAfter       *time.Time        `json:"retry_after"`
	LastErrorCode    *string           `json:"last_error_code"`
	LastErrorMessage *string           `json:"last_error_message"`
	ReceivedAt       time.Time         `json:"received_at"`
	StartedAt        *time.Time        `json:"started_at"`
	FinishedAt       *time.Time        `json:"finished_at"`
	IsTerminal       bool              `json:"is_terminal"`
	Success          bool              `json:"success"`
	Events           []jobEvent        `json:"events"`
}

type jobEvent struct {
	FromState  *models.IngestState `json:"from_state"`
	ToState    models.IngestState  `json:"to_state"`
	EventType  string              `json:"event_type"`
	Message    string              `json:"message"`
	Payload    models.JSON         `json:"payload"`
	OccurredAt time.Time           `json:"occurred_at"`
}

func (a *API) jobStatusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "%v", err)
			return
		}

		job, err := models.GetIngestJob(a.DB.WithContext(r.Context()), id)
		if err != nil {
			notFoundOr500(w, err, "ingest job")
			return
		}
		events, err := models.GetJobEvents(a.DB.WithContext(r.Context()), id)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "internal error")
			return
		}

		resp := jobStatusResponse{
			JobID:            job.ID,
			State:            string(job.State),
			Source:           job.Source,
			SourceRef:        job.SourceRef,
			DocumentID:       job.DocumentID,
			AttemptCount:     job.AttemptCount,
			MaxAttempts:      job.MaxAttempts,
			RetryAfter:       job.RetryAfter,
			LastErrorCode:    job.LastErrorCode,
			LastErrorMessage: job.LastErrorMessage,
			ReceivedAt:       job.ReceivedAt,
			StartedAt:        job.StartedAt,
			FinishedAt:       job.FinishedAt,
			IsTerminal:       job.State.IsTerminal(),
			Success:          job.State.IsTerminal() && job.State.IsSuccess(),
			Events:           make([]jobEvent, len(events)),
		}
		for i, ev := range events {
			resp.Events[i] = jobEvent{
				FromState:  ev.FromState,
				ToState:    ev.ToState,
				EventType:  ev.EventType,
				Message:    ev.EventMessage,
				Payload:    ev.EventPayload,
				OccurredAt: ev.OccurredAt,
			}
		}
		respondJSON(w, http.StatusOK, resp)
	})
}

// actionRequest is the optional body of a callback-button action.
type actionRequest struct {
	Force         bool    `json:"force"`
	ResetAttempts bool    `json:"reset_attempts"`
	ClearError    bool    `json:"clear_error"`
	Caption       *string `json:"caption"`
}

// ingestActionHandler verifies the signed button token and requeues the
// job. The token arrives in the X-Bot-Action-Token header or the token
// query parameter.
func (a *API) ingestActionHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "%v", err)
			return
		}
		action := r.PathValue("action")
		if action != actiontoken.ActionRetry && action != actiontoken.ActionReprocess {
			respondError(w, http.StatusBadRequest, "unsupported action %q", action)
			return
		}

		token := r.Header.Get("X-Bot-Action-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			respondError(w, http.StatusUnauthorized, "action token required")
			return
		}
		if err := a.Issuer.Verify(token, id, action, time.Now()); err != nil {
			a.Logger.Warn("action token rejected", "job_id", id, "action", action, "error", err)
			respondError(w, http.StatusUnauthorized, "invalid action token")
			return
		}

		var req actionRequest
		if r.Body != nil && r.ContentLength != 0 {
			if err := decodeJSON(r, &req); err != nil {
				respondError(w, http.StatusBadRequest, "invalid request body: %v", err)
				return
			}
		}

		opts := ingest.RequeueOptions{
			Force:         req.Force,
			ResetAttempts: req.ResetAttempts,
			ClearError:    req.ClearError,
			Actor:         "bot:" + action,
		}
		if action == actiontoken.ActionReprocess {
			opts.CaptionOverride = req.Caption
		}

		result, err := a.Intake.Requeue(r.Context(), id, action, opts)
		if err != nil {
			if errors.Is(err, ingest.ErrJobNotTerminal) {
				respondError(w, http.StatusConflict, "%v", err)
				return
			}
			if errors.Is(err, gorm.ErrRecordNotFound) {
				respondError(w, http.StatusNotFound, "ingest job not found")
				return
			}
			respondError(w, http.StatusInternalServerError, "internal error")
			return
		}
		respondJSON(w, http.StatusOK, result)
	})
}

// requeueRequest is the operator form of a requeue, without the signed
// token the bot buttons carry.
type requeueRequest struct {
	Action        string  `json:"action"`
	Force         bool    `json:"force"`
	ResetAttempts bool    `json:"reset_attempts"`
	ClearError    bool    `json:"clear_error"`
	Caption       *string `json:"caption"`
}

func (a *API) requeueJobHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "%v", err)
			return
		}

		req := requeueRequest{Action: actiontoken.ActionRetry}
		if r.Body != nil && r.ContentLength != 0 {
			if err := decodeJSON(r, &req); err != nil {
				respondError(w, http.StatusBadRequest, "invalid request body: %v", err)
				return
			}
		}
		if req.Action != actiontoken.ActionRetry && req.Action != actiontoken.ActionReprocess {
			respondError(w, http.StatusBadRequest, "unsupported action %q", req.Action)
			return
		}

		opts := ingest.RequeueOptions{
			Force:         req.Force,
			ResetAttempts: req.ResetAttempts,
			ClearError:    req.ClearError,
			Actor:         actorFromRequest(r),
		}
		if req.Action == actiontoken.ActionReprocess {
			opts.CaptionOverride = req.Caption
		}

		result, err := a.Intake.Requeue(r.Context(), id, req.Action, opts)
		if err != nil {
			if errors.Is(err, ingest.ErrJobNotTerminal) {
				respondError(w, http.StatusConflict, "%v", err)
				return
			}
			notFoundOr500(w, err, "ingest job")
			return
		}
		respondJSON(w, http.StatusOK, result)
	})
}

// recoverJobHandler re-uploads the artifact of a job whose temp file was
// lost, then retries it.
func (a *API) recoverJobHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "%v", err)
			return
		}
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			respondError(w, http.StatusBadRequest, "invalid multipart request: %v", err)
			return
		}
		files := r.MultipartForm.File["file"]
		if len(files) == 0 {
			respondError(w, http.StatusBadRequest, "file is required")
			return
		}

		tempPath, err := a.saveTempFile(files[0])
		if err != nil {
			respondError(w, http.StatusInternalServerError, "%v", err)
			return
		}

		result, err := a.Intake.Recover(r.Context(), id, tempPath, actorFromRequest(r))
		if err != nil {
			os.Remove(tempPath)
			if errors.Is(err, ingest.ErrJobNotTerminal) {
				respondError(w, http.StatusConflict, "%v", err)
				return
			}
			notFoundOr500(w, err, "ingest job")
			return
		}
		respondJSON(w, http.StatusOK, result)
	})
}
