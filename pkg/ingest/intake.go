package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/docvault/pkg/models"
	"github.com/hashicorp-forge/docvault/pkg/queue"
)

// Intake accepts new jobs and operator requeue actions, handing the
// processing work to the task queue.
type Intake struct {
	db     *gorm.DB
	queue  queue.Queue
	logger hclog.Logger
}

// NewIntake creates the intake service.
func NewIntake(db *gorm.DB, q queue.Queue, logger hclog.Logger) *Intake {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Intake{db: db, queue: q, logger: logger.Named("intake")}
}

// ErrDuplicateSourceRef is returned when a chat-bot job with the same
// (source, source_ref) was already accepted.
var ErrDuplicateSourceRef = errors.New("duplicate source_ref")

// ErrJobNotTerminal is returned when a requeue action targets a job
// still mid-pipeline and force was not set.
var ErrJobNotTerminal = errors.New("job is not in a terminal state")

// NewJobInput describes one accepted upload.
type NewJobInput struct {
	Source       models.SourceType
	SourceRef    *string
	FilePathTemp string
	Caption      *string
	Payload      map[string]interface{}
}

// EnqueueJob persists a RECEIVED job and schedules its first processing
// attempt. Chat-bot re-deliveries of the same source_ref are rejected
// with ErrDuplicateSourceRef by the partial unique index.
func (i *Intake) EnqueueJob(ctx context.Context, in NewJobInput) (*models.IngestJob, error) {
	job := models.IngestJob{
		Source:       in.Source,
		SourceRef:    in.SourceRef,
		State:        models.StateReceived,
		FilePathTemp: &in.FilePathTemp,
		Caption:      in.Caption,
		Payload:      models.JSONMap(in.Payload),
		ReceivedAt:   time.Now().UTC(),
	}

	err := i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&job).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateSourceRef
			}
			return fmt.Errorf("failed to create ingest job: %w", err)
		}
		event := models.IngestEvent{
			IngestJobID:  job.ID,
			ToState:      models.StateReceived,
			EventType:    EventStateTransition,
			EventMessage: "job received",
			EventPayload: models.JSONMap(in.Payload),
		}
		return tx.Create(&event).Error
	})
	if err != nil {
		return nil, err
	}

	task := queue.NewTask(queue.TaskIngestProcess, map[string]interface{}{
		"job_id": job.ID.String(),
	})
	if err := i.queue.Enqueue(ctx, task); err != nil {
		// The job row survives; the stuck-job sweep or a manual retry
		// picks it up.
		i.logger.Error("failed to enqueue ingest task", "job_id", job.ID, "error", err)
	}

	i.logger.Info("ingest job accepted",
		"job_id", job.ID, "source", job.Source, "source_ref", derefString(job.SourceRef))
	return &job, nil
}

// RequeueOptions modify a retry/reprocess action.
type RequeueOptions struct {
	Force           bool
	ResetAttempts   bool
	ClearError      bool
	CaptionOverride *string
	Actor           string
}

// RequeueResult reports the state flip performed by an action.
type RequeueResult struct {
	JobID         uuid.UUID          `json:"job_id"`
	Action        string             `json:"action"`
	PreviousState models.IngestState `json:"previous_state"`
	State         models.IngestState `json:"state"`
	AttemptCount  int                `json:"attempt_count"`
	Enqueued      bool               `json:"enqueued"`
}

// Requeue resets a job to RECEIVED and schedules another attempt.
// Mid-pipeline and published jobs require force.
func (i *Intake) Requeue(ctx context.Context, jobID uuid.UUID, action string, opts RequeueOptions) (*RequeueResult, error) {
	var result *RequeueResult
	err := i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		job, err := models.GetIngestJob(tx, jobID)
		if err != nil {
			return err
		}

		previous := job.State
		previousAttempts := job.AttemptCount
		if !opts.Force {
			switch previous {
			case models.StateStored, models.StateExtracted, models.StateClassified,
				models.StateIndexed, models.StatePublished:
				return fmt.Errorf("%w: state=%s", ErrJobNotTerminal, previous)
			}
		}

		if action == "reprocess" && opts.CaptionOverride != nil {
			job.Caption = opts.CaptionOverride
		}
		job.State = models.StateReceived
		job.RetryAfter = nil
		job.StartedAt = nil
		job.FinishedAt = nil
		if opts.ResetAttempts {
			job.AttemptCount = 0
		}
		if opts.ClearError {
			job.LastErrorCode = nil
			job.LastErrorMessage = nil
		}
		if err := tx.Save(job).Error; err != nil {
			return err
		}

		event := models.IngestEvent{
			IngestJobID:  job.ID,
			FromState:    &previous,
			ToState:      models.StateReceived,
			EventType:    "BOT_ACTION_" + strings.ToUpper(action),
			EventMessage: fmt.Sprintf("job %s requested by callback action", action),
			EventPayload: models.JSONMap(map[string]interface{}{
				"force":          opts.Force,
				"reset_attempts": opts.ResetAttempts,
				"clear_error":    opts.ClearError,
			}),
		}
		if err := tx.Create(&event).Error; err != nil {
			return err
		}

		err = models.RecordAudit(tx, models.AuditIngestJobRequeue, "ingest_job", &job.ID, opts.Actor,
			models.JSONMap(map[string]interface{}{
				"action":             action,
				"previous_state":     string(previous),
				"previous_attempts":  previousAttempts,
				"reset_attempts":     opts.ResetAttempts,
				"clear_error":        opts.ClearError,
				"caption_overridden": opts.CaptionOverride != nil,
			}))
		if err != nil {
			return err
		}

		result = &RequeueResult{
			JobID:         job.ID,
			Action:        action,
			PreviousState: previous,
			State:         job.State,
			AttemptCount:  job.AttemptCount,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	task := queue.NewTask(queue.TaskIngestProcess, map[string]interface{}{
		"job_id": jobID.String(),
	})
	if err := i.queue.Enqueue(ctx, task); err != nil {
		i.logger.Error("failed to enqueue requeued job", "job_id", jobID, "error", err)
	} else {
		result.Enqueued = true
	}
	return result, nil
}

// Recover replaces a job's missing temp file with a freshly uploaded
// one and requeues it. This is the follow-up to the re-upload command
// offered when the original temp file vanished before processing.
func (i *Intake) Recover(ctx context.Context, jobID uuid.UUID, newTempPath, actor string) (*RequeueResult, error) {
	err := i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		job, err := models.GetIngestJob(tx, jobID)
		if err != nil {
			return err
		}
		if err := tx.Model(job).Update("file_path_temp", newTempPath).Error; err != nil {
			return err
		}
		return models.RecordAudit(tx, models.AuditIngestJobRecover, "ingest_job", &job.ID, actor,
			models.JSONMap(map[string]interface{}{"recovered": true}))
	})
	if err != nil {
		return nil, err
	}

	return i.Requeue(ctx, jobID, "retry", RequeueOptions{
		Force:      true,
		ClearError: true,
		Actor:      actor,
	})
}

// isUniqueViolation detects a unique-index conflict across the gorm
// error translation and the raw Postgres SQLSTATE.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "23505") ||
		strings.Contains(err.Error(), "duplicate key value")
}
