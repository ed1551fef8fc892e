package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/docvault/pkg/models"
	"github.com/hashicorp-forge/docvault/pkg/queue"
)

// ScheduleRetry flips a failed job back to RECEIVED with a retry_after
// fence and enqueues a delayed redelivery. The attempt that just failed
// already bumped attempt_count, so the backoff keys off that value.
func (p *Pipeline) ScheduleRetry(ctx context.Context, q queue.Queue, policy RetryPolicy, jobID uuid.UUID, reason string) error {
	job, err := models.GetIngestJob(p.db.WithContext(ctx), jobID)
	if err != nil {
		return err
	}

	delay := policy.Backoff(job.AttemptCount)
	retryAfter := time.Now().UTC().Add(delay)

	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		from := job.State
		job.State = models.StateReceived
		job.RetryAfter = &retryAfter
		job.StartedAt = nil
		job.FinishedAt = nil
		if err := tx.Save(job).Error; err != nil {
			return err
		}
		event := models.IngestEvent{
			IngestJobID:  job.ID,
			FromState:    &from,
			ToState:      models.StateReceived,
			EventType:    EventRetryScheduled,
			EventMessage: "job failed, scheduled retry",
			EventPayload: models.JSONMap(map[string]interface{}{
				"attempt_count": job.AttemptCount,
				"max_attempts":  job.MaxAttempts,
				"delay_seconds": int(delay.Seconds()),
				"retry_after":   retryAfter.Format(time.RFC3339),
				"reason":        reason,
			}),
		}
		return tx.Create(&event).Error
	})
	if err != nil {
		return fmt.Errorf("failed to schedule retry: %w", err)
	}

	task := queue.NewTask(queue.TaskIngestProcess, map[string]interface{}{
		"job_id": jobID.String(),
	}).Delay(retryAfter)
	if err := q.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("failed to enqueue retry: %w", err)
	}

	p.logger.Info("retry scheduled",
		"job_id", jobID, "attempt", job.AttemptCount, "max_attempts", job.MaxAttempts, "delay", delay)
	return nil
}

// MoveToDeadLetter marks an exhausted job as permanently failed. The
// failed attempt already left the job FAILED; the dead-letter pass pins
// the error code and clears the retry fence so sweeps leave it alone.
func (p *Pipeline) MoveToDeadLetter(ctx context.Context, jobID uuid.UUID, reason string) error {
	job, err := models.GetIngestJob(p.db.WithContext(ctx), jobID)
	if err != nil {
		return err
	}

	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		from := job.State
		job.State = models.StateFailed
		job.RetryAfter = nil
		if job.FinishedAt == nil {
			now := time.Now().UTC()
			job.FinishedAt = &now
		}
		if job.LastErrorCode == nil || *job.LastErrorCode == "" || *job.LastErrorCode == models.ErrCodePipelineUnexpected {
			code := models.ErrCodeDLQMaxAttempts
			job.LastErrorCode = &code
		}
		if job.LastErrorMessage == nil || *job.LastErrorMessage == "" {
			job.LastErrorMessage = &reason
		}
		if err := tx.Save(job).Error; err != nil {
			return err
		}

		payload := map[string]interface{}{
			"attempt_count":   job.AttemptCount,
			"max_attempts":    job.MaxAttempts,
			"reason":          reason,
			"last_error_code": derefString(job.LastErrorCode),
		}
		event := models.IngestEvent{
			IngestJobID:  job.ID,
			FromState:    &from,
			ToState:      models.StateFailed,
			EventType:    EventDeadLetter,
			EventMessage: "max attempts exceeded; moved to dead-letter",
			EventPayload: models.JSONMap(payload),
		}
		if err := tx.Create(&event).Error; err != nil {
			return err
		}

		return models.RecordAudit(tx, models.AuditIngestJobDeadLetter, "ingest_job", &job.ID, "system",
			models.JSONMap(payload))
	})
	if err != nil {
		return fmt.Errorf("failed to dead-letter job: %w", err)
	}

	p.logger.Error("ingest job dead-lettered",
		"job_id", jobID, "attempts", job.AttemptCount, "error_code", derefString(job.LastErrorCode))
	return nil
}

// ShouldRetryJob reports whether the job has attempts left.
func (p *Pipeline) ShouldRetryJob(ctx context.Context, policy RetryPolicy, jobID uuid.UUID) (bool, error) {
	job, err := models.GetIngestJob(p.db.WithContext(ctx), jobID)
	if err != nil {
		return false, err
	}
	return policy.ShouldRetry(job.AttemptCount, job.MaxAttempts), nil
}
