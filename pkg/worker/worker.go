// Package worker dispatches queued tasks to the ingest pipeline, the
// search syncer, and the backfill engine.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/docvault/pkg/backfill"
	"github.com/hashicorp-forge/docvault/pkg/ingest"
	"github.com/hashicorp-forge/docvault/pkg/queue"
	"github.com/hashicorp-forge/docvault/pkg/searchsync"
)

// Worker maps task names to handlers. Delivery is at-least-once, so
// every handler path tolerates redelivery of already-finished work.
type Worker struct {
	pipeline *ingest.Pipeline
	syncer   *searchsync.Syncer
	backfill *backfill.Engine
	queue    queue.Queue
	policy   ingest.RetryPolicy
	logger   hclog.Logger
}

// New wires the worker.
func New(
	pipeline *ingest.Pipeline,
	syncer *searchsync.Syncer,
	bf *backfill.Engine,
	q queue.Queue,
	policy ingest.RetryPolicy,
	logger hclog.Logger,
) *Worker {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Worker{
		pipeline: pipeline,
		syncer:   syncer,
		backfill: bf,
		queue:    q,
		policy:   policy,
		logger:   logger.Named("worker"),
	}
}

// Handle is the queue.Handler for all task names. Unknown names and
// malformed arguments are logged and dropped; returning an error would
// only make the transport redeliver a task that can never succeed.
func (w *Worker) Handle(ctx context.Context, task *queue.Task) error {
	w.logger.Debug("task received", "task", task.Name, "id", task.ID)

	switch task.Name {
	case queue.TaskIngestProcess:
		return w.handleIngest(ctx, task)

	case queue.TaskSearchSyncOne:
		id, ok := w.documentIDArg(task)
		if !ok {
			return nil
		}
		return w.syncer.SyncOne(ctx, id)

	case queue.TaskSearchSyncBatch:
		ids := w.documentIDsArg(task)
		if len(ids) == 0 {
			return nil
		}
		return w.syncer.SyncBatch(ctx, ids)

	case queue.TaskSearchDelete:
		id, ok := w.documentIDArg(task)
		if !ok {
			return nil
		}
		return w.syncer.Delete(ctx, id)

	case queue.TaskSearchRebuild:
		n, err := w.syncer.RebuildAll(ctx)
		if err != nil {
			return err
		}
		w.logger.Info("search index rebuilt", "documents", n)
		return nil

	case queue.TaskBackfillRun:
		return w.handleBackfill(ctx, task)

	default:
		w.logger.Warn("unknown task dropped", "task", task.Name, "id", task.ID)
		return nil
	}
}

// handleIngest runs one pipeline attempt and owns the retry decision:
// retries remaining schedule a delayed redelivery, exhausted jobs go to
// the dead letter.
func (w *Worker) handleIngest(ctx context.Context, task *queue.Task) error {
	jobID, err := uuid.Parse(task.StringArg("job_id"))
	if err != nil {
		w.logger.Warn("ingest task without valid job_id dropped", "id", task.ID)
		return nil
	}

	result, err := w.pipeline.Process(ctx, jobID)
	if err != nil {
		return w.resolveFailure(ctx, jobID, fmt.Sprintf("task_exception: %v", err))
	}
	if result.OK || result.ErrorCode == "job_not_found" {
		return nil
	}
	return w.resolveFailure(ctx, jobID, result.ErrorCode)
}

func (w *Worker) resolveFailure(ctx context.Context, jobID uuid.UUID, reason string) error {
	retry, err := w.pipeline.ShouldRetryJob(ctx, w.policy, jobID)
	if err != nil {
		return err
	}
	if retry {
		return w.pipeline.ScheduleRetry(ctx, w.queue, w.policy, jobID, reason)
	}
	return w.pipeline.MoveToDeadLetter(ctx, jobID, reason)
}

func (w *Worker) handleBackfill(ctx context.Context, task *queue.Task) error {
	versionID, err := uuid.Parse(task.StringArg("rule_version_id"))
	if err != nil {
		w.logger.Warn("backfill task without valid rule_version_id dropped", "id", task.ID)
		return nil
	}

	req := backfill.Request{
		RuleVersionID: versionID,
		BatchSize:     task.IntArg("batch_size"),
		Actor:         task.StringArg("actor"),
		Filter:        backfillFilterArg(task),
	}

	summary, err := w.backfill.Run(ctx, req)
	if err != nil {
		return err
	}
	w.logger.Info("backfill task finished",
		"rule_version", summary.RuleVersionNo,
		"updated", summary.Updated, "skipped", summary.Skipped, "failed", summary.Failed)
	return nil
}

// backfillFilterArg decodes the optional filter object from the task
// arguments. Malformed fields are ignored, matching the run-everything
// default.
func backfillFilterArg(task *queue.Task) *backfill.Filter {
	raw, ok := task.Args["filter"].(map[string]interface{})
	if !ok {
		return nil
	}

	filter := &backfill.Filter{}
	if s, ok := raw["category_id"].(string); ok {
		if id, err := uuid.Parse(s); err == nil {
			filter.CategoryID = &id
		}
	}
	if s, ok := raw["from"].(string); ok {
		if d, err := time.Parse("2006-01-02", s); err == nil {
			filter.From = &d
		}
	}
	if s, ok := raw["to"].(string); ok {
		if d, err := time.Parse("2006-01-02", s); err == nil {
			filter.To = &d
		}
	}
	if b, ok := raw["review_only"].(bool); ok {
		filter.ReviewOnly = b
	}
	return filter
}

func (w *Worker) documentIDArg(task *queue.Task) (uuid.UUID, bool) {
	id, err := uuid.Parse(task.StringArg("document_id"))
	if err != nil {
		w.logger.Warn("task without valid document_id dropped", "task", task.Name, "id", task.ID)
		return uuid.Nil, false
	}
	return id, true
}

func (w *Worker) documentIDsArg(task *queue.Task) []uuid.UUID {
	raw := task.StringSliceArg("document_ids")
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			w.logger.Warn("skipping invalid document id", "task", task.Name, "value", s)
			continue
		}
		out = append(out, id)
	}
	return out
}
