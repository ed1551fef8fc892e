// Package queue carries background tasks between the API server and
// the worker. Delivery is at-least-once; handlers must be idempotent.
package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Task names understood by the worker.
const (
	TaskIngestProcess   = "ingest.process"
	TaskSearchSyncOne   = "search.sync_one"
	TaskSearchSyncBatch = "search.sync_batch"
	TaskSearchDelete    = "search.delete"
	TaskSearchRebuild   = "search.rebuild"
	TaskBackfillRun     = "backfill.run"
)

// Task is one unit of background work.
type Task struct {
	ID   string                 `json:"id"`
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`

	// NotBefore delays execution; the consumer re-enqueues tasks that
	// are not yet due.
	NotBefore *time.Time `json:"not_before,omitempty"`

	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewTask builds a task with a fresh ID.
func NewTask(name string, args map[string]interface{}) *Task {
	if args == nil {
		args = map[string]interface{}{}
	}
	return &Task{
		ID:         uuid.New().String(),
		Name:       name,
		Args:       args,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Delay returns a copy of the task that will not run before the given
// time.
func (t *Task) Delay(notBefore time.Time) *Task {
	clone := *t
	clone.NotBefore = &notBefore
	return &clone
}

// Due reports whether the task may run now.
func (t *Task) Due(now time.Time) bool {
	return t.NotBefore == nil || !now.Before(*t.NotBefore)
}

// StringArg reads a string argument, or "" when absent.
func (t *Task) StringArg(key string) string {
	if s, ok := t.Args[key].(string); ok {
		return s
	}
	return ""
}

// StringSliceArg reads a list-of-strings argument. Non-string elements
// are skipped; JSON transport decodes lists as []interface{}.
func (t *Task) StringSliceArg(key string) []string {
	raw, ok := t.Args[key].([]interface{})
	if !ok {
		if ss, ok := t.Args[key].([]string); ok {
			return ss
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// IntArg reads a numeric argument, or 0 when absent. JSON transport
// decodes numbers as float64.
func (t *Task) IntArg(key string) int {
	switch v := t.Args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// BoolArg reads a boolean argument, or false when absent.
func (t *Task) BoolArg(key string) bool {
	b, _ := t.Args[key].(bool)
	return b
}

// Queue is the producer side.
type Queue interface {
	// Enqueue publishes a task. A nil NotBefore means run as soon as a
	// worker is free.
	Enqueue(ctx context.Context, task *Task) error

	// Close releases the underlying transport.
	Close()
}

// Handler processes one task. A returned error means the delivery
// failed; the transport may redeliver.
type Handler func(ctx context.Context, task *Task) error

// Consumer is the worker side.
type Consumer interface {
	// Run polls for tasks and invokes the handler until the context is
	// canceled or Stop is called.
	Run(ctx context.Context, handler Handler) error

	// Stop gracefully stops the consumer.
	Stop()
}
