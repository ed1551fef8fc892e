package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTask(t *testing.T) {
	task := NewTask(TaskIngestProcess, map[string]interface{}{"job_id": "abc"})

	assert.NotEmpty(t, task.ID)
	assert.Equal(t, TaskIngestProcess, task.Name)
	assert.Equal(t, "abc", task.StringArg("job_id"))
	assert.Empty(t, task.StringArg("missing"))
	assert.True(t, task.Due(time.Now()))
}

func TestTaskDelay(t *testing.T) {
	task := NewTask(TaskSearchSyncOne, nil)
	notBefore := time.Now().Add(time.Hour)
	delayed := task.Delay(notBefore)

	assert.Nil(t, task.NotBefore)
	require.NotNil(t, delayed.NotBefore)
	assert.False(t, delayed.Due(time.Now()))
	assert.True(t, delayed.Due(notBefore))
	assert.True(t, delayed.Due(notBefore.Add(time.Minute)))
}

func TestMemoryDeliversTasks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	q := NewMemory(16, nil)
	defer q.Close()

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})

	go func() {
		_ = q.Run(ctx, func(ctx context.Context, task *Task) error {
			mu.Lock()
			got = append(got, task.Name)
			if len(got) == 2 {
				close(done)
			}
			mu.Unlock()
			return nil
		})
	}()

	require.NoError(t, q.Enqueue(ctx, NewTask(TaskIngestProcess, nil)))
	require.NoError(t, q.Enqueue(ctx, NewTask(TaskSearchRebuild, nil)))

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("tasks not delivered in time")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{TaskIngestProcess, TaskSearchRebuild}, got)
}

func TestMemoryHonorsNotBefore(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	q := NewMemory(16, nil)
	defer q.Close()

	delivered := make(chan time.Time, 1)
	go func() {
		_ = q.Run(ctx, func(ctx context.Context, task *Task) error {
			delivered <- time.Now()
			return nil
		})
	}()

	start := time.Now()
	task := NewTask(TaskSearchSyncOne, nil).Delay(start.Add(150 * time.Millisecond))
	require.NoError(t, q.Enqueue(ctx, task))

	select {
	case at := <-delivered:
		assert.GreaterOrEqual(t, at.Sub(start), 100*time.Millisecond)
	case <-ctx.Done():
		t.Fatal("delayed task never delivered")
	}
}

func TestMemoryHandlerErrorDoesNotStopLoop(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	q := NewMemory(16, nil)
	defer q.Close()

	done := make(chan string, 2)
	go func() {
		_ = q.Run(ctx, func(ctx context.Context, task *Task) error {
			done <- task.Name
			if task.Name == TaskSearchDelete {
				return assert.AnError
			}
			return nil
		})
	}()

	require.NoError(t, q.Enqueue(ctx, NewTask(TaskSearchDelete, nil)))
	require.NoError(t, q.Enqueue(ctx, NewTask(TaskSearchSyncBatch, nil)))

	assert.Equal(t, TaskSearchDelete, <-done)
	assert.Equal(t, TaskSearchSyncBatch, <-done)
}

func TestMemoryStopCancelsPending(t *testing.T) {
	q := NewMemory(16, nil)
	task := NewTask(TaskBackfillRun, nil).Delay(time.Now().Add(time.Hour))
	require.NoError(t, q.Enqueue(context.Background(), task))

	q.Stop()
	assert.Zero(t, q.Len())
}
