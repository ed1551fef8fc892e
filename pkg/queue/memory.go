package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Memory is an in-process queue for tests and single-binary
// deployments. It implements both Queue and Consumer.
type Memory struct {
	tasks  chan *Task
	logger hclog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}

	timerMu sync.Mutex
	timers  map[string]*time.Timer
}

// NewMemory creates an in-memory queue with the given buffer capacity.
func NewMemory(capacity int, logger hclog.Logger) *Memory {
	if capacity <= 0 {
		capacity = 1024
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Memory{
		tasks:  make(chan *Task, capacity),
		logger: logger.Named("memory-queue"),
		stopCh: make(chan struct{}),
		timers: make(map[string]*time.Timer),
	}
}

// Enqueue publishes a task. Delayed tasks are held on a timer until
// due.
func (m *Memory) Enqueue(ctx context.Context, task *Task) error {
	if task.NotBefore != nil {
		if wait := time.Until(*task.NotBefore); wait > 0 {
			m.scheduleDelayed(task, wait)
			return nil
		}
	}
	return m.push(ctx, task)
}

func (m *Memory) push(ctx context.Context, task *Task) error {
	select {
	case m.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.stopCh:
		return fmt.Errorf("queue closed")
	}
}

func (m *Memory) scheduleDelayed(task *Task, wait time.Duration) {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()

	m.timers[task.ID] = time.AfterFunc(wait, func() {
		m.timerMu.Lock()
		delete(m.timers, task.ID)
		m.timerMu.Unlock()

		select {
		case m.tasks <- task:
		case <-m.stopCh:
		}
	})
}

// Run consumes tasks until the context is canceled or Stop is called.
// Handler errors are logged and the task dropped; retry scheduling is
// the handler's responsibility.
func (m *Memory) Run(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.stopCh:
			return nil
		case task := <-m.tasks:
			if !task.Due(time.Now()) {
				m.scheduleDelayed(task, time.Until(*task.NotBefore))
				continue
			}
			if err := handler(ctx, task); err != nil {
				m.logger.Error("task failed", "task", task.Name, "id", task.ID, "error", err)
			}
		}
	}
}

// Stop shuts down the queue and cancels pending delayed tasks.
func (m *Memory) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)

		m.timerMu.Lock()
		defer m.timerMu.Unlock()
		for id, timer := range m.timers {
			timer.Stop()
			delete(m.timers, id)
		}
	})
}

// Close implements Queue.
func (m *Memory) Close() {
	m.Stop()
}

// Len reports the number of buffered, due tasks. Test helper.
func (m *Memory) Len() int {
	return len(m.tasks)
}
