package ingest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/docvault/pkg/models"
	"github.com/hashicorp-forge/docvault/pkg/queue"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	err = db.AutoMigrate(models.ModelsToAutoMigrate()...)
	require.NoError(t, err)
	return db
}

// newTestPipeline builds a pipeline with no backend, rules, catalog, or
// notifier. The storage stage fails before any of them is touched, so
// failure-path tests never dereference the nil collaborators.
func newTestPipeline(db *gorm.DB) *Pipeline {
	return NewPipeline(db, nil, nil, nil, nil, nil, hclog.NewNullLogger())
}

func createJobMissingFile(t *testing.T, db *gorm.DB, maxAttempts int) *models.IngestJob {
	missing := filepath.Join(t.TempDir(), "vanished.pdf")
	ref := "msg:100"
	job := &models.IngestJob{
		Source:       models.SourceChatBot,
		SourceRef:    &ref,
		State:        models.StateReceived,
		FilePathTemp: &missing,
		MaxAttempts:  maxAttempts,
	}
	require.NoError(t, db.Create(job).Error)
	return job
}

func reloadJob(t *testing.T, db *gorm.DB, id uuid.UUID) *models.IngestJob {
	job, err := models.GetIngestJob(db, id)
	require.NoError(t, err)
	return job
}

func TestProcessMissingTempFileFailsJob(t *testing.T) {
	db := setupTestDB(t)
	p := newTestPipeline(db)
	job := createJobMissingFile(t, db, 5)

	result, err := p.Process(context.Background(), job.ID)
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, ErrCodeStorageTempFileMissing, result.ErrorCode)
	assert.Equal(t, StageStored, result.ErrorStage)
	assert.Nil(t, result.DocumentID)

	saved := reloadJob(t, db, job.ID)
	assert.Equal(t, models.StateFailed, saved.State)
	assert.True(t, saved.State.IsTerminal())
	assert.Equal(t, 1, saved.AttemptCount)
	require.NotNil(t, saved.StartedAt)
	require.NotNil(t, saved.FinishedAt)
	require.NotNil(t, saved.LastErrorCode)
	assert.Equal(t, ErrCodeStorageTempFileMissing, *saved.LastErrorCode)
	require.NotNil(t, saved.LastErrorMessage)

	events, err := models.GetJobEvents(db, job.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].EventType)
	require.NotNil(t, events[0].FromState)
	assert.Equal(t, models.StateReceived, *events[0].FromState)
	assert.Equal(t, models.StateFailed, events[0].ToState)
}

func TestProcessUnknownJob(t *testing.T) {
	db := setupTestDB(t)
	p := newTestPipeline(db)

	result, err := p.Process(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, "job_not_found", result.ErrorCode)
}

func TestScheduleRetryAfterFailedAttempt(t *testing.T) {
	db := setupTestDB(t)
	p := newTestPipeline(db)
	policy := RetryPolicy{Base: 30 * time.Second, Max: 30 * time.Minute}
	job := createJobMissingFile(t, db, 5)

	result, err := p.Process(context.Background(), job.ID)
	require.NoError(t, err)
	require.False(t, result.OK)

	retry, err := p.ShouldRetryJob(context.Background(), policy, job.ID)
	require.NoError(t, err)
	assert.True(t, retry)

	q := queue.NewMemory(4, nil)
	defer q.Stop()
	err = p.ScheduleRetry(context.Background(), q, policy, job.ID, result.ErrorCode)
	require.NoError(t, err)

	saved := reloadJob(t, db, job.ID)
	assert.Equal(t, models.StateReceived, saved.State)
	assert.Equal(t, 1, saved.AttemptCount)
	require.NotNil(t, saved.RetryAfter)
	assert.True(t, saved.RetryAfter.After(time.Now().UTC()))
	assert.Nil(t, saved.StartedAt)
	assert.Nil(t, saved.FinishedAt)

	// The redelivery is parked on a timer until retry_after, not handed
	// to consumers immediately.
	assert.Equal(t, 0, q.Len())

	events, err := models.GetJobEvents(db, job.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventError, events[0].EventType)
	assert.Equal(t, models.StateFailed, events[0].ToState)
	assert.Equal(t, EventRetryScheduled, events[1].EventType)
	require.NotNil(t, events[1].FromState)
	assert.Equal(t, models.StateFailed, *events[1].FromState)
	assert.Equal(t, models.StateReceived, events[1].ToState)
}

func TestMoveToDeadLetterAfterExhaustedAttempts(t *testing.T) {
	db := setupTestDB(t)
	p := newTestPipeline(db)
	policy := RetryPolicy{Base: time.Second, Max: time.Minute}
	job := createJobMissingFile(t, db, 1)

	result, err := p.Process(context.Background(), job.ID)
	require.NoError(t, err)
	require.False(t, result.OK)

	retry, err := p.ShouldRetryJob(context.Background(), policy, job.ID)
	require.NoError(t, err)
	assert.False(t, retry)

	err = p.MoveToDeadLetter(context.Background(), job.ID, "retries exhausted")
	require.NoError(t, err)

	saved := reloadJob(t, db, job.ID)
	assert.Equal(t, models.StateFailed, saved.State)
	assert.Nil(t, saved.RetryAfter)
	require.NotNil(t, saved.FinishedAt)

	// The real stage error survives the dead-letter pass; DLQ_MAX_ATTEMPTS
	// only fills a missing or generic code.
	require.NotNil(t, saved.LastErrorCode)
	assert.Equal(t, ErrCodeStorageTempFileMissing, *saved.LastErrorCode)

	events, err := models.GetJobEvents(db, job.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventError, events[0].EventType)
	assert.Equal(t, EventDeadLetter, events[1].EventType)
	assert.Equal(t, models.StateFailed, events[1].ToState)
}
