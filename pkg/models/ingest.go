package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SourceType identifies the producer that supplied a file.
type SourceType string

const (
	SourceChatBot SourceType = "chat-bot"
	SourceWiki    SourceType = "wiki"
	SourceManual  SourceType = "manual"
	SourceAPI     SourceType = "api"
)

// IngestState is the lifecycle state of an ingest job.
type IngestState string

const (
	StateReceived    IngestState = "RECEIVED"
	StateStored      IngestState = "STORED"
	StateExtracted   IngestState = "EXTRACTED"
	StateClassified  IngestState = "CLASSIFIED"
	StateIndexed     IngestState = "INDEXED"
	StatePublished   IngestState = "PUBLISHED"
	StateNeedsReview IngestState = "NEEDS_REVIEW"
	StateFailed      IngestState = "FAILED"
)

// IsTerminal reports whether the state ends the job lifecycle.
func (s IngestState) IsTerminal() bool {
	switch s {
	case StatePublished, StateNeedsReview, StateFailed:
		return true
	}
	return false
}

// IsSuccess reports whether the terminal state produced a document.
func (s IngestState) IsSuccess() bool {
	return s == StatePublished || s == StateNeedsReview
}

// IngestJob drives one uploaded artifact from bytes to a catalog entry.
//
// For the chat-bot source, (source, source_ref) is enforced unique by a
// partial index so a re-delivered producer message cannot enqueue twice.
type IngestJob struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Source    SourceType `gorm:"type:varchar(20);not null;index:idx_ingest_jobs_source_ref" json:"source"`
	SourceRef *string    `gorm:"type:varchar(128);index:idx_ingest_jobs_source_ref" json:"sourceRef,omitempty"`

	State        IngestState `gorm:"type:varchar(20);not null;default:'RECEIVED';index:idx_ingest_jobs_state_received" json:"state"`
	FilePathTemp *string     `gorm:"type:text" json:"filePathTemp,omitempty"`
	Caption      *string     `gorm:"type:text" json:"caption,omitempty"`
	Payload      JSON        `gorm:"type:jsonb;not null;default:'{}'" json:"payload"`

	DocumentID *uuid.UUID `gorm:"type:uuid;index" json:"documentId,omitempty"`

	AttemptCount int        `gorm:"not null;default:0" json:"attemptCount"`
	MaxAttempts  int        `gorm:"not null;default:5" json:"maxAttempts"`
	RetryAfter   *time.Time `json:"retryAfter,omitempty"`

	LastErrorCode    *string `gorm:"type:varchar(80)" json:"lastErrorCode,omitempty"`
	LastErrorMessage *string `gorm:"type:text" json:"lastErrorMessage,omitempty"`

	ReceivedAt time.Time  `gorm:"not null;index:idx_ingest_jobs_state_received" json:"receivedAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// TableName specifies the table name.
func (IngestJob) TableName() string {
	return "ingest_jobs"
}

// BeforeCreate hook to ensure the ID and receipt time are set.
func (j *IngestJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	if j.ReceivedAt.IsZero() {
		j.ReceivedAt = time.Now().UTC()
	}
	if j.State == "" {
		j.State = StateReceived
	}
	if j.MaxAttempts == 0 {
		j.MaxAttempts = 5
	}
	if len(j.Payload) == 0 {
		j.Payload = JSON("{}")
	}
	return nil
}

// GetIngestJob retrieves a job by ID.
func GetIngestJob(db *gorm.DB, id uuid.UUID) (*IngestJob, error) {
	var job IngestJob
	if err := db.First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// CountJobsByState returns the number of jobs per state, for the ingest
// backlog gauge.
func CountJobsByState(db *gorm.DB) (map[IngestState]int64, error) {
	type row struct {
		State IngestState
		N     int64
	}
	var rows []row
	err := db.Model(&IngestJob{}).
		Select("state, count(*) as n").
		Group("state").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[IngestState]int64, len(rows))
	for _, r := range rows {
		out[r.State] = r.N
	}
	return out, nil
}

// OldestPendingReceivedAt returns the receipt time of the oldest job
// still in RECEIVED, or nil when the backlog is empty.
func OldestPendingReceivedAt(db *gorm.DB) (*time.Time, error) {
	var job IngestJob
	err := db.Where("state = ?", StateReceived).
		Order("received_at ASC").
		First(&job).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &job.ReceivedAt, nil
}

// TerminalOutcomesSince counts jobs finished after the cutoff, split
// into successes (PUBLISHED, NEEDS_REVIEW) and failures (FAILED). Feeds
// the success-ratio gauge.
func TerminalOutcomesSince(db *gorm.DB, since time.Time) (success, failure int64, err error) {
	err = db.Model(&IngestJob{}).
		Where("finished_at >= ? AND state IN ?", since,
			[]IngestState{StatePublished, StateNeedsReview}).
		Count(&success).Error
	if err != nil {
		return 0, 0, err
	}
	err = db.Model(&IngestJob{}).
		Where("finished_at >= ? AND state = ?", since, StateFailed).
		Count(&failure).Error
	if err != nil {
		return 0, 0, err
	}
	return success, failure, nil
}

// IngestEvent is the append-only audit trail of a job. Rows are never
// mutated; forensic replay reconstructs the job timeline from them.
type IngestEvent struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `json:"createdAt"`

	IngestJobID uuid.UUID    `gorm:"type:uuid;not null;index:idx_ingest_events_job_occurred" json:"ingestJobId"`
	FromState   *IngestState `gorm:"type:varchar(20)" json:"fromState,omitempty"`
	ToState     IngestState  `gorm:"type:varchar(20);not null" json:"toState"`

	EventType    string    `gorm:"type:varchar(80);not null" json:"eventType"`
	EventMessage string    `gorm:"type:text;not null;default:''" json:"eventMessage"`
	EventPayload JSON      `gorm:"type:jsonb;not null;default:'{}'" json:"eventPayload"`
	OccurredAt   time.Time `gorm:"not null;index:idx_ingest_events_job_occurred" json:"occurredAt"`
}

// TableName specifies the table name.
func (IngestEvent) TableName() string {
	return "ingest_events"
}

// BeforeCreate hook to stamp the occurrence time.
func (e *IngestEvent) BeforeCreate(tx *gorm.DB) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	if len(e.EventPayload) == 0 {
		e.EventPayload = JSON("{}")
	}
	return nil
}

// GetJobEvents returns a job's events oldest first.
func GetJobEvents(db *gorm.DB, jobID uuid.UUID) ([]IngestEvent, error) {
	var events []IngestEvent
	err := db.Where("ingest_job_id = ?", jobID).
		Order("occurred_at ASC, id ASC").
		Find(&events).Error
	return events, err
}
