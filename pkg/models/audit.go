package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Audit log actions recorded by the service.
const (
	AuditIngestJobDeadLetter = "INGEST_JOB_DEAD_LETTER"
	AuditIngestJobRequeue    = "INGEST_JOB_REQUEUE"
	AuditIngestJobRecover    = "INGEST_JOB_RECOVER"
	AuditDocumentDelete      = "DOCUMENT_DELETE"
	AuditReviewResolve       = "REVIEW_RESOLVE"
	AuditRuleVersionActivate = "RULE_VERSION_ACTIVATE"
	AuditBackfillStart       = "BACKFILL_START"
	AuditBackfillDone        = "BACKFILL_DONE"
	AuditDocumentBackfill    = "DOCUMENT_BACKFILL_UPDATE"
)

// AuditLog is an append-only record of operator-visible actions.
type AuditLog struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `json:"createdAt"`

	Action     string     `gorm:"type:varchar(80);not null;index" json:"action"`
	EntityType string     `gorm:"type:varchar(40);not null" json:"entityType"`
	EntityID   *uuid.UUID `gorm:"type:uuid;index" json:"entityId,omitempty"`
	Actor      string     `gorm:"type:varchar(100);not null;default:'system'" json:"actor"`
	Detail     JSON       `gorm:"type:jsonb;not null;default:'{}'" json:"detail"`
}

// TableName specifies the table name.
func (AuditLog) TableName() string {
	return "audit_logs"
}

// BeforeCreate hook to ensure defaults.
func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.Actor == "" {
		a.Actor = "system"
	}
	if len(a.Detail) == 0 {
		a.Detail = JSON("{}")
	}
	return nil
}

// RecordAudit appends one audit row.
func RecordAudit(db *gorm.DB, action, entityType string, entityID *uuid.UUID, actor string, detail JSON) error {
	entry := AuditLog{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Actor:      actor,
		Detail:     detail,
	}
	return db.Create(&entry).Error
}
