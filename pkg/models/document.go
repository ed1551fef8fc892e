package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReviewStatus marks whether a document is waiting on an operator.
type ReviewStatus string

const (
	ReviewNone        ReviewStatus = "NONE"
	ReviewNeedsReview ReviewStatus = "NEEDS_REVIEW"
	ReviewResolved    ReviewStatus = "RESOLVED"
)

// Document is the curated, user-facing record. All semantic mutations
// go through the catalog, which snapshots a DocumentVersion per change
// so CurrentVersionNo always equals the highest version on record.
type Document struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Source    SourceType `gorm:"type:varchar(20);not null;index:idx_documents_source_ref" json:"source"`
	SourceRef *string    `gorm:"type:varchar(128);index:idx_documents_source_ref" json:"sourceRef,omitempty"`

	Title       string `gorm:"type:varchar(300);not null" json:"title"`
	Description string `gorm:"type:text;not null;default:''" json:"description"`
	CaptionRaw  string `gorm:"type:text;not null;default:''" json:"captionRaw"`
	Summary     string `gorm:"type:text;not null;default:''" json:"summary"`

	CategoryID *uuid.UUID `gorm:"type:uuid;index:idx_documents_category_event_date" json:"categoryId,omitempty"`
	EventDate  *time.Time `gorm:"type:date;index:idx_documents_category_event_date,sort:desc;index:idx_documents_event_date,sort:desc" json:"eventDate,omitempty"`
	IngestedAt time.Time  `gorm:"not null" json:"ingestedAt"`

	ReviewStatus  ReviewStatus `gorm:"type:varchar(20);not null;default:'NONE'" json:"reviewStatus"`
	ReviewReasons StringList   `gorm:"type:jsonb;not null;default:'[]'" json:"reviewReasons"`

	CurrentVersionNo int `gorm:"not null;default:1" json:"currentVersionNo"`

	// SearchVector is the tokenized fallback-search column. It is
	// refreshed by raw SQL, never written through the struct.
	SearchVector string `gorm:"type:tsvector;index:idx_documents_search_vector,type:gin;->" json:"-"`
}

// TableName specifies the table name.
func (Document) TableName() string {
	return "documents"
}

// BeforeCreate hook to ensure defaults.
func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.ReviewStatus == "" {
		d.ReviewStatus = ReviewNone
	}
	if d.ReviewReasons == nil {
		d.ReviewReasons = StringList{}
	}
	if d.CurrentVersionNo == 0 {
		d.CurrentVersionNo = 1
	}
	if d.IngestedAt.IsZero() {
		d.IngestedAt = time.Now().UTC()
	}
	return nil
}

// GetDocument retrieves a document by ID.
func GetDocument(db *gorm.DB, id uuid.UUID) (*Document, error) {
	var doc Document
	if err := db.First(&doc, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// DocumentVersion is an immutable snapshot of a document at one version
// number. Per document, version numbers are dense and start at 1.
type DocumentVersion struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	DocumentID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_document_versions_doc_version" json:"documentId"`
	VersionNo  int       `gorm:"not null;uniqueIndex:uq_document_versions_doc_version" json:"versionNo"`

	Title       string     `gorm:"type:varchar(300);not null" json:"title"`
	Description string     `gorm:"type:text;not null" json:"description"`
	Summary     string     `gorm:"type:text;not null" json:"summary"`
	CategoryID  *uuid.UUID `gorm:"type:uuid" json:"categoryId,omitempty"`
	EventDate   *time.Time `gorm:"type:date" json:"eventDate,omitempty"`

	TagsSnapshot StringList `gorm:"type:jsonb;not null;default:'[]'" json:"tagsSnapshot"`
	ChangeReason string     `gorm:"type:varchar(200);not null" json:"changeReason"`
	ChangedAt    time.Time  `gorm:"not null" json:"changedAt"`
}

// TableName specifies the table name.
func (DocumentVersion) TableName() string {
	return "document_versions"
}

// BeforeCreate hook to stamp ID and change time.
func (v *DocumentVersion) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.ChangedAt.IsZero() {
		v.ChangedAt = time.Now().UTC()
	}
	if v.TagsSnapshot == nil {
		v.TagsSnapshot = StringList{}
	}
	return nil
}

// GetDocumentVersions returns a document's versions, newest first.
func GetDocumentVersions(db *gorm.DB, documentID uuid.UUID) ([]DocumentVersion, error) {
	var versions []DocumentVersion
	err := db.Where("document_id = ?", documentID).
		Order("version_no DESC").
		Find(&versions).Error
	return versions, err
}

// GetDocumentVersion returns one snapshot by version number.
func GetDocumentVersion(db *gorm.DB, documentID uuid.UUID, versionNo int) (*DocumentVersion, error) {
	var version DocumentVersion
	err := db.Where("document_id = ? AND version_no = ?", documentID, versionNo).
		First(&version).Error
	if err != nil {
		return nil, err
	}
	return &version, nil
}

// DocumentFile links a document to a blob. At most one link per
// (document, file) pair; exactly one link per document is primary once
// any file is attached.
type DocumentFile struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	DocumentID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_document_files_doc_file" json:"documentId"`
	FileID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_document_files_doc_file;index" json:"fileId"`
	IsPrimary  bool      `gorm:"not null;default:true" json:"isPrimary"`
}

// TableName specifies the table name.
func (DocumentFile) TableName() string {
	return "document_files"
}

// BeforeCreate hook to ensure the ID is set.
func (df *DocumentFile) BeforeCreate(tx *gorm.DB) error {
	if df.ID == uuid.Nil {
		df.ID = uuid.New()
	}
	return nil
}

// GetDocumentFiles returns a document's file links, primary first.
func GetDocumentFiles(db *gorm.DB, documentID uuid.UUID) ([]DocumentFile, error) {
	var links []DocumentFile
	err := db.Where("document_id = ?", documentID).
		Order("is_primary DESC, created_at ASC").
		Find(&links).Error
	return links, err
}

// GetPrimaryFilename returns the original filename of the document's
// primary file, or a stable fallback when no file is attached.
func GetPrimaryFilename(db *gorm.DB, documentID uuid.UUID) (string, error) {
	var name string
	err := db.Model(&File{}).
		Select("files.original_filename").
		Joins("JOIN document_files ON document_files.file_id = files.id").
		Where("document_files.document_id = ?", documentID).
		Order("document_files.is_primary DESC").
		Limit(1).
		Scan(&name).Error
	if err != nil {
		return "", err
	}
	if name == "" {
		return "unknown.bin", nil
	}
	return name, nil
}

// DocumentTag is the document↔tag many-to-many link.
type DocumentTag struct {
	CreatedAt time.Time `json:"createdAt"`

	DocumentID uuid.UUID `gorm:"type:uuid;primaryKey" json:"documentId"`
	TagID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"tagId"`
}

// TableName specifies the table name.
func (DocumentTag) TableName() string {
	return "document_tags"
}

// GetDocumentTagNames returns a document's tag names sorted ascending.
func GetDocumentTagNames(db *gorm.DB, documentID uuid.UUID) ([]string, error) {
	var names []string
	err := db.Model(&Tag{}).
		Select("tags.name").
		Joins("JOIN document_tags ON document_tags.tag_id = tags.id").
		Where("document_tags.document_id = ?", documentID).
		Order("tags.name ASC").
		Scan(&names).Error
	return names, err
}
