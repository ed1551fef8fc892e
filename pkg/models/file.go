package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StorageBackend identifies where a blob physically lives. It is
// persisted per file so deployments can change backends without
// breaking reads of older blobs.
type StorageBackend string

const (
	BackendDisk        StorageBackend = "disk"
	BackendObjectStore StorageBackend = "object-store"
)

// File is one content-addressed blob. The checksum is unique: a second
// upload of the same bytes resolves to the existing row. Rows are never
// mutated after creation and are deleted only by the orphan sweep.
type File struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Source    SourceType `gorm:"type:varchar(20);not null" json:"source"`
	SourceRef *string    `gorm:"type:varchar(128)" json:"sourceRef,omitempty"`

	StorageBackend   StorageBackend `gorm:"type:varchar(16);not null" json:"storageBackend"`
	Bucket           string         `gorm:"type:varchar(100);not null" json:"bucket"`
	StorageKey       string         `gorm:"type:text;not null" json:"storageKey"`
	OriginalFilename string         `gorm:"type:text;not null" json:"originalFilename"`
	Extension        *string        `gorm:"type:varchar(16)" json:"extension,omitempty"`

	ChecksumSHA256 string `gorm:"type:varchar(64);not null;uniqueIndex:uq_files_checksum" json:"checksumSha256"`
	MimeType       string `gorm:"type:varchar(150);not null" json:"mimeType"`
	SizeBytes      int64  `gorm:"not null;check:size_bytes >= 0" json:"sizeBytes"`

	Metadata JSON `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`
}

// TableName specifies the table name.
func (File) TableName() string {
	return "files"
}

// BeforeCreate hook to ensure the ID is set.
func (f *File) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if len(f.Metadata) == 0 {
		f.Metadata = JSON("{}")
	}
	return nil
}

// GetFileByChecksum finds the blob record for a content hash, or nil.
func GetFileByChecksum(db *gorm.DB, checksum string) (*File, error) {
	var file File
	err := db.Where("checksum_sha256 = ?", checksum).First(&file).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &file, nil
}

// GetFile retrieves a file by ID.
func GetFile(db *gorm.DB, id uuid.UUID) (*File, error) {
	var file File
	if err := db.First(&file, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &file, nil
}

// CountFileLinks returns how many documents reference the file.
func CountFileLinks(db *gorm.DB, fileID uuid.UUID) (int64, error) {
	var n int64
	err := db.Model(&DocumentFile{}).Where("file_id = ?", fileID).Count(&n).Error
	return n, err
}
