package catalog

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	multierror "github.com/hashicorp/go-multierror"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/docvault/pkg/models"
	"github.com/hashicorp-forge/docvault/pkg/storage"
)

// UpdateRequest is a partial document edit. Nil pointer fields are left
// untouched; the Clear flags reset nullable fields to empty.
type UpdateRequest struct {
	Title       *string
	Description *string

	EventDate      *time.Time
	ClearEventDate bool

	CategoryID    *uuid.UUID
	CategoryName  *string
	ClearCategory bool

	Tags *[]string

	ReviewStatus *models.ReviewStatus

	Actor string
}

// Update applies an operator edit, snapshots a new version, and syncs
// the search index.
func (s *Service) Update(ctx context.Context, documentID uuid.UUID, req UpdateRequest) (*models.Document, error) {
	var doc *models.Document
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		doc, err = models.GetDocument(tx, documentID)
		if err != nil {
			return err
		}

		if req.Title != nil {
			title := strings.TrimSpace(*req.Title)
			if title == "" {
				return fmt.Errorf("title cannot be empty")
			}
			doc.Title = title
		}
		if req.Description != nil {
			doc.Description = *req.Description
		}
		if req.ClearEventDate {
			doc.EventDate = nil
		} else if req.EventDate != nil {
			doc.EventDate = req.EventDate
		}
		if req.ReviewStatus != nil {
			doc.ReviewStatus = *req.ReviewStatus
		}

		switch {
		case req.ClearCategory:
			doc.CategoryID = nil
		case req.CategoryID != nil:
			var cat models.Category
			if err := tx.First(&cat, "id = ?", *req.CategoryID).Error; err != nil {
				return fmt.Errorf("category %s not found", *req.CategoryID)
			}
			doc.CategoryID = &cat.ID
		case req.CategoryName != nil && strings.TrimSpace(*req.CategoryName) != "":
			cat, err := models.FirstOrCreateCategory(tx, strings.TrimSpace(*req.CategoryName))
			if err != nil {
				return err
			}
			doc.CategoryID = &cat.ID
		}

		var tagsSnapshot []string
		if req.Tags != nil {
			tagsSnapshot, err = s.replaceTags(tx, doc.ID, *req.Tags)
		} else {
			tagsSnapshot, err = models.GetDocumentTagNames(tx, doc.ID)
		}
		if err != nil {
			return err
		}

		if err := appendVersion(tx, doc, "manual_update", tagsSnapshot); err != nil {
			return err
		}
		if err := refreshSearchVector(tx, doc.ID); err != nil {
			return err
		}

		return models.RecordAudit(tx, "DOCUMENT_UPDATE", "document", &doc.ID, req.Actor,
			models.JSONMap(map[string]interface{}{
				"title":      doc.Title,
				"version_no": doc.CurrentVersionNo,
				"tags":       tagsSnapshot,
			}))
	})
	if err != nil {
		return nil, err
	}

	s.enqueueSync(ctx, doc.ID)
	return doc, nil
}

// DeleteResult summarizes a document deletion.
type DeleteResult struct {
	DocumentID         uuid.UUID `json:"document_id"`
	DeletedFileLinks   int       `json:"deleted_file_links"`
	DeletedOrphanFiles int       `json:"deleted_orphan_files"`
}

// Delete removes a document, its versions, tag links, and file links,
// then sweeps blobs no other document references. Ingest jobs that
// produced the document are detached, not deleted, so their event trail
// survives.
func (s *Service) Delete(ctx context.Context, documentID uuid.UUID, actor string) (*DeleteResult, error) {
	var fileIDs []uuid.UUID
	result := &DeleteResult{DocumentID: documentID}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doc, err := models.GetDocument(tx, documentID)
		if err != nil {
			return err
		}

		if err := tx.Model(&models.DocumentFile{}).
			Where("document_id = ?", documentID).
			Pluck("file_id", &fileIDs).Error; err != nil {
			return fmt.Errorf("failed to list file links: %w", err)
		}
		result.DeletedFileLinks = len(fileIDs)

		if err := tx.Model(&models.IngestJob{}).
			Where("document_id = ?", documentID).
			Update("document_id", nil).Error; err != nil {
			return fmt.Errorf("failed to detach ingest jobs: %w", err)
		}

		for _, model := range []interface{}{
			&models.DocumentTag{}, &models.DocumentFile{}, &models.DocumentVersion{},
		} {
			if err := tx.Where("document_id = ?", documentID).Delete(model).Error; err != nil {
				return fmt.Errorf("failed to delete document children: %w", err)
			}
		}
		if err := tx.Delete(&models.Document{}, "id = ?", documentID).Error; err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}

		return models.RecordAudit(tx, models.AuditDocumentDelete, "document", &documentID, actor,
			models.JSONMap(map[string]interface{}{
				"title":           doc.Title,
				"file_link_count": len(fileIDs),
			}))
	})
	if err != nil {
		return nil, err
	}

	// Blob sweep happens outside the transaction: backend deletes are
	// not transactional, and a failed sweep must not resurrect the
	// document. Failures are collected and surfaced for retry.
	var sweepErrs *multierror.Error
	for _, fileID := range fileIDs {
		swept, err := s.sweepOrphanFile(ctx, fileID)
		if err != nil {
			sweepErrs = multierror.Append(sweepErrs, err)
			continue
		}
		if swept {
			result.DeletedOrphanFiles++
		}
	}

	if s.syncer != nil {
		s.syncer.EnqueueDelete(ctx, documentID)
	}
	s.logger.Info("document deleted", "document_id", documentID,
		"file_links", result.DeletedFileLinks, "orphan_files", result.DeletedOrphanFiles)
	return result, sweepErrs.ErrorOrNil()
}

// sweepOrphanFile deletes the blob and its row when no document links
// remain. Reports whether a sweep happened.
func (s *Service) sweepOrphanFile(ctx context.Context, fileID uuid.UUID) (bool, error) {
	file, err := models.GetFile(s.db.WithContext(ctx), fileID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, nil
		}
		return false, err
	}
	linked, err := models.CountFileLinks(s.db.WithContext(ctx), fileID)
	if err != nil {
		return false, err
	}
	if linked > 0 {
		return false, nil
	}

	if err := s.backend.Delete(ctx, file.StorageKey); err != nil {
		return false, fmt.Errorf("failed to delete blob %s: %w", file.StorageKey, err)
	}
	if err := s.db.WithContext(ctx).Delete(&models.File{}, "id = ?", fileID).Error; err != nil {
		return false, fmt.Errorf("failed to delete file row %s: %w", fileID, err)
	}
	return true, nil
}

// StoreUpload persists an uploaded file: checksum, dedupe against
// existing blobs, backend write, and the File row. A byte-identical
// upload resolves to the existing row without touching storage.
func (s *Service) StoreUpload(ctx context.Context, source models.SourceType, sourceRef *string, filename string, content []byte) (*models.File, error) {
	if filename == "" {
		filename = "upload.bin"
	}

	checksum, size, err := storage.Checksum(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to checksum upload: %w", err)
	}

	existing, err := models.GetFileByChecksum(s.db.WithContext(ctx), checksum)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	ext := strings.TrimPrefix(filepath.Ext(filename), ".")
	mimeType := mime.TypeByExtension(filepath.Ext(filename))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	key := storage.Key(checksum, ext)

	if err := s.backend.Put(ctx, key, mimeType, bytes.NewReader(content), size); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	file := models.File{
		Source:           source,
		SourceRef:        sourceRef,
		StorageBackend:   models.StorageBackend(s.backend.Name()),
		Bucket:           s.backend.Bucket(),
		StorageKey:       key,
		OriginalFilename: filename,
		ChecksumSHA256:   checksum,
		MimeType:         mimeType,
		SizeBytes:        size,
	}
	if ext != "" {
		lower := strings.ToLower(ext)
		file.Extension = &lower
	}
	if err := s.db.WithContext(ctx).Create(&file).Error; err != nil {
		if recovered, err2 := models.GetFileByChecksum(s.db.WithContext(ctx), checksum); err2 == nil && recovered != nil {
			return recovered, nil
		}
		return nil, fmt.Errorf("failed to create file row: %w", err)
	}
	return &file, nil
}

// AttachFile links a stored file to a document. The first attached file
// becomes primary. Linking an already-linked file is a no-op.
func (s *Service) AttachFile(ctx context.Context, documentID uuid.UUID, file *models.File, changeReason, actor string) error {
	if changeReason == "" {
		changeReason = "manual_file_add"
	}

	attached := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doc, err := models.GetDocument(tx, documentID)
		if err != nil {
			return err
		}

		var existing int64
		if err := tx.Model(&models.DocumentFile{}).
			Where("document_id = ? AND file_id = ?", documentID, file.ID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return nil
		}

		var primaries int64
		if err := tx.Model(&models.DocumentFile{}).
			Where("document_id = ? AND is_primary = ?", documentID, true).
			Count(&primaries).Error; err != nil {
			return err
		}

		link := models.DocumentFile{
			DocumentID: documentID,
			FileID:     file.ID,
			IsPrimary:  primaries == 0,
		}
		if err := tx.Create(&link).Error; err != nil {
			return fmt.Errorf("failed to link file: %w", err)
		}
		attached = true

		tags, err := models.GetDocumentTagNames(tx, documentID)
		if err != nil {
			return err
		}
		if err := appendVersion(tx, doc, changeReason, tags); err != nil {
			return err
		}
		return models.RecordAudit(tx, "DOCUMENT_FILE_ADD", "document", &documentID, actor,
			models.JSONMap(map[string]interface{}{
				"file_id":  file.ID.String(),
				"filename": file.OriginalFilename,
			}))
	})
	if err != nil {
		return err
	}

	if attached {
		s.enqueueSync(ctx, documentID)
	}
	return nil
}

// ReplaceFile swaps one linked file for another, sweeping the old blob
// when it becomes orphaned.
func (s *Service) ReplaceFile(ctx context.Context, documentID, oldFileID uuid.UUID, newFile *models.File, changeReason, actor string) error {
	if changeReason == "" {
		changeReason = "manual_file_replace"
	}
	if oldFileID == newFile.ID {
		return nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doc, err := models.GetDocument(tx, documentID)
		if err != nil {
			return err
		}

		var link models.DocumentFile
		err = tx.Where("document_id = ? AND file_id = ?", documentID, oldFileID).
			First(&link).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return fmt.Errorf("file %s is not linked to document %s", oldFileID, documentID)
			}
			return err
		}

		// If the replacement is already linked, drop the old link
		// instead of creating a duplicate pair.
		var dup int64
		if err := tx.Model(&models.DocumentFile{}).
			Where("document_id = ? AND file_id = ?", documentID, newFile.ID).
			Count(&dup).Error; err != nil {
			return err
		}
		if dup > 0 {
			if err := tx.Delete(&link).Error; err != nil {
				return err
			}
		} else {
			if err := tx.Model(&link).Update("file_id", newFile.ID).Error; err != nil {
				return fmt.Errorf("failed to relink file: %w", err)
			}
		}

		tags, err := models.GetDocumentTagNames(tx, documentID)
		if err != nil {
			return err
		}
		if err := appendVersion(tx, doc, changeReason, tags); err != nil {
			return err
		}
		return models.RecordAudit(tx, "DOCUMENT_FILE_REPLACE", "document", &documentID, actor,
			models.JSONMap(map[string]interface{}{
				"old_file_id": oldFileID.String(),
				"new_file_id": newFile.ID.String(),
			}))
	})
	if err != nil {
		return err
	}

	if _, err := s.sweepOrphanFile(ctx, oldFileID); err != nil {
		s.logger.Warn("orphan sweep failed after replace", "file_id", oldFileID, "error", err)
	}
	s.enqueueSync(ctx, documentID)
	return nil
}

// RemoveFile unlinks a file from a document and sweeps the blob when
// orphaned.
func (s *Service) RemoveFile(ctx context.Context, documentID, fileID uuid.UUID, actor string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doc, err := models.GetDocument(tx, documentID)
		if err != nil {
			return err
		}

		res := tx.Where("document_id = ? AND file_id = ?", documentID, fileID).
			Delete(&models.DocumentFile{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("file %s is not linked to document %s", fileID, documentID)
		}

		tags, err := models.GetDocumentTagNames(tx, documentID)
		if err != nil {
			return err
		}
		if err := appendVersion(tx, doc, "manual_file_delete", tags); err != nil {
			return err
		}
		return models.RecordAudit(tx, "DOCUMENT_FILE_DELETE", "document", &documentID, actor,
			models.JSONMap(map[string]interface{}{"file_id": fileID.String()}))
	})
	if err != nil {
		return err
	}

	if _, err := s.sweepOrphanFile(ctx, fileID); err != nil {
		s.logger.Warn("orphan sweep failed after unlink", "file_id", fileID, "error", err)
	}
	s.enqueueSync(ctx, documentID)
	return nil
}
