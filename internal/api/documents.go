package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/hashicorp-forge/docvault/internal/metrics"
	"github.com/hashicorp-forge/docvault/pkg/catalog"
	"github.com/hashicorp-forge/docvault/pkg/models"
	"github.com/hashicorp-forge/docvault/pkg/search"
)

// listDocumentsHandler answers catalog queries through the configured
// search backend, falling back to the PostgreSQL adapter when the
// primary errors so reads stay available during a Meilisearch outage.
func (a *API) listDocumentsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := search.Query{
			Text:         r.URL.Query().Get("q"),
			Page:         queryInt(r, "page", 1),
			Size:         queryInt(r, "size", 20),
			SortBy:       r.URL.Query().Get("sort_by"),
			SortOrder:    r.URL.Query().Get("sort_order"),
			CategoryName: r.URL.Query().Get("category"),
			TagSlug:      r.URL.Query().Get("tag"),
			ReviewStatus: r.URL.Query().Get("review_status"),
		}
		if raw := r.URL.Query().Get("category_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				respondError(w, http.StatusBadRequest, "invalid category_id")
				return
			}
			q.CategoryID = &id
		}
		q.EventDateFrom = queryDate(r, "from")
		q.EventDateTo = queryDate(r, "to")

		provider := a.Provider
		start := time.Now()
		result, err := provider.Search(r.Context(), q)
		metrics.SearchDuration.WithLabelValues(provider.Name()).Observe(time.Since(start).Seconds())
		if err != nil && a.Fallback != nil && a.Fallback != provider {
			a.Logger.Warn("primary search failed, using fallback",
				"backend", provider.Name(), "error", err)
			provider = a.Fallback
			start = time.Now()
			result, err = provider.Search(r.Context(), q)
			metrics.SearchDuration.WithLabelValues(provider.Name()).Observe(time.Since(start).Seconds())
		}
		if err != nil {
			respondError(w, http.StatusServiceUnavailable, "search unavailable")
			return
		}

		items, err := search.BuildDocuments(a.DB.WithContext(r.Context()), result.IDs)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "internal error")
			return
		}

		respondJSON(w, http.StatusOK, map[string]interface{}{
			"items":   items,
			"total":   result.Total,
			"page":    q.Page,
			"size":    q.Limit(),
			"backend": provider.Name(),
		})
	})
}

// documentDetail is the single-document view with category, tags, and
// file links resolved.
type documentDetail struct {
	*models.Document
	CategoryName *string        `json:"categoryName,omitempty"`
	Tags         []string       `json:"tags"`
	Files        []documentFile `json:"files"`
}

type documentFile struct {
	LinkID           uuid.UUID `json:"linkId"`
	FileID           uuid.UUID `json:"fileId"`
	IsPrimary        bool      `json:"isPrimary"`
	OriginalFilename string    `json:"originalFilename"`
	MimeType         string    `json:"mimeType"`
	SizeBytes        int64     `json:"sizeBytes"`
	ChecksumSHA256   string    `json:"checksumSha256"`
}

func (a *API) getDocumentHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "%v", err)
			return
		}
		db := a.DB.WithContext(r.Context())

		doc, err := models.GetDocument(db, id)
		if err != nil {
			notFoundOr500(w, err, "document")
			return
		}

		detail := documentDetail{Document: doc, Tags: []string{}, Files: []documentFile{}}
		if doc.CategoryID != nil {
			var cat models.Category
			if err := db.First(&cat, "id = ?", *doc.CategoryID).Error; err == nil {
				detail.CategoryName = &cat.Name
			}
		}
		if tags, err := models.GetDocumentTagNames(db, id); err == nil {
			detail.Tags = tags
		}

		links, err := models.GetDocumentFiles(db, id)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "internal error")
			return
		}
		for _, link := range links {
			file, err := models.GetFile(db, link.FileID)
			if err != nil {
				continue
			}
			detail.Files = append(detail.Files, documentFile{
				LinkID:           link.ID,
				FileID:           file.ID,
				IsPrimary:        link.IsPrimary,
				OriginalFilename: file.OriginalFilename,
				MimeType:         file.MimeType,
				SizeBytes:        file.SizeBytes,
				ChecksumSHA256:   file.ChecksumSHA256,
			})
		}

		respondJSON(w, http.StatusOK, detail)
	})
}

// documentUpdateRequest mirrors catalog.UpdateRequest with wire-level
// date strings. Absent fields leave the document untouched.
type documentUpdateRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`

	EventDate      *string `json:"event_date"`
	ClearEventDate bool    `json:"clear_event_date"`

	CategoryID    *uuid.UUID `json:"category_id"`
	CategoryName  *string    `json:"category_name"`
	ClearCategory bool       `json:"clear_category"`

	Tags *[]string `json:"tags"`

	ReviewStatus *string `json:"review_status"`
}

func (req *documentUpdateRequest) toCatalog(actor string) (catalog.UpdateRequest, error) {
	out := catalog.UpdateRequest{
		Title:          req.Title,
		Description:    req.Description,
		ClearEventDate: req.ClearEventDate,
		CategoryID:     req.CategoryID,
		CategoryName:   req.CategoryName,
		ClearCategory:  req.ClearCategory,
		Tags:           req.Tags,
		Actor:          actor,
	}
	if req.EventDate != nil {
		d, err := time.Parse("2006-01-02", *req.EventDate)
		if err != nil {
			return out, fmt.Errorf("invalid event_date %q (want YYYY-MM-DD)", *req.EventDate)
		}
		out.EventDate = &d
	}
	if req.ReviewStatus != nil {
		status := models.ReviewStatus(*req.ReviewStatus)
		switch status {
		case models.ReviewNone, models.ReviewNeedsReview, models.ReviewResolved:
		default:
			return out, fmt.Errorf("invalid review_status %q", *req.ReviewStatus)
		}
		out.ReviewStatus = &status
	}
	return out, nil
}

func (a *API) updateDocumentHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "%v", err)
			return
		}

		var req documentUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		upd, err := req.toCatalog(actorFromRequest(r))
		if err != nil {
			respondError(w, http.StatusBadRequest, "%v", err)
			return
		}

		doc, err := a.Catalog.Update(r.Context(), id, upd)
		if err != nil {
			if isNotFound(err) {
				respondError(w, http.StatusNotFound, "document not found")
				return
			}
			respondError(w, http.StatusBadRequest, "%v", err)
			return
		}
		respondJSON(w, http.StatusOK, doc)
	})
}

func (a *API) deleteDocumentHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "%v", err)
			return
		}

		result, err := a.Catalog.Delete(r.Context(), id, actorFromRequest(r))
		if err != nil {
			notFoundOr500(w, err, "document")
			return
		}
		respondJSON(w, http.StatusOK, result)
	})
}

func (a *API) documentVersionsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "%v", err)
			return
		}
		db := a.DB.WithContext(r.Context())

		if _, err := models.GetDocument(db, id); err != nil {
			notFoundOr500(w, err, "document")
			return
		}
		versions, err := models.GetDocumentVersions(db, id)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "internal error")
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"document_id": id,
			"versions":    versions,
		})
	})
}

func (a *API) documentVersionHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "%v", err)
			return
		}
		versionNo, err := strconv.Atoi(r.PathValue("versionNo"))
		if err != nil || versionNo < 1 {
			respondError(w, http.StatusBadRequest, "invalid versionNo")
			return
		}

		version, err := models.GetDocumentVersion(a.DB.WithContext(r.Context()), id, versionNo)
		if err != nil {
			notFoundOr500(w, err, "document version")
			return
		}
		respondJSON(w, http.StatusOK, version)
	})
}

// readUploadPart pulls one multipart file into memory for the blob
// store, which hashes the full content before writing.
func readUploadPart(r *http.Request) (string, []byte, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return "", nil, fmt.Errorf("invalid multipart request: %w", err)
	}
	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		return "", nil, fmt.Errorf("file is required")
	}
	src, err := files[0].Open()
	if err != nil {
		return "", nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()
	content, err := io.ReadAll(io.LimitReader(src, maxUploadBytes))
	if err != nil {
		return "", nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return files[0].Filename, content, nil
}

func (a *API) attachFileHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "%v", err)
			return
		}
		filename, content, err := readUploadPart(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, "%v", err)
			return
		}

		file, err := a.Catalog.StoreUpload(r.Context(), models.SourceManual, nil, filename, content)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to store file")
			return
		}
		err = a.Catalog.AttachFile(r.Context(), id, file, "manual_file_add", actorFromRequest(r))
		if err != nil {
			if isNotFound(err) {
				respondError(w, http.StatusNotFound, "document not found")
				return
			}
			respondError(w, http.StatusConflict, "%v", err)
			return
		}
		respondJSON(w, http.StatusCreated, file)
	})
}

func (a *API) replaceFileHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "%v", err)
			return
		}
		fileID, err := pathUUID(r, "fileID")
		if err != nil {
			respondError(w, http.StatusBadRequest, "%v", err)
			return
		}
		filename, content, err := readUploadPart(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, "%v", err)
			return
		}

		newFile, err := a.Catalog.StoreUpload(r.Context(), models.SourceManual, nil, filename, content)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to store file")
			return
		}
		err = a.Catalog.ReplaceFile(r.Context(), id, fileID, newFile, "manual_file_replace", actorFromRequest(r))
		if err != nil {
			if isNotFound(err) {
				respondError(w, http.StatusNotFound, "document or file not found")
				return
			}
			respondError(w, http.StatusConflict, "%v", err)
			return
		}
		respondJSON(w, http.StatusOK, newFile)
	})
}

func (a *API) removeFileHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "%v", err)
			return
		}
		fileID, err := pathUUID(r, "fileID")
		if err != nil {
			respondError(w, http.StatusBadRequest, "%v", err)
			return
		}

		err = a.Catalog.RemoveFile(r.Context(), id, fileID, actorFromRequest(r))
		if err != nil {
			if isNotFound(err) {
				respondError(w, http.StatusNotFound, "document or file not found")
				return
			}
			respondError(w, http.StatusConflict, "%v", err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"document_id": id,
			"file_id":     fileID,
			"removed":     true,
		})
	})
}
