package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hashicorp-forge/docvault/pkg/catalog"
)

func (a *API) listReviewQueueHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, err := a.Catalog.ListReviewQueue(r.Context(),
			r.URL.Query().Get("reason"),
			queryInt(r, "page", 1),
			queryInt(r, "size", 20))
		if err != nil {
			respondError(w, http.StatusInternalServerError, "internal error")
			return
		}
		respondJSON(w, http.StatusOK, page)
	})
}

// reviewUpdateRequest is the wire form of a review resolution. Absent
// fields leave the document untouched; approve with no edits clears the
// queue entry as-is.
type reviewUpdateRequest struct {
	CategoryID   *uuid.UUID `json:"category_id"`
	CategoryName string     `json:"category_name"`
	EventDate    *string    `json:"event_date"`
	Tags         *[]string  `json:"tags"`
	ReasonRemove []string   `json:"reason_remove"`
	Approve      bool       `json:"approve"`
	Note         string     `json:"note"`
}

func (req *reviewUpdateRequest) toCatalog(actor string) (catalog.ReviewUpdate, error) {
	upd := catalog.ReviewUpdate{
		CategoryID:   req.CategoryID,
		CategoryName: req.CategoryName,
		Tags:         req.Tags,
		ReasonRemove: req.ReasonRemove,
		Approve:      req.Approve,
		Note:         req.Note,
		Actor:        actor,
	}
	if req.EventDate != nil {
		d, err := time.Parse("2006-01-02", *req.EventDate)
		if err != nil {
			return upd, err
		}
		upd.EventDate = &d
	}
	return upd, nil
}

func (a *API) reviewUpdateHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "%v", err)
			return
		}

		var req reviewUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		upd, err := req.toCatalog(actorFromRequest(r))
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid event_date (want YYYY-MM-DD)")
			return
		}

		result, err := a.Catalog.ApplyReviewUpdate(r.Context(), id, upd, false)
		if err != nil {
			if isNotFound(err) {
				respondError(w, http.StatusNotFound, "document not found")
				return
			}
			respondError(w, http.StatusBadRequest, "%v", err)
			return
		}
		respondJSON(w, http.StatusOK, result)
	})
}

// reviewBulkRequest applies one update to many queue entries.
type reviewBulkRequest struct {
	DocumentIDs []uuid.UUID         `json:"document_ids"`
	Update      reviewUpdateRequest `json:"update"`
}

func (a *API) reviewBulkHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req reviewBulkRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		if len(req.DocumentIDs) == 0 {
			respondError(w, http.StatusBadRequest, "document_ids are required")
			return
		}
		upd, err := req.Update.toCatalog(actorFromRequest(r))
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid event_date (want YYYY-MM-DD)")
			return
		}

		result, err := a.Catalog.BulkReviewUpdate(r.Context(), req.DocumentIDs, upd)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "internal error")
			return
		}
		respondJSON(w, http.StatusOK, result)
	})
}
