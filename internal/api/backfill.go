package api

import (
	"net/http"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/docvault/pkg/models"
	"github.com/hashicorp-forge/docvault/pkg/queue"
)

// backfillRequest asks the worker to re-run classification over the
// existing catalog with a specific rule version.
type backfillRequest struct {
	RuleVersionID uuid.UUID       `json:"rule_version_id"`
	BatchSize     int             `json:"batch_size"`
	Filter        *backfillFilter `json:"filter"`
}

type backfillFilter struct {
	CategoryID *uuid.UUID `json:"category_id"`
	From       *string    `json:"from"`
	To         *string    `json:"to"`
	ReviewOnly bool       `json:"review_only"`
}

// runBackfillHandler validates the rule version and hands the run to
// the worker. Backfills walk the whole catalog, so they never run on
// the request path.
func (a *API) runBackfillHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req backfillRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		if req.RuleVersionID == uuid.Nil {
			respondError(w, http.StatusBadRequest, "rule_version_id is required")
			return
		}

		var version models.RuleVersion
		err := a.DB.WithContext(r.Context()).First(&version, "id = ?", req.RuleVersionID).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				respondError(w, http.StatusNotFound, "rule version not found")
				return
			}
			respondError(w, http.StatusInternalServerError, "internal error")
			return
		}

		args := map[string]interface{}{
			"rule_version_id": req.RuleVersionID.String(),
			"batch_size":      req.BatchSize,
			"actor":           actorFromRequest(r),
		}
		if f := req.Filter; f != nil {
			filter := map[string]interface{}{"review_only": f.ReviewOnly}
			if f.CategoryID != nil {
				filter["category_id"] = f.CategoryID.String()
			}
			if f.From != nil {
				filter["from"] = *f.From
			}
			if f.To != nil {
				filter["to"] = *f.To
			}
			args["filter"] = filter
		}

		task := queue.NewTask(queue.TaskBackfillRun, args)
		if err := a.Queue.Enqueue(r.Context(), task); err != nil {
			a.Logger.Error("failed to enqueue backfill", "error", err)
			respondError(w, http.StatusServiceUnavailable, "failed to enqueue backfill")
			return
		}

		respondJSON(w, http.StatusAccepted, map[string]interface{}{
			"task_id":         task.ID,
			"rule_version_id": req.RuleVersionID,
			"rule_version_no": version.VersionNo,
		})
	})
}

// rebuildSearchHandler schedules a full reindex of the search backend.
func (a *API) rebuildSearchHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.Syncer.EnqueueRebuild(r.Context())
		respondJSON(w, http.StatusAccepted, map[string]interface{}{
			"rebuild": "scheduled",
		})
	})
}

// healthzHandler reports database and search reachability. The process
// stays up when search is degraded; reads fall back to PostgreSQL.
func (a *API) healthzHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dbOK := true
		if sqlDB, err := a.DB.DB(); err != nil || sqlDB.PingContext(r.Context()) != nil {
			dbOK = false
		}
		searchOK := a.Provider.Healthy(r.Context())

		status := http.StatusOK
		overall := "ok"
		if !dbOK {
			status = http.StatusServiceUnavailable
			overall = "unavailable"
		} else if !searchOK {
			overall = "degraded"
		}

		respondJSON(w, status, map[string]interface{}{
			"status": overall,
			"database": map[string]interface{}{
				"ok": dbOK,
			},
			"search": map[string]interface{}{
				"backend": a.Provider.Name(),
				"ok":      searchOK,
			},
			"queue": map[string]interface{}{
				"backend": a.Config.Queue.Backend,
			},
			"read_only": a.Config.Server.ReadOnly,
		})
	})
}
