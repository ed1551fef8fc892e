package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// publishRulesHandler stores a new draft version of the named ruleset.
// The body is the raw rules JSON; it is validated by parsing into the
// classification rule set before anything is written.
func (a *API) publishRulesHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ruleset := strings.TrimSpace(r.PathValue("ruleset"))
		if ruleset == "" {
			respondError(w, http.StatusBadRequest, "ruleset name is required")
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			respondError(w, http.StatusBadRequest, "failed to read body: %v", err)
			return
		}
		if !json.Valid(body) {
			respondError(w, http.StatusBadRequest, "body must be valid JSON")
			return
		}

		version, err := a.Rules.Publish(ruleset, body, actorFromRequest(r))
		if err != nil {
			respondError(w, http.StatusBadRequest, "%v", err)
			return
		}
		respondJSON(w, http.StatusCreated, version)
	})
}

// activateRulesHandler flips the active version of a ruleset. Exactly
// one version per ruleset is active at a time.
func (a *API) activateRulesHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "%v", err)
			return
		}

		if err := a.Rules.Activate(id, actorFromRequest(r)); err != nil {
			if isNotFound(err) {
				respondError(w, http.StatusNotFound, "rule version not found")
				return
			}
			respondError(w, http.StatusInternalServerError, "internal error")
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"version_id": id,
			"active":     true,
		})
	})
}
