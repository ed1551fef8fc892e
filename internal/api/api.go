// Package api implements the v1 HTTP surface: ingest intake, document
// catalog, review queue, rules, search, and backfill.
package api

import (
	"net/http"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/docvault/internal/config"
	"github.com/hashicorp-forge/docvault/pkg/actiontoken"
	"github.com/hashicorp-forge/docvault/pkg/backfill"
	"github.com/hashicorp-forge/docvault/pkg/catalog"
	"github.com/hashicorp-forge/docvault/pkg/ingest"
	"github.com/hashicorp-forge/docvault/pkg/queue"
	"github.com/hashicorp-forge/docvault/pkg/rules"
	"github.com/hashicorp-forge/docvault/pkg/search"
	"github.com/hashicorp-forge/docvault/pkg/searchsync"
)

// API carries the service dependencies shared by all handlers.
type API struct {
	DB       *gorm.DB
	Catalog  *catalog.Service
	Intake   *ingest.Intake
	Rules    *rules.Repository
	Backfill *backfill.Engine
	Syncer   *searchsync.Syncer
	Queue    queue.Queue
	Issuer   *actiontoken.Issuer

	// Provider is the configured search backend; Fallback serves
	// degraded queries from PostgreSQL when the primary is down.
	Provider search.Provider
	Fallback search.Provider

	Config *config.Config
	Logger hclog.Logger
}

// Register mounts every v1 route on the mux.
func (a *API) Register(mux *http.ServeMux) {
	handle := func(pattern string, h http.Handler) {
		mux.Handle(pattern, a.instrument(pattern, h))
	}

	// Ingest intake
	handle("POST /api/v1/ingest/chat-bot", a.readOnlyGuard(a.chatBotIngestHandler()))
	handle("POST /api/v1/ingest/chat-bot/batch", a.readOnlyGuard(a.chatBotBatchHandler()))
	handle("POST /api/v1/ingest/manual", a.readOnlyGuard(a.manualIngestHandler()))
	handle("POST /api/v1/ingest/manual/batch", a.readOnlyGuard(a.manualBatchHandler()))
	handle("GET /api/v1/ingest/jobs/{id}", a.jobStatusHandler())
	handle("POST /api/v1/ingest/jobs/{id}/requeue", a.readOnlyGuard(a.requeueJobHandler()))
	handle("POST /api/v1/ingest/jobs/{id}/recover", a.readOnlyGuard(a.recoverJobHandler()))
	handle("POST /api/v1/ingest/actions/{id}/{action}", a.readOnlyGuard(a.ingestActionHandler()))

	// Catalog
	handle("GET /api/v1/documents", a.listDocumentsHandler())
	handle("GET /api/v1/documents/{id}", a.getDocumentHandler())
	handle("PATCH /api/v1/documents/{id}", a.readOnlyGuard(a.updateDocumentHandler()))
	handle("DELETE /api/v1/documents/{id}", a.readOnlyGuard(a.deleteDocumentHandler()))
	handle("GET /api/v1/documents/{id}/versions", a.documentVersionsHandler())
	handle("GET /api/v1/documents/{id}/versions/{versionNo}", a.documentVersionHandler())
	handle("POST /api/v1/documents/{id}/files", a.readOnlyGuard(a.attachFileHandler()))
	handle("PUT /api/v1/documents/{id}/files/{fileID}", a.readOnlyGuard(a.replaceFileHandler()))
	handle("DELETE /api/v1/documents/{id}/files/{fileID}", a.readOnlyGuard(a.removeFileHandler()))

	// Review queue
	handle("GET /api/v1/review-queue", a.listReviewQueueHandler())
	handle("PATCH /api/v1/review-queue/{id}", a.readOnlyGuard(a.reviewUpdateHandler()))
	handle("POST /api/v1/review-queue/bulk", a.readOnlyGuard(a.reviewBulkHandler()))

	// Rules and backfill
	handle("POST /api/v1/rules/{ruleset}/versions", a.readOnlyGuard(a.publishRulesHandler()))
	handle("POST /api/v1/rules/versions/{id}/activate", a.readOnlyGuard(a.activateRulesHandler()))
	handle("POST /api/v1/backfill", a.readOnlyGuard(a.runBackfillHandler()))
	handle("POST /api/v1/search/rebuild", a.readOnlyGuard(a.rebuildSearchHandler()))

	handle("GET /healthz", a.healthzHandler())
}
