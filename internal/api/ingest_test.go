package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/docvault/internal/config"
	"github.com/hashicorp-forge/docvault/pkg/ingest"
	"github.com/hashicorp-forge/docvault/pkg/models"
	"github.com/hashicorp-forge/docvault/pkg/queue"
)

// setupIngestAPI wires the intake routes against an in-memory database
// and queue. Handlers whose collaborators stay nil are never invoked by
// these tests.
func setupIngestAPI(t *testing.T, readOnly bool) *http.ServeMux {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	err = db.AutoMigrate(models.ModelsToAutoMigrate()...)
	require.NoError(t, err)

	// Mirrors the partial chat-bot dedupe index the migration creates on
	// PostgreSQL.
	err = db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS uq_ingest_jobs_chatbot_source_ref
		ON ingest_jobs (source, source_ref)
		WHERE source = 'chat-bot' AND source_ref IS NOT NULL`).Error
	require.NoError(t, err)

	q := queue.NewMemory(16, nil)
	t.Cleanup(q.Stop)

	a := &API{
		DB:     db,
		Intake: ingest.NewIntake(db, q, nil),
		Config: &config.Config{
			Server: &config.Server{ReadOnly: readOnly},
			Ingest: &config.Ingest{
				TempDir:       t.TempDir(),
				BatchMaxFiles: 10,
			},
		},
		Logger: hclog.NewNullLogger(),
	}
	mux := http.NewServeMux()
	a.Register(mux)
	return mux
}

func chatBotUpload(t *testing.T, sourceRef string) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", "report.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 fixture"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("source_ref", sourceRef))
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func TestChatBotIngestDuplicateSourceRef(t *testing.T) {
	mux := setupIngestAPI(t, false)

	body, contentType := chatBotUpload(t, "msg:42")
	req := httptest.NewRequest("POST", "/api/v1/ingest/chat-bot", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	// A redelivered message with the same source_ref is rejected with
	// the detail body the producer parses.
	body, contentType = chatBotUpload(t, "msg:42")
	req = httptest.NewRequest("POST", "/api/v1/ingest/chat-bot", body)
	req.Header.Set("Content-Type", contentType)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, map[string]interface{}{"detail": "duplicate source_ref"}, resp)
}

func TestChatBotIngestDistinctSourceRefs(t *testing.T) {
	mux := setupIngestAPI(t, false)

	for _, ref := range []string{"msg:1", "msg:2"} {
		body, contentType := chatBotUpload(t, ref)
		req := httptest.NewRequest("POST", "/api/v1/ingest/chat-bot", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusAccepted, rec.Code, "ref %s", ref)
	}
}

func TestReadOnlyModeRejectsMutations(t *testing.T) {
	mux := setupIngestAPI(t, true)

	routes := []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/ingest/chat-bot"},
		{"POST", "/api/v1/ingest/manual"},
		{"POST", "/api/v1/ingest/jobs/" + uuid.NewString() + "/requeue"},
		{"POST", "/api/v1/ingest/actions/" + uuid.NewString() + "/retry"},
		{"PATCH", "/api/v1/documents/" + uuid.NewString()},
		{"POST", "/api/v1/review-queue/bulk"},
		{"POST", "/api/v1/backfill"},
	}
	for _, rt := range routes {
		req := httptest.NewRequest(rt.method, rt.path, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		require.Equal(t, http.StatusServiceUnavailable, rec.Code, "%s %s", rt.method, rt.path)
		var resp errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "server is in read-only mode", resp.Error, "%s %s", rt.method, rt.path)
	}
}

func TestReadOnlyModeAllowsReads(t *testing.T) {
	mux := setupIngestAPI(t, true)

	req := httptest.NewRequest("GET", "/api/v1/ingest/jobs/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	// The status route is not guarded; an unknown job is a plain 404.
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
