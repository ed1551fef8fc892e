package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/docvault/pkg/actiontoken"
	"github.com/hashicorp-forge/docvault/pkg/models"
)

func strPtr(s string) *string { return &s }

func TestSendDisabled(t *testing.T) {
	n := New(Config{Enabled: false}, nil, nil)
	assert.False(t, n.Enabled())
	assert.NoError(t, n.Send(context.Background(), &ResultPayload{JobID: "x"}))
}

func TestSendPostsPayload(t *testing.T) {
	var received ResultPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := New(Config{Enabled: true, CallbackURL: server.URL}, nil, nil)
	payload := &ResultPayload{
		JobID:      uuid.New().String(),
		State:      string(models.StatePublished),
		Success:    true,
		DocumentID: strPtr(uuid.New().String()),
	}
	require.NoError(t, n.Send(context.Background(), payload))

	assert.Equal(t, payload.JobID, received.JobID)
	assert.True(t, received.Success)
}

func TestSendNon2xxIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	n := New(Config{Enabled: true, CallbackURL: server.URL}, nil, nil)
	err := n.Send(context.Background(), &ResultPayload{JobID: "x"})
	assert.Error(t, err)
}

func TestBuildResultActions(t *testing.T) {
	issuer, err := actiontoken.NewIssuer("secret", time.Hour)
	require.NoError(t, err)
	n := New(Config{APIBaseURL: "https://vault.example.com/api/v1/"}, issuer, nil)

	job := &models.IngestJob{
		ID:     uuid.New(),
		Source: models.SourceChatBot,
		State:  models.StateFailed,
	}

	t.Run("failed chat-bot job gets retry and reprocess", func(t *testing.T) {
		actions := n.BuildResultActions(job, models.ErrCodeDBWriteFail)
		require.Len(t, actions, 2)

		assert.Equal(t, "retry", actions[0].Action)
		assert.Equal(t, "reprocess", actions[1].Action)
		assert.Equal(t,
			"https://vault.example.com/api/v1/ingest/actions/"+job.ID.String()+"/retry",
			actions[0].URL)
		assert.NotEmpty(t, actions[0].Token)

		// Issued tokens must verify for their own action only.
		assert.NoError(t, issuer.Verify(actions[0].Token, job.ID, "retry", time.Now()))
		assert.Error(t, issuer.Verify(actions[0].Token, job.ID, "reprocess", time.Now()))
	})

	t.Run("missing temp file adds re-upload command", func(t *testing.T) {
		actions := n.BuildResultActions(job, models.ErrCodeStorageTempFileMissing)
		require.Len(t, actions, 3)
		assert.Equal(t, "recover_upload", actions[2].Action)
		assert.Equal(t, "/recover_upload "+job.ID.String(), actions[2].Command)
	})

	t.Run("non chat-bot sources get none", func(t *testing.T) {
		manual := &models.IngestJob{ID: uuid.New(), Source: models.SourceManual, State: models.StateFailed}
		assert.Empty(t, n.BuildResultActions(manual, models.ErrCodeDBWriteFail))
	})

	t.Run("published jobs get none", func(t *testing.T) {
		published := &models.IngestJob{ID: uuid.New(), Source: models.SourceChatBot, State: models.StatePublished}
		assert.Empty(t, n.BuildResultActions(published, ""))
	})
}

func TestDashboardURL(t *testing.T) {
	n := New(Config{FrontendBaseURL: "https://vault.example.com/"}, nil, nil)
	id := uuid.New()

	url := n.DashboardURL(id)
	require.NotNil(t, url)
	assert.Equal(t, "https://vault.example.com/documents/"+id.String(), *url)

	none := New(Config{}, nil, nil)
	assert.Nil(t, none.DashboardURL(id))
}
