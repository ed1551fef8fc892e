package api

import (
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/docvault/pkg/models"
)

func TestQueryInt(t *testing.T) {
	cases := []struct {
		name     string
		url      string
		expected int
	}{
		{"absent uses default", "/docs", 20},
		{"valid value", "/docs?size=50", 50},
		{"zero rejected", "/docs?size=0", 20},
		{"negative rejected", "/docs?size=-3", 20},
		{"garbage rejected", "/docs?size=abc", 20},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tc.url, nil)
			assert.Equal(t, tc.expected, queryInt(r, "size", 20))
		})
	}
}

func TestQueryDate(t *testing.T) {
	r := httptest.NewRequest("GET", "/docs?from=2024-03-01&to=bogus", nil)

	from := queryDate(r, "from")
	require.NotNil(t, from)
	assert.Equal(t, "2024-03-01", from.Format("2006-01-02"))

	assert.Nil(t, queryDate(r, "to"))
	assert.Nil(t, queryDate(r, "missing"))
}

func TestActorFromRequest(t *testing.T) {
	r := httptest.NewRequest("POST", "/docs", nil)
	assert.Equal(t, "api", actorFromRequest(r))

	r.Header.Set("X-Actor", "reviewer-kim")
	assert.Equal(t, "reviewer-kim", actorFromRequest(r))
}

func TestManualSource(t *testing.T) {
	src, err := manualSource("")
	require.NoError(t, err)
	assert.Equal(t, models.SourceManual, src)

	src, err = manualSource("api")
	require.NoError(t, err)
	assert.Equal(t, models.SourceAPI, src)

	_, err = manualSource("chat-bot")
	assert.Error(t, err)
}

func TestDocumentUpdateRequestToCatalog(t *testing.T) {
	date := "2024-05-10"
	status := "NONE"
	req := documentUpdateRequest{
		EventDate:    &date,
		ReviewStatus: &status,
	}

	upd, err := req.toCatalog("curator")
	require.NoError(t, err)
	assert.Equal(t, "curator", upd.Actor)
	require.NotNil(t, upd.EventDate)
	assert.Equal(t, time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), upd.EventDate.UTC())
	require.NotNil(t, upd.ReviewStatus)
	assert.Equal(t, models.ReviewNone, *upd.ReviewStatus)
}

func TestDocumentUpdateRequestRejectsBadInput(t *testing.T) {
	bad := "10/05/2024"
	_, err := (&documentUpdateRequest{EventDate: &bad}).toCatalog("curator")
	assert.Error(t, err)

	status := "MAYBE"
	_, err = (&documentUpdateRequest{ReviewStatus: &status}).toCatalog("curator")
	assert.Error(t, err)
}

func TestReviewUpdateRequestToCatalog(t *testing.T) {
	date := "2023-12-25"
	tags := []string{"budget", "minutes"}
	req := reviewUpdateRequest{
		CategoryName: "Finance",
		EventDate:    &date,
		Tags:         &tags,
		ReasonRemove: []string{"DATE_MISSING"},
		Approve:      true,
	}

	upd, err := req.toCatalog("reviewer")
	require.NoError(t, err)
	assert.Equal(t, "Finance", upd.CategoryName)
	assert.True(t, upd.Approve)
	require.NotNil(t, upd.EventDate)
	assert.Equal(t, "2023-12-25", upd.EventDate.Format("2006-01-02"))
	require.NotNil(t, upd.Tags)
	assert.Equal(t, tags, *upd.Tags)
}

func TestIsNotFoundUnwraps(t *testing.T) {
	assert.True(t, isNotFound(gorm.ErrRecordNotFound))
	assert.True(t, isNotFound(fmt.Errorf("load document: %w", gorm.ErrRecordNotFound)))
	assert.False(t, isNotFound(fmt.Errorf("connection refused")))
	assert.False(t, isNotFound(nil))
}
