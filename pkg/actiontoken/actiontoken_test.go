package actiontoken

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()
	issuer, err := NewIssuer("test-secret", time.Hour)
	require.NoError(t, err)
	return issuer
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	_, err := NewIssuer("", time.Hour)
	assert.Error(t, err)
}

func TestIssueAndVerify(t *testing.T) {
	issuer := newTestIssuer(t)
	jobID := uuid.New()
	now := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

	token, expiresAt, err := issuer.Issue(jobID, ActionRetry, now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), expiresAt)
	assert.Contains(t, token, ".")

	assert.NoError(t, issuer.Verify(token, jobID, ActionRetry, now))
	assert.NoError(t, issuer.Verify(token, jobID, ActionRetry, now.Add(59*time.Minute)))
}

func TestVerifyRejections(t *testing.T) {
	issuer := newTestIssuer(t)
	jobID := uuid.New()
	now := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

	token, _, err := issuer.Issue(jobID, ActionRetry, now)
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		err := issuer.Verify(token, jobID, ActionRetry, now.Add(2*time.Hour))
		assert.ErrorIs(t, err, ErrExpired)
	})

	t.Run("wrong job", func(t *testing.T) {
		err := issuer.Verify(token, uuid.New(), ActionRetry, now)
		assert.ErrorIs(t, err, ErrJobMismatch)
	})

	t.Run("wrong action", func(t *testing.T) {
		err := issuer.Verify(token, jobID, ActionReprocess, now)
		assert.ErrorIs(t, err, ErrActionMismatch)
	})

	t.Run("missing separator", func(t *testing.T) {
		err := issuer.Verify("not-a-token", jobID, ActionRetry, now)
		assert.ErrorIs(t, err, ErrInvalidFormat)
	})

	t.Run("bad encoding", func(t *testing.T) {
		err := issuer.Verify("!!!.???", jobID, ActionRetry, now)
		assert.ErrorIs(t, err, ErrInvalidEncoding)
	})

	t.Run("tampered payload", func(t *testing.T) {
		parts := strings.SplitN(token, ".", 2)
		otherToken, _, err := issuer.Issue(uuid.New(), ActionRetry, now)
		require.NoError(t, err)
		otherParts := strings.SplitN(otherToken, ".", 2)

		err = issuer.Verify(otherParts[0]+"."+parts[1], jobID, ActionRetry, now)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("different secret", func(t *testing.T) {
		other, err := NewIssuer("other-secret", time.Hour)
		require.NoError(t, err)
		err = other.Verify(token, jobID, ActionRetry, now)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})
}

func TestVerifyBoundaryAtExpiry(t *testing.T) {
	issuer := newTestIssuer(t)
	jobID := uuid.New()
	now := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

	token, expiresAt, err := issuer.Issue(jobID, ActionRetry, now)
	require.NoError(t, err)

	// Valid exactly at expiry, rejected one second after.
	assert.NoError(t, issuer.Verify(token, jobID, ActionRetry, expiresAt))
	assert.ErrorIs(t, issuer.Verify(token, jobID, ActionRetry, expiresAt.Add(time.Second)), ErrExpired)
}
