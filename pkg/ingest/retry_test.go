package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicyShouldRetry(t *testing.T) {
	p := RetryPolicy{Base: 30 * time.Second, Max: 30 * time.Minute}

	assert.True(t, p.ShouldRetry(1, 5))
	assert.True(t, p.ShouldRetry(4, 5))
	assert.False(t, p.ShouldRetry(5, 5))
	assert.False(t, p.ShouldRetry(6, 5))
	assert.False(t, p.ShouldRetry(0, 0))
	assert.False(t, p.ShouldRetry(0, -1))
}

func TestRetryPolicyBackoff(t *testing.T) {
	p := RetryPolicy{Base: 30 * time.Second, Max: 30 * time.Minute}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 30 * time.Second},
		{2, 60 * time.Second},
		{3, 120 * time.Second},
		{4, 240 * time.Second},
		{5, 480 * time.Second},
		{6, 960 * time.Second},
		{7, 30 * time.Minute},
		{8, 30 * time.Minute},
		{50, 30 * time.Minute},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, p.Backoff(tc.attempt), "attempt %d", tc.attempt)
	}
}

func TestRetryPolicyBackoffEdges(t *testing.T) {
	p := RetryPolicy{Base: 30 * time.Second, Max: 30 * time.Minute}

	// attempt below one behaves like the first attempt
	assert.Equal(t, 30*time.Second, p.Backoff(0))
	assert.Equal(t, 30*time.Second, p.Backoff(-3))

	// zero-valued policy still produces sane delays
	zero := RetryPolicy{}
	assert.Equal(t, time.Second, zero.Backoff(1))
	assert.Equal(t, time.Second, zero.Backoff(10))

	// max below base clamps to base
	clamped := RetryPolicy{Base: time.Minute, Max: time.Second}
	assert.Equal(t, time.Minute, clamped.Backoff(1))
	assert.Equal(t, time.Minute, clamped.Backoff(5))
}

func TestRetryAfter(t *testing.T) {
	p := RetryPolicy{Base: 30 * time.Second, Max: 30 * time.Minute}
	now := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, now.Add(30*time.Second), p.RetryAfter(1, now))
	assert.Equal(t, now.Add(2*time.Minute), p.RetryAfter(3, now))
}
