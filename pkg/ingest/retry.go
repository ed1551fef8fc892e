package ingest

import "time"

// RetryPolicy computes the exponential backoff between ingest
// attempts: attempt 1 waits Base, attempt 2 waits 2*Base, and so on,
// capped at Max.
type RetryPolicy struct {
	Base time.Duration
	Max  time.Duration
}

// ShouldRetry reports whether another attempt is allowed. A
// non-positive maxAttempts disables retries entirely.
func (p RetryPolicy) ShouldRetry(attemptCount, maxAttempts int) bool {
	if maxAttempts <= 0 {
		return false
	}
	return attemptCount < maxAttempts
}

// Backoff returns the delay before the next attempt.
func (p RetryPolicy) Backoff(attemptCount int) time.Duration {
	attempt := attemptCount
	if attempt < 1 {
		attempt = 1
	}
	base := p.Base
	if base < time.Second {
		base = time.Second
	}
	max := p.Max
	if max < base {
		max = base
	}

	backoff := base
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff >= max {
			return max
		}
	}
	if backoff > max {
		return max
	}
	return backoff
}

// RetryAfter returns the wall-clock time before which the job must not
// run again.
func (p RetryPolicy) RetryAfter(attemptCount int, now time.Time) time.Time {
	return now.Add(p.Backoff(attemptCount))
}
