package dispatch

import (
	"time"

	"github.com/scribelab/scribed/internal/fault"
)

// RetryPolicy defines retry behavior for failed deliveries.
type RetryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

// Backoff returns the exponential backoff for a given attempt, capped at
// MaxBackoff.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	backoff := p.InitialBackoff
	for i := 0; i < attempt; i++ {
		backoff *= 2
		if backoff >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	return backoff
}

// ShouldRetry reports whether a failed attempt warrants another. Permanent
// faults never retry; transient ones retry until MaxRetries.
func (p RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if attempt >= p.MaxRetries {
		return false
	}
	return fault.IsRetryable(err)
}
