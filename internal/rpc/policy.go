package rpc

import (
	"math/rand"
	"time"
)

// RetryPolicy bounds the Call Executor's attempts and paces reconnects for
// both executors.
type RetryPolicy struct {
	MaxAttempts int           // Attempts per unary call (streams reconnect unbounded)
	BaseBackoff time.Duration // First backoff interval, doubling per attempt
	MaxBackoff  time.Duration // Cap on the doubled interval
	AttemptCap  time.Duration // Per-attempt timeout cap (0 = remaining budget only)

	// Retryable overrides the transient-error classifier (nil = default).
	Retryable func(error) bool
}

// DefaultRetryPolicy returns sensible defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseBackoff: 1 * time.Second,
		MaxBackoff:  30 * time.Second,
	}
}

// retryable applies the configured or default classifier.
func (p RetryPolicy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return defaultRetryable(err)
}

// backoff returns the wait before retry number attempt (0-based), jittered
// to 0.5x-1.5x so concurrent callers spread out.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.BaseBackoff
	// 2^30 seconds is past any sane cap.
	if attempt > 30 {
		attempt = 30
	}
	d *= time.Duration(1 << attempt)
	if d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	if d <= 0 {
		return 0
	}
	return d/2 + time.Duration(rand.Int63n(int64(d)))
}
