package rpc

import (
	"context"
	"time"
)

// budget is one logical operation's time allowance, fixed at the start and
// consumed (never reset) across all retries of that operation.
type budget struct {
	deadline time.Time
}

// newBudget translates the caller's deadline into a budget: the context
// deadline when one is set, otherwise now plus the configured default.
func newBudget(ctx context.Context, fallback time.Duration) budget {
	if d, ok := ctx.Deadline(); ok {
		return budget{deadline: d}
	}
	return budget{deadline: time.Now().Add(fallback)}
}

// remaining is recomputed against the clock on every consultation, so it
// decreases monotonically across retries.
func (b budget) remaining() time.Duration {
	return time.Until(b.deadline)
}

func (b budget) expired() bool {
	return b.remaining() <= 0
}

// attemptTimeout is the bound for one attempt: the remaining budget, capped
// per policy when a cap is configured.
func (b budget) attemptTimeout(limit time.Duration) time.Duration {
	d := b.remaining()
	if limit > 0 && limit < d {
		return limit
	}
	return d
}
