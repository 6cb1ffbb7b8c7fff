package rpc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tradegate/tradegate/internal/connection"
)

// ConnectionSource is the slice of the Connection Manager the executors
// need.
type ConnectionSource interface {
	EnsureConnected(ctx context.Context) (*connection.Handle, error)
	Invalidate(h *connection.Handle)
}

// Operation is one unary request against a live handle. Call-sites capture
// their decoded result in the closure.
type Operation func(ctx context.Context, h *connection.Handle) error

// Caller executes unary operations with bounded, classified retries.
type Caller struct {
	conns          ConnectionSource
	policy         RetryPolicy
	defaultTimeout time.Duration
	logger         *slog.Logger
}

// NewCaller creates a Call Executor. defaultTimeout seeds the budget for
// callers whose context carries no deadline.
func NewCaller(conns ConnectionSource, policy RetryPolicy, defaultTimeout time.Duration, logger *slog.Logger) *Caller {
	if logger == nil {
		logger = slog.Default()
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	return &Caller{
		conns:          conns,
		policy:         policy,
		defaultTimeout: defaultTimeout,
		logger:         logger,
	}
}

// Execute runs op until it succeeds, fails terminally, or the retry policy
// or time budget is exhausted. Transient failures invalidate the handle so
// the next attempt reconnects first. Gateway rejections propagate after a
// single attempt.
func (c *Caller) Execute(ctx context.Context, op Operation) error {
	b := newBudget(ctx, c.defaultTimeout)
	if b.expired() {
		return ErrDeadlineExceeded
	}

	var lastErr error

	for attempt := 0; attempt < c.policy.MaxAttempts; attempt++ {
		// Cancellation wins over starting another network operation.
		if err := ctx.Err(); err != nil {
			return err
		}
		if b.expired() {
			return ErrDeadlineExceeded
		}

		h, err := c.conns.EnsureConnected(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if attempt == c.policy.MaxAttempts-1 {
				return err
			}
			lastErr = err
			if err := c.wait(ctx, b, attempt); err != nil {
				return err
			}
			continue
		}

		attemptCtx, cancel := context.WithTimeout(ctx, b.attemptTimeout(c.policy.AttemptCap))
		err = op(attemptCtx, h)
		cancel()

		if err == nil {
			return nil
		}
		if cerr := ctx.Err(); cerr != nil {
			if errors.Is(cerr, context.DeadlineExceeded) {
				return ErrDeadlineExceeded
			}
			return cerr
		}
		if !c.policy.retryable(err) {
			return err
		}

		lastErr = err
		c.conns.Invalidate(h)
		c.logger.Debug("retrying call",
			"attempt", attempt+1,
			"max_attempts", c.policy.MaxAttempts,
			"error", err,
		)

		if attempt == c.policy.MaxAttempts-1 {
			break
		}
		if err := c.wait(ctx, b, attempt); err != nil {
			return err
		}
	}

	return &RetryExhaustedError{Attempts: c.policy.MaxAttempts, Last: lastErr}
}

// wait sleeps out the backoff for attempt, failing fast when the interval
// would outlive the remaining budget.
func (c *Caller) wait(ctx context.Context, b budget, attempt int) error {
	d := c.policy.backoff(attempt)
	if d >= b.remaining() {
		return ErrDeadlineExceeded
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
