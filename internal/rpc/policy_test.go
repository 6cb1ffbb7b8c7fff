package rpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tradegate/tradegate/internal/connection"
	"github.com/tradegate/tradegate/internal/transport"
)

func TestBackoffDoublesAndCaps(t *testing.T) {
	p := RetryPolicy{BaseBackoff: time.Second, MaxBackoff: 4 * time.Second}

	cases := []struct {
		attempt int
		nominal time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 4 * time.Second},  // capped
		{40, 4 * time.Second}, // shift guard
	}

	for _, tc := range cases {
		for i := 0; i < 50; i++ {
			d := p.backoff(tc.attempt)
			assert.GreaterOrEqual(t, d, tc.nominal/2, "attempt %d", tc.attempt)
			assert.Less(t, d, tc.nominal*3/2, "attempt %d", tc.attempt)
		}
	}
}

func TestDefaultRetryableClassification(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"channel closed", transport.ErrChannelClosed, true},
		{"wrapped channel closed", errors.Join(errors.New("call failed"), transport.ErrChannelClosed), true},
		{"stale connection", transport.ErrStaleConnection, true},
		{"attempt timeout", context.DeadlineExceeded, true},
		{"connect failure", &connection.ConnectError{Err: errors.New("refused")}, true},
		{"net error", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"gateway rejection", &transport.GatewayError{Code: "TRADE_REJECTED"}, false},
		{"cancellation", context.Canceled, false},
		{"unknown error", errors.New("decode payload"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.retryable, defaultRetryable(tc.err))
		})
	}
}

func TestPolicyCustomClassifier(t *testing.T) {
	sentinel := errors.New("flaky but known")
	p := RetryPolicy{Retryable: func(err error) bool { return errors.Is(err, sentinel) }}

	assert.True(t, p.retryable(sentinel))
	assert.False(t, p.retryable(transport.ErrChannelClosed))
}

func TestBudgetFromContextDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	b := newBudget(ctx, time.Hour)
	assert.LessOrEqual(t, b.remaining(), time.Minute)
	assert.False(t, b.expired())
}

func TestBudgetFallback(t *testing.T) {
	b := newBudget(context.Background(), 30*time.Second)
	assert.Greater(t, b.remaining(), 29*time.Second)
	assert.LessOrEqual(t, b.remaining(), 30*time.Second)
}

func TestBudgetAttemptTimeoutCap(t *testing.T) {
	b := newBudget(context.Background(), time.Minute)

	assert.LessOrEqual(t, b.attemptTimeout(0), time.Minute)
	assert.LessOrEqual(t, b.attemptTimeout(time.Second), time.Second)
}
