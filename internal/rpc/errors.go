package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/tradegate/tradegate/internal/connection"
	"github.com/tradegate/tradegate/internal/transport"
)

// ErrDeadlineExceeded reports that an operation's whole time budget ran out
// before it succeeded, as opposed to a single attempt timing out.
var ErrDeadlineExceeded = errors.New("rpc: deadline exceeded")

// RetryExhaustedError reports that every allowed attempt failed with a
// retryable error. Last carries the final underlying failure.
type RetryExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("rpc: giving up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Last
}

// defaultRetryable classifies an error as transient. Connectivity-class
// failures are retryable; everything else, gateway rejections above all,
// propagates unchanged on first occurrence.
func defaultRetryable(err error) bool {
	var gerr *transport.GatewayError
	if errors.As(err, &gerr) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var cerr *connection.ConnectError
	switch {
	case errors.Is(err, transport.ErrChannelClosed),
		errors.Is(err, transport.ErrStaleConnection),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &cerr):
		return true
	}

	var nerr net.Error
	return errors.As(err, &nerr)
}
