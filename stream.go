package tradegate

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/tradegate/tradegate/internal/rpc"
)

// Stream is a typed view over one logical subscription.
type Stream[T any] struct {
	sub *rpc.Subscription
	out chan T
}

// newStream decodes the subscription's raw items into T. Items that fail to
// decode are dropped with a warning rather than ending the stream.
func newStream[T any](ctx context.Context, sub *rpc.Subscription, buffer int, logger *slog.Logger) *Stream[T] {
	s := &Stream[T]{
		sub: sub,
		out: make(chan T, buffer),
	}

	go func() {
		defer close(s.out)
		for raw := range sub.Events() {
			var v T
			if err := json.Unmarshal(raw, &v); err != nil {
				logger.Warn("dropping malformed stream item", "error", err)
				continue
			}
			select {
			case s.out <- v:
			case <-ctx.Done():
				return
			}
		}
	}()

	return s
}

// Events returns the stream's items in delivery order. The channel closes
// when the subscription ends; Err reports why.
func (s *Stream[T]) Events() <-chan T {
	return s.out
}

// Err returns why the stream ended. Valid once Events has closed.
func (s *Stream[T]) Err() error {
	return s.sub.Err()
}
