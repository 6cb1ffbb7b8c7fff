package rpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/tradegate/tradegate/internal/connection"
)

// StreamFactory opens one underlying transport stream on a live handle. It
// must be idempotent: the executor re-invokes it after every reconnect.
type StreamFactory func(ctx context.Context, h *connection.Handle) (connection.Stream, error)

// Subscription is one logical, caller-visible subscription. It may span
// many underlying transport streams; the consumer sees a single sequence.
//
// Delivery across a reconnect is "visible gap, no duplicate": no item is
// redelivered, and nothing guarantees items were not missed while the
// connection was down; the wire protocol carries no resumption marker.
type Subscription struct {
	events chan json.RawMessage

	mu  sync.Mutex
	err error
}

// Events returns the subscription's items in delivery order. The channel
// closes when the consumer's context is cancelled or a terminal failure
// occurs; Err reports which.
func (s *Subscription) Events() <-chan json.RawMessage {
	return s.events
}

// Err returns why the subscription ended. Valid once Events has closed.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Streamer executes server-streaming subscriptions, surviving transient
// disconnects without terminating the consumer.
type Streamer struct {
	conns  ConnectionSource
	policy RetryPolicy
	buffer int
	logger *slog.Logger
}

// NewStreamer creates a Stream Executor. buffer sizes each subscription's
// event channel.
func NewStreamer(conns ConnectionSource, policy RetryPolicy, buffer int, logger *slog.Logger) *Streamer {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer < 1 {
		buffer = 1
	}

	return &Streamer{
		conns:  conns,
		policy: policy,
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe starts one logical subscription and returns immediately. On
// transient disconnect the executor reconnects with backoff and re-invokes
// factory for as long as ctx stays live; the attempt count is unbounded,
// limited only by cancellation. A terminal failure (the gateway rejected
// the subscription) ends the sequence instead.
func (s *Streamer) Subscribe(ctx context.Context, factory StreamFactory) *Subscription {
	sub := &Subscription{
		events: make(chan json.RawMessage, s.buffer),
	}
	go s.run(ctx, factory, sub)
	return sub
}

// run is the subscription's reconnect loop. attempt counts consecutive
// failures since the last delivered item; a segment that delivers resets
// the backoff.
func (s *Streamer) run(ctx context.Context, factory StreamFactory, sub *Subscription) {
	defer close(sub.events)

	attempt := 0

	for {
		if err := ctx.Err(); err != nil {
			sub.setErr(err)
			return
		}

		h, err := s.conns.EnsureConnected(ctx)
		if err != nil {
			if ctx.Err() != nil {
				sub.setErr(ctx.Err())
				return
			}
			if !s.policy.retryable(err) {
				sub.setErr(err)
				return
			}
			if err := s.wait(ctx, attempt); err != nil {
				sub.setErr(err)
				return
			}
			attempt++
			continue
		}

		stream, err := factory(ctx, h)
		if err != nil {
			if ctx.Err() != nil {
				sub.setErr(ctx.Err())
				return
			}
			if !s.policy.retryable(err) {
				sub.setErr(err)
				return
			}
			s.conns.Invalidate(h)
			s.logger.Debug("resubscribe failed, retrying", "error", err)
			if err := s.wait(ctx, attempt); err != nil {
				sub.setErr(err)
				return
			}
			attempt++
			continue
		}

		delivered, err := s.consume(ctx, sub, stream)
		if err != nil {
			sub.setErr(err)
			return
		}

		// Transient segment loss: reconnect and resume.
		s.conns.Invalidate(h)
		if delivered {
			attempt = 0
		}
		s.logger.Debug("stream segment lost, reconnecting", "attempt", attempt)
		if err := s.wait(ctx, attempt); err != nil {
			sub.setErr(err)
			return
		}
		attempt++
	}
}

// consume pulls one transport segment and yields its items. It returns a
// nil error for a transient segment loss (the loop reconnects) and a
// non-nil error when the subscription must end. The underlying stream is
// released on every exit path.
func (s *Streamer) consume(ctx context.Context, sub *Subscription, stream connection.Stream) (delivered bool, err error) {
	defer stream.Close()

	for {
		item, rerr := stream.Recv(ctx)
		if rerr != nil {
			if cerr := ctx.Err(); cerr != nil {
				return delivered, cerr
			}
			if s.policy.retryable(rerr) {
				return delivered, nil
			}
			return delivered, rerr
		}

		select {
		case sub.events <- item:
			delivered = true
		case <-ctx.Done():
			return delivered, ctx.Err()
		}
	}
}

// wait sleeps out the reconnect backoff, bounded only by cancellation.
func (s *Streamer) wait(ctx context.Context, attempt int) error {
	d := s.policy.backoff(attempt)

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
