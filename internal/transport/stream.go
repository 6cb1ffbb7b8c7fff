package transport

import (
	"context"
	"encoding/json"
	"sync"
)

// ServerStream is one open subscription on a channel. Items arrive in the
// order the gateway delivered them; the stream ends when the consumer closes
// it or the channel dies.
type ServerStream struct {
	id   string
	feed string
	ch   *Channel

	items chan json.RawMessage

	once sync.Once

	mu  sync.Mutex
	err error
}

// Recv returns the next item. It blocks until an item arrives, ctx is done,
// or the stream ends; a stream ended by transport failure reports the
// channel's fatal error.
func (s *ServerStream) Recv(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case item, ok := <-s.items:
		if !ok {
			return nil, s.Err()
		}
		return item, nil
	}
}

// Err returns the reason the stream ended. Valid once Recv has failed.
func (s *ServerStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	return ErrChannelClosed
}

// Close releases the stream: it is removed from the channel's routing table
// and a best-effort unsubscribe is sent. Idempotent; safe on a dead channel.
func (s *ServerStream) Close() error {
	s.once.Do(func() {
		s.ch.streamMu.Lock()
		delete(s.ch.streams, s.id)
		s.ch.streamMu.Unlock()

		select {
		case <-s.ch.done:
			// Channel already dead, nothing to unsubscribe from.
		default:
			ctx, cancel := context.WithTimeout(context.Background(), s.ch.cfg.WriteTimeout)
			if err := s.ch.Call(ctx, "unsubscribe", unsubscribeParams{SubID: s.id}, nil); err != nil {
				s.ch.logger.Debug("unsubscribe failed", "sub_id", s.id, "error", err)
			}
			cancel()
		}

		s.mu.Lock()
		s.err = ErrChannelClosed
		s.mu.Unlock()
		close(s.items)
	})
	return nil
}

// finish terminates the stream from the channel side with err. The channel
// removes the stream from its routing table before calling finish, so no
// further sends can race the close.
func (s *ServerStream) finish(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.items)
	})
}
