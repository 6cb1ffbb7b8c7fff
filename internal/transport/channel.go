package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tradegate/tradegate/internal/version"
)

// Channel is one live connection to the gateway. It is created by Dial and
// unusable after Close or a transport failure; callers obtain a fresh
// channel by dialing again.
type Channel struct {
	cfg    Config
	logger *slog.Logger

	conn      *websocket.Conn
	sessionID string

	// Write serialization
	writeMu sync.Mutex

	// Command/response correlation
	pendingMu sync.Mutex
	pending   map[int64]chan frame
	cmdID     atomic.Int64

	// Open streams by subscription ID
	streamMu sync.Mutex
	streams  map[string]*ServerStream

	done      chan struct{}
	closeOnce sync.Once

	errMu    sync.Mutex
	fatalErr error

	pongMu   sync.Mutex
	lastPong time.Time
}

// Dial connects to the gateway, performs the login handshake, and returns a
// live channel. The returned channel carries the negotiated session ID.
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*Channel, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.DialTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial gateway: %w", err)
	}

	c := &Channel{
		cfg:      cfg,
		logger:   logger,
		conn:     conn,
		pending:  make(map[int64]chan frame),
		streams:  make(map[string]*ServerStream),
		done:     make(chan struct{}),
		lastPong: time.Now(),
	}

	// Server pings are answered with pongs; both directions refresh liveness.
	conn.SetPingHandler(func(data string) error {
		c.touchPong()
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})
	conn.SetPongHandler(func(string) error {
		c.touchPong()
		return nil
	})

	go c.readLoop()
	go c.heartbeatLoop()

	var res loginResult
	err = c.Call(ctx, "session.login", loginParams{
		Account:  cfg.Account,
		Password: cfg.Password,
		Server:   cfg.Server,
		Client:   "tradegate/" + version.Version,
	}, &res)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("login: %w", err)
	}
	c.sessionID = res.SessionID

	c.logger.Debug("channel established", "url", cfg.URL, "session_id", res.SessionID)

	return c, nil
}

// SessionID returns the session identifier negotiated at login.
func (c *Channel) SessionID() string {
	return c.sessionID
}

// Done is closed when the channel dies, whether by Close or by a transport
// failure.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Err returns the reason the channel died, or nil while it is alive.
func (c *Channel) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.fatalErr
}

// Close tears the channel down. Idempotent; pending calls and open streams
// fail with ErrChannelClosed.
func (c *Channel) Close() error {
	c.writeMu.Lock()
	c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()

	c.fatal(ErrChannelClosed)
	return nil
}

// Call executes one unary command and decodes the result payload into
// result (when non-nil). Error frames come back as *GatewayError. The wait
// is bounded by ctx; a dead channel fails the call with its fatal error.
func (c *Channel) Call(ctx context.Context, op string, params, result any) error {
	raw, err := marshalParams(params)
	if err != nil {
		return err
	}

	id := c.cmdID.Add(1)
	respCh := make(chan frame, 1)

	c.pendingMu.Lock()
	c.pending[id] = respCh
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.send(command{ID: id, Op: op, Params: raw}); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return c.channelErr()
	case f := <-respCh:
		if f.Type == frameError {
			gerr := &GatewayError{}
			if err := json.Unmarshal(f.Payload, gerr); err != nil {
				return fmt.Errorf("transport: malformed error frame: %w", err)
			}
			return gerr
		}
		if result != nil {
			if err := json.Unmarshal(f.Payload, result); err != nil {
				return fmt.Errorf("transport: decode %s response: %w", op, err)
			}
		}
		return nil
	}
}

// OpenStream subscribes to a server feed and returns the stream of its data
// frames. A rejected subscription comes back as *GatewayError.
func (c *Channel) OpenStream(ctx context.Context, feed string, params any) (*ServerStream, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}

	var res subscribeResult
	if err := c.Call(ctx, "subscribe", subscribeParams{Feed: feed, Params: raw}, &res); err != nil {
		return nil, err
	}

	s := &ServerStream{
		id:    res.SubID,
		feed:  feed,
		ch:    c,
		items: make(chan json.RawMessage, c.cfg.StreamBuffer),
	}

	c.streamMu.Lock()
	select {
	case <-c.done:
		// Channel died between the subscribe response and registration.
		c.streamMu.Unlock()
		return nil, c.channelErr()
	default:
	}
	c.streams[res.SubID] = s
	c.streamMu.Unlock()

	c.logger.Debug("stream opened", "feed", feed, "sub_id", res.SubID)

	return s, nil
}

// send writes one command frame under the write lock.
func (c *Channel) send(cmd command) error {
	select {
	case <-c.done:
		return c.channelErr()
	default:
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("transport: encode command: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", ErrChannelClosed, err)
	}
	return nil
}

// channelErr returns the fatal error, defaulting to ErrChannelClosed.
func (c *Channel) channelErr() error {
	if err := c.Err(); err != nil {
		return err
	}
	return ErrChannelClosed
}

// fatal marks the channel dead exactly once: pending calls unblock via the
// done channel and open streams are terminated with err.
func (c *Channel) fatal(err error) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		c.fatalErr = err
		c.errMu.Unlock()

		close(c.done)
		c.conn.Close()

		c.streamMu.Lock()
		streams := c.streams
		c.streams = make(map[string]*ServerStream)
		c.streamMu.Unlock()

		for _, s := range streams {
			s.finish(err)
		}
	})
}

func (c *Channel) touchPong() {
	c.pongMu.Lock()
	c.lastPong = time.Now()
	c.pongMu.Unlock()
}

// readLoop reads frames and routes them to pending calls and open streams.
func (c *Channel) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.fatal(fmt.Errorf("%w: %v", ErrChannelClosed, err))
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Warn("dropping malformed frame", "error", err)
			continue
		}

		switch f.Type {
		case frameResult, frameError:
			c.pendingMu.Lock()
			ch, ok := c.pending[f.ID]
			if ok {
				delete(c.pending, f.ID)
			}
			c.pendingMu.Unlock()

			if ok {
				select {
				case ch <- f:
				default:
				}
			} else {
				c.logger.Debug("response for unknown command", "id", f.ID)
			}

		case frameData:
			c.streamMu.Lock()
			s := c.streams[f.SubID]
			if s != nil {
				select {
				case s.items <- f.Payload:
				default:
					c.logger.Warn("stream buffer full, dropping item",
						"feed", s.feed,
						"sub_id", s.id,
					)
				}
			}
			c.streamMu.Unlock()

		default:
			c.logger.Debug("ignoring unknown frame", "type", f.Type)
		}
	}
}

// heartbeatLoop pings the gateway and fails the channel when the peer goes
// quiet past the configured timeout.
func (c *Channel) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
			}

			c.pongMu.Lock()
			last := c.lastPong
			c.pongMu.Unlock()

			if time.Since(last) > c.cfg.PingTimeout {
				c.logger.Warn("no pong from gateway, closing channel",
					"last_pong", last,
					"timeout", c.cfg.PingTimeout,
				)
				c.fatal(ErrStaleConnection)
				return
			}
		}
	}
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("transport: encode params: %w", err)
	}
	return raw, nil
}
