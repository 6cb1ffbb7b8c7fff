package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/tradegate/tradegate/internal/transport"
)

var errDisconnected = errors.New("manager disconnected while connecting")

// Config configures the Connection Manager.
type Config struct {
	// ConnectTimeout bounds one connect handshake, including login. The
	// shared in-flight attempt runs detached from any single caller's
	// context so one caller's cancellation cannot poison the attempt for
	// the others waiting on it.
	ConnectTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 30 * time.Second,
	}
}

// Manager owns the single live channel to the gateway.
type Manager struct {
	cfg    Config
	dial   DialFunc
	logger *slog.Logger

	mu     sync.Mutex
	state  State
	handle *Handle

	flight singleflight.Group

	connects   atomic.Int64
	reconnects atomic.Int64
}

// NewManager creates a Connection Manager in the Disconnected state. No I/O
// happens until the first EnsureConnected.
func NewManager(cfg Config, dial DialFunc, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = DefaultConfig().ConnectTimeout
	}

	return &Manager{
		cfg:    cfg,
		dial:   dial,
		logger: logger,
		state:  StateDisconnected,
	}
}

// DialTransport returns the production DialFunc: it dials the WebSocket
// transport and adapts it to the Channel interface.
func DialTransport(cfg transport.Config, logger *slog.Logger) DialFunc {
	return func(ctx context.Context) (Channel, error) {
		ch, err := transport.Dial(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return &transportChannel{ch}, nil
	}
}

// transportChannel adapts transport.Channel's concrete stream type to the
// Stream interface.
type transportChannel struct {
	*transport.Channel
}

func (t *transportChannel) OpenStream(ctx context.Context, feed string, params any) (Stream, error) {
	s, err := t.Channel.OpenStream(ctx, feed, params)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// EnsureConnected returns the current handle, connecting first if needed.
// When a connect is already in flight, the caller waits on that attempt
// rather than starting a second one; each waiter still honors its own ctx.
func (m *Manager) EnsureConnected(ctx context.Context) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if h := m.currentHandle(); h != nil {
		return h, nil
	}

	ch := m.flight.DoChan("connect", func() (any, error) {
		return m.connect()
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Handle), nil
	}
}

// currentHandle returns the live handle, or nil if a connect is required.
// A handle whose channel has died is treated as absent.
func (m *Manager) currentHandle() *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateConnected || m.handle == nil {
		return nil
	}

	select {
	case <-m.handle.Channel.Done():
		m.handle = nil
		m.state = StateReconnecting
		return nil
	default:
		return m.handle
	}
}

// connect performs one dial under the single-flight gate.
func (m *Manager) connect() (*Handle, error) {
	// A caller may have raced the flight and found the manager already
	// connected by another flight that finished just before this one began.
	if h := m.currentHandle(); h != nil {
		return h, nil
	}

	m.mu.Lock()
	if m.state != StateReconnecting {
		m.state = StateConnecting
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ConnectTimeout)
	defer cancel()

	ch, err := m.dial(ctx)
	if err != nil {
		m.mu.Lock()
		m.state = StateFaulted
		m.mu.Unlock()

		m.logger.Warn("connect failed", "error", err)
		return nil, &ConnectError{Err: err}
	}

	h := &Handle{
		ID:        uuid.New(),
		SessionID: ch.SessionID(),
		Channel:   ch,
	}

	m.mu.Lock()
	if m.state == StateDisconnected {
		// Disconnect won the race against this dial.
		m.mu.Unlock()
		ch.Close()
		return nil, &ConnectError{Err: errDisconnected}
	}
	m.handle = h
	m.state = StateConnected
	m.mu.Unlock()

	if m.connects.Add(1) > 1 {
		m.reconnects.Add(1)
	}

	m.logger.Info("connected", "session_id", h.SessionID)

	return h, nil
}

// Invalidate discards h if it is still the current handle. Stale
// invalidations are no-ops, so a slow caller cannot tear down a connection
// another caller already refreshed. Safe to call concurrently.
func (m *Manager) Invalidate(h *Handle) {
	if h == nil {
		return
	}

	m.mu.Lock()
	if m.handle == nil || m.handle.ID != h.ID {
		m.mu.Unlock()
		return
	}
	m.handle = nil
	m.state = StateReconnecting
	m.mu.Unlock()

	h.Channel.Close()
	m.logger.Debug("handle invalidated", "session_id", h.SessionID)
}

// Disconnect closes the channel best-effort and settles in Disconnected.
// Idempotent and never fails; close errors are swallowed since Disconnect
// typically runs from cleanup paths.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	h := m.handle
	m.handle = nil
	m.state = StateDisconnected
	m.mu.Unlock()

	if h != nil {
		h.Channel.Close()
		m.logger.Debug("disconnected", "session_id", h.SessionID)
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stats returns connection counters.
func (m *Manager) Stats() ManagerStats {
	return ManagerStats{
		State:      m.State(),
		Connects:   m.connects.Load(),
		Reconnects: m.reconnects.Load(),
	}
}
