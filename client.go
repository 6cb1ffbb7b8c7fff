// Package tradegate is a resilient client for a remote trading-terminal
// gateway. Every operation, unary calls and long-lived feeds alike, runs
// through one shared resilience layer: a single managed connection,
// classified retries for unary calls, and transparent reconnection for
// streams.
package tradegate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tradegate/tradegate/internal/connection"
	"github.com/tradegate/tradegate/internal/rpc"
	"github.com/tradegate/tradegate/internal/transport"
)

// gatewayPath is the WebSocket endpoint path on the gateway host.
const gatewayPath = "/terminal/v1"

// Client is a gateway client. All methods are safe for concurrent use; the
// client holds at most one live connection at a time.
type Client struct {
	cfg    *Config
	logger *slog.Logger
	policy rpc.RetryPolicy
	dial   connection.DialFunc

	conns   *connection.Manager
	caller  *rpc.Caller
	streams *rpc.Streamer
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRetryPolicy overrides the retry policy derived from config.
func WithRetryPolicy(policy rpc.RetryPolicy) Option {
	return func(c *Client) {
		c.policy = policy
	}
}

// WithDialFunc overrides how the client reaches the gateway. Used by tests
// to substitute a fake endpoint; gateway credentials are not validated on
// this path.
func WithDialFunc(dial connection.DialFunc) Option {
	return func(c *Client) {
		c.dial = dial
	}
}

// New creates a Client. The config is copied and defaulted, so a sparse
// hand-built Config works: only the gateway coordinates and credentials are
// required. No I/O happens until the first call or Connect.
func New(cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("tradegate: config is required")
	}

	conf := *cfg
	conf.applyDefaults()

	c := &Client{
		cfg:    &conf,
		logger: slog.Default(),
		policy: rpc.RetryPolicy{
			MaxAttempts: conf.Retry.MaxAttempts,
			BaseBackoff: conf.Retry.BaseBackoff,
			MaxBackoff:  conf.Retry.MaxBackoff,
			AttemptCap:  conf.Timeouts.AttemptCap,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.dial == nil {
		if err := conf.Validate(); err != nil {
			return nil, fmt.Errorf("tradegate: %w", err)
		}

		scheme := "ws"
		if conf.Gateway.UseTLS {
			scheme = "wss"
		}
		tcfg := transport.Config{
			URL:          fmt.Sprintf("%s://%s:%d%s", scheme, conf.Gateway.Host, conf.Gateway.Port, gatewayPath),
			Account:      conf.Gateway.Account,
			Password:     conf.Gateway.Password,
			Server:       conf.Gateway.Server,
			DialTimeout:  conf.Timeouts.DialTimeout,
			WriteTimeout: conf.Timeouts.WriteTimeout,
			PingInterval: conf.Timeouts.PingInterval,
			PingTimeout:  conf.Timeouts.PingTimeout,
			StreamBuffer: conf.Stream.BufferSize,
		}
		c.dial = connection.DialTransport(tcfg, c.logger)
	}

	c.conns = connection.NewManager(
		connection.Config{ConnectTimeout: conf.Timeouts.CallTimeout},
		c.dial,
		c.logger,
	)
	c.caller = rpc.NewCaller(c.conns, c.policy, conf.Timeouts.CallTimeout, c.logger)
	c.streams = rpc.NewStreamer(c.conns, c.policy, conf.Stream.BufferSize, c.logger)

	return c, nil
}

// Connect establishes the connection eagerly. Optional: every operation
// connects on demand.
func (c *Client) Connect(ctx context.Context) error {
	_, err := c.conns.EnsureConnected(ctx)
	return err
}

// Close disconnects from the gateway. Idempotent; safe from cleanup paths.
func (c *Client) Close() {
	c.conns.Disconnect()
}

// Stats returns connection counters.
func (c *Client) Stats() connection.ManagerStats {
	return c.conns.Stats()
}
