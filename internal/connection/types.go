package connection

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// State is the connection lifecycle state. The manager owns exactly one
// state value and serializes all transitions.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFaulted:
		return "faulted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ConnectError reports a failure to establish the channel itself, as
// opposed to a failure of a specific operation on it.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect gateway: %v", e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Channel is the transport surface the manager and executors need. The
// production implementation is transport.Channel.
type Channel interface {
	SessionID() string
	Call(ctx context.Context, op string, params, result any) error
	OpenStream(ctx context.Context, feed string, params any) (Stream, error)
	Close() error
	Done() <-chan struct{}
}

// Stream is one open server subscription on a channel.
type Stream interface {
	Recv(ctx context.Context) (json.RawMessage, error)
	Close() error
}

// DialFunc establishes a new channel. Tests substitute fakes; production
// wiring dials the WebSocket transport.
type DialFunc func(ctx context.Context) (Channel, error)

// Handle is an opaque reference to one live channel plus its session
// metadata. Handles are immutable: a reconnect produces a new handle and
// old ones are discarded, never reused.
type Handle struct {
	ID        uuid.UUID
	SessionID string
	Channel   Channel
}

// ManagerStats provides counters about the manager's connection activity.
type ManagerStats struct {
	State      State
	Connects   int64
	Reconnects int64
}
