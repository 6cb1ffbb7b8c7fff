package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrChannelClosed   = errors.New("transport: channel closed")
	ErrStaleConnection = errors.New("transport: connection stale (no pong)")
)

// GatewayError is a business-level rejection from the gateway: the request
// was received, processed, and explicitly refused. It is never safe to
// retry automatically (a rejected order re-sent is a duplicate order).
type GatewayError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway error %s: %s", e.Code, e.Message)
}

// command is a client-to-gateway request frame.
type command struct {
	ID     int64           `json:"id"`
	Op     string          `json:"op"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Frame types sent by the gateway.
const (
	frameResult = "result"
	frameError  = "error"
	frameData   = "data"
)

// frame is any gateway-to-client message. Result and error frames carry the
// ID of the command they answer; data frames carry the subscription ID of
// the stream they belong to.
type frame struct {
	ID      int64           `json:"id,omitempty"`
	Type    string          `json:"type"`
	SubID   string          `json:"sub_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// loginParams is the payload of the session.login command sent on dial.
type loginParams struct {
	Account  string `json:"account"`
	Password string `json:"password"`
	Server   string `json:"server,omitempty"`
	Client   string `json:"client"`
}

// loginResult is the gateway's answer to a successful login.
type loginResult struct {
	SessionID string `json:"session_id"`
}

// subscribeParams is the payload of the subscribe command.
type subscribeParams struct {
	Feed   string          `json:"feed"`
	Params json.RawMessage `json:"params,omitempty"`
}

// subscribeResult is the gateway's answer to a successful subscribe.
type subscribeResult struct {
	SubID string `json:"sub_id"`
}

// unsubscribeParams is the payload of the unsubscribe command.
type unsubscribeParams struct {
	SubID string `json:"sub_id"`
}

// Config configures a Channel.
type Config struct {
	URL          string        // WebSocket URL (e.g., wss://gw.example.com/terminal/v1)
	Account      string        // Trading account login
	Password     string        // Account password
	Server       string        // Trade server name (gateway-specific, optional)
	DialTimeout  time.Duration // Handshake timeout for the WebSocket dial
	WriteTimeout time.Duration // Write deadline for outgoing frames
	PingInterval time.Duration // How often to ping the gateway
	PingTimeout  time.Duration // Max time without pong before the channel is stale
	StreamBuffer int           // Per-stream buffer size for data frames
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		DialTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Second,
		PingInterval: 15 * time.Second,
		PingTimeout:  60 * time.Second,
		StreamBuffer: 1000,
	}
}
