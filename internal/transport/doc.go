// Package transport implements the Endpoint Channel: a single long-lived
// WebSocket connection to the terminal gateway speaking its JSON command
// protocol.
//
// A Channel:
//   - Authenticates with a login command on dial and carries the negotiated
//     session ID for its whole lifetime
//   - Correlates unary commands with their responses by command ID
//   - Routes server-pushed data frames to open streams by subscription ID
//   - Detects dead peers via ping/pong heartbeat
//
// The channel never retries anything. Retry and reconnection policy live in
// the rpc and connection packages.
package transport
