// Package connection implements the Connection Manager.
//
// The Connection Manager:
//   - Owns the single live channel to the gateway
//   - Hands out immutable connection handles; a reconnect produces a new
//     handle and discards the old one
//   - Serializes reconnection: concurrent callers share one in-flight dial
//     instead of stampeding the endpoint
//   - Never retries on its own; retry policy lives in the rpc package
package connection
