// Package rpc implements the retrying Call Executor and the reconnecting
// Stream Executor.
//
// Both executors run operations against whatever handle the Connection
// Manager currently holds. A transport-class failure invalidates the handle
// and the next attempt reconnects; a gateway rejection propagates on first
// occurrence, since re-sending a side-effecting trading request could
// duplicate it. One logical operation consumes a single time budget across
// all of its attempts.
package rpc
