// Package server implements the signaling relay: a WebSocket endpoint whose
// every inbound message is broadcast verbatim to all other open connections.
//
// The implementation is organized into specialized files for configuration,
// the connection registry, the relay, per-connection pumps, routing and HTTP
// handlers to keep the codebase maintainable and testable.
package server
