// Package server defines the relayed message type, the connection state
// machine, and error helpers shared by the client, registry and relay.
package server

import (
	"errors"
	"net"
	"strings"
)

// Message is one inbound WebSocket frame as received from a connection.
// Type is the gorilla frame type (websocket.TextMessage or
// websocket.BinaryMessage) so the relay can forward it verbatim. Payload is
// never modified after receipt and is shared by every recipient.
type Message struct {
	Type    int
	Payload []byte
}

// State is the liveness state of a connection.
type State int32

// Connections move strictly forward through these states.
const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

var (
	// ErrNotOpen is returned by Client.Send when the connection is not OPEN.
	ErrNotOpen = errors.New("connection is not open")
	// ErrSendBufferFull is returned by Client.Send when the outbound queue
	// of the connection has no room left.
	ErrSendBufferFull = errors.New("send buffer full")
)

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}
