package server

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func newTestRelay(t *testing.T) *Relay {
	t.Helper()
	m, err := NewMetrics(otel.Meter(""))
	require.NoError(t, err)
	return NewRelay(NewRegistry(), m)
}

// newOpenClient returns a transport-less client that has joined relay.
func newOpenClient(t *testing.T, relay *Relay, addr string, bufferSize int) *Client {
	t.Helper()
	c := NewClient(nil, relay, addr, Config{SendBufferSize: bufferSize})
	c.setState(StateOpen)
	relay.Join(c)
	return c
}

func drain(c *Client) []Message {
	var out []Message
	for {
		select {
		case msg := <-c.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

// lookup returns the connection registered under id.
func lookup(r *Registry, id uuid.UUID) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[id]
	return client, ok
}
