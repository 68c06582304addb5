// Package server fans inbound messages out to every other open connection
// via the Relay type.
package server

import (
	"errors"

	log "github.com/sirupsen/logrus"
)

// Relay delivers each message received on one connection to every other
// registered connection. It never inspects payloads and never removes
// connections from the registry on its own; that is left to the connection
// lifecycle.
type Relay struct {
	registry *Registry
	metrics  *Metrics
}

// NewRelay creates a Relay that broadcasts over the given registry.
func NewRelay(registry *Registry, metrics *Metrics) *Relay {
	return &Relay{
		registry: registry,
		metrics:  metrics,
	}
}

// Registry returns the connection registry the relay broadcasts over.
func (r *Relay) Registry() *Registry {
	return r.registry
}

// Join registers an open connection so that subsequent broadcasts reach it.
func (r *Relay) Join(client *Client) {
	r.registry.Register(client)
	r.metrics.connectionOpened()
	client.log.Infof("connection registered, total connections: %d", r.registry.Len())
}

// Leave deregisters a connection. Calling it more than once is harmless.
func (r *Relay) Leave(client *Client) {
	if !r.registry.Deregister(client) {
		return
	}
	r.metrics.connectionClosed()
	client.log.Infof("connection deregistered, total connections: %d", r.registry.Len())
}

// Broadcast sends msg to every registered connection except origin and
// returns how many recipients accepted it.
//
// Each send is a non-blocking enqueue, so a slow or failing recipient never
// holds up the rest of the pass. Failed sends are dropped, not retried.
func (r *Relay) Broadcast(origin *Client, msg Message) int {
	r.metrics.messageReceived(len(msg.Payload))

	clients := r.registry.Snapshot()
	delivered := 0
	for _, client := range clients {
		if client == origin {
			continue
		}
		if err := client.Send(msg); err != nil {
			r.handleSendError(client, err)
			continue
		}
		delivered++
	}
	r.metrics.delivered(delivered)

	origin.log.Tracef("relayed %d bytes to %d of %d peers", len(msg.Payload), delivered, len(clients)-1)
	return delivered
}

func (r *Relay) handleSendError(client *Client, err error) {
	switch {
	case errors.Is(err, ErrNotOpen):
		r.metrics.dropped(dropReasonNotOpen)
	case errors.Is(err, ErrSendBufferFull):
		r.metrics.dropped(dropReasonBufferFull)
	default:
		log.Errorf("unexpected send error: %v", err)
	}
	client.log.Debugf("dropped message for recipient: %v", err)
}
