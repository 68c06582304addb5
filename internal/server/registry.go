package server

import (
	"sync"

	"github.com/google/uuid"
)

// Registry holds all currently open connections, keyed by connection ID.
// A client is present iff it has been registered and not yet deregistered.
type Registry struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*Client
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[uuid.UUID]*Client),
	}
}

// Register adds a newly opened connection. Broadcasts that take their
// snapshot after Register returns include it.
func (r *Registry) Register(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[client.ID] = client
}

// Deregister removes the connection and reports whether it was registered.
// An in-flight broadcast holding an older snapshot may still attempt one
// send to it; that send is refused by the client's state check.
func (r *Registry) Deregister(client *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	registered, ok := r.clients[client.ID]
	if !ok || registered != client {
		return false
	}
	delete(r.clients, client.ID)
	return true
}

// Snapshot returns a copy of the current membership. The slice is owned by
// the caller and is unaffected by later registrations or removals.
func (r *Registry) Snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.clients))
	for _, client := range r.clients {
		clients = append(clients, client)
	}
	return clients
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
