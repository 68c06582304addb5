// Package server exposes the HTTP handlers of the relay: the WebSocket
// upgrade and a plain-text status response.
package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// WebSocketHandler upgrades any request carrying a WebSocket handshake and
// runs the resulting connection until it closes. Requests without a
// handshake get the status response.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		s.StatusHandler(w, r)
		return
	}

	if !s.track() {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already replied with an HTTP error
		log.Debugf("WebSocket upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}

	client := NewClient(conn, s.relay, r.RemoteAddr, s.cfg)
	client.run(s.ctx)
}

// StatusHandler responds with a plain text line describing the relay state.
func (s *Server) StatusHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Signaling relay is running (%d connections)\n", s.relay.Registry().Len())
}
