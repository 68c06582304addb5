// Package server constructs, starts and shuts down the relay service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/metric"
)

// Server binds the relay to a TCP listener and owns the lifecycle of every
// connection it accepts.
type Server struct {
	cfg      Config
	relay    *Relay
	upgrader websocket.Upgrader

	httpServer *http.Server
	listener   net.Listener

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

// NewServer creates a relay server from cfg, registering its instruments on meter.
func NewServer(cfg Config, meter metric.Meter) (*Server, error) {
	cfg = sanitizeConfig(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	m, err := NewMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("setup relay metrics: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:    cfg,
		relay:  NewRelay(NewRegistry(), m),
		ctx:    ctx,
		cancel: cancel,
	}

	origins := newOriginPolicy(cfg.AllowedOrigins)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     origins.checkOrigin,
	}

	s.httpServer = &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// Relay returns the relay that fans messages out between connections.
func (s *Server) Relay() *Relay {
	return s.relay
}

// Listen binds the configured port. It fails fast, before any goroutine is
// started, when the port is unavailable.
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.cfg.Address())
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.cfg.Address(), err)
	}
	s.listener = listener
	return nil
}

// Addr returns the bound address, or nil before Listen succeeds.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections on the bound listener until Shutdown is called.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("server is not listening")
	}

	log.Infof("signaling relay listening on ws://%s", s.listener.Addr())
	err := s.httpServer.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting new connections, closes every open connection
// and waits for their pumps to exit or for ctx to expire. Messages still
// queued for delivery may be abandoned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	log.Infof("shutting down relay, closing %d connections", s.relay.Registry().Len())

	var httpErr error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		httpErr = fmt.Errorf("http server shutdown: %w", err)
	}

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Infof("relay shutdown completed")
		return httpErr
	case <-ctx.Done():
		log.Warnf("relay shutdown timeout reached, some connections may still be closing")
		return multierror.Append(httpErr, ctx.Err()).ErrorOrNil()
	}
}

// track registers a connection handler for shutdown accounting. It returns
// false once shutdown has started.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.wg.Add(1)
	return true
}
