// Package server manages individual WebSocket connections, handling read/write
// pumps, keepalive, and lifecycle control for each connection.
package server

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// Client represents one relay connection. It owns the WebSocket transport,
// a bounded outbound queue drained by the write pump, and the connection's
// liveness state.
type Client struct {
	ID uuid.UUID

	conn  *websocket.Conn
	relay *Relay
	cfg   Config
	log   *log.Entry

	state     atomic.Int32
	send      chan Message
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a new Client in the CONNECTING state with the provided
// WebSocket connection, relay and remote address.
func NewClient(conn *websocket.Conn, relay *Relay, addr string, cfg Config) *Client {
	cfg = sanitizeConfig(cfg)
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	id := uuid.New()
	return &Client{
		ID:    id,
		conn:  conn,
		relay: relay,
		cfg:   cfg,
		log:   log.WithFields(log.Fields{"conn": id.String(), "addr": addr}),
		send:  make(chan Message, cfg.SendBufferSize),
		done:  make(chan struct{}),
	}
}

// State returns the current liveness state.
func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

// Send queues msg for delivery without blocking. It fails with ErrNotOpen
// unless the connection is OPEN and with ErrSendBufferFull when the queue
// has no room.
func (c *Client) Send(msg Message) error {
	if c.State() != StateOpen {
		return ErrNotOpen
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// run drives the connection from OPEN to CLOSED and returns once both pumps
// have exited. The connection is closed early when ctx is cancelled.
func (c *Client) run(ctx context.Context) {
	c.setState(StateOpen)
	c.relay.Join(c)

	go func() {
		select {
		case <-ctx.Done():
			c.closeConnection()
		case <-c.done:
		}
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump()
	}()

	c.readPump()

	c.setState(StateClosing)
	c.relay.Leave(c)
	c.stop()
	<-writerDone
	c.closeConnection()
	c.setState(StateClosed)
}

func (c *Client) stop() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
		c.log.Errorf("error setting initial read deadline: %v", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
			c.log.Errorf("error setting read deadline in pong handler: %v", err)
		}
		return nil
	})
}

// logReadError logs why the read loop ended. Every read error ends the
// connection; the classification only affects the log level.
func (c *Client) logReadError(err error) {
	if errors.Is(err, websocket.ErrReadLimit) {
		c.log.Warnf("message exceeded maximum size of %d bytes", c.cfg.MaxMessageSize)
		return
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived) {
		c.log.Infof("client disconnected: %v", err)
		return
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		c.log.Infof("connection closed: %v", err)
		return
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig) {
		c.log.Warnf("unexpected WebSocket close: %v", err)
		return
	}

	c.log.Infof("read error, closing connection: %v", err)
}

func (c *Client) readPump() {
	c.setupReadConnection()

	for {
		messageType, payload, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		c.relay.Broadcast(c, Message{Type: messageType, Payload: payload})
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message := <-c.send:
		if !c.writeMessage(message) {
			// unblocks the read pump so the connection is torn down
			c.closeConnection()
			return false
		}
		return true
	case <-ticker.C:
		if !c.writePing() {
			c.closeConnection()
			return false
		}
		return true
	case <-c.done:
		c.writeCloseMessage()
		return false
	}
}

// closeConnection closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Errorf("error closing connection: %v", err)
		}
	}
}

// writeMessage writes one relayed message as a single frame of its original type
func (c *Client) writeMessage(message Message) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		c.log.Errorf("error setting write deadline: %v", err)
		return false
	}

	if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warnf("error writing message: %v", err)
		}
		return false
	}
	return true
}

// writeCloseMessage sends a close frame to the client
func (c *Client) writeCloseMessage() {
	deadline := time.Now().Add(c.cfg.WriteWait)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		if !isExpectedCloseError(err) && !errors.Is(err, websocket.ErrCloseSent) {
			c.log.Debugf("error writing close message: %v", err)
		}
	}
}

// writePing sends a ping message to keep the connection alive
func (c *Client) writePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		c.log.Errorf("error setting write deadline for ping: %v", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warnf("error writing ping message: %v", err)
		}
		return false
	}
	return true
}
