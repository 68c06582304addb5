// Package client is a Go peer for the signaling relay. It dials with
// exponential backoff, sends opaque payloads and delivers everything the
// relay forwards on a channel.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	defaultHandshakeTimeout = 5 * time.Second
	defaultWriteWait        = 10 * time.Second
	defaultQueueSize        = 64
)

// Message is a payload received from the relay along with its frame type.
type Message struct {
	Type    int
	Payload []byte
}

// Options tune how Dial connects.
type Options struct {
	// Header is sent with the handshake, e.g. an Origin for browser-like peers.
	Header           http.Header
	HandshakeTimeout time.Duration
	// MaxRetries bounds reconnection attempts after the first one. Zero
	// means retry until MaxElapsedTime or the context ends.
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxElapsedTime  time.Duration
	// OnRetry is called after each failed attempt that will be retried.
	OnRetry   backoff.Notify
	QueueSize int
}

// Client is an open connection to the relay.
type Client struct {
	conn     *websocket.Conn
	messages chan Message

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once

	errMu sync.Mutex
	err   error
}

// Dial connects to the relay at url, retrying failed attempts with
// exponential backoff. Handshakes rejected with a 4xx status are not retried.
func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: opts.HandshakeTimeout,
	}
	if dialer.HandshakeTimeout <= 0 {
		dialer.HandshakeTimeout = defaultHandshakeTimeout
	}

	op := func() (*websocket.Conn, error) {
		conn, resp, err := dialer.DialContext(ctx, url, opts.Header)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err == nil {
			return conn, nil
		}
		if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, backoff.Permanent(fmt.Errorf("handshake rejected with status %d: %w", resp.StatusCode, err))
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	conn, err := backoff.RetryNotifyWithData(op, newBackoff(ctx, opts), opts.OnRetry)
	if err != nil {
		return nil, err
	}

	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	c := &Client{
		conn:     conn,
		messages: make(chan Message, queueSize),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func newBackoff(ctx context.Context, opts Options) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if opts.InitialInterval > 0 {
		eb.InitialInterval = opts.InitialInterval
	}
	if opts.MaxElapsedTime > 0 {
		eb.MaxElapsedTime = opts.MaxElapsedTime
	}

	var b backoff.BackOff = eb
	if opts.MaxRetries > 0 {
		b = backoff.WithMaxRetries(b, opts.MaxRetries)
	}
	return backoff.WithContext(b, ctx)
}

// Messages returns the channel of relayed messages. It is closed once the
// connection ends.
func (c *Client) Messages() <-chan Message {
	return c.messages
}

// Done is closed once the connection has ended.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that ended the connection, if it did not end with
// a normal close.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Send writes payload as a text frame.
func (c *Client) Send(payload []byte) error {
	return c.write(websocket.TextMessage, payload)
}

// SendBinary writes payload as a binary frame.
func (c *Client) SendBinary(payload []byte) error {
	return c.write(websocket.BinaryMessage, payload)
}

func (c *Client) write(messageType int, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(defaultWriteWait)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.conn.WriteMessage(messageType, payload); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Close sends a close frame and closes the connection.
func (c *Client) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(defaultWriteWait))
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		log.Debugf("failed to send close frame: %v", err)
	}
	c.stop()
	return c.conn.Close()
}

func (c *Client) stop() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *Client) readLoop() {
	defer close(c.messages)
	defer c.stop()

	for {
		messageType, payload, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				// closed locally
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.errMu.Lock()
					c.err = err
					c.errMu.Unlock()
				}
			}
			return
		}

		select {
		case c.messages <- Message{Type: messageType, Payload: payload}:
		case <-c.done:
			return
		}
	}
}
