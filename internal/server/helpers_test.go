package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/Tyrowin/signalrelay/internal/client"
	"github.com/Tyrowin/signalrelay/internal/server"
)

const (
	receiveTimeout = 2 * time.Second
	quietPeriod    = 200 * time.Millisecond
)

// startRelay serves a relay through httptest and returns it with its ws:// URL.
func startRelay(t *testing.T, cfg server.Config) (*server.Server, string) {
	t.Helper()

	srv, err := server.NewServer(cfg, otel.Meter(""))
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		ts.Close()
	})

	return srv, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func waitForConnections(t *testing.T, srv *server.Server, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return srv.Relay().Registry().Len() == n
	}, receiveTimeout, 10*time.Millisecond, "expected %d registered connections", n)
}

// dialPeer connects a relay client and waits until the relay registered it.
func dialPeer(t *testing.T, srv *server.Server, url string) *client.Client {
	t.Helper()

	before := srv.Relay().Registry().Len()
	c, err := client.Dial(context.Background(), url, client.Options{MaxRetries: 1})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = c.Close()
	})

	waitForConnections(t, srv, before+1)
	return c
}

// connectWebSocket opens a raw gorilla connection with the given Origin header.
func connectWebSocket(url, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

func expectMessage(t *testing.T, c *client.Client, want string) client.Message {
	t.Helper()
	select {
	case msg, ok := <-c.Messages():
		require.True(t, ok, "connection closed while waiting for %q", want)
		require.Equal(t, want, string(msg.Payload))
		return msg
	case <-time.After(receiveTimeout):
		t.Fatalf("timed out waiting for %q", want)
	}
	return client.Message{}
}

func expectNoMessage(t *testing.T, c *client.Client) {
	t.Helper()
	select {
	case msg, ok := <-c.Messages():
		if ok {
			t.Fatalf("unexpected message %q", msg.Payload)
		}
	case <-time.After(quietPeriod):
	}
}
