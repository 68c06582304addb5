package client_test

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/Tyrowin/signalrelay/internal/client"
	"github.com/Tyrowin/signalrelay/internal/server"
)

func startRelay(t *testing.T) (*server.Server, string) {
	t.Helper()

	srv, err := server.NewServer(*server.NewConfig(), otel.Meter(""))
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

func dial(t *testing.T, srv *server.Server, url string) *client.Client {
	t.Helper()
	before := srv.Relay().Registry().Len()
	c, err := client.Dial(context.Background(), url, client.Options{})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return srv.Relay().Registry().Len() == before+1
	}, 2*time.Second, 10*time.Millisecond)
	return c
}

func TestClient_SendAndReceive(t *testing.T) {
	srv, url := startRelay(t)
	a := dial(t, srv, url)
	defer a.Close()
	b := dial(t, srv, url)
	defer b.Close()

	require.NoError(t, a.Send([]byte("candidate")))
	require.NoError(t, a.SendBinary([]byte{1, 2, 3}))

	for _, want := range []client.Message{
		{Type: websocket.TextMessage, Payload: []byte("candidate")},
		{Type: websocket.BinaryMessage, Payload: []byte{1, 2, 3}},
	} {
		select {
		case got := <-b.Messages():
			assert.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q", want.Payload)
		}
	}
}

func TestClient_CloseEndsMessages(t *testing.T) {
	srv, url := startRelay(t)
	c := dial(t, srv, url)

	require.NoError(t, c.Close())

	select {
	case _, ok := <-c.Messages():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("messages channel was not closed")
	}
	assert.NoError(t, c.Err())
	assert.Error(t, c.Send([]byte("late")))
}

func TestClient_ErrAfterServerDrop(t *testing.T) {
	srv, url := startRelay(t)
	c := dial(t, srv, url)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client did not observe the dropped connection")
	}
	assert.Error(t, c.Err())
}

func TestDial_RetriesUnreachableRelay(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	var retries atomic.Int32
	_, err = client.Dial(context.Background(), "ws://"+addr, client.Options{
		MaxRetries:      2,
		InitialInterval: 10 * time.Millisecond,
		OnRetry: func(error, time.Duration) {
			retries.Add(1)
		},
	})

	require.Error(t, err)
	assert.Equal(t, int32(2), retries.Load())
}

func TestDial_DoesNotRetryRejectedHandshake(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer ts.Close()

	var retries atomic.Int32
	_, err := client.Dial(context.Background(), "ws"+strings.TrimPrefix(ts.URL, "http"), client.Options{
		MaxRetries:      5,
		InitialInterval: 10 * time.Millisecond,
		OnRetry: func(error, time.Duration) {
			retries.Add(1)
		},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Equal(t, int32(0), retries.Load())
}

func TestDial_StopsWhenContextIsCancelled(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = client.Dial(ctx, "ws://"+addr, client.Options{InitialInterval: 50 * time.Millisecond})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
