package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alertwire/alertwire/internal/config"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// startEchoServer runs a WebSocket server that echoes every text message
// back, until closeAfter messages have been seen (0 means never close
// first). It returns the address config a client transport needs.
func startEchoServer(t *testing.T, closeAfter int) config.AddrConfig {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		seen := 0
		for {
			mt, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, payload); err != nil {
				return
			}
			seen++
			if closeAfter > 0 && seen >= closeAfter {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
				conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return config.NewAddrConfig(host, port).WithoutTLS()
}

func dialEcho(t *testing.T, cfg config.AddrConfig) *WebSocket {
	t.Helper()

	ws := NewWebSocket(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, ws.Connect(ctx))
	require.NoError(t, ws.Handshake(ctx, RoleClient))
	t.Cleanup(func() { ws.Close() })
	return ws
}

func TestWebSocketRoundTrip(t *testing.T) {
	cfg := startEchoServer(t, 0)
	ws := dialEcho(t, cfg)

	require.NoError(t, ws.Write([]byte("hello")))
	payload, err := ws.Read()
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), payload)

	require.NoError(t, ws.Write([]byte("again")))
	payload, err = ws.Read()
	require.NoError(t, err)
	assert.Equal(t, []byte("again"), payload)
}

func TestWebSocketPeerCloseSurfacesErrClosed(t *testing.T) {
	cfg := startEchoServer(t, 1)
	ws := dialEcho(t, cfg)

	require.NoError(t, ws.Write([]byte("last")))
	payload, err := ws.Read()
	require.NoError(t, err)
	assert.Equal(t, []byte("last"), payload)

	_, err = ws.Read()
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, Retryable(err))
}

func TestWebSocketCloseUnblocksRead(t *testing.T) {
	cfg := startEchoServer(t, 0)
	ws := dialEcho(t, cfg)

	errCh := make(chan error, 1)
	go func() {
		_, err := ws.Read()
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond) // let the read block
	require.NoError(t, ws.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("read did not unblock after close")
	}
}

func TestWebSocketCloseIsIdempotent(t *testing.T) {
	cfg := startEchoServer(t, 0)
	ws := dialEcho(t, cfg)

	assert.NoError(t, ws.Close())
	assert.NoError(t, ws.Close())
}

func TestWebSocketConnectRefusedIsRetryable(t *testing.T) {
	// Grab a port nothing listens on.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	ws := NewWebSocket(config.NewAddrConfig("127.0.0.1", port).WithoutTLS())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = ws.Connect(ctx)
	require.Error(t, err)
	var connErr *ConnError
	assert.ErrorAs(t, err, &connErr)
	assert.Equal(t, "connect", connErr.Op)
	assert.True(t, Retryable(err))
}

func TestWebSocketHandshakeBeforeConnect(t *testing.T) {
	ws := NewWebSocket(config.NewAddrConfig("localhost", 8443))

	err := ws.Handshake(context.Background(), RoleClient)
	require.Error(t, err)
	var hsErr *HandshakeError
	assert.ErrorAs(t, err, &hsErr)
	assert.False(t, Retryable(err))
}

func TestWebSocketHandshakeServerRoleRejected(t *testing.T) {
	cfg := startEchoServer(t, 0)
	ws := NewWebSocket(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ws.Connect(ctx))
	t.Cleanup(func() { ws.Close() })

	err := ws.Handshake(ctx, RoleServer)
	var hsErr *HandshakeError
	assert.ErrorAs(t, err, &hsErr)
}

func TestWebSocketHandshakeRejectedUpgrade(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no upgrades here", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	ws := NewWebSocket(config.NewAddrConfig(host, port).WithoutTLS())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ws.Connect(ctx))

	err = ws.Handshake(ctx, RoleClient)
	var hsErr *HandshakeError
	require.ErrorAs(t, err, &hsErr)
	assert.False(t, Retryable(err))
}

func TestWebSocketReadBeforeHandshake(t *testing.T) {
	ws := NewWebSocket(config.NewAddrConfig("localhost", 8443))

	_, err := ws.Read()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, ws.Write([]byte("x")), ErrClosed)
}

func TestFromConnSkipsConnectAndHandshake(t *testing.T) {
	cfg := startEchoServer(t, 0)

	dialer := websocket.Dialer{}
	wsURL := "ws://" + net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)) + cfg.Endpoint
	conn, resp, err := dialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	ws := FromConn(conn)
	t.Cleanup(func() { ws.Close() })

	require.NoError(t, ws.Connect(context.Background()))
	require.NoError(t, ws.Handshake(context.Background(), RoleServer))

	require.NoError(t, ws.Write([]byte("adopted")))
	payload, err := ws.Read()
	require.NoError(t, err)
	assert.Equal(t, []byte("adopted"), payload)
}

func TestErrorClassification(t *testing.T) {
	inner := errors.New("boom")

	connErr := &ConnError{Op: "read", Err: inner}
	assert.True(t, Retryable(connErr))
	assert.ErrorIs(t, connErr, inner)
	assert.Contains(t, connErr.Error(), "read")

	hsErr := &HandshakeError{Err: inner}
	assert.False(t, Retryable(hsErr))
	assert.ErrorIs(t, hsErr, inner)

	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(inner))
	assert.False(t, Retryable(context.Canceled))
}
