// Package transport establishes and drives a single WebSocket connection,
// optionally over TLS. A transport handle has exactly one owner; it is
// never shared between sessions.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alertwire/alertwire/internal/config"
)

// Role selects which side of the handshake this transport performs.
type Role int

const (
	// RoleClient initiates the connection and upgrade.
	RoleClient Role = iota

	// RoleServer is the accepting side. Server connections arrive already
	// upgraded and are adopted with FromConn.
	RoleServer
)

// closeGraceWait bounds how long a graceful close handshake may take.
const closeGraceWait = 5 * time.Second

// Transport is the connection collaborator a session drives. Connect and
// Handshake respect context cancellation; a pending Read is unblocked by
// Close.
type Transport interface {
	// Connect establishes the raw connection.
	Connect(ctx context.Context) error

	// Handshake performs the TLS and WebSocket upgrade for the given role.
	Handshake(ctx context.Context, role Role) error

	// Read returns the next inbound message payload. It returns ErrClosed
	// when the connection ended normally.
	Read() ([]byte, error)

	// Write sends one outbound message.
	Write(p []byte) error

	// Close tears the connection down, best-effort. It unblocks a pending
	// Read and is safe to call more than once and from other goroutines.
	Close() error
}

// WebSocket is the gorilla/websocket-backed Transport.
type WebSocket struct {
	cfg config.AddrConfig

	mu   sync.Mutex
	raw  net.Conn
	conn *websocket.Conn

	closeOnce sync.Once
	closedCh  chan struct{}
}

var _ Transport = (*WebSocket)(nil)

// NewWebSocket creates an unconnected transport for the given address.
func NewWebSocket(cfg config.AddrConfig) *WebSocket {
	return &WebSocket{
		cfg:      cfg,
		closedCh: make(chan struct{}),
	}
}

// FromConn adopts a server-accepted connection that is already past its
// handshake. Connect and Handshake become no-ops on the returned
// transport.
func FromConn(conn *websocket.Conn) *WebSocket {
	return &WebSocket{
		conn:     conn,
		closedCh: make(chan struct{}),
	}
}

// Connect dials the raw TCP connection. Failures are transient ConnErrors.
func (t *WebSocket) Connect(ctx context.Context) error {
	t.mu.Lock()
	already := t.conn != nil || t.raw != nil
	t.mu.Unlock()
	if already {
		return nil
	}

	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", t.cfg.Addr())
	if err != nil {
		return &ConnError{Op: "connect", Err: err}
	}

	t.mu.Lock()
	t.raw = raw
	t.mu.Unlock()
	return nil
}

// Handshake upgrades the established connection to WebSocket, performing
// the TLS handshake first when configured. Failures are permanent
// HandshakeErrors.
func (t *WebSocket) Handshake(ctx context.Context, role Role) error {
	t.mu.Lock()
	raw := t.raw
	upgraded := t.conn != nil
	t.mu.Unlock()

	if upgraded {
		return nil
	}
	if role == RoleServer {
		return &HandshakeError{Err: errors.New("server connections must be adopted with FromConn")}
	}
	if raw == nil {
		return &HandshakeError{Err: errors.New("handshake before connect")}
	}

	dialer := websocket.Dialer{
		NetDialContext: func(context.Context, string, string) (net.Conn, error) {
			return raw, nil
		},
		HandshakeTimeout: 10 * time.Second,
	}

	if t.cfg.UseTLS {
		tlsConf, err := t.clientTLS()
		if err != nil {
			return &HandshakeError{Err: err}
		}
		dialer.TLSClientConfig = tlsConf
	}

	conn, resp, err := dialer.DialContext(ctx, t.cfg.URL(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		raw.Close()
		return &HandshakeError{Err: err}
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	return nil
}

// clientTLS builds the client TLS configuration from the configured CA
// bundle.
func (t *WebSocket) clientTLS() (*tls.Config, error) {
	pem, err := os.ReadFile(t.cfg.TLS.CAFile)
	if err != nil {
		return nil, fmt.Errorf("read CA bundle: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates in %s", t.cfg.TLS.CAFile)
	}

	return &tls.Config{
		RootCAs:    pool,
		ServerName: t.cfg.Host,
		MinVersion: tls.VersionTLS12,
	}, nil
}

// Read returns the next inbound message payload. A close initiated by
// either side surfaces as ErrClosed; anything else is a transient
// ConnError.
func (t *WebSocket) Read() ([]byte, error) {
	conn := t.wsConn()
	if conn == nil {
		return nil, ErrClosed
	}

	_, payload, err := conn.ReadMessage()
	if err != nil {
		if t.isClosed() ||
			errors.Is(err, net.ErrClosed) ||
			websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, ErrClosed
		}
		return nil, &ConnError{Op: "read", Err: err}
	}
	return payload, nil
}

// Write sends one outbound text message.
func (t *WebSocket) Write(p []byte) error {
	conn := t.wsConn()
	if conn == nil {
		return ErrClosed
	}

	if err := conn.WriteMessage(websocket.TextMessage, p); err != nil {
		if t.isClosed() || errors.Is(err, net.ErrClosed) {
			return ErrClosed
		}
		return &ConnError{Op: "write", Err: err}
	}
	return nil
}

// Close attempts a graceful close handshake and releases the underlying
// connection. Errors are returned for logging only; the connection is
// torn down regardless.
func (t *WebSocket) Close() error {
	var closeErr error

	t.closeOnce.Do(func() {
		close(t.closedCh)

		t.mu.Lock()
		conn := t.conn
		raw := t.raw
		t.mu.Unlock()

		if conn != nil {
			deadline := time.Now().Add(closeGraceWait)
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
				closeErr = err
			}
			if err := conn.Close(); err != nil && closeErr == nil {
				closeErr = err
			}
			return
		}
		if raw != nil {
			closeErr = raw.Close()
		}
	})

	return closeErr
}

// wsConn returns the upgraded connection, or nil before the handshake or
// after close.
func (t *WebSocket) wsConn() *websocket.Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}

// isClosed reports whether Close has run.
func (t *WebSocket) isClosed() bool {
	select {
	case <-t.closedCh:
		return true
	default:
		return false
	}
}
