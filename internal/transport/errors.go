package transport

import (
	"errors"
	"fmt"
)

// ErrClosed signals that the peer closed the connection or that Close was
// called locally. It is a normal end-of-session condition, not a fault.
var ErrClosed = errors.New("transport: connection closed")

// ConnError is a transient transport fault (refused connection, timeout,
// broken pipe). Transient faults are retryable.
type ConnError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *ConnError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConnError) Unwrap() error { return e.Err }

// HandshakeError is a permanent fault during the TLS or WebSocket
// upgrade (bad certificate, rejected upgrade). Permanent faults must not
// be retried.
type HandshakeError struct {
	Err error
}

// Error implements the error interface.
func (e *HandshakeError) Error() string {
	return fmt.Sprintf("transport: handshake: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *HandshakeError) Unwrap() error { return e.Err }

// Retryable reports whether a failure is transient. Only connection-level
// faults qualify; handshake failures and closed connections do not.
func Retryable(err error) bool {
	var ce *ConnError
	return errors.As(err, &ce)
}
