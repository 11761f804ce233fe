package session

// State is a point in the session lifecycle. The machine moves
// Idle → Connecting → Handshaking → Open → Closing → Closed, with Failed
// as an absorbing state reachable from Connecting and Handshaking.
// Closed and Failed are terminal; a new Session must be constructed to
// reconnect.
type State int32

const (
	// StateIdle is the created-but-not-started state.
	StateIdle State = iota

	// StateConnecting runs the transport connect under retry.
	StateConnecting

	// StateHandshaking runs the TLS/WebSocket upgrade.
	StateHandshaking

	// StateOpen runs the read/dispatch loop.
	StateOpen

	// StateClosing attempts the graceful close handshake.
	StateClosing

	// StateClosed is the terminal state after teardown.
	StateClosed

	// StateFailed is the terminal state after retry exhaustion or a
	// permanent handshake failure.
	StateFailed
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no transition leaves the state.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed
}
