// Package session drives the lifecycle of one logical connection: connect
// under retry, upgrade, read and dispatch inbound messages, then tear
// down. A session runs on a single goroutine so its suspension points are
// strictly sequential; only Stop touches it from outside.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alertwire/alertwire/internal/backoff"
	"github.com/alertwire/alertwire/internal/protocol"
	"github.com/alertwire/alertwire/internal/retry"
	"github.com/alertwire/alertwire/internal/transport"
)

// Config carries the collaborators a session is built with. Zero fields
// get safe defaults.
type Config struct {
	// Backoff governs connect retries. Defaults to the exponential policy
	// with package defaults.
	Backoff backoff.Policy

	// Dispatcher routes inbound messages. Defaults to a silent dispatcher.
	Dispatcher *protocol.Dispatcher

	// Classify wraps an inbound payload into a Message. Urgency is
	// assigned by application logic, not inferred from bytes; the default
	// tags everything normal.
	Classify func(payload []byte) protocol.Message

	// Logger receives lifecycle events. Defaults to a nop logger.
	Logger *zap.Logger

	// HistorySize bounds the ring of recent inbound messages kept for
	// inspection. Defaults to 32.
	HistorySize int

	// OnStateChange, when set, observes every state transition. It is
	// called synchronously from the session goroutine.
	OnStateChange func(State)
}

// Session owns exactly one transport handle and drives it through the
// lifecycle states. Sessions are not copied; construct with New or
// Accepted and share nothing between instances.
type Session struct {
	id        string
	transport transport.Transport
	engine    *retry.Engine[struct{}]
	dispatch  *protocol.Dispatcher
	classify  func([]byte) protocol.Message
	history   *protocol.History
	logger    *zap.Logger
	onState   func(State)
	accepted  bool

	state   atomic.Int32
	running atomic.Bool
	started atomic.Bool
	stopped atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	err    error

	done chan struct{}
}

// New creates a client session over an unconnected transport. The session
// starts in Idle; nothing happens until Start.
func New(t transport.Transport, cfg Config) *Session {
	return newSession(t, cfg, false)
}

// Accepted creates a session over a server-accepted transport that is
// already past its handshake. Start skips Connecting and Handshaking and
// begins the read loop directly.
func Accepted(t transport.Transport, cfg Config) *Session {
	return newSession(t, cfg, true)
}

func newSession(t transport.Transport, cfg Config, accepted bool) *Session {
	policy := cfg.Backoff
	if policy == nil {
		policy = backoff.NewExponential(backoff.DefaultSpec())
	}
	dispatch := cfg.Dispatcher
	if dispatch == nil {
		dispatch = protocol.NewDispatcher(protocol.SilentHandler{}, nil)
	}
	classify := cfg.Classify
	if classify == nil {
		classify = func(payload []byte) protocol.Message {
			return protocol.NewMessage(payload, protocol.UrgencyNormal)
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	historySize := cfg.HistorySize
	if historySize <= 0 {
		historySize = 32
	}

	id := uuid.New().String()
	return &Session{
		id:        id,
		transport: t,
		engine:    retry.NewEngine[struct{}](policy),
		dispatch:  dispatch,
		classify:  classify,
		history:   protocol.NewHistory(historySize),
		logger:    logger.With(zap.String("session_id", id)),
		onState:   cfg.OnStateChange,
		accepted:  accepted,
		done:      make(chan struct{}),
	}
}

// ID returns the session's identity.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// IsRunning reports whether the session's liveness flag is set.
func (s *Session) IsRunning() bool { return s.running.Load() }

// Done is closed once the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} { return s.done }

// Recent returns the most recently dispatched inbound messages, oldest
// first.
func (s *Session) Recent() []protocol.Message { return s.history.Recent() }

// Err returns the error that moved the session to Failed, or the error
// from the open phase if any. It is stable once Done is closed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Start launches the session goroutine and returns immediately. The
// initial payload, if non-empty, is written as the first outbound
// message once the connection is open. Start is valid exactly once;
// later calls and calls after Stop do nothing, even when the Stop ran
// concurrently.
func (s *Session) Start(initial []byte) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	if s.stopped.Load() {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	// A Stop racing the CAS above may have read a nil cancel func.
	// Re-checking here keeps the goroutine from launching.
	if s.stopped.Load() {
		cancel()
		return
	}

	s.running.Store(true)
	go s.run(ctx, initial)
}

// Stop requests teardown: it clears the liveness flag, cancels any
// pending backoff delay, and closes the transport to unblock a pending
// read. It never waits for the state machine to finish and is safe to
// call repeatedly, from any goroutine, and before Start.
func (s *Session) Stop() {
	s.stopped.Store(true)
	s.running.Store(false)

	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	if s.started.Load() {
		if err := s.transport.Close(); err != nil {
			s.logger.Debug("close during stop", zap.Error(err))
		}
	}
}

// run is the session goroutine. Every suspension point (retry delays,
// the handshake, each read) lives here, so no two are ever pending at
// once for the same session.
func (s *Session) run(ctx context.Context, initial []byte) {
	defer close(s.done)
	defer s.running.Store(false)

	if !s.accepted {
		if !s.connect(ctx) {
			return
		}
	}

	s.setState(StateOpen)
	s.open(initial)

	s.setState(StateClosing)
	if err := s.transport.Close(); err != nil {
		s.logger.Warn("close handshake", zap.Error(err))
	}
	s.setState(StateClosed)
	s.logger.Info("session closed")
}

// connect drives Connecting and Handshaking. It reports false after
// moving the session to Failed, releasing the transport on the way out.
func (s *Session) connect(ctx context.Context) bool {
	s.setState(StateConnecting)

	out := s.engine.DoIf(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.transport.Connect(ctx)
	}, transport.Retryable)

	if out.Failed() {
		s.logger.Error("connect failed",
			zap.Int("attempts", out.Attempts),
			zap.Duration("total_delay", out.TotalDelay),
			zap.Error(out.Err),
		)
		s.fail(out.Err)
		return false
	}
	s.logger.Info("connected",
		zap.Int("attempts", out.Attempts),
		zap.Duration("total_delay", out.TotalDelay),
	)

	s.setState(StateHandshaking)
	if err := s.transport.Handshake(ctx, transport.RoleClient); err != nil {
		s.logger.Error("handshake failed", zap.Error(err))
		s.fail(err)
		return false
	}

	return true
}

// open writes the initial payload and runs the read/dispatch loop. Each
// inbound message is dispatched to completion before the next read, so
// dispatch order matches arrival order.
func (s *Session) open(initial []byte) {
	if len(initial) > 0 {
		if err := s.transport.Write(initial); err != nil {
			s.logger.Warn("initial write", zap.Error(err))
			return
		}
	}

	for s.running.Load() {
		payload, err := s.transport.Read()
		if err != nil {
			if errors.Is(err, transport.ErrClosed) {
				s.logger.Debug("connection closed")
			} else {
				s.logger.Warn("read failed", zap.Error(err))
				s.setErr(err)
			}
			return
		}

		msg := s.classify(payload)
		s.history.Record(msg)
		s.dispatch.Dispatch(msg)
	}
}

// fail moves the session to Failed and releases the transport.
func (s *Session) fail(err error) {
	s.setErr(err)
	if closeErr := s.transport.Close(); closeErr != nil {
		s.logger.Debug("close after failure", zap.Error(closeErr))
	}
	s.setState(StateFailed)
}

func (s *Session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *Session) setState(next State) {
	s.state.Store(int32(next))
	s.logger.Debug("state change", zap.Stringer("state", next))
	if s.onState != nil {
		s.onState(next)
	}
}
