package protocol

import "go.uber.org/zap"

// Handler is the behavior pair a dispatcher routes messages to. Exactly
// one of the two hooks runs per dispatched message. Side effects live
// entirely inside the hooks.
type Handler interface {
	// OnNormal handles a message with normal urgency.
	OnNormal(msg Message)

	// OnUrgent handles an elevated or critical message.
	OnUrgent(msg Message)
}

// CallbackHandler adapts caller-supplied functions to the Handler
// interface. Nil functions are tolerated and skipped.
type CallbackHandler struct {
	Normal func(msg Message)
	Urgent func(msg Message)
}

// OnNormal invokes the normal callback when set.
func (h CallbackHandler) OnNormal(msg Message) {
	if h.Normal != nil {
		h.Normal(msg)
	}
}

// OnUrgent invokes the urgent callback when set.
func (h CallbackHandler) OnUrgent(msg Message) {
	if h.Urgent != nil {
		h.Urgent(msg)
	}
}

// SilentHandler discards every message.
type SilentHandler struct{}

// OnNormal discards the message.
func (SilentHandler) OnNormal(Message) {}

// OnUrgent discards the message.
func (SilentHandler) OnUrgent(Message) {}

// LogHandler writes every message to a structured logger. Urgent
// messages are logged at warn level.
type LogHandler struct {
	Logger *zap.Logger
}

// OnNormal logs the message at info level.
func (h LogHandler) OnNormal(msg Message) {
	h.logger().Info("message received",
		zap.String("urgency", msg.Urgency().String()),
		zap.String("payload", msg.Text()),
	)
}

// OnUrgent logs the message at warn level.
func (h LogHandler) OnUrgent(msg Message) {
	h.logger().Warn("urgent message received",
		zap.String("urgency", msg.Urgency().String()),
		zap.String("payload", msg.Text()),
	)
}

func (h LogHandler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

// Dispatcher routes messages to a handler based on urgency. The routing
// decision is its only effect; everything else happens in the handler.
type Dispatcher struct {
	handler Handler
	logger  *zap.Logger
}

// NewDispatcher creates a dispatcher for the given handler. A nil handler
// falls back to SilentHandler and a nil logger to a nop logger.
func NewDispatcher(handler Handler, logger *zap.Logger) *Dispatcher {
	if handler == nil {
		handler = SilentHandler{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{handler: handler, logger: logger}
}

// Dispatch routes the message: elevated and critical urgency take the
// urgent hook, everything else the normal hook. An unrecognized urgency
// value is treated as normal rather than rejected, so a peer speaking a
// newer protocol revision degrades gracefully instead of tearing the
// session down.
func (d *Dispatcher) Dispatch(msg Message) {
	d.logger.Debug("dispatching message",
		zap.String("urgency", msg.Urgency().String()),
		zap.Int("bytes", msg.Len()),
	)

	if msg.Urgency().Urgent() {
		d.handler.OnUrgent(msg)
		return
	}
	d.handler.OnNormal(msg)
}
