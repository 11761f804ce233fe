// Package protocol defines the message model shared by sessions and the
// urgency-based dispatcher that routes inbound messages to handlers.
package protocol

// Urgency classifies a message's priority.
type Urgency uint8

const (
	// UrgencyNormal is the default priority.
	UrgencyNormal Urgency = iota

	// UrgencyElevated marks a message that takes the urgent path.
	UrgencyElevated

	// UrgencyCritical marks an emergency message.
	UrgencyCritical
)

// String returns the canonical name of the urgency level.
func (u Urgency) String() string {
	switch u {
	case UrgencyNormal:
		return "normal"
	case UrgencyElevated:
		return "elevated"
	case UrgencyCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParseUrgency maps a name to an urgency level. Unrecognized input maps
// to UrgencyNormal.
func ParseUrgency(s string) Urgency {
	switch s {
	case "critical", "CRITICAL":
		return UrgencyCritical
	case "elevated", "ELEVATED":
		return UrgencyElevated
	default:
		return UrgencyNormal
	}
}

// Urgent reports whether the level takes the urgent dispatch path.
// Elevated and Critical share that path; dispatch is a binary split,
// not a three-way branch.
func (u Urgency) Urgent() bool {
	return u == UrgencyElevated || u == UrgencyCritical
}

// Message pairs a byte payload with an urgency tag. It has value
// semantics: messages are freely copyable and immutable once constructed.
type Message struct {
	payload []byte
	urgency Urgency
}

// NewMessage builds a message from raw bytes. The payload is copied, so
// the caller may reuse its buffer. An empty payload is valid.
func NewMessage(payload []byte, urgency Urgency) Message {
	buf := make([]byte, len(payload))
	copy(buf, payload)
	return Message{payload: buf, urgency: urgency}
}

// NewTextMessage builds a message from text.
func NewTextMessage(text string, urgency Urgency) Message {
	return Message{payload: []byte(text), urgency: urgency}
}

// Payload returns the message bytes. Callers must not modify the
// returned slice.
func (m Message) Payload() []byte { return m.payload }

// Text returns the payload as a string.
func (m Message) Text() string { return string(m.payload) }

// Urgency returns the message's urgency tag.
func (m Message) Urgency() Urgency { return m.urgency }

// Len returns the payload length in bytes.
func (m Message) Len() int { return len(m.payload) }

// Empty reports whether the payload has zero length.
func (m Message) Empty() bool { return len(m.payload) == 0 }
