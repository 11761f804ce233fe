package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewMessagePreservesLength(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty", nil},
		{"zero length", []byte{}},
		{"text", []byte("ping")},
		{"binary with zeros", []byte{0x00, 0xff, 0x00, 0x7f}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := NewMessage(tt.payload, UrgencyNormal)
			assert.Equal(t, len(tt.payload), msg.Len())
			assert.Equal(t, string(tt.payload), msg.Text())
		})
	}
}

func TestNewMessageCopiesPayload(t *testing.T) {
	buf := []byte("original")
	msg := NewMessage(buf, UrgencyCritical)

	buf[0] = 'X'
	assert.Equal(t, "original", msg.Text())
}

func TestNewTextMessage(t *testing.T) {
	msg := NewTextMessage("ping", UrgencyCritical)
	assert.Equal(t, "ping", msg.Text())
	assert.Equal(t, UrgencyCritical, msg.Urgency())
	assert.Equal(t, 4, msg.Len())
	assert.False(t, msg.Empty())
}

func TestEmptyMessageIsValid(t *testing.T) {
	msg := NewTextMessage("", UrgencyElevated)
	assert.True(t, msg.Empty())
	assert.Equal(t, 0, msg.Len())
	assert.Equal(t, UrgencyElevated, msg.Urgency())
}

func TestUrgencyString(t *testing.T) {
	assert.Equal(t, "normal", UrgencyNormal.String())
	assert.Equal(t, "elevated", UrgencyElevated.String())
	assert.Equal(t, "critical", UrgencyCritical.String())
	assert.Equal(t, "unknown", Urgency(42).String())
}

func TestParseUrgency(t *testing.T) {
	assert.Equal(t, UrgencyCritical, ParseUrgency("critical"))
	assert.Equal(t, UrgencyCritical, ParseUrgency("CRITICAL"))
	assert.Equal(t, UrgencyElevated, ParseUrgency("elevated"))
	assert.Equal(t, UrgencyNormal, ParseUrgency("normal"))

	// Unrecognized input falls back to normal.
	assert.Equal(t, UrgencyNormal, ParseUrgency("red alert"))
	assert.Equal(t, UrgencyNormal, ParseUrgency(""))
}

func TestUrgencyBinarySplit(t *testing.T) {
	assert.False(t, UrgencyNormal.Urgent())
	assert.True(t, UrgencyElevated.Urgent())
	assert.True(t, UrgencyCritical.Urgent())
	assert.False(t, Urgency(42).Urgent())
}
