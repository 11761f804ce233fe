package protocol

import "sync"

// History is a thread-safe ring of the most recent messages, bounded by a
// fixed capacity. When full, the oldest message is discarded to make room.
//
// Sessions record each dispatched message here so recent traffic can be
// inspected after the fact, for example when diagnosing a failed session.
type History struct {
	mu       sync.RWMutex
	messages []Message
	start    int
	count    int
}

// NewHistory creates a history retaining up to capacity messages. A
// capacity below 1 is raised to 1.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 1
	}
	return &History{
		messages: make([]Message, capacity),
	}
}

// Record appends a message, evicting the oldest when the ring is full.
func (h *History) Record(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count < len(h.messages) {
		h.messages[(h.start+h.count)%len(h.messages)] = msg
		h.count++
		return
	}

	h.messages[h.start] = msg
	h.start = (h.start + 1) % len(h.messages)
}

// Recent returns the retained messages in arrival order, oldest first. The
// returned slice is a copy.
func (h *History) Recent() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.count == 0 {
		return nil
	}

	out := make([]Message, h.count)
	for i := 0; i < h.count; i++ {
		out[i] = h.messages[(h.start+i)%len(h.messages)]
	}
	return out
}

// Clear discards all retained messages.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.start = 0
	h.count = 0
}

// Len returns the number of retained messages.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Cap returns the retention capacity.
func (h *History) Cap() int {
	return len(h.messages)
}
