package agentsession

import "sync"

// responseBufferCap bounds the live response character buffer.
const responseBufferCap = 8 * 1024

// messageBufferCap bounds the number of buffered UI messages.
const messageBufferCap = 400

// buffers holds the two bounded deques a session's reader goroutine
// writes to. The reader is the single writer; the dispatcher is the
// single reader. Every method takes mu, so clearAll during reconnect and
// snapshots never race the writer.
type buffers struct {
	mu       sync.Mutex
	response []rune
	messages []SessionUpdate
}

// appendResponse appends text to the response buffer, dropping the oldest
// runes (ring-buffer semantics) once the cap is exceeded.
func (b *buffers) appendResponse(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.response = append(b.response, []rune(text)...)
	if over := len(b.response) - responseBufferCap; over > 0 {
		b.response = b.response[over:]
	}
}

// appendMessage appends a SessionUpdate to the message buffer, dropping
// the oldest entry once the cap is exceeded.
func (b *buffers) appendMessage(u SessionUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.messages = append(b.messages, u)
	if over := len(b.messages) - messageBufferCap; over > 0 {
		b.messages = b.messages[over:]
	}
}

// replay returns a snapshot of buffered messages without draining the
// buffer, so a late-reconnecting sink still observes history.
func (b *buffers) replay() []SessionUpdate {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]SessionUpdate, len(b.messages))
	copy(out, b.messages)
	return out
}

// responseSnapshot returns the currently buffered response text.
func (b *buffers) responseSnapshot() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.response)
}

// clearAll empties both buffers, used when a sink reconnects and wants a
// clean slate instead of replay.
func (b *buffers) clearAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.response = nil
	b.messages = nil
}
