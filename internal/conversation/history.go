package conversation

import "sync"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of the conversation transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// History is the ordered, append-only message log. The single mutation it
// allows beyond appending is rewriting the content of the last assistant
// message while a reply stream is filling it.
type History struct {
	mu   sync.Mutex
	msgs []Message
}

func NewHistory() *History {
	return &History{}
}

// Reset drops every message.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = nil
}

// Replace swaps in a whole transcript.
func (h *History) Replace(msgs []Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append([]Message(nil), msgs...)
}

// Add appends one message.
func (h *History) Add(role, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, Message{Role: role, Content: content})
}

// StartAssistantMessage opens a new empty assistant placeholder for an
// incoming reply stream. Any stale empty-content message from an aborted
// earlier stream is dropped first, so at most one placeholder ever exists.
func (h *History) StartAssistantMessage() {
	h.mu.Lock()
	defer h.mu.Unlock()
	kept := h.msgs[:0]
	for _, m := range h.msgs {
		if m.Content != "" {
			kept = append(kept, m)
		}
	}
	h.msgs = append(kept, Message{Role: RoleAssistant})
}

// UpdateLastAssistant rewrites the content of the most recent assistant
// message in place. A no-op when no assistant message exists.
func (h *History) UpdateLastAssistant(content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.msgs) - 1; i >= 0; i-- {
		if h.msgs[i].Role == RoleAssistant {
			h.msgs[i].Content = content
			return
		}
	}
}

// Messages returns a copy of the transcript.
func (h *History) Messages() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Message(nil), h.msgs...)
}

// Len reports the number of messages.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.msgs)
}
