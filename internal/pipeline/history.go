package pipeline

import (
	"slices"
	"strings"
	"sync"

	"github.com/MrWong99/voxcall/internal/persistence"
	"github.com/MrWong99/voxcall/pkg/provider/llm"
)

// History is the append-only conversation of one call. It is safe for
// concurrent use.
type History struct {
	mu       sync.RWMutex
	messages []llm.Message
}

// NewHistory returns a history seeded with systemPrompt. A blank prompt
// yields an empty history.
func NewHistory(systemPrompt string) *History {
	h := &History{}
	if p := strings.TrimSpace(systemPrompt); p != "" {
		h.messages = append(h.messages, llm.Message{Role: llm.RoleSystem, Content: p})
	}
	return h
}

// Append adds a message to the end of the history.
func (h *History) Append(role, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, llm.Message{Role: role, Content: content})
}

// Messages returns a copy of the conversation in order.
func (h *History) Messages() []llm.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.messages)
}

// Len returns the number of messages, including the system prompt.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Transcript returns the user and assistant messages as transcript items.
// System messages are omitted.
func (h *History) Transcript() []persistence.Item {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var items []persistence.Item
	for _, m := range h.messages {
		if m.Role == llm.RoleUser || m.Role == llm.RoleAssistant {
			items = append(items, persistence.Item{Role: m.Role, Content: m.Content})
		}
	}
	return items
}
