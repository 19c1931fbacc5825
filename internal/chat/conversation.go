// Package chat implements the interactive chat core: the append-only
// conversation history, per-turn resource budgets, the citation ledger, and
// the orchestration loop that alternates between model completions and MCP
// tool dispatch until the model produces a final answer or a budget trips.
package chat

import (
	"sync"

	"github.com/MrWong99/fledge/pkg/provider/llm"
)

// Conversation is the append-only ordered message history of a session.
// It is safe for concurrent use.
type Conversation struct {
	mu       sync.RWMutex
	messages []llm.Message
}

// NewConversation returns an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{}
}

// Append adds messages to the end of the history.
func (c *Conversation) Append(msgs ...llm.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msgs...)
}

// Messages returns a snapshot copy of the history in order.
func (c *Conversation) Messages() []llm.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]llm.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages in the history.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Clear removes all messages.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}

// LastAssistantText returns the content of the most recent assistant message
// that carries text, or "" when there is none.
func (c *Conversation) LastAssistantText() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := len(c.messages) - 1; i >= 0; i-- {
		m := c.messages[i]
		if m.Role == llm.RoleAssistant && m.Content != "" {
			return m.Content
		}
	}
	return ""
}
