// Package memory keeps bounded per-session conversation history and detects
// follow-up questions.
package memory

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pario-ai/supportdesk/pkg/models"
)

// followUpPhrases mark a query as leaning on earlier turns.
var followUpPhrases = []string{
	"what about", "how about", "and", "also", "too", "what if",
	"can i also", "do you also", "is there", "another question",
	"one more", "additionally",
}

const (
	shortQueryTokens = 3
	topicWindow      = 5
)

// Conversation is the message log of one session. All methods are safe for
// concurrent use; appends are applied in the order they acquire the lock.
type Conversation struct {
	mu          sync.Mutex
	id          string
	maxMessages int
	messages    []models.Message
	meta        models.SessionMetadata
	lastActive  time.Time
	now         func() time.Time
}

// NewConversation creates an empty conversation keeping at most maxMessages.
func NewConversation(id string, maxMessages int) *Conversation {
	return newConversation(id, maxMessages, time.Now)
}

func newConversation(id string, maxMessages int, now func() time.Time) *Conversation {
	if maxMessages < 1 {
		maxMessages = 1
	}
	t := now()
	return &Conversation{
		id:          id,
		maxMessages: maxMessages,
		meta:        models.SessionMetadata{CreatedAt: t},
		lastActive:  t,
		now:         now,
	}
}

// ID returns the session id.
func (c *Conversation) ID() string { return c.id }

// AddMessage appends a message and drops the oldest ones beyond the limit.
// Role is stored as given.
func (c *Conversation) AddMessage(role, content string, metadata map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now()
	c.messages = append(c.messages, models.Message{
		Role:      role,
		Content:   content,
		Timestamp: t,
		Metadata:  metadata,
	})
	c.meta.TotalMessages++
	c.lastActive = t

	if over := len(c.messages) - c.maxMessages; over > 0 {
		kept := make([]models.Message, c.maxMessages)
		copy(kept, c.messages[over:])
		c.messages = kept
	}
}

// Context renders the last n messages, oldest first, one per line.
func (c *Conversation) Context(n int) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n <= 0 || len(c.messages) == 0 {
		return ""
	}
	start := len(c.messages) - n
	if start < 0 {
		start = 0
	}

	lines := make([]string, 0, len(c.messages)-start)
	for _, m := range c.messages[start:] {
		lines = append(lines, fmt.Sprintf("%s: %s", speaker(m.Role), m.Content))
	}
	return strings.Join(lines, "\n")
}

// speaker labels a context line. Every role other than user reads as the assistant.
func speaker(role string) string {
	if role == models.RoleUser {
		return "User"
	}
	return "Assistant"
}

// IsFollowUp reports whether query looks like it depends on earlier turns:
// it is very short, uses a follow-up phrase, or mentions a recent topic.
func (c *Conversation) IsFollowUp(query string) bool {
	if len(strings.Fields(query)) <= shortQueryTokens {
		return true
	}

	lower := strings.ToLower(query)
	for _, p := range followUpPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}

	for _, topic := range c.recentTopics() {
		if strings.Contains(lower, strings.ToLower(topic)) {
			return true
		}
	}
	return false
}

// recentTopics collects "category" metadata from the last few messages.
func (c *Conversation) recentTopics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := len(c.messages) - topicWindow
	if start < 0 {
		start = 0
	}
	var topics []string
	for _, m := range c.messages[start:] {
		if cat, ok := m.Metadata["category"].(string); ok && cat != "" {
			topics = append(topics, cat)
		}
	}
	return topics
}

// HasContext reports whether any message has been kept.
func (c *Conversation) HasContext() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages) > 0
}

// LastUserQuery returns the newest user message.
func (c *Conversation) LastUserQuery() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == models.RoleUser {
			return c.messages[i].Content, true
		}
	}
	return "", false
}

// History returns a copy of the kept messages, oldest first.
func (c *Conversation) History() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of kept messages.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// Metadata returns the session bookkeeping.
func (c *Conversation) Metadata() models.SessionMetadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.meta
}

// Clear drops all messages. Creation time and the running total are kept.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}

// LastActive returns the time of the last appended message, or creation.
func (c *Conversation) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

// ToRecord exports the conversation.
func (c *Conversation) ToRecord() models.SessionRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := make([]models.Message, len(c.messages))
	copy(msgs, c.messages)
	return models.SessionRecord{
		SessionID:   c.id,
		MaxMessages: c.maxMessages,
		Messages:    msgs,
		Metadata:    c.meta,
	}
}

// FromRecord rebuilds a conversation from an exported record. A record
// without a limit gets defaultMax.
func FromRecord(rec models.SessionRecord, defaultMax int) *Conversation {
	limit := rec.MaxMessages
	if limit < 1 {
		limit = defaultMax
	}
	c := newConversation(rec.SessionID, limit, time.Now)
	c.meta = rec.Metadata
	if c.meta.CreatedAt.IsZero() {
		c.meta.CreatedAt = c.lastActive
	}
	msgs := rec.Messages
	if len(msgs) > c.maxMessages {
		msgs = msgs[len(msgs)-c.maxMessages:]
	}
	c.messages = make([]models.Message, len(msgs))
	copy(c.messages, msgs)
	if n := len(c.messages); n > 0 {
		c.lastActive = c.messages[n-1].Timestamp
	}
	return c
}
