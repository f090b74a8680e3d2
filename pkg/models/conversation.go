package models

import "time"

// Message roles used by the orchestrator. Other values are stored as given.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn in a conversation.
type Message struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// SessionMetadata tracks per-session bookkeeping that survives truncation.
type SessionMetadata struct {
	CreatedAt     time.Time `json:"created_at"`
	TotalMessages int       `json:"total_messages"`
}

// SessionRecord is the exported form of a conversation.
type SessionRecord struct {
	SessionID   string          `json:"session_id"`
	MaxMessages int             `json:"max_messages"`
	Messages    []Message       `json:"messages"`
	Metadata    SessionMetadata `json:"metadata"`
}
