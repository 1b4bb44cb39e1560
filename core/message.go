package core

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	// RoleUser marks an inbound end-user message.
	RoleUser Role = "user"
	// RoleAssistant marks a generated reply.
	RoleAssistant Role = "assistant"
	// RoleSystem marks control or bookkeeping messages.
	RoleSystem Role = "system"
)

// Message is one entry in a session's ordered history. Content is immutable
// once stored; the only controlled mutation is validation truncation, which
// happens before the message is appended.
type Message struct {
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Sequence  int            `json:"sequence"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewMessage builds an unsequenced message; the session store assigns the
// sequence number on append.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content, Timestamp: time.Now().UTC()}
}

// WithMetadata returns a copy of the message with key set in its metadata.
func (m Message) WithMetadata(key string, value any) Message {
	md := make(map[string]any, len(m.Metadata)+1)
	for k, v := range m.Metadata {
		md[k] = v
	}
	md[key] = value
	m.Metadata = md
	return m
}

// NewID generates a unique identifier for requests, sessions and invocations.
func NewID() string { return uuid.NewString() }
