package store

import (
	"slices"
	"time"
)

// Fixed durable-slot keys.
const (
	// ConversationKey holds the serialized conversation log.
	ConversationKey = "rag-chat-messages"
	// SessionKey holds the identity provider's persisted session.
	SessionKey = "rag-chat-auth"
)

// MessageRole defines the role of a message in the conversation.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r MessageRole) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// AttachmentType tags the kind of media attached to an assistant reply.
// Unrecognized tags are kept as-is so they survive a round trip.
type AttachmentType string

const (
	AttachmentImage AttachmentType = "image"
)

// Attachment is auxiliary media rendered alongside an assistant reply.
type Attachment struct {
	Type     AttachmentType `json:"type"`
	Source   string         `json:"source"`
	Title    string         `json:"title,omitempty"`
	SeriesID string         `json:"series_id,omitempty"`
}

// Known reports whether the attachment type is one renderers understand.
// Renderers skip unknown attachments instead of failing.
func (a Attachment) Known() bool {
	switch a.Type {
	case AttachmentImage:
		return true
	default:
		return false
	}
}

// Message is one turn in the conversation. Messages are immutable once appended.
type Message struct {
	ID          string       `json:"id"`
	Role        MessageRole  `json:"role"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"timestamp"`
}

// Clone returns a copy of m that shares no memory with it.
func (m Message) Clone() Message {
	m.Attachments = slices.Clone(m.Attachments)
	return m
}
