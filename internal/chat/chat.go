package chat

import (
	"time"

	"github.com/google/uuid"
)

// Role tags the author of a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
	// RoleSystem is reserved for locally-synthesized notices (e.g. the error
	// reply committed when a completion fails). System messages are never sent
	// to the completion service under their own role.
	RoleSystem Role = "system"
)

// Message is one conversational turn. Content is immutable once the turn is
// committed; partial streamed output lives in the exchange buffer, not here.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage builds a message with a fresh id and the current time.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// DefaultTitle is the label a session carries until its first user message.
const DefaultTitle = "New Chat"

// Session is one conversation thread. Messages are append-only and ordered;
// individual messages are never edited or removed.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewSession builds an empty session titled DefaultTitle.
func NewSession() Session {
	return Session{
		ID:        uuid.NewString(),
		Title:     DefaultTitle,
		Messages:  []Message{},
		UpdatedAt: time.Now(),
	}
}

// Clone returns a deep copy of the session so callers can hand out snapshots
// without sharing the message slice.
func (s Session) Clone() Session {
	out := s
	out.Messages = make([]Message, len(s.Messages))
	copy(out.Messages, s.Messages)
	return out
}

const titleLimit = 30

// TitleFromMessage derives a session title from its first user message: the
// first 30 characters, with an ellipsis marker when the text was longer.
func TitleFromMessage(text string) string {
	runes := []rune(text)
	if len(runes) <= titleLimit {
		return text
	}
	return string(runes[:titleLimit]) + "..."
}
