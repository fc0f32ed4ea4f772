package session

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one conversational turn within a session.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// NewMessage builds a message stamped with the current time.
func NewMessage(role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// Session is the unit of storage: per-user conversational state keyed by an
// opaque id. Timestamps are unix seconds to match the wire format.
type Session struct {
	SessionID    string         `json:"session_id"`
	CreatedAt    float64        `json:"created_at"`
	LastAccessed float64        `json:"last_accessed"`
	UserID       string         `json:"user_id"`
	Metadata     map[string]any `json:"metadata"`
	Messages     []Message      `json:"messages"`
	MessageCount int            `json:"message_count"`
}

func newSession(userID string, metadata map[string]any) *Session {
	now := unixNow()
	if metadata == nil {
		metadata = make(map[string]any)
	}
	return &Session{
		SessionID:    uuid.NewString(),
		CreatedAt:    now,
		LastAccessed: now,
		UserID:       userID,
		Metadata:     metadata,
		Messages:     []Message{},
		MessageCount: 0,
	}
}

// touch refreshes last_accessed, never moving it backwards.
func (s *Session) touch() {
	now := unixNow()
	if now > s.LastAccessed {
		s.LastAccessed = now
	}
}

// append adds a message, defaulting its timestamp, and keeps message_count
// in line with the messages list.
func (s *Session) append(msg Message) {
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	s.Messages = append(s.Messages, msg)
	s.MessageCount = len(s.Messages)
}

// merge applies a patch, skipping the protected fields. Unknown keys land in
// metadata; user_id is only set if the session does not have one yet.
func (s *Session) merge(patch map[string]any) {
	if s.Metadata == nil {
		s.Metadata = make(map[string]any)
	}

	for key, value := range patch {
		switch key {
		case "session_id", "created_at", "messages", "message_count", "last_accessed":
			// protected

		case "user_id":
			if s.UserID == "" {
				if uid, ok := value.(string); ok {
					s.UserID = uid
				}
			}

		case "metadata":
			if meta, ok := value.(map[string]any); ok {
				for mk, mv := range meta {
					s.Metadata[mk] = mv
				}
			}

		default:
			s.Metadata[key] = value
		}
	}
}

// clone returns an independent copy so callers can never race against the
// cached record.
func (s *Session) clone() *Session {
	cp := *s
	cp.Metadata = make(map[string]any, len(s.Metadata))
	for k, v := range s.Metadata {
		cp.Metadata[k] = v
	}
	cp.Messages = append([]Message(nil), s.Messages...)
	return &cp
}

func unixNow() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
