package session

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidMessage signals a caller bug: AddMessage was given a message
// with no role or no content. It is surfaced synchronously and never
// retried or swallowed.
var ErrInvalidMessage = errors.New("session: message requires a role and content")

// Store is the session-store contract shared by the local and remote
// implementations. Backend failures never cross this boundary: callers see
// either a valid (possibly locally served) result or a not-found, which are
// indistinguishable by design.
//
// Operations on a single session id are not serialized; concurrent writers
// race via read-merge-write and the backend's last-write-wins semantics
// apply.
type Store interface {
	// CreateSession always succeeds, generating a fresh id. A non-empty
	// userID registers the session under the user index.
	CreateSession(ctx context.Context, userID string, metadata map[string]any) (string, error)

	// GetSession returns nil when the session is absent. A hit refreshes
	// last_accessed and the TTL as a side effect.
	GetSession(ctx context.Context, sessionID string) (*Session, error)

	// UpdateSession merges patch into the session, excluding protected
	// fields. Returns false if the session is absent.
	UpdateSession(ctx context.Context, sessionID string, patch map[string]any) (bool, error)

	// DeleteSession removes the record and deregisters it from the user
	// index. Returns false, never an error, for a missing id.
	DeleteSession(ctx context.Context, sessionID string) (bool, error)

	// AddMessage appends a message, timestamping it if needed, and
	// refreshes the TTL. With createIfMissing, a session absent from both
	// tiers is synthesized instead of failing.
	AddMessage(ctx context.Context, sessionID string, msg Message, createIfMissing bool) (bool, error)

	// GetSessionMessages returns the ordered message list, or nil when the
	// session is absent.
	GetSessionMessages(ctx context.Context, sessionID string) ([]Message, error)

	// GetUserSessions resolves the user index, lazily dropping ids whose
	// session no longer exists.
	GetUserSessions(ctx context.Context, userID string) ([]*Session, error)

	// CleanupExpiredSessions removes sessions idle longer than olderThan and
	// returns how many were swept. Best-effort for the remote store, where
	// the backend's own TTL is the authority.
	CleanupExpiredSessions(ctx context.Context, olderThan time.Duration) (int, error)
}

func sessionKey(sessionID string) string {
	return "session:" + sessionID
}

func userKey(userID string) string {
	return "user_sessions:" + userID
}
