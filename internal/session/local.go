package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/angeloszaimis/session-cache/internal/fallback"
)

// LocalStore keeps sessions purely in the process-local fallback cache.
// It is the store of record when no backend URI is configured, and the
// reference implementation of the Store contract.
type LocalStore struct {
	cache  *fallback.Cache
	ttl    time.Duration
	logger *slog.Logger

	// writeMu serializes read-merge-write cycles so a successful AddMessage
	// is never lost to a concurrent writer within this process.
	writeMu   sync.Mutex
	indexMu   sync.Mutex
	userIndex map[string]map[string]struct{}
}

var _ Store = (*LocalStore)(nil)

func NewLocalStore(cache *fallback.Cache, ttl time.Duration, logger *slog.Logger) *LocalStore {
	return &LocalStore{
		cache:     cache,
		ttl:       ttl,
		logger:    logger,
		userIndex: make(map[string]map[string]struct{}),
	}
}

func (s *LocalStore) CreateSession(_ context.Context, userID string, metadata map[string]any) (string, error) {
	sess := newSession(userID, metadata)
	s.cache.Put(sessionKey(sess.SessionID), sess, s.ttl)

	if userID != "" {
		s.register(userID, sess.SessionID)
	}

	s.logger.Debug("Session created",
		slog.String("session_id", sess.SessionID),
		slog.String("user_id", userID))

	return sess.SessionID, nil
}

func (s *LocalStore) GetSession(_ context.Context, sessionID string) (*Session, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	sess := s.lookup(sessionID)
	if sess == nil {
		return nil, nil
	}

	sess.touch()
	s.cache.Put(sessionKey(sessionID), sess, s.ttl)
	return sess.clone(), nil
}

func (s *LocalStore) UpdateSession(_ context.Context, sessionID string, patch map[string]any) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	sess := s.lookup(sessionID)
	if sess == nil {
		return false, nil
	}

	sess.merge(patch)
	sess.touch()
	s.cache.Put(sessionKey(sessionID), sess, s.ttl)
	return true, nil
}

func (s *LocalStore) DeleteSession(_ context.Context, sessionID string) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	sess := s.lookup(sessionID)
	existed := s.cache.Delete(sessionKey(sessionID))

	if sess != nil && sess.UserID != "" {
		s.deregister(sess.UserID, sessionID)
	}

	return existed, nil
}

func (s *LocalStore) AddMessage(_ context.Context, sessionID string, msg Message, createIfMissing bool) (bool, error) {
	if err := validateMessage(msg); err != nil {
		return false, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	sess := s.lookup(sessionID)
	if sess == nil {
		if !createIfMissing {
			return false, nil
		}
		sess = newSession("", nil)
		sess.SessionID = sessionID
		s.logger.Debug("Synthesized session for message on missing id",
			slog.String("session_id", sessionID))
	}

	sess.append(msg)
	sess.touch()
	s.cache.Put(sessionKey(sessionID), sess, s.ttl)
	return true, nil
}

func (s *LocalStore) GetSessionMessages(ctx context.Context, sessionID string) ([]Message, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil || sess == nil {
		return nil, err
	}
	return sess.Messages, nil
}

func (s *LocalStore) GetUserSessions(_ context.Context, userID string) ([]*Session, error) {
	s.indexMu.Lock()
	ids := make([]string, 0, len(s.userIndex[userID]))
	for id := range s.userIndex[userID] {
		ids = append(ids, id)
	}
	s.indexMu.Unlock()

	sessions := make([]*Session, 0, len(ids))
	for _, id := range ids {
		s.writeMu.Lock()
		sess := s.lookup(id)
		s.writeMu.Unlock()

		if sess == nil {
			// Stale index entry: the session expired or was deleted.
			s.deregister(userID, id)
			continue
		}
		sessions = append(sessions, sess.clone())
	}

	return sessions, nil
}

func (s *LocalStore) CleanupExpiredSessions(_ context.Context, olderThan time.Duration) (int, error) {
	removed := s.cache.Cleanup()

	cutoff := unixNow() - olderThan.Seconds()
	var stale []string
	s.cache.Range(func(key string, value any) bool {
		if sess, ok := value.(*Session); ok && sess.LastAccessed < cutoff {
			stale = append(stale, key)
		}
		return true
	})

	for _, key := range stale {
		if s.cache.Delete(key) {
			removed++
		}
	}

	return removed, nil
}

// mirror stores an authoritative copy of sess in the local tier, registering
// it under the user index when the session carries a user id.
func (s *LocalStore) mirror(sess *Session) {
	s.writeMu.Lock()
	s.cache.Put(sessionKey(sess.SessionID), sess.clone(), s.ttl)
	s.writeMu.Unlock()

	if sess.UserID != "" {
		s.register(sess.UserID, sess.SessionID)
	}
}

// lookup returns the live cache entry, not a copy. Callers hold writeMu.
func (s *LocalStore) lookup(sessionID string) *Session {
	value, exists := s.cache.Get(sessionKey(sessionID))
	if !exists {
		return nil
	}
	sess, ok := value.(*Session)
	if !ok {
		return nil
	}
	return sess
}

func (s *LocalStore) register(userID, sessionID string) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	if s.userIndex[userID] == nil {
		s.userIndex[userID] = make(map[string]struct{})
	}
	s.userIndex[userID][sessionID] = struct{}{}
}

func (s *LocalStore) deregister(userID, sessionID string) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	delete(s.userIndex[userID], sessionID)
	if len(s.userIndex[userID]) == 0 {
		delete(s.userIndex, userID)
	}
}

func validateMessage(msg Message) error {
	if msg.Content == "" {
		return ErrInvalidMessage
	}
	switch msg.Role {
	case RoleUser, RoleAssistant, RoleSystem:
		return nil
	default:
		return ErrInvalidMessage
	}
}
