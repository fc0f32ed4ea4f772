package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angeloszaimis/session-cache/internal/connpool"
	"github.com/angeloszaimis/session-cache/internal/fallback"
	"github.com/angeloszaimis/session-cache/internal/health"
	"github.com/angeloszaimis/session-cache/internal/metrics"
	"github.com/angeloszaimis/session-cache/internal/retry"
)

// ErrNoBackendURI is returned when a remote store is requested without a
// backend URI. This is the one construction-time failure; an unreachable
// backend is not an error, the store simply starts in local-only mode.
var ErrNoBackendURI = errors.New("session: backend URI required for remote store")

type RemoteOptions struct {
	Endpoint string
	TTL      time.Duration
	// IndexTTL is the expiry for user index sets. It must outlive the
	// session TTL; zero defaults to twice the session TTL.
	IndexTTL time.Duration
}

// RemoteStore keeps sessions in a remote key-value cache, mirrored into the
// local fallback tier on every write. The mirror write precedes the remote
// write and is never rolled back, so local data is always at least as fresh
// as remote.
//
// A per-instance sticky flag layers on top of the shared health monitor:
// once a call falls back, subsequent calls skip remote I/O entirely until a
// later health check reports the backend recovered.
type RemoteStore struct {
	client   *redis.Client
	endpoint string
	monitor  *health.Monitor
	exec     *retry.Executor
	local    *LocalStore
	ttl      time.Duration
	indexTTL time.Duration
	sticky   atomic.Bool
	logger   *slog.Logger
	events   chan<- metrics.Event
}

var _ Store = (*RemoteStore)(nil)

// PingProbe returns a health probe that PINGs through the shared pool.
func PingProbe(registry *connpool.Registry) health.ProbeFunc {
	return func(ctx context.Context, endpoint string) error {
		client, err := registry.Get(endpoint)
		if err != nil {
			return err
		}
		return client.Ping(ctx).Err()
	}
}

func NewRemoteStore(
	ctx context.Context,
	registry *connpool.Registry,
	monitor *health.Monitor,
	exec *retry.Executor,
	cache *fallback.Cache,
	opts RemoteOptions,
	logger *slog.Logger,
) (*RemoteStore, error) {
	if opts.Endpoint == "" {
		return nil, ErrNoBackendURI
	}

	client, err := registry.Get(opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("session: invalid backend URI: %w", err)
	}

	if opts.IndexTTL <= 0 {
		opts.IndexTTL = 2 * opts.TTL
	}

	s := &RemoteStore{
		client:   client,
		endpoint: opts.Endpoint,
		monitor:  monitor,
		exec:     exec,
		local:    NewLocalStore(cache, opts.TTL, logger),
		ttl:      opts.TTL,
		indexTTL: opts.IndexTTL,
		logger:   logger,
	}

	if !monitor.IsHealthy(ctx, opts.Endpoint) {
		s.sticky.Store(true)
		logger.Warn("Backend unreachable, starting in local-only mode",
			slog.String("endpoint", opts.Endpoint))
	}

	return s, nil
}

// SetEventChannel wires an optional metrics event sink.
func (s *RemoteStore) SetEventChannel(ch chan<- metrics.Event) {
	s.events = ch
}

func (s *RemoteStore) CreateSession(ctx context.Context, userID string, metadata map[string]any) (string, error) {
	sess := newSession(userID, metadata)

	// Mirror first: local must always be at least as fresh as remote.
	s.local.mirror(sess)
	s.writeRemote(ctx, sess)

	s.logger.Debug("Session created",
		slog.String("session_id", sess.SessionID),
		slog.String("user_id", userID))

	return sess.SessionID, nil
}

func (s *RemoteStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	sess, fromRemote := s.load(ctx, sessionID)
	if sess == nil {
		return nil, nil
	}

	if !fromRemote {
		// Read-repair: a session born during an outage exists only locally;
		// push it back out once the backend is reachable again.
		s.writeRemote(ctx, sess)
	}

	return sess, nil
}

func (s *RemoteStore) UpdateSession(ctx context.Context, sessionID string, patch map[string]any) (bool, error) {
	sess, _ := s.load(ctx, sessionID)
	if sess == nil {
		return false, nil
	}

	sess.merge(patch)
	sess.touch()

	s.local.mirror(sess)
	s.writeRemote(ctx, sess)
	return true, nil
}

func (s *RemoteStore) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	existed, err := s.local.DeleteSession(ctx, sessionID)
	if err != nil {
		return false, err
	}

	if s.remoteAvailable(ctx) {
		removed, ok := retry.Do(ctx, s.exec, s.endpoint, func(ctx context.Context) (bool, error) {
			val, getErr := s.client.Get(ctx, sessionKey(sessionID)).Result()
			if getErr == redis.Nil {
				return false, nil
			}
			if getErr != nil {
				return false, getErr
			}

			var sess Session
			userID := ""
			if json.Unmarshal([]byte(val), &sess) == nil {
				userID = sess.UserID
			}

			if delErr := s.client.Del(ctx, sessionKey(sessionID)).Err(); delErr != nil {
				return false, delErr
			}
			if userID != "" {
				if remErr := s.client.SRem(ctx, userKey(userID), sessionID).Err(); remErr != nil {
					return false, remErr
				}
			}
			return true, nil
		}, false)

		if ok {
			existed = existed || removed
		} else {
			s.markUnavailable()
		}
	}

	return existed, nil
}

func (s *RemoteStore) AddMessage(ctx context.Context, sessionID string, msg Message, createIfMissing bool) (bool, error) {
	if err := validateMessage(msg); err != nil {
		return false, err
	}

	sess, _ := s.load(ctx, sessionID)
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

	s.local.mirror(sess)
	s.writeRemote(ctx, sess)
	return true, nil
}

func (s *RemoteStore) GetSessionMessages(ctx context.Context, sessionID string) ([]Message, error) {
	sess, _ := s.load(ctx, sessionID)
	if sess == nil {
		return nil, nil
	}
	return sess.Messages, nil
}

func (s *RemoteStore) GetUserSessions(ctx context.Context, userID string) ([]*Session, error) {
	if s.remoteAvailable(ctx) {
		sessions, ok := retry.Do(ctx, s.exec, s.endpoint, func(ctx context.Context) ([]*Session, error) {
			ids, err := s.client.SMembers(ctx, userKey(userID)).Result()
			if err != nil {
				return nil, err
			}

			sessions := make([]*Session, 0, len(ids))
			for _, id := range ids {
				val, getErr := s.client.Get(ctx, sessionKey(id)).Result()
				if getErr == redis.Nil {
					// Stale index entry: drop it rather than reconcile eagerly.
					s.client.SRem(ctx, userKey(userID), id)
					continue
				}
				if getErr != nil {
					return nil, getErr
				}

				var sess Session
				if jsonErr := json.Unmarshal([]byte(val), &sess); jsonErr != nil {
					s.dropCorrupt(ctx, sessionKey(id), jsonErr)
					continue
				}
				sessions = append(sessions, &sess)
			}
			return sessions, nil
		}, nil)

		if ok {
			for _, sess := range sessions {
				s.local.mirror(sess)
			}
			return sessions, nil
		}
		s.markUnavailable()
	}

	return s.local.GetUserSessions(ctx, userID)
}

// CleanupExpiredSessions sweeps the local tier only. The remote backend's
// own TTL is the authority for remote expiry.
func (s *RemoteStore) CleanupExpiredSessions(ctx context.Context, olderThan time.Duration) (int, error) {
	return s.local.CleanupExpiredSessions(ctx, olderThan)
}

// load resolves a session from remote when available, falling back to the
// local tier. A remote hit refreshes the TTL on the backend and the local
// mirror. The second return value reports whether remote answered.
func (s *RemoteStore) load(ctx context.Context, sessionID string) (*Session, bool) {
	if s.remoteAvailable(ctx) {
		sess, ok := retry.Do(ctx, s.exec, s.endpoint, func(ctx context.Context) (*Session, error) {
			val, err := s.client.Get(ctx, sessionKey(sessionID)).Result()
			if err == redis.Nil {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}

			var sess Session
			if jsonErr := json.Unmarshal([]byte(val), &sess); jsonErr != nil {
				s.dropCorrupt(ctx, sessionKey(sessionID), jsonErr)
				return nil, nil
			}

			sess.touch()
			data, marshalErr := json.Marshal(&sess)
			if marshalErr != nil {
				return nil, marshalErr
			}
			if setErr := s.client.SetEx(ctx, sessionKey(sessionID), data, s.ttl).Err(); setErr != nil {
				return nil, setErr
			}
			return &sess, nil
		}, nil)

		if ok {
			if sess != nil {
				s.local.mirror(sess)
				metrics.Emit(s.events, metrics.Event{
					Type:      metrics.EventRemoteHit,
					Timestamp: time.Now(),
					Endpoint:  s.endpoint,
				})
				return sess, true
			}
			// Authoritative remote miss. A session created during an outage
			// may still live in the local tier, so keep looking.
		} else {
			s.markUnavailable()
		}
	}

	sess, _ := s.local.GetSession(ctx, sessionID)
	return sess, false
}

// writeRemote pushes sess to the backend through the retry wrapper,
// refreshing the user index alongside. Failures mark the store degraded;
// they never surface to the caller.
func (s *RemoteStore) writeRemote(ctx context.Context, sess *Session) {
	if !s.remoteAvailable(ctx) {
		return
	}

	_, ok := retry.Do(ctx, s.exec, s.endpoint, func(ctx context.Context) (bool, error) {
		data, err := json.Marshal(sess)
		if err != nil {
			return false, err
		}
		if err := s.client.SetEx(ctx, sessionKey(sess.SessionID), data, s.ttl).Err(); err != nil {
			return false, err
		}

		if sess.UserID != "" {
			if err := s.client.SAdd(ctx, userKey(sess.UserID), sess.SessionID).Err(); err != nil {
				return false, err
			}
			if err := s.client.Expire(ctx, userKey(sess.UserID), s.indexTTL).Err(); err != nil {
				return false, err
			}
		}
		return true, nil
	}, false)

	if !ok {
		s.markUnavailable()
	}
}

// remoteAvailable is the sticky fast path layered atop the shared health
// monitor. A recovered health check clears the flag.
func (s *RemoteStore) remoteAvailable(ctx context.Context) bool {
	if !s.sticky.Load() {
		return true
	}

	if s.monitor.IsHealthy(ctx, s.endpoint) {
		s.sticky.Store(false)
		s.logger.Info("Backend recovered, leaving local-only mode",
			slog.String("endpoint", s.endpoint))
		return true
	}

	metrics.Emit(s.events, metrics.Event{
		Type:      metrics.EventFallbackServed,
		Timestamp: time.Now(),
		Endpoint:  s.endpoint,
	})
	return false
}

func (s *RemoteStore) markUnavailable() {
	if s.sticky.CompareAndSwap(false, true) {
		s.logger.Warn("Backend unavailable, serving from local tier",
			slog.String("endpoint", s.endpoint))
	}
}

// dropCorrupt deletes a key whose stored value cannot be decoded. The
// session is treated as not found.
func (s *RemoteStore) dropCorrupt(ctx context.Context, key string, decodeErr error) {
	s.logger.Error("Corrupt session record, deleting",
		slog.String("key", key),
		slog.String("error", decodeErr.Error()))
	s.client.Del(ctx, key)
}
