package sessionstore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Ryan-Har/authgate/internal/logutil"
	"github.com/Ryan-Har/authgate/pkg/models"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "session:"

type redisSessionStore struct {
	*baseSessionStore
	client redis.UniversalClient
}

// NewWithRedisStore returns a session store that keeps each session under
// "session:<id>" with a server-side TTL matching its expiry.
// The client is owned by the caller and is not closed by Close.
func NewWithRedisStore(client redis.UniversalClient, logger *slog.Logger, opts ...Option) *redisSessionStore {
	return &redisSessionStore{
		baseSessionStore: newBase(logger, opts...),
		client:           client,
	}
}

func (s *redisSessionStore) Create(ctx context.Context, identity models.Identity, ipAddress, userAgent *string) (*models.Session, error) {
	defer logutil.NewTimingLogger(s.log, time.Now(), "executed redis command", "method", "create session")()

	if err := s.checkCtx(ctx, "creation"); err != nil {
		return nil, err
	}

	session, err := s.newSession(identity, ipAddress, userAgent)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(session)
	if err != nil {
		return nil, logutil.LogAndWrapErr(s.log, "failed to encode session", err)
	}

	// NX guards the astronomically unlikely id collision
	ok, err := s.client.SetNX(ctx, redisKeyPrefix+session.ID, data, s.ttl).Result()
	if err != nil {
		return nil, logutil.LogAndWrapErr(s.log, "failed to create session",
			models.NewTransientStoreError(err))
	}
	if !ok {
		return nil, logutil.LogAndWrapErr(s.log, "failed to create session",
			models.NewTransientStoreError(errors.New("session id collision")))
	}
	return session, nil
}

func (s *redisSessionStore) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	if sessionID == "" {
		return nil, &SessionExpiredError{}
	}
	defer logutil.NewTimingLogger(s.log, time.Now(), "executed redis command", "method", "get session", "session", logutil.SessionRef(sessionID))()

	if err := s.checkCtx(ctx, "get"); err != nil {
		return nil, err
	}

	data, err := s.client.Get(ctx, redisKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, &SessionExpiredError{ID: sessionID}
	}
	if err != nil {
		return nil, logutil.LogAndWrapErr(s.log, "failed to get session",
			models.NewTransientStoreError(err))
	}

	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, logutil.LogAndWrapErr(s.log, "failed to decode session",
			models.NewTransientStoreError(err))
	}

	// redis TTLs have second granularity, the stored expiry is authoritative
	if session.IsExpired(s.now()) {
		if err := s.Delete(ctx, sessionID); err != nil {
			s.log.Warn("failed to remove expired session", "err", err)
		}
		return nil, &SessionExpiredError{ID: sessionID}
	}
	return &session, nil
}

func (s *redisSessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.checkCtx(ctx, "delete"); err != nil {
		return err
	}

	if err := s.client.Del(ctx, redisKeyPrefix+sessionID).Err(); err != nil {
		return logutil.LogAndWrapErr(s.log, "failed to delete session",
			models.NewTransientStoreError(err))
	}
	return nil
}

// CleanupExpired is a no-op, redis evicts expired keys itself.
func (s *redisSessionStore) CleanupExpired(ctx context.Context) error {
	return nil
}

func (s *redisSessionStore) Close() error {
	s.stop()
	return nil
}
