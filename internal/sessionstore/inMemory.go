package sessionstore

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Ryan-Har/authgate/internal/logutil"
	"github.com/Ryan-Har/authgate/internal/metrics"
	"github.com/Ryan-Har/authgate/pkg/models"
)

type inMemorySessionStore struct {
	*baseSessionStore
	sessions map[string]*models.Session // sessionID -> session
	mutex    sync.Mutex
}

// NewInMemory returns a volatile session store. Sessions do not survive a restart.
func NewInMemory(logger *slog.Logger, opts ...Option) *inMemorySessionStore {
	s := &inMemorySessionStore{
		baseSessionStore: newBase(logger, opts...),
		sessions:         make(map[string]*models.Session),
	}
	s.startCleanupWorker(s)
	return s
}

func (s *inMemorySessionStore) Create(ctx context.Context, identity models.Identity, ipAddress, userAgent *string) (*models.Session, error) {
	if err := s.checkCtx(ctx, "creation"); err != nil {
		return nil, err
	}

	session, err := s.newSession(identity, ipAddress, userAgent)
	if err != nil {
		return nil, err
	}

	s.mutex.Lock()
	s.sessions[session.ID] = session
	metrics.MemorySessions.Set(float64(len(s.sessions)))
	s.mutex.Unlock()

	s.log.Debug("created session", "session", logutil.SessionRef(session.ID), "account_id", identity.ID.String())
	cp := *session
	return &cp, nil
}

func (s *inMemorySessionStore) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	if sessionID == "" {
		return nil, &SessionExpiredError{}
	}
	if err := s.checkCtx(ctx, "get"); err != nil {
		return nil, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, &SessionExpiredError{ID: sessionID}
	}
	if sess.IsExpired(s.now()) {
		delete(s.sessions, sessionID)
		metrics.MemorySessions.Set(float64(len(s.sessions)))
		return nil, &SessionExpiredError{ID: sessionID}
	}

	cp := *sess
	return &cp, nil
}

func (s *inMemorySessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.checkCtx(ctx, "delete"); err != nil {
		return err
	}

	s.mutex.Lock()
	delete(s.sessions, sessionID)
	metrics.MemorySessions.Set(float64(len(s.sessions)))
	s.mutex.Unlock()

	s.log.Debug("deleted session", "session", logutil.SessionRef(sessionID))
	return nil
}

func (s *inMemorySessionStore) CleanupExpired(ctx context.Context) error {
	if err := s.checkCtx(ctx, "cleanup"); err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := s.now()
	for k, v := range s.sessions {
		if v.IsExpired(now) {
			delete(s.sessions, k)
			s.log.Debug("deleted expired session", "session", logutil.SessionRef(k))
		}
	}
	metrics.MemorySessions.Set(float64(len(s.sessions)))
	return nil
}

// Len returns the number of sessions currently held, expired or not.
func (s *inMemorySessionStore) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.sessions)
}

func (s *inMemorySessionStore) Close() error {
	s.stop()
	return nil
}
