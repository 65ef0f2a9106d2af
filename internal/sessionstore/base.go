package sessionstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Ryan-Har/authgate/internal/logutil"
	"github.com/Ryan-Har/authgate/pkg/models"
)

type baseSessionStore struct {
	log             *slog.Logger
	tokenLength     int           // number of bytes used when generating tokens
	ttl             time.Duration // amount of time sessions are active for
	cleanupInterval time.Duration
	now             func() time.Time
	stopCh          chan struct{} // channel used to stop the cleanup of expired sessions
	stopOnce        sync.Once
}

func newBase(logger *slog.Logger, opts ...Option) *baseSessionStore {
	s := &baseSessionStore{
		log:             logger,
		tokenLength:     DefaultTokenLength,
		ttl:             DefaultTTL,
		cleanupInterval: DefaultCleanupInterval,
		now:             time.Now,
		stopCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// newSession generates a models.Session for the identity.
// A secure token is generated based on the token length stored in baseSessionStore.
func (s *baseSessionStore) newSession(identity models.Identity, ipAddress, userAgent *string) (*models.Session, error) {
	now := s.now().UTC()

	sesID, err := generateSecureToken(s.tokenLength)
	if err != nil {
		return nil, logutil.LogAndWrapErr(s.log, "failed to generate secure token", err)
	}

	return &models.Session{
		ID:        sesID,
		Identity:  identity,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}, nil
}

// helper to generate secure token of a given length
func generateSecureToken(n int) (string, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// checkCtx returns the context error if ctx is already done.
func (s *baseSessionStore) checkCtx(ctx context.Context, op string) error {
	select {
	case <-ctx.Done():
		s.log.Info("context cancelled during session "+op, "error", ctx.Err())
		return ctx.Err()
	default:
		return nil
	}
}

// expirable is implemented by session stores that need periodic cleanup of
// expired sessions. It allows the baseSessionStore to run the sweeper
// without knowing how each store removes rows.
type expirable interface {
	CleanupExpired(ctx context.Context) error
}

// startCleanupWorker starts a goroutine that periodically cleans up expired sessions.
func (s *baseSessionStore) startCleanupWorker(exp expirable) {
	if s.cleanupInterval <= 0 {
		return
	}
	interval := s.cleanupInterval
	s.log.Debug("starting session cleanup worker", "interval", interval)
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cleanupCtx, cancel := context.WithTimeout(context.Background(), interval/2) // Give it a max half the interval
				err := exp.CleanupExpired(cleanupCtx)
				if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
					s.log.Error("failed to cleanup sessions", "err", err)
				}
				cancel()

			case <-s.stopCh:
				s.log.Debug("stopping session cleanup worker")
				return
			}
		}
	}()
}

func (s *baseSessionStore) stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}
