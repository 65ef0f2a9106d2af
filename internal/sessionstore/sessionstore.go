package sessionstore

import (
	"context"
	"fmt"
	"time"

	"github.com/Ryan-Har/authgate/internal/logutil"
	"github.com/Ryan-Har/authgate/pkg/models"
)

const (
	// DefaultTTL is the absolute lifetime of a session. It is never extended.
	DefaultTTL = time.Hour

	// DefaultTokenLength is the number of random bytes in a session id (256 bits).
	DefaultTokenLength = 32

	// MinTokenLength keeps session ids at or above 128 bits.
	MinTokenLength = 16

	DefaultCleanupInterval = time.Minute
)

// Store defines the interface for a session store.
//
// Sessions have a fixed lifetime from creation. There is deliberately no
// method to extend one.
type Store interface {
	// Create generates a new session for the identity, stores it, and returns it.
	Create(ctx context.Context, identity models.Identity, ipAddress, userAgent *string) (*models.Session, error)

	// Get retrieves a session by its ID. Unknown and expired sessions both
	// return a *SessionExpiredError; an expired record is removed as a side effect.
	Get(ctx context.Context, sessionID string) (*models.Session, error)

	// Delete removes a session by its ID. Deleting an unknown session is not an error.
	Delete(ctx context.Context, sessionID string) error

	// CleanupExpired removes all expired sessions from the store.
	// Backends with native expiry may treat this as a no-op.
	CleanupExpired(ctx context.Context) error

	// Close stops background work owned by the store.
	Close() error
}

var ErrSessionExpired = &SessionExpiredError{}

// errors
type SessionExpiredError struct {
	ID string
}

func (e *SessionExpiredError) Error() string {
	if e.ID == "" {
		return "session not found or expired"
	}
	return fmt.Sprintf("session '%s' not found or expired", logutil.SessionRef(e.ID))
}

func (e *SessionExpiredError) Is(target error) bool {
	_, ok := target.(*SessionExpiredError)
	return ok
}

// Option configures a session store.
type Option func(*baseSessionStore)

// WithTTL sets the absolute session lifetime. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(s *baseSessionStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithTokenLength sets the number of random bytes per session id, never below MinTokenLength.
func WithTokenLength(n int) Option {
	return func(s *baseSessionStore) {
		if n < MinTokenLength {
			n = MinTokenLength
		}
		s.tokenLength = n
	}
}

// WithCleanupInterval sets how often the background sweeper runs.
// Zero disables the sweeper, expired sessions are then only reclaimed lazily.
func WithCleanupInterval(d time.Duration) Option {
	return func(s *baseSessionStore) {
		if d >= 0 {
			s.cleanupInterval = d
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *baseSessionStore) {
		if now != nil {
			s.now = now
		}
	}
}
