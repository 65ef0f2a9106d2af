package models

import (
	"time"
)

// Session represents the data stored for a single authenticated session.
type Session struct {
	ID        string    `json:"id"`        // opaque random token, only ever sent in the session cookie
	Identity  Identity  `json:"identity"`  // snapshot of the account at login time
	CreatedAt time.Time `json:"createdAt"` // when the session was created
	ExpiresAt time.Time `json:"expiresAt"` // fixed at creation, never extended
	IPAddress *string   `json:"ipAddress,omitempty"`
	UserAgent *string   `json:"userAgent,omitempty"`
}

// IsExpired reports whether the session is no longer valid at the given instant.
// A session is valid strictly before ExpiresAt.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
