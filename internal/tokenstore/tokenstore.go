// Package tokenstore issues short lived HS256 access tokens bound to a session.
//
// A token never names the session id itself, only its SHA-256. The store keeps
// a process-local binding from that hash back to the session so a bearer
// request can be resolved against the live session, and logging out drops
// every token issued for it.
package tokenstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Ryan-Har/authgate/internal/logutil"
	"github.com/Ryan-Har/authgate/pkg/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	Issuer = "authgate"

	DefaultTokenDuration   = 15 * time.Minute
	MinSecretLength        = 32
	DefaultBindingCapacity = 10000
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrSecretTooShort = fmt.Errorf("token signing secret must be at least %d bytes", MinSecretLength)
	ErrSessionEnded   = errors.New("session has already ended")
)

type TokenPayload struct {
	Username    string  `json:"username"`
	Email       *string `json:"email,omitempty"`
	SessionHash string  `json:"sid"`
	jwt.RegisteredClaims
}

// Identity rebuilds the identity carried by the token.
func (p *TokenPayload) Identity() (models.Identity, error) {
	id, err := uuid.Parse(p.Subject)
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return models.Identity{ID: id, Username: p.Username, Email: p.Email}, nil
}

type TokenStore interface {
	// IssueToken signs a token for the session. It expires after the token
	// duration or with the session, whichever comes first.
	IssueToken(session *models.Session) (string, time.Time, error)

	// ParseToken validates signature, algorithm, issuer and expiry. It does not
	// check whether the bound session is still alive.
	ParseToken(ctx context.Context, tokenStr string) (*TokenPayload, error)

	// SessionFor returns the session id a valid payload is bound to.
	SessionFor(payload *TokenPayload) (string, bool)

	// RevokeSession drops the binding for every token issued for sessionID.
	RevokeSession(sessionID string)
}

type jwtTokenStore struct {
	log           *slog.Logger
	secret        []byte
	tokenDuration time.Duration
	capacity      int
	now           func() time.Time
	bindings      *expirable.LRU[string, string] // session hash -> session id
}

type Option func(*jwtTokenStore)

// WithTokenDuration sets the token lifetime. Non-positive values are ignored.
func WithTokenDuration(d time.Duration) Option {
	return func(t *jwtTokenStore) {
		if d > 0 {
			t.tokenDuration = d
		}
	}
}

// WithBindingCapacity bounds the number of sessions with outstanding tokens.
// The least recently issued binding is evicted first.
func WithBindingCapacity(n int) Option {
	return func(t *jwtTokenStore) {
		if n > 0 {
			t.capacity = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(t *jwtTokenStore) {
		if now != nil {
			t.now = now
		}
	}
}

func New(logger *slog.Logger, signingSecret string, opts ...Option) (*jwtTokenStore, error) {
	if len(signingSecret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}
	t := &jwtTokenStore{
		log:           logger,
		secret:        []byte(signingSecret),
		tokenDuration: DefaultTokenDuration,
		capacity:      DefaultBindingCapacity,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.bindings = expirable.NewLRU[string, string](t.capacity, nil, t.tokenDuration)
	return t, nil
}

// SessionHash returns the value placed in the sid claim for sessionID.
func SessionHash(sessionID string) string {
	sum := sha256.Sum256([]byte(sessionID))
	return hex.EncodeToString(sum[:])
}

func (t *jwtTokenStore) IssueToken(session *models.Session) (string, time.Time, error) {
	now := t.now()
	expiresAt := now.Add(t.tokenDuration)
	if session.ExpiresAt.Before(expiresAt) {
		expiresAt = session.ExpiresAt
	}
	if !expiresAt.After(now) {
		return "", time.Time{}, ErrSessionEnded
	}

	hash := SessionHash(session.ID)
	payload := TokenPayload{
		Username:    session.Identity.Username,
		Email:       session.Identity.Email,
		SessionHash: hash,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   session.Identity.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, payload).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, logutil.LogAndWrapErr(t.log, "failed to sign access token", err,
			"session", logutil.SessionRef(session.ID))
	}

	t.bindings.Add(hash, session.ID)
	t.log.Debug("issued access token", "session", logutil.SessionRef(session.ID), "expires_at", expiresAt)
	return signed, expiresAt, nil
}

func (t *jwtTokenStore) ParseToken(ctx context.Context, tokenStr string) (*TokenPayload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	token, err := jwt.ParseWithClaims(tokenStr, &TokenPayload{}, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, logutil.DebugAndWrapErr(t.log, "rejected access token", fmt.Errorf("%w: %v", ErrInvalidToken, err))
	}

	payload, ok := token.Claims.(*TokenPayload)
	if !ok || !token.Valid || payload.SessionHash == "" {
		return nil, ErrInvalidToken
	}
	return payload, nil
}

func (t *jwtTokenStore) SessionFor(payload *TokenPayload) (string, bool) {
	if payload == nil {
		return "", false
	}
	return t.bindings.Get(payload.SessionHash)
}

func (t *jwtTokenStore) RevokeSession(sessionID string) {
	if t.bindings.Remove(SessionHash(sessionID)) {
		t.log.Debug("revoked access tokens", "session", logutil.SessionRef(sessionID))
	}
}
