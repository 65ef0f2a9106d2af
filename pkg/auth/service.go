// Package auth orchestrates registration, login, logout and the session
// checks behind the authorization gate.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Ryan-Har/authgate/internal/auditstore"
	"github.com/Ryan-Har/authgate/internal/authstore"
	"github.com/Ryan-Har/authgate/internal/geo"
	"github.com/Ryan-Har/authgate/internal/logutil"
	"github.com/Ryan-Har/authgate/internal/metrics"
	"github.com/Ryan-Har/authgate/internal/sessionstore"
	"github.com/Ryan-Har/authgate/internal/tokenstore"
	"github.com/Ryan-Har/authgate/pkg/models"
	"github.com/Ryan-Har/authgate/pkg/models/passwd"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	DefaultAdminUsername = "admin"
	DefaultAuditTimeout  = 2 * time.Second
)

// ErrTokensDisabled is returned by IssueToken when no token store is configured.
var ErrTokensDisabled = errors.New("api tokens are not enabled")

type Service struct {
	log      *slog.Logger
	accounts authstore.Store
	sessions sessionstore.Store
	tokens   tokenstore.TokenStore
	audit    auditstore.Store
	geo      geo.Resolver
	hasher   *passwd.Hasher
	validate *validator.Validate

	adminUsername string
	requireEmail  bool
	auditTimeout  time.Duration

	auditWG sync.WaitGroup
}

type Option func(*Service)

// WithTokenStore enables session-bound API tokens.
func WithTokenStore(t tokenstore.TokenStore) Option {
	return func(s *Service) { s.tokens = t }
}

// WithAudit enables the login audit trail. Logins are recorded in the
// background and failures never reach the caller.
func WithAudit(store auditstore.Store, resolver geo.Resolver) Option {
	return func(s *Service) {
		s.audit = store
		if resolver != nil {
			s.geo = resolver
		}
	}
}

func WithHasher(h *passwd.Hasher) Option {
	return func(s *Service) {
		if h != nil {
			s.hasher = h
		}
	}
}

func WithAdminUsername(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.adminUsername = name
		}
	}
}

// WithRequireEmail makes email mandatory at registration.
func WithRequireEmail(required bool) Option {
	return func(s *Service) { s.requireEmail = required }
}

// WithAuditTimeout bounds the background work done per recorded login.
func WithAuditTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.auditTimeout = d
		}
	}
}

func New(logger *slog.Logger, accounts authstore.Store, sessions sessionstore.Store, opts ...Option) *Service {
	s := &Service{
		log:           logger,
		accounts:      accounts,
		sessions:      sessions,
		geo:           geo.NopResolver{},
		hasher:        passwd.NewHasher(passwd.DefaultCost),
		validate:      newValidator(),
		adminUsername: DefaultAdminUsername,
		auditTimeout:  DefaultAuditTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type RegisterParams struct {
	Username string
	Email    string // optional unless the service requires it
	Password string
}

// Register validates the input, hashes the password and stores the account.
// Validation stops at the first failing field. A collision on username or
// email returns the same DuplicateError.
func (s *Service) Register(ctx context.Context, p RegisterParams) (uuid.UUID, error) {
	if err := s.validateRegistration(p.Username, p.Email, p.Password); err != nil {
		metrics.Registrations.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return uuid.Nil, err
	}

	hash, err := s.hasher.Hash(p.Password)
	if err != nil {
		metrics.Registrations.WithLabelValues(metrics.OutcomeError).Inc()
		return uuid.Nil, logutil.LogAndWrapErr(s.log, "failed to hash password", err)
	}

	params := models.CreateAccountParams{Username: p.Username, PasswordHash: hash}
	if p.Email != "" {
		params.Email = &p.Email
	}

	acct, err := s.accounts.CreateAccount(ctx, params)
	if err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			metrics.Registrations.WithLabelValues(metrics.OutcomeDuplicate).Inc()
			return uuid.Nil, models.NewDuplicateError()
		}
		metrics.Registrations.WithLabelValues(metrics.OutcomeError).Inc()
		return uuid.Nil, err
	}

	metrics.Registrations.WithLabelValues(metrics.OutcomeSuccess).Inc()
	s.log.Info("registered account", "account_id", acct.ID.String(), "username", acct.Username)
	return acct.ID, nil
}

type LoginParams struct {
	Username  string
	Password  string
	IP        string
	UserAgent string
}

// Login verifies the credentials and starts a session. An unknown username
// and a wrong password both return ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, p LoginParams) (*models.Session, error) {
	acct, err := s.accounts.GetAccountByUsername(ctx, p.Username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// keep the unknown user path as slow as a real verify
			s.hasher.VerifyDummy(p.Password)
			metrics.Logins.WithLabelValues(metrics.OutcomeInvalid).Inc()
			return nil, models.ErrInvalidCredentials
		}
		metrics.Logins.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, err
	}

	if !s.hasher.Verify(p.Password, acct.PasswordHash) {
		metrics.Logins.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return nil, models.ErrInvalidCredentials
	}

	sess, err := s.sessions.Create(ctx, acct.Identity(), optional(p.IP), optional(p.UserAgent))
	if err != nil {
		metrics.Logins.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, logutil.LogAndWrapErr(s.log, "failed to create session", err, "account_id", acct.ID.String())
	}

	metrics.Logins.WithLabelValues(metrics.OutcomeSuccess).Inc()
	s.log.Info("login succeeded", "account_id", acct.ID.String(), "session", logutil.SessionRef(sess.ID))

	if s.audit != nil {
		s.recordLogin(ctx, acct.ID, p.IP, p.UserAgent)
	}
	return sess, nil
}

// recordLogin writes the audit trail in the background. It outlives the
// request context but is bounded by the audit timeout.
func (s *Service) recordLogin(ctx context.Context, accountID uuid.UUID, ip, device string) {
	s.auditWG.Add(1)
	go func() {
		defer s.auditWG.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.auditTimeout)
		defer cancel()

		location := s.geo.Resolve(ctx, ip).String()
		event := models.LoginEvent{
			AccountID: accountID,
			IP:        ip,
			Location:  location,
			Device:    device,
			LoggedAt:  time.Now().UTC(),
		}
		if err := s.audit.Record(ctx, event); err != nil {
			metrics.AuditFailures.Inc()
			s.log.Warn("failed to record login event", "account_id", accountID.String(), "err", err)
			return
		}
		if err := s.accounts.UpdateLastLogin(ctx, accountID, ip, location); err != nil {
			metrics.AuditFailures.Inc()
			s.log.Warn("failed to update last login", "account_id", accountID.String(), "err", err)
		}
	}()
}

// Logout destroys the session and every API token bound to it. It always
// succeeds: an unknown or already destroyed session is a no-op and a store
// failure is logged, the session then ends at its expiry.
func (s *Service) Logout(ctx context.Context, sessionID string) {
	if sessionID == "" {
		return
	}
	if s.tokens != nil {
		s.tokens.RevokeSession(sessionID)
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		s.log.Error("failed to delete session", "session", logutil.SessionRef(sessionID), "err", err)
		return
	}
	metrics.Logouts.Inc()
}

// Session returns the live session for sessionID, or ErrUnauthorized.
func (s *Service) Session(ctx context.Context, sessionID string) (*models.Session, error) {
	if sessionID == "" {
		return nil, models.ErrUnauthorized
	}
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sessionstore.ErrSessionExpired) {
			return nil, models.ErrUnauthorized
		}
		return nil, err
	}
	return sess, nil
}

// RequireAuth resolves sessionID to its identity, or returns ErrUnauthorized.
func (s *Service) RequireAuth(ctx context.Context, sessionID string) (*models.Identity, error) {
	sess, err := s.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &sess.Identity, nil
}

// RequireAdmin is RequireAuth restricted to the admin account. A non-admin
// gets the same ErrUnauthorized as an anonymous caller.
func (s *Service) RequireAdmin(ctx context.Context, sessionID string) (*models.Identity, error) {
	identity, err := s.RequireAuth(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !s.IsAdmin(identity) {
		return nil, models.ErrUnauthorized
	}
	return identity, nil
}

func (s *Service) IsAdmin(identity *models.Identity) bool {
	return identity != nil && identity.Username == s.adminUsername
}

func (s *Service) AdminUsername() string {
	return s.adminUsername
}

// TokensEnabled reports whether API tokens can be issued.
func (s *Service) TokensEnabled() bool {
	return s.tokens != nil
}

// IssueToken signs an API token bound to sess.
func (s *Service) IssueToken(sess *models.Session) (string, time.Time, error) {
	if s.tokens == nil {
		return "", time.Time{}, ErrTokensDisabled
	}
	return s.tokens.IssueToken(sess)
}

// ResolveToken returns the live session an API token is bound to, or
// ErrUnauthorized if the token is invalid or its session has ended.
func (s *Service) ResolveToken(ctx context.Context, token string) (*models.Session, error) {
	if s.tokens == nil || token == "" {
		return nil, models.ErrUnauthorized
	}
	payload, err := s.tokens.ParseToken(ctx, token)
	if err != nil {
		return nil, models.ErrUnauthorized
	}
	sessionID, ok := s.tokens.SessionFor(payload)
	if !ok {
		return nil, models.ErrUnauthorized
	}
	identity, err := payload.Identity()
	if err != nil {
		return nil, models.ErrUnauthorized
	}
	sess, err := s.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Identity.ID != identity.ID {
		return nil, models.ErrUnauthorized
	}
	return sess, nil
}

// EnsureAdmin creates the admin account with password if it does not exist.
// An existing admin is left untouched. An empty password skips the seed.
func (s *Service) EnsureAdmin(ctx context.Context, password string) error {
	if password == "" {
		return nil
	}
	if err := s.validatePassword(password); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return logutil.LogAndWrapErr(s.log, "failed to hash admin password", err)
	}

	_, err = s.accounts.CreateAccount(ctx, models.CreateAccountParams{Username: s.adminUsername, PasswordHash: hash})
	switch {
	case err == nil:
		s.log.Info("created admin account", "username", s.adminUsername)
		return nil
	case errors.Is(err, models.ErrDuplicate):
		s.log.Debug("admin account already exists", "username", s.adminUsername)
		return nil
	default:
		return err
	}
}

// Account returns the stored account for the identity.
func (s *Service) Account(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return s.accounts.GetAccountByID(ctx, id)
}

func (s *Service) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	return s.accounts.ListAccounts(ctx)
}

// ListLogins returns the most recent login events. It is empty when the audit trail is disabled.
func (s *Service) ListLogins(ctx context.Context, limit int) ([]*models.LoginEvent, error) {
	if s.audit == nil {
		return []*models.LoginEvent{}, nil
	}
	return s.audit.List(ctx, limit)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.accounts.Ping(ctx)
}

// Wait blocks until background audit writes have finished.
func (s *Service) Wait() {
	s.auditWG.Wait()
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
