package enforcer

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Ryan-Har/authgate/api"
	"github.com/Ryan-Har/authgate/internal/logutil"
	"github.com/Ryan-Har/authgate/internal/metrics"
	"github.com/Ryan-Har/authgate/pkg/models"
)

type contextKey string

const (
	SessionContextKey contextKey = "session"
)

// SessionFromContext returns the session attached by AuthenticationMiddleware.
func SessionFromContext(ctx context.Context) (*models.Session, bool) {
	sess, ok := ctx.Value(SessionContextKey).(*models.Session)
	return sess, ok && sess != nil
}

// IdentityFromContext returns the identity of the authenticated caller.
func IdentityFromContext(ctx context.Context) (*models.Identity, bool) {
	sess, ok := SessionFromContext(ctx)
	if !ok {
		return nil, false
	}
	return &sess.Identity, true
}

// AuthenticationMiddleware resolves the request credential to a session and
// attaches it to the request context.
//
// Authentication order:
// 1. A bearer token in the Authorization header
// 2. The session cookie
//
// A request with neither continues anonymously. An expired or unknown cookie is
// cleared on the client. This middleware does not reject anything, that is left
// to AuthorizationMiddleware.
func (e *Enforcer) AuthenticationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := e.tryTokenAuth(r)
		if !ok {
			var err error
			sess, err = e.trySessionAuth(w, r)
			if err != nil {
				e.log.Error("failed to resolve session", append(logutil.RequestFields(r), "err", err)...)
				e.respondInternalError(w, r)
				return
			}
		}

		if sess != nil {
			r = r.WithContext(context.WithValue(r.Context(), SessionContextKey, sess))
		}
		next.ServeHTTP(w, r)
	})
}

// AuthorizationMiddleware returns an HTTP middleware that ensures the caller
// holds at least the required level. It expects AuthenticationMiddleware to
// run first.
//
// A caller that is signed in but not an admin is rejected on admin routes in
// exactly the same way as an anonymous caller.
func (e *Enforcer) AuthorizationMiddleware(required Level) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if required == LevelPublic {
				next.ServeHTTP(w, r)
				return
			}

			identity, ok := IdentityFromContext(r.Context())
			if !ok || (required == LevelAdmin && !e.gate.IsAdmin(identity)) {
				metrics.GateRejections.WithLabelValues(required.String()).Inc()
				e.log.Debug("gate rejected request", append(logutil.RequestFields(r), "required", required.String())...)
				e.respondUnauthorized(w, r)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth wraps h so it only runs for an authenticated caller.
func (e *Enforcer) RequireAuth(h http.Handler) http.Handler {
	return e.AuthenticationMiddleware(e.AuthorizationMiddleware(LevelAuthenticated)(h))
}

// RequireAdmin wraps h so it only runs for the admin account.
func (e *Enforcer) RequireAdmin(h http.Handler) http.Handler {
	return e.AuthenticationMiddleware(e.AuthorizationMiddleware(LevelAdmin)(h))
}

// WrapHandler applies authentication and, if a non-public policy exists,
// authorization to the given handler.
func (e *Enforcer) WrapHandler(path, method string, h http.Handler) http.Handler {
	required, _ := e.FindMatchingPolicy(path, method)
	if required != LevelPublic {
		h = e.AuthorizationMiddleware(required)(h)
	}
	return e.AuthenticationMiddleware(h)
}

// SetSessionCookie writes the session cookie. It carries only the opaque id
// and expires with the session.
func (e *Enforcer) SetSessionCookie(w http.ResponseWriter, sess *models.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     e.CookieName,
		Value:    sess.ID,
		Path:     e.CookiePath,
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   e.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ExpireCookie clears the session cookie on the client.
func (e *Enforcer) ExpireCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     e.CookieName,
		Value:    "",
		Path:     e.CookiePath,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   e.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SessionID returns the session cookie value, or "" when there is none.
func (e *Enforcer) SessionID(r *http.Request) string {
	cookie, err := r.Cookie(e.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func extractBearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("no authorization header")
	}

	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", errors.New("invalid authorization header format")
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("empty token")
	}
	return token, nil
}

// tryTokenAuth resolves a bearer token. An invalid token is treated as absent.
func (e *Enforcer) tryTokenAuth(r *http.Request) (*models.Session, bool) {
	token, err := extractBearerToken(r)
	if err != nil {
		return nil, false
	}

	sess, err := e.gate.ResolveToken(r.Context(), token)
	if err != nil {
		e.log.Debug("bearer token rejected", "err", err, "path", r.URL.Path)
		return nil, false
	}
	return sess, true
}

// trySessionAuth resolves the session cookie. It returns (nil, nil) when the
// request has no usable session and an error only when the store failed.
func (e *Enforcer) trySessionAuth(w http.ResponseWriter, r *http.Request) (*models.Session, error) {
	sessionID := e.SessionID(r)
	if sessionID == "" {
		return nil, nil
	}

	sess, err := e.gate.Session(r.Context(), sessionID)
	switch {
	case err == nil:
		return sess, nil
	case errors.Is(err, models.ErrUnauthorized):
		e.log.Debug("expired session cookie", "session", logutil.SessionRef(sessionID), "path", r.URL.Path)
		e.ExpireCookie(w)
		return nil, nil
	default:
		return nil, err
	}
}

// isAPIRequest reports whether the caller expects JSON rather than a page:
// paths under /api/, an Accept header asking for json, or a bearer token.
func isAPIRequest(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/") ||
		strings.Contains(r.Header.Get("Accept"), "json") ||
		r.Header.Get("Authorization") != ""
}

func (e *Enforcer) respondUnauthorized(w http.ResponseWriter, r *http.Request) {
	if isAPIRequest(r) {
		api.ReturnError(w, e.log, api.Unauthorized)
		return
	}
	http.Redirect(w, r, e.RedirectOnAuthErrorPath, http.StatusSeeOther)
}

func (e *Enforcer) respondInternalError(w http.ResponseWriter, r *http.Request) {
	if isAPIRequest(r) {
		api.ReturnError(w, e.log, api.InternalServerError)
		return
	}
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

func (e *Enforcer) respondMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	if isAPIRequest(r) {
		api.ReturnError(w, e.log, api.MethodNotAllowed)
		return
	}
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}
