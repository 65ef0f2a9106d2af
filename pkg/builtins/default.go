package builtins

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Ryan-Har/authgate/api"
	"github.com/Ryan-Har/authgate/pkg/auth"
	"github.com/Ryan-Har/authgate/pkg/enforcer"
	"github.com/go-chi/httprate"
)

type Builtin struct {
	enforcer *enforcer.Enforcer
	handler  Handler
	limit    func(http.Handler) http.Handler

	loginPerMinute int
	trustForwarded bool
}

type Option func(*Builtin)

// WithLoginRateLimit caps POST /login and POST /register at perMinute
// requests per client IP. Zero disables the limit.
func WithLoginRateLimit(perMinute int) Option {
	return func(b *Builtin) {
		b.loginPerMinute = perMinute
	}
}

// WithTrustForwardedFor keys the login rate limit on the first
// X-Forwarded-For entry instead of the connection address. Only enable it
// behind a proxy that overwrites the header.
func WithTrustForwardedFor(trust bool) Option {
	return func(b *Builtin) {
		b.trustForwarded = trust
	}
}

// New initializes and returns a new Builtin instance.
func New(logger *slog.Logger, enforcer *enforcer.Enforcer, authService *auth.Service, opts ...Option) *Builtin {
	b := &Builtin{
		enforcer: enforcer,
		handler:  *newHandler(logger, authService, enforcer),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.loginPerMinute > 0 {
		b.limit = b.newLoginLimiter()
	}
	return b
}

func (b *Builtin) newLoginLimiter() func(http.Handler) http.Handler {
	key := api.RemoteIP
	if b.trustForwarded {
		key = api.ClientIP
	}
	return httprate.Limit(b.loginPerMinute, time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return key(r), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			b.handler.log.Warn("rate limit hit", "path", r.URL.Path, "remote_ip", key(r))
			api.ReturnError(w, b.handler.log, api.TooManyRequests)
		}),
	)
}

// LoadAllRoutes loads all default route groups (account, api, admin).
// If any group fails to register its routes, the error(s) will be combined
// and returned as a single error via errors.Join.
func (b *Builtin) LoadAllRoutes() error {
	errs := []error{
		b.LoadDefaultAccountRoutes(),
		b.LoadDefaultAPIRoutes(),
		b.LoadDefaultAdminRoutes(),
		b.LoadDefaultHealthRoute(),
	}

	return errors.Join(errs...)
}

// LoadAllPolicies sets the access level for every builtin route. Anything
// not listed is public.
func (b *Builtin) LoadAllPolicies() {
	b.enforcer.SetPolicy("/register", "POST", enforcer.LevelPublic)
	b.enforcer.SetPolicy("/login", "POST", enforcer.LevelPublic)
	b.enforcer.SetPolicy("/logout", "POST", enforcer.LevelPublic)
	b.enforcer.SetPolicy("/healthz", "GET", enforcer.LevelPublic)
	b.enforcer.SetPolicy("/api/v1", "*", enforcer.LevelAuthenticated)
	b.enforcer.SetPolicy("/admin", "*", enforcer.LevelAdmin)
}

// LoadDefaultAccountRoutes configures registration, login and logout.
//
// Register and login accept either a JSON body or a form post and are rate
// limited per client IP when WithLoginRateLimit is set. Login sets the
// session cookie, logout clears it.
func (b *Builtin) LoadDefaultAccountRoutes() error {
	return b.registerRoutes(map[string]http.Handler{
		"POST /register": b.limited(b.handler.handleRegisterPost()),
		"POST /login":    b.limited(b.handler.handleLoginPost()),
		"POST /logout":   b.handler.handleLogoutPost(),
	})
}

// LoadDefaultAPIRoutes configures the routes for authenticated callers.
func (b *Builtin) LoadDefaultAPIRoutes() error {
	return b.registerRoutes(map[string]http.Handler{
		"GET /api/v1/me":     b.handler.handleAPIMeGet(),
		"POST /api/v1/token": b.handler.handleAPITokenPost(),
	})
}

// LoadDefaultAdminRoutes configures the read-only admin console.
func (b *Builtin) LoadDefaultAdminRoutes() error {
	return b.registerRoutes(map[string]http.Handler{
		"GET /admin/accounts": b.handler.handleAdminAccountsGet(),
		"GET /admin/logins":   b.handler.handleAdminLoginsGet(),
	})
}

func (b *Builtin) LoadDefaultHealthRoute() error {
	return b.registerRoutes(map[string]http.Handler{
		"GET /healthz": b.handler.handleHealthGet(),
	})
}

func (b *Builtin) limited(h http.Handler) http.Handler {
	if b.limit == nil {
		return h
	}
	return b.limit(h)
}

// registerRoutes registers a set of HTTP routes with their corresponding handlers.
// It accepts a map where the keys are route patterns (e.g., "POST /login")
// and the values are the associated handlers.
//
// If any calls to enforcer.Handle fail, all resulting errors are collected
// and returned as a single error using errors.Join. If all registrations succeed,
// the returned error will be nil.
func (b *Builtin) registerRoutes(routes map[string]http.Handler) error {
	var errs []error
	for pattern, handler := range routes {
		if err := b.enforcer.Handle(pattern, handler); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
