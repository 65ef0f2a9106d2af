package enforcer

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/Ryan-Har/authgate/pkg/models"
)

// Level is the access level a route requires.
type Level int

const (
	LevelPublic Level = iota
	LevelAuthenticated
	LevelAdmin
)

func (l Level) String() string {
	switch l {
	case LevelPublic:
		return "public"
	case LevelAuthenticated:
		return "authenticated"
	case LevelAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// Enforcer manages access control policies and wraps route handlers with
// authentication and authorization logic. It is typically used to guard routes
// based on the levels defined in the Policies map.
type Enforcer struct {
	log      *slog.Logger
	Policies map[string]map[string]Level        // e.g route: {GET: LevelPublic, POST: LevelAdmin}
	handlers map[string]map[string]http.Handler // path -> method -> handler internal mapping
	router   Router                             // used for middlewares and creating routes
	gate     Gate
	Config
	mu sync.RWMutex // mutex to protect policies and handlers maps
}

type Config struct {
	CookieName              string // name of the session cookie
	CookieSecure            bool   // marks the cookie Secure. Must be true in production
	CookiePath              string // path set on the session cookie
	RedirectOnAuthErrorPath string // where browser requests are sent when the gate rejects them
}

// Gate is the part of the auth service the Enforcer needs to turn a request
// credential into a live session.
type Gate interface {
	// Session returns the live session for a cookie value, or models.ErrUnauthorized.
	Session(ctx context.Context, sessionID string) (*models.Session, error)

	// ResolveToken returns the live session a bearer token is bound to, or models.ErrUnauthorized.
	ResolveToken(ctx context.Context, token string) (*models.Session, error)

	// IsAdmin reports whether the identity may use admin routes.
	IsAdmin(identity *models.Identity) bool
}

// NewEnforcer initializes and returns a new Enforcer instance.
//
// Params:
//   - logger: a slog.Logger for structured logging
//   - router: an implementation of the Router interface used to register and manage routes
//   - gate: resolves cookies and bearer tokens to sessions
//   - config: cookie and redirect settings, nil for the defaults
//
// Example:
//
//	enforcer := NewEnforcer(logger, mux, authService, nil)
func NewEnforcer(logger *slog.Logger, router Router, gate Gate, config *Config) *Enforcer {
	if config == nil {
		config = DefaultConfig()
	}

	return &Enforcer{
		log:      logger,
		Policies: make(map[string]map[string]Level),
		handlers: make(map[string]map[string]http.Handler),
		router:   router,
		gate:     gate,
		Config:   *config,
	}
}

// DefaultConfig returns the cookie settings used when none are given.
// CookieSecure defaults to false so the cookie works over plain http in development.
func DefaultConfig() *Config {
	return &Config{
		CookieName:              "session_token",
		CookiePath:              "/",
		CookieSecure:            false,
		RedirectOnAuthErrorPath: "/",
	}
}

// SetPolicy allows defining the minimum required level for a given resource path and HTTP method.
// Use "*" as the method to apply the policy to all methods for that path.
func (e *Enforcer) SetPolicy(resourcePath string, method string, required Level) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !strings.HasPrefix(resourcePath, "/") {
		resourcePath = "/" + resourcePath
	}
	if _, ok := e.Policies[resourcePath]; !ok {
		e.Policies[resourcePath] = make(map[string]Level)
	}
	e.Policies[resourcePath][strings.ToUpper(method)] = required
}

// FindMatchingPolicy finds the most specific policy for a given resource path and method.
// It prioritizes exact method matches over wildcard method matches. Paths
// without any policy are public.
func (e *Enforcer) FindMatchingPolicy(resourcePath, method string) (Level, bool) {
	method = strings.ToUpper(method)
	pathsToCheck := buildPrefixes(resourcePath)

	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, p := range pathsToCheck {
		if methodPolicies, ok := e.Policies[p]; ok {
			if required, methodOk := methodPolicies[method]; methodOk {
				return required, true
			}
			if required, anyMethodOk := methodPolicies["*"]; anyMethodOk {
				return required, true
			}
		}
	}

	return LevelPublic, false
}

// buildPrefixes returns a list of paths to check from most specific to least specific.
// For "/a/b/c" it returns ["/a/b/c", "/a/b", "/a", "/"].
func buildPrefixes(path string) []string {
	if path == "" || path == "/" {
		return []string{"/"}
	}

	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) == 1 && segments[0] == "" {
		return []string{"/"}
	}

	prefixes := make([]string, 0, len(segments)+1)
	for i := len(segments); i > 0; i-- {
		prefixes = append(prefixes, "/"+strings.Join(segments[:i], "/"))
	}
	return append(prefixes, "/")
}
