package enforcer

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Ryan-Har/authgate/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRouter is a minimal implementation of Router for testing.
// It records which patterns were handled.
type mockRouter struct {
	handledPaths []string
	mux          *http.ServeMux
}

func newMockRouter() *mockRouter {
	return &mockRouter{mux: http.NewServeMux()}
}

func (m *mockRouter) Handle(pattern string, handler http.Handler) {
	m.handledPaths = append(m.handledPaths, pattern)
	m.mux.Handle(pattern, handler)
}

func teapot(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte(body))
	})
}

func newRouterEnforcer(gate Gate) (*Enforcer, *mockRouter) {
	router := newMockRouter()
	return NewEnforcer(testutil.NoopLogger(), router, gate, nil), router
}

func TestParseRoute(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantMethod string
		wantPath   string
	}{
		{"MethodAndPath", "GET /admin", "GET", "/admin"},
		{"PathOnly", "/dashboard", "", "/dashboard"},
		{"EmptyString", "", "", "/"},
		{"WhitespaceOnly", "   ", "", "/"},
		{"MethodOnly", "POST", "", "/"},
		{"MethodAndPathWithSpaces", "  PUT   /api/users  ", "PUT", "/api/users"},
		{"LowercaseMethod", "get /lowercase", "GET", "/lowercase"},
		{"UppercasePath", "get /UPPERCASE", "GET", "/uppercase"},
		{"ComplexPath", "DELETE /api/v1/comments/123", "DELETE", "/api/v1/comments/123"},
		{"RootPath", "GET /", "GET", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotMethod, gotPath := parseRoute(tt.input)
			assert.Equal(t, tt.wantMethod, gotMethod)
			assert.Equal(t, tt.wantPath, gotPath)
		})
	}
}

func TestHandle_RegistersOneDispatcherPerPath(t *testing.T) {
	e, router := newRouterEnforcer(&fakeGate{})

	require.NoError(t, e.Handle("GET /foo", teapot("get")))
	require.NoError(t, e.Handle("POST /foo", teapot("post")))
	require.NoError(t, e.Handle("/bar", teapot("bar")))

	assert.Equal(t, []string{"/foo", "/bar"}, router.handledPaths)
	assert.Contains(t, e.handlers["/foo"], "GET")
	assert.Contains(t, e.handlers["/foo"], "POST")
	assert.Contains(t, e.handlers["/bar"], "")
}

func TestHandle_DuplicateRoute(t *testing.T) {
	e, _ := newRouterEnforcer(&fakeGate{})

	require.NoError(t, e.Handle("GET /dup", teapot("first")))
	err := e.Handle("get /dup", teapot("second"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicatePathAndMethod))

	var dupErr *DuplicatePathAndMethodError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, "/dup", dupErr.Path)
	assert.Equal(t, "GET", dupErr.Method)
}

func TestHandle_NilHandler(t *testing.T) {
	e, router := newRouterEnforcer(&fakeGate{})
	require.Error(t, e.Handle("GET /nil", nil))
	assert.Empty(t, router.handledPaths)
}

func TestDispatch(t *testing.T) {
	e, router := newRouterEnforcer(sessionsGate(newSession("sess-alice", "alice")))
	require.NoError(t, e.Handle("GET /hello", teapot("GET handler")))
	require.NoError(t, e.Handle("/any", teapot("ANY handler")))
	require.NoError(t, e.HandleFunc("POST /only-post", teapot("POST handler").ServeHTTP))

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"exact method match", http.MethodGet, "/hello", http.StatusTeapot, "GET handler"},
		{"method-less route accepts any method", http.MethodDelete, "/any", http.StatusTeapot, "ANY handler"},
		{"HandleFunc registers", http.MethodPost, "/only-post", http.StatusTeapot, "POST handler"},
		{"unregistered method", http.MethodGet, "/only-post", http.StatusMethodNotAllowed, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestDispatch_MethodNotAllowedListsMethods(t *testing.T) {
	e, router := newRouterEnforcer(&fakeGate{})
	require.NoError(t, e.Handle("POST /login", teapot("post")))
	require.NoError(t, e.Handle("DELETE /login", teapot("delete")))

	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	router.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "DELETE, POST", rec.Header().Get("Allow"))
	assert.Contains(t, rec.Body.String(), "method not allowed")
}

func TestDispatch_AppliesPolicy(t *testing.T) {
	e, router := newRouterEnforcer(sessionsGate(newSession("sess-alice", "alice"), newSession("sess-admin", "admin")))
	e.SetPolicy("/api/v1/me", "GET", LevelAuthenticated)
	e.SetPolicy("/admin", "*", LevelAdmin)

	require.NoError(t, e.Handle("GET /api/v1/me", identityEcho()))
	require.NoError(t, e.Handle("GET /admin/accounts", identityEcho()))
	require.NoError(t, e.Handle("GET /open", identityEcho()))

	tests := []struct {
		name       string
		path       string
		cookie     string
		wantStatus int
		wantBody   string
	}{
		{"public route sees caller", "/open", "sess-alice", http.StatusOK, "alice"},
		{"public route anonymous", "/open", "", http.StatusOK, "anonymous"},
		{"authenticated route", "/api/v1/me", "sess-alice", http.StatusOK, "alice"},
		{"authenticated route anonymous", "/api/v1/me", "", http.StatusUnauthorized, ""},
		{"admin route inherited from prefix", "/admin/accounts", "sess-admin", http.StatusOK, "admin"},
		{"admin route rejects user", "/admin/accounts", "sess-alice", http.StatusSeeOther, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.cookie != "" {
				req = withCookie(req, tt.cookie)
			}
			rec := httptest.NewRecorder()
			router.mux.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}
