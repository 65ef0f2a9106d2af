package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Ryan-Har/authgate/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newProvider starts a fake ip-api server. handler receives the query part of the path.
func newProvider(t *testing.T, handler func(w http.ResponseWriter, query string)) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		query := r.URL.Path[len("/json/"):]
		handler(w, query)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestClient(srv *httptest.Server, opts ...Option) *Client {
	opts = append([]Option{WithEndpoint(srv.URL + "/json/")}, opts...)
	return New(testutil.NoopLogger(), opts...)
}

func TestResolve_Success(t *testing.T) {
	var gotQuery string
	srv, _ := newProvider(t, func(w http.ResponseWriter, query string) {
		gotQuery = query
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"success","country":"Germany","city":"Berlin","query":"8.8.8.8"}`))
	})

	loc := newTestClient(srv).Resolve(context.Background(), "8.8.8.8")
	assert.Equal(t, Location{City: "Berlin", Country: "Germany"}, loc)
	assert.Equal(t, "Berlin, Germany", loc.String())
	assert.Equal(t, "8.8.8.8", gotQuery)
}

func TestResolve_LoopbackSendsEmptyQuery(t *testing.T) {
	for _, ip := range []string{"127.0.0.1", "::1", "::ffff:127.0.0.1", ""} {
		t.Run(ip, func(t *testing.T) {
			gotQuery := "unset"
			srv, _ := newProvider(t, func(w http.ResponseWriter, query string) {
				gotQuery = query
				w.Write([]byte(`{"status":"success","country":"Canada","city":"Toronto"}`))
			})

			loc := newTestClient(srv).Resolve(context.Background(), ip)
			assert.Equal(t, "Toronto, Canada", loc.String())
			assert.Equal(t, "", gotQuery)
		})
	}
}

func TestResolve_FailuresYieldUnknown(t *testing.T) {
	tests := []struct {
		name    string
		handler func(w http.ResponseWriter, query string)
	}{
		{"provider error status", func(w http.ResponseWriter, _ string) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"rate limited", func(w http.ResponseWriter, _ string) {
			w.WriteHeader(http.StatusTooManyRequests)
		}},
		{"malformed body", func(w http.ResponseWriter, _ string) {
			w.Write([]byte(`{"status":`))
		}},
		{"lookup failed", func(w http.ResponseWriter, _ string) {
			w.Write([]byte(`{"status":"fail","message":"private range","query":"10.0.0.1"}`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newProvider(t, tt.handler)
			loc := newTestClient(srv).Resolve(context.Background(), "10.0.0.1")
			assert.Equal(t, Unknown, loc)
			assert.Equal(t, "Unknown, Unknown", loc.String())
		})
	}
}

func TestResolve_PartialAnswer(t *testing.T) {
	srv, _ := newProvider(t, func(w http.ResponseWriter, _ string) {
		w.Write([]byte(`{"status":"success","country":"Iceland","city":""}`))
	})

	loc := newTestClient(srv).Resolve(context.Background(), "1.2.3.4")
	assert.Equal(t, Location{City: "Unknown", Country: "Iceland"}, loc)
}

func TestResolve_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv, _ := newProvider(t, func(w http.ResponseWriter, _ string) {
		<-release
	})
	defer close(release)

	c := newTestClient(srv, WithTimeout(50*time.Millisecond))

	start := time.Now()
	loc := c.Resolve(context.Background(), "1.2.3.4")
	assert.Equal(t, Unknown, loc)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestResolve_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL + "/json/"
	srv.Close()

	c := New(testutil.NoopLogger(), WithEndpoint(endpoint))
	assert.Equal(t, Unknown, c.Resolve(context.Background(), "1.2.3.4"))
}

func TestResolve_CachesAnswers(t *testing.T) {
	srv, hits := newProvider(t, func(w http.ResponseWriter, _ string) {
		w.Write([]byte(`{"status":"success","country":"Japan","city":"Osaka"}`))
	})
	c := newTestClient(srv)

	for i := 0; i < 3; i++ {
		assert.Equal(t, "Osaka, Japan", c.Resolve(context.Background(), "5.6.7.8").String())
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestResolve_DoesNotCacheErrors(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	srv, hits := newProvider(t, func(w http.ResponseWriter, _ string) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"status":"success","country":"Chile","city":"Santiago"}`))
	})
	c := newTestClient(srv)

	assert.Equal(t, Unknown, c.Resolve(context.Background(), "9.9.9.9"))
	fail.Store(false)
	assert.Equal(t, "Santiago, Chile", c.Resolve(context.Background(), "9.9.9.9").String())
	assert.Equal(t, int32(2), hits.Load())
}

func TestResolve_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	srv, hits := newProvider(t, func(w http.ResponseWriter, _ string) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	c := newTestClient(srv, WithCache(0, 0))

	for i := 0; i < 10; i++ {
		assert.Equal(t, Unknown, c.Resolve(context.Background(), "1.2.3.4"))
	}
	assert.Equal(t, int32(5), hits.Load(), "provider must not be called while the breaker is open")
}

func TestResolve_ConcurrentLookupsAreSafe(t *testing.T) {
	srv, hits := newProvider(t, func(w http.ResponseWriter, _ string) {
		time.Sleep(20 * time.Millisecond)
		w.Write([]byte(`{"status":"success","country":"Kenya","city":"Nairobi"}`))
	})
	c := newTestClient(srv)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, "Nairobi, Kenya", c.Resolve(context.Background(), "41.0.0.1").String())
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, hits.Load(), int32(20))
	assert.GreaterOrEqual(t, hits.Load(), int32(1))
}

func TestQuery(t *testing.T) {
	tests := map[string]string{
		"":                 "",
		"  ":               "",
		"localhost":        "",
		"127.0.0.1":        "",
		"127.8.9.10":       "",
		"::1":              "",
		"::ffff:127.0.0.1": "",
		"0.0.0.0":          "",
		"8.8.8.8":          "8.8.8.8",
		"::ffff:8.8.4.4":   "8.8.4.4",
		"2001:db8::1":      "2001:db8::1",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, Query(in))
		})
	}
}

func TestNopResolver(t *testing.T) {
	var r Resolver = NopResolver{}
	require.Equal(t, Unknown, r.Resolve(context.Background(), "8.8.8.8"))
}

type countingTransport struct {
	calls atomic.Int32
}

func (t *countingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	t.calls.Add(1)
	return http.DefaultTransport.RoundTrip(r)
}

func TestResolve_UsesProvidedHTTPClient(t *testing.T) {
	srv, _ := newProvider(t, func(w http.ResponseWriter, query string) {
		w.Write([]byte(`{"status":"success","country":"France","city":"Paris"}`))
	})
	transport := &countingTransport{}

	c := newTestClient(srv, WithHTTPClient(&http.Client{Transport: transport}))
	assert.Equal(t, Location{City: "Paris", Country: "France"}, c.Resolve(context.Background(), "2.2.2.2"))
	assert.Equal(t, int32(1), transport.calls.Load())
}
