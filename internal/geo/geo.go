// Package geo resolves client ip addresses to a coarse city and country
// using the ip-api.com JSON endpoint.
package geo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Ryan-Har/authgate/internal/metrics"
	"github.com/goccy/go-json"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultEndpoint  = "http://ip-api.com/json/"
	DefaultTimeout   = 900 * time.Millisecond
	DefaultCacheSize = 1024
	DefaultCacheTTL  = 6 * time.Hour

	unknown = "Unknown"
)

// Location is a resolved city and country. Both fields are "Unknown" when
// the lookup failed.
type Location struct {
	City    string `json:"city"`
	Country string `json:"country"`
}

// Unknown is returned for every failed lookup.
var Unknown = Location{City: unknown, Country: unknown}

// String renders the location as "City, Country".
func (l Location) String() string {
	return l.City + ", " + l.Country
}

// Resolver maps an ip address to a Location. Implementations never fail,
// a lookup that cannot complete yields Unknown.
type Resolver interface {
	Resolve(ctx context.Context, ip string) Location
}

// NopResolver resolves every address to Unknown without any network traffic.
type NopResolver struct{}

func (NopResolver) Resolve(context.Context, string) Location { return Unknown }

// errLookupFailed marks a provider that answered but could not locate the address.
var errLookupFailed = errors.New("provider could not locate address")

type apiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	City    string `json:"city"`
	Country string `json:"country"`
}

// Client is an ip-api.com Resolver. Results are cached per query, concurrent
// lookups of one address share a single request, and a circuit breaker stops
// calling the provider while it is failing.
type Client struct {
	log        *slog.Logger
	httpClient *http.Client
	endpoint   string
	timeout    time.Duration
	cacheSize  int
	cacheTTL   time.Duration

	cache   *expirable.LRU[string, Location]
	group   singleflight.Group
	breaker *gobreaker.CircuitBreaker[Location]
}

type Option func(*Client)

// WithEndpoint overrides the provider base URL. The query is appended to it.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if endpoint != "" {
			c.endpoint = endpoint
		}
	}
}

// WithTimeout bounds each provider request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithCache sets the result cache size and entry lifetime. A size of zero disables caching.
func WithCache(size int, ttl time.Duration) Option {
	return func(c *Client) {
		c.cacheSize = size
		if ttl > 0 {
			c.cacheTTL = ttl
		}
	}
}

func New(logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		log:        logger,
		httpClient: &http.Client{},
		endpoint:   DefaultEndpoint,
		timeout:    DefaultTimeout,
		cacheSize:  DefaultCacheSize,
		cacheTTL:   DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.cacheSize > 0 {
		c.cache = expirable.NewLRU[string, Location](c.cacheSize, nil, c.cacheTTL)
	}

	c.breaker = gobreaker.NewCircuitBreaker[Location](gobreaker.Settings{
		Name:        "ip-api",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// an answered lookup means the provider is healthy
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errLookupFailed)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn("geo circuit breaker changed state", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// Resolve returns the location of ip. Loopback and empty addresses are sent
// as an empty query, which the provider answers with the caller's own public address.
func (c *Client) Resolve(ctx context.Context, ip string) Location {
	query := Query(ip)

	if c.cache != nil {
		if loc, ok := c.cache.Get(query); ok {
			metrics.GeoLookups.WithLabelValues(metrics.OutcomeCacheHit).Inc()
			return loc
		}
	}

	v, err, _ := c.group.Do(query, func() (any, error) {
		return c.breaker.Execute(func() (Location, error) {
			return c.fetch(ctx, query)
		})
	})

	switch {
	case err == nil:
		loc := v.(Location)
		metrics.GeoLookups.WithLabelValues(metrics.OutcomeSuccess).Inc()
		c.remember(query, loc)
		return loc
	case errors.Is(err, errLookupFailed):
		metrics.GeoLookups.WithLabelValues(metrics.OutcomeSuccess).Inc()
		c.remember(query, Unknown)
		return Unknown
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.GeoLookups.WithLabelValues(metrics.OutcomeOpen).Inc()
		return Unknown
	default:
		metrics.GeoLookups.WithLabelValues(metrics.OutcomeError).Inc()
		c.log.Debug("geo lookup failed", "ip", ip, "err", err)
		return Unknown
	}
}

func (c *Client) remember(query string, loc Location) {
	if c.cache != nil {
		c.cache.Add(query, loc)
	}
}

func (c *Client) fetch(ctx context.Context, query string) (Location, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+url.PathEscape(query), nil)
	if err != nil {
		return Unknown, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Unknown, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Unknown, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Unknown, fmt.Errorf("decode response: %w", err)
	}
	if body.Status != "success" {
		return Unknown, fmt.Errorf("%w: %s", errLookupFailed, body.Message)
	}

	loc := Location{City: body.City, Country: body.Country}
	if loc.City == "" {
		loc.City = unknown
	}
	if loc.Country == "" {
		loc.Country = unknown
	}
	return loc, nil
}

// Query returns the value sent to the provider for ip. Loopback, unspecified
// and empty addresses map to "".
func Query(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" || strings.EqualFold(ip, "localhost") {
		return ""
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ip
	}
	if parsed.IsLoopback() || parsed.IsUnspecified() {
		return ""
	}
	// collapse IPv4-mapped IPv6 so the cache key is stable
	if v4 := parsed.To4(); v4 != nil {
		return v4.String()
	}
	return parsed.String()
}
