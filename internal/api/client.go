package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/rickgao/fmp-data/internal/auth"
	"github.com/rickgao/fmp-data/internal/version"
)

// DefaultBaseURL is the FMP production host.
const DefaultBaseURL = "https://financialmodelingprep.com"

// Client provides access to the FMP REST API.
type Client struct {
	baseURL    string
	creds      *auth.Credentials
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *Limiter
	observer   Observer
	userAgent  string

	maxRetries       int
	retryBackoff     time.Duration
	rateLimitRetries int
	pageSize         int
}

// Observer receives per-request measurements. internal/metrics implements it.
type Observer interface {
	ObserveRequest(endpoint string, status int, elapsed time.Duration)
	ObserveRateLimit(wait time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveRequest(string, int, time.Duration) {}
func (nopObserver) ObserveRateLimit(time.Duration)            {}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new REST API client. creds may be nil for
// endpoints that need no key.
func NewClient(baseURL string, creds *auth.Credentials, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		creds:   creds,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:           slog.Default(),
		observer:         nopObserver{},
		userAgent:        version.UserAgent(),
		maxRetries:       5,
		retryBackoff:     time.Second,
		rateLimitRetries: 8,
		pageSize:         1000,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.limiter == nil {
		c.limiter = NewLimiter(LimiterConfig{})
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the transient-failure retry configuration.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithRateLimitRetries sets how many rate-limited responses a single
// request tolerates before giving up.
func WithRateLimitRetries(n int) ClientOption {
	return func(c *Client) {
		c.rateLimitRetries = n
	}
}

// WithLimiter shares a rate limiter across clients and workers.
func WithLimiter(l *Limiter) ClientOption {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithPageSize sets the limit sent to paged endpoints.
func WithPageSize(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithObserver sets the request metrics sink.
func WithObserver(o Observer) ClientOption {
	return func(c *Client) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Limiter returns the client's shared rate limiter.
func (c *Client) Limiter() *Limiter {
	return c.limiter
}

// PageSize returns the limit sent to paged endpoints.
func (c *Client) PageSize() int {
	return c.pageSize
}
