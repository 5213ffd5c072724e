// Package transport issues single authenticated HTTP requests against the
// document store's REST surface.
//
// HTTP status codes are never turned into errors here: the caller decides
// what a non-success status means. Only failures to complete the exchange
// (DNS, connect, TLS, timeout, body read) are reported as *TransportError.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/esdump/pkg/logging"
	"github.com/Sternrassler/esdump/pkg/ratelimit"
)

// Prometheus metrics for store requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "esdump_requests_total",
		Help: "Total store requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "esdump_request_duration_seconds",
		Help:    "Store request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	transportErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "esdump_transport_errors_total",
		Help: "Total transport-level failures by class",
	}, []string{"class"})
)

// AuthScheme selects how requests authenticate against the store.
type AuthScheme string

const (
	// AuthNone sends no credentials.
	AuthNone AuthScheme = "none"

	// AuthBasic sends HTTP basic-auth credentials.
	AuthBasic AuthScheme = "basic"
)

// AuthConfig holds credentials and TLS policy. It is passed by value and
// never mutated after a dump starts.
type AuthConfig struct {
	Scheme   AuthScheme
	Username string
	Password string

	// Insecure disables certificate and host name verification.
	Insecure bool
}

// Config holds the client configuration.
type Config struct {
	// Timeout bounds a single request including reading the body.
	// Zero means no timeout beyond the request context.
	Timeout time.Duration

	// Compression negotiates compressed responses (gzip, deflate, zstd)
	// and decodes them transparently.
	Compression bool

	// Gate, when non-nil, is awaited before every request.
	Gate *ratelimit.Gate

	// UserAgent is sent with every request.
	UserAgent string
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		Compression: true,
		UserAgent:   "esdump/1.0",
	}
}

// Response is a completed HTTP exchange.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the status is in the 2xx range.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client issues requests with one dedicated connection pool. Slice workers
// each own a Client so no connection state crosses slices.
type Client struct {
	httpClient *http.Client
	auth       AuthConfig
	config     Config
	logger     zerolog.Logger
}

// New creates a client for the given credentials.
func New(auth AuthConfig, cfg Config) *Client {
	base := http.DefaultTransport.(*http.Transport).Clone()
	if auth.Insecure {
		base.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // explicit --insecure opt-in
	}

	var rt http.RoundTripper = base
	if cfg.Compression {
		rt = gzhttp.Transport(base)
	}

	return &Client{
		httpClient: &http.Client{
			Transport: rt,
			Timeout:   cfg.Timeout,
		},
		auth:   auth,
		config: cfg,
		logger: logging.NewLogger(logging.ComponentTransport),
	}
}

// Execute performs one request. An empty body issues a GET, a non-empty
// body a POST.
func (c *Client) Execute(ctx context.Context, rawURL string, body []byte) (*Response, error) {
	method := http.MethodGet
	if len(body) > 0 {
		method = http.MethodPost
	}
	return c.Do(ctx, method, rawURL, body)
}

// Do performs one request with an explicit method.
func (c *Client) Do(ctx context.Context, method, rawURL string, body []byte) (*Response, error) {
	endpoint := endpointLabel(rawURL)

	if err := c.config.Gate.Wait(ctx); err != nil {
		return nil, &TransportError{Method: method, URL: redact(rawURL), Err: err}
	}

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.auth.Scheme == AuthBasic {
		req.SetBasicAuth(c.auth.Username, c.auth.Password)
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", method).
		Int("body_bytes", len(body)).
		Msg("Executing store request")

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportFailure(method, rawURL, endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportFailure(method, rawURL, endpoint, fmt.Errorf("read response body: %w", err))
	}

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		c.logger.Debug().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(ClassifyStatus(resp.StatusCode))).
			Msg("Store returned error status")
	}

	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

func (c *Client) transportFailure(method, rawURL, endpoint string, err error) error {
	transportErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
	requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
	c.logger.Debug().Err(err).Str("endpoint", endpoint).Msg("Store request failed")
	return &TransportError{Method: method, URL: redact(rawURL), Err: err}
}

// CloseIdleConnections releases pooled connections.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// endpointLabel maps a request URL onto a small fixed label set so the
// index name never becomes a metric label.
func endpointLabel(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "unknown"
	}

	path := strings.Trim(u.Path, "/")
	switch {
	case path == "_search/scroll":
		return "scroll"
	case strings.HasSuffix(path, "/_search"):
		return "search"
	case strings.HasSuffix(path, "/_count"):
		return "count"
	case strings.HasSuffix(path, "/_mapping"):
		return "mapping"
	case path != "" && !strings.Contains(path, "/"):
		return "index"
	default:
		return "other"
	}
}

// redact strips user info so credentials embedded in --host never reach logs.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.User == nil {
		return rawURL
	}
	return u.Redacted()
}
