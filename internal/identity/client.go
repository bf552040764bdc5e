// Package identity talks to the account API: registration, login, the current
// user and the public user directory.
//
// Every call is a single request with no retries. Expected failures come back
// as the sentinel errors in errors.go; nothing here touches local storage.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/profiledir/internal/logger"
	"github.com/wolfeidau/profiledir/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
)

const (
	// DefaultBaseURL is the account API of a local backend.
	DefaultBaseURL = "http://127.0.0.1:8000/api/account/"

	maxBodyBytes = 1 << 20
)

// Config holds identity client configuration
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string

	// CacheDir enables a disk cache for directory reads. Empty uses memory.
	CacheDir string

	// Transport replaces the default base transport, mostly for tests.
	Transport http.RoundTripper
}

// DefaultConfig returns a default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		Timeout:   15 * time.Second,
		UserAgent: "profiledir",
	}
}

// Client calls the account API.
type Client struct {
	baseURL   *url.URL
	timeout   time.Duration
	userAgent string

	transport http.RoundTripper
	plain     *http.Client
	directory *http.Client
}

// New creates a client for the API rooted at cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}

	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host are required", cfg.BaseURL)
	}

	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	transport := otelhttp.NewTransport(gzhttp.Transport(logger.NewHTTPRequests(log.Logger, base)))

	var cache httpcache.Cache = httpcache.NewMemoryCache()
	if cfg.CacheDir != "" {
		cache = diskcache.New(cfg.CacheDir)
	}
	cached := httpcache.NewTransport(cache)
	cached.Transport = transport

	return &Client{
		baseURL:   baseURL,
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
		transport: transport,
		plain:     &http.Client{Timeout: cfg.Timeout, Transport: transport},
		directory: &http.Client{Timeout: cfg.Timeout, Transport: cached},
	}, nil
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// authenticated returns an HTTP client that sends token as a bearer credential.
func (c *Client) authenticated(token string) *http.Client {
	return &http.Client{
		Timeout: c.timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   c.transport,
		},
	}
}

func (c *Client) endpoint(elem ...string) string {
	return c.baseURL.JoinPath(elem...).String()
}

// response is a fully read API response.
type response struct {
	status int
	body   []byte
}

func (r *response) ok() bool {
	return r.status >= 200 && r.status < 300
}

// do sends one request and reads the body. Transport failures are returned
// wrapped in ErrUnreachable; any status is returned as a response.
func (c *Client) do(ctx context.Context, hc *http.Client, op, method, endpoint string, payload any) (*response, error) {
	started := time.Now()

	requestID, err := uuid.NewV7()
	if err != nil {
		requestID = uuid.New()
	}

	reqLogger := log.With().
		Str("op", op).
		Str("method", method).
		Str("requestID", requestID.String()).
		Logger()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID.String())
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		telemetry.GetMetrics().RecordIdentityRequest(ctx, op, "unreachable", time.Since(started))
		reqLogger.Debug().Err(err).Dur("duration", time.Since(started)).Msg("identity request failed")
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreachable, op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		telemetry.GetMetrics().RecordIdentityRequest(ctx, op, "unreachable", time.Since(started))
		return nil, fmt.Errorf("%w: %s: read body: %v", ErrUnreachable, op, err)
	}

	outcome := "ok"
	if resp.StatusCode >= 300 {
		outcome = strings.ToLower(http.StatusText(resp.StatusCode))
	}
	telemetry.GetMetrics().RecordIdentityRequest(ctx, op, outcome, time.Since(started))

	reqLogger.Debug().
		Int("status", resp.StatusCode).
		Bool("cached", resp.Header.Get(httpcache.XFromCache) != "").
		Dur("duration", time.Since(started)).
		Msg("identity request")

	return &response{status: resp.StatusCode, body: data}, nil
}

// decode unmarshals a success body. A 2xx response that is not the expected
// JSON is treated the same as an unreachable server.
func decode(op string, resp *response, v any) error {
	if err := json.Unmarshal(resp.body, v); err != nil {
		return fmt.Errorf("%w: %s: malformed response: %v", ErrUnreachable, op, err)
	}
	return nil
}

func unexpected(op string, resp *response) error {
	return fmt.Errorf("%w: %s: unexpected status %d", ErrUnreachable, op, resp.status)
}
