// Package linkedin is a client for the LinkedIn Marketing REST API.
//
// Every request goes through a token bucket limiter, a retry policy with
// jittered exponential backoff and a circuit breaker. Successful GET
// responses are cached for a few minutes.
package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/campaignlens/backend/internal/infrastructure/cache"
	"github.com/campaignlens/backend/internal/infrastructure/config"
	"github.com/campaignlens/backend/internal/infrastructure/telemetry"
	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL          = "https://api.linkedin.com/rest"
	DefaultAPIVersion       = "202501"
	DefaultRateLimitPerHour = 500
	DefaultCacheTTL         = 5 * time.Minute
	DefaultTimeout          = 10 * time.Second

	restliProtocolVersion = "2.0.0"
	maxErrorBody          = 4 << 10
)

var (
	// ErrRateLimited is returned when the hourly request budget is spent or
	// the API answers 429.
	ErrRateLimited = errors.New("linkedin: rate limit exceeded")
	// ErrUnauthorized is returned for 401 and 403 responses.
	ErrUnauthorized = errors.New("linkedin: unauthorized")
	// ErrCircuitOpen is returned while the circuit breaker rejects calls.
	ErrCircuitOpen = errors.New("linkedin: circuit open")
)

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("linkedin: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("linkedin: status %d", e.StatusCode)
}

// Is maps well-known statuses onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	}
	return false
}

// Client talks to the LinkedIn Marketing API.
type Client struct {
	baseURL    string
	version    string
	token      string
	perHour    int
	cacheTTL   time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      cache.Cache
	breaker    circuitbreaker.CircuitBreaker[[]byte]
	reads      failsafe.Executor[[]byte]
	writes     failsafe.Executor[[]byte]
	metrics    *Metrics
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithCache enables the GET response cache.
func WithCache(c cache.Cache) Option {
	return func(cl *Client) {
		if c != nil {
			cl.cache = cache.Namespaced(c, "linkedin")
		}
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(cl *Client) { cl.httpClient = h }
}

// WithMetrics records request metrics.
func WithMetrics(m *Metrics) Option {
	return func(cl *Client) { cl.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

// NewClient builds a client from configuration. Zero values take the
// package defaults.
func NewClient(cfg config.LinkedInConfig, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.RateLimitPerHour <= 0 {
		cfg.RateLimitPerHour = DefaultRateLimitPerHour
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	if cfg.RetryMaxBackoff < cfg.RetryBackoff {
		cfg.RetryMaxBackoff = cfg.RetryBackoff
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerWindow < cfg.BreakerFailures {
		cfg.BreakerWindow = cfg.BreakerFailures
	}
	if cfg.BreakerDelay <= 0 {
		cfg.BreakerDelay = 30 * time.Second
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		version:    cfg.APIVersion,
		token:      cfg.AccessToken,
		perHour:    cfg.RateLimitPerHour,
		cacheTTL:   cfg.CacheTTL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Every(time.Hour/time.Duration(cfg.RateLimitPerHour)), cfg.RateLimitPerHour),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	retry := retrypolicy.NewBuilder[[]byte]().
		HandleIf(func(_ []byte, err error) bool { return isRetryable(err) }).
		WithBackoff(cfg.RetryBackoff, cfg.RetryMaxBackoff).
		WithJitterFactor(0.1).
		WithMaxRetries(cfg.MaxRetries).
		ReturnLastFailure().
		OnRetry(func(e failsafe.ExecutionEvent[[]byte]) {
			c.logger.Warn("Retrying LinkedIn request",
				zap.Int("attempt", e.Attempts()),
				zap.Error(e.LastError()),
			)
		}).
		Build()

	c.breaker = circuitbreaker.NewBuilder[[]byte]().
		HandleIf(func(_ []byte, err error) bool { return isRetryable(err) }).
		WithFailureThresholdRatio(cfg.BreakerFailures, cfg.BreakerWindow).
		WithDelay(cfg.BreakerDelay).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			c.logger.Warn("LinkedIn circuit breaker state change",
				zap.String("from", stateName(e.OldState)),
				zap.String("to", stateName(e.NewState)),
			)
		}).
		Build()

	c.reads = failsafe.With[[]byte](retry, c.breaker)
	c.writes = failsafe.With[[]byte](c.breaker)
	return c
}

// isRetryable reports whether err is transient: network failures, 429 and 5xx.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.DeadlineExceeded)
}

func stateName(s circuitbreaker.State) string {
	switch s {
	case circuitbreaker.ClosedState:
		return "closed"
	case circuitbreaker.HalfOpenState:
		return "half-open"
	case circuitbreaker.OpenState:
		return "open"
	}
	return "unknown"
}

// request performs one API call through the resilience stack and returns the
// raw response body. GET responses are served from and stored in the cache.
func (c *Client) request(ctx context.Context, op, method, path string, query url.Values, body []byte) ([]byte, error) {
	endpoint := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		endpoint += "?" + encodeQuery(query)
	}

	cacheable := method == http.MethodGet && c.cache != nil
	if cacheable {
		if data, ok, err := c.cache.Get(ctx, endpoint); err == nil && ok {
			c.metrics.cacheResult("hit")
			return data, nil
		}
		c.metrics.cacheResult("miss")
	}

	ctx, span := telemetry.StartClientSpan(ctx, "linkedin", op)
	defer span.End()

	start := time.Now()
	// Only GETs are retried; writes pass through the breaker once.
	executor := c.writes
	if method == http.MethodGet {
		executor = c.reads
	}
	data, err := executor.WithContext(ctx).Get(func() ([]byte, error) {
		return c.send(ctx, method, endpoint, body)
	})
	c.metrics.observe(op, statusLabel(err), time.Since(start))
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrOpen) {
			err = fmt.Errorf("%w: %w", ErrCircuitOpen, analytics.ErrUpstreamUnavailable)
		}
		telemetry.RecordError(span, err)
		c.logger.Warn("LinkedIn request failed",
			zap.String("operation", op),
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}

	if cacheable {
		if err := c.cache.Set(ctx, endpoint, data, c.cacheTTL); err != nil {
			c.logger.Debug("LinkedIn cache write failed", zap.Error(err))
		}
	}
	return data, nil
}

func (c *Client) send(ctx context.Context, method, endpoint string, body []byte) ([]byte, error) {
	if !c.limiter.Allow() {
		c.metrics.rateLimited()
		return nil, ErrRateLimited
	}

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-Restli-Protocol-Version", restliProtocolVersion)
	req.Header.Set("LinkedIn-Version", c.version)
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(resp.StatusCode, data)
	}
	return data, nil
}

func newAPIError(status int, body []byte) *APIError {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	var payload struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &payload)
	return &APIError{StatusCode: status, Message: payload.Message, Body: body}
}

func statusLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("%d", apiErr.StatusCode)
	}
	switch {
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	}
	return "error"
}

// encodeQuery keeps Rest.li list syntax such as List(urn:li:x:1) readable;
// the API rejects percent-encoded parentheses and colons inside List(...).
func encodeQuery(q url.Values) string {
	enc := q.Encode()
	r := strings.NewReplacer("%28", "(", "%29", ")", "%3A", ":", "%2C", ",")
	return r.Replace(enc)
}

func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values, dst any) error {
	data, err := c.request(ctx, op, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

// HealthStatus reports the client's local resilience state.
type HealthStatus struct {
	RateLimitRemaining int    `json:"rate_limit_remaining"`
	RateLimitPerHour   int    `json:"rate_limit_per_hour"`
	CircuitState       string `json:"circuit_state"`
	CacheEnabled       bool   `json:"cache_enabled"`
	APIVersion         string `json:"api_version"`
}

// Health returns the remaining request budget and breaker state.
func (c *Client) Health() HealthStatus {
	remaining := int(c.limiter.Tokens())
	if remaining < 0 {
		remaining = 0
	}
	return HealthStatus{
		RateLimitRemaining: remaining,
		RateLimitPerHour:   c.perHour,
		CircuitState:       stateName(c.breaker.State()),
		CacheEnabled:       c.cache != nil,
		APIVersion:         c.version,
	}
}

// ClearCache drops every cached response.
func (c *Client) ClearCache(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Clear(ctx)
}
