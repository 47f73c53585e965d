// Package client provides the HTTP client used by the load scenarios and the
// session bootstrap. It keeps a cookie jar like a browser, follows redirects
// unless told not to, and reports every request to an optional observer.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/config"
)

// ErrNoBaseURL is returned by NewClient for an empty target.
var ErrNoBaseURL = errors.New("client: base URL is required")

// maxRedirects matches what browsers and k6 allow.
const maxRedirects = 10

// Client is safe for concurrent use by every virtual user.
type Client struct {
	httpClient  *http.Client
	jar         http.CookieJar
	baseURL     *url.URL
	headers     map[string]string
	retryConfig RetryConfig
	observer    Observer
	limiter     Limiter
	mu          sync.RWMutex
}

// Limiter gates the start of every request attempt.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxRetries  int
	RetryDelay  time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	ShouldRetry func(resp *http.Response, err error) bool
}

// NoRetry is the load-run default: every attempt is measured on its own.
func NoRetry() RetryConfig {
	return RetryConfig{}
}

// DefaultRetryConfig retries transport errors, 5xx and 429 three times.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		RetryDelay: 500 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2.0,
		ShouldRetry: func(resp *http.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		},
	}
}

// RetryFromConfig converts the YAML retry block.
func RetryFromConfig(cfg config.RetryConfig) RetryConfig {
	if cfg.MaxRetries <= 0 {
		return NoRetry()
	}
	rc := DefaultRetryConfig()
	rc.MaxRetries = cfg.MaxRetries
	if cfg.RetryDelay > 0 {
		rc.RetryDelay = cfg.RetryDelay
	}
	if cfg.MaxDelay > 0 {
		rc.MaxDelay = cfg.MaxDelay
	}
	if cfg.Multiplier > 0 {
		rc.Multiplier = cfg.Multiplier
	}
	return rc
}

// Observation describes one completed HTTP exchange (one attempt).
type Observation struct {
	Name       string
	Method     string
	URL        string
	StatusCode int
	Duration   time.Duration
	// Size is the number of response body bytes read.
	Size int64
	Err  error
}

// Observer receives every Observation. It must be safe for concurrent use.
type Observer func(Observation)

// NewClient creates a client for the target. A nil retryCfg means no retries.
func NewClient(cfg config.TargetConfig, retryCfg *RetryConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrNoBaseURL
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("client: invalid base URL %q", cfg.BaseURL)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	rc := NoRetry()
	if retryCfg != nil {
		rc = *retryCfg
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("client: creating cookie jar: %w", err)
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.TLSSkipVerify, //nolint:gosec // opt-in for self-signed test instances
		},
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 50,
		IdleConnTimeout:     90 * time.Second,
	}

	follow := cfg.FollowRedirects == nil || *cfg.FollowRedirects
	httpClient := &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
		Jar:       jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if !follow {
				return http.ErrUseLastResponse
			}
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	c := &Client{
		httpClient:  httpClient,
		jar:         jar,
		baseURL:     base,
		headers:     make(map[string]string),
		retryConfig: rc,
	}
	if cfg.UserAgent != "" {
		c.headers["User-Agent"] = cfg.UserAgent
	}
	for k, v := range cfg.Headers {
		c.headers[k] = v
	}

	return c, nil
}

// SetObserver installs fn as the request observer. Pass nil to remove it.
func (c *Client) SetObserver(fn Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = fn
}

// SetLimiter caps the request rate. Pass nil to remove the cap.
func (c *Client) SetLimiter(l Limiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limiter = l
}

// Request represents an HTTP request to be executed.
type Request struct {
	// Name tags the request in metrics. Default: METHOD path
	Name   string
	Method string
	// Path is resolved against the base URL; absolute URLs are used as is.
	Path        string
	QueryParams map[string]string
	Headers     map[string]string
	// Body is sent as JSON. Form takes precedence when both are set.
	Body any
	Form url.Values
}

// Response represents an HTTP response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	// URL is the final URL after redirects.
	URL      string
	Cookies  []*http.Cookie
	Duration time.Duration
	Error    error
}

// Cookie returns the first value of the named cookie set by this response.
func (r *Response) Cookie(name string) (string, bool) {
	for _, ck := range r.Cookies {
		if ck.Name == name {
			return ck.Value, true
		}
	}
	return "", false
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}
	return nil
}

// Do executes an HTTP request with retry logic.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	u, err := c.buildURL(req.Path, req.QueryParams)
	if err != nil {
		return nil, fmt.Errorf("building URL: %w", err)
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	if req.Name == "" {
		req.Name = req.Method + " " + u.Path
	}

	var payload []byte
	var contentType string
	switch {
	case req.Form != nil:
		payload = []byte(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case req.Body != nil:
		payload, err = json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		contentType = "application/json"
	}

	var lastResp *Response
	var lastErr error

	for attempt := 0; attempt <= c.retryConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return lastResp, ctx.Err()
			case <-time.After(c.calculateBackoff(attempt)):
			}
		}

		c.mu.RLock()
		limiter := c.limiter
		c.mu.RUnlock()
		if limiter != nil {
			if err := limiter.Acquire(ctx); err != nil {
				return lastResp, err
			}
		}

		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
		if err != nil {
			return nil, fmt.Errorf("creating HTTP request: %w", err)
		}
		if contentType != "" {
			httpReq.Header.Set("Content-Type", contentType)
		}
		c.setHeaders(httpReq, req.Headers)

		start := time.Now()
		httpResp, err := c.httpClient.Do(httpReq)
		resp := &Response{Error: err}

		if httpResp != nil {
			resp.StatusCode = httpResp.StatusCode
			resp.Headers = httpResp.Header
			resp.Cookies = httpResp.Cookies()
			resp.URL = httpResp.Request.URL.String()
			resp.Body, err = io.ReadAll(httpResp.Body)
			httpResp.Body.Close()
			if err != nil && resp.Error == nil {
				resp.Error = fmt.Errorf("reading response body: %w", err)
			}
		}
		resp.Duration = time.Since(start)

		c.observe(Observation{
			Name:       req.Name,
			Method:     req.Method,
			URL:        u.String(),
			StatusCode: resp.StatusCode,
			Duration:   resp.Duration,
			Size:       int64(len(resp.Body)),
			Err:        resp.Error,
		})

		lastResp, lastErr = resp, resp.Error

		if attempt < c.retryConfig.MaxRetries && c.shouldRetry(httpResp, resp.Error) {
			continue
		}
		return resp, resp.Error
	}

	return lastResp, lastErr
}

func (c *Client) observe(o Observation) {
	c.mu.RLock()
	fn := c.observer
	c.mu.RUnlock()
	if fn != nil {
		fn(o)
	}
}

func (c *Client) shouldRetry(resp *http.Response, err error) bool {
	if c.retryConfig.ShouldRetry == nil {
		return err != nil
	}
	if resp == nil && err == nil {
		return false
	}
	return c.retryConfig.ShouldRetry(resp, err)
}

// buildURL resolves path against the base URL, keeping the base path prefix.
func (c *Client) buildURL(path string, queryParams map[string]string) (*url.URL, error) {
	var u *url.URL
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		parsed, err := url.Parse(path)
		if err != nil {
			return nil, fmt.Errorf("parsing URL: %w", err)
		}
		u = parsed
	} else {
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		parsed, err := url.Parse(c.baseURL.String() + path)
		if err != nil {
			return nil, fmt.Errorf("resolving path: %w", err)
		}
		u = parsed
	}

	if len(queryParams) > 0 {
		q := u.Query()
		for k, v := range queryParams {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u, nil
}

// setHeaders sets default then per-request headers.
func (c *Client) setHeaders(req *http.Request, custom map[string]string) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	// an empty per-request value keeps the default
	for k, v := range custom {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
}

// calculateBackoff returns the delay before attempt, with ±25% jitter.
func (c *Client) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryConfig.RetryDelay) * math.Pow(c.retryConfig.Multiplier, float64(attempt-1))
	if c.retryConfig.MaxDelay > 0 && delay > float64(c.retryConfig.MaxDelay) {
		delay = float64(c.retryConfig.MaxDelay)
	}
	jitter := delay * 0.25
	delay += (rand.Float64()*2 - 1) * jitter
	return time.Duration(delay)
}

// Cookie returns the named cookie the jar would send to path.
func (c *Client) Cookie(path, name string) (string, bool) {
	u, err := c.buildURL(path, nil)
	if err != nil {
		return "", false
	}
	for _, ck := range c.jar.Cookies(u) {
		if ck.Name == name {
			return ck.Value, true
		}
	}
	return "", false
}

// SetCookie stores a cookie for the whole target host.
func (c *Client) SetCookie(name, value string) {
	c.jar.SetCookies(c.baseURL, []*http.Cookie{{Name: name, Value: value, Path: "/"}})
}

// BaseURL returns the client's base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// CloseIdleConnections releases pooled connections.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}
