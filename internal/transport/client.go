package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/time/rate"
)

// Client is the interface for the HTTP transport layer. The fluent native
// engine sends every non-mocked request through it.
type Client interface {
	// Do sends an HTTP request and returns the response.
	Do(ctx context.Context, req *Request) (*Response, error)

	// SetProxy configures an HTTP/SOCKS5 proxy for all subsequent requests.
	SetProxy(proxyURL string) error

	// SetRateLimit sets the maximum requests per second.
	SetRateLimit(rps float64)

	// Stats returns transport statistics.
	Stats() *TransportStats

	// CloseIdleConnections closes pooled connections that are not in use.
	CloseIdleConnections()
}

// TransportStats holds aggregate statistics for the transport client.
type TransportStats struct {
	TotalRequests int64
	TotalDuration time.Duration
	AvgDuration   time.Duration
}

// ClientOptions holds configuration for creating a new DefaultClient.
type ClientOptions struct {
	// Timeout is the default timeout for all requests.
	Timeout time.Duration

	// ProxyURL is the proxy URL (HTTP or SOCKS5).
	ProxyURL string

	// FollowRedirects controls whether redirects are followed.
	FollowRedirects bool

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	// MaxRPS is the maximum requests per second (0 = unlimited).
	MaxRPS float64

	// Logger receives debug output. nil means slog.Default().
	Logger *slog.Logger
}

// transportKey identifies an *http.Transport configuration. Requests with
// the same TLS policy and proxy share a connection pool.
type transportKey struct {
	tls   TLSPolicy
	proxy string
}

// DefaultClient is the default implementation of the Client interface,
// backed by net/http.
type DefaultClient struct {
	opts       ClientOptions
	logger     *slog.Logger
	limiter    *rate.Limiter
	mu         sync.RWMutex
	transports map[transportKey]*http.Transport

	totalRequests   int64
	totalDurationNs int64
}

// Compile-time check that DefaultClient implements Client.
var _ Client = (*DefaultClient)(nil)

// NewClient creates a new DefaultClient with the given options.
func NewClient(opts ClientOptions) (*DefaultClient, error) {
	if opts.ProxyURL != "" {
		if _, err := parseProxy(opts.ProxyURL); err != nil {
			return nil, err
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dc := &DefaultClient{
		opts:       opts,
		logger:     logger,
		transports: make(map[transportKey]*http.Transport),
	}

	// Configure rate limiter if specified.
	if opts.MaxRPS > 0 {
		dc.limiter = rate.NewLimiter(rate.Limit(opts.MaxRPS), 1)
	}

	return dc, nil
}

func parseProxy(raw string) (*url.URL, error) {
	parsedURL, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid proxy URL: missing scheme or host")
	}
	return parsedURL, nil
}

// transportFor returns the cached transport for key, building it on first
// use.
func (c *DefaultClient) transportFor(key transportKey) (*http.Transport, error) {
	c.mu.RLock()
	t, ok := c.transports[key]
	c.mu.RUnlock()
	if ok {
		return t, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.transports[key]; ok {
		return t, nil
	}

	t = &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion:         key.tls.MinVersion,
			MaxVersion:         key.tls.MaxVersion,
			InsecureSkipVerify: key.tls.InsecureSkipVerify,
		},
	}

	if key.proxy != "" {
		proxyURL, err := parseProxy(key.proxy)
		if err != nil {
			return nil, err
		}
		t.Proxy = http.ProxyURL(proxyURL)
	}

	// HTTP/2 needs TLS 1.2; pinned older versions stay on HTTP/1.1.
	if key.tls.MaxVersion == 0 || key.tls.MaxVersion >= tls.VersionTLS12 {
		if err := http2.ConfigureTransport(t); err != nil {
			c.logger.Debug("http2 configuration failed, using HTTP/1.1", "error", err)
		}
	}

	c.transports[key] = t
	return t, nil
}

// Do sends an HTTP request and returns the response. It applies rate
// limiting, timing measurement and per-request TLS, proxy, redirect and
// timeout overrides.
func (c *DefaultClient) Do(ctx context.Context, req *Request) (*Response, error) {
	// Rate limiting
	c.mu.RLock()
	limiter := c.limiter
	c.mu.RUnlock()
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	var bodyReader io.Reader
	if len(req.Body) > 0 {
		bodyReader = bytes.NewReader(req.Body)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	for name, values := range req.Header {
		if strings.EqualFold(name, "Host") {
			if len(values) > 0 {
				httpReq.Host = values[0]
			}
			continue
		}
		httpReq.Header[name] = append([]string(nil), values...)
	}

	key := transportKey{tls: req.TLS, proxy: req.ProxyURL}
	if c.opts.InsecureSkipVerify {
		key.tls.InsecureSkipVerify = true
	}
	if key.proxy == "" {
		c.mu.RLock()
		key.proxy = c.opts.ProxyURL
		c.mu.RUnlock()
	}

	rt, err := c.transportFor(key)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{
		Transport: rt,
		Timeout:   c.opts.Timeout,
	}
	if req.Timeout > 0 {
		httpClient.Timeout = req.Timeout
	}

	follow := c.opts.FollowRedirects
	if req.FollowRedirects != nil {
		follow = *req.FollowRedirects
	}
	if !follow {
		httpClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	// Perform the request with timing.
	start := time.Now()
	httpResp, err := httpClient.Do(httpReq)
	duration := time.Since(start)

	if err != nil {
		c.logger.Debug("transport request failed",
			"method", method,
			"url", req.URL,
			"duration", duration,
			"error", err,
		)
		return nil, err
	}
	defer httpResp.Body.Close()

	// Read the response body.
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	// Determine protocol version string.
	protocol := fmt.Sprintf("HTTP/%d.%d", httpResp.ProtoMajor, httpResp.ProtoMinor)

	resp := &Response{
		StatusCode:    httpResp.StatusCode,
		Reason:        reasonPhrase(httpResp),
		Headers:       httpResp.Header,
		Body:          body,
		ContentLength: httpResp.ContentLength,
		Duration:      duration,
		URL:           httpResp.Request.URL.String(),
		Protocol:      protocol,
	}

	c.logger.Debug("transport request completed",
		"method", method,
		"url", req.URL,
		"status", resp.StatusCode,
		"duration", duration,
	)

	// Update statistics.
	c.mu.Lock()
	c.totalRequests++
	c.totalDurationNs += duration.Nanoseconds()
	c.mu.Unlock()

	return resp, nil
}

// reasonPhrase strips the numeric code from resp.Status, falling back to
// the standard text for the code.
func reasonPhrase(resp *http.Response) string {
	code := strconv.Itoa(resp.StatusCode)
	if reason := strings.TrimSpace(strings.TrimPrefix(resp.Status, code)); reason != "" {
		return reason
	}
	return http.StatusText(resp.StatusCode)
}

// SetProxy configures an HTTP or SOCKS5 proxy for subsequent requests that
// do not carry their own proxy.
func (c *DefaultClient) SetProxy(proxyURL string) error {
	if _, err := parseProxy(proxyURL); err != nil {
		return err
	}
	c.mu.Lock()
	c.opts.ProxyURL = proxyURL
	c.mu.Unlock()
	return nil
}

// SetRateLimit sets the maximum number of requests per second.
// A value of 0 or less disables rate limiting.
func (c *DefaultClient) SetRateLimit(rps float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rps <= 0 {
		c.limiter = nil
		return
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
}

// Stats returns aggregate transport statistics.
func (c *DefaultClient) Stats() *TransportStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := &TransportStats{
		TotalRequests: c.totalRequests,
		TotalDuration: time.Duration(c.totalDurationNs),
	}
	if c.totalRequests > 0 {
		stats.AvgDuration = time.Duration(c.totalDurationNs / c.totalRequests)
	}
	return stats
}

// CloseIdleConnections closes idle connections on every cached transport.
func (c *DefaultClient) CloseIdleConnections() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range c.transports {
		t.CloseIdleConnections()
	}
}
