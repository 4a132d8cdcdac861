package fluent

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/0x6d61/fluent/header"
)

// Client creates requests that share defaults and a mock Dispatcher.
// A Client is safe for concurrent use.
type Client struct {
	engine     Engine
	userAgent  string
	timeout    time.Duration
	headers    header.Header
	secure     bool
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithEngine sets the engine used by every request of the client.
func WithEngine(e Engine) ClientOption {
	return func(c *Client) {
		c.engine = e
	}
}

// WithUserAgent sets the default User-Agent.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithTimeout sets the default request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithDefaultHeader adds a header to every request.
func WithDefaultHeader(name, value string) ClientOption {
	return func(c *Client) {
		c.headers = c.headers.Add(name, value)
	}
}

// WithInsecure disables certificate verification on every request.
func WithInsecure() ClientOption {
	return func(c *Client) {
		c.secure = false
	}
}

// WithDispatcher shares d between clients instead of creating a new one.
func WithDispatcher(d *Dispatcher) ClientOption {
	return func(c *Client) {
		c.dispatcher = d
	}
}

// WithLogger sets the logger used by the client's requests and SendAll,
// and by the engine created by New when WithEngine is not given.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a Client. Without WithEngine, requests use DefaultEngine, or
// a dedicated native engine when WithLogger is given.
func New(opts ...ClientOption) *Client {
	c := &Client{
		userAgent: DefaultUserAgent,
		timeout:   DefaultTimeout,
		secure:    true,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dispatcher == nil {
		c.dispatcher = NewDispatcher()
	}
	if c.engine == nil && c.logger != nil {
		// Without a proxy NewNativeEngine cannot fail.
		c.engine, _ = NewNativeEngine(EngineOptions{Logger: c.logger})
	}
	return c
}

// Request creates a request carrying the client defaults and mocks.
func (c *Client) Request(method, rawURL string) (*Request, error) {
	req, err := NewRequest(method, rawURL)
	if err != nil {
		return nil, err
	}
	req = req.WithUserAgent(c.userAgent).
		WithTimeout(c.timeout).
		WithSecure(c.secure).
		WithHeaderSet(c.headers).
		WithDispatcher(c.dispatcher)
	req.logger = c.logger
	if c.engine != nil {
		req = req.WithEngine(c.engine)
	}
	return req, nil
}

// Get creates a GET request.
func (c *Client) Get(rawURL string) (*Request, error) { return c.Request(http.MethodGet, rawURL) }

// Post creates a POST request.
func (c *Client) Post(rawURL string) (*Request, error) { return c.Request(http.MethodPost, rawURL) }

// Put creates a PUT request.
func (c *Client) Put(rawURL string) (*Request, error) { return c.Request(http.MethodPut, rawURL) }

// Patch creates a PATCH request.
func (c *Client) Patch(rawURL string) (*Request, error) { return c.Request(http.MethodPatch, rawURL) }

// Delete creates a DELETE request.
func (c *Client) Delete(rawURL string) (*Request, error) { return c.Request(http.MethodDelete, rawURL) }

// Head creates a HEAD request.
func (c *Client) Head(rawURL string) (*Request, error) { return c.Request(http.MethodHead, rawURL) }

// Options creates an OPTIONS request.
func (c *Client) Options(rawURL string) (*Request, error) {
	return c.Request(http.MethodOptions, rawURL)
}

// Mock registers a client-level mock endpoint. Client-level mocks are tried
// after the request-level ones.
func (c *Client) Mock(methodPattern, urlPattern string, h MockHandler) (*MockEndpoint, error) {
	return c.dispatcher.Register(methodPattern, urlPattern, h)
}

// Dispatcher returns the client-level mock registry.
func (c *Client) Dispatcher() *Dispatcher { return c.dispatcher }

// Logger returns the client's logger, or slog.Default() when none was set.
func (c *Client) Logger() *slog.Logger {
	if c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

var (
	defaultClient     *Client
	defaultClientOnce sync.Once
)

// Default returns the process-wide client used by the package-level
// helpers.
func Default() *Client {
	defaultClientOnce.Do(func() {
		defaultClient = New()
	})
	return defaultClient
}

// RegisterMock registers a mock endpoint on the default client.
func RegisterMock(methodPattern, urlPattern string, h MockHandler) (*MockEndpoint, error) {
	return Default().Mock(methodPattern, urlPattern, h)
}

// ResetMocks removes every mock endpoint of the default client.
func ResetMocks() {
	Default().dispatcher.Reset()
}

// Get creates a GET request on the default client.
func Get(rawURL string) (*Request, error) { return Default().Get(rawURL) }

// Post creates a POST request on the default client.
func Post(rawURL string) (*Request, error) { return Default().Post(rawURL) }

// Put creates a PUT request on the default client.
func Put(rawURL string) (*Request, error) { return Default().Put(rawURL) }

// Patch creates a PATCH request on the default client.
func Patch(rawURL string) (*Request, error) { return Default().Patch(rawURL) }

// Delete creates a DELETE request on the default client.
func Delete(rawURL string) (*Request, error) { return Default().Delete(rawURL) }

// Head creates a HEAD request on the default client.
func Head(rawURL string) (*Request, error) { return Default().Head(rawURL) }

// Options creates an OPTIONS request on the default client.
func Options(rawURL string) (*Request, error) { return Default().Options(rawURL) }
