package fluent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/0x6d61/fluent/header"
	"github.com/0x6d61/fluent/internal/transport"
)

// Engine performs the network exchange for a fully prepared Request.
type Engine interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(ctx context.Context, req *Request) (*Response, error)

// Send implements Engine.
func (f EngineFunc) Send(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// EngineOptions configures a NativeEngine.
type EngineOptions struct {
	// FollowRedirects makes the engine follow 3xx responses.
	FollowRedirects bool

	// MaxRPS caps the request rate (0 = unlimited).
	MaxRPS float64

	// Proxy is used for requests that do not set their own proxy.
	Proxy string

	// Insecure disables certificate verification for every request,
	// whatever the request's own policy.
	Insecure bool

	// Logger receives debug output. nil means slog.Default().
	Logger *slog.Logger
}

// NativeEngine sends requests with net/http.
type NativeEngine struct {
	client transport.Client
}

// Compile-time check that NativeEngine implements Engine.
var _ Engine = (*NativeEngine)(nil)

// NewNativeEngine creates a net/http backed engine.
func NewNativeEngine(opts EngineOptions) (*NativeEngine, error) {
	client, err := transport.NewClient(transport.ClientOptions{
		Timeout:            DefaultTimeout,
		ProxyURL:           opts.Proxy,
		FollowRedirects:    opts.FollowRedirects,
		InsecureSkipVerify: opts.Insecure,
		MaxRPS:             opts.MaxRPS,
		Logger:             opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("fluent: create engine: %w", err)
	}
	return &NativeEngine{client: client}, nil
}

// Send implements Engine. Transport failures are returned as
// *ConnectionError.
func (e *NativeEngine) Send(ctx context.Context, req *Request) (*Response, error) {
	minVersion, maxVersion := req.crypto.versions()

	raw, err := e.client.Do(ctx, &transport.Request{
		Method: req.method,
		URL:    req.url.String(),
		Header: req.PreparedHeaders().HTTP(),
		Body:   req.Body(),
		TLS: transport.TLSPolicy{
			MinVersion:         minVersion,
			MaxVersion:         maxVersion,
			InsecureSkipVerify: !req.secure,
		},
		ProxyURL:        req.proxy,
		FollowRedirects: req.followRedirs,
		Timeout:         req.timeout,
	})
	if err != nil {
		return nil, &ConnectionError{
			Request: req,
			Err:     err,
			Diagnostics: map[string]any{
				"timeout": req.timeout,
				"crypto":  string(req.crypto),
				"secure":  req.secure,
			},
		}
	}

	return &Response{
		proto:   strings.TrimPrefix(raw.Protocol, "HTTP/"),
		code:    raw.StatusCode,
		reason:  raw.Reason,
		headers: header.FromHTTP(raw.Headers),
		body:    raw.Body,
		request: req,
		metadata: map[string]any{
			MetaDuration:      raw.Duration,
			MetaEffectiveURL:  raw.URL,
			MetaProtocol:      raw.Protocol,
			MetaContentLength: raw.ContentLength,
		},
	}, nil
}

// SetProxy changes the proxy used by requests that do not set their own.
func (e *NativeEngine) SetProxy(proxyURL string) error {
	if err := e.client.SetProxy(proxyURL); err != nil {
		return fmt.Errorf("fluent: set proxy: %w", err)
	}
	return nil
}

// Close releases idle pooled connections. The engine stays usable.
func (e *NativeEngine) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

// SetRateLimit changes the maximum requests per second.
func (e *NativeEngine) SetRateLimit(rps float64) {
	e.client.SetRateLimit(rps)
}

// EngineStats summarises the exchanges performed by a NativeEngine.
type EngineStats struct {
	Requests      int64
	TotalDuration time.Duration
	AvgDuration   time.Duration
}

// Stats returns the number of requests sent and their total and average
// duration.
func (e *NativeEngine) Stats() EngineStats {
	s := e.client.Stats()
	return EngineStats{
		Requests:      s.TotalRequests,
		TotalDuration: s.TotalDuration,
		AvgDuration:   s.AvgDuration,
	}
}

var (
	defaultEngine     *NativeEngine
	defaultEngineOnce sync.Once
)

// DefaultEngine returns the process-wide native engine used when a request
// has no engine override.
func DefaultEngine() Engine {
	defaultEngineOnce.Do(func() {
		// Without a proxy NewNativeEngine cannot fail.
		defaultEngine, _ = NewNativeEngine(EngineOptions{})
	})
	return defaultEngine
}
