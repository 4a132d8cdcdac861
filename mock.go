package fluent

import (
	"fmt"
	"sync"

	"github.com/0x6d61/fluent/route"
)

// AnyMethod and AnyURL match every method and every URL.
const (
	AnyMethod = route.Any
	AnyURL    = route.Any
)

// MockHandler synthesizes a response for a matched request. req is a
// private copy; params holds the values captured by the URL template.
type MockHandler func(req *Request, params route.Params) (*Response, error)

// MockEndpoint pairs a method matcher and a URL matcher with a handler.
// It is immutable once created.
type MockEndpoint struct {
	methodPattern string
	urlPattern    string
	method        *route.Pattern
	url           *route.Pattern
	handler       MockHandler
}

// NewMockEndpoint compiles a mock endpoint.
//
// methodPattern is a "|"-separated list of methods ("get|post"), matched
// case-insensitively; AnyMethod or "*" accept every method. urlPattern is a
// URL template whose {name} placeholders capture one or more characters;
// AnyURL accepts every URL.
func NewMockEndpoint(methodPattern, urlPattern string, h MockHandler) (*MockEndpoint, error) {
	if h == nil {
		return nil, fmt.Errorf("%w: handler for %s %s is nil", ErrInvalidMockHandler, methodPattern, urlPattern)
	}
	m, err := route.CompileMethods(methodPattern)
	if err != nil {
		return nil, err
	}
	u, err := route.Compile(urlPattern)
	if err != nil {
		return nil, err
	}
	return &MockEndpoint{
		methodPattern: methodPattern,
		urlPattern:    urlPattern,
		method:        m,
		url:           u,
		handler:       h,
	}, nil
}

// Handles reports whether both the method and the URL of req match.
func (e *MockEndpoint) Handles(req *Request) bool {
	return e.method.MatchString(req.Method()) && e.url.MatchString(req.URL())
}

// Handle runs the handler on a copy of req. The URL captures are passed as
// route parameters. A handler returning neither a response nor an error
// yields ErrInvalidMockHandler.
func (e *MockEndpoint) Handle(req *Request) (*Response, error) {
	params, _ := e.url.Match(req.URL())

	resp, err := e.handler(req.clone(), params)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: handler for %s returned no response", ErrInvalidMockHandler, e)
	}

	if resp.request == nil {
		resp = resp.withRequest(req)
	}
	return resp.WithMetadata(MetaMocked, true).
		WithMetadata(MetaEndpoint, e.String()).
		WithMetadata(MetaRoute, params.All()), nil
}

// MethodPattern returns the method pattern the endpoint was built from.
func (e *MockEndpoint) MethodPattern() string { return e.methodPattern }

// URLPattern returns the URL template the endpoint was built from.
func (e *MockEndpoint) URLPattern() string { return e.urlPattern }

func (e *MockEndpoint) String() string {
	return e.methodPattern + " " + e.urlPattern
}

// Dispatcher is an ordered, concurrency-safe list of mock endpoints. The
// first endpoint that handles a request wins.
type Dispatcher struct {
	mu        sync.RWMutex
	endpoints []*MockEndpoint
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Register compiles and appends an endpoint.
func (d *Dispatcher) Register(methodPattern, urlPattern string, h MockHandler) (*MockEndpoint, error) {
	ep, err := NewMockEndpoint(methodPattern, urlPattern, h)
	if err != nil {
		return nil, err
	}
	d.Add(ep)
	return ep, nil
}

// Add appends endpoints in order.
func (d *Dispatcher) Add(eps ...*MockEndpoint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.endpoints = append(d.endpoints, eps...)
}

// Match returns the first endpoint that handles req, or nil.
func (d *Dispatcher) Match(req *Request) *MockEndpoint {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return firstMatch(d.endpoints, req)
}

// Endpoints returns a snapshot of the registered endpoints.
func (d *Dispatcher) Endpoints() []*MockEndpoint {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return appendCopy(d.endpoints)
}

// Len returns the number of registered endpoints.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.endpoints)
}

// Reset removes every endpoint.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.endpoints = nil
}
