package fluent

import (
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/0x6d61/fluent/header"
	"github.com/0x6d61/fluent/payload"
)

// Request defaults.
const (
	DefaultTimeout   = 5 * time.Second
	DefaultUserAgent = "fluent/" + Version
)

// ResponseCall is applied to the Response produced by Send before it is
// returned. Response methods such as (*Response).EnsureJSON can be used
// directly as method expressions.
type ResponseCall func(*Response) (*Response, error)

// Request is an immutable HTTP request. Every With*/Add* method returns a
// new Request and leaves the receiver unchanged, so a Request can be used
// as a template and shared between goroutines.
type Request struct {
	method        string
	rawURL        string
	url           *url.URL
	headers       header.Header
	payload       payload.Payload
	crypto        CryptoMethod
	secure        bool
	proxy         string
	timeout       time.Duration
	userAgent     string
	endpoints     []*MockEndpoint
	responseCalls []ResponseCall
	engine        Engine
	dispatcher    *Dispatcher
	followRedirs  *bool
	logger        *slog.Logger
	bypassMocks   bool
}

// NewRequest creates a request for method and rawURL. The URL must be
// absolute with an http or https scheme.
func NewRequest(method, rawURL string) (*Request, error) {
	u, err := parseURL(rawURL)
	if err != nil {
		return nil, err
	}
	return &Request{
		method:    normalizeMethod(method),
		rawURL:    rawURL,
		url:       u,
		crypto:    CryptoAny,
		secure:    true,
		timeout:   DefaultTimeout,
		userAgent: DefaultUserAgent,
	}, nil
}

func parseURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, fmt.Errorf("%w: scheme of %q must be http or https", ErrInvalidURL, rawURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: %q has no host", ErrInvalidURL, rawURL)
	}
	return u, nil
}

func normalizeMethod(method string) string {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		return http.MethodGet
	}
	return method
}

// clone returns a shallow copy. Slices are never appended in place, so
// sharing their backing arrays is safe.
func (r *Request) clone() *Request {
	c := *r
	return &c
}

func appendCopy[T any](s []T, v ...T) []T {
	out := make([]T, 0, len(s)+len(v))
	out = append(out, s...)
	return append(out, v...)
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Method returns the uppercase HTTP method.
func (r *Request) Method() string { return r.method }

// URL returns the request URL as the caller wrote it. Mock URL templates
// are matched against this string.
func (r *Request) URL() string { return r.rawURL }

// Header returns the first value of a caller-supplied header.
func (r *Request) Header(name string) string { return r.headers.Value(name) }

// Headers returns the caller-supplied headers, without computed defaults.
func (r *Request) Headers() header.Header { return r.headers }

// Payload returns the payload, or nil.
func (r *Request) Payload() payload.Payload { return r.payload }

// CryptoMethod returns the TLS policy.
func (r *Request) CryptoMethod() CryptoMethod { return r.crypto }

// Secure reports whether peer certificate verification is enforced.
func (r *Request) Secure() bool { return r.secure }

// Proxy returns the proxy URI, or "".
func (r *Request) Proxy() string { return r.proxy }

// Timeout returns the timeout handed to the engine.
func (r *Request) Timeout() time.Duration { return r.timeout }

// UserAgent returns the default User-Agent value.
func (r *Request) UserAgent() string { return r.userAgent }

func (r *Request) log() *slog.Logger {
	if r.logger == nil {
		return slog.Default()
	}
	return r.logger
}

// Engine returns the engine override, or nil.
func (r *Request) Engine() Engine { return r.engine }

// MockEndpoints returns a copy of the request-level mock endpoints.
func (r *Request) MockEndpoints() []*MockEndpoint {
	return appendCopy(r.endpoints)
}

// ResponseCallCount returns the number of queued response calls.
func (r *Request) ResponseCallCount() int { return len(r.responseCalls) }

// FollowRedirects returns the per-request redirect policy, or nil when the
// engine default applies.
func (r *Request) FollowRedirects() *bool {
	if r.followRedirs == nil {
		return nil
	}
	v := *r.followRedirs
	return &v
}

// Body returns the rendered payload, or nil when no payload is set.
func (r *Request) Body() []byte {
	if r.payload == nil {
		return nil
	}
	return r.payload.Render()
}

// ---------------------------------------------------------------------------
// Target
// ---------------------------------------------------------------------------

// WithMethod returns a copy using method.
func (r *Request) WithMethod(method string) *Request {
	c := r.clone()
	c.method = normalizeMethod(method)
	return c
}

// WithURL returns a copy targeting rawURL.
func (r *Request) WithURL(rawURL string) (*Request, error) {
	u, err := parseURL(rawURL)
	if err != nil {
		return nil, err
	}
	c := r.clone()
	c.rawURL = rawURL
	c.url = u
	return c, nil
}

// WithQuery returns a copy with key=value appended to the query string.
// The existing query is kept as written.
func (r *Request) WithQuery(key, value string) *Request {
	pair := url.QueryEscape(key) + "=" + url.QueryEscape(value)

	u := *r.url
	if u.RawQuery == "" {
		u.RawQuery = pair
	} else {
		u.RawQuery += "&" + pair
	}

	raw, fragment, hasFragment := strings.Cut(r.rawURL, "#")
	switch {
	case strings.HasSuffix(raw, "?"):
		raw += pair
	case strings.Contains(raw, "?"):
		raw += "&" + pair
	default:
		raw += "?" + pair
	}
	if hasFragment {
		raw += "#" + fragment
	}

	c := r.clone()
	c.rawURL = raw
	c.url = &u
	return c
}

// ---------------------------------------------------------------------------
// Headers
// ---------------------------------------------------------------------------

// WithHeaders returns a copy whose header set is replaced by headers.
func (r *Request) WithHeaders(headers map[string]string) *Request {
	c := r.clone()
	c.headers = header.FromMap(headers)
	return c
}

// WithHeaderSet returns a copy whose header set is replaced by h.
func (r *Request) WithHeaderSet(h header.Header) *Request {
	c := r.clone()
	c.headers = h
	return c
}

// WithHeader returns a copy with value added to name. An existing value is
// merged with ";".
func (r *Request) WithHeader(name, value string) *Request {
	c := r.clone()
	c.headers = r.headers.Add(name, value)
	return c
}

// AddHeader is an alias of WithHeader.
func (r *Request) AddHeader(name, value string) *Request {
	return r.WithHeader(name, value)
}

// WithoutHeader returns a copy with name removed.
func (r *Request) WithoutHeader(name string) *Request {
	c := r.clone()
	c.headers = r.headers.Del(name)
	return c
}

// WithUserAgent returns a copy with the default User-Agent replaced. An
// explicit User-Agent header still takes precedence.
func (r *Request) WithUserAgent(ua string) *Request {
	c := r.clone()
	c.userAgent = ua
	return c
}

// WithBasicAuth returns a copy carrying an Authorization: Basic header.
func (r *Request) WithBasicAuth(user, pass string) *Request {
	token := base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
	return r.WithHeader("Authorization", "Basic "+token)
}

// WithBearerToken returns a copy carrying an Authorization: Bearer header.
func (r *Request) WithBearerToken(token string) *Request {
	return r.WithHeader("Authorization", "Bearer "+token)
}

// ---------------------------------------------------------------------------
// Payload
// ---------------------------------------------------------------------------

// WithPayload returns a copy carrying p. It fails with ErrLockedPayload when
// a non-multipart payload is already set.
func (r *Request) WithPayload(p payload.Payload) (*Request, error) {
	if r.payload != nil {
		if _, ok := r.payload.(*payload.Multipart); !ok {
			return nil, fmt.Errorf("%w: request already carries a %s payload",
				ErrLockedPayload, r.payload.ContentType())
		}
	}
	c := r.clone()
	c.payload = p
	return c, nil
}

// WithRawPayload sets an opaque body with the given content type.
func (r *Request) WithRawPayload(data []byte, contentType string) (*Request, error) {
	return r.WithPayload(payload.NewRaw(data, contentType))
}

// WithJSONPayload JSON-encodes v as the body.
func (r *Request) WithJSONPayload(v any) (*Request, error) {
	p, err := payload.NewJSON(v)
	if err != nil {
		return nil, err
	}
	return r.WithPayload(p)
}

// WithXMLPayload sets an application/xml body. Strings and byte slices are
// sent verbatim; any other value is encoded with encoding/xml.
func (r *Request) WithXMLPayload(v any) (*Request, error) {
	var data []byte
	switch x := v.(type) {
	case string:
		data = []byte(x)
	case []byte:
		data = x
	default:
		encoded, err := xml.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("fluent: encode xml payload: %w", err)
		}
		data = encoded
	}
	return r.WithPayload(payload.NewXML(data))
}

// WithFormDataPayload sets a multipart/form-data body holding fields, in
// sorted key order. Further fields can be added with AddMultipartField.
func (r *Request) WithFormDataPayload(fields map[string]string) (*Request, error) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	m := payload.NewMultipart()
	for _, name := range names {
		m = m.WithField(payload.Part{Name: name, Data: []byte(fields[name])})
	}
	return r.WithPayload(m)
}

// WithURLEncodedPayload sets an application/x-www-form-urlencoded body.
func (r *Request) WithURLEncodedPayload(values url.Values) (*Request, error) {
	return r.WithPayload(payload.NewForm(values))
}

// AddMultipartField appends a multipart field. It starts a new multipart
// payload when none is set and fails with ErrLockedPayload when another
// kind of payload is set. filename and contentType may be empty.
func (r *Request) AddMultipartField(name string, data []byte, filename, contentType string) (*Request, error) {
	part := payload.Part{Name: name, Data: data, Filename: filename, ContentType: contentType}

	switch p := r.payload.(type) {
	case nil:
		return r.WithPayload(payload.NewMultipart(part))
	case *payload.Multipart:
		return r.WithPayload(p.WithField(part))
	default:
		return nil, fmt.Errorf("%w: cannot add multipart field %q to a %s payload",
			ErrLockedPayload, name, p.ContentType())
	}
}

// AddFile reads path and appends it as a multipart field. filename defaults
// to the base name of path and contentType to the sniffed type of the
// content.
func (r *Request) AddFile(name, path, filename, contentType string) (*Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fluent: read file %q: %w", path, err)
	}
	if filename == "" {
		filename = filepath.Base(path)
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return r.AddMultipartField(name, data, filename, contentType)
}

// ---------------------------------------------------------------------------
// Transport policy
// ---------------------------------------------------------------------------

// WithTLS restricts the TLS version: "1.*" for any TLS version, or "1.0",
// "1.1", "1.2" to pin one.
func (r *Request) WithTLS(version string) (*Request, error) {
	m, err := ParseTLSVersion(version)
	if err != nil {
		return nil, err
	}
	c := r.clone()
	c.crypto = m
	return c, nil
}

// WithCryptoMethod sets the crypto method.
func (r *Request) WithCryptoMethod(m CryptoMethod) (*Request, error) {
	m, err := ParseCryptoMethod(string(m))
	if err != nil {
		return nil, err
	}
	c := r.clone()
	c.crypto = m
	return c, nil
}

// WithSecure toggles peer certificate and host verification.
func (r *Request) WithSecure(secure bool) *Request {
	c := r.clone()
	c.secure = secure
	return c
}

// Insecure disables certificate verification.
func (r *Request) Insecure() *Request {
	return r.WithSecure(false)
}

// WithProxy routes the request through proxyURI.
func (r *Request) WithProxy(proxyURI string) *Request {
	c := r.clone()
	c.proxy = proxyURI
	return c
}

// WithTimeout sets the timeout the engine enforces.
func (r *Request) WithTimeout(d time.Duration) *Request {
	c := r.clone()
	c.timeout = d
	return c
}

// WithFollowRedirects overrides the engine's redirect policy for this
// request.
func (r *Request) WithFollowRedirects(follow bool) *Request {
	c := r.clone()
	c.followRedirs = &follow
	return c
}

// WithEngine overrides the engine used by Send.
func (r *Request) WithEngine(e Engine) *Request {
	c := r.clone()
	c.engine = e
	return c
}

// ---------------------------------------------------------------------------
// Mocks and response calls
// ---------------------------------------------------------------------------

// WithMockedEndpoint registers a request-level mock. See NewMockEndpoint
// for the pattern syntax.
func (r *Request) WithMockedEndpoint(methodPattern, urlPattern string, h MockHandler) (*Request, error) {
	ep, err := NewMockEndpoint(methodPattern, urlPattern, h)
	if err != nil {
		return nil, err
	}
	return r.WithMock(ep), nil
}

// WithMock appends an already compiled mock endpoint.
func (r *Request) WithMock(ep *MockEndpoint) *Request {
	c := r.clone()
	c.endpoints = appendCopy(r.endpoints, ep)
	return c
}

// WithDispatcher attaches a shared mock registry consulted after the
// request-level endpoints.
func (r *Request) WithDispatcher(d *Dispatcher) *Request {
	c := r.clone()
	c.dispatcher = d
	return c
}

// WithResponseCall queues call to run on the response returned by Send.
func (r *Request) WithResponseCall(call ResponseCall) *Request {
	c := r.clone()
	c.responseCalls = appendCopy(r.responseCalls, call)
	return c
}

// EnsureStatus queues a status check on the response. With several codes
// any of them is accepted.
func (r *Request) EnsureStatus(codes ...int) *Request {
	return r.WithResponseCall(func(resp *Response) (*Response, error) {
		return resp.EnsureStatusIn(codes...)
	})
}

// Ensure2xx queues a 2xx check on the response.
func (r *Request) Ensure2xx() *Request {
	return r.WithResponseCall((*Response).Ensure2xx)
}

// EnsureJSON queues a JSON content type check on the response.
func (r *Request) EnsureJSON() *Request {
	return r.WithResponseCall((*Response).EnsureJSON)
}

// ---------------------------------------------------------------------------
// Rendering
// ---------------------------------------------------------------------------

// PreparedHeaders returns the headers that go on the wire: exactly one Host
// and one User-Agent (explicit values win over computed ones), the payload
// content type and length, then the caller-supplied headers.
func (r *Request) PreparedHeaders() header.Header {
	h := header.New().
		Set("Host", r.url.Host).
		Set("User-Agent", r.userAgent)

	if r.payload != nil {
		h = h.Set("Content-Type", r.payload.ContentType()).
			Set("Content-Length", strconv.Itoa(len(r.payload.Render())))
	}

	h = h.Merge(r.headers)

	// Merge keeps additional values as separate fields; Host and
	// User-Agent must stay unique.
	for _, name := range []string{"Host", "User-Agent"} {
		h = h.Set(name, h.Value(name))
	}
	return h
}

// requestTarget returns the path and query used on the start line.
func (r *Request) requestTarget() string {
	target := r.url.RequestURI()
	if target == "" {
		return "/"
	}
	return target
}

// Render returns the request as an HTTP/1.0 message. It is a pure function
// of the request state.
func (r *Request) Render() []byte {
	var b strings.Builder
	b.WriteString(r.method + " " + r.requestTarget() + " HTTP/1.0\r\n")
	b.WriteString(r.PreparedHeaders().Render())
	b.WriteString("\r\n")
	b.Write(r.Body())
	return []byte(b.String())
}

// String returns the start line.
func (r *Request) String() string {
	return r.method + " " + r.URL()
}
