package fluent

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"maps"
	"mime"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/0x6d61/fluent/header"
)

// Metadata keys set by the native engine and by mock dispatch.
const (
	MetaDuration      = "duration"
	MetaEffectiveURL  = "effective_url"
	MetaProtocol      = "protocol"
	MetaContentLength = "content_length"
	MetaMocked        = "mocked"
	MetaEndpoint      = "endpoint"
	MetaRoute         = "route"
)

var statusLineRe = regexp.MustCompile(`^HTTP/(\d+(?:\.\d+)?) +(\d{3})(?: +(.*))?$`)

// Response is an immutable HTTP response. The status line is kept apart from
// the headers, which form one case-insensitive multimap whether the
// response came from an engine or from a mock handler.
type Response struct {
	proto    string
	code     int
	reason   string
	headers  header.Header
	body     []byte
	request  *Request
	metadata map[string]any
}

// NewResponse builds a response from a status line such as
// "HTTP/1.1 404 Not Found", header lines and a body. Header lines without a
// colon are ignored.
func NewResponse(statusLine string, headerLines []string, body []byte) (*Response, error) {
	m := statusLineRe.FindStringSubmatch(strings.TrimSpace(statusLine))
	if m == nil {
		return nil, fmt.Errorf("%w: %q", ErrMalformedStatusLine, statusLine)
	}
	code, _ := strconv.Atoi(m[2])

	var h header.Header
	for _, line := range headerLines {
		if f, ok := header.Parse(line); ok {
			h = h.Append(f.Name, f.Value)
		}
	}
	return &Response{
		proto:   m[1],
		code:    code,
		reason:  m[3],
		headers: h,
		body:    bytes.Clone(body),
	}, nil
}

// Reply builds an HTTP/1.1 response with the standard reason phrase for
// code. It is the usual return value of a mock handler.
func Reply(code int, body string) *Response {
	return &Response{
		proto:  "1.1",
		code:   code,
		reason: http.StatusText(code),
		body:   []byte(body),
	}
}

// JSONReply builds an HTTP/1.1 response carrying v encoded as JSON.
func JSONReply(code int, v any) (*Response, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("fluent: encode json reply: %w", err)
	}
	return Reply(code, string(data)).WithHeader("Content-Type", "application/json"), nil
}

func (r *Response) clone() *Response {
	c := *r
	return &c
}

// WithHeader returns a copy with name set to value.
func (r *Response) WithHeader(name, value string) *Response {
	c := r.clone()
	c.headers = r.headers.Set(name, value)
	return c
}

// WithBody returns a copy with body replaced.
func (r *Response) WithBody(body []byte) *Response {
	c := r.clone()
	c.body = bytes.Clone(body)
	return c
}

// WithStatus returns a copy with the status code and its standard reason
// phrase.
func (r *Response) WithStatus(code int) *Response {
	c := r.clone()
	c.code = code
	c.reason = http.StatusText(code)
	return c
}

// WithMetadata returns a copy with key set in the metadata map.
func (r *Response) WithMetadata(key string, value any) *Response {
	c := r.clone()
	c.metadata = maps.Clone(r.metadata)
	if c.metadata == nil {
		c.metadata = make(map[string]any, 1)
	}
	c.metadata[key] = value
	return c
}

func (r *Response) withRequest(req *Request) *Response {
	c := r.clone()
	c.request = req
	return c
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// StatusCode returns the numeric status code.
func (r *Response) StatusCode() int { return r.code }

// ReasonPhrase returns the text after the status code.
func (r *Response) ReasonPhrase() string { return r.reason }

// ProtocolVersion returns the HTTP version, e.g. "1.1".
func (r *Response) ProtocolVersion() string { return r.proto }

// StatusLine returns "HTTP/<version> <code> <reason>".
func (r *Response) StatusLine() string {
	line := fmt.Sprintf("HTTP/%s %03d", r.proto, r.code)
	if r.reason != "" {
		line += " " + r.reason
	}
	return line
}

// Header returns the first value of name, or "".
func (r *Response) Header(name string) string { return r.headers.Value(name) }

// Headers returns the response headers.
func (r *Response) Headers() header.Header { return r.headers }

// ContentType returns the Content-Type header, or "".
func (r *Response) ContentType() string { return r.headers.Value("Content-Type") }

// Body returns a copy of the body.
func (r *Response) Body() []byte { return bytes.Clone(r.body) }

// Text returns the body as a string.
func (r *Response) Text() string { return string(r.body) }

// Request returns the request that produced the response. It is nil for a
// response built directly and not yet dispatched.
func (r *Response) Request() *Request { return r.request }

// Metadata returns a copy of the transport metadata.
func (r *Response) Metadata() map[string]any { return maps.Clone(r.metadata) }

// Meta returns a single metadata value.
func (r *Response) Meta(key string) (any, bool) {
	v, ok := r.metadata[key]
	return v, ok
}

// Mocked reports whether a mock endpoint produced the response.
func (r *Response) Mocked() bool {
	v, _ := r.metadata[MetaMocked].(bool)
	return v
}

// ---------------------------------------------------------------------------
// Content
// ---------------------------------------------------------------------------

// mediaType returns the lowercase media type without parameters.
func (r *Response) mediaType() string {
	ct := r.ContentType()
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		mt, _, _ = strings.Cut(ct, ";")
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

// IsJSON reports whether the content type is application/json or a +json
// type.
func (r *Response) IsJSON() bool {
	mt := r.mediaType()
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// IsXML reports whether the content type is application/xml, text/xml or a
// +xml type.
func (r *Response) IsXML() bool {
	mt := r.mediaType()
	return mt == "application/xml" || mt == "text/xml" || strings.HasSuffix(mt, "+xml")
}

// XMLNode is a generic XML element produced by Decoded.
type XMLNode struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Content  string     `xml:",chardata"`
	Children []XMLNode  `xml:",any"`
}

// Child returns the first direct child with the given local name.
func (n *XMLNode) Child(name string) (*XMLNode, bool) {
	for i := range n.Children {
		if n.Children[i].XMLName.Local == name {
			return &n.Children[i], true
		}
	}
	return nil, false
}

// Attr returns the value of the attribute with the given local name.
func (n *XMLNode) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// Decoded decodes the body according to the content type: JSON into
// map[string]any, []any or a scalar, XML into an *XMLNode. Any other content
// type, or a malformed body, yields a *DecodeError.
func (r *Response) Decoded() (any, error) {
	switch {
	case r.IsJSON():
		var v any
		if err := r.DecodeJSON(&v); err != nil {
			return nil, err
		}
		return v, nil
	case r.IsXML():
		var n XMLNode
		if err := r.DecodeXML(&n); err != nil {
			return nil, err
		}
		return &n, nil
	default:
		return nil, &DecodeError{
			ContentType: r.ContentType(),
			Err:         errors.New("no decoder for content type"),
		}
	}
}

// DecodeJSON unmarshals the body into v regardless of the content type.
func (r *Response) DecodeJSON(v any) error {
	if err := json.Unmarshal(r.body, v); err != nil {
		return &DecodeError{ContentType: r.ContentType(), Err: err}
	}
	return nil
}

// DecodeXML unmarshals the body into v regardless of the content type.
func (r *Response) DecodeXML(v any) error {
	if err := xml.Unmarshal(r.body, v); err != nil {
		return &DecodeError{ContentType: r.ContentType(), Err: err}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Status classes
// ---------------------------------------------------------------------------

func (r *Response) inRange(lo, hi int) bool { return r.code >= lo && r.code < hi }

// Is2xx reports whether the status is in [200, 300).
func (r *Response) Is2xx() bool { return r.inRange(200, 300) }

// Is3xx reports whether the status is in [300, 400).
func (r *Response) Is3xx() bool { return r.inRange(300, 400) }

// Is4xx reports whether the status is in [400, 500).
func (r *Response) Is4xx() bool { return r.inRange(400, 500) }

// Is5xx reports whether the status is in [500, 600).
func (r *Response) Is5xx() bool { return r.inRange(500, 600) }

// IsSuccess is Is2xx.
func (r *Response) IsSuccess() bool { return r.Is2xx() }

// IsRedirect is Is3xx.
func (r *Response) IsRedirect() bool { return r.Is3xx() }

// IsError reports a 4xx or 5xx status.
func (r *Response) IsError() bool { return r.Is4xx() || r.Is5xx() }

// Apply calls cb with a copy of the response and its request, then returns
// that copy.
func (r *Response) Apply(cb func(*Response, *Request)) *Response {
	c := r.clone()
	cb(c, c.request)
	return c
}

func (r *Response) applyIf(cond bool, cb func(*Response, *Request)) *Response {
	if !cond {
		return r
	}
	return r.Apply(cb)
}

// On2xx applies cb when the status is 2xx.
func (r *Response) On2xx(cb func(*Response, *Request)) *Response { return r.applyIf(r.Is2xx(), cb) }

// On3xx applies cb when the status is 3xx.
func (r *Response) On3xx(cb func(*Response, *Request)) *Response { return r.applyIf(r.Is3xx(), cb) }

// On4xx applies cb when the status is 4xx.
func (r *Response) On4xx(cb func(*Response, *Request)) *Response { return r.applyIf(r.Is4xx(), cb) }

// On5xx applies cb when the status is 5xx.
func (r *Response) On5xx(cb func(*Response, *Request)) *Response { return r.applyIf(r.Is5xx(), cb) }

// OnSuccess applies cb when the status is 2xx.
func (r *Response) OnSuccess(cb func(*Response, *Request)) *Response {
	return r.applyIf(r.IsSuccess(), cb)
}

// OnRedirect applies cb when the status is 3xx.
func (r *Response) OnRedirect(cb func(*Response, *Request)) *Response {
	return r.applyIf(r.IsRedirect(), cb)
}

// OnError applies cb when the status is 4xx or 5xx.
func (r *Response) OnError(cb func(*Response, *Request)) *Response {
	return r.applyIf(r.IsError(), cb)
}

// OnStatusCode applies cb when the status equals code.
func (r *Response) OnStatusCode(code int, cb func(*Response, *Request)) *Response {
	return r.applyIf(r.code == code, cb)
}

// ---------------------------------------------------------------------------
// Assertions
// ---------------------------------------------------------------------------

// EnsureStatus fails unless the status equals code.
func (r *Response) EnsureStatus(code int) (*Response, error) {
	if r.code != code {
		return nil, assertionFailed(ErrStatusAssertion, r,
			"expected status %d, got %s", code, r.StatusLine())
	}
	return r, nil
}

// EnsureStatusIn fails unless the status is one of codes. An empty list
// accepts every status.
func (r *Response) EnsureStatusIn(codes ...int) (*Response, error) {
	if len(codes) == 0 {
		return r, nil
	}
	for _, c := range codes {
		if r.code == c {
			return r, nil
		}
	}
	return nil, assertionFailed(ErrStatusAssertion, r,
		"expected status in %v, got %s", codes, r.StatusLine())
}

// EnsureStatusInRange fails unless lo <= status <= hi.
func (r *Response) EnsureStatusInRange(lo, hi int) (*Response, error) {
	if r.code < lo || r.code > hi {
		return nil, assertionFailed(ErrStatusAssertion, r,
			"expected status in [%d, %d], got %s", lo, hi, r.StatusLine())
	}
	return r, nil
}

// Ensure2xx fails unless the status is 2xx.
func (r *Response) Ensure2xx() (*Response, error) {
	return r.EnsureStatusInRange(200, 299)
}

// EnsureRedirect fails unless the status is 3xx.
func (r *Response) EnsureRedirect() (*Response, error) {
	return r.EnsureStatusInRange(300, 399)
}

// EnsureJSON fails unless the content type is JSON.
func (r *Response) EnsureJSON() (*Response, error) {
	if !r.IsJSON() {
		return nil, assertionFailed(ErrContentTypeAssertion, r,
			"expected a JSON response, got content type %q", r.ContentType())
	}
	return r, nil
}

// EnsureXML fails unless the content type is XML.
func (r *Response) EnsureXML() (*Response, error) {
	if !r.IsXML() {
		return nil, assertionFailed(ErrContentTypeAssertion, r,
			"expected an XML response, got content type %q", r.ContentType())
	}
	return r, nil
}

// EnsureContentType fails unless the media type equals contentType,
// ignoring case and parameters.
func (r *Response) EnsureContentType(contentType string) (*Response, error) {
	want, _, _ := strings.Cut(contentType, ";")
	if r.mediaType() != strings.ToLower(strings.TrimSpace(want)) {
		return nil, assertionFailed(ErrContentTypeAssertion, r,
			"expected content type %q, got %q", contentType, r.ContentType())
	}
	return r, nil
}

// EnsureHasHeader fails unless the header is present.
func (r *Response) EnsureHasHeader(name string) (*Response, error) {
	if !r.headers.Has(name) {
		return nil, assertionFailed(ErrHeaderAssertion, r,
			"expected header %q to be present", name)
	}
	return r, nil
}

// EnsureContains fails unless the body contains substr.
func (r *Response) EnsureContains(substr string) (*Response, error) {
	if !bytes.Contains(r.body, []byte(substr)) {
		return nil, assertionFailed(ErrContentAssertion, r,
			"expected body to contain %q", substr)
	}
	return r, nil
}

// ---------------------------------------------------------------------------
// Rendering
// ---------------------------------------------------------------------------

// Render returns the response as an HTTP message.
func (r *Response) Render() []byte {
	var b strings.Builder
	b.WriteString(r.StatusLine())
	b.WriteString("\r\n")
	b.WriteString(r.headers.Render())
	b.WriteString("\r\n")
	b.Write(r.body)
	return []byte(b.String())
}

func (r *Response) String() string {
	return r.StatusLine()
}
