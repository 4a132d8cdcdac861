package fluent

import (
	"bytes"
	"encoding/json"
	"errors"
	"slices"
	"testing"
)

func mustResponse(t *testing.T, statusLine string, headers []string, body string) *Response {
	t.Helper()
	r, err := NewResponse(statusLine, headers, []byte(body))
	if err != nil {
		t.Fatalf("NewResponse(%q) error: %v", statusLine, err)
	}
	return r
}

func TestNewResponseParsesStatusLine(t *testing.T) {
	r := mustResponse(t, "HTTP/1.0 404 Not Found", []string{"Content-Type: text/plain", "X-Trace: a"}, "missing")

	if r.StatusCode() != 404 {
		t.Errorf("StatusCode() = %d, want 404", r.StatusCode())
	}
	if r.ReasonPhrase() != "Not Found" {
		t.Errorf("ReasonPhrase() = %q", r.ReasonPhrase())
	}
	if r.ProtocolVersion() != "1.0" {
		t.Errorf("ProtocolVersion() = %q", r.ProtocolVersion())
	}
	if r.StatusLine() != "HTTP/1.0 404 Not Found" {
		t.Errorf("StatusLine() = %q", r.StatusLine())
	}
	if r.ContentType() != "text/plain" {
		t.Errorf("ContentType() = %q", r.ContentType())
	}
	if got := r.Header("x-trace"); got != "a" {
		t.Errorf("X-Trace = %q", got)
	}
	if r.Text() != "missing" {
		t.Errorf("Text() = %q", r.Text())
	}
	if r.Request() != nil {
		t.Error("expected no request on a parsed response")
	}
}

func TestNewResponseWithoutReason(t *testing.T) {
	r := mustResponse(t, "HTTP/2 204", nil, "")

	if r.StatusCode() != 204 {
		t.Errorf("StatusCode() = %d, want 204", r.StatusCode())
	}
	if r.ReasonPhrase() != "" {
		t.Errorf("ReasonPhrase() = %q, want empty", r.ReasonPhrase())
	}
	if r.StatusLine() != "HTTP/2 204" {
		t.Errorf("StatusLine() = %q", r.StatusLine())
	}
}

func TestNewResponseRejectsMalformedStatusLine(t *testing.T) {
	for _, line := range []string{"", "200 OK", "HTTP/1.1 OK", "HTTP/1.1 20 OK", "HTTPS/1.1 200 OK"} {
		if _, err := NewResponse(line, nil, nil); !errors.Is(err, ErrMalformedStatusLine) {
			t.Errorf("NewResponse(%q): expected ErrMalformedStatusLine, got %v", line, err)
		}
	}
}

func TestNewResponseKeepsRepeatedHeaders(t *testing.T) {
	r := mustResponse(t, "HTTP/1.1 200 OK", []string{"Set-Cookie: a=1", "set-cookie: b=2", "garbage"}, "")

	if got := r.Headers().Values("Set-Cookie"); !slices.Equal(got, []string{"a=1", "b=2"}) {
		t.Errorf("Set-Cookie = %v", got)
	}
	if r.Headers().Len() != 2 {
		t.Errorf("Headers().Len() = %d, want 2", r.Headers().Len())
	}
}

func TestStatusHelpers(t *testing.T) {
	r := mustResponse(t, "HTTP/1.0 404 Not Found", nil, "")

	if !r.Is4xx() || !r.IsError() {
		t.Error("404 should be a 4xx error")
	}
	if r.IsSuccess() || r.IsRedirect() || r.Is5xx() {
		t.Error("404 should not be success, redirect or 5xx")
	}
}

func TestStatusClassBoundaries(t *testing.T) {
	tests := []struct {
		code                       int
		is2xx, is3xx, is4xx, is5xx bool
	}{
		{199, false, false, false, false},
		{200, true, false, false, false},
		{299, true, false, false, false},
		{300, false, true, false, false},
		{399, false, true, false, false},
		{400, false, false, true, false},
		{499, false, false, true, false},
		{500, false, false, false, true},
		{599, false, false, false, true},
		{600, false, false, false, false},
	}
	for _, tt := range tests {
		r := Reply(tt.code, "")
		if r.Is2xx() != tt.is2xx || r.Is3xx() != tt.is3xx || r.Is4xx() != tt.is4xx || r.Is5xx() != tt.is5xx {
			t.Errorf("%d: classes = %v %v %v %v", tt.code, r.Is2xx(), r.Is3xx(), r.Is4xx(), r.Is5xx())
		}
		if r.IsError() != (tt.is4xx || tt.is5xx) {
			t.Errorf("%d: IsError() = %v", tt.code, r.IsError())
		}
	}
}

func TestReplyAndJSONReply(t *testing.T) {
	r := Reply(201, "made")
	if r.StatusLine() != "HTTP/1.1 201 Created" {
		t.Errorf("StatusLine() = %q", r.StatusLine())
	}
	if r.Text() != "made" {
		t.Errorf("Text() = %q", r.Text())
	}

	j, err := JSONReply(200, map[string]bool{"demo": true})
	if err != nil {
		t.Fatalf("JSONReply() error: %v", err)
	}
	if !j.IsJSON() {
		t.Error("expected a JSON content type")
	}
	var got map[string]bool
	if err := json.Unmarshal(j.Body(), &got); err != nil || !got["demo"] {
		t.Errorf("body = %s (%v)", j.Body(), err)
	}

	if _, err := JSONReply(200, make(chan int)); err == nil {
		t.Error("expected an error for an unencodable value")
	}
}

func TestResponseBuildersAreCopyOnWrite(t *testing.T) {
	base := Reply(200, "a")

	withHeader := base.WithHeader("X-A", "1")
	withBody := base.WithBody([]byte("b"))
	withStatus := base.WithStatus(503)
	withMeta := base.WithMetadata("k", "v")

	if base.Headers().Has("X-A") {
		t.Error("WithHeader changed the receiver")
	}
	if withHeader.Header("X-A") != "1" {
		t.Errorf("X-A = %q", withHeader.Header("X-A"))
	}
	if base.Text() != "a" || withBody.Text() != "b" {
		t.Errorf("bodies = %q and %q", base.Text(), withBody.Text())
	}
	if base.StatusCode() != 200 {
		t.Errorf("receiver status changed to %d", base.StatusCode())
	}
	if withStatus.ReasonPhrase() != "Service Unavailable" {
		t.Errorf("ReasonPhrase() = %q", withStatus.ReasonPhrase())
	}
	if len(base.Metadata()) != 0 {
		t.Errorf("receiver metadata = %v", base.Metadata())
	}
	if withMeta.Metadata()["k"] != "v" {
		t.Errorf("metadata k = %v", withMeta.Metadata()["k"])
	}

	// Returned maps and slices are copies.
	withMeta.Metadata()["k"] = "changed"
	if v, _ := withMeta.Meta("k"); v != "v" {
		t.Errorf("Metadata() exposed internal map, k = %v", v)
	}

	body := withBody.Body()
	body[0] = 'z'
	if withBody.Text() != "b" {
		t.Errorf("Body() exposed internal slice, body = %q", withBody.Text())
	}
}

func TestContentTypeDetection(t *testing.T) {
	tests := []struct {
		contentType string
		json, xml   bool
	}{
		{"application/json", true, false},
		{"Application/JSON; charset=utf-8", true, false},
		{"application/problem+json", true, false},
		{"application/xml", false, true},
		{"text/xml; charset=utf-8", false, true},
		{"application/atom+xml", false, true},
		{"text/plain", false, false},
		{"", false, false},
	}
	for _, tt := range tests {
		r := Reply(200, "").WithHeader("Content-Type", tt.contentType)
		if r.IsJSON() != tt.json {
			t.Errorf("%q: IsJSON() = %v", tt.contentType, r.IsJSON())
		}
		if r.IsXML() != tt.xml {
			t.Errorf("%q: IsXML() = %v", tt.contentType, r.IsXML())
		}
	}
}

func TestDecodedJSON(t *testing.T) {
	r := Reply(200, `{"demo":true,"n":[1,2]}`).WithHeader("Content-Type", "application/json")

	v, err := r.Decoded()
	if err != nil {
		t.Fatalf("Decoded() error: %v", err)
	}

	m, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("decoded type = %T, want map[string]any", v)
	}
	if m["demo"] != true {
		t.Errorf("demo = %v", m["demo"])
	}
	n, _ := m["n"].([]any)
	if !slices.Equal(n, []any{1.0, 2.0}) {
		t.Errorf("n = %v", m["n"])
	}
}

func TestDecodedXML(t *testing.T) {
	r := Reply(200, `<user id="7"><name>ada</name></user>`).WithHeader("Content-Type", "text/xml")

	v, err := r.Decoded()
	if err != nil {
		t.Fatalf("Decoded() error: %v", err)
	}

	n, ok := v.(*XMLNode)
	if !ok {
		t.Fatalf("decoded type = %T, want *XMLNode", v)
	}
	if n.XMLName.Local != "user" {
		t.Errorf("root = %q, want user", n.XMLName.Local)
	}

	if id, ok := n.Attr("id"); !ok || id != "7" {
		t.Errorf("id attr = %q (%v)", id, ok)
	}
	name, ok := n.Child("name")
	if !ok {
		t.Fatal("missing name child")
	}
	if name.Content != "ada" {
		t.Errorf("name = %q, want ada", name.Content)
	}
}

func TestDecodedErrors(t *testing.T) {
	_, err := Reply(200, "plain").WithHeader("Content-Type", "text/plain").Decoded()
	if !errors.Is(err, ErrDecode) {
		t.Errorf("plain text: expected ErrDecode, got %v", err)
	}

	_, err = Reply(200, "{broken").WithHeader("Content-Type", "application/json").Decoded()
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("broken JSON: expected *DecodeError, got %v", err)
	}
	if de.ContentType != "application/json" {
		t.Errorf("ContentType = %q", de.ContentType)
	}

	_, err = Reply(200, "<a>").WithHeader("Content-Type", "application/xml").Decoded()
	if !errors.Is(err, ErrDecode) {
		t.Errorf("broken XML: expected ErrDecode, got %v", err)
	}
}

func TestDecodeJSONIntoStruct(t *testing.T) {
	var out struct {
		Demo bool `json:"demo"`
	}
	if err := Reply(200, `{"demo":true}`).DecodeJSON(&out); err != nil {
		t.Fatalf("DecodeJSON() error: %v", err)
	}
	if !out.Demo {
		t.Error("expected Demo to be true")
	}
}

func TestApplyPassesCopyAndRequest(t *testing.T) {
	req := mustRequest(t, "GET", "https://example.com/")
	r := Reply(200, "").withRequest(req)

	var gotResp *Response
	var gotReq *Request
	out := r.Apply(func(resp *Response, rq *Request) {
		gotResp = resp
		gotReq = rq
	})

	if out == r {
		t.Error("Apply should return a copy")
	}
	if gotResp != out {
		t.Error("callback should receive the returned copy")
	}
	if gotReq != req {
		t.Error("callback should receive the originating request")
	}
}

func TestConditionalCallbacks(t *testing.T) {
	r := Reply(404, "")

	var calls []string
	record := func(name string) func(*Response, *Request) {
		return func(*Response, *Request) { calls = append(calls, name) }
	}

	if same := r.On2xx(record("2xx")); same != r {
		t.Error("On2xx should return the receiver")
	}

	r.On3xx(record("3xx")).
		On4xx(record("4xx")).
		On5xx(record("5xx")).
		OnSuccess(record("success")).
		OnRedirect(record("redirect")).
		OnError(record("error")).
		OnStatusCode(404, record("404")).
		OnStatusCode(500, record("500"))

	if want := []string{"4xx", "error", "404"}; !slices.Equal(calls, want) {
		t.Errorf("calls = %v, want %v", calls, want)
	}
}

func TestEnsureHelpersPass(t *testing.T) {
	r := Reply(200, `{"ok":true}`).
		WithHeader("Content-Type", "application/json; charset=utf-8").
		WithHeader("X-Request-Id", "abc")

	checks := []func() (*Response, error){
		func() (*Response, error) { return r.EnsureStatus(200) },
		func() (*Response, error) { return r.EnsureStatusIn(201, 200) },
		func() (*Response, error) { return r.EnsureStatusInRange(200, 200) },
		r.Ensure2xx,
		r.EnsureJSON,
		func() (*Response, error) { return r.EnsureContentType("application/json") },
		func() (*Response, error) { return r.EnsureHasHeader("x-request-id") },
		func() (*Response, error) { return r.EnsureContains(`"ok"`) },
	}
	for i, check := range checks {
		got, err := check()
		if err != nil {
			t.Errorf("check %d: unexpected error: %v", i, err)
			continue
		}
		if got != r {
			t.Errorf("check %d: should return the receiver", i)
		}
	}
}

func TestEnsureHelpersFail(t *testing.T) {
	r := Reply(500, "boom").WithHeader("Content-Type", "text/plain")

	tests := []struct {
		name  string
		check func() (*Response, error)
		kind  error
	}{
		{"status", func() (*Response, error) { return r.EnsureStatus(200) }, ErrStatusAssertion},
		{"status in", func() (*Response, error) { return r.EnsureStatusIn(200, 201) }, ErrStatusAssertion},
		{"range", func() (*Response, error) { return r.EnsureStatusInRange(200, 499) }, ErrStatusAssertion},
		{"2xx", r.Ensure2xx, ErrStatusAssertion},
		{"redirect", r.EnsureRedirect, ErrStatusAssertion},
		{"json", r.EnsureJSON, ErrContentTypeAssertion},
		{"xml", r.EnsureXML, ErrContentTypeAssertion},
		{"content type", func() (*Response, error) { return r.EnsureContentType("text/html") }, ErrContentTypeAssertion},
		{"header", func() (*Response, error) { return r.EnsureHasHeader("X-Missing") }, ErrHeaderAssertion},
		{"contains", func() (*Response, error) { return r.EnsureContains("fine") }, ErrContentAssertion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.check()
			if got != nil {
				t.Error("expected no response on failure")
			}
			if !errors.Is(err, ErrResponseAssertion) || !errors.Is(err, tt.kind) {
				t.Fatalf("expected %v, got %v", tt.kind, err)
			}

			var ae *AssertionError
			if !errors.As(err, &ae) {
				t.Fatalf("expected *AssertionError, got %T", err)
			}
			if ae.Response != r {
				t.Error("assertion error should carry the response")
			}
			if ae.Error() == "" {
				t.Error("assertion error message is empty")
			}
		})
	}
}

func TestEnsureStatusInWithoutCodesAcceptsAll(t *testing.T) {
	r := Reply(418, "")
	got, err := r.EnsureStatusIn()
	if err != nil {
		t.Fatalf("EnsureStatusIn() error: %v", err)
	}
	if got != r {
		t.Error("EnsureStatusIn() should return the receiver")
	}
}

func TestResponseRender(t *testing.T) {
	r := mustResponse(t, "HTTP/1.0 200 OK", []string{"Content-Type: text/plain"}, "hi")

	want := "HTTP/1.0 200 OK\r\nContent-Type: text/plain\r\n\r\nhi"
	if got := string(r.Render()); got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
	if !bytes.Equal(r.Render(), r.Render()) {
		t.Error("Render() should be stable")
	}
}
