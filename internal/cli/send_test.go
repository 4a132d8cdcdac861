package cli

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/0x6d61/fluent"
	"github.com/0x6d61/fluent/internal/journal"
)

// --------------------------------------------------------------------------
// Echo server for CLI send tests
//   - /echo     → JSON describing the received request
//   - /missing  → 404
// --------------------------------------------------------------------------

type echoReply struct {
	Method      string            `json:"method"`
	ContentType string            `json:"content_type"`
	Auth        string            `json:"auth"`
	Custom      string            `json:"custom"`
	Body        string            `json:"body"`
	Form        map[string]string `json:"form,omitempty"`
}

func newEchoServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		reply := echoReply{
			Method:      r.Method,
			ContentType: r.Header.Get("Content-Type"),
			Auth:        r.Header.Get("Authorization"),
			Custom:      r.Header.Get("X-Custom"),
		}
		if strings.HasPrefix(reply.ContentType, "multipart/form-data") {
			if err := r.ParseMultipartForm(1 << 20); err == nil {
				reply.Form = map[string]string{}
				for k, v := range r.MultipartForm.Value {
					reply.Form[k] = v[0]
				}
				for k, fh := range r.MultipartForm.File {
					f, _ := fh[0].Open()
					data, _ := io.ReadAll(f)
					f.Close()
					reply.Form[k] = fh[0].Filename + ":" + string(data)
				}
			}
		} else {
			data, _ := io.ReadAll(r.Body)
			reply.Body = string(data)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(reply)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "nothing here", http.StatusNotFound)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &hits
}

// sendJSON runs "send" with JSON output and decodes the echoed request.
func sendJSON(t *testing.T, args ...string) echoReply {
	t.Helper()

	out, err := execute(t, append([]string{"send", "-f", "json"}, args...)...)
	if err != nil {
		t.Fatalf("send returned error: %v", err)
	}

	var doc struct {
		Response struct {
			Status int       `json:"status"`
			Body   echoReply `json:"body"`
		} `json:"response"`
	}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, out)
	}
	if doc.Response.Status != http.StatusOK {
		t.Fatalf("status = %d, want 200", doc.Response.Status)
	}
	return doc.Response.Body
}

func TestSendCommand_Exists(t *testing.T) {
	if sendCmd.Name() != "send" {
		t.Errorf("expected name 'send', got %q", sendCmd.Name())
	}
}

func TestSend_MissingURL(t *testing.T) {
	if _, err := execute(t, "send"); err == nil {
		t.Fatal("expected error when no URL is given, got nil")
	}
}

func TestSend_TextOutput(t *testing.T) {
	srv, hits := newEchoServer(t)

	out, err := execute(t, "send", srv.URL+"/echo")
	if err != nil {
		t.Fatalf("send returned error: %v", err)
	}
	if !strings.HasPrefix(out, "HTTP/1.1 200 OK\n") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out, `"method":"GET"`) {
		t.Errorf("output missing echoed method:\n%s", out)
	}
	if hits.Load() != 1 {
		t.Errorf("server hits = %d, want 1", hits.Load())
	}
}

func TestSend_HeadersAndAuth(t *testing.T) {
	srv, _ := newEchoServer(t)

	got := sendJSON(t, srv.URL+"/echo", "-H", "X-Custom: hello", "-u", "alice:secret")

	if got.Custom != "hello" {
		t.Errorf("X-Custom = %q, want hello", got.Custom)
	}
	if got.Auth != "Basic YWxpY2U6c2VjcmV0" {
		t.Errorf("Authorization = %q", got.Auth)
	}
}

func TestSend_DataDefaultsToPOST(t *testing.T) {
	srv, _ := newEchoServer(t)

	got := sendJSON(t, srv.URL+"/echo", "-d", "a=1&b=2")

	if got.Method != "POST" {
		t.Errorf("method = %q, want POST", got.Method)
	}
	if got.ContentType != "application/x-www-form-urlencoded" {
		t.Errorf("content type = %q", got.ContentType)
	}
	if got.Body != "a=1&b=2" {
		t.Errorf("body = %q", got.Body)
	}
}

func TestSend_DataFromFileWithExplicitContentType(t *testing.T) {
	srv, _ := newEchoServer(t)
	path := filepath.Join(t.TempDir(), "body.txt")
	if err := os.WriteFile(path, []byte("from file"), 0o600); err != nil {
		t.Fatal(err)
	}

	got := sendJSON(t, srv.URL+"/echo", "-X", "PUT", "-d", "@"+path, "-H", "Content-Type: text/plain")

	if got.Method != "PUT" {
		t.Errorf("method = %q, want PUT", got.Method)
	}
	if got.ContentType != "text/plain" {
		t.Errorf("content type = %q, want text/plain", got.ContentType)
	}
	if got.Body != "from file" {
		t.Errorf("body = %q", got.Body)
	}
}

func TestSend_JSONBody(t *testing.T) {
	srv, _ := newEchoServer(t)

	got := sendJSON(t, srv.URL+"/echo", "--json", `{"name":"fluent"}`)

	if got.Method != "POST" {
		t.Errorf("method = %q, want POST", got.Method)
	}
	if got.ContentType != "application/json" {
		t.Errorf("content type = %q", got.ContentType)
	}
	if got.Body != `{"name":"fluent"}` {
		t.Errorf("body = %q", got.Body)
	}
}

func TestSend_InvalidJSONBody(t *testing.T) {
	_, err := execute(t, "send", "http://127.0.0.1:1/echo", "--json", "{nope")
	if err == nil || !strings.Contains(err.Error(), "not valid JSON") {
		t.Fatalf("expected invalid JSON error, got %v", err)
	}
}

func TestSend_MultipartForm(t *testing.T) {
	srv, _ := newEchoServer(t)
	path := filepath.Join(t.TempDir(), "note.txt")
	if err := os.WriteFile(path, []byte("attached"), 0o600); err != nil {
		t.Fatal(err)
	}

	got := sendJSON(t, srv.URL+"/echo", "-F", "name=value", "-F", "doc=@"+path)

	if got.Form["name"] != "value" {
		t.Errorf("form name = %q", got.Form["name"])
	}
	if got.Form["doc"] != "note.txt:attached" {
		t.Errorf("form doc = %q", got.Form["doc"])
	}
}

func TestSend_ExclusiveBodies(t *testing.T) {
	_, err := execute(t, "send", "http://127.0.0.1:1/echo", "-d", "a", "--json", "{}")
	if err == nil || !strings.Contains(err.Error(), "only one of") {
		t.Fatalf("expected exclusivity error, got %v", err)
	}
}

func TestSend_InvalidHeader(t *testing.T) {
	_, err := execute(t, "send", "http://127.0.0.1:1/echo", "-H", "no-colon")
	if err == nil || !strings.Contains(err.Error(), "invalid header") {
		t.Fatalf("expected invalid header error, got %v", err)
	}
}

func TestSend_Insecure(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("over tls"))
	}))
	t.Cleanup(srv.Close)

	if _, err := execute(t, "send", srv.URL); !errors.Is(err, fluent.ErrConnection) {
		t.Fatalf("expected certificate failure without -k, got %v", err)
	}

	out, err := execute(t, "send", srv.URL, "-k", "-f", "raw")
	if err != nil {
		t.Fatalf("send -k returned error: %v", err)
	}
	if !strings.Contains(out, "over tls") {
		t.Errorf("expected the TLS body, got:\n%s", out)
	}
}

func TestSend_Proxy(t *testing.T) {
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("proxied " + r.Host))
	}))
	t.Cleanup(proxy.Close)

	out, err := execute(t, "send", "http://origin.test/x", "--proxy", proxy.URL, "-f", "raw")
	if err != nil {
		t.Fatalf("send --proxy returned error: %v", err)
	}
	if !strings.Contains(out, "proxied origin.test") {
		t.Errorf("request did not go through the proxy, got:\n%s", out)
	}
}

func TestSend_InvalidProxy(t *testing.T) {
	_, err := execute(t, "send", "http://127.0.0.1:1/echo", "--proxy", "not a proxy")
	if err == nil || !strings.Contains(err.Error(), "set proxy") {
		t.Fatalf("expected proxy error, got %v", err)
	}
}

func TestSend_Ensure2xx(t *testing.T) {
	srv, _ := newEchoServer(t)

	out, err := execute(t, "send", srv.URL+"/missing", "--ensure-2xx")
	if !errors.Is(err, fluent.ErrStatusAssertion) {
		t.Fatalf("expected ErrStatusAssertion, got %v", err)
	}
	if !strings.HasPrefix(out, "HTTP/1.1 404 Not Found") {
		t.Errorf("response should still be printed, got:\n%s", out)
	}
}

func TestSend_MockFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mocks.yaml")
	fixtureYAML := `mocks:
  - method: GET
    url: https://api.test/users/{id}
    json:
      id: "{id}"
`
	if err := os.WriteFile(path, []byte(fixtureYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "send", "https://api.test/users/42", "--mocks", path)
	if err != nil {
		t.Fatalf("send returned error: %v", err)
	}
	want := "HTTP/1.1 200 OK\n{\"id\":\"42\"}\n"
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestSend_OutputFile(t *testing.T) {
	srv, _ := newEchoServer(t)
	path := filepath.Join(t.TempDir(), "out.txt")

	out, err := execute(t, "send", srv.URL+"/echo", "-f", "raw", "-o", path)
	if err != nil {
		t.Fatalf("send returned error: %v", err)
	}
	if out != "" {
		t.Errorf("stdout should be empty, got %q", out)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "HTTP/1.1 200 OK\r\n") {
		t.Errorf("unexpected file content:\n%s", data)
	}
}

func TestSend_ReplayRequiresJournal(t *testing.T) {
	_, err := execute(t, "send", "http://127.0.0.1:1/echo", "--replay")
	if err == nil || !strings.Contains(err.Error(), "--journal") {
		t.Fatalf("expected journal error, got %v", err)
	}
}

func TestSend_JournalReplayAndHistory(t *testing.T) {
	srv, hits := newEchoServer(t)
	dbPath := filepath.Join(t.TempDir(), "journal.db")
	url := srv.URL + "/echo"

	if _, err := execute(t, "send", url, "--journal", dbPath); err != nil {
		t.Fatalf("recording send failed: %v", err)
	}
	srv.Close()

	out, err := execute(t, "send", url, "--journal", dbPath, "--replay")
	if err != nil {
		t.Fatalf("replayed send failed: %v", err)
	}
	if !strings.Contains(out, `"method":"GET"`) {
		t.Errorf("replayed output missing recorded body:\n%s", out)
	}
	if hits.Load() != 1 {
		t.Errorf("server hits = %d, want 1", hits.Load())
	}

	list, err := execute(t, "history", "list", "--journal", dbPath)
	if err != nil {
		t.Fatalf("history list failed: %v", err)
	}
	if !strings.Contains(list, url) || strings.Count(list, "\n") != 2 {
		t.Errorf("history list should show one exchange:\n%s", list)
	}

	store, err := journal.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	summaries, err := store.List(t.Context(), 1)
	store.Close()
	if err != nil || len(summaries) != 1 {
		t.Fatalf("List() = %v, %v", summaries, err)
	}

	shown, err := execute(t, "history", "show", summaries[0].ID, "--journal", dbPath)
	if err != nil {
		t.Fatalf("history show failed: %v", err)
	}
	if !strings.HasPrefix(shown, "HTTP/1.1 200 OK\n") {
		t.Errorf("unexpected history show output:\n%s", shown)
	}

	cleaned, err := execute(t, "history", "cleanup", "--older-than", "0s", "--journal", dbPath)
	if err != nil {
		t.Fatalf("history cleanup failed: %v", err)
	}
	if !strings.Contains(cleaned, "Deleted 1 exchange(s)") {
		t.Errorf("unexpected cleanup output %q", cleaned)
	}
}

func TestSend_JournalRecordsMockedResponses(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "journal.db")
	mocks := filepath.Join(dir, "mocks.yaml")
	if err := os.WriteFile(mocks, []byte("mocks:\n  - url: https://api.test/ping\n    body: pong\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := execute(t, "send", "https://api.test/ping", "--mocks", mocks, "--journal", dbPath); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	list, err := execute(t, "history", "list", "--journal", dbPath)
	if err != nil {
		t.Fatalf("history list failed: %v", err)
	}
	if !strings.Contains(list, "https://api.test/ping") {
		t.Errorf("mocked exchange not recorded:\n%s", list)
	}
}

func TestHistory_RequiresJournal(t *testing.T) {
	_, err := execute(t, "history", "list")
	if err == nil || !strings.Contains(err.Error(), "journal path is required") {
		t.Fatalf("expected journal path error, got %v", err)
	}
}

func TestHistory_ShowUnknownID(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "journal.db")
	_, err := execute(t, "history", "show", "nope", "--journal", dbPath)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestParseHeaders(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		want    map[string]string
		wantErr bool
	}{
		{name: "empty headers", input: nil, want: map[string]string{}},
		{name: "single header", input: []string{"X-Custom: value"}, want: map[string]string{"X-Custom": "value"}},
		{name: "canonical name", input: []string{"x-custom:value"}, want: map[string]string{"X-Custom": "value"}},
		{name: "header with colon in value", input: []string{"X-Forward: http://example.com:8080"}, want: map[string]string{"X-Forward": "http://example.com:8080"}},
		{name: "missing colon", input: []string{"broken"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields, err := parseHeaders(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(fields) != len(tt.want) {
				t.Fatalf("expected %d headers, got %d", len(tt.want), len(fields))
			}
			for _, f := range fields {
				if tt.want[f.Name] != f.Value {
					t.Errorf("header %q: expected %q, got %q", f.Name, tt.want[f.Name], f.Value)
				}
			}
		})
	}
}

func TestAddFormField_Invalid(t *testing.T) {
	req, err := fluent.NewRequest("POST", "https://api.test/upload")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := addFormField(req, "novalue"); err == nil {
		t.Error("expected error for field without '='")
	}
	if _, err := addFormField(req, "doc=@/does/not/exist"); err == nil {
		t.Error("expected error for missing file")
	}
}
