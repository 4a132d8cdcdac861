// Package transport performs the network exchange behind the fluent native
// engine. It knows nothing about payload types or mocks: it takes a fully
// prepared request and returns the raw status, headers and body.
package transport

import (
	"net/http"
	"time"
)

// TLSPolicy restricts the protocol versions and verification used for a
// request. Zero versions mean "library default".
type TLSPolicy struct {
	// MinVersion is the lowest accepted tls.Version* constant.
	MinVersion uint16

	// MaxVersion is the highest accepted tls.Version* constant.
	MaxVersion uint16

	// InsecureSkipVerify disables peer certificate and host verification.
	InsecureSkipVerify bool
}

// Request represents an HTTP request to be sent by the transport client.
type Request struct {
	// Method is the HTTP method (GET, POST, PUT, etc.).
	Method string

	// URL is the target URL.
	URL string

	// Header contains every header to send, including Host and User-Agent.
	Header http.Header

	// Body is the rendered request body.
	Body []byte

	// TLS is the per-request TLS policy.
	TLS TLSPolicy

	// ProxyURL overrides the client-level proxy for this request.
	ProxyURL string

	// FollowRedirects overrides the client-level redirect setting
	// for this specific request. nil means use the client default.
	FollowRedirects *bool

	// Timeout overrides the client-level timeout for this specific
	// request. Zero means use the client default.
	Timeout time.Duration
}
