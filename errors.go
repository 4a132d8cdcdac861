package fluent

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrLockedPayload is returned when a payload is assigned to a request
	// that already carries a non-multipart payload.
	ErrLockedPayload = errors.New("fluent: payload is locked")

	// ErrUnsupportedTLSVersion is returned by WithTLS for unknown versions.
	ErrUnsupportedTLSVersion = errors.New("fluent: unsupported TLS version")

	// ErrUnsupportedCryptoMethod is returned by WithCryptoMethod for
	// unknown crypto methods.
	ErrUnsupportedCryptoMethod = errors.New("fluent: unsupported crypto method")

	// ErrInvalidURL is returned when a URL is malformed or its scheme is
	// not http or https.
	ErrInvalidURL = errors.New("fluent: invalid URL")

	// ErrInvalidMockHandler is returned when a mock handler is nil or
	// returns neither a Response nor an error.
	ErrInvalidMockHandler = errors.New("fluent: invalid mock handler")

	// ErrConnection is the sentinel behind ConnectionError.
	ErrConnection = errors.New("fluent: connection failed")

	// ErrDecode is the sentinel behind DecodeError.
	ErrDecode = errors.New("fluent: decode failed")

	// ErrMalformedStatusLine is returned when a status line cannot be parsed.
	ErrMalformedStatusLine = errors.New("fluent: malformed status line")
)

// Assertion kinds. Every AssertionError matches ErrResponseAssertion and
// exactly one of the kind sentinels.
var (
	ErrResponseAssertion    = errors.New("fluent: response assertion failed")
	ErrStatusAssertion      = errors.New("fluent: unexpected status code")
	ErrContentTypeAssertion = errors.New("fluent: unexpected content type")
	ErrHeaderAssertion      = errors.New("fluent: missing header")
	ErrContentAssertion     = errors.New("fluent: unexpected content")
)

// ConnectionError is returned by an Engine when the exchange could not be
// completed. It is never retried.
type ConnectionError struct {
	// Request is the request that was being sent.
	Request *Request

	// Err is the underlying transport error.
	Err error

	// Diagnostics carries transport details such as the target URL and
	// the configured timeout.
	Diagnostics map[string]any
}

func (e *ConnectionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "fluent: %s %s: %v", e.Request.Method(), e.Request.URL(), e.Err)
	if len(e.Diagnostics) > 0 {
		keys := make([]string, 0, len(e.Diagnostics))
		for k := range e.Diagnostics {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Diagnostics[k])
		}
		b.WriteString(")")
	}
	return b.String()
}

// Unwrap returns ErrConnection and the underlying error.
func (e *ConnectionError) Unwrap() []error {
	return []error{ErrConnection, e.Err}
}

// DecodeError is returned when a response body cannot be decoded.
type DecodeError struct {
	ContentType string
	Err         error
}

func (e *DecodeError) Error() string {
	ct := e.ContentType
	if ct == "" {
		ct = "<none>"
	}
	return fmt.Sprintf("fluent: decode %s body: %v", ct, e.Err)
}

// Unwrap returns ErrDecode and the underlying error.
func (e *DecodeError) Unwrap() []error {
	return []error{ErrDecode, e.Err}
}

// AssertionError is returned by the Response Ensure* helpers. It carries
// the offending Response.
type AssertionError struct {
	// Kind is one of ErrStatusAssertion, ErrContentTypeAssertion,
	// ErrHeaderAssertion or ErrContentAssertion.
	Kind error

	// Response is the response that failed the assertion.
	Response *Response

	// Message describes the failure.
	Message string
}

func (e *AssertionError) Error() string {
	return "fluent: " + e.Message
}

// Unwrap returns ErrResponseAssertion and the assertion kind.
func (e *AssertionError) Unwrap() []error {
	return []error{ErrResponseAssertion, e.Kind}
}

func assertionFailed(kind error, resp *Response, format string, args ...any) *AssertionError {
	return &AssertionError{
		Kind:     kind,
		Response: resp,
		Message:  fmt.Sprintf(format, args...),
	}
}
