// Package payload defines the request body variants understood by the
// fluent request builder.
//
// Payload is a closed sum type: *Raw, *JSON and *Multipart are the only
// implementations. Every variant is immutable once constructed; *Multipart
// is the only one that can grow, and it does so by returning a new value
// from WithField.
package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
)

// Content types set by the convenience constructors.
const (
	ContentTypeJSON = "application/json"
	ContentTypeXML  = "application/xml"
	ContentTypeForm = "application/x-www-form-urlencoded"
)

// Payload renders a request body.
type Payload interface {
	// Render returns the body bytes. It has no side effects and returns a
	// fresh slice on every call.
	Render() []byte

	// ContentType returns the value of the Content-Type header implied by
	// the payload.
	ContentType() string

	isPayload()
}

// Raw is an opaque body sent verbatim.
type Raw struct {
	data        []byte
	contentType string
}

// NewRaw creates a raw payload. data is copied.
func NewRaw(data []byte, contentType string) *Raw {
	return &Raw{data: bytes.Clone(data), contentType: contentType}
}

// NewXML creates a raw payload with the application/xml content type.
func NewXML(data []byte) *Raw {
	return NewRaw(data, ContentTypeXML)
}

// NewForm creates an application/x-www-form-urlencoded payload from values.
func NewForm(values url.Values) *Raw {
	return NewRaw([]byte(values.Encode()), ContentTypeForm)
}

// Render implements Payload.
func (p *Raw) Render() []byte { return bytes.Clone(p.data) }

// ContentType implements Payload.
func (p *Raw) ContentType() string { return p.contentType }

func (*Raw) isPayload() {}

// JSON is a body produced by JSON-encoding a value.
type JSON struct {
	value       any
	encoded     []byte
	contentType string
}

// NewJSON encodes value and returns a JSON payload. contentType defaults to
// application/json. Forward slashes, HTML characters and non-ASCII text are
// written unescaped.
func NewJSON(value any, contentType ...string) (*JSON, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return nil, fmt.Errorf("payload: encode json: %w", err)
	}

	ct := ContentTypeJSON
	if len(contentType) > 0 && contentType[0] != "" {
		ct = contentType[0]
	}

	return &JSON{
		value:       value,
		encoded:     bytes.TrimSuffix(buf.Bytes(), []byte("\n")),
		contentType: ct,
	}, nil
}

// Value returns the value that was encoded.
func (p *JSON) Value() any { return p.value }

// Render implements Payload.
func (p *JSON) Render() []byte { return bytes.Clone(p.encoded) }

// ContentType implements Payload.
func (p *JSON) ContentType() string { return p.contentType }

func (*JSON) isPayload() {}

// Compile-time checks that every variant implements Payload.
var (
	_ Payload = (*Raw)(nil)
	_ Payload = (*JSON)(nil)
	_ Payload = (*Multipart)(nil)
)
