package payload

import (
	"bytes"
	"strings"

	"github.com/google/uuid"
)

// Part is a single multipart/form-data entry.
type Part struct {
	// Name is the form field name. Required.
	Name string

	// Data is the raw field content.
	Data []byte

	// Filename is written into the Content-Disposition line when set.
	Filename string

	// ContentType emits a Content-Type line for the part when set.
	ContentType string
}

// Multipart is a multipart/form-data body.
type Multipart struct {
	boundary string
	parts    []Part
}

// NewMultipart creates an empty multipart payload with a unique boundary.
func NewMultipart(parts ...Part) *Multipart {
	return NewMultipartWithBoundary(newBoundary(), parts...)
}

// NewMultipartWithBoundary creates a multipart payload with a fixed
// boundary. Intended for callers that need reproducible output.
func NewMultipartWithBoundary(boundary string, parts ...Part) *Multipart {
	m := &Multipart{boundary: boundary}
	for _, p := range parts {
		m.parts = append(m.parts, clonePart(p))
	}
	return m
}

func newBoundary() string {
	return "fluent-" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

func clonePart(p Part) Part {
	p.Data = bytes.Clone(p.Data)
	return p
}

// WithField returns a new payload with part appended. The receiver is not
// modified and the boundary is preserved.
func (m *Multipart) WithField(part Part) *Multipart {
	parts := make([]Part, len(m.parts), len(m.parts)+1)
	copy(parts, m.parts)
	return &Multipart{
		boundary: m.boundary,
		parts:    append(parts, clonePart(part)),
	}
}

// Boundary returns the multipart boundary.
func (m *Multipart) Boundary() string { return m.boundary }

// Parts returns a copy of the entries in insertion order.
func (m *Multipart) Parts() []Part {
	out := make([]Part, len(m.parts))
	for i, p := range m.parts {
		out[i] = clonePart(p)
	}
	return out
}

// Len returns the number of entries.
func (m *Multipart) Len() int { return len(m.parts) }

// ContentType implements Payload.
func (m *Multipart) ContentType() string {
	return "multipart/form-data; boundary=" + m.boundary
}

// Render implements Payload.
func (m *Multipart) Render() []byte {
	var b bytes.Buffer
	for _, p := range m.parts {
		b.WriteString("--" + m.boundary + "\r\n")
		b.WriteString(`Content-Disposition: form-data; name="` + escapeQuotes(p.Name) + `"`)
		if p.Filename != "" {
			b.WriteString(`; filename="` + escapeQuotes(p.Filename) + `"`)
		}
		b.WriteString("\r\n")
		if p.ContentType != "" {
			b.WriteString("Content-Type: " + p.ContentType + "\r\n")
		}
		b.WriteString("\r\n")
		b.Write(p.Data)
		b.WriteString("\r\n")
	}
	b.WriteString("--" + m.boundary + "--\r\n")
	return b.Bytes()
}

func (*Multipart) isPayload() {}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
