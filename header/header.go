// Package header provides an ordered, case-insensitive header set.
//
// A Header is a value: every mutating method returns a new Header and
// leaves the receiver untouched, so a Header can be shared freely between
// requests derived from the same base.
package header

import (
	"net/http"
	"net/textproto"
	"sort"
	"strings"
)

// Field is a single header line.
type Field struct {
	Name  string
	Value string
}

// Header is an ordered multimap of header name to value. The zero value is
// an empty, usable set.
type Header struct {
	fields []Field
}

// New creates a Header from name/value pairs, in order. Repeated names are
// merged with Add semantics.
func New(fields ...Field) Header {
	var h Header
	for _, f := range fields {
		h = h.Add(f.Name, f.Value)
	}
	return h
}

// FromMap creates a Header from a map. Keys are sorted so the resulting
// order is deterministic; names differing only by case are merged.
func FromMap(m map[string]string) Header {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	var h Header
	for _, name := range names {
		h = h.Add(name, m[name])
	}
	return h
}

// FromHTTP converts a net/http header into a Header, keeping every value of
// a repeated header as a separate field.
func FromHTTP(src http.Header) Header {
	names := make([]string, 0, len(src))
	for name := range src {
		names = append(names, name)
	}
	sort.Strings(names)

	h := Header{fields: make([]Field, 0, len(src))}
	for _, name := range names {
		for _, v := range src[name] {
			h.fields = append(h.fields, Field{Name: Canonical(name), Value: v})
		}
	}
	return h
}

// Canonical returns the canonical form of a header name (e.g. "content-type"
// becomes "Content-Type").
func Canonical(name string) string {
	return textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(name))
}

func (h Header) index(name string) int {
	for i, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return i
		}
	}
	return -1
}

func (h Header) clone(extra int) []Field {
	out := make([]Field, len(h.fields), len(h.fields)+extra)
	copy(out, h.fields)
	return out
}

// Set replaces every value of name with value. The field keeps the position
// of the first existing occurrence, or is appended when absent.
func (h Header) Set(name, value string) Header {
	name = Canonical(name)
	i := h.index(name)
	if i < 0 {
		fields := h.clone(1)
		return Header{fields: append(fields, Field{Name: name, Value: value})}
	}

	fields := make([]Field, 0, len(h.fields))
	for j, f := range h.fields {
		switch {
		case j == i:
			fields = append(fields, Field{Name: name, Value: value})
		case strings.EqualFold(f.Name, name):
			// drop duplicates
		default:
			fields = append(fields, f)
		}
	}
	return Header{fields: fields}
}

// Add appends value to name. When name is already present the new value is
// joined to the existing one with ";".
func (h Header) Add(name, value string) Header {
	name = Canonical(name)
	fields := h.clone(1)
	if i := h.index(name); i >= 0 {
		fields[i].Value = fields[i].Value + ";" + value
		return Header{fields: fields}
	}
	return Header{fields: append(fields, Field{Name: name, Value: value})}
}

// Append adds value as a separate field even when name is already present.
// Response headers such as Set-Cookie rely on this.
func (h Header) Append(name, value string) Header {
	fields := h.clone(1)
	return Header{fields: append(fields, Field{Name: Canonical(name), Value: value})}
}

// Del removes every field named name.
func (h Header) Del(name string) Header {
	if h.index(name) < 0 {
		return h
	}
	fields := make([]Field, 0, len(h.fields))
	for _, f := range h.fields {
		if !strings.EqualFold(f.Name, name) {
			fields = append(fields, f)
		}
	}
	return Header{fields: fields}
}

// Get returns the first value of name, and whether it was present.
func (h Header) Get(name string) (string, bool) {
	if i := h.index(name); i >= 0 {
		return h.fields[i].Value, true
	}
	return "", false
}

// Value returns the first value of name or "".
func (h Header) Value(name string) string {
	v, _ := h.Get(name)
	return v
}

// Values returns every value of name in order.
func (h Header) Values(name string) []string {
	var out []string
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			out = append(out, f.Value)
		}
	}
	return out
}

// Has reports whether name is present.
func (h Header) Has(name string) bool {
	return h.index(name) >= 0
}

// Len returns the number of fields.
func (h Header) Len() int {
	return len(h.fields)
}

// All returns a copy of the fields in order.
func (h Header) All() []Field {
	return h.clone(0)
}

// Names returns the distinct field names in order of first appearance.
func (h Header) Names() []string {
	seen := make(map[string]struct{}, len(h.fields))
	var names []string
	for _, f := range h.fields {
		key := strings.ToLower(f.Name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		names = append(names, f.Name)
	}
	return names
}

// Merge returns h with every field of other applied using Set semantics.
func (h Header) Merge(other Header) Header {
	out := h
	for _, name := range other.Names() {
		out = out.Set(name, other.Value(name))
		for _, v := range other.Values(name)[1:] {
			out = out.Append(name, v)
		}
	}
	return out
}

// HTTP converts the set into a net/http header.
func (h Header) HTTP() http.Header {
	out := make(http.Header, len(h.fields))
	for _, f := range h.fields {
		out[f.Name] = append(out[f.Name], f.Value)
	}
	return out
}

// Lines renders the set as "Name: Value" lines without terminators.
func (h Header) Lines() []string {
	lines := make([]string, len(h.fields))
	for i, f := range h.fields {
		lines[i] = f.Name + ": " + f.Value
	}
	return lines
}

// Render writes every field as a CRLF-terminated "Name: Value" line.
func (h Header) Render() string {
	var b strings.Builder
	for _, f := range h.fields {
		b.WriteString(f.Name)
		b.WriteString(": ")
		b.WriteString(f.Value)
		b.WriteString("\r\n")
	}
	return b.String()
}

// Parse reads a "Name: Value" line. ok is false when the line has no colon.
func Parse(line string) (f Field, ok bool) {
	name, value, found := strings.Cut(line, ":")
	if !found || strings.TrimSpace(name) == "" {
		return Field{}, false
	}
	return Field{Name: Canonical(name), Value: strings.TrimSpace(value)}, true
}
