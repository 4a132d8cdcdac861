package report

import (
	"context"
	"encoding/json"
	"io"
	"time"
	"unicode/utf8"

	"github.com/0x6d61/fluent"
	"github.com/0x6d61/fluent/header"
)

// JSONReporter outputs structured JSON.
type JSONReporter struct {
	// Compact outputs single-line JSON when true (no indentation).
	Compact bool
}

// Format returns "json".
func (r *JSONReporter) Format() string {
	return "json"
}

// jsonOutput is the top-level JSON structure.
type jsonOutput struct {
	SchemaVersion string       `json:"schema_version"`
	Tool          string       `json:"tool"`
	Request       *jsonRequest `json:"request,omitempty"`
	Response      jsonResponse `json:"response"`
	Timing        *jsonTiming  `json:"timing,omitempty"`
}

// jsonRequest represents the request in JSON.
type jsonRequest struct {
	Method  string       `json:"method"`
	URL     string       `json:"url"`
	Headers []jsonHeader `json:"headers"`
}

// jsonResponse represents the response in JSON.
type jsonResponse struct {
	Protocol    string       `json:"protocol"`
	Status      int          `json:"status"`
	Reason      string       `json:"reason"`
	Headers     []jsonHeader `json:"headers"`
	ContentType string       `json:"content_type,omitempty"`
	Body        any          `json:"body,omitempty"`
	BodyBytes   []byte       `json:"body_base64,omitempty"`
	Mocked      bool         `json:"mocked"`
}

// jsonHeader represents one header field in JSON.
type jsonHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// jsonTiming represents transport timing in JSON.
type jsonTiming struct {
	DurationSeconds float64 `json:"duration_seconds"`
}

func jsonHeaders(fields []header.Field) []jsonHeader {
	out := make([]jsonHeader, len(fields))
	for i, f := range fields {
		out[i] = jsonHeader{Name: f.Name, Value: f.Value}
	}
	return out
}

// Generate writes the response as JSON to w. A JSON body is embedded as a
// value, other UTF-8 bodies as a string and binary bodies as base64.
func (r *JSONReporter) Generate(ctx context.Context, resp *fluent.Response, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	output := jsonOutput{
		SchemaVersion: "1.0",
		Tool:          "fluent",
		Response: jsonResponse{
			Protocol:    resp.ProtocolVersion(),
			Status:      resp.StatusCode(),
			Reason:      resp.ReasonPhrase(),
			Headers:     jsonHeaders(resp.Headers().All()),
			ContentType: resp.ContentType(),
			Mocked:      resp.Mocked(),
		},
	}

	if req := resp.Request(); req != nil {
		output.Request = &jsonRequest{
			Method:  req.Method(),
			URL:     req.URL(),
			Headers: jsonHeaders(req.PreparedHeaders().All()),
		}
	}

	if d, ok := resp.Meta(fluent.MetaDuration); ok {
		if dur, ok := d.(time.Duration); ok {
			output.Timing = &jsonTiming{DurationSeconds: dur.Seconds()}
		}
	}

	body := resp.Body()
	switch {
	case len(body) == 0:
	case resp.IsJSON() && json.Valid(body):
		output.Response.Body = json.RawMessage(body)
	case utf8.Valid(body):
		output.Response.Body = string(body)
	default:
		output.Response.BodyBytes = body
	}

	enc := json.NewEncoder(w)
	if !r.Compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(output)
}
