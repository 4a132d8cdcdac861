// Package report renders responses for terminal or machine consumption.
package report

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/0x6d61/fluent"
)

// Reporter generates output in a specific format.
type Reporter interface {
	// Format returns the format name (e.g., "text", "json").
	Format() string

	// Generate writes the formatted response to w.
	Generate(ctx context.Context, resp *fluent.Response, w io.Writer) error
}

// New creates a reporter by format name ("text", "json" or "raw").
// The format name is case-insensitive.
func New(format string) (Reporter, error) {
	switch strings.ToLower(format) {
	case "text":
		return &TextReporter{}, nil
	case "json":
		return &JSONReporter{}, nil
	case "raw":
		return &RawReporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported report format: %q", format)
	}
}

// RawReporter writes the response as an HTTP message.
type RawReporter struct{}

// Format returns "raw".
func (r *RawReporter) Format() string {
	return "raw"
}

// Generate writes resp.Render() to w.
func (r *RawReporter) Generate(ctx context.Context, resp *fluent.Response, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := w.Write(resp.Render())
	return err
}
