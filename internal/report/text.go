package report

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/0x6d61/fluent"
)

const (
	singleLine = "\u2500" // ─
	lineWidth  = 50
)

// TextReporter outputs terminal text.
type TextReporter struct {
	// Verbose controls detail level: 0=status and body, 1=+headers,
	// 2=+request and metadata.
	Verbose int

	// Color enables ANSI colors.
	Color bool
}

// Format returns "text".
func (r *TextReporter) Format() string {
	return "text"
}

// paint applies the Color setting to c.
func (r *TextReporter) paint(c *color.Color) *color.Color {
	if r.Color {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}

func statusColor(code int) *color.Color {
	switch {
	case code >= 500:
		return color.New(color.FgRed, color.Bold)
	case code >= 400:
		return color.New(color.FgYellow, color.Bold)
	case code >= 300:
		return color.New(color.FgCyan, color.Bold)
	default:
		return color.New(color.FgGreen, color.Bold)
	}
}

// Generate writes the response to w.
func (r *TextReporter) Generate(ctx context.Context, resp *fluent.Response, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	statusFmt := r.paint(statusColor(resp.StatusCode()))
	nameFmt := r.paint(color.New(color.FgCyan))
	dimFmt := r.paint(color.New(color.Faint))

	b := &strings.Builder{}
	bar := strings.Repeat(singleLine, lineWidth)

	if r.Verbose >= 2 {
		if req := resp.Request(); req != nil {
			fmt.Fprintln(b, dimFmt.Sprintf("> %s %s", req.Method(), req.URL()))
			for _, f := range req.PreparedHeaders().All() {
				fmt.Fprintln(b, dimFmt.Sprintf("> %s: %s", f.Name, f.Value))
			}
			fmt.Fprintln(b, dimFmt.Sprint(bar))
		}
	}

	fmt.Fprintln(b, statusFmt.Sprint(resp.StatusLine()))

	if r.Verbose >= 1 {
		for _, f := range resp.Headers().All() {
			fmt.Fprintf(b, "%s: %s\n", nameFmt.Sprint(f.Name), f.Value)
		}
	}

	if r.Verbose >= 2 {
		if meta := resp.Metadata(); len(meta) > 0 {
			fmt.Fprintln(b, dimFmt.Sprint(bar))
			keys := make([]string, 0, len(meta))
			for k := range meta {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintln(b, dimFmt.Sprintf("%s: %s", k, formatMeta(meta[k])))
			}
		}
	}

	if body := resp.Text(); body != "" {
		if r.Verbose >= 1 {
			fmt.Fprintln(b)
		}
		b.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			b.WriteString("\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func formatMeta(v any) string {
	switch x := v.(type) {
	case time.Duration:
		return x.Round(time.Microsecond).String()
	case map[string]string:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + x[k]
		}
		return strings.Join(parts, " ")
	default:
		return fmt.Sprint(v)
	}
}
