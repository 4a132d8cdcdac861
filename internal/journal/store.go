// Package journal records HTTP exchanges so they can be reviewed and
// replayed later as mock endpoints.
package journal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/0x6d61/fluent"
	"github.com/0x6d61/fluent/header"
)

// Exchange is one recorded request/response pair.
type Exchange struct {
	ID              string         `json:"id"`
	Method          string         `json:"method"`
	URL             string         `json:"url"`
	RequestHeaders  []header.Field `json:"request_headers"`
	RequestBody     []byte         `json:"request_body,omitempty"`
	Protocol        string         `json:"protocol"`
	Status          int            `json:"status"`
	Reason          string         `json:"reason"`
	ResponseHeaders []header.Field `json:"response_headers"`
	ResponseBody    []byte         `json:"response_body,omitempty"`
	Mocked          bool           `json:"mocked"`
	Duration        time.Duration  `json:"duration"`
	CreatedAt       time.Time      `json:"created_at"`
}

// Summary is a lightweight exchange overview.
type Summary struct {
	ID        string    `json:"id"`
	Method    string    `json:"method"`
	URL       string    `json:"url"`
	Status    int       `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists and retrieves exchanges.
type Store interface {
	Save(ctx context.Context, ex *Exchange) error
	LoadByID(ctx context.Context, id string) (*Exchange, error)
	List(ctx context.Context, limit int) ([]*Summary, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// FromResponse captures resp and the request that produced it.
func FromResponse(resp *fluent.Response) *Exchange {
	return newExchange(resp.Request(), resp)
}

func newExchange(req *fluent.Request, resp *fluent.Response) *Exchange {
	ex := &Exchange{
		Protocol:        resp.ProtocolVersion(),
		Status:          resp.StatusCode(),
		Reason:          resp.ReasonPhrase(),
		ResponseHeaders: resp.Headers().All(),
		ResponseBody:    resp.Body(),
		Mocked:          resp.Mocked(),
	}
	if d, ok := resp.Meta(fluent.MetaDuration); ok {
		ex.Duration, _ = d.(time.Duration)
	}
	if req != nil {
		ex.Method = req.Method()
		ex.URL = req.URL()
		ex.RequestHeaders = req.PreparedHeaders().All()
		ex.RequestBody = req.Body()
	}
	return ex
}

// Response rebuilds the recorded response.
func (ex *Exchange) Response() (*fluent.Response, error) {
	proto := ex.Protocol
	if proto == "" {
		proto = "1.1"
	}
	statusLine := strings.TrimSpace(fmt.Sprintf("HTTP/%s %03d %s", proto, ex.Status, ex.Reason))

	lines := make([]string, len(ex.ResponseHeaders))
	for i, f := range ex.ResponseHeaders {
		lines[i] = f.Name + ": " + f.Value
	}

	resp, err := fluent.NewResponse(statusLine, lines, ex.ResponseBody)
	if err != nil {
		return nil, fmt.Errorf("journal: rebuild response %s: %w", ex.ID, err)
	}
	return resp, nil
}
