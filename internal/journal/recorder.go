package journal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/0x6d61/fluent"
	"github.com/0x6d61/fluent/route"
)

// Recorder saves exchanges into a Store.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

// NewRecorder creates a recorder. A nil logger means slog.Default().
func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger}
}

// Record saves resp and returns the stored exchange.
func (r *Recorder) Record(ctx context.Context, resp *fluent.Response) (*Exchange, error) {
	return r.save(ctx, FromResponse(resp))
}

func (r *Recorder) save(ctx context.Context, ex *Exchange) (*Exchange, error) {
	if err := r.store.Save(ctx, ex); err != nil {
		return nil, err
	}
	r.logger.Debug("exchange recorded",
		"id", ex.ID,
		"method", ex.Method,
		"url", ex.URL,
		"status", ex.Status,
	)
	return ex, nil
}

// Wrap returns an engine that records every exchange next completes. A
// failed save is logged and does not fail the request.
func (r *Recorder) Wrap(next fluent.Engine) fluent.Engine {
	return fluent.EngineFunc(func(ctx context.Context, req *fluent.Request) (*fluent.Response, error) {
		resp, err := next.Send(ctx, req)
		if err != nil {
			return nil, err
		}
		if _, err := r.save(ctx, newExchange(req, resp)); err != nil {
			r.logger.Warn("recording exchange failed", "url", req.URL(), "error", err)
		}
		return resp, nil
	})
}

// Replay registers the newest limit exchanges on d as mock endpoints
// matching their exact method and URL. Newer exchanges are registered
// first and so win over older ones for the same URL. It returns the number
// of endpoints registered.
func Replay(ctx context.Context, store Store, d *fluent.Dispatcher, limit int) (int, error) {
	summaries, err := store.List(ctx, limit)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, sum := range summaries {
		ex, err := store.LoadByID(ctx, sum.ID)
		if err != nil {
			return n, err
		}
		if ex == nil || ex.Method == "" || ex.URL == "" {
			continue
		}
		resp, err := ex.Response()
		if err != nil {
			return n, err
		}

		ep, err := fluent.NewMockEndpoint(ex.Method, ex.URL, func(*fluent.Request, route.Params) (*fluent.Response, error) {
			return resp, nil
		})
		if err != nil {
			return n, fmt.Errorf("journal: replay %s: %w", ex.ID, err)
		}
		d.Add(ep)
		n++
	}
	return n, nil
}
