package fluent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Result is the outcome of one request sent by SendAll.
type Result struct {
	Index    int
	Request  *Request
	Response *Response
	Err      error
}

type batchJob struct {
	index int
	req   *Request
}

// SendAll sends reqs on the default client's worker pool. See
// Client.SendAll.
func SendAll(ctx context.Context, reqs []*Request, workers int) []Result {
	return Default().SendAll(ctx, reqs, workers)
}

// SendAll sends reqs on a pool of workers and returns the results in input
// order. Requests not started before ctx is cancelled report ctx.Err(). A
// panicking mock handler or engine fails only its own request and is
// logged on the client's logger.
func (c *Client) SendAll(ctx context.Context, reqs []*Request, workers int) []Result {
	logger := c.Logger()

	if workers <= 0 {
		workers = 1
	}
	if workers > len(reqs) {
		workers = len(reqs)
	}

	results := make([]Result, len(reqs))
	jobs := make(chan batchJob, workers*2)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				results[j.index] = sendOne(ctx, logger, j)
			}
		}()
	}

	for i, req := range reqs {
		jobs <- batchJob{index: i, req: req}
	}
	close(jobs)
	wg.Wait()

	return results
}

func sendOne(ctx context.Context, logger *slog.Logger, j batchJob) (res Result) {
	res = Result{Index: j.index, Request: j.req}

	// Recover from panics so one bad request does not crash the pool.
	defer func() {
		if r := recover(); r != nil {
			logger.Error("send recovered from panic",
				"index", j.index,
				"request", j.req.String(),
				"panic", fmt.Sprintf("%v", r),
			)
			res.Response = nil
			res.Err = fmt.Errorf("fluent: send %s: panic: %v", j.req, r)
		}
	}()

	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	res.Response, res.Err = j.req.Send(ctx)
	if res.Err != nil {
		logger.Debug("send failed",
			"index", j.index,
			"request", j.req.String(),
			"error", res.Err,
		)
	}
	return res
}
