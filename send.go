package fluent

import (
	"context"
	"fmt"
)

// Send dispatches the request and returns the response.
//
// The request is cloned and the clone is what mocks and the engine see; the
// clone carries no mock endpoints, so a handler that calls Send on it
// reaches the engine instead of recursing. Mocks the handler adds to the
// clone are consulted as usual. Request-level endpoints are
// tried in registration order, then the attached Dispatcher. The first
// match produces the response; without a match the engine is used. Queued
// response calls then run in order and the first error is returned.
func (r *Request) Send(ctx context.Context) (*Response, error) {
	dispatched := r.clone()
	dispatched.endpoints = nil
	dispatched.dispatcher = nil
	dispatched.responseCalls = nil
	dispatched.bypassMocks = false

	resp, matched, err := r.dispatchMock(dispatched)
	if err != nil {
		return nil, err
	}
	if !matched {
		resp, err = dispatched.resolveEngine().Send(ctx, dispatched)
		if err != nil {
			return nil, err
		}
		if resp == nil {
			return nil, fmt.Errorf("fluent: engine returned no response for %s", dispatched)
		}
		if resp.request == nil {
			resp = resp.withRequest(dispatched)
		}
	}

	for _, call := range r.responseCalls {
		resp, err = call(resp)
		if err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// Passthru sends the request through the engine, skipping every mock. Mock
// handlers use it to forward to the live endpoint.
func (r *Request) Passthru(ctx context.Context) (*Response, error) {
	c := r.clone()
	c.bypassMocks = true
	return c.Send(ctx)
}

func (r *Request) resolveEngine() Engine {
	if r.engine != nil {
		return r.engine
	}
	return DefaultEngine()
}

// dispatchMock runs the first matching mock endpoint against dispatched.
func (r *Request) dispatchMock(dispatched *Request) (*Response, bool, error) {
	if r.bypassMocks {
		return nil, false, nil
	}

	ep := firstMatch(r.endpoints, dispatched)
	if ep == nil && r.dispatcher != nil {
		ep = r.dispatcher.Match(dispatched)
	}
	if ep == nil {
		return nil, false, nil
	}

	r.log().Debug("mock endpoint matched",
		"endpoint", ep.String(),
		"method", dispatched.method,
		"url", dispatched.URL(),
	)

	resp, err := ep.Handle(dispatched)
	if err != nil {
		return nil, true, err
	}
	return resp, true, nil
}

func firstMatch(endpoints []*MockEndpoint, req *Request) *MockEndpoint {
	for _, ep := range endpoints {
		if ep.Handles(req) {
			return ep
		}
	}
	return nil
}
