// Package fluent is an immutable, chainable HTTP client.
//
// A Request is built by chaining With*/Add* calls, each returning a new
// value. Send dispatches it through an Engine, or through the first mock
// endpoint whose method and URL patterns match, and returns a Response with
// decoding, status-class dispatch and assertion helpers.
//
//	req, err := fluent.Get("https://api.example.com/users/42")
//	if err != nil {
//		return err
//	}
//	resp, err := req.WithHeader("Accept", "application/json").
//		Ensure2xx().
//		Send(ctx)
//
// Mocks are registered per request with WithMockedEndpoint, on a Client
// with Client.Mock, or process-wide with RegisterMock. Request-level mocks
// are tried first.
package fluent

// Version is the library version reported in the default User-Agent.
const Version = "1.0.0"
