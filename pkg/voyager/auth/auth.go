// Package auth implements spec.md §4.9's auth layer: an auth object
// produces a Flow, a coroutine-shaped contract ("yields requests and
// consumes responses") that a Driver pumps until the flow signals Done.
//
// Grounded on original_source/httpcore/auth.py for the static Basic case
// and the overall call-shape (__call__(request) -> request becomes
// Start(request) -> request, generalized into a multi-step Resume loop so
// challenge-response schemes fit the same contract spec.md §4.9 describes
// in pseudocode).
package auth

import (
	"context"
	"errors"

	"github.com/yourusername/voyager/pkg/voyager/body"
	"github.com/yourusername/voyager/pkg/voyager/transport"
)

// Done is returned by Flow.Resume to signal the flow has no further
// request to send; the response just consumed is the final answer
// (spec.md §4.9's "catch StopIteration { return response }").
var Done = errors.New("auth: flow complete")

// Flow is one auth scheme's coroutine: Start turns the caller's initial
// request into the first request actually sent; Resume consumes each
// response and either produces the next request to send or returns Done.
type Flow interface {
	// RequiresRequestBody reports whether this flow needs the request
	// body buffered and replayable before Start runs (e.g. digest-style
	// schemes that hash the body). Basic, Function, OAuth2, and JWTBearer
	// never need this since they only ever touch headers.
	RequiresRequestBody() bool
	// RequiresResponseBody reports whether this flow needs each response
	// body fully buffered before Resume runs, so Resume can inspect
	// content (e.g. a WWW-Authenticate challenge carried in the body).
	RequiresResponseBody() bool
	Start(req *transport.Request) (*transport.Request, error)
	Resume(resp *transport.Response) (*transport.Request, error)
}

// Sender is the single-request send a Driver pumps a Flow over, satisfied
// by *transport.ConnectionPool. A *redirect.Follower, whose Send also takes
// allowRedirects, needs an adapter (the client package's followerSender).
type Sender interface {
	Send(ctx context.Context, req *transport.Request) (*transport.Response, error)
}

// Driver drives a Flow over a Sender per spec.md §4.9's pseudocode.
type Driver struct {
	Sender Sender
}

// NewDriver builds a Driver over sender.
func NewDriver(sender Sender) *Driver {
	return &Driver{Sender: sender}
}

// Send runs req through flow to completion.
func (d *Driver) Send(ctx context.Context, req *transport.Request, flow Flow) (*transport.Response, error) {
	if flow.RequiresRequestBody() {
		buffered, err := ensureReplayableBody(req)
		if err != nil {
			return nil, err
		}
		req = buffered
	}

	next, err := flow.Start(req)
	if err != nil {
		return nil, err
	}

	for {
		resp, err := d.Sender.Send(ctx, next)
		if err != nil {
			return nil, err
		}

		if flow.RequiresResponseBody() {
			resp, err = ensureBufferedResponseBody(resp)
			if err != nil {
				return nil, err
			}
		}

		next, err = flow.Resume(resp)
		if err != nil {
			if errors.Is(err, Done) {
				return resp, nil
			}
			return nil, err
		}
	}
}

// ensureReplayableBody force-reads a non-replayable request body into
// memory so a digest-style flow can inspect and replay it (spec.md §4.9's
// requires_request_body contract bit).
func ensureReplayableBody(req *transport.Request) (*transport.Request, error) {
	b := req.Body()
	if b == nil || b.CanReplay() {
		return req, nil
	}
	data, err := body.Drain(b)
	if err != nil {
		return nil, err
	}
	return req.WithBody(body.FromBytes(data)), nil
}

// ensureBufferedResponseBody force-reads a response body into memory and
// replaces it with a fresh, re-readable reader, so a flow can inspect the
// body in Resume without starving the caller's eventual read of it
// (spec.md §4.9's requires_response_body contract bit).
func ensureBufferedResponseBody(resp *transport.Response) (*transport.Response, error) {
	data, err := body.DrainReader(resp.Body)
	if err != nil {
		return nil, err
	}
	resp.Body = body.NopCloser(data)
	return resp, nil
}
