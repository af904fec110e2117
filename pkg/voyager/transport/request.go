// Package transport implements the connection-pooled, single-request
// send/receive core of spec.md §4.6–§4.7: a Connection lazy-connects,
// negotiates HTTP/1.1 or HTTP/2 via ALPN, and drives exactly one of the
// two protocol engines; a ConnectionPool maps origin to a bounded set of
// such connections, reusing keep-alive entries across requests.
//
// Grounded on shockwave/pkg/shockwave/client/{pool,client}.go, inverted
// from the teacher's benchmarking-harness role (a thin pool used to
// compare shockwave's client throughput against other libraries) into
// the library's actual request-execution core.
package transport

import (
	"time"

	"github.com/yourusername/voyager/pkg/voyager/body"
	"github.com/yourusername/voyager/pkg/voyager/url"
	"github.com/yourusername/voyager/pkg/voyager/wireheaders"
)

// Timeouts bundles the four dimensions of spec.md §6's TimeoutConfig,
// attached to a Request as its "extension map (timeouts)" (spec.md §3).
// client.Client.Send replaces a zero field with the 5s default; -1 means
// "no timeout" (Go's zero time.Duration can't distinguish the two, spec.md
// §6). A request handed straight to a ConnectionPool gets no such default.
type Timeouts struct {
	Connect time.Duration
	Read    time.Duration
	Write   time.Duration
	Pool    time.Duration
}

// Request is the immutable descriptor spec.md §3 describes: method, URL,
// headers, and a content stream. Unexported fields plus accessors keep it
// immutable from outside the package and let it satisfy httperror.Request
// (Method/URLString) without a field/method name collision.
type Request struct {
	method   string
	url      *url.URL
	header   *wireheaders.Headers
	body     body.ContentStream
	timeouts Timeouts
}

// NewRequest builds a Request. header may be nil, in which case an empty
// Headers is used; body may be nil for a bodyless request.
func NewRequest(method string, u *url.URL, header *wireheaders.Headers, b body.ContentStream) *Request {
	if header == nil {
		header = wireheaders.New()
	}
	return &Request{method: method, url: u, header: header, body: b}
}

func (r *Request) Method() string               { return r.method }
func (r *Request) URL() *url.URL                { return r.url }
func (r *Request) URLString() string            { return r.url.String() }
func (r *Request) Header() *wireheaders.Headers { return r.header }
func (r *Request) Body() body.ContentStream     { return r.body }
func (r *Request) Timeouts() Timeouts           { return r.timeouts }

func (r *Request) WithTimeouts(t Timeouts) *Request {
	clone := *r
	clone.timeouts = t
	return &clone
}

// WithURL returns a copy of r targeting a different URL, used by the
// redirect layer to compute the next request without mutating the
// original (spec.md §4.8).
func (r *Request) WithURL(u *url.URL) *Request {
	clone := *r
	clone.url = u
	return &clone
}

// WithMethod returns a copy of r with a different method.
func (r *Request) WithMethod(method string) *Request {
	clone := *r
	clone.method = method
	return &clone
}

// WithHeader returns a copy of r with a different header set.
func (r *Request) WithHeader(h *wireheaders.Headers) *Request {
	clone := *r
	clone.header = h
	return &clone
}

// WithBody returns a copy of r with a different content stream.
func (r *Request) WithBody(b body.ContentStream) *Request {
	clone := *r
	clone.body = b
	return &clone
}
