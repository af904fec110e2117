// Package h1 implements the HTTP/1.1 client engine: one request/response
// cycle per iostream.Reader/Writer pair, with keep-alive cycling governed
// by the shared timeoutflag.Flag (spec.md §4.4, §4.3).
//
// Grounded on shockwave/pkg/shockwave/http11/{parser,response,chunked,
// connection}.go, which implement the server-side mirror image of this
// state machine (parse request / write response instead of write request
// / parse response). We keep the teacher's single-pass, state-machine
// parsing style and its chunked-encoding framing rules, adapted to read
// a status line and response headers instead of a request line, and to
// write a request line and request headers instead of a response.
package h1

import (
	"github.com/yourusername/voyager/pkg/voyager/body"
	"github.com/yourusername/voyager/pkg/voyager/wireheaders"
)

// Request is the wire-level view of an outgoing HTTP/1.1 request. The
// transport package builds this from its own request model; h1 has no
// knowledge of URLs, only of the bytes that go on the wire.
type Request struct {
	// Method is the request method, e.g. "GET".
	Method string
	// Target is the request-target: the path+query for a normal request,
	// or "host:port" for a CONNECT request (spec.md §4.6).
	Target string
	// Authority is the Host header value (spec.md §3 URL.Authority()).
	Authority string
	// Header carries the other headers. Conn.SendRequest writes Host first
	// from Authority and skips any Host entry in Header.
	Header *wireheaders.Headers
	// Body is the request content stream, or nil for no body.
	Body body.ContentStream
}
