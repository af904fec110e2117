package h2

import (
	"github.com/yourusername/voyager/pkg/voyager/body"
	"github.com/yourusername/voyager/pkg/voyager/wireheaders"
)

// Request is the wire-level view of an outgoing HTTP/2 request: the
// pseudo-header fields are kept separate from regular headers since
// RFC 7540 §8.1.2.3 requires them first and HPACK-friendly (they hit
// the static table).
type Request struct {
	Method    string
	Scheme    string
	Authority string
	Path      string
	Header    *wireheaders.Headers
	Body      body.ContentStream
}

// Response is the wire-level view of an HTTP/2 response.
type Response struct {
	StatusCode int
	Header     *wireheaders.Headers
	Body       *Body
}
