package h1

import "errors"

// Parser errors, grouped by concern as in
// shockwave/pkg/shockwave/http11/errors.go.
var (
	errMalformedStatusLine = errors.New("h1: malformed status line")
	errMalformedHeader     = errors.New("h1: malformed header line")
	errHeadersTooLarge     = errors.New("h1: response headers too large")
	errUnexpectedEOF       = errors.New("h1: unexpected EOF reading response head")
	errChunkedEncoding     = errors.New("h1: chunked encoding error")
)

// MaxHeaderListSize bounds the status line + headers section, matching
// shockwave's 8KB per-section recommendation.
const MaxHeaderListSize = 8 * 1024
