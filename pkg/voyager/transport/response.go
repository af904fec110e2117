package transport

import (
	"io"
	"sync"

	"github.com/yourusername/voyager/pkg/voyager/httperror"
	"github.com/yourusername/voyager/pkg/voyager/wireheaders"
)

// Response is spec.md §3's Response: status, optional reason, an HTTP
// version tag, headers, a content stream, a back-pointer to the
// originating request, and the history of prior responses walked through
// during redirects.
type Response struct {
	StatusCode int
	Reason     string
	Proto      string // "HTTP/1.1" or "HTTP/2"
	Header     *wireheaders.Headers
	Body       io.ReadCloser
	Request    *Request
	History    []*Response

	closed         bool
	streamConsumed bool
	mu             sync.Mutex

	// release returns the owning Connection to the pool (or tears it
	// down); invoked at most once via releaseOnce (spec.md §9 Design
	// Notes: the weak-handle break of the response→pool→connection cycle
	// — release captures a func, never the pool itself).
	release     func() error
	releaseOnce sync.Once
}

// SetRelease installs the callback invoked exactly once when this Response
// is closed, releasing (or tearing down) its owning connection. Used by
// transports outside this package, such as proxy.Transport, that hand back
// a Response over a connection they manage themselves instead of this
// package's ConnectionPool.
func (r *Response) SetRelease(release func() error) {
	r.release = release
}

// HasBufferedContent reports whether the body has never been read (and so
// can still be read), mirroring spec.md §3's derived
// has_buffered_content bit.
func (r *Response) HasBufferedContent() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.streamConsumed && !r.closed
}

// IsClosed reports whether Close has been called.
func (r *Response) IsClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Read implements io.Reader over the body, enforcing spec.md §3's
// "reading raw bytes twice fails" and "reading after close fails".
func (r *Response) Read(p []byte) (int, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return 0, &httperror.StreamError{Kind: httperror.StreamClosed, Request: r.Request}
	}
	r.streamConsumed = true
	r.mu.Unlock()

	n, err := r.Body.Read(p)
	if err == io.EOF {
		r.Close()
	}
	return n, err
}

// Close closes the body and releases the owning connection back to the
// pool exactly once, regardless of how many times Close is called
// (spec.md §3 Connection invariant: a response's body and its owning
// connection share a lifetime).
func (r *Response) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	var bodyErr error
	if r.Body != nil {
		bodyErr = r.Body.Close()
	}
	var releaseErr error
	r.releaseOnce.Do(func() {
		if r.release != nil {
			releaseErr = r.release()
		}
	})
	if bodyErr != nil {
		return bodyErr
	}
	return releaseErr
}

// RaiseForStatus returns a *httperror.StatusError if StatusCode is a 4xx
// or 5xx, nil otherwise (original_source/httpx/models.py's
// raise_for_status, supplemented per spec.md §7).
func (r *Response) RaiseForStatus() error {
	if r.StatusCode >= 400 && r.StatusCode < 600 {
		return &httperror.StatusError{Request: r.Request, StatusCode: r.StatusCode}
	}
	return nil
}
