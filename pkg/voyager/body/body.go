// Package body implements the content-stream contract shared by requests
// and responses (spec.md §3 "Content stream (invariant)", §9 Design
// Notes). A ContentStream is either Replayable (buffered bytes or a
// seekable file) or OneShot (a single-use byte iterator); both expose the
// same Read/Close surface plus CanReplay and AuxHeaders.
//
// Grounded on shockwave/pkg/shockwave/buffer_pool.go for the pooled-buffer
// idiom; the fixed size-class pools there are replaced with a single
// bytebufferpool.Pool since request bodies here are arbitrary-sized values
// supplied by the caller, not fixed-size protocol buffers.
package body

import (
	"bytes"
	"io"
	"os"
	"strconv"

	"github.com/valyala/bytebufferpool"

	"github.com/yourusername/voyager/pkg/voyager/wireheaders"
)

var pool bytebufferpool.Pool

// ContentStream is the sum type every request/response body is reduced to
// before it reaches the protocol engines.
type ContentStream interface {
	io.ReadCloser
	// CanReplay reports whether Reset followed by a fresh Read sequence
	// reproduces identical bytes. Required to follow a 307/308 redirect
	// that preserves the body (spec.md §4.8).
	CanReplay() bool
	// Reset rewinds a replayable stream for re-send. Panics if !CanReplay().
	Reset() error
	// AuxHeaders returns the framing headers this stream implies
	// (Content-Length or Transfer-Encoding).
	AuxHeaders() *wireheaders.Headers
}

// bufferStream is the Replayable case, backed by a pooled byte buffer.
type bufferStream struct {
	buf    *bytebufferpool.ByteBuffer
	off    int
	pooled bool
}

// FromBytes builds a replayable ContentStream from an in-memory buffer.
func FromBytes(b []byte) ContentStream {
	buf := pool.Get()
	buf.Write(b)
	return &bufferStream{buf: buf, pooled: true}
}

// Empty returns a replayable, zero-length ContentStream.
func Empty() ContentStream {
	return &bufferStream{buf: pool.Get(), pooled: true}
}

func (s *bufferStream) Read(p []byte) (int, error) {
	if s.off >= s.buf.Len() {
		return 0, io.EOF
	}
	n := copy(p, s.buf.B[s.off:])
	s.off += n
	return n, nil
}

func (s *bufferStream) Close() error {
	if s.pooled && s.buf != nil {
		pool.Put(s.buf)
		s.buf = nil
		s.pooled = false
	}
	return nil
}

func (s *bufferStream) CanReplay() bool { return true }

func (s *bufferStream) Reset() error {
	s.off = 0
	return nil
}

func (s *bufferStream) AuxHeaders() *wireheaders.Headers {
	h := wireheaders.New()
	h.Set("Content-Length", strconv.Itoa(s.buf.Len()))
	return h
}

// fileStream is the Replayable case backed by a seekable *os.File.
type fileStream struct {
	f    *os.File
	size int64
}

// FromFile builds a replayable ContentStream from a seekable file. The
// caller retains ownership of closing f through the returned stream's
// Close.
func FromFile(f *os.File) (ContentStream, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return &fileStream{f: f, size: info.Size()}, nil
}

func (s *fileStream) Read(p []byte) (int, error) { return s.f.Read(p) }
func (s *fileStream) Close() error                { return s.f.Close() }
func (s *fileStream) CanReplay() bool             { return true }

func (s *fileStream) Reset() error {
	_, err := s.f.Seek(0, io.SeekStart)
	return err
}

func (s *fileStream) AuxHeaders() *wireheaders.Headers {
	h := wireheaders.New()
	h.Set("Content-Length", strconv.FormatInt(s.size, 10))
	return h
}

// oneShotStream is the non-replayable case: a single-use io.Reader, used
// for user-supplied streaming uploads with unknown length.
type oneShotStream struct {
	r         io.Reader
	closer    io.Closer
	consumed  bool
	knownSize int64 // -1 if unknown
}

// FromReader builds a one-shot ContentStream over r. size is the known
// Content-Length, or -1 if unknown (in which case Transfer-Encoding:
// chunked is implied).
func FromReader(r io.Reader, size int64) ContentStream {
	closer, _ := r.(io.Closer)
	return &oneShotStream{r: r, closer: closer, knownSize: size}
}

func (s *oneShotStream) Read(p []byte) (int, error) {
	s.consumed = true
	return s.r.Read(p)
}

func (s *oneShotStream) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

func (s *oneShotStream) CanReplay() bool { return false }

func (s *oneShotStream) Reset() error {
	panic("body: Reset called on a non-replayable stream")
}

func (s *oneShotStream) AuxHeaders() *wireheaders.Headers {
	h := wireheaders.New()
	if s.knownSize >= 0 {
		h.Set("Content-Length", strconv.FormatInt(s.knownSize, 10))
	} else {
		h.Set("Transfer-Encoding", "chunked")
	}
	return h
}

// Consumed reports whether Read has been called at least once on a
// one-shot stream (used by the redirect layer's RequestBodyUnavailable
// check before Reset would panic).
func Consumed(s ContentStream) bool {
	if one, ok := s.(*oneShotStream); ok {
		return one.consumed
	}
	return false
}

// Drain reads s to completion and closes it, used by the auth layer's
// requires_request_body contract bit to force-buffer a stream a
// challenge-response flow needs to inspect and replay (spec.md §4.9).
func Drain(s ContentStream) ([]byte, error) {
	defer s.Close()
	return io.ReadAll(s)
}

// DrainReader reads r to completion, closing it if it is an io.Closer,
// used by the auth layer's requires_response_body contract bit.
func DrainReader(r io.Reader) ([]byte, error) {
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}
	return io.ReadAll(r)
}

// nopReadCloser adapts a fixed byte slice back into an io.ReadCloser. It
// reads the bytes once; after EOF it does not rewind.
type nopReadCloser struct {
	r io.Reader
}

func (n *nopReadCloser) Read(p []byte) (int, error) { return n.r.Read(p) }
func (n *nopReadCloser) Close() error               { return nil }

// NopCloser wraps data as a one-shot io.ReadCloser over its bytes, used to
// hand a force-buffered response body back to its caller.
func NopCloser(data []byte) io.ReadCloser {
	return &nopReadCloser{bytes.NewReader(data)}
}
