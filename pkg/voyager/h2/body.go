package h2

import (
	"io"

	"golang.org/x/net/http2/hpack"

	"github.com/yourusername/voyager/pkg/voyager/wireheaders"
)

// Body is the response body reader for one HTTP/2 stream. Reading a
// chunk acknowledges it to the peer (both stream- and connection-level
// WINDOW_UPDATE) only after the bytes are copied out to the caller —
// this is the resolved ack-after-yield ordering (see DESIGN.md).
type Body struct {
	conn   *Conn
	stream *Stream

	pending []byte // leftover from a chunk partially copied out
	closed  bool

	// Trailer is populated once Read returns io.EOF after a trailers
	// HEADERS frame (RFC 7540 §8.1.3).
	Trailer *wireheaders.Headers
}

func newBody(conn *Conn, stream *Stream) *Body {
	return &Body{conn: conn, stream: stream}
}

func (b *Body) Read(p []byte) (int, error) {
	if b.closed {
		return 0, io.EOF
	}

	if len(b.pending) == 0 {
		select {
		case chunk, ok := <-b.stream.data:
			if !ok {
				return b.finish()
			}
			b.pending = chunk
		case <-b.stream.done:
			if err := b.stream.Err(); err != nil {
				return 0, err
			}
			return b.finish()
		}
	}

	n := copy(p, b.pending)
	b.pending = b.pending[n:]
	b.conn.acknowledgeReceived(b.stream, n)
	return n, nil
}

func (b *Body) finish() (int, error) {
	select {
	case fields := <-b.stream.trailers:
		b.Trailer = fieldsToHeaders(fields)
	default:
	}
	b.closed = true
	return 0, io.EOF
}

func (b *Body) Close() error {
	b.closed = true
	return nil
}

func fieldsToHeaders(fields []hpack.HeaderField) *wireheaders.Headers {
	h := wireheaders.New()
	for _, f := range fields {
		if len(f.Name) > 0 && f.Name[0] == ':' {
			continue
		}
		h.Add(f.Name, f.Value)
	}
	return h
}
