package h2

import (
	"fmt"
	"sync"

	"golang.org/x/net/http2/hpack"
)

// StreamState is the client-side half of RFC 7540 §5.1's state machine.
// A client stream never sees "reserved" (that's push-only, and push is
// always disabled here) so only four states are reachable.
type StreamState int

const (
	StreamIdle StreamState = iota
	StreamOpen
	StreamHalfClosedLocal
	StreamClosed
)

// Stream is one client-initiated HTTP/2 stream (spec.md §4.5). The
// connection's read loop demultiplexes frames into it; the caller
// consumes response headers/body through the channels below.
//
// Grounded on shockwave/pkg/shockwave/http2/stream.go's per-stream state
// and window fields, restructured around channels instead of the
// teacher's server-side blocking-read-on-request model, since here one
// connection's read loop serves many concurrently-open streams rather
// than one goroutine owning one stream's lifetime.
type Stream struct {
	id uint32

	sendWindow *window
	recvWindow *window

	headers  chan []hpack.HeaderField
	data     chan []byte
	trailers chan []hpack.HeaderField
	done     chan struct{}

	mu    sync.Mutex
	state StreamState
	err   error

	headerBlock []byte // accumulates HEADERS/CONTINUATION fragments
	inTrailers  bool
}

func newStream(id uint32, initialSendWindow, initialRecvWindow int32) *Stream {
	return &Stream{
		id:         id,
		sendWindow: newWindow(initialSendWindow),
		recvWindow: newWindow(initialRecvWindow),
		headers:    make(chan []hpack.HeaderField, 1),
		data:       make(chan []byte, 8),
		trailers:   make(chan []hpack.HeaderField, 1),
		done:       make(chan struct{}),
		state:      StreamOpen,
	}
}

// State returns the current stream state.
func (s *Stream) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// closeWithError marks the stream terminated (RST_STREAM, GOAWAY, or a
// connection-level I/O failure) and wakes any blocked reader.
func (s *Stream) closeWithError(err error) {
	s.mu.Lock()
	if s.state == StreamClosed {
		s.mu.Unlock()
		return
	}
	s.state = StreamClosed
	s.err = err
	s.mu.Unlock()
	close(s.done)
}

func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// appendHeaderFragment accumulates a HEADERS/CONTINUATION block fragment
// until END_HEADERS.
func (s *Stream) appendHeaderFragment(fragment []byte) {
	s.headerBlock = append(s.headerBlock, fragment...)
}

// ErrStreamReset is returned from body reads when the peer sends
// RST_STREAM before the stream half-closes normally.
var ErrStreamReset = fmt.Errorf("h2: stream reset by peer")
