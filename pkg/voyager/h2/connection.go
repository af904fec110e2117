package h2

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2/hpack"

	"github.com/yourusername/voyager/pkg/voyager/body"
	"github.com/yourusername/voyager/pkg/voyager/wireheaders"
)

// Settings the client advertises on every connection (spec.md §4.5):
// push disabled, a conservative concurrent-stream cap, and a 64 KiB
// header list size. ENABLE_CONNECT_PROTOCOL is
// never sent — spec.md's Non-goals exclude WebSocket-over-HTTP/2.
var clientSettings = []Setting{
	{ID: SettingEnablePush, Value: 0},
	{ID: SettingMaxConcurrentStreams, Value: 100},
	{ID: SettingInitialWindowSize, Value: DefaultWindowSize},
	{ID: SettingMaxHeaderListSize, Value: 65536},
}

// Conn is one client-side HTTP/2 connection: a single physical socket
// multiplexing many concurrently-open Streams (spec.md §4.5).
//
// Grounded on shockwave/pkg/shockwave/http2/connection.go's frame
// dispatch loop, inverted from "accept streams from a peer client" to
// "open streams against a peer server", and stripped of the teacher's
// PriorityTree/rate limiter (no client-side analogue). Unlike h1.Conn,
// this does not use timeoutflag.Flag: one read loop serves many
// concurrently in-flight streams, each potentially at a different phase
// (sending, awaiting headers, reading body) at once, so per-request
// timeouts are enforced by the caller racing stream.done/stream.data
// against its own timer rather than by a single shared write/read mode.
type Conn struct {
	w  io.Writer
	wMu sync.Mutex

	enc *headerCodec
	dec *headerCodec

	connSendWindow *window
	connRecvWindow *window

	nextStreamID atomic.Uint32

	mu      sync.Mutex
	streams map[uint32]*Stream
	goAway  error

	log *logrus.Entry

	initialWindowSize int32
}

// NewConn performs the client preface and initial SETTINGS exchange,
// then starts the background read loop. rw must already be connected
// (and, for TLS, ALPN-negotiated to "h2") before calling NewConn.
func NewConn(rw io.ReadWriter, log *logrus.Entry) (*Conn, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	c := &Conn{
		w:                 rw,
		enc:               newHeaderCodec(4096),
		dec:               newHeaderCodec(4096),
		connSendWindow:    newWindow(DefaultWindowSize),
		connRecvWindow:    newWindow(DefaultWindowSize),
		streams:           make(map[uint32]*Stream),
		log:               log,
		initialWindowSize: DefaultWindowSize,
	}
	c.nextStreamID.Store(1)

	if _, err := io.WriteString(rw, ClientPreface); err != nil {
		return nil, fmt.Errorf("h2: writing client preface: %w", err)
	}
	if err := WriteFrame(rw, FrameSettings, 0, 0, EncodeSettings(clientSettings)); err != nil {
		return nil, fmt.Errorf("h2: writing initial SETTINGS: %w", err)
	}

	br := bufio.NewReaderSize(rw, 16*1024)
	go c.readLoop(br)

	return c, nil
}

// OpenStream sends a new request as HEADERS (+ CONTINUATION if the
// compressed block exceeds one frame) and DATA frames, and returns a
// Response whose Body streams as frames arrive. ctx bounds only the
// request-send and response-headers phases; once Response.Body is
// handed back, the caller drives its own read timeouts (see the
// Conn doc comment for why h2 has no shared timeoutflag.Flag).
func (c *Conn) OpenStream(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.goAway != nil {
		c.mu.Unlock()
		return nil, c.goAway
	}
	id := c.nextStreamID.Add(2) - 2
	stream := newStream(id, c.initialWindowSize, DefaultWindowSize)
	c.streams[id] = stream
	c.mu.Unlock()

	fields := []hpack.HeaderField{
		{Name: ":method", Value: req.Method},
		{Name: ":scheme", Value: req.Scheme},
		{Name: ":authority", Value: req.Authority},
		{Name: ":path", Value: req.Path},
	}
	req.Header.Range(func(name, value string) bool {
		fields = append(fields, hpack.HeaderField{Name: name, Value: value})
		return true
	})

	hasBody := req.Body != nil
	block := c.enc.Encode(fields)
	if err := c.writeHeaderBlock(id, block, !hasBody); err != nil {
		stream.closeWithError(err)
		return nil, err
	}

	if hasBody {
		if err := c.sendBody(stream, req.Body); err != nil {
			stream.closeWithError(err)
			return nil, err
		}
	}

	select {
	case fields := <-stream.headers:
		status := 0
		header := wireheaders.New()
		for _, f := range fields {
			if f.Name == ":status" {
				fmt.Sscanf(f.Value, "%d", &status)
				continue
			}
			header.Add(f.Name, f.Value)
		}
		return &Response{StatusCode: status, Header: header, Body: newBody(c, stream)}, nil
	case <-stream.done:
		if err := stream.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("h2: stream closed before response headers arrived")
	case <-ctx.Done():
		stream.closeWithError(ctx.Err())
		c.wMu.Lock()
		_ = WriteFrame(c.w, FrameRSTStream, 0, id, EncodeRSTStream(ErrCodeCancel))
		c.wMu.Unlock()
		return nil, ctx.Err()
	}
}

// writeHeaderBlock writes block as one HEADERS frame, splitting into
// CONTINUATION frames when it exceeds MaxFrameSize (RFC 7540 §6.2).
func (c *Conn) writeHeaderBlock(id uint32, block []byte, endStream bool) error {
	c.wMu.Lock()
	defer c.wMu.Unlock()

	first := block
	rest := []byte(nil)
	if len(first) > MaxFrameSize {
		first, rest = block[:MaxFrameSize], block[MaxFrameSize:]
	}

	flags := Flags(0)
	if endStream {
		flags |= FlagEndStream
	}
	if len(rest) == 0 {
		flags |= FlagEndHeaders
	}
	if err := WriteFrame(c.w, FrameHeaders, flags, id, first); err != nil {
		return err
	}

	for len(rest) > 0 {
		chunk := rest
		last := true
		if len(chunk) > MaxFrameSize {
			chunk, rest = rest[:MaxFrameSize], rest[MaxFrameSize:]
			last = false
		} else {
			rest = nil
		}
		cflags := Flags(0)
		if last {
			cflags |= FlagEndHeaders
		}
		if err := WriteFrame(c.w, FrameContinuation, cflags, id, chunk); err != nil {
			return err
		}
	}
	return nil
}

// sendBody writes req's content stream as DATA frames, respecting both
// the connection and stream send windows (spec.md §4.5 flow control).
func (c *Conn) sendBody(stream *Stream, b body.ContentStream) error {
	buf := make([]byte, 16*1024)
	for {
		n, rerr := b.Read(buf)
		for n > 0 {
			grant, err := c.awaitSendWindow(stream, int32(n))
			if err != nil {
				return err
			}
			c.wMu.Lock()
			werr := WriteFrame(c.w, FrameData, 0, stream.id, buf[:grant])
			c.wMu.Unlock()
			if werr != nil {
				return werr
			}
			n -= int(grant)
			copy(buf, buf[grant:grant+int32(n)])
		}
		if rerr == io.EOF {
			c.wMu.Lock()
			err := WriteFrame(c.w, FrameData, FlagEndStream, stream.id, nil)
			c.wMu.Unlock()
			return err
		}
		if rerr != nil {
			return rerr
		}
	}
}

// awaitSendWindow blocks until at least part of want bytes may be sent,
// returning how many bytes were actually granted (may be less than
// want, if the window is smaller).
func (c *Conn) awaitSendWindow(stream *Stream, want int32) (int32, error) {
	for {
		select {
		case <-stream.done:
			if err := stream.Err(); err != nil {
				return 0, err
			}
			return 0, fmt.Errorf("h2: stream closed while awaiting flow-control window")
		default:
		}

		avail := c.connSendWindow.Available()
		if sAvail := stream.sendWindow.Available(); sAvail < avail {
			avail = sAvail
		}
		if avail > 0 {
			grant := want
			if grant > avail {
				grant = avail
			}
			if grant > MaxFrameSize {
				grant = MaxFrameSize
			}
			c.connSendWindow.Consume(grant)
			stream.sendWindow.Consume(grant)
			return grant, nil
		}
		// Window exhausted: wait for a WINDOW_UPDATE. A short sleep
		// stands in for a condition variable here, since window grants
		// arrive asynchronously off the read loop.
		time.Sleep(time.Millisecond)
	}
}

// acknowledgeReceived sends WINDOW_UPDATE frames crediting n bytes back
// to both the stream and connection receive windows, called only after
// the consumer has actually read the bytes (ack-after-yield ordering,
// see DESIGN.md Open Question decisions).
func (c *Conn) acknowledgeReceived(stream *Stream, n int) {
	if n <= 0 {
		return
	}
	c.wMu.Lock()
	defer c.wMu.Unlock()
	WriteFrame(c.w, FrameWindowUpdate, 0, stream.id, EncodeWindowUpdate(uint32(n)))
	WriteFrame(c.w, FrameWindowUpdate, 0, 0, EncodeWindowUpdate(uint32(n)))
}

// readLoop demultiplexes incoming frames into per-stream channels until
// the connection closes or a fatal protocol error occurs.
func (c *Conn) readLoop(r io.Reader) {
	for {
		frame, err := ReadFrame(r)
		if err != nil {
			c.shutdown(err)
			return
		}
		if err := c.dispatch(frame); err != nil {
			c.shutdown(err)
			return
		}
	}
}

func (c *Conn) dispatch(frame Frame) error {
	switch frame.Header.Type {
	case FrameHeaders:
		return c.handleHeaders(frame)
	case FrameContinuation:
		return c.handleContinuation(frame)
	case FrameData:
		return c.handleData(frame)
	case FrameWindowUpdate:
		return c.handleWindowUpdate(frame)
	case FrameRSTStream:
		return c.handleRSTStream(frame)
	case FrameSettings:
		return c.handleSettings(frame)
	case FramePing:
		return c.handlePing(frame)
	case FrameGoAway:
		return c.handleGoAway(frame)
	default:
		// Unknown or PRIORITY/PUSH_PROMISE frames are ignored per RFC
		// 7540 §4.1 (unknown types must be ignored; push is disabled so
		// PUSH_PROMISE should never arrive, but tolerate it rather than
		// tearing down the connection).
		return nil
	}
}

func (c *Conn) streamFor(id uint32) *Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streams[id]
}

func (c *Conn) handleHeaders(frame Frame) error {
	stream := c.streamFor(frame.Header.StreamID)
	if stream == nil {
		return nil
	}
	block, err := headerBlockFragment(frame.Header.Flags, frame.Payload)
	if err != nil {
		return err
	}
	stream.appendHeaderFragment(block)

	if frame.Header.Flags.Has(FlagEndHeaders) {
		if err := c.deliverHeaderBlock(stream); err != nil {
			return err
		}
	}
	if frame.Header.Flags.Has(FlagEndStream) {
		c.endStream(stream)
	}
	return nil
}

func (c *Conn) handleContinuation(frame Frame) error {
	stream := c.streamFor(frame.Header.StreamID)
	if stream == nil {
		return nil
	}
	stream.appendHeaderFragment(frame.Payload)
	if frame.Header.Flags.Has(FlagEndHeaders) {
		return c.deliverHeaderBlock(stream)
	}
	return nil
}

func (c *Conn) deliverHeaderBlock(stream *Stream) error {
	fields, err := c.dec.Decode(stream.headerBlock)
	stream.headerBlock = nil
	if err != nil {
		return err
	}
	if stream.inTrailers {
		select {
		case stream.trailers <- fields:
		default:
		}
		return nil
	}
	stream.inTrailers = true
	select {
	case stream.headers <- fields:
	default:
	}
	return nil
}

func (c *Conn) handleData(frame Frame) error {
	stream := c.streamFor(frame.Header.StreamID)
	payload, err := stripPadding(frame.Header.Flags, frame.Payload)
	if err != nil {
		return err
	}
	if stream != nil && len(payload) > 0 {
		select {
		case stream.data <- payload:
		case <-stream.done:
		}
	}
	if frame.Header.Flags.Has(FlagEndStream) {
		if stream != nil {
			c.endStream(stream)
		}
	}
	return nil
}

func (c *Conn) endStream(stream *Stream) {
	close(stream.data)
}

func (c *Conn) handleWindowUpdate(frame Frame) error {
	inc, err := DecodeWindowUpdate(frame.Payload)
	if err != nil {
		return err
	}
	if frame.Header.StreamID == 0 {
		return c.connSendWindow.Increment(int32(inc))
	}
	if stream := c.streamFor(frame.Header.StreamID); stream != nil {
		return stream.sendWindow.Increment(int32(inc))
	}
	return nil
}

func (c *Conn) handleRSTStream(frame Frame) error {
	if stream := c.streamFor(frame.Header.StreamID); stream != nil {
		stream.closeWithError(ErrStreamReset)
	}
	return nil
}

func (c *Conn) handleSettings(frame Frame) error {
	if frame.Header.Flags.Has(FlagAck) {
		return nil
	}
	settings, err := DecodeSettings(frame.Payload)
	if err != nil {
		return err
	}
	for _, s := range settings {
		switch s.ID {
		case SettingHeaderTableSize:
			c.enc.SetPeerMaxDynamicTableSize(s.Value)
		case SettingInitialWindowSize:
			c.mu.Lock()
			c.initialWindowSize = int32(s.Value)
			c.mu.Unlock()
		}
	}
	c.wMu.Lock()
	err = WriteFrame(c.w, FrameSettings, FlagAck, 0, nil)
	c.wMu.Unlock()
	return err
}

func (c *Conn) handlePing(frame Frame) error {
	if frame.Header.Flags.Has(FlagAck) {
		return nil
	}
	c.wMu.Lock()
	defer c.wMu.Unlock()
	return WriteFrame(c.w, FramePing, FlagAck, 0, frame.Payload)
}

func (c *Conn) handleGoAway(frame Frame) error {
	_, code, _, err := DecodeGoAway(frame.Payload)
	if err != nil {
		return err
	}
	c.shutdown(fmt.Errorf("h2: received GOAWAY (code %d)", code))
	return nil
}

func (c *Conn) shutdown(err error) {
	c.mu.Lock()
	if c.goAway == nil {
		c.goAway = err
	}
	streams := make([]*Stream, 0, len(c.streams))
	for _, s := range c.streams {
		streams = append(streams, s)
	}
	c.mu.Unlock()
	for _, s := range streams {
		s.closeWithError(err)
	}
}

// Close sends GOAWAY and tears down the connection's streams.
func (c *Conn) Close() error {
	c.wMu.Lock()
	_ = WriteFrame(c.w, FrameGoAway, 0, 0, encodeGoAway(0, ErrCodeNo))
	c.wMu.Unlock()
	c.shutdown(fmt.Errorf("h2: connection closed locally"))
	if closer, ok := c.w.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// encodeGoAway builds a GOAWAY frame payload: last-stream-id (4 bytes)
// followed by the error code (4 bytes), with no debug data.
func encodeGoAway(lastStreamID uint32, code ErrCode) []byte {
	b := make([]byte, 8)
	b[0] = byte(lastStreamID >> 24)
	b[1] = byte(lastStreamID >> 16)
	b[2] = byte(lastStreamID >> 8)
	b[3] = byte(lastStreamID)
	b[4] = byte(code >> 24)
	b[5] = byte(code >> 16)
	b[6] = byte(code >> 8)
	b[7] = byte(code)
	return b
}
