package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/voyager/pkg/voyager/concurrency"
	"github.com/yourusername/voyager/pkg/voyager/h1"
	"github.com/yourusername/voyager/pkg/voyager/h2"
	"github.com/yourusername/voyager/pkg/voyager/httperror"
	"github.com/yourusername/voyager/pkg/voyager/iostream"
	"github.com/yourusername/voyager/pkg/voyager/timeoutflag"
	"github.com/yourusername/voyager/pkg/voyager/url"
	"github.com/yourusername/voyager/pkg/voyager/wireheaders"
)

// Protocol identifies which engine a Connection is driving.
type Protocol int

const (
	// ProtocolUnknown means the connection hasn't lazy-connected yet.
	ProtocolUnknown Protocol = iota
	ProtocolHTTP1
	ProtocolHTTP2
)

// Connection owns one transport-level connection plus exactly one of
// {HTTP/1.1 engine, HTTP/2 engine} (spec.md §4.6). It lazy-connects on
// first Send: resolves a TLS config if the origin is https, opens the
// stream with connect_timeout, and inspects ALPN to decide which engine
// to build.
//
// Grounded on shockwave/pkg/shockwave/client/pool.go's PooledConn, with
// the protocol decided by ALPN inspection (the teacher's PooledConn takes
// its ProtocolVersion as a caller-supplied parameter instead, since it
// never actually negotiates ALPN itself).
type Connection struct {
	origin    url.Origin
	tlsConfig *tls.Config
	backend   concurrency.Backend
	log       *logrus.Entry

	mu        sync.Mutex
	connectMu sync.Locker // guards the dial+negotiate section of connect
	protocol  Protocol
	h1Conn    *h1.Conn
	h2Conn    *h2.Conn
	rawConn   interface{ Close() error }
	closed    bool

	createdAt atomic.Int64 // unix nanos, set on connect
	lastUsed  atomic.Int64
	requests  atomic.Uint64
	h2Streams atomic.Int32 // concurrently in-flight HTTP/2 streams

	// Release returns the connection to its owning pool; the pool installs
	// this after constructing the Connection, and Response.Close invokes
	// it exactly once per cycle (spec.md §4.6).
	Release func(*Connection) error
}

// newConnection constructs an unconnected Connection for origin.
func newConnection(origin url.Origin, tlsConfig *tls.Config, backend concurrency.Backend, log *logrus.Entry) *Connection {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Connection{origin: origin, tlsConfig: tlsConfig, backend: backend, log: log, connectMu: backend.NewLock()}
}

// Origin returns the connection's (scheme, host, port) key.
func (c *Connection) Origin() url.Origin { return c.origin }

// Protocol returns the negotiated protocol, or ProtocolUnknown before the
// first Send.
func (c *Connection) Protocol() Protocol {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.protocol
}

// IsClosed reports whether the connection has been torn down.
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// CanAcceptMoreStreams reports whether this connection may still carry
// another concurrent request: always false for a closed, unconnected or
// HTTP/1.1 connection (the pool treats HTTP/1.1 connections as
// one-active-at-a-time by never reusing an active one), true for HTTP/2
// while fewer than maxConcurrentStreams streams are in flight.
func (c *Connection) CanAcceptMoreStreams(maxConcurrentStreams int32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	if c.protocol != ProtocolHTTP2 {
		return false
	}
	return c.h2Streams.Load() < maxConcurrentStreams
}

// singleFlightInitBackend is implemented by backends (ErrGroup) that can
// deduplicate concurrent callers of a one-time init routine under a key,
// per spec.md §4.5's "one lock guards connection initialization".
type singleFlightInitBackend interface {
	SingleFlightInit(key string, fn func() error) error
}

// connect lazy-dials the origin and negotiates the engine, idempotent
// after the first successful call. Concurrent callers racing to connect
// the same Connection (two goroutines sending on a freshly-popped
// connection before negotiation completes) are serialized so only one of
// them dials: SingleFlightInit coalesces them under the ErrGroup backend,
// and connectMu (from backend.NewLock()) does the equivalent for backends
// without a singleflight mechanism.
func (c *Connection) connect(ctx context.Context, connectTimeout time.Duration) error {
	c.mu.Lock()
	if c.protocol != ProtocolUnknown {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	dial := func() error {
		c.mu.Lock()
		if c.protocol != ProtocolUnknown {
			c.mu.Unlock()
			return nil
		}
		c.mu.Unlock()

		var tlsCfg *tls.Config
		if c.origin.Scheme == "https" {
			tlsCfg = c.tlsConfig
		}

		conn, alpn, err := c.backend.OpenTCPStream(ctx, c.origin.Host, c.origin.Port, tlsCfg, connectTimeout)
		if err != nil {
			return &httperror.NetworkError{Kind: httperror.NetworkCannotConnect, Err: err}
		}
		return c.attach(conn, alpn)
	}

	if sf, ok := c.backend.(singleFlightInitBackend); ok {
		return sf.SingleFlightInit(fmt.Sprintf("connect:%p", c), dial)
	}

	c.connectMu.Lock()
	defer c.connectMu.Unlock()
	return dial()
}

// attach adopts an already-established net.Conn (dialed directly, or
// tunneled through a CONNECT proxy by the proxy package) as this
// Connection's transport, negotiating the engine from alpn exactly as
// connect does after dialing.
func (c *Connection) attach(conn net.Conn, alpn string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.createdAt.Store(c.backend.MonotonicTime().UnixNano())
	c.lastUsed.Store(c.createdAt.Load())

	if alpn == "h2" {
		h2Conn, err := h2.NewConn(conn, c.log)
		if err != nil {
			conn.Close()
			return &httperror.NetworkError{Kind: httperror.NetworkTLSFailure, Err: err}
		}
		c.h2Conn = h2Conn
		c.protocol = ProtocolHTTP2
		c.rawConn = conn
		return nil
	}

	flag := timeoutflag.New()
	reader, writer := iostream.NewPair(conn, flag, c.log)
	c.h1Conn = h1.NewConn(reader, writer, flag, c.log)
	c.protocol = ProtocolHTTP1
	c.rawConn = conn
	return nil
}

// NewPreconnected builds a Connection around conn, a transport already
// established out-of-band (spec.md §6's CONNECT tunneling: "on 2xx
// response the underlying stream is wrapped in TLS and reused"), instead
// of lazy-dialing on first Send. alpn is the negotiated protocol identity
// ("h2" or "" for HTTP/1.1), exactly as Connection.Send's ALPN inspection
// would have produced it for a direct dial.
func NewPreconnected(origin url.Origin, conn net.Conn, alpn string, backend concurrency.Backend, log *logrus.Entry) (*Connection, error) {
	c := newConnection(origin, nil, backend, log)
	if err := c.attach(conn, alpn); err != nil {
		return nil, err
	}
	return c, nil
}

// Send drives one request/response exchange over this connection.
// Failures after the request has been sent but before headers are
// received propagate as NetworkError and mark the connection closed, per
// spec.md §4.6.
func (c *Connection) Send(ctx context.Context, req *Request) (*Response, error) {
	t := req.Timeouts()
	if err := c.connect(ctx, t.Connect); err != nil {
		return nil, err
	}

	c.mu.Lock()
	protocol := c.protocol
	c.mu.Unlock()

	c.requests.Add(1)
	c.lastUsed.Store(c.backend.MonotonicTime().UnixNano())

	switch protocol {
	case ProtocolHTTP1:
		return c.sendHTTP1(ctx, req, t)
	case ProtocolHTTP2:
		return c.sendHTTP2(ctx, req, t)
	default:
		return nil, fmt.Errorf("transport: connection has no negotiated protocol")
	}
}

// sendHTTP1 writes the request head synchronously, then either flips
// straight to read-mode (bodyless request) or spawns the body write on a
// scope-joined background task so it races the response-head read below,
// per spec.md §5's background task discipline: a server that starts
// answering before the client finishes uploading must not stall behind a
// synchronous body write. The two sides only share the connection's
// timeout flag and operate on independent halves of the duplex
// connection, so running them concurrently is safe.
func (c *Connection) sendHTTP1(ctx context.Context, req *Request, t Timeouts) (*Response, error) {
	timeouts := h1.Timeouts{Read: t.Read, Write: t.Write}

	wireReq := &h1.Request{
		Method:    req.Method(),
		Target:    req.URL().FullPath(),
		Authority: req.URL().Authority(),
		Header:    req.Header(),
		Body:      req.Body(),
	}
	if req.Method() == "CONNECT" {
		wireReq.Target = net.JoinHostPort(req.URL().Hostname(), fmt.Sprint(req.URL().Port()))
	}

	if err := c.h1Conn.WriteHead(wireReq, timeouts.Write); err != nil {
		c.markClosed()
		return nil, &httperror.NetworkError{Kind: httperror.NetworkConnectionReset, Request: req, Err: err}
	}

	var scope concurrency.Scope
	if wireReq.Body == nil {
		c.h1Conn.FlipToRead()
	} else {
		scope, _ = c.backend.NewScope(ctx)
		scope.Spawn(func() error {
			return c.h1Conn.SendBody(wireReq, timeouts.Write)
		})
	}

	resp, err := c.h1Conn.ReceiveResponse(req.Method(), timeouts)

	var sendErr error
	if scope != nil {
		sendErr = scope.Wait()
	}

	if err != nil {
		c.markClosed()
		return nil, &httperror.NetworkError{Kind: httperror.NetworkConnectionReset, Request: req, Err: err}
	}
	if sendErr != nil {
		c.markClosed()
		return nil, &httperror.NetworkError{Kind: httperror.NetworkConnectionReset, Request: req, Err: sendErr}
	}

	out := &Response{
		StatusCode: resp.StatusCode,
		Reason:     resp.Reason,
		Proto:      "HTTP/1.1",
		Header:     resp.Header,
		Body:       &h1CycleBody{conn: c, rc: resp.Body},
		Request:    req,
	}
	return out, nil
}

// h1CycleBody wraps an h1.Response's body so that closing it begins the
// connection's next keep-alive cycle (spec.md §4.4's "on clean DONE/DONE,
// reset for the next cycle") on a clean EOF, or marks the connection
// closed instead if a mid-body read ever failed (e.g. a ReadTimeout):
// the stream is left in an unknown framing state, so the connection must
// not be recycled back into the pool (spec.md §4.7).
type h1CycleBody struct {
	conn   *Connection
	rc     interface {
		Read(p []byte) (int, error)
		Close() error
	}
	failed bool
}

func (b *h1CycleBody) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	if err != nil && err != io.EOF {
		b.failed = true
	}
	return n, err
}

func (b *h1CycleBody) Close() error {
	err := b.rc.Close()
	if b.failed {
		b.conn.markClosed()
	} else {
		b.conn.h1Conn.BeginCycle()
	}
	return err
}

func (c *Connection) sendHTTP2(ctx context.Context, req *Request, t Timeouts) (*Response, error) {
	c.h2Streams.Add(1)
	defer c.h2Streams.Add(-1)

	sendCtx := ctx
	if timeout := maxDuration(t.Write, t.Read); timeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	wireReq := &h2.Request{
		Method:    req.Method(),
		Scheme:    req.URL().Scheme(),
		Authority: req.URL().Authority(),
		Path:      req.URL().FullPath(),
		Header:    req.Header(),
		Body:      req.Body(),
	}

	resp, err := c.h2Conn.OpenStream(sendCtx, wireReq)
	if err != nil {
		c.markClosed()
		return nil, &httperror.NetworkError{Kind: httperror.NetworkConnectionReset, Request: req, Err: err}
	}

	header := resp.Header
	if header == nil {
		header = wireheaders.New()
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Proto:      "HTTP/2",
		Header:     header,
		Body:       resp.Body,
		Request:    req,
	}, nil
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

func (c *Connection) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Close tears down the underlying transport.
func (c *Connection) Close() error {
	c.mu.Lock()
	c.closed = true
	rawConn := c.rawConn
	h1Conn := c.h1Conn
	h2Conn := c.h2Conn
	c.mu.Unlock()

	if h2Conn != nil {
		return h2Conn.Close()
	}
	if h1Conn != nil {
		return h1Conn.Close()
	}
	if rawConn != nil {
		return rawConn.Close()
	}
	return nil
}

// IsConnectionDropped reports whether the peer has closed its end of an
// idle HTTP/1.1 connection, checked by the pool before handing a
// keep-alive connection back out (spec.md §4.7's readable-at-EOF probe).
// Always false for an HTTP/2 or not-yet-connected Connection: an HTTP/2
// connection's liveness is tracked by its own stream bookkeeping instead.
func (c *Connection) IsConnectionDropped() bool {
	c.mu.Lock()
	h1Conn := c.h1Conn
	c.mu.Unlock()
	if h1Conn == nil {
		return false
	}
	return h1Conn.IsConnectionDropped()
}

// IdleTime returns how long this connection has sat idle since its last
// request, used by the pool's keepalive_expiry eviction (spec.md §4.7).
func (c *Connection) IdleTime(now time.Time) time.Duration {
	last := c.lastUsed.Load()
	if last == 0 {
		return 0
	}
	return now.Sub(time.Unix(0, last))
}
