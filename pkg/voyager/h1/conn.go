package h1

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/voyager/pkg/voyager/body"
	"github.com/yourusername/voyager/pkg/voyager/iostream"
	"github.com/yourusername/voyager/pkg/voyager/timeoutflag"
	"github.com/yourusername/voyager/pkg/voyager/wireheaders"
)

// Timeouts bundles the two of spec.md §6's four timeout dimensions that
// apply to a single request/response exchange on this connection (connect
// is handled by the dialer before a Conn exists, pool before that).
type Timeouts struct {
	Read  time.Duration
	Write time.Duration
}

// Conn drives one HTTP/1.1 request/response exchange, and can be reused
// for subsequent exchanges while the peer keeps the connection alive
// (spec.md §4.4). Exactly one timeoutflag.Flag is shared between Conn's
// Reader and Writer, matching spec.md §4.3.
//
// WriteHead, SendBody, and ReceiveResponse are split apart so a caller
// can run SendBody in a background goroutine while ReceiveResponse reads
// the response head in the foreground on the same Conn: the two sides
// only share the flag, and the underlying Reader/Writer operate on
// independent halves of the duplex connection, so this is safe.
//
// Grounded on shockwave/pkg/shockwave/http11/connection.go's Connection,
// inverted from "parse request, write response" to "write request, parse
// response", and stripped of its server-only pooled-object/zero-alloc
// machinery (this is a client with one exchange in flight at a time, not
// a server multiplexing many connections).
type Conn struct {
	reader *iostream.Reader
	writer *iostream.Writer
	flag   *timeoutflag.Flag
	log    *logrus.Entry

	br      *bufio.Reader
	readAdp *readerAdapter
}

// NewConn wraps reader/writer (sharing flag) as an HTTP/1.1 client
// connection.
func NewConn(reader *iostream.Reader, writer *iostream.Writer, flag *timeoutflag.Flag, log *logrus.Entry) *Conn {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Conn{reader: reader, writer: writer, flag: flag, log: log}
}

// SendRequest writes the request line, headers, and body to the
// connection, synchronously and in order. Callers that need the body
// write to run concurrently with the response-head read (the background
// task discipline described on Conn) should call WriteHead and SendBody
// separately instead.
func (c *Conn) SendRequest(req *Request, t Timeouts) error {
	if err := c.WriteHead(req, t.Write); err != nil {
		return err
	}
	if req.Body == nil {
		c.flag.FlipToRead()
		return nil
	}
	return c.SendBody(req, t.Write)
}

// WriteHead writes the request line and headers only. The caller is
// responsible for following up with SendBody (if req.Body != nil) and
// for flipping the flag to read-mode once the body is fully sent.
func (c *Conn) WriteHead(req *Request, timeout time.Duration) error {
	var buf bytes.Buffer
	buf.WriteString(req.Method)
	buf.WriteByte(' ')
	buf.WriteString(req.Target)
	buf.WriteString(" HTTP/1.1\r\n")

	buf.WriteString("Host: ")
	buf.WriteString(req.Authority)
	buf.WriteString("\r\n")

	var aux *wireheaders.Headers
	if req.Body != nil {
		aux = req.Body.AuxHeaders()
	}

	req.Header.Range(func(name, value string) bool {
		if strings.EqualFold(name, "Host") {
			return true
		}
		buf.WriteString(name)
		buf.Write(headerSep)
		buf.WriteString(value)
		buf.Write(crlf)
		return true
	})
	if aux != nil {
		aux.Range(func(name, value string) bool {
			buf.WriteString(name)
			buf.Write(headerSep)
			buf.WriteString(value)
			buf.Write(crlf)
			return true
		})
	}
	buf.WriteString("\r\n")

	_, err := c.writeAll(buf.Bytes(), timeout)
	return err
}

// SendBody writes req.Body (chunked or plain, per its AuxHeaders) and
// flips the flag to read-mode once it's fully sent, per spec.md §4.3 so
// a slow response head raises ReadTimeout instead of spinning forever.
// Safe to run in a goroutine concurrently with ReceiveResponse reading
// the response head off the same Conn, since Reader/Writer operate on
// independent halves of the duplex connection and only share the flag,
// which is itself safe for concurrent use.
func (c *Conn) SendBody(req *Request, timeout time.Duration) error {
	var aux *wireheaders.Headers
	if req.Body != nil {
		aux = req.Body.AuxHeaders()
	}
	chunked := aux != nil && aux.Has("Transfer-Encoding")

	err := c.sendBody(req.Body, chunked, timeout)
	c.flag.FlipToRead()
	return err
}

func (c *Conn) sendBody(b body.ContentStream, chunked bool, timeout time.Duration) error {
	buf := make([]byte, 32*1024)
	for {
		n, err := b.Read(buf)
		if n > 0 {
			if chunked {
				if werr := writeChunked(&writerAdapter{c.writer, timeout}, buf[:n]); werr != nil {
					return werr
				}
			} else if _, werr := c.writeAll(buf[:n], timeout); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}
	if chunked {
		return writeChunkedTrailer(&writerAdapter{c.writer, timeout})
	}
	return nil
}

// writeAll loops Writer.Write (which may return short writes on a poll
// timeout while in the wrong timeout mode) until p is fully written.
func (c *Conn) writeAll(p []byte, timeout time.Duration) (int, error) {
	total := 0
	for total < len(p) {
		n, err := c.writer.Write(p[total:], timeout)
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			// A zero-progress, nil-error return only happens on a
			// write-mode-suppressed timeout; that cannot occur here
			// since SendRequest runs entirely in write-mode, but guard
			// against a spin regardless.
			time.Sleep(time.Millisecond)
		}
	}
	return total, nil
}

// ReceiveResponse reads and parses the response head, skipping any 1xx
// informational responses, and returns a Response whose Body is framed
// according to Content-Length / Transfer-Encoding / connection-close
// rules (RFC 7230 §3.3.3).
func (c *Conn) ReceiveResponse(method string, t Timeouts) (*Response, error) {
	if c.br == nil {
		c.readAdp = &readerAdapter{r: c.reader, timeout: t.Read, flag: c.flag}
		c.br = bufio.NewReader(c.readAdp)
	} else {
		// Rebind the adapter's timeout for this cycle; the bufio.Reader
		// itself is reused across keep-alive cycles to preserve any
		// pipelined bytes already buffered.
		c.readAdp.timeout = t.Read
	}

	var resp *Response
	for {
		r, err := c.readOneResponse(method)
		if err != nil {
			return nil, err
		}
		if !r.IsInformational() {
			resp = r
			break
		}
		// 1xx: discard (no body) and read the next response head.
	}
	return resp, nil
}

func (c *Conn) readOneResponse(method string) (*Response, error) {
	headBuf, err := readUntilHeadersEnd(c.br)
	if err != nil {
		return nil, err
	}

	lineEnd := bytes.Index(headBuf, crlf)
	if lineEnd == -1 {
		return nil, errMalformedStatusLine
	}
	_, _, code, reason, err := parseStatusLine(headBuf[:lineEnd])
	if err != nil {
		return nil, err
	}

	var lines [][]byte
	rest := headBuf[lineEnd+2:]
	for len(rest) > 2 {
		idx := bytes.Index(rest, crlf)
		if idx == -1 {
			break
		}
		lines = append(lines, rest[:idx])
		rest = rest[idx+2:]
	}

	header, err := parseHeaderLines(lines)
	if err != nil {
		return nil, err
	}

	resp := &Response{StatusCode: code, Reason: reason, Header: header}

	if code >= 100 && code < 200 {
		resp.Body = io.NopCloser(bytes.NewReader(nil))
		return resp, nil
	}

	resp.Body = c.framedBody(method, code, header)
	return resp, nil
}

// framedBody selects the body-termination strategy per RFC 7230 §3.3.3:
// HEAD and certain status codes never have a body; Transfer-Encoding:
// chunked takes precedence over Content-Length; otherwise Content-Length
// bounds the body, or (absent both) the body runs to connection close.
func (c *Conn) framedBody(method string, code int, header *wireheaders.Headers) io.ReadCloser {
	if method == "HEAD" || code == 204 || code == 304 {
		return io.NopCloser(bytes.NewReader(nil))
	}

	if te := header.Get("Transfer-Encoding"); strings.Contains(strings.ToLower(te), "chunked") {
		return newChunkedReader(c.br)
	}

	if cl := header.Get("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err == nil && n >= 0 {
			if n == 0 {
				return io.NopCloser(bytes.NewReader(nil))
			}
			return io.NopCloser(io.LimitReader(c.br, n))
		}
	}

	// No framing header: body runs until the connection closes.
	return io.NopCloser(c.br)
}

// readUntilHeadersEnd reads from br until "\r\n\r\n" is found, returning
// the bytes up to and including the blank line that terminates the
// response head. Adapted from shockwave's readUntilHeadersEnd, but reads
// through a bufio.Reader line-by-line instead of accumulating into a
// scratch buffer, since bufio.Reader already owns the unread-bytes
// buffer bufio normally provides.
func readUntilHeadersEnd(br *bufio.Reader) ([]byte, error) {
	var head bytes.Buffer
	for {
		line, err := br.ReadSlice('\n')
		if len(line) > 0 {
			head.Write(line)
		}
		if err != nil {
			if err == io.EOF {
				return nil, errUnexpectedEOF
			}
			return nil, err
		}
		if head.Len() > MaxHeaderListSize {
			return nil, errHeadersTooLarge
		}
		if len(line) == 2 && line[0] == '\r' && line[1] == '\n' {
			return head.Bytes(), nil
		}
		if head.Len() >= 4 {
			b := head.Bytes()
			if bytes.HasSuffix(b, []byte("\r\n\r\n")) {
				return b, nil
			}
		}
	}
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.writer.Close()
}

// BeginCycle resets the timeout flag to write-mode for the next
// keep-alive request on this connection (spec.md §4.4).
func (c *Conn) BeginCycle() {
	c.flag.Reset()
}

// FlipToRead flips the shared timeout flag to read-mode directly, for a
// caller that wrote a bodyless request via WriteHead and has nothing left
// to send.
func (c *Conn) FlipToRead() {
	c.flag.FlipToRead()
}

// IsConnectionDropped reports whether the peer has closed its end while
// this Conn sits idle between keep-alive cycles, used by the pool's
// eviction check (spec.md §4.7).
func (c *Conn) IsConnectionDropped() bool {
	return c.reader.IsConnectionDropped()
}

// readerAdapter presents iostream.Reader as a plain io.Reader with a
// fixed per-call timeout, so it can sit behind a bufio.Reader and the
// teacher-derived chunkedReader. When flag is non-nil, the first byte or
// error it observes flips the flag to read-mode, satisfying the "first
// response event observed" half of the flip rule on Conn even while a
// concurrent SendBody goroutine is still writing the request body.
type readerAdapter struct {
	r       *iostream.Reader
	timeout time.Duration
	flag    *timeoutflag.Flag
}

func (a *readerAdapter) Read(p []byte) (int, error) {
	for {
		n, err := a.r.Read(p, a.timeout)
		if n > 0 || err != nil {
			if a.flag != nil {
				a.flag.FlipToRead()
			}
			return n, err
		}
		// n == 0, err == nil: write-mode poll tick with no data yet.
	}
}

// writerAdapter presents iostream.Writer as a plain io.Writer with a
// fixed per-call timeout.
type writerAdapter struct {
	w       *iostream.Writer
	timeout time.Duration
}

func (a *writerAdapter) Write(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := a.w.Write(p[total:], a.timeout)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
