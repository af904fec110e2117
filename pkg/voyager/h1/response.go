package h1

import (
	"bytes"
	"io"

	"github.com/yourusername/voyager/pkg/voyager/wireheaders"
)

// Response is the wire-level view of an HTTP/1.1 response.
type Response struct {
	StatusCode int
	Reason     string
	Header     *wireheaders.Headers
	// Body is the framed response body reader (Content-Length-limited,
	// chunked, or close-delimited). For responses with no body (HEAD,
	// 204, 304) it is an empty reader, never nil.
	Body io.ReadCloser
}

// IsInformational reports whether this is a 1xx response, which h1.Conn
// skips transparently before handing a response to the caller (RFC 7230
// §3.2, also needed for "100 Continue" before an Expect: 100-continue
// body send).
func (r *Response) IsInformational() bool {
	return r.StatusCode >= 100 && r.StatusCode < 200
}

var (
	crlf       = []byte("\r\n")
	headerSep  = []byte(": ")
	spaceBytes = []byte(" ")
)

// parseStatusLine parses "HTTP/1.1 200 OK" and returns (major, minor,
// code, reason).
func parseStatusLine(line []byte) (major, minor int, code int, reason string, err error) {
	parts := bytes.SplitN(line, spaceBytes, 3)
	if len(parts) < 2 {
		return 0, 0, 0, "", errMalformedStatusLine
	}
	major, minor, err = parseHTTPVersion(parts[0])
	if err != nil {
		return 0, 0, 0, "", err
	}
	code, err = parseStatusCode(parts[1])
	if err != nil {
		return 0, 0, 0, "", err
	}
	if len(parts) == 3 {
		reason = string(parts[2])
	}
	return major, minor, code, reason, nil
}

func parseHTTPVersion(v []byte) (int, int, error) {
	if !bytes.HasPrefix(v, []byte("HTTP/")) || len(v) != len("HTTP/1.1") {
		return 0, 0, errMalformedStatusLine
	}
	major := v[5]
	minor := v[7]
	if v[6] != '.' || major < '0' || major > '9' || minor < '0' || minor > '9' {
		return 0, 0, errMalformedStatusLine
	}
	return int(major - '0'), int(minor - '0'), nil
}

func parseStatusCode(v []byte) (int, error) {
	if len(v) != 3 {
		return 0, errMalformedStatusLine
	}
	code := 0
	for _, c := range v {
		if c < '0' || c > '9' {
			return 0, errMalformedStatusLine
		}
		code = code*10 + int(c-'0')
	}
	return code, nil
}

// parseHeaderLines parses "Name: Value\r\n"-delimited lines (already split
// on CRLF, without the terminating blank line) into a Headers multimap.
func parseHeaderLines(lines [][]byte) (*wireheaders.Headers, error) {
	h := wireheaders.New()
	for _, line := range lines {
		colon := bytes.IndexByte(line, ':')
		if colon <= 0 {
			return nil, errMalformedHeader
		}
		name := line[:colon]
		if bytes.IndexByte(name, ' ') != -1 || bytes.IndexByte(name, '\t') != -1 {
			return nil, errMalformedHeader
		}
		value := bytes.TrimSpace(line[colon+1:])
		h.AddBytes(name, value)
	}
	return h, nil
}
