package client

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/yourusername/voyager/pkg/voyager/auth"
	"github.com/yourusername/voyager/pkg/voyager/cookiejar"
	"github.com/yourusername/voyager/pkg/voyager/decoders"
	"github.com/yourusername/voyager/pkg/voyager/multipart"
	"github.com/yourusername/voyager/pkg/voyager/transport"
	"github.com/yourusername/voyager/pkg/voyager/url"
	"github.com/yourusername/voyager/pkg/voyager/wireheaders"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse(%q): %v", raw, err)
	}
	return u
}

// recordingTransport is a Transport stand-in that replays one response per
// call and records every request it was asked to send, in the style of
// redirect_test.go's scriptedSender.
type recordingTransport struct {
	responses []*transport.Response
	i         int
	sent      []*transport.Request
}

func (r *recordingTransport) Send(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	r.sent = append(r.sent, req)
	if r.i >= len(r.responses) {
		panic("recordingTransport: ran out of responses")
	}
	resp := r.responses[r.i]
	r.i++
	resp.Request = req
	return resp, nil
}

func okResponse() *transport.Response {
	return &transport.Response{
		StatusCode: 200,
		Header:     wireheaders.New(),
		Body:       io.NopCloser(strings.NewReader("ok")),
	}
}

func newTestClient(t *testing.T, mounts map[string]Transport) (*Client, *recordingTransport) {
	t.Helper()
	rt := &recordingTransport{responses: []*transport.Response{okResponse()}}
	m, err := NewMounts(mountsOrDefault(mounts, rt))
	if err != nil {
		t.Fatalf("NewMounts: %v", err)
	}
	c := &Client{
		defaultHeaders: wireheaders.New(),
		mounts:         m,
		pool:           transport.NewConnectionPool(transport.PoolConfig{}),
		state:          StateUnopened,
	}
	return c, rt
}

func mountsOrDefault(mounts map[string]Transport, fallback Transport) map[string]Transport {
	if mounts != nil {
		return mounts
	}
	return map[string]Transport{"all://": fallback}
}

func TestClientSendSetsAutoHeaders(t *testing.T) {
	c, rt := newTestClient(t, nil)
	req := transport.NewRequest("GET", mustURL(t, "https://example.com/"), wireheaders.New(), nil)
	_, err := c.Send(context.Background(), req, false, nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	sent := rt.sent[0]
	if sent.Header().Get("Host") != "example.com" {
		t.Fatalf("expected auto Host header, got %q", sent.Header().Get("Host"))
	}
	if sent.Header().Get("Accept") != "*/*" {
		t.Fatalf("expected auto Accept header, got %q", sent.Header().Get("Accept"))
	}
}

func TestClientSendOnClosedClientFails(t *testing.T) {
	c, _ := newTestClient(t, nil)
	c.state = StateClosed
	req := transport.NewRequest("GET", mustURL(t, "https://example.com/"), wireheaders.New(), nil)
	if _, err := c.Send(context.Background(), req, false, nil); err == nil {
		t.Fatalf("expected send on a closed client to fail")
	}
}

func TestClientSendRoutesThroughMountedTransport(t *testing.T) {
	mounted := &recordingTransport{responses: []*transport.Response{okResponse()}}
	fallback := &recordingTransport{responses: []*transport.Response{okResponse()}}
	c, _ := newTestClient(t, map[string]Transport{
		"all://proxied.example.com": mounted,
		"all://":                    fallback,
	})
	req := transport.NewRequest("GET", mustURL(t, "https://proxied.example.com/"), wireheaders.New(), nil)
	if _, err := c.Send(context.Background(), req, false, nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(mounted.sent) != 1 {
		t.Fatalf("expected the mounted transport to receive the request")
	}
	if len(fallback.sent) != 0 {
		t.Fatalf("expected the fallback transport to be untouched")
	}
}

func TestClientSendInjectsAndStoresCookies(t *testing.T) {
	rt := &recordingTransport{}
	resp1 := okResponse()
	resp1.Header.Set("Set-Cookie", "session=abc; Path=/")
	rt.responses = append(rt.responses, resp1, okResponse())

	jar := cookiejar.NewJar()
	m, err := NewMounts(map[string]Transport{"all://": rt})
	if err != nil {
		t.Fatalf("NewMounts: %v", err)
	}
	c := &Client{
		defaultHeaders: wireheaders.New(),
		mounts:         m,
		jar:            jar,
		pool:           transport.NewConnectionPool(transport.PoolConfig{}),
		state:          StateUnopened,
	}

	req1 := transport.NewRequest("GET", mustURL(t, "https://example.com/login"), wireheaders.New(), nil)
	if _, err := c.Send(context.Background(), req1, false, nil); err != nil {
		t.Fatalf("Send 1: %v", err)
	}

	req2 := transport.NewRequest("GET", mustURL(t, "https://example.com/next"), wireheaders.New(), nil)
	if _, err := c.Send(context.Background(), req2, false, nil); err != nil {
		t.Fatalf("Send 2: %v", err)
	}

	if rt.sent[1].Header().Get("Cookie") != "session=abc" {
		t.Fatalf("expected the stored cookie to be replayed, got %q", rt.sent[1].Header().Get("Cookie"))
	}
}

func TestClientSendDrivesAuthFlow(t *testing.T) {
	c, rt := newTestClient(t, nil)
	req := transport.NewRequest("GET", mustURL(t, "https://example.com/"), wireheaders.New(), nil)
	flow := &auth.Basic{Username: "alice", Password: "secret"}
	if _, err := c.Send(context.Background(), req, false, flow); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if rt.sent[0].Header().Get("Authorization") == "" {
		t.Fatalf("expected Basic auth flow to set an Authorization header")
	}
}

func TestClientRequestAdvertisesAcceptEncoding(t *testing.T) {
	rt := &recordingTransport{responses: []*transport.Response{okResponse()}}
	m, err := NewMounts(map[string]Transport{"all://": rt})
	if err != nil {
		t.Fatalf("NewMounts: %v", err)
	}
	c := &Client{
		defaultHeaders: wireheaders.New(),
		mounts:         m,
		pool:           transport.NewConnectionPool(transport.PoolConfig{}),
		decoders:       decoders.Default(),
		state:          StateUnopened,
	}
	if _, err := c.Request(context.Background(), "GET", "https://example.com/"); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if got := rt.sent[0].Header().Get("Accept-Encoding"); got == "" || strings.Contains(got, "identity") {
		t.Fatalf("Accept-Encoding = %q", got)
	}
}

func TestClientRequestDecodesGzipBody(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	gw.Write([]byte("hello decoded"))
	gw.Close()

	resp := &transport.Response{
		StatusCode: 200,
		Header:     wireheaders.New(),
		Body:       io.NopCloser(&buf),
	}
	resp.Header.Set("Content-Encoding", "gzip")

	rt := &recordingTransport{responses: []*transport.Response{resp}}
	m, err := NewMounts(map[string]Transport{"all://": rt})
	if err != nil {
		t.Fatalf("NewMounts: %v", err)
	}
	c := &Client{
		defaultHeaders: wireheaders.New(),
		mounts:         m,
		pool:           transport.NewConnectionPool(transport.PoolConfig{}),
		decoders:       decoders.Default(),
		state:          StateUnopened,
	}
	got, err := c.Request(context.Background(), "GET", "https://example.com/")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	data, err := io.ReadAll(got.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "hello decoded" {
		t.Fatalf("expected the decompressed body, got %q", data)
	}
	if got.Header.Has("Content-Encoding") {
		t.Fatalf("expected Content-Encoding to be stripped after decoding")
	}
}

func TestWithFilesBuildsMultipartBody(t *testing.T) {
	rt := &recordingTransport{responses: []*transport.Response{okResponse()}}
	m, err := NewMounts(map[string]Transport{"all://": rt})
	if err != nil {
		t.Fatalf("NewMounts: %v", err)
	}
	c := &Client{
		defaultHeaders: wireheaders.New(),
		mounts:         m,
		pool:           transport.NewConnectionPool(transport.PoolConfig{}),
		state:          StateUnopened,
	}
	files := map[string]multipart.File{"upload": {Filename: "a.txt", Reader: strings.NewReader("data")}}
	if _, err := c.Request(context.Background(), "POST", "https://example.com/", WithFiles(nil, files)); err != nil {
		t.Fatalf("Request: %v", err)
	}
	ct := rt.sent[0].Header().Get("Content-Type")
	if !strings.HasPrefix(ct, "multipart/form-data; boundary=") {
		t.Fatalf("Content-Type = %q", ct)
	}
}

func TestClientCloseIsIdempotent(t *testing.T) {
	c, _ := newTestClient(t, nil)
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if c.State() != StateClosed {
		t.Fatalf("expected client to be CLOSED")
	}
}
