package client

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yourusername/voyager/pkg/voyager/auth"
	"github.com/yourusername/voyager/pkg/voyager/httperror"
	"github.com/yourusername/voyager/pkg/voyager/transport"
)

// These tests exercise the client against a real listener instead of an
// in-memory Transport stub, the way the end-to-end scenarios in
// redirect_test.go and client_test.go's in-memory equivalents cannot:
// a real TCP accept loop, a real keep-alive connection, a real deadline.

func TestIntegrationGetEcho(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello from the wire"))
	}))
	defer ts.Close()

	c, err := NewClient(Config{})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer c.Close()

	resp, err := c.Get(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, err := io.ReadAll(resp)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != "hello from the wire" {
		t.Fatalf("body = %q", body)
	}
}

func TestIntegrationFollowsThreeHopRedirectChain(t *testing.T) {
	var mux http.ServeMux
	ts := httptest.NewServer(&mux)
	defer ts.Close()

	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, ts.URL+"/hop2", http.StatusSeeOther)
	})
	mux.HandleFunc("/hop2", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, ts.URL+"/hop3", http.StatusSeeOther)
	})
	mux.HandleFunc("/hop3", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, ts.URL+"/final", http.StatusSeeOther)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("arrived"))
	})

	c, err := NewClient(Config{AllowRedirects: true})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer c.Close()

	resp, err := c.Get(context.Background(), ts.URL+"/start")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(resp.History) != 3 {
		t.Fatalf("len(History) = %d, want 3", len(resp.History))
	}
	body, _ := io.ReadAll(resp)
	if string(body) != "arrived" {
		t.Fatalf("body = %q", body)
	}
}

func TestIntegrationRedirectLoopFails(t *testing.T) {
	var mux http.ServeMux
	ts := httptest.NewServer(&mux)
	defer ts.Close()

	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, ts.URL+"/b", http.StatusFound)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, ts.URL+"/a", http.StatusFound)
	})

	c, err := NewClient(Config{AllowRedirects: true})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer c.Close()

	_, err = c.Get(context.Background(), ts.URL+"/a")
	if err == nil {
		t.Fatalf("expected a redirect-loop error")
	}
	var redirErr *httperror.RedirectError
	if !asRedirectError(err, &redirErr) {
		t.Fatalf("expected *httperror.RedirectError, got %T: %v", err, err)
	}
	if redirErr.Kind != httperror.RedirectLoop {
		t.Fatalf("Kind = %v, want RedirectLoop", redirErr.Kind)
	}
}

func asRedirectError(err error, target **httperror.RedirectError) bool {
	re, ok := err.(*httperror.RedirectError)
	if !ok {
		return false
	}
	*target = re
	return true
}

// challengeAuth only adds Authorization once it has seen a 401, matching
// the literal challenge-retry flow: "the first request carries no
// Authorization header; the server's 401 drives a single retry that
// does". auth.Basic itself sends eagerly on every Start (grounded on
// original_source/httpx/_auth.py's HTTPBasicAuth, optimistic by design),
// so this scenario is driven by a purpose-built Flow exercising the same
// auth.Driver machinery instead of changing Basic's behavior.
type challengeAuth struct {
	credential string
	challenged bool
}

func (a *challengeAuth) RequiresRequestBody() bool  { return false }
func (a *challengeAuth) RequiresResponseBody() bool { return false }

func (a *challengeAuth) Start(req *transport.Request) (*transport.Request, error) {
	return req, nil
}

func (a *challengeAuth) Resume(resp *transport.Response) (*transport.Request, error) {
	if resp.StatusCode != 401 || a.challenged {
		return nil, auth.Done
	}
	a.challenged = true
	h := resp.Request.Header().Clone()
	h.Set("Authorization", a.credential)
	return resp.Request.WithHeader(h), nil
}

func TestIntegrationAuthChallengeRetriesOnce(t *testing.T) {
	var seenAuth []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenAuth = append(seenAuth, r.Header.Get("Authorization"))
		if r.Header.Get("Authorization") != "Bearer secret-token" {
			w.Header().Set("WWW-Authenticate", `Bearer`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer ts.Close()

	c, err := NewClient(Config{})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer c.Close()

	flow := &challengeAuth{credential: "Bearer secret-token"}
	resp, err := c.Get(context.Background(), ts.URL, WithAuth(flow))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(seenAuth) != 2 {
		t.Fatalf("expected exactly two requests, got %d", len(seenAuth))
	}
	if seenAuth[0] != "" {
		t.Fatalf("first request should carry no Authorization header, got %q", seenAuth[0])
	}
	if seenAuth[1] != "Bearer secret-token" {
		t.Fatalf("second request should carry the challenge credential, got %q", seenAuth[1])
	}
}

func TestIntegrationPoolReusesConnectionAcrossRequests(t *testing.T) {
	var connects atomic.Int32
	ts := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	ts.Listener = &countingListener{Listener: ts.Listener, count: &connects}
	ts.Start()
	defer ts.Close()

	c, err := NewClient(Config{})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer c.Close()

	for i := 0; i < 2; i++ {
		resp, err := c.Get(context.Background(), ts.URL)
		if err != nil {
			t.Fatalf("Get #%d: %v", i, err)
		}
		io.Copy(io.Discard, resp)
		resp.Close()
	}

	if got := connects.Load(); got != 1 {
		t.Fatalf("TCP accept count = %d, want 1", got)
	}
	stats := c.Stats()
	if stats.Active != 0 || stats.Keepalive != 1 {
		t.Fatalf("pool stats after two sequential requests = %+v, want 0 active / 1 keepalive", stats)
	}
}

// countingListener counts accepted connections, to assert the pool only
// dialed once across two sequential requests.
type countingListener struct {
	net.Listener
	count *atomic.Int32
}

func (l *countingListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err == nil {
		l.count.Add(1)
	}
	return conn, err
}

func TestIntegrationReadTimeoutOnSlowBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "5")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		if flusher != nil {
			flusher.Flush()
		}
		time.Sleep(2 * time.Second)
		w.Write([]byte("hello"))
	}))
	defer ts.Close()

	c, err := NewClient(Config{Timeouts: transport.Timeouts{Read: 500 * time.Millisecond}})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer c.Close()

	start := time.Now()
	resp, err := c.Get(context.Background(), ts.URL)
	if err != nil {
		// Some servers fail the read while still inside the head; either
		// way it must be a ReadTimeout raised well under the 2s body delay.
		assertReadTimeout(t, err, start)
		return
	}
	defer resp.Close()

	_, err = io.ReadAll(resp)
	assertReadTimeout(t, err, start)

	if c.Stats().Keepalive != 0 {
		t.Fatalf("connection that raised ReadTimeout must not be pooled as keepalive")
	}
}

func assertReadTimeout(t *testing.T, err error, start time.Time) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected a read timeout error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("ReadTimeout took %s, want well under the 2s body delay", elapsed)
	}
	var timeoutErr *httperror.TimeoutError
	if te, ok := err.(*httperror.TimeoutError); ok {
		timeoutErr = te
	} else if ne, ok := err.(*httperror.NetworkError); ok {
		if te, ok := ne.Err.(*httperror.TimeoutError); ok {
			timeoutErr = te
		}
	}
	if timeoutErr == nil {
		t.Fatalf("expected a *httperror.TimeoutError somewhere in the chain, got %T: %v", err, err)
	}
	if timeoutErr.Kind != httperror.TimeoutRead {
		t.Fatalf("Kind = %v, want TimeoutRead", timeoutErr.Kind)
	}
}
