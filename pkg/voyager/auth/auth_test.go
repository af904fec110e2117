package auth

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

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

func TestBasicSetsAuthorizationHeader(t *testing.T) {
	b := &Basic{Username: "alice", Password: "secret"}
	req := transport.NewRequest("GET", mustURL(t, "https://example.com/"), nil, nil)
	out, err := b.Start(req)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("alice:secret"))
	if got := out.Header().Get("Authorization"); got != want {
		t.Fatalf("Authorization = %q, want %q", got, want)
	}
	if _, err := b.Resume(nil); err != Done {
		t.Fatalf("expected Resume to signal Done, got %v", err)
	}
}

func TestFunctionDelegatesToCallback(t *testing.T) {
	called := false
	f := &Function{Fn: func(req *transport.Request) (*transport.Request, error) {
		called = true
		h := req.Header().Clone()
		h.Set("X-Signed", "yes")
		return req.WithHeader(h), nil
	}}
	req := transport.NewRequest("GET", mustURL(t, "https://example.com/"), nil, nil)
	out, err := f.Start(req)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !called {
		t.Fatalf("expected the callback to run")
	}
	if out.Header().Get("X-Signed") != "yes" {
		t.Fatalf("expected the callback's header mutation to survive")
	}
}

func TestJWTBearerSignsAndCaches(t *testing.T) {
	signs := 0
	j := &JWTBearer{
		Key: []byte("secret"),
		Claims: func() jwt.MapClaims {
			signs++
			return jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}
		},
	}
	req := transport.NewRequest("GET", mustURL(t, "https://example.com/"), nil, nil)

	out1, err := j.Start(req)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	token1 := out1.Header().Get("Authorization")
	if token1 == "" {
		t.Fatalf("expected an Authorization header")
	}

	out2, err := j.Start(req)
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	token2 := out2.Header().Get("Authorization")
	if token1 != token2 {
		t.Fatalf("expected the cached token to be reused, got %q then %q", token1, token2)
	}
	if signs != 1 {
		t.Fatalf("expected exactly one sign, got %d", signs)
	}
}

func TestJWTBearerResignsNearExpiry(t *testing.T) {
	signs := 0
	j := &JWTBearer{
		Key:         []byte("secret"),
		RefreshSkew: time.Hour, // bigger than the token's lifetime, forces every call to re-sign
		Claims: func() jwt.MapClaims {
			signs++
			return jwt.MapClaims{"exp": time.Now().Add(time.Minute).Unix()}
		},
	}
	req := transport.NewRequest("GET", mustURL(t, "https://example.com/"), nil, nil)

	if _, err := j.Start(req); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := j.Start(req); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if signs != 2 {
		t.Fatalf("expected the near-expiry token to be re-signed on every call, got %d signs", signs)
	}
}

func TestOAuth2InjectsBearerToken(t *testing.T) {
	o := NewOAuth2(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: "abc123",
		TokenType:   "Bearer",
	}))
	req := transport.NewRequest("GET", mustURL(t, "https://example.com/"), nil, nil)
	out, err := o.Start(req)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := out.Header().Get("Authorization"); got != "Bearer abc123" {
		t.Fatalf("Authorization = %q", got)
	}
}

func TestOAuth2ResumeRetriesOnceOnUnauthorized(t *testing.T) {
	calls := 0
	o := NewOAuth2(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: "abc123",
		TokenType:   "Bearer",
	}))
	o.Authorize = func(ctx context.Context, req *transport.Request, resp *transport.Response) error {
		calls++
		return nil
	}
	req := transport.NewRequest("GET", mustURL(t, "https://example.com/"), wireheaders.New(), nil)
	resp := &transport.Response{StatusCode: 401, Header: wireheaders.New(), Request: req}

	retry, err := o.Resume(resp)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if retry == nil {
		t.Fatalf("expected a retry request")
	}
	if calls != 1 {
		t.Fatalf("expected Authorize to run once, got %d", calls)
	}

	if _, err := o.Resume(resp); err != Done {
		t.Fatalf("expected a second 401 to signal Done, got %v", err)
	}
}

func TestOAuth2ResumeIgnoresNonChallengeStatus(t *testing.T) {
	o := NewOAuth2(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "abc123"}))
	req := transport.NewRequest("GET", mustURL(t, "https://example.com/"), wireheaders.New(), nil)
	resp := &transport.Response{StatusCode: 200, Header: wireheaders.New(), Request: req}
	if _, err := o.Resume(resp); err != Done {
		t.Fatalf("expected a 200 to signal Done immediately, got %v", err)
	}
}

func TestDriverStopsOnDone(t *testing.T) {
	d := NewDriver(stubSender{})
	req := transport.NewRequest("GET", mustURL(t, "https://example.com/"), wireheaders.New(), nil)
	resp, err := d.Send(context.Background(), req, &Basic{Username: "u", Password: "p"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected the sender's response to pass through, got %d", resp.StatusCode)
	}
}

type stubSender struct{}

func (stubSender) Send(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	return &transport.Response{StatusCode: 200, Header: wireheaders.New()}, nil
}
