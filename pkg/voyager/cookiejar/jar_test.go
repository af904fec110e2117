package cookiejar

import (
	"testing"
	"time"

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

func setCookieHeader(values ...string) *wireheaders.Headers {
	h := wireheaders.New()
	for _, v := range values {
		h.Add("Set-Cookie", v)
	}
	return h
}

func TestJarRoundTrip(t *testing.T) {
	jar := NewJar()
	u := mustURL(t, "https://example.com/account")
	jar.SetCookies(u, setCookieHeader("session=abc123; Path=/; HttpOnly"))

	header := jar.Header(mustURL(t, "https://example.com/account/settings"))
	if header != "session=abc123" {
		t.Fatalf("Header = %q, want session=abc123", header)
	}
}

func TestJarDomainScoping(t *testing.T) {
	jar := NewJar()
	jar.SetCookies(mustURL(t, "https://example.com/"), setCookieHeader("a=1"))

	if got := jar.Header(mustURL(t, "https://other.com/")); got != "" {
		t.Fatalf("cross-origin Header = %q, want empty", got)
	}
}

func TestJarDomainAttributeCoversSubdomains(t *testing.T) {
	jar := NewJar()
	jar.SetCookies(mustURL(t, "https://www.example.com/"), setCookieHeader("a=1; Domain=example.com"))

	if got := jar.Header(mustURL(t, "https://api.example.com/")); got != "a=1" {
		t.Fatalf("subdomain Header = %q, want a=1", got)
	}
}

func TestJarSecureCookieNotSentOverPlainHTTP(t *testing.T) {
	jar := NewJar()
	jar.SetCookies(mustURL(t, "https://example.com/"), setCookieHeader("a=1; Secure"))

	if got := jar.Header(mustURL(t, "http://example.com/")); got != "" {
		t.Fatalf("insecure Header = %q, want empty", got)
	}
	if got := jar.Header(mustURL(t, "https://example.com/")); got != "a=1" {
		t.Fatalf("secure Header = %q, want a=1", got)
	}
}

func TestJarPathScoping(t *testing.T) {
	jar := NewJar()
	jar.SetCookies(mustURL(t, "https://example.com/admin/login"), setCookieHeader("a=1; Path=/admin"))

	if got := jar.Header(mustURL(t, "https://example.com/admin/users")); got != "a=1" {
		t.Fatalf("in-path Header = %q, want a=1", got)
	}
	if got := jar.Header(mustURL(t, "https://example.com/public")); got != "" {
		t.Fatalf("out-of-path Header = %q, want empty", got)
	}
}

func TestJarMaxAgeZeroDeletes(t *testing.T) {
	jar := NewJar()
	u := mustURL(t, "https://example.com/")
	jar.SetCookies(u, setCookieHeader("a=1"))
	jar.SetCookies(u, setCookieHeader("a=; Max-Age=0"))

	if got := jar.Header(u); got != "" {
		t.Fatalf("Header after deletion = %q, want empty", got)
	}
}

func TestJarExpiredCookieNotReturned(t *testing.T) {
	jar := NewJar()
	u := mustURL(t, "https://example.com/")
	jar.entries["example.com"] = map[string]*Cookie{
		"/\x00a": {Name: "a", Value: "1", Domain: "example.com", Path: "/", Expires: time.Now().Add(-time.Hour)},
	}

	if got := jar.Header(u); got != "" {
		t.Fatalf("Header for expired cookie = %q, want empty", got)
	}
}

func TestJarRejectsBareTLDDomain(t *testing.T) {
	jar := NewJar()
	jar.SetCookies(mustURL(t, "https://example.com/"), setCookieHeader("a=1; Domain=com"))

	if got := jar.Header(mustURL(t, "https://other.com/")); got != "" {
		t.Fatalf("bare-TLD domain leaked cross-origin: Header = %q", got)
	}
	if got := jar.Header(mustURL(t, "https://example.com/")); got != "" {
		t.Fatalf("bare-TLD domain cookie was stored: Header = %q, want rejected entirely", got)
	}
}

func TestJarMultipleCookies(t *testing.T) {
	jar := NewJar()
	u := mustURL(t, "https://example.com/")
	jar.SetCookies(u, setCookieHeader("a=1; Path=/", "b=2; Path=/"))

	got := jar.Header(u)
	if got != "a=1; b=2" && got != "b=2; a=1" {
		t.Fatalf("Header = %q, want both a=1 and b=2", got)
	}
}
