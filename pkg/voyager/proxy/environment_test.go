package proxy

import (
	"testing"

	"github.com/yourusername/voyager/pkg/voyager/url"
)

func withEnv(t *testing.T, vars map[string]string) {
	t.Helper()
	for k, v := range vars {
		t.Setenv(k, v)
	}
}

func httpsOrigin(host string) url.Origin {
	return url.Origin{Scheme: "https", Host: host, Port: 443}
}

func TestResolvePrefersSchemeSpecificProxy(t *testing.T) {
	withEnv(t, map[string]string{
		"HTTPS_PROXY": "https://secure-proxy.example:8443",
		"HTTP_PROXY":  "http://plain-proxy.example:8080",
		"ALL_PROXY":   "http://fallback-proxy.example:3128",
		"NO_PROXY":    "",
	})
	u, ok := Resolve(httpsOrigin("api.example.com"))
	if !ok {
		t.Fatalf("expected a proxy to be resolved")
	}
	if got := u.String(); got != "https://secure-proxy.example:8443" {
		t.Fatalf("Resolve = %q", got)
	}
}

func TestResolveFallsBackToAllProxy(t *testing.T) {
	withEnv(t, map[string]string{
		"HTTPS_PROXY": "",
		"HTTP_PROXY":  "",
		"ALL_PROXY":   "http://fallback-proxy.example:3128",
		"NO_PROXY":    "",
	})
	u, ok := Resolve(httpsOrigin("api.example.com"))
	if !ok {
		t.Fatalf("expected ALL_PROXY to apply")
	}
	if got := u.String(); got != "http://fallback-proxy.example:3128" {
		t.Fatalf("Resolve = %q", got)
	}
}

func TestResolveReturnsFalseWithoutAnyProxyVar(t *testing.T) {
	withEnv(t, map[string]string{
		"HTTPS_PROXY": "",
		"HTTP_PROXY":  "",
		"ALL_PROXY":   "",
		"NO_PROXY":    "",
	})
	if _, ok := Resolve(httpsOrigin("api.example.com")); ok {
		t.Fatalf("expected no proxy to be resolved")
	}
}

func TestResolveHonorsNoProxyExactHost(t *testing.T) {
	withEnv(t, map[string]string{
		"HTTPS_PROXY": "https://secure-proxy.example:8443",
		"NO_PROXY":    "api.example.com",
	})
	if _, ok := Resolve(httpsOrigin("api.example.com")); ok {
		t.Fatalf("expected NO_PROXY exact match to suppress the proxy")
	}
}

func TestResolveHonorsNoProxySuffix(t *testing.T) {
	withEnv(t, map[string]string{
		"HTTPS_PROXY": "https://secure-proxy.example:8443",
		"NO_PROXY":    ".example.com",
	})
	if _, ok := Resolve(httpsOrigin("api.example.com")); ok {
		t.Fatalf("expected NO_PROXY suffix match to suppress the proxy")
	}
}

func TestResolveHonorsNoProxyWildcard(t *testing.T) {
	withEnv(t, map[string]string{
		"HTTPS_PROXY": "https://secure-proxy.example:8443",
		"NO_PROXY":    "*",
	})
	if _, ok := Resolve(httpsOrigin("api.example.com")); ok {
		t.Fatalf("expected NO_PROXY wildcard to suppress every origin")
	}
}

func TestResolveNoProxyDoesNotMatchUnrelatedHost(t *testing.T) {
	withEnv(t, map[string]string{
		"HTTPS_PROXY": "https://secure-proxy.example:8443",
		"NO_PROXY":    "other.example.com",
	})
	u, ok := Resolve(httpsOrigin("api.example.com"))
	if !ok {
		t.Fatalf("expected the proxy to still apply to an unrelated host")
	}
	if got := u.String(); got != "https://secure-proxy.example:8443" {
		t.Fatalf("Resolve = %q", got)
	}
}
