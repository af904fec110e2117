package proxy

import (
	"os"
	"strings"

	"github.com/yourusername/voyager/pkg/voyager/url"
)

// Resolve picks the proxy URL (if any) origin should be routed through,
// from the HTTP_PROXY/HTTPS_PROXY/ALL_PROXY/NO_PROXY environment
// variables. NO_PROXY entries match by exact host or suffix (a leading
// "." or bare domain both match subdomains), and "*" disables proxying
// for every origin.
//
// Grounded on original_source/httpcore/adapters/environment.py's
// merge_environment_options hook point (left a stub in the source); the
// matching rules themselves follow the de facto standard curl and Python's
// urllib.request.getproxies_environment implement, since no reference
// implementation for this piece exists in the corpus.
func Resolve(origin url.Origin) (*url.URL, bool) {
	if noProxyMatches(origin.Host, os.Getenv("NO_PROXY")) {
		return nil, false
	}

	var raw string
	switch origin.Scheme {
	case "https":
		raw = firstNonEmpty(os.Getenv("HTTPS_PROXY"), os.Getenv("https_proxy"))
	case "http":
		raw = firstNonEmpty(os.Getenv("HTTP_PROXY"), os.Getenv("http_proxy"))
	}
	if raw == "" {
		raw = firstNonEmpty(os.Getenv("ALL_PROXY"), os.Getenv("all_proxy"))
	}
	if raw == "" {
		return nil, false
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, false
	}
	return u, true
}

func noProxyMatches(host, noProxy string) bool {
	if noProxy == "" {
		return false
	}
	for _, entry := range strings.Split(noProxy, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if entry == "*" {
			return true
		}
		entry = strings.TrimPrefix(entry, ".")
		if host == entry || strings.HasSuffix(host, "."+entry) {
			return true
		}
	}
	return false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
