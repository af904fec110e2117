// Package url wraps net/url with the normalization and origin semantics
// the connection pool and redirect layer rely on: lowercased scheme, IDNA
// host encoding, default-port elision, and a hashable Origin key.
package url

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

// URL is a normalized, immutable URL value.
type URL struct {
	raw *url.URL
}

// Origin is the (scheme, host, port) triple that keys the connection pool.
type Origin struct {
	Scheme string
	Host   string
	Port   int
}

// String renders the origin as "scheme://host:port", the pool's map key.
func (o Origin) String() string {
	return o.Scheme + "://" + o.Host + ":" + strconv.Itoa(o.Port)
}

// DefaultPort returns the scheme's default port, or 0 if unknown.
func DefaultPort(scheme string) int {
	switch scheme {
	case "https", "wss":
		return 443
	case "http", "ws":
		return 80
	default:
		return 0
	}
}

// Parse parses and normalizes a URL string.
func Parse(raw string) (*URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("url: invalid URL %q: %w", raw, err)
	}
	return normalize(u)
}

// Resolve resolves ref against base, the way a Location header is resolved
// against the original request URL (spec.md §4.8).
func (u *URL) Resolve(ref string) (*URL, error) {
	parsed, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("url: invalid redirect location %q: %w", ref, err)
	}
	resolved := u.raw.ResolveReference(parsed)
	return normalize(resolved)
}

func normalize(u *url.URL) (*URL, error) {
	if u.Scheme == "" {
		return nil, fmt.Errorf("url: missing scheme in %q", u.String())
	}
	scheme := strings.ToLower(u.Scheme)
	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("url: missing host in %q", u.String())
	}
	encodedHost, err := idna.Lookup.ToASCII(strings.ToLower(host))
	if err != nil {
		// Hosts that are already ASCII (or IP literals) may not round-trip
		// through strict IDNA lookup; fall back to the lowercased original.
		encodedHost = strings.ToLower(host)
	}

	port := u.Port()
	out := *u
	out.Scheme = scheme
	out.User = u.User
	if port != "" && DefaultPort(scheme) != 0 {
		if p, convErr := strconv.Atoi(port); convErr == nil && p == DefaultPort(scheme) {
			port = ""
		}
	}
	if port == "" {
		out.Host = encodedHost
	} else {
		out.Host = encodedHost + ":" + port
	}
	return &URL{raw: &out}, nil
}

// Scheme returns the lowercased scheme.
func (u *URL) Scheme() string { return u.raw.Scheme }

// Hostname returns the IDNA-encoded, lowercased host without port.
func (u *URL) Hostname() string { return u.raw.Hostname() }

// Port returns the explicit or scheme-defaulted port.
func (u *URL) Port() int {
	if p := u.raw.Port(); p != "" {
		n, _ := strconv.Atoi(p)
		return n
	}
	return DefaultPort(u.Scheme())
}

// Path returns the URL path, defaulting to "/".
func (u *URL) Path() string {
	if u.raw.Path == "" {
		return "/"
	}
	return u.raw.Path
}

// Query returns the raw query string (without "?").
func (u *URL) Query() string { return u.raw.RawQuery }

// Fragment returns the raw fragment (without "#").
func (u *URL) Fragment() string { return u.raw.Fragment }

// Userinfo returns the embedded user:password, if any.
func (u *URL) Userinfo() *url.Userinfo { return u.raw.User }

// Authority returns the host, plus ":port" when the port is not the
// scheme default, without userinfo, for the Host header and HTTP/2
// ":authority" pseudo-header.
func (u *URL) Authority() string {
	host := u.Hostname()
	port := u.Port()
	if port == DefaultPort(u.Scheme()) {
		return host
	}
	return host + ":" + strconv.Itoa(port)
}

// FullPath returns path + "?" + query, the HTTP/1.1 request target and the
// HTTP/2 ":path" pseudo-header.
func (u *URL) FullPath() string {
	p := u.Path()
	if u.Query() != "" {
		return p + "?" + u.Query()
	}
	return p
}

// IsSecure reports whether the scheme is https.
func (u *URL) IsSecure() bool { return u.Scheme() == "https" }

// Origin returns the (scheme, host, port) triple for pool lookups.
func (u *URL) Origin() Origin {
	return Origin{Scheme: u.Scheme(), Host: u.Hostname(), Port: u.Port()}
}

// String renders the normalized URL, including any userinfo (Authority
// and Origin omit it; Userinfo returns it on its own).
func (u *URL) String() string {
	return u.raw.String()
}

// WithFragment returns a copy of u with fragment replaced.
func (u *URL) WithFragment(fragment string) *URL {
	out := *u.raw
	out.Fragment = fragment
	return &URL{raw: &out}
}

// WithQuery returns a copy of u with query appended to its raw query
// string, joined by "&" when one is already there (used to merge a client's default
// params with a request's own, per spec.md §4.11).
func (u *URL) WithQuery(query string) *URL {
	out := *u.raw
	if out.RawQuery == "" {
		out.RawQuery = query
	} else if query != "" {
		out.RawQuery = out.RawQuery + "&" + query
	}
	return &URL{raw: &out}
}

// QueryEscape percent-encodes s for use in a query string component.
func QueryEscape(s string) string { return url.QueryEscape(s) }

// Equal reports whether two URLs have identical unsplit forms (spec.md §3).
func (u *URL) Equal(other *URL) bool {
	if u == nil || other == nil {
		return u == other
	}
	return u.String() == other.String()
}
