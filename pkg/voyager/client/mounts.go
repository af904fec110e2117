// Package client implements spec.md §4.11's client façade: default
// headers/params/cookies/timeouts/auth plus a base URL, dispatching each
// request to the first mounted transport whose URL pattern matches (used
// to attach per-origin proxies), falling back to the default transport.
//
// Grounded on original_source/httpx/_transports/mounts.py's URLPattern and
// Mounts classes — the teacher (shockwave) has no client façade or mount
// concept at all, being server-side, so this package (and mounts.go in
// particular) has no teacher-code analogue to extend.
package client

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/yourusername/voyager/pkg/voyager/transport"
	"github.com/yourusername/voyager/pkg/voyager/url"
)

// Transport is the single-request send a mount (or the client's default)
// provides, satisfied by *transport.ConnectionPool, *proxy.Transport, or
// any caller-supplied stand-in (e.g. in tests).
type Transport interface {
	Send(ctx context.Context, req *transport.Request) (*transport.Response, error)
}

// pattern is a parsed mount key ("scheme://host[:port]"), mirroring
// original_source/httpx/_transports/mounts.py's URLPattern: "all" or ""
// scheme matches any scheme, "*" or "" host matches any host, "*.example.com"
// matches only strict subdomains, and an explicit port requires an exact
// match.
type pattern struct {
	raw    string
	scheme string
	host   string // "" = any; "*."-prefixed = subdomain suffix match
	port   int // 0 = any (ports are never 0 in a real URL)
}

// parsePattern parses a mount key. An empty string matches everything
// (used for the default/fallback transport, registered like "all://" in
// the source).
func parsePattern(raw string) (pattern, error) {
	if raw == "" {
		return pattern{raw: raw}, nil
	}
	u, err := url.Parse(ensureScheme(raw))
	if err != nil {
		return pattern{}, fmt.Errorf("client: invalid mount pattern %q: %w", raw, err)
	}
	p := pattern{raw: raw}
	if u.Scheme() != "all" {
		p.scheme = u.Scheme()
	}
	host := u.Hostname()
	if host != "*" {
		p.host = host
	}
	if strings.Contains(raw, ":") && hasExplicitPort(raw) {
		p.port = u.Port()
	}
	return p, nil
}

// ensureScheme lets bare patterns like "all://" parse through net/url
// (which requires a host to follow "://"); "all://" alone has an empty
// host, which our url.Parse would reject as "missing host", so we special
// case it to the host wildcard.
func ensureScheme(raw string) string {
	if strings.HasSuffix(raw, "://") {
		return raw + "*"
	}
	return raw
}

func hasExplicitPort(raw string) bool {
	idx := strings.LastIndex(raw, ":")
	schemeEnd := strings.Index(raw, "://")
	return idx > schemeEnd+2
}

func (p pattern) matches(origin url.Origin) bool {
	if p.scheme != "" && p.scheme != origin.Scheme {
		return false
	}
	if p.host != "" {
		if strings.HasPrefix(p.host, "*.") {
			domain := p.host[2:]
			if !strings.HasSuffix(origin.Host, "."+domain) {
				return false
			}
		} else if p.host != origin.Host {
			return false
		}
	}
	if p.port != 0 && p.port != origin.Port {
		return false
	}
	return true
}

// priorityKey ranks patterns most-specific-first: port-qualified beats
// unqualified, longer host beats shorter, longer scheme beats shorter
// (spec.md §4.11).
type priorityKey struct {
	port, host, scheme int
}

func (a priorityKey) moreSpecificThan(b priorityKey) bool {
	if a.port != b.port {
		return a.port > b.port
	}
	if a.host != b.host {
		return a.host > b.host
	}
	return a.scheme > b.scheme
}

func (p pattern) priority() priorityKey {
	portPriority := 0
	if p.port != 0 {
		portPriority = 1
	}
	return priorityKey{port: portPriority, host: len(p.host), scheme: len(p.scheme)}
}

// mount pairs a parsed pattern with the transport it routes to.
type mount struct {
	pattern   pattern
	transport Transport
}

// Mounts holds an ordered (most-specific-first) set of pattern→transport
// routes, as spec.md §4.11 describes: "the client dispatches to the
// transport of the first matching pattern."
type Mounts struct {
	entries []mount
}

// NewMounts builds a Mounts from a pattern→Transport map, pre-sorted by
// priority.
func NewMounts(routes map[string]Transport) (*Mounts, error) {
	m := &Mounts{}
	for key, t := range routes {
		p, err := parsePattern(key)
		if err != nil {
			return nil, err
		}
		m.entries = append(m.entries, mount{pattern: p, transport: t})
	}
	sort.SliceStable(m.entries, func(i, j int) bool {
		return m.entries[i].pattern.priority().moreSpecificThan(m.entries[j].pattern.priority())
	})
	return m, nil
}

// Resolve returns the transport of the first pattern matching origin, or
// (nil, false) if none do.
func (m *Mounts) Resolve(origin url.Origin) (Transport, bool) {
	if m == nil {
		return nil, false
	}
	for _, e := range m.entries {
		if e.pattern.matches(origin) {
			return e.transport, true
		}
	}
	return nil, false
}
