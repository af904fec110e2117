// Package cookiejar implements spec.md §4.10's cookie layer: a Jar that
// extracts Set-Cookie headers from responses and injects matching cookies
// into outgoing requests, shared at the client level so extraction during
// a redirect chain is visible to later requests (spec.md §4.10, §4.8
// "Always strip Cookie; the cookie layer will re-derive from the jar on
// the next send").
//
// Grounded on original_source/httpcore/adapters/cookies.py for the
// wrap-a-Sender shape (the source's CookieAdapter is a thin pass-through
// over an external jar implementation it never defines itself); domain/path
// matching follows RFC 6265bis since spec.md §9's third Open Question
// leaves public-suffix handling to the implementation and no public-suffix
// library is present anywhere in the example corpus (see DESIGN.md).
package cookiejar

import (
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	voyagerurl "github.com/yourusername/voyager/pkg/voyager/url"
	"github.com/yourusername/voyager/pkg/voyager/wireheaders"
)

var errUnparsableTime = errors.New("cookiejar: unparsable Expires value")

// Cookie is spec.md §3's Cookie: name, value, domain, path, secure flag,
// expiry. A zero Expires means a session cookie (no persistent expiry).
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Secure   bool
	HTTPOnly bool
	Expires  time.Time
	hostOnly bool
}

// Jar stores cookies keyed by the domain attribute they were set for and
// implements the usual domain/path matching rules for both extraction and
// injection. The zero value is not usable; construct with NewJar.
type Jar struct {
	mu      sync.Mutex
	entries map[string]map[string]*Cookie // domain -> "path\x00name" -> cookie
}

// NewJar constructs an empty Jar.
func NewJar() *Jar {
	return &Jar{entries: make(map[string]map[string]*Cookie)}
}

// SetCookies parses every Set-Cookie value in header and stores (or
// deletes, for an expired/Max-Age=0 cookie) the resulting entries against
// the origin host u, per spec.md §4.10 "extract-from-response".
func (j *Jar) SetCookies(u *voyagerurl.URL, header *wireheaders.Headers) {
	raws := header.Values("Set-Cookie")
	if len(raws) == 0 {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, raw := range raws {
		c, deleted, ok := parseSetCookie(raw, u.Hostname())
		if !ok {
			continue
		}
		bucket, exists := j.entries[c.Domain]
		if !exists {
			if deleted {
				continue
			}
			bucket = make(map[string]*Cookie)
			j.entries[c.Domain] = bucket
		}
		key := c.Path + "\x00" + c.Name
		if deleted {
			delete(bucket, key)
			continue
		}
		bucket[key] = c
	}
}

// Cookies returns every stored cookie that matches u under the usual
// domain/path/secure rules, in no particular order (it can differ between
// calls).
func (j *Jar) Cookies(u *voyagerurl.URL) []*Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := time.Now()
	host := u.Hostname()
	path := u.Path()
	secure := u.IsSecure()

	var out []*Cookie
	for domain, bucket := range j.entries {
		if !domainMatches(host, domain) {
			continue
		}
		for key, c := range bucket {
			if !c.Expires.IsZero() && !c.Expires.After(now) {
				delete(bucket, key)
				continue
			}
			if c.hostOnly && host != domain {
				continue
			}
			if c.Secure && !secure {
				continue
			}
			if !pathMatches(path, c.Path) {
				continue
			}
			out = append(out, c)
		}
	}
	return out
}

// Header builds the single Cookie header value spec.md §4.10 says to
// serialize matching entries into ("name=value; name2=value2"), or "" if
// nothing matches.
func (j *Jar) Header(u *voyagerurl.URL) string {
	cookies := j.Cookies(u)
	if len(cookies) == 0 {
		return ""
	}
	parts := make([]string, len(cookies))
	for i, c := range cookies {
		parts[i] = c.Name + "=" + c.Value
	}
	return strings.Join(parts, "; ")
}

func domainMatches(host, domain string) bool {
	host = strings.ToLower(host)
	domain = strings.ToLower(domain)
	if host == domain {
		return true
	}
	return strings.HasSuffix(host, "."+domain)
}

func pathMatches(requestPath, cookiePath string) bool {
	if cookiePath == "" || cookiePath == "/" {
		return true
	}
	if !strings.HasPrefix(requestPath, cookiePath) {
		return false
	}
	if len(requestPath) == len(cookiePath) {
		return true
	}
	return strings.HasSuffix(cookiePath, "/") || requestPath[len(cookiePath)] == '/'
}

// parseSetCookie parses one Set-Cookie header value against the host that
// sent it. deleted reports a Max-Age=0 or past-Expires cookie, which the
// caller should remove rather than store. ok is false for a malformed or
// (conservatively) PSL-rejected cookie, per spec.md §9's Open Question 3:
// a bare single-label Domain attribute (e.g. "Domain=com") is rejected as
// a stand-in for public-suffix enforcement, since no PSL dependency is
// present in the example corpus.
func parseSetCookie(raw, requestHost string) (c *Cookie, deleted, ok bool) {
	parts := strings.Split(raw, ";")
	if len(parts) == 0 {
		return nil, false, false
	}
	nameValue := strings.SplitN(strings.TrimSpace(parts[0]), "=", 2)
	if len(nameValue) != 2 {
		return nil, false, false
	}
	name := strings.TrimSpace(nameValue[0])
	value := strings.TrimSpace(nameValue[1])
	if name == "" {
		return nil, false, false
	}

	out := &Cookie{Name: name, Value: value, Path: "/", Domain: strings.ToLower(requestHost), hostOnly: true}
	var maxAge *int
	var expiresSet bool

	for _, attr := range parts[1:] {
		attr = strings.TrimSpace(attr)
		if attr == "" {
			continue
		}
		kv := strings.SplitN(attr, "=", 2)
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		var val string
		if len(kv) == 2 {
			val = strings.TrimSpace(kv[1])
		}
		switch key {
		case "domain":
			d := strings.ToLower(strings.TrimPrefix(val, "."))
			if d == "" {
				continue
			}
			if !strings.Contains(d, ".") {
				// Conservative stand-in for public-suffix rejection
				// (spec.md §9 Open Question 3).
				return nil, false, false
			}
			out.Domain = d
			out.hostOnly = false
		case "path":
			if strings.HasPrefix(val, "/") {
				out.Path = val
			}
		case "secure":
			out.Secure = true
		case "httponly":
			out.HTTPOnly = true
		case "max-age":
			if n, err := strconv.Atoi(val); err == nil {
				maxAge = &n
			}
		case "expires":
			if t, err := http1123OrRFC850(val); err == nil {
				out.Expires = t
				expiresSet = true
			}
		}
	}

	if maxAge != nil {
		if *maxAge <= 0 {
			return out, true, true
		}
		out.Expires = time.Now().Add(time.Duration(*maxAge) * time.Second)
	} else if expiresSet && !out.Expires.After(time.Now()) {
		return out, true, true
	}

	if out.Domain != "" && out.Domain != strings.ToLower(requestHost) && !out.hostOnly {
		if !domainMatches(requestHost, out.Domain) {
			// Domain attribute doesn't cover the responding host: reject
			// per RFC 6265 §5.3 step 6 rather than silently widening scope.
			return nil, false, false
		}
	}

	return out, false, true
}

func http1123OrRFC850(v string) (time.Time, error) {
	for _, layout := range []string{time.RFC1123, time.RFC1123Z, time.RFC850, time.ANSIC} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errUnparsableTime
}
