// Package redirect implements spec.md §4.8's redirect layer: a thin wrapper
// around the pool's single-request transport that follows 3xx responses,
// rewriting method, URL, headers, and body per the browsers' de-facto
// rules, detecting loops, and enforcing a maximum hop count.
//
// Grounded on original_source/httpcore/redirects.py, the one place the
// spec's distillation left the exact rewriting rules implicit; the
// teacher (shockwave) never follows redirects at all (it is a server),
// so this package has no teacher-code analogue to extend.
package redirect

import (
	"context"
	"io"

	"github.com/yourusername/voyager/pkg/voyager/httperror"
	"github.com/yourusername/voyager/pkg/voyager/transport"
	"github.com/yourusername/voyager/pkg/voyager/url"
)

// Sender is the single-request send this layer wraps, satisfied by
// *transport.ConnectionPool.
type Sender interface {
	Send(ctx context.Context, req *transport.Request) (*transport.Response, error)
}

// DefaultMaxRedirects matches the common browser/httpx default.
const DefaultMaxRedirects = 20

// Follower drives a request through however many redirects it meets.
type Follower struct {
	Sender       Sender
	MaxRedirects int
}

// NewFollower builds a Follower with DefaultMaxRedirects if maxRedirects
// is zero.
func NewFollower(sender Sender, maxRedirects int) *Follower {
	if maxRedirects == 0 {
		maxRedirects = DefaultMaxRedirects
	}
	return &Follower{Sender: sender, MaxRedirects: maxRedirects}
}

// Send drives req to completion, following redirects if allowRedirects is
// true. The returned Response's History holds every intermediate response
// walked through, each with its body already fully drained (spec.md
// §4.8 step 3).
func (f *Follower) Send(ctx context.Context, req *transport.Request, allowRedirects bool) (*transport.Response, error) {
	visited := map[string]bool{req.URLString(): true}
	var history []*transport.Response
	current := req

	for {
		resp, err := f.Sender.Send(ctx, current)
		if err != nil {
			return nil, err
		}

		if !allowRedirects || !isRedirectStatus(resp.StatusCode) {
			resp.History = history
			return resp, nil
		}

		location := resp.Header.Get("Location")
		if location == "" {
			resp.History = history
			return resp, nil
		}

		next, err := nextRequest(current, resp, location)
		if err != nil {
			resp.Close()
			return nil, err
		}

		// Drain and close the hop's body before moving on, per spec.md
		// §4.8 step 3 ("with its body fully read"). Draining to EOF
		// already triggers Response.Close via Read; the explicit Close
		// only covers a short body that never reaches EOF through Copy
		// (e.g. zero-length), since Close is idempotent.
		io.Copy(io.Discard, resp)
		if !resp.IsClosed() {
			resp.Close()
		}
		history = append(history, resp)

		if len(history) > f.MaxRedirects {
			return nil, &httperror.RedirectError{Kind: httperror.RedirectTooMany, Request: current}
		}
		if visited[next.URLString()] {
			return nil, &httperror.RedirectError{Kind: httperror.RedirectLoop, Request: current, URL: next.URLString()}
		}
		visited[next.URLString()] = true

		current = next
	}
}

func isRedirectStatus(status int) bool {
	switch status {
	case 301, 302, 303, 307, 308:
		return true
	default:
		return false
	}
}

// nextRequest computes the redirected request per spec.md §4.8's method,
// URL, header, and body rewriting rules.
func nextRequest(current *transport.Request, resp *transport.Response, location string) (*transport.Request, error) {
	nextURL, err := current.URL().Resolve(location)
	if err != nil {
		return nil, &httperror.RedirectError{Kind: httperror.RedirectInvalidLocation, Request: current, URL: location}
	}
	if nextURL.Scheme() != "http" && nextURL.Scheme() != "https" {
		return nil, &httperror.RedirectError{Kind: httperror.RedirectInvalidLocation, Request: current, URL: nextURL.String()}
	}
	if nextURL.Fragment() == "" && current.URL().Fragment() != "" {
		nextURL = nextURL.WithFragment(current.URL().Fragment())
	}

	method := rewriteMethod(resp.StatusCode, current.Method())
	methodChanged := method != current.Method()

	header := current.Header().Clone()
	if methodChanged {
		header.Del("Content-Length")
		header.Del("Transfer-Encoding")
	}
	if originChanged(current.URL(), nextURL) && !isHTTPToHTTPSUpgrade(current.URL(), nextURL) {
		header.Del("Authorization")
	}
	header.Del("Cookie")

	nextBody := current.Body()
	if methodChanged {
		nextBody = nil
	} else if nextBody != nil {
		if !nextBody.CanReplay() {
			return nil, &httperror.RedirectError{Kind: httperror.RedirectBodyUnavailable, Request: current}
		}
		if err := nextBody.Reset(); err != nil {
			return nil, &httperror.RedirectError{Kind: httperror.RedirectBodyUnavailable, Request: current}
		}
	}

	next := current.WithURL(nextURL).WithMethod(method).WithHeader(header).WithBody(nextBody)
	return next, nil
}

func rewriteMethod(status int, method string) string {
	switch status {
	case 301:
		if method == "POST" {
			return "GET"
		}
		return method
	case 302, 303:
		if method == "HEAD" {
			return method
		}
		return "GET"
	default: // 307, 308
		return method
	}
}

func originChanged(a, b *url.URL) bool {
	return a.Origin() != b.Origin()
}

func isHTTPToHTTPSUpgrade(a, b *url.URL) bool {
	return a.Scheme() == "http" && b.Scheme() == "https" && a.Hostname() == b.Hostname()
}
