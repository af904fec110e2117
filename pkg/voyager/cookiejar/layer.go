package cookiejar

import (
	"context"

	"github.com/yourusername/voyager/pkg/voyager/transport"
)

// Sender is the single-request send this layer wraps, satisfied by
// *transport.ConnectionPool or *proxy.Transport. *redirect.Follower and
// *auth.Driver take an extra argument to Send and do not satisfy it.
type Sender interface {
	Send(ctx context.Context, req *transport.Request) (*transport.Response, error)
}

// Layer implements spec.md §4.10's cookie middleware: inject matching
// cookies into the outgoing request, then extract Set-Cookie from the
// response into the shared Jar.
type Layer struct {
	Sender Sender
	Jar    *Jar
}

// NewLayer wraps sender with jar's cookie injection/extraction.
func NewLayer(sender Sender, jar *Jar) *Layer {
	return &Layer{Sender: sender, Jar: jar}
}

// Send injects req's matching cookies (unless it already carries an
// explicit Cookie header, which callers use to opt out of jar-derived
// cookies for one request), sends it, and extracts the response's
// Set-Cookie entries back into the jar before returning.
func (l *Layer) Send(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	if l.Jar != nil && !req.Header().Has("Cookie") {
		if header := l.Jar.Header(req.URL()); header != "" {
			h := req.Header().Clone()
			h.Set("Cookie", header)
			req = req.WithHeader(h)
		}
	}

	resp, err := l.Sender.Send(ctx, req)
	if err != nil {
		return nil, err
	}

	if l.Jar != nil {
		l.Jar.SetCookies(resp.Request.URL(), resp.Header)
	}
	return resp, nil
}
