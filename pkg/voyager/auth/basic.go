package auth

import (
	"encoding/base64"

	"github.com/yourusername/voyager/pkg/voyager/transport"
)

// Basic injects a static "Authorization: Basic <base64>" header, one-shot
// per spec.md §4.9 and original_source/httpcore/auth.py's HTTPBasicAuth.
type Basic struct {
	Username string
	Password string
}

func (b *Basic) RequiresRequestBody() bool  { return false }
func (b *Basic) RequiresResponseBody() bool { return false }

func (b *Basic) Start(req *transport.Request) (*transport.Request, error) {
	h := req.Header().Clone()
	h.Set("Authorization", "Basic "+b.header())
	return req.WithHeader(h), nil
}

func (b *Basic) Resume(resp *transport.Response) (*transport.Request, error) {
	return nil, Done
}

func (b *Basic) header() string {
	return base64.StdEncoding.EncodeToString([]byte(b.Username + ":" + b.Password))
}

// Function wraps a user-supplied callback as a one-shot flow (spec.md
// §4.9's "Function (user lambda)"). A caller needing a multi-step
// challenge-response scheme implements Flow directly instead.
type Function struct {
	Fn func(req *transport.Request) (*transport.Request, error)
}

func (f *Function) RequiresRequestBody() bool  { return false }
func (f *Function) RequiresResponseBody() bool { return false }

func (f *Function) Start(req *transport.Request) (*transport.Request, error) {
	return f.Fn(req)
}

func (f *Function) Resume(resp *transport.Response) (*transport.Request, error) {
	return nil, Done
}
