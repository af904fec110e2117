package auth

import (
	"context"

	"golang.org/x/oauth2"

	"github.com/yourusername/voyager/pkg/voyager/transport"
)

// OAuth2 injects a bearer token from an oauth2.TokenSource, refreshing and
// retrying once per 401/403 challenge (SPEC_FULL.md's supplemented §4.9
// flow). Grounded on
// modelcontextprotocol-go-sdk/auth/client.go's OAuthHandler contract:
// TokenSource(ctx) plus an Authorize hook invoked when a request comes
// back unauthorized.
type OAuth2 struct {
	// TokenSource supplies the bearer token for each Start/retry.
	TokenSource oauth2.TokenSource
	// Authorize is called once, the first time a request comes back
	//401/403, before retrying with a freshly-sourced token. It may
	// trigger an interactive or out-of-band re-authorization; a nil
	// Authorize simply retries with whatever TokenSource.Token() returns
	// next (e.g. a refreshing TokenSource).
	Authorize func(ctx context.Context, req *transport.Request, resp *transport.Response) error

	ctx     context.Context
	retried bool
}

// NewOAuth2 builds an OAuth2 flow bound to ctx (used for TokenSource and
// Authorize calls for the lifetime of one Driver.Send).
func NewOAuth2(ctx context.Context, source oauth2.TokenSource) *OAuth2 {
	return &OAuth2{TokenSource: source, ctx: ctx}
}

func (o *OAuth2) RequiresRequestBody() bool  { return false }
func (o *OAuth2) RequiresResponseBody() bool { return false }

func (o *OAuth2) Start(req *transport.Request) (*transport.Request, error) {
	return o.inject(req)
}

func (o *OAuth2) Resume(resp *transport.Response) (*transport.Request, error) {
	if (resp.StatusCode != 401 && resp.StatusCode != 403) || o.retried {
		return nil, Done
	}
	o.retried = true

	if o.Authorize != nil {
		if err := o.Authorize(o.ctx, resp.Request, resp); err != nil {
			return nil, err
		}
	}
	return o.inject(resp.Request)
}

func (o *OAuth2) inject(req *transport.Request) (*transport.Request, error) {
	token, err := o.TokenSource.Token()
	if err != nil {
		return nil, err
	}
	h := req.Header().Clone()
	h.Set("Authorization", token.Type()+" "+token.AccessToken)
	return req.WithHeader(h), nil
}
