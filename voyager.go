// Package voyager exposes package-level convenience functions
// (Get/Post/Put/...) over a lazily-constructed default client, mirroring
// original_source/httpx/_api.py's module-level request/get/post helpers.
// These are thin wrappers with no behavior of their own beyond delegating
// to one shared client.Client (so its connection pool is shared across
// calls); reach for client.NewClient directly for non-default config.
package voyager

import (
	"context"
	"sync"

	"github.com/yourusername/voyager/pkg/voyager/body"
	"github.com/yourusername/voyager/pkg/voyager/client"
	"github.com/yourusername/voyager/pkg/voyager/transport"
)

var (
	defaultClientOnce sync.Once
	defaultClient     *client.Client
	defaultClientErr  error
)

// Default returns the package-level client these convenience functions
// share, constructing it on first use behind a sync.Once rather than at
// package init.
func Default() (*client.Client, error) {
	defaultClientOnce.Do(func() {
		defaultClient, defaultClientErr = client.NewClient(client.Config{AllowRedirects: true})
	})
	return defaultClient, defaultClientErr
}

// Get issues a GET against the default client.
func Get(ctx context.Context, url string, opts ...client.Option) (*transport.Response, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	return c.Get(ctx, url, opts...)
}

// Head issues a HEAD against the default client.
func Head(ctx context.Context, url string, opts ...client.Option) (*transport.Response, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	return c.Head(ctx, url, opts...)
}

// Options issues an OPTIONS against the default client.
func Options(ctx context.Context, url string, opts ...client.Option) (*transport.Response, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	return c.Options(ctx, url, opts...)
}

// Delete issues a DELETE against the default client.
func Delete(ctx context.Context, url string, opts ...client.Option) (*transport.Response, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	return c.Delete(ctx, url, opts...)
}

// Post issues a POST against the default client.
func Post(ctx context.Context, url string, content body.ContentStream, opts ...client.Option) (*transport.Response, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	return c.Post(ctx, url, content, opts...)
}

// Put issues a PUT against the default client.
func Put(ctx context.Context, url string, content body.ContentStream, opts ...client.Option) (*transport.Response, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	return c.Put(ctx, url, content, opts...)
}

// Patch issues a PATCH against the default client.
func Patch(ctx context.Context, url string, content body.ContentStream, opts ...client.Option) (*transport.Response, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	return c.Patch(ctx, url, content, opts...)
}
