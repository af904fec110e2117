package client

import (
	"context"
	"encoding/json"
	neturl "net/url"

	"github.com/yourusername/voyager/pkg/voyager/body"
	"github.com/yourusername/voyager/pkg/voyager/transport"
	"github.com/yourusername/voyager/pkg/voyager/wireheaders"
)

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, rawURL string, opts ...Option) (*transport.Response, error) {
	return c.Request(ctx, "GET", rawURL, opts...)
}

// Head issues a HEAD request.
func (c *Client) Head(ctx context.Context, rawURL string, opts ...Option) (*transport.Response, error) {
	return c.Request(ctx, "HEAD", rawURL, opts...)
}

// Options issues an OPTIONS request.
func (c *Client) Options(ctx context.Context, rawURL string, opts ...Option) (*transport.Response, error) {
	return c.Request(ctx, "OPTIONS", rawURL, opts...)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, rawURL string, opts ...Option) (*transport.Response, error) {
	return c.Request(ctx, "DELETE", rawURL, opts...)
}

// Post issues a POST request carrying content.
func (c *Client) Post(ctx context.Context, rawURL string, content body.ContentStream, opts ...Option) (*transport.Response, error) {
	return c.Request(ctx, "POST", rawURL, append(opts, WithContent(content))...)
}

// Put issues a PUT request carrying content.
func (c *Client) Put(ctx context.Context, rawURL string, content body.ContentStream, opts ...Option) (*transport.Response, error) {
	return c.Request(ctx, "PUT", rawURL, append(opts, WithContent(content))...)
}

// Patch issues a PATCH request carrying content.
func (c *Client) Patch(ctx context.Context, rawURL string, content body.ContentStream, opts ...Option) (*transport.Response, error) {
	return c.Request(ctx, "PATCH", rawURL, append(opts, WithContent(content))...)
}

// JSON encodes v as a JSON request body, setting Content-Type per
// spec.md §9's body-encoding helpers. The stream is replayable (backed by
// an in-memory buffer), so it survives a 307/308 redirect replay.
func JSON(v any) (body.ContentStream, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &jsonStream{ContentStream: body.FromBytes(data)}, nil
}

type jsonStream struct {
	body.ContentStream
}

func (s *jsonStream) AuxHeaders() *wireheaders.Headers {
	h := s.ContentStream.AuxHeaders()
	h.Set("Content-Type", "application/json")
	return h
}

// Form encodes values as an application/x-www-form-urlencoded request
// body.
func Form(values map[string]string) body.ContentStream {
	v := make(neturl.Values, len(values))
	for k, val := range values {
		v.Set(k, val)
	}
	return &formStream{ContentStream: body.FromBytes([]byte(v.Encode()))}
}

type formStream struct {
	body.ContentStream
}

func (s *formStream) AuxHeaders() *wireheaders.Headers {
	h := s.ContentStream.AuxHeaders()
	h.Set("Content-Type", "application/x-www-form-urlencoded")
	return h
}
