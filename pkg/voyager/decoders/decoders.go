// Package decoders implements Content-Encoding negotiation and
// decompression, applied by client.Client after the core returns the raw
// byte stream (content codecs are an external collaborator to the core
// transport per spec.md §1, but the façade still needs to speak them to
// be useful against real servers).
//
// Grounded on original_source/httpcore/decoders.py, which stubs out
// Identity/Deflate/GZip/Brotli decoders behind a common decode/flush
// shape; we fill in the three real ones against the klauspost/brotli
// libraries instead of leaving them commented out.
package decoders

import (
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	kflate "github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
)

// Decoder wraps a single Content-Encoding's decompression stream.
type Decoder interface {
	io.ReadCloser
}

// Registry maps a Content-Encoding token to the decoder that understands
// it, and reports which tokens to advertise via Accept-Encoding.
type Registry interface {
	// Decode wraps r with the decompressor for encoding, or returns r
	// unchanged (wrapped in a no-op closer) for "identity".
	Decode(encoding string, r io.Reader) (Decoder, error)
	// AcceptEncoding aggregates the registry's known encodings into an
	// Accept-Encoding header value, identity always excluded per
	// spec.md §6 ("identity is never advertised").
	AcceptEncoding() string
}

type registry struct {
	order []string
}

// Default returns the registry wired to gzip, br, and deflate, in the
// preference order a server should read Accept-Encoding.
func Default() Registry {
	return &registry{order: []string{"gzip", "br", "deflate"}}
}

func (reg *registry) AcceptEncoding() string {
	out := ""
	for i, enc := range reg.order {
		if i > 0 {
			out += ", "
		}
		out += enc
	}
	return out
}

func (reg *registry) Decode(encoding string, r io.Reader) (Decoder, error) {
	switch encoding {
	case "", "identity":
		return io.NopCloser(r), nil
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("voyager/decoders: gzip: %w", err)
		}
		return gz, nil
	case "deflate":
		return &deflateDecoder{r: kflate.NewReader(r)}, nil
	case "br":
		return &brotliDecoder{r: brotli.NewReader(r)}, nil
	default:
		return nil, fmt.Errorf("voyager/decoders: unsupported Content-Encoding %q", encoding)
	}
}

// deflateDecoder adapts klauspost/compress/flate's raw-deflate reader.
type deflateDecoder struct {
	r io.ReadCloser
}

func (d *deflateDecoder) Read(p []byte) (int, error) { return d.r.Read(p) }
func (d *deflateDecoder) Close() error                { return d.r.Close() }

type brotliDecoder struct {
	r *brotli.Reader
}

func (d *brotliDecoder) Read(p []byte) (int, error) { return d.r.Read(p) }
func (d *brotliDecoder) Close() error                { return nil }

// chainedCloser reads from the decompressor but closes both it and the
// underlying wire body, so unwrapping a codec never leaks the inner
// stream's Close (and, transitively, the connection it owns).
type chainedCloser struct {
	Decoder
	inner io.Closer
}

func (c *chainedCloser) Close() error {
	err := c.Decoder.Close()
	if innerErr := c.inner.Close(); innerErr != nil && err == nil {
		err = innerErr
	}
	return err
}

// WrapBody applies reg's decoder for encoding to body, returning an
// io.ReadCloser whose Close tears down both the decompressor and body.
// Used by client.Client to decode a response's Content-Encoding after the
// core transport hands back the raw wire stream.
func WrapBody(reg Registry, encoding string, body io.ReadCloser) (io.ReadCloser, error) {
	dec, err := reg.Decode(encoding, body)
	if err != nil {
		return nil, err
	}
	return &chainedCloser{Decoder: dec, inner: body}, nil
}
