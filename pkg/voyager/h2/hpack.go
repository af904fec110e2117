package h2

import (
	"bytes"

	"golang.org/x/net/http2/hpack"
)

// headerCodec wraps golang.org/x/net/http2/hpack's encoder/decoder pair
// for one connection.
//
// The teacher's own HPACK implementation
// (shockwave/pkg/shockwave/http3/qpack/huffman.go) is not a usable
// grounding source for the Huffman codec specifically: it calls
// getHuffmanCodeFromTable and references huffmanTable, neither of which
// is defined anywhere in that package (the RFC 7541 Appendix B code
// table file is missing), so the teacher's Huffman path does not
// compile on its own. Rather than hand-transcribe the 257-entry RFC
// table from scratch with no way to verify it, we use
// golang.org/x/net/http2/hpack — already adjacent to golang.org/x/net/
// idna in this module's dependency graph — for the codec mechanics
// (Huffman, integer/string primitives, dynamic table eviction). The
// frame codec, flow control, and stream state machine below remain
// adapted from the teacher's hand-rolled implementation.
type headerCodec struct {
	enc    *hpack.Encoder
	encBuf bytes.Buffer
	dec    *hpack.Decoder
}

func newHeaderCodec(maxDynamicTableSize uint32) *headerCodec {
	c := &headerCodec{}
	c.enc = hpack.NewEncoder(&c.encBuf)
	c.enc.SetMaxDynamicTableSize(maxDynamicTableSize)
	c.dec = hpack.NewDecoder(maxDynamicTableSize, nil)
	return c
}

// Encode compresses pseudo-headers (already ordered :method/:scheme/
// :authority/:path first per RFC 7540 §8.1.2.3) plus regular headers.
func (c *headerCodec) Encode(fields []hpack.HeaderField) []byte {
	c.encBuf.Reset()
	for _, f := range fields {
		c.enc.WriteField(f)
	}
	out := make([]byte, c.encBuf.Len())
	copy(out, c.encBuf.Bytes())
	return out
}

// Decode decompresses a header block fragment into ordered fields.
func (c *headerCodec) Decode(block []byte) ([]hpack.HeaderField, error) {
	return c.dec.DecodeFull(block)
}

// SetPeerMaxDynamicTableSize applies the peer's advertised
// SETTINGS_HEADER_TABLE_SIZE to our encoder's compression table.
func (c *headerCodec) SetPeerMaxDynamicTableSize(size uint32) {
	c.enc.SetMaxDynamicTableSize(size)
}
