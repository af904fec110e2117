// Package wireheaders implements the case-insensitive, order-preserving
// header multimap shared by requests and responses.
package wireheaders

import (
	"bytes"
	"strings"
)

// Pair is a single wire-level header field, stored as byte pairs so the
// protocol engines can write them without re-encoding.
type Pair struct {
	Name  []byte
	Value []byte
}

// Headers is a case-insensitive multimap that preserves insertion order.
//
// Lookups are case-insensitive (RFC 7230 §3.2). Setting a key removes any
// existing values for it; getting a key returns all duplicate values
// joined by ", " (RFC 7230 §3.2.2), except Set-Cookie which callers should
// read via Values to avoid folding unrelated cookie attributes together.
type Headers struct {
	pairs []Pair
}

// New creates an empty header multimap.
func New() *Headers {
	return &Headers{}
}

// FromPairs builds a Headers from a raw pair list, preserving order.
func FromPairs(pairs []Pair) *Headers {
	h := &Headers{pairs: make([]Pair, len(pairs))}
	copy(h.pairs, pairs)
	return h
}

func equalFold(a, b []byte) bool {
	return bytes.EqualFold(a, b)
}

// Add appends a value without removing existing ones for the same name.
func (h *Headers) Add(name, value string) {
	h.pairs = append(h.pairs, Pair{Name: []byte(name), Value: []byte(value)})
}

// AddBytes is the zero-copy variant of Add used by the protocol engines
// when parsing off the wire.
func (h *Headers) AddBytes(name, value []byte) {
	h.pairs = append(h.pairs, Pair{Name: name, Value: value})
}

// Set removes any existing values for name and inserts value in their
// place, at the position of the first removed occurrence (or the end, if
// name was absent).
func (h *Headers) Set(name, value string) {
	nameB := []byte(name)
	insertAt := -1
	out := h.pairs[:0:0]
	for _, p := range h.pairs {
		if equalFold(p.Name, nameB) {
			if insertAt == -1 {
				insertAt = len(out)
			}
			continue
		}
		out = append(out, p)
	}
	if insertAt == -1 {
		insertAt = len(out)
	}
	newPair := Pair{Name: nameB, Value: []byte(value)}
	out = append(out, Pair{})
	copy(out[insertAt+1:], out[insertAt:])
	out[insertAt] = newPair
	h.pairs = out
}

// Del removes all values for name.
func (h *Headers) Del(name string) {
	nameB := []byte(name)
	out := h.pairs[:0]
	for _, p := range h.pairs {
		if equalFold(p.Name, nameB) {
			continue
		}
		out = append(out, p)
	}
	h.pairs = out
}

// Has reports whether name has at least one value.
func (h *Headers) Has(name string) bool {
	nameB := []byte(name)
	for _, p := range h.pairs {
		if equalFold(p.Name, nameB) {
			return true
		}
	}
	return false
}

// Get returns the sole value for name, or all duplicate values joined by
// ", " per RFC 7230 §3.2.2. Returns "" if name is absent.
func (h *Headers) Get(name string) string {
	values := h.Values(name)
	if len(values) == 0 {
		return ""
	}
	if len(values) == 1 {
		return values[0]
	}
	return strings.Join(values, ", ")
}

// Values returns every value stored for name, in insertion order, without
// folding duplicates together. Used by the cookie layer for Set-Cookie.
func (h *Headers) Values(name string) []string {
	nameB := []byte(name)
	var values []string
	for _, p := range h.pairs {
		if equalFold(p.Name, nameB) {
			values = append(values, string(p.Value))
		}
	}
	return values
}

// Raw exposes the pair list for the protocol engines to encode on the
// wire, preserving insertion order and original casing.
func (h *Headers) Raw() []Pair {
	return h.pairs
}

// Len returns the number of stored pairs (counting duplicates).
func (h *Headers) Len() int {
	return len(h.pairs)
}

// Clone returns a deep copy so mutation of one does not affect the other.
func (h *Headers) Clone() *Headers {
	if h == nil {
		return New()
	}
	out := &Headers{pairs: make([]Pair, len(h.pairs))}
	for i, p := range h.pairs {
		name := make([]byte, len(p.Name))
		copy(name, p.Name)
		value := make([]byte, len(p.Value))
		copy(value, p.Value)
		out.pairs[i] = Pair{Name: name, Value: value}
	}
	return out
}

// Range iterates pairs in insertion order, stopping if fn returns false.
func (h *Headers) Range(fn func(name, value string) bool) {
	for _, p := range h.pairs {
		if !fn(string(p.Name), string(p.Value)) {
			return
		}
	}
}
