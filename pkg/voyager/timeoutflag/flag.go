// Package timeoutflag implements the two-state timeout regime of spec.md
// §4.3: a connection (HTTP/1.1) or a stream (HTTP/2) carries a single
// mutable flag telling the I/O layer which direction is currently allowed
// to raise a timeout error. The flag starts in write-mode and flips to
// read-mode the first time either "the request body finished sending" or
// "the first response event was observed" happens — whichever is first.
//
// Grounded on the lock-free atomic state fields of
// shockwave/pkg/shockwave/http11/connection.go (Connection.state as an
// atomic.Int32) — we use the same atomic-flag idiom for a two-state value
// instead of a mutex, since the flag is read on every I/O call.
package timeoutflag

import "sync/atomic"

// Mode is the direction currently permitted to raise a timeout.
type Mode int32

const (
	// Write is the initial mode: writes may raise WriteTimeout, reads spin
	// with a short inner poll and never raise.
	Write Mode = iota
	// Read is the terminal mode for a cycle: reads may raise ReadTimeout,
	// writes (there should be none left) never raise.
	Read
)

// PollInterval is the short inner timeout used for reads while still in
// write-mode, matching the source's 10ms spin (spec.md §9 Open Questions:
// the spin is reproduced explicitly rather than modeled as a select,
// because net.Conn has no portable multiplexed wait primitive).
const PollInterval = 10_000_000 // nanoseconds; see time.Duration in iostream

// Flag is a lock-free two-state timeout mode holder.
type Flag struct {
	mode atomic.Int32
}

// New returns a Flag starting in write-mode.
func New() *Flag {
	f := &Flag{}
	f.mode.Store(int32(Write))
	return f
}

// Mode returns the current mode.
func (f *Flag) Mode() Mode {
	return Mode(f.mode.Load())
}

// FlipToRead transitions the flag to read-mode. Idempotent: flipping an
// already-read-mode flag is a no-op.
func (f *Flag) FlipToRead() {
	f.mode.Store(int32(Read))
}

// Reset restores write-mode, used when an HTTP/1.1 connection starts its
// next keep-alive cycle.
func (f *Flag) Reset() {
	f.mode.Store(int32(Write))
}

// ShouldRaiseOnWrite reports whether a write deadline expiry should
// surface as WriteTimeout right now.
func (f *Flag) ShouldRaiseOnWrite() bool {
	return f.Mode() == Write
}

// ShouldRaiseOnRead reports whether a read deadline expiry should surface
// as ReadTimeout right now.
func (f *Flag) ShouldRaiseOnRead() bool {
	return f.Mode() == Read
}
