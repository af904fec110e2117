package h2

import (
	"fmt"
	"sync"
)

// DefaultWindowSize is the RFC 7540 §6.9.2 initial flow-control window.
const DefaultWindowSize = 65535

// MaxWindowSize is the largest legal window size (2^31 - 1).
const MaxWindowSize = (1 << 31) - 1

// window is a single flow-control counter, used for both the
// connection-level and the per-stream send/receive windows (spec.md
// §4.5). Adapted from shockwave/pkg/shockwave/http2/flow_control.go's
// FlowController, split into one small type per window instead of one
// monolithic controller, since here each Stream owns its own pair of
// windows directly rather than looking them up from a shared table.
type window struct {
	mu   sync.Mutex
	size int64
}

func newWindow(initial int32) *window {
	return &window{size: int64(initial)}
}

// Available returns the current window size.
func (w *window) Available() int32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return int32(w.size)
}

// Increment grows the window by n, erroring on overflow past
// MaxWindowSize (RFC 7540 §6.9.1).
func (w *window) Increment(n int32) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.size+int64(n) > MaxWindowSize {
		return fmt.Errorf("h2: flow control window overflow")
	}
	w.size += int64(n)
	return nil
}

// Consume deducts n (a frame payload length) from the window, erroring
// if that would drive it negative (a peer protocol violation).
func (w *window) Consume(n int32) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.size -= int64(n)
	if w.size < 0 {
		return fmt.Errorf("h2: flow control window went negative")
	}
	return nil
}

// Reset overwrites the window, used when SETTINGS_INITIAL_WINDOW_SIZE
// changes mid-connection (RFC 7540 §6.9.2): existing streams' send
// windows are adjusted by the delta, not set absolutely, so callers pass
// the delta through Increment instead for already-open streams.
func (w *window) Reset(size int32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.size = int64(size)
}
