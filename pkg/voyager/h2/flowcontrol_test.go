package h2

import "testing"

func TestWindowIncrementConsume(t *testing.T) {
	w := newWindow(100)
	if got := w.Available(); got != 100 {
		t.Fatalf("Available() = %d, want 100", got)
	}
	if err := w.Consume(40); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if got := w.Available(); got != 60 {
		t.Fatalf("Available() = %d, want 60", got)
	}
	if err := w.Increment(10); err != nil {
		t.Fatalf("Increment: %v", err)
	}
	if got := w.Available(); got != 70 {
		t.Fatalf("Available() = %d, want 70", got)
	}
}

func TestWindowConsumePastZeroErrors(t *testing.T) {
	w := newWindow(10)
	if err := w.Consume(20); err == nil {
		t.Fatal("expected an error consuming past the available window")
	}
}

func TestWindowIncrementOverflowErrors(t *testing.T) {
	w := newWindow(MaxWindowSize - 1)
	if err := w.Increment(10); err == nil {
		t.Fatal("expected an error incrementing past MaxWindowSize")
	}
}

func TestWindowReset(t *testing.T) {
	w := newWindow(100)
	w.Consume(50)
	w.Reset(65535)
	if got := w.Available(); got != 65535 {
		t.Fatalf("Available() = %d, want 65535", got)
	}
}
