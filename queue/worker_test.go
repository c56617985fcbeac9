package queue

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestBackoffDelayBounds(t *testing.T) {
	b := Backoff{Base: time.Minute, Cap: time.Hour, Multiplier: 2}

	tests := []struct {
		attempt int
		nominal time.Duration
	}{
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{10, time.Hour}, // capped
		{0, time.Minute},
	}
	for _, tt := range tests {
		got := b.Delay(tt.attempt)
		lo := time.Duration(float64(tt.nominal) * 0.8)
		hi := time.Duration(float64(tt.nominal) * 1.2)
		if got < lo || got > hi {
			t.Errorf("Delay(%d) = %v, want within [%v, %v]", tt.attempt, got, lo, hi)
		}
	}
}

func TestBackoffDelayDefaults(t *testing.T) {
	b := Backoff{Base: time.Second}
	// Multiplier below 1 falls back to 2.
	got := b.Delay(3)
	lo := time.Duration(float64(4*time.Second) * 0.8)
	hi := time.Duration(float64(4*time.Second) * 1.2)
	if got < lo || got > hi {
		t.Errorf("Delay(3) = %v, want ~4s", got)
	}
}

func TestFatalClassification(t *testing.T) {
	base := errors.New("boom")
	if !IsFatal(Fatal(base)) {
		t.Error("Fatal() should classify as fatal")
	}
	if IsFatal(base) {
		t.Error("plain error must not be fatal")
	}
	if IsFatal(nil) {
		t.Error("nil must not be fatal")
	}
	if Fatal(nil) != nil {
		t.Error("Fatal(nil) should be nil")
	}
	// Fatal survives wrapping.
	wrapped := fmt.Errorf("handler: %w", Fatal(base))
	if !IsFatal(wrapped) {
		t.Error("wrapped fatal error lost its classification")
	}
	if !errors.Is(wrapped, base) {
		t.Error("cause not reachable through Fatal")
	}
}

func TestRetryAfter(t *testing.T) {
	base := errors.New("quiet hours")
	err := RetryAfter(90*time.Minute, base)
	if !errors.Is(err, base) {
		t.Error("cause not reachable through RetryAfter")
	}

	d, ok := RetryDelayOf(err)
	if !ok || d != 90*time.Minute {
		t.Errorf("RetryDelayOf() = %v, %v; want 90m, true", d, ok)
	}
	if _, ok := RetryDelayOf(base); ok {
		t.Error("plain error must not carry a retry delay")
	}
	if RetryAfter(time.Minute, nil) != nil {
		t.Error("RetryAfter(nil) should be nil")
	}

	// Wrapping must not hide the delay from the worker.
	d, ok = RetryDelayOf(fmt.Errorf("deliver: %w", err))
	if !ok || d != 90*time.Minute {
		t.Errorf("RetryDelayOf(wrapped) = %v, %v; want 90m, true", d, ok)
	}

	// A deferral is never fatal.
	if IsFatal(err) {
		t.Error("RetryAfter error classified fatal")
	}
}
