package system

import (
	"testing"
	"time"
)

func TestClockNowUTC(t *testing.T) {
	t.Parallel()

	clk := New()
	before := time.Now().UTC().Add(-time.Second)
	got := clk.Now()
	after := time.Now().UTC().Add(time.Second)

	if got.Location() != time.UTC {
		t.Fatalf("expected UTC location, got %v", got.Location())
	}
	if got.Before(before) || got.After(after) {
		t.Fatalf("expected %v to be between %v and %v", got, before, after)
	}
}

func TestClockSince(t *testing.T) {
	t.Parallel()

	clk := New()
	start := clk.Now().Add(-2 * time.Second)
	if d := clk.Since(start); d < 2*time.Second {
		t.Fatalf("expected at least 2s elapsed, got %v", d)
	}
}
