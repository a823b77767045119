package presence

import (
	"context"
	"testing"
)

func TestNewDisabledWithoutAddr(t *testing.T) {
	tracker, err := New(context.Background(), Opts{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tracker != nil {
		t.Fatal("empty addr should disable presence")
	}
}

func TestNilTrackerIsSafe(t *testing.T) {
	var tracker *Tracker
	ctx := context.Background()

	if err := tracker.Focus(ctx, "room-1", "cust-1"); err != nil {
		t.Errorf("Focus on nil tracker: %v", err)
	}
	if err := tracker.Blur(ctx, "room-1", "cust-1"); err != nil {
		t.Errorf("Blur on nil tracker: %v", err)
	}
	if tracker.IsFocused(ctx, "room-1", "cust-1") {
		t.Error("nil tracker reports focused")
	}
	viewers, err := tracker.FocusedViewers(ctx, "room-1")
	if err != nil || viewers != nil {
		t.Errorf("FocusedViewers on nil tracker = %v, %v", viewers, err)
	}
	if err := tracker.Close(); err != nil {
		t.Errorf("Close on nil tracker: %v", err)
	}
}

func TestFocusKeyNamespaced(t *testing.T) {
	if got := focusKey("room-1"); got != "parley:focus:room-1" {
		t.Errorf("focus key = %q", got)
	}
}
