package pipeline

import (
	"fmt"
	"testing"
)

func TestLogRing_MostRecentFirst(t *testing.T) {
	ring := NewLogRing(5)
	ring.Push("first")
	ring.Push("second")
	ring.Push("third")

	entries := ring.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0] != "third" || entries[2] != "first" {
		t.Errorf("wrong order: %v", entries)
	}
}

func TestLogRing_EvictsOldest(t *testing.T) {
	ring := NewLogRing(5)
	for i := 1; i <= 7; i++ {
		ring.Push(fmt.Sprintf("message %d", i))
	}

	entries := ring.Entries()
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}
	if entries[0] != "message 7" {
		t.Errorf("expected newest first, got %q", entries[0])
	}
	if entries[4] != "message 3" {
		t.Errorf("expected oldest surviving entry to be message 3, got %q", entries[4])
	}
}

func TestPushRing_CapsSlice(t *testing.T) {
	var ring []string
	for i := 1; i <= 6; i++ {
		ring = PushRing(ring, fmt.Sprintf("m%d", i), 5)
	}

	if len(ring) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(ring))
	}
	if ring[0] != "m6" || ring[4] != "m2" {
		t.Errorf("wrong window: %v", ring)
	}
}
