package pipeline

import "sync"

// LogRing is a fixed-size, most-recent-first ring of human-readable progress
// messages. Pushing past capacity evicts the oldest entry.
type LogRing struct {
	mu      sync.Mutex
	cap     int
	entries []string
}

// NewLogRing creates a log ring with the given capacity.
func NewLogRing(capacity int) *LogRing {
	if capacity < 1 {
		capacity = 1
	}
	return &LogRing{cap: capacity}
}

// Push prepends a message, evicting the oldest entry when full.
func (r *LogRing) Push(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append([]string{message}, r.entries...)
	if len(r.entries) > r.cap {
		r.entries = r.entries[:r.cap]
	}
}

// Entries returns a snapshot, most recent first.
func (r *LogRing) Entries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.entries))
	copy(out, r.entries)
	return out
}

// PushRing prepends a message onto an existing most-recent-first slice,
// keeping at most capacity entries. Used where the ring lives inside a
// serialized run record rather than in memory.
func PushRing(ring []string, message string, capacity int) []string {
	out := append([]string{message}, ring...)
	if len(out) > capacity {
		out = out[:capacity]
	}
	return out
}
