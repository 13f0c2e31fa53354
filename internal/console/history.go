package console

import "sync"

// DefaultHistorySize is the number of lines kept by a History when no
// capacity is configured.
const DefaultHistorySize = 25

// History is a bounded FIFO of sanitized console lines. Appending past the
// capacity evicts the oldest lines. It tracks the total number of lines ever
// appended so callers can tell how much they missed.
//
// All methods are safe for concurrent use.
type History struct {
	mu       sync.Mutex
	lines    []ConsoleLine
	capacity int
	total    uint64
}

// NewHistory creates a history holding at most capacity lines. A capacity
// below one uses DefaultHistorySize.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = DefaultHistorySize
	}
	return &History{
		lines:    make([]ConsoleLine, 0, capacity),
		capacity: capacity,
	}
}

// Append adds lines to the tail and evicts from the head once the capacity is
// exceeded.
func (h *History) Append(lines ...ConsoleLine) {
	if len(lines) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lines = append(h.lines, lines...)
	h.total += uint64(len(lines))

	if over := len(h.lines) - h.capacity; over > 0 {
		clear(h.lines[:over])
		h.lines = h.lines[over:]
	}
}

// Recent returns the last min(n, Len()) lines in insertion order. n <= 0
// returns everything.
func (h *History) Recent(n int) []ConsoleLine {
	h.mu.Lock()
	defer h.mu.Unlock()

	start := 0
	if n > 0 && n < len(h.lines) {
		start = len(h.lines) - n
	}
	out := make([]ConsoleLine, len(h.lines)-start)
	copy(out, h.lines[start:])
	return out
}

// Len returns the number of lines currently held.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.lines)
}

// Capacity returns the current eviction threshold.
func (h *History) Capacity() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.capacity
}

// SetCapacity changes the eviction threshold. Existing lines are left alone;
// the next Append trims down to the new capacity.
func (h *History) SetCapacity(capacity int) {
	if capacity < 1 {
		capacity = DefaultHistorySize
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.capacity = capacity
}

// Total returns the number of lines ever appended.
func (h *History) Total() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}
