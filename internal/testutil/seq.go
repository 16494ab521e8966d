package testutil

import "sync"

// SeqClock hands out sub-operation sequence indices for test records.
//
// The first call to Next returns 1. Reset lets the same builder code
// produce identical indices across runs.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SeqClock struct {
	mu  sync.Mutex
	seq int
}

// NewSeqClock creates a clock starting at 0.
func NewSeqClock() *SeqClock {
	return &SeqClock{}
}

// Next increments and returns the next sequence index.
func (c *SeqClock) Next() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the last index handed out without incrementing.
func (c *SeqClock) Current() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset rewinds the clock to 0.
func (c *SeqClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
