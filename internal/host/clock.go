package host

import "sync/atomic"

// TimeSource hands out logical invocation timestamps.
type TimeSource interface {
	Next() int64
}

// Clock is a monotonic logical clock. Every invocation is stamped with a
// strictly increasing value, so record timestamps never move backwards and
// replays are independent of wall time.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	now atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next timestamp.
func (c *Clock) Next() int64 {
	return c.now.Add(1)
}

// Current returns the last timestamp handed out.
func (c *Clock) Current() int64 {
	return c.now.Load()
}

// AdvanceTo moves the clock forward to at least t. It never moves back.
func (c *Clock) AdvanceTo(t int64) {
	for {
		cur := c.now.Load()
		if cur >= t || c.now.CompareAndSwap(cur, t) {
			return
		}
	}
}
