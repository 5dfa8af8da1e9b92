package engine

import "sync/atomic"

// Clock is a monotonic logical counter of objective evaluations.
//
// Every residual evaluation, including the ones spent on Jacobian columns,
// takes one tick. The count is logged at the end of a run and never used
// for ordering decisions.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next increments the clock and returns the new count.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the count without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
