package scanner

import "sync/atomic"

// counter is a simple concurrent accumulator for the approximate/true
// found count across chunk workers.
type counter struct {
	n atomic.Int64
}

func newCounter() *counter { return &counter{} }

func (c *counter) add(n int64) { c.n.Add(n) }
func (c *counter) load() int64 { return c.n.Load() }
