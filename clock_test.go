package segmap_test

import "sync/atomic"

// manualClock is a Clock a test can advance deterministically, so
// expiration scenarios never depend on real wall-clock sleeps.
type manualClock struct {
	now atomic.Int64
}

func (c *manualClock) Now() int64 { return c.now.Load() }

func (c *manualClock) Set(ns int64) { c.now.Store(ns) }

func (c *manualClock) Advance(ns int64) { c.now.Add(ns) }
