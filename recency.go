package segmap

import "sync/atomic"

// recencyBufferCapacity sizes the ring recencyBuffer wraps. It matches
// drainThreshold+1 (see constants.go) so a full run of reads between two
// drains fits without wrapping under normal load; once access bursts
// exceed it, the oldest unread slots are silently overwritten, which is
// the "may drop over-capacity elements" behavior the design explicitly
// allows — LRU ordering under this buffer is approximate, not exact.
const recencyBufferCapacity = 64

// recencyBuffer is a lock-free multi-producer FIFO: unlocked readers
// record a hit with add, and the segment lock holder drains it with
// drainInto. There is exactly one drainer at a time (the lock holder), so
// the read cursor needs no atomics of its own.
type recencyBuffer struct {
	slots      [recencyBufferCapacity]atomic.Pointer[entry]
	writeIndex atomic.Uint64
	readIndex  uint64
}

// add records e as recently accessed. Safe to call without the segment
// lock from any number of concurrent readers.
func (b *recencyBuffer) add(e *entry) {
	idx := b.writeIndex.Add(1) - 1
	b.slots[idx%recencyBufferCapacity].Store(e)
}

// drainInto calls fn for up to max recorded entries, oldest first, and
// advances the read cursor past them. Must be called with the owning
// segment's lock held.
func (b *recencyBuffer) drainInto(fn func(*entry), max int) int {
	target := b.writeIndex.Load()
	if target > b.readIndex+recencyBufferCapacity {
		// The ring lapped the drainer; skip the entries that were
		// overwritten rather than re-reading garbage.
		b.readIndex = target - recencyBufferCapacity
	}
	drained := 0
	for b.readIndex < target && drained < max {
		slot := &b.slots[b.readIndex%recencyBufferCapacity]
		e := slot.Load()
		b.readIndex++
		if e == nil {
			continue
		}
		slot.Store(nil)
		fn(e)
		drained++
	}
	return drained
}
