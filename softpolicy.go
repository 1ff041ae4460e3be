package segmap

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// softPolicy approximates soft-value memory-pressure reclamation. Go's
// garbage collector, unlike the JVM's, exposes no per-object "collect only
// under memory pressure" signal, so per the Design Notes' own suggested
// resolution this is implemented as a second, bounded LRU shared by the
// whole Map: a soft value is held strongly by its entry and also tracked
// here, and when the secondary LRU overflows its eviction callback
// reclaims the value exactly as if the collector had done it.
type softPolicy struct {
	nextID atomic.Uint64
	cache  *lru.Cache[uint64, *softValueRef]
}

func newSoftPolicy(approximateCapacity int) *softPolicy {
	if approximateCapacity <= 0 {
		approximateCapacity = 10_000
	}
	p := &softPolicy{}
	cache, err := lru.NewWithEvict[uint64, *softValueRef](approximateCapacity, func(_ uint64, ref *softValueRef) {
		ref.reclaim()
	})
	if err != nil {
		// Only possible if approximateCapacity <= 0, already excluded above.
		panic(err)
	}
	p.cache = cache
	return p
}

func (p *softPolicy) register(ref *softValueRef) {
	ref.id = p.nextID.Add(1)
	p.cache.Add(ref.id, ref)
}

// touch refreshes ref's recency in the secondary LRU, called on every
// access so that a frequently-read soft value survives memory pressure
// longer than one that was set once and forgotten.
func (p *softPolicy) touch(ref *softValueRef) {
	p.cache.Get(ref.id)
}

func (p *softPolicy) forget(ref *softValueRef) {
	p.cache.Remove(ref.id)
}
