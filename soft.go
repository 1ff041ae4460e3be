package segmap

import "sync/atomic"

// softValueRef is the value-only soft-strength ValueRef. The referent is
// held directly (unlike weakValueRef, there is no GC weak pointer
// involved); reclamation is driven entirely by softPolicy evicting it from
// the secondary LRU. value is behind an atomic.Pointer because the LRU's
// eviction callback (running on whatever goroutine triggered the
// eviction) and ordinary readers both touch it without a shared lock.
type softValueRef struct {
	value atomic.Pointer[any]
	id    uint64

	reclaimed atomic.Bool
	owner     atomic.Pointer[entry]
	onReclaim func(any)
}

func newSoftValueRef(value any, policy *softPolicy) *softValueRef {
	ref := &softValueRef{}
	ref.value.Store(&value)
	policy.register(ref)
	return ref
}

// arm wires the reclamation callback to the owning segment's value queue,
// mirroring weakValueRef.arm.
func (r *softValueRef) arm(queue *valueReclamationQueue, e *entry) {
	r.owner.Store(e)
	r.onReclaim = func(lastValue any) {
		if r.reclaimed.CompareAndSwap(false, true) {
			queue.enqueue(r.owner.Load(), r, lastValue)
		}
	}
}

func (r *softValueRef) rebind(e *entry) { r.owner.Store(e) }

// reclaim is invoked by softPolicy's eviction callback. Unlike a weak
// value's GC cleanup, this fires synchronously from our own simulated
// policy, so the value is still in hand to report in the notification.
func (r *softValueRef) reclaim() {
	p := r.value.Swap(nil)
	var v any
	if p != nil {
		v = *p
	}
	if r.onReclaim != nil {
		r.onReclaim(v)
		return
	}
	r.reclaimed.Store(true)
}

func (r *softValueRef) get() (any, bool) {
	if r.reclaimed.Load() {
		return nil, false
	}
	p := r.value.Load()
	if p == nil {
		return nil, false
	}
	return *p, true
}

func (r *softValueRef) clear()            { r.value.Store(nil); r.reclaimed.Store(true) }
func (r *softValueRef) isReclaimed() bool { return r.reclaimed.Load() }
func (r *softValueRef) isLoading() bool   { return false }

var (
	_ ValueRef   = (*softValueRef)(nil)
	_ rebindable = (*softValueRef)(nil)
)
