package segmap

import "sync/atomic"

// rebindable is implemented by ref kinds whose reclamation callback needs
// to know which entry currently owns them. A chain entry is occasionally
// replaced by a clone that shares its refs (expand's trailing-run reuse,
// remove's preceding-entry clone) to preserve the next-is-immutable
// contract for lock-free readers; when that happens the clone takes over
// as the owner without re-registering a second GC cleanup, which would
// otherwise fire the reclamation queue twice for one referent.
type rebindable interface {
	rebind(e *entry)
}

// weakKeyRef adapts an arbitrary referent (a *Weak[T]) into the KeyRef
// capability, registering it on the owning segment's key-reclamation queue
// so the runtime cleanup callback can splice the entry out later.
type weakKeyRef struct {
	ref       referent
	reclaimed atomic.Bool
	owner     atomic.Pointer[entry]
	queue     *reclamationQueue
}

func newWeakKeyRef(ref referent) *weakKeyRef {
	return &weakKeyRef{ref: ref}
}

// arm registers the reclamation callback. Split from the constructor
// because the entry the callback needs to enqueue does not exist until
// after the KeyRef is attached to it.
func (r *weakKeyRef) arm(queue *reclamationQueue, e *entry) {
	r.queue = queue
	r.owner.Store(e)
	r.ref.onReclaimed(func() {
		if r.reclaimed.CompareAndSwap(false, true) {
			queue.enqueue(r.owner.Load())
		}
	})
}

func (r *weakKeyRef) rebind(e *entry) { r.owner.Store(e) }

// get returns the real key object, not the Weak[T] wrapper, so a caller
// iterating KeySet sees the same kind of value it originally passed to
// Put (typically a bare pointer) and so comparisons against a bare
// pointer looked up later resolve with plain ==. A referent the collector
// has cleared reads as absent here, but only the cleanup callback sets the
// reclaimed flag, so the callback still enqueues the entry.
func (r *weakKeyRef) get() (any, bool) {
	if r.reclaimed.Load() {
		return nil, false
	}
	v, ok := r.ref.peek()
	if !ok {
		return nil, false
	}
	return v, true
}

func (r *weakKeyRef) clear()            { r.reclaimed.Store(true) }
func (r *weakKeyRef) isReclaimed() bool { return r.reclaimed.Load() }

// weakValueRef is weakKeyRef's value-side counterpart. Values never carry
// is_loading semantics while weakly held: a Loading value-ref is always
// Strong (see loading.go), so isLoading is always false here.
type weakValueRef struct {
	ref       referent
	reclaimed atomic.Bool
	owner     atomic.Pointer[entry]
}

func newWeakValueRef(ref referent) *weakValueRef {
	return &weakValueRef{ref: ref}
}

func (r *weakValueRef) arm(queue *valueReclamationQueue, e *entry) {
	r.owner.Store(e)
	r.ref.onReclaimed(func() {
		if r.reclaimed.CompareAndSwap(false, true) {
			// By the time a GC cleanup runs the weak pointer has
			// already cleared, so there is no value left to report.
			queue.enqueue(r.owner.Load(), r, nil)
		}
	})
}

func (r *weakValueRef) rebind(e *entry) { r.owner.Store(e) }

func (r *weakValueRef) get() (any, bool) {
	if r.reclaimed.Load() {
		return nil, false
	}
	v, ok := r.ref.peek()
	if !ok {
		return nil, false
	}
	return v, true
}

func (r *weakValueRef) clear()            { r.reclaimed.Store(true) }
func (r *weakValueRef) isReclaimed() bool { return r.reclaimed.Load() }
func (r *weakValueRef) isLoading() bool   { return false }

var (
	_ KeyRef     = (*weakKeyRef)(nil)
	_ ValueRef   = (*weakValueRef)(nil)
	_ rebindable = (*weakKeyRef)(nil)
	_ rebindable = (*weakValueRef)(nil)
)
