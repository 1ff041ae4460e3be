package segmap

import "sync/atomic"

// entry is the bucket-chain node. A single struct serves every point in
// the (key strength) x (expires?) x (evicts-by-size?) feature matrix the
// original ten-variant design enumerates: the access-order and write-order
// link fields and the expiration timestamp are simply left at their zero
// value when a segment's feature set does not enable them, instead of
// generating a distinct struct per combination. next is immutable after
// publication; valueRef is the only field an unlocked reader may observe
// changing concurrently with a writer.
type entry struct {
	keyRef KeyRef
	hash   uint32
	next   *entry // immutable once the entry is reachable from a bucket head

	valueRef atomic.Pointer[ValueRef]

	// Access-order intrusive deque links (LRU). Both nil means the entry
	// is not currently linked into any deque.
	accessPrev, accessNext *entry

	// Write-order intrusive deque links (expiration).
	writePrev, writeNext *entry

	expirationTime atomic.Int64 // now + duration; meaningless if expiration is disabled
}

func newEntry(keyRef KeyRef, hash uint32, next *entry) *entry {
	e := &entry{keyRef: keyRef, hash: hash, next: next}
	e.storeValue(theUnsetValueRef)
	return e
}

// storeValue publishes a new value-ref with release semantics; readers
// observe it with loadValue's acquire semantics.
func (e *entry) storeValue(v ValueRef) {
	e.valueRef.Store(&v)
}

func (e *entry) loadValue() ValueRef {
	p := e.valueRef.Load()
	if p == nil {
		return theUnsetValueRef
	}
	return *p
}

// liveValue returns the entry's value if it is present and neither
// reclaimed nor mid-load, matching the count invariant's definition of
// "live".
func (e *entry) liveValue() (any, bool) {
	vref := e.loadValue()
	if vref.isLoading() || vref.isReclaimed() {
		return nil, false
	}
	return vref.get()
}

// liveKey returns the entry's key unless it has been reclaimed.
func (e *entry) liveKey() (any, bool) {
	if e.keyRef.isReclaimed() {
		return nil, false
	}
	return e.keyRef.get()
}

func (e *entry) isLive() bool {
	_, ok := e.liveValue()
	if !ok {
		return false
	}
	return !e.keyRef.isReclaimed()
}

// cloneWithNext returns a fresh entry carrying the same key/value/hash but
// a new next pointer. Used by expand and remove to preserve the immutable
// -next invariant for lock-free readers that may be mid-traversal of the
// old chain. expirationTime must carry over too: the clone keeps the same
// deadline the original entry was already tracking, not a fresh zero value
// that isExpired would read as having expired at the epoch.
func (e *entry) cloneWithNext(next *entry) *entry {
	clone := &entry{keyRef: e.keyRef, hash: e.hash, next: next}
	clone.storeValue(e.loadValue())
	clone.expirationTime.Store(e.expirationTime.Load())
	return clone
}
