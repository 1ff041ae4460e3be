package segmap

import (
	"sync"
	"sync/atomic"
)

// bucketSlot is one head-of-chain pointer in a segment's table. It is an
// atomic.Pointer rather than a plain *entry so an unlocked reader can load
// it with acquire semantics while the lock holder stores a new head with
// release semantics — the same "volatile array of entry-chain heads" the
// design calls for, without resorting to unsafe.Pointer the way the
// teacher's lock-free variant does.
type bucketSlot = atomic.Pointer[entry]

type segmentTable []bucketSlot

func newSegmentTable(capacity int) *segmentTable {
	t := make(segmentTable, capacity)
	return &t
}

// segment is a single exclusive-write, concurrent-read shard: its own
// table, its own reclamation queues, its own recency buffer, its own
// (optional) access-order and write-order deques. Nothing here is ever
// touched by another segment.
type segment struct {
	owner *Map

	mu sync.Mutex

	count     atomic.Int32
	modCount  atomic.Int64
	threshold int32
	table     atomic.Pointer[segmentTable]

	sizeBounded    bool
	maxSegmentSize uint64

	keyQueue   reclamationQueue
	valueQueue valueReclamationQueue

	recency recencyBuffer

	accessDeque *intrusiveDeque
	writeDeque  *intrusiveDeque

	expireAfterAccess bool
	expireAfterWrite  bool

	readCount atomic.Uint32
}

func newSegment(owner *Map, initialCapacity int) *segment {
	s := &segment{owner: owner}
	s.table.Store(newSegmentTable(initialCapacity))
	s.threshold = int32(float64(initialCapacity) * defaultLoadFactor)

	if owner.maxTotalSize != nil {
		s.sizeBounded = true
	}

	if owner.expireAfterAccess > 0 {
		s.expireAfterAccess = true
		s.accessDeque = newIntrusiveDeque(accessLinks)
	} else if owner.expireAfterWrite > 0 {
		// Access recording still threads entries through the
		// access-order deque so size-bounded LRU eviction keeps working
		// even when expiration is write-time only.
		s.accessDeque = newIntrusiveDeque(accessLinks)
	} else if owner.maxTotalSize != nil {
		s.accessDeque = newIntrusiveDeque(accessLinks)
	}

	if owner.expireAfterWrite > 0 {
		s.expireAfterWrite = true
		s.writeDeque = newIntrusiveDeque(writeLinks)
	}

	return s
}

func (s *segment) loadTable() *segmentTable {
	return s.table.Load()
}

func indexFor(tab *segmentTable, hash uint32) int {
	return int(hash & uint32(len(*tab)-1))
}

// activeExpirationDeque resolves the expiration-precedence open question:
// when both access- and write-time expiration are configured, access time
// wins and is refreshed on every read and write; write time is only
// consulted when access-time tracking is disabled.
func (s *segment) activeExpirationDeque() *intrusiveDeque {
	if s.expireAfterAccess {
		return s.accessDeque
	}
	if s.expireAfterWrite {
		return s.writeDeque
	}
	return nil
}

func (s *segment) expirationDuration() (d int64, ok bool) {
	if s.expireAfterAccess {
		return int64(s.owner.expireAfterAccess), true
	}
	if s.expireAfterWrite {
		return int64(s.owner.expireAfterWrite), true
	}
	return 0, false
}

// isExpired uses a signed subtraction rather than now > e.expirationTime so
// a single int64 nanosecond-clock overflow cannot make every entry in the
// segment look expired (or unexpired) at once; the comparison only cares
// about the sign of the difference, which tolerates one wraparound.
func isExpired(e *entry, now int64) bool {
	return now-e.expirationTime.Load() > 0
}

func (s *segment) resetExpirationLocked(e *entry, now int64) {
	d, ok := s.expirationDuration()
	if !ok {
		return
	}
	e.expirationTime.Store(now + d)
}

// ---- ref construction -----------------------------------------------------

func (s *segment) newKeyRef(key any) (KeyRef, error) {
	if s.owner.keyStrength == WeakKeys {
		ref, ok := key.(referent)
		if !ok {
			return nil, ErrKeyNotWeakReferenceable
		}
		return newWeakKeyRef(ref), nil
	}
	return newStrongKeyRef(key), nil
}

func (s *segment) newValueRef(value any) (ValueRef, error) {
	switch s.owner.valueStrength {
	case WeakValues:
		ref, ok := value.(referent)
		if !ok {
			return nil, ErrValueNotWeakReferenceable
		}
		return newWeakValueRef(ref), nil
	case SoftValues:
		return newSoftValueRef(value, s.owner.softPolicy), nil
	default:
		return newStrongValueRef(value), nil
	}
}

func (s *segment) armKeyRef(e *entry, kref KeyRef) {
	if w, ok := kref.(*weakKeyRef); ok {
		w.arm(&s.keyQueue, e)
	}
}

func (s *segment) armValueRef(e *entry, vref ValueRef) {
	switch v := vref.(type) {
	case *weakValueRef:
		v.arm(&s.valueQueue, e)
	case *softValueRef:
		v.arm(&s.valueQueue, e)
	}
}

func (s *segment) rebindRefs(e *entry) {
	if r, ok := e.keyRef.(rebindable); ok {
		r.rebind(e)
	}
	if r, ok := e.loadValue().(rebindable); ok {
		r.rebind(e)
	}
}

// notificationKeyFor returns the key to report in a removal notification,
// substituting the Reclaimed sentinel when a weak key has already been
// collected by the time the entry is removed for some other reason.
func notificationKeyFor(e *entry) any {
	k, ok := e.liveKey()
	if !ok {
		return Reclaimed
	}
	return k
}

// ---- reads -----------------------------------------------------------------

func (s *segment) get(key any, hash uint32, eq Equivalence) (any, bool) {
	tab := s.loadTable()
	idx := indexFor(tab, hash)
	first := (*tab)[idx].Load()

	var found *entry
	for e := first; e != nil; e = e.next {
		if e.hash != hash {
			continue
		}
		k, ok := e.liveKey()
		if !ok {
			continue
		}
		if eq(key, k) {
			found = e
			break
		}
	}
	if found == nil {
		s.postReadCleanup()
		return nil, false
	}

	v, ok := found.liveValue()
	if !ok {
		s.postReadCleanup()
		return nil, false
	}
	if d, hasExpiry := s.expirationDuration(); hasExpiry {
		now := s.owner.clock.Now()
		if isExpired(found, now) {
			s.postReadCleanup()
			return nil, false
		}
		if s.expireAfterAccess {
			// Refreshed synchronously, unlike the recency buffer's
			// approximate, drain-throttled LRU bookkeeping below:
			// expiration correctness cannot wait for the next 64th read to
			// fold this access in, or a handful of reads spanning the
			// deadline would see the entry expire out from under them.
			found.expirationTime.Store(now + d)
		}
	}

	if sv, ok := found.loadValue().(*softValueRef); ok && s.owner.softPolicy != nil {
		s.owner.softPolicy.touch(sv)
	}

	s.recordAccess(found)
	s.postReadCleanup()
	return v, true
}

// forgetSoftValue drops vref from the soft-value secondary LRU when its
// entry is genuinely going away (explicit removal, size/expiration
// eviction, overwrite) rather than being reclaimed by the policy itself,
// which already removes its own LRU entry before calling reclaim.
func (s *segment) forgetSoftValue(vref ValueRef) {
	if sv, ok := vref.(*softValueRef); ok && s.owner.softPolicy != nil {
		s.owner.softPolicy.forget(sv)
	}
}

func (s *segment) containsKey(key any, hash uint32, eq Equivalence) bool {
	_, ok := s.get(key, hash, eq)
	return ok
}

// scanForValue performs a single full pass over every live entry looking
// for a value matching eq. Used by Map.ContainsValue's mod-count-bracketed
// retry loop; a single segment scan here is itself always consistent since
// it only reads published pointers.
func (s *segment) scanForValue(value any, eq Equivalence) bool {
	tab := s.loadTable()
	for i := range *tab {
		for e := (*tab)[i].Load(); e != nil; e = e.next {
			v, ok := e.liveValue()
			if ok && eq(value, v) {
				return true
			}
		}
	}
	return false
}

// recordAccess pushes e onto the lock-free recency buffer (if any ordering
// is enabled) without acquiring the segment lock; the write is folded into
// the access-order deque later, during a cleanup pass.
func (s *segment) recordAccess(e *entry) {
	if s.accessDeque == nil {
		return
	}
	s.recency.add(e)
}

// postReadCleanup triggers a best-effort cleanup pass every
// drainThreshold+1'th read, the same throttle the segment design specifies
// so an unlocked reader almost never pays a lock acquisition.
func (s *segment) postReadCleanup() {
	if s.readCount.Add(1)&drainThreshold != 0 {
		return
	}
	s.tryRunCleanup()
}

func (s *segment) tryRunCleanup() {
	if !s.mu.TryLock() {
		return
	}
	s.cleanupLocked()
	s.mu.Unlock()
	s.owner.notifier.flush()
}

// ---- cleanup, expiration, reclamation (all under the segment lock) -------

// cleanupLocked drains the recency buffer into the access-order deque,
// drains both reclamation queues, and expires anything past its deadline.
// Safe to call opportunistically (tryRunCleanup) or mandatorily
// (preWriteCleanupLocked); idempotent if there is nothing to do.
func (s *segment) cleanupLocked() {
	s.drainRecencyLocked()
	s.drainReclamationQueuesLocked()
	s.expireEntriesLocked()
}

func (s *segment) preWriteCleanupLocked() {
	s.cleanupLocked()
}

func (s *segment) drainRecencyLocked() {
	if s.accessDeque == nil {
		return
	}
	s.recency.drainInto(func(e *entry) {
		if !e.isLive() {
			return
		}
		s.accessDeque.offer(e)
		now := s.owner.clock.Now()
		if s.expireAfterAccess {
			s.resetExpirationLocked(e, now)
		}
	}, drainMax)
}

func (s *segment) drainReclamationQueuesLocked() {
	for _, e := range s.keyQueue.drain(drainMax) {
		s.reclaimKeyLocked(e)
	}
	for _, rec := range s.valueQueue.drain(drainMax) {
		s.reclaimValueLocked(rec.entry, rec.vref, rec.lastValue)
	}
}

func (s *segment) expireEntriesLocked() {
	deque := s.activeExpirationDeque()
	if deque == nil {
		return
	}
	now := s.owner.clock.Now()
	for {
		e := deque.peek()
		if e == nil || !isExpired(e, now) {
			return
		}
		cause := Expired
		if e.loadValue().isLoading() {
			// A loader is currently producing this key's value, but the
			// entry's prior deque position has aged past its deadline.
			// Distinguished from a plain Expired per the removal-cause
			// design so a listener that cares can tell the two apart.
			cause = ExpiredOnLoad
		}
		s.removeEntryLocked(e, cause)
	}
}

// reclaimKeyLocked splices out an entry whose weak key the garbage
// collector has already reclaimed. The entry may have already been spliced
// out by an unrelated removal by the time this runs; the chainContains check
// guards against operating on a chain it is no longer part of.
func (s *segment) reclaimKeyLocked(e *entry) {
	tab := s.loadTable()
	idx := indexFor(tab, e.hash)
	first := (*tab)[idx].Load()
	if !chainContains(first, e) {
		return
	}

	vref := e.loadValue()
	wasCounted := !vref.isLoading() && !vref.isReclaimed()
	value, _ := vref.get()

	s.spliceLocked(tab, idx, first, e)
	if wasCounted {
		s.count.Add(-1)
	}
	s.modCount.Add(1)
	s.owner.notifier.enqueue(Reclaimed, value, Collected)
}

// reclaimValueLocked handles a weak or soft value the runtime/policy has
// reclaimed. Per the entry state machine, a reclaimed-value entry is not
// spliced out of its chain outright — put reinstates it in place, reusing
// the slot — so this only needs to stop counting it and fire the
// notification, re-checking that the same ValueRef instance is still
// installed in case a concurrent Put already replaced it.
func (s *segment) reclaimValueLocked(e *entry, vref ValueRef, lastValue any) {
	if e.loadValue() != vref {
		return
	}
	tab := s.loadTable()
	idx := indexFor(tab, e.hash)
	first := (*tab)[idx].Load()
	if !chainContains(first, e) {
		return
	}

	key := notificationKeyFor(e)
	s.count.Add(-1)
	s.modCount.Add(1)
	s.owner.notifier.enqueue(key, lastValue, Collected)
}

func chainContains(first, target *entry) bool {
	for e := first; e != nil; e = e.next {
		if e == target {
			return true
		}
	}
	return false
}

// afterWriteLocked refreshes recency/expiration bookkeeping for an entry
// that was just inserted or had its value replaced.
func (s *segment) afterWriteLocked(e *entry) {
	now := s.owner.clock.Now()
	if s.accessDeque != nil {
		s.accessDeque.offer(e)
	}
	if s.writeDeque != nil {
		s.writeDeque.offer(e)
	}
	if s.expireAfterAccess || s.expireAfterWrite {
		s.resetExpirationLocked(e, now)
	}
}

// removeEntryLocked splices e out of its bucket chain and both deques and
// queues a removal notification. The entry may still be mid-load or hold a
// reclaimed value (expiration and eviction take whatever sits at a deque's
// head); count is decremented only when the entry was being counted, the
// same rule reclaimKeyLocked applies.
func (s *segment) removeEntryLocked(e *entry, cause RemovalCause) {
	tab := s.loadTable()
	idx := indexFor(tab, e.hash)
	first := (*tab)[idx].Load()
	if !chainContains(first, e) {
		return
	}

	key := notificationKeyFor(e)
	vref := e.loadValue()
	wasCounted := !vref.isLoading() && !vref.isReclaimed()
	value, _ := vref.get()

	s.spliceLocked(tab, idx, first, e)
	s.forgetSoftValue(vref)

	if wasCounted {
		s.count.Add(-1)
	}
	s.modCount.Add(1)
	if cause.WasEvicted() {
		s.owner.stats.RecordEviction()
	}
	s.owner.notifier.enqueue(key, value, cause)
}

// spliceLocked removes target from the chain rooted at first, defensively
// cloning every entry that precedes it so that a lock-free reader mid
// traversal of the old chain never observes a mutated next pointer — the
// same trailing-run-reuse trick the teacher's rehash uses, generalized to a
// single-entry splice. Also keeps deque membership pointed at whichever
// entry object ends up reachable from the table.
func (s *segment) spliceLocked(tab *segmentTable, idx int, first, target *entry) {
	newHead := target.next
	for p := first; p != target; p = p.next {
		clone := p.cloneWithNext(newHead)
		s.rebindRefs(clone)
		s.replaceInDeques(p, clone)
		newHead = clone
	}
	(*tab)[idx].Store(newHead)
	s.unlinkFromDeques(target)
}

func (s *segment) replaceInDeques(oldE, newE *entry) {
	if s.accessDeque != nil && s.accessDeque.contains(oldE) {
		s.accessDeque.replace(oldE, newE)
	}
	if s.writeDeque != nil && s.writeDeque.contains(oldE) {
		s.writeDeque.replace(oldE, newE)
	}
}

func (s *segment) unlinkFromDeques(e *entry) {
	if s.accessDeque != nil {
		s.accessDeque.remove(e)
	}
	if s.writeDeque != nil {
		s.writeDeque.remove(e)
	}
}

// ---- writes -----------------------------------------------------------------

// classifyPrevious inspects an existing entry's current value-ref and
// reports what Put should do with it: the live value to report as
// "previous" (if any), and whether replacing it warrants a REPLACED
// notification.
func classifyPrevious(vref ValueRef) (value any, isLive bool) {
	if vref.isLoading() || vref.isReclaimed() {
		return nil, false
	}
	v, ok := vref.get()
	return v, ok
}

// put installs value for key, returning the previous live value (if any).
// onlyIfAbsent implements PutIfAbsent: if a live value is already present,
// it is left untouched and returned as-is.
func (s *segment) put(key any, hash uint32, value any, onlyIfAbsent bool) (any, bool, error) {
	s.mu.Lock()
	s.preWriteCleanupLocked()

	if s.count.Load()+1 > s.threshold {
		s.expandLocked()
	}

	tab := s.loadTable()
	idx := indexFor(tab, hash)
	first := (*tab)[idx].Load()

	var matched *entry
	for e := first; e != nil; e = e.next {
		if e.hash != hash {
			continue
		}
		k, ok := e.keyRef.get()
		if !ok {
			continue
		}
		if s.owner.keyEquivalence(key, k) {
			matched = e
			break
		}
	}

	if matched != nil {
		oldVref := matched.loadValue()
		prevValue, wasLive := classifyPrevious(oldVref)
		if wasLive && onlyIfAbsent {
			s.mu.Unlock()
			s.owner.notifier.flush()
			return prevValue, true, nil
		}

		vref, err := s.newValueRef(value)
		if err != nil {
			s.mu.Unlock()
			return nil, false, err
		}
		s.armValueRef(matched, vref)
		matched.storeValue(vref)
		if wasLive {
			s.forgetSoftValue(oldVref)
		}

		if wasLive {
			k, _ := matched.keyRef.get()
			s.owner.notifier.enqueue(k, prevValue, Replaced)
		} else {
			s.count.Add(1)
		}
		s.modCount.Add(1)
		s.afterWriteLocked(matched)
		s.mu.Unlock()
		s.owner.notifier.flush()
		return prevValue, wasLive, nil
	}

	if s.sizeBounded && s.maxSegmentSize == 0 {
		s.mu.Unlock()
		s.owner.notifier.enqueue(key, value, Size)
		s.owner.notifier.flush()
		return nil, false, nil
	}

	if s.sizeBounded && uint64(s.count.Load()) >= s.maxSegmentSize {
		s.evictOneLocked()
		tab = s.loadTable()
		idx = indexFor(tab, hash)
		first = (*tab)[idx].Load()
	}

	kref, err := s.newKeyRef(key)
	if err != nil {
		s.mu.Unlock()
		return nil, false, err
	}
	vref, err := s.newValueRef(value)
	if err != nil {
		s.mu.Unlock()
		return nil, false, err
	}

	e := newEntry(kref, hash, first)
	e.storeValue(vref)
	s.armKeyRef(e, kref)
	s.armValueRef(e, vref)

	(*tab)[idx].Store(e)
	s.count.Add(1)
	s.modCount.Add(1)
	s.afterWriteLocked(e)

	s.mu.Unlock()
	s.owner.notifier.flush()
	return nil, false, nil
}

// replaceValue implements Replace(key, newValue): only replaces if a live
// value is currently present.
func (s *segment) replaceValue(key any, hash uint32, newValue any) (any, bool, error) {
	s.mu.Lock()
	s.preWriteCleanupLocked()

	tab := s.loadTable()
	idx := indexFor(tab, hash)
	first := (*tab)[idx].Load()

	for e := first; e != nil; e = e.next {
		if e.hash != hash {
			continue
		}
		k, ok := e.keyRef.get()
		if !ok || !s.owner.keyEquivalence(key, k) {
			continue
		}
		oldVref := e.loadValue()
		prevValue, wasLive := classifyPrevious(oldVref)
		if !wasLive {
			s.mu.Unlock()
			return nil, false, nil
		}
		// Forget the superseded soft value before registering its
		// replacement, so the replacement never pushes an unrelated soft
		// value out of a full LRU.
		s.forgetSoftValue(oldVref)
		vref, err := s.newValueRef(newValue)
		if err != nil {
			s.mu.Unlock()
			return nil, false, err
		}
		s.armValueRef(e, vref)
		e.storeValue(vref)
		s.modCount.Add(1)
		s.owner.notifier.enqueue(k, prevValue, Replaced)
		s.afterWriteLocked(e)
		s.mu.Unlock()
		s.owner.notifier.flush()
		return prevValue, true, nil
	}
	s.mu.Unlock()
	return nil, false, nil
}

// compareAndReplace implements Replace(key, oldValue, newValue): a
// compare-and-swap against the currently live value using the owning Map's
// value equivalence.
func (s *segment) compareAndReplace(key any, hash uint32, oldValue, newValue any) (bool, error) {
	s.mu.Lock()
	s.preWriteCleanupLocked()

	tab := s.loadTable()
	idx := indexFor(tab, hash)
	first := (*tab)[idx].Load()

	for e := first; e != nil; e = e.next {
		if e.hash != hash {
			continue
		}
		k, ok := e.keyRef.get()
		if !ok || !s.owner.keyEquivalence(key, k) {
			continue
		}
		oldVref := e.loadValue()
		curValue, wasLive := classifyPrevious(oldVref)
		if !wasLive || !s.owner.valueEquivalence(oldValue, curValue) {
			s.mu.Unlock()
			return false, nil
		}
		s.forgetSoftValue(oldVref)
		vref, err := s.newValueRef(newValue)
		if err != nil {
			s.mu.Unlock()
			return false, err
		}
		s.armValueRef(e, vref)
		e.storeValue(vref)
		s.modCount.Add(1)
		s.owner.notifier.enqueue(k, curValue, Replaced)
		s.afterWriteLocked(e)
		s.mu.Unlock()
		s.owner.notifier.flush()
		return true, nil
	}
	s.mu.Unlock()
	return false, nil
}

// remove implements Remove(key): unconditional removal of whatever live
// entry matches.
func (s *segment) remove(key any, hash uint32) (any, bool) {
	s.mu.Lock()
	s.preWriteCleanupLocked()

	tab := s.loadTable()
	idx := indexFor(tab, hash)
	first := (*tab)[idx].Load()

	for e := first; e != nil; e = e.next {
		if e.hash != hash {
			continue
		}
		k, ok := e.keyRef.get()
		if !ok || !s.owner.keyEquivalence(key, k) {
			continue
		}
		value, wasLive := classifyPrevious(e.loadValue())
		s.removeEntryLocked(e, Explicit)
		s.mu.Unlock()
		s.owner.notifier.flush()
		return value, wasLive
	}
	s.mu.Unlock()
	return nil, false
}

// removeMatching implements Remove(key, value): removes only if the live
// value currently present equals value under the owning Map's value
// equivalence.
func (s *segment) removeMatching(key any, hash uint32, value any) bool {
	s.mu.Lock()
	s.preWriteCleanupLocked()

	tab := s.loadTable()
	idx := indexFor(tab, hash)
	first := (*tab)[idx].Load()

	for e := first; e != nil; e = e.next {
		if e.hash != hash {
			continue
		}
		k, ok := e.keyRef.get()
		if !ok || !s.owner.keyEquivalence(key, k) {
			continue
		}
		curValue, wasLive := classifyPrevious(e.loadValue())
		if !wasLive || !s.owner.valueEquivalence(value, curValue) {
			s.mu.Unlock()
			return false
		}
		s.removeEntryLocked(e, Explicit)
		s.mu.Unlock()
		s.owner.notifier.flush()
		return true
	}
	s.mu.Unlock()
	return false
}

// clear empties the segment, firing an EXPLICIT notification for every live
// entry it held.
func (s *segment) clear() {
	s.mu.Lock()
	tab := s.loadTable()
	for i := range *tab {
		for e := (*tab)[i].Load(); e != nil; e = e.next {
			value, wasLive := classifyPrevious(e.loadValue())
			if wasLive {
				key := notificationKeyFor(e)
				s.owner.notifier.enqueue(key, value, Explicit)
			}
		}
		(*tab)[i].Store(nil)
	}
	s.count.Store(0)
	s.modCount.Add(1)
	if s.accessDeque != nil {
		s.accessDeque.clear()
	}
	if s.writeDeque != nil {
		s.writeDeque.clear()
	}
	s.mu.Unlock()
	s.owner.notifier.flush()
}

// evictOneLocked removes the least-recently-used live entry to make room
// for an about-to-be-inserted one, the SIZE cause path evictIfNeeded/put
// drive.
func (s *segment) evictOneLocked() {
	if s.accessDeque == nil {
		return
	}
	victim := s.accessDeque.peek()
	if victim == nil {
		return
	}
	s.removeEntryLocked(victim, Size)
}

// expandLocked doubles the table and rehashes every entry into the new
// table, reusing the teacher's trailing-chain-sharing optimization: entries
// from a given old chain that land in the same new bucket as the chain's
// own tail are relinked as-is (no clone needed, since they keep the same
// next pointer and readers of the old chain are only ever looking for a
// still-reachable suffix), while everything before the first such run is
// defensively cloned so concurrent lock-free readers mid-traversal of the
// old chain never see a next pointer change underneath them.
func (s *segment) expandLocked() {
	oldTab := s.loadTable()
	oldCapacity := len(*oldTab)
	if oldCapacity >= MaximumCapacity {
		return
	}
	newCapacity := oldCapacity * 2
	newTab := newSegmentTable(newCapacity)

	for i := 0; i < oldCapacity; i++ {
		e := (*oldTab)[i].Load()
		if e == nil {
			continue
		}

		// Find the trailing run that all hashes to the same new index as
		// the chain's last node.
		lowIdx := int(e.hash) & (newCapacity - 1)
		lastRun := e
		lastRunIdx := lowIdx
		for p := e.next; p != nil; p = p.next {
			idx := int(p.hash) & (newCapacity - 1)
			if idx != lastRunIdx {
				lastRun = p
				lastRunIdx = idx
			}
		}
		(*newTab)[lastRunIdx].Store(lastRun)

		// Clone everything before the reused run into its correct bucket.
		for p := e; p != lastRun; p = p.next {
			idx := int(p.hash) & (newCapacity - 1)
			head := (*newTab)[idx].Load()
			clone := p.cloneWithNext(head)
			s.rebindRefs(clone)
			s.replaceInDeques(p, clone)
			(*newTab)[idx].Store(clone)
		}
	}

	s.table.Store(newTab)
	s.threshold = int32(float64(newCapacity) * defaultLoadFactor)
}

// ---- loader / at-most-one-compute support ---------------------------------

// installLoadingRef implements the producer-or-waiter decision at the heart
// of GetOrLoad: if another goroutine is already loading key, its
// loadingValueRef is returned with isProducer false so the caller waits on
// it instead of invoking the loader itself. Otherwise this goroutine
// becomes the producer, installing a fresh loadingValueRef (on a new entry,
// or in place of a reclaimed/unset one) while still holding the segment
// lock, which is what makes the two outcomes race-free: no other goroutine
// can observe the key as absent once this call returns.
func (s *segment) installLoadingRef(key any, hash uint32, eq Equivalence) (*loadingValueRef, bool, error) {
	s.mu.Lock()
	s.preWriteCleanupLocked()

	tab := s.loadTable()
	idx := indexFor(tab, hash)
	first := (*tab)[idx].Load()

	for e := first; e != nil; e = e.next {
		if e.hash != hash {
			continue
		}
		k, ok := e.keyRef.get()
		if !ok || !eq(key, k) {
			continue
		}
		vref := e.loadValue()
		if lr, ok := vref.(*loadingValueRef); ok {
			s.mu.Unlock()
			return lr, false, nil
		}
		if v, wasLive := classifyPrevious(vref); wasLive {
			// A concurrent writer already published a real value between
			// this call's initial unlocked Get and acquiring the lock.
			// Hand the caller a pre-resolved loadingValueRef instead of
			// making it the producer.
			resolved := newLoadingValueRef()
			resolved.publishSuccess(v)
			s.mu.Unlock()
			return resolved, false, nil
		}

		lr := newLoadingValueRef()
		e.storeValue(lr)
		s.mu.Unlock()
		return lr, true, nil
	}

	if s.count.Load()+1 > s.threshold {
		s.expandLocked()
		tab = s.loadTable()
		idx = indexFor(tab, hash)
		first = (*tab)[idx].Load()
	}

	kref, err := s.newKeyRef(key)
	if err != nil {
		s.mu.Unlock()
		return nil, false, err
	}
	lr := newLoadingValueRef()
	e := newEntry(kref, hash, first)
	e.storeValue(lr)
	s.armKeyRef(e, kref)
	(*tab)[idx].Store(e)
	s.mu.Unlock()
	return lr, true, nil
}

// abandonLoadingRef takes the segment lock and splices out the placeholder
// entry a failed load installed. No removal notification fires: the placeholder never held a
// real value a listener could meaningfully be told about.
func (s *segment) abandonLoadingRef(key any, hash uint32, eq Equivalence, loading *loadingValueRef) {
	s.mu.Lock()
	tab := s.loadTable()
	idx := indexFor(tab, hash)
	first := (*tab)[idx].Load()

	for e := first; e != nil; e = e.next {
		if e.hash != hash {
			continue
		}
		if e.loadValue() != ValueRef(loading) {
			continue
		}
		s.spliceLocked(tab, idx, first, e)
		s.modCount.Add(1)
		break
	}
	s.mu.Unlock()
}

// publishLoadedValue replaces the placeholder entry's loadingValueRef with
// the real, strength-appropriate value-ref, and counts the entry as live
// for the first time.
func (s *segment) publishLoadedValue(key any, hash uint32, eq Equivalence, loading *loadingValueRef, value any) {
	s.mu.Lock()
	tab := s.loadTable()
	idx := indexFor(tab, hash)
	first := (*tab)[idx].Load()

	for e := first; e != nil; e = e.next {
		if e.hash != hash {
			continue
		}
		if e.loadValue() != ValueRef(loading) {
			continue
		}
		vref, err := s.newValueRef(value)
		if err != nil {
			// Nothing sensible to do with a strength mismatch discovered
			// this late; leave the loading placeholder in place so a
			// future Put/load attempt can still reach the key, and let
			// the caller's own error path (there is none here — value
			// came from a successful loader call) surface separately.
			break
		}
		s.armValueRef(e, vref)
		e.storeValue(vref)
		s.count.Add(1)
		s.modCount.Add(1)
		s.afterWriteLocked(e)
		break
	}
	s.mu.Unlock()
	s.owner.notifier.flush()
}
