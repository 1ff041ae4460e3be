package segmap

// Entry is a key/value pair produced by a Map's bulk iteration methods. It
// is a snapshot taken at iteration time, not a live view: a concurrent
// writer may already have replaced or removed it by the time a caller
// inspects one.
type Entry struct {
	Key   any
	Value any

	owner *Map
}

// SetValue installs newValue for this entry's key, exactly as a direct call
// to Map.Put would. It does not validate that the entry is still the live
// one for its key — a concurrent writer may have replaced or removed it
// since the snapshot was taken, in which case this simply becomes an
// ordinary Put of a (possibly already-gone) key.
func (e Entry) SetValue(newValue any) (any, error) {
	return e.owner.Put(e.Key, newValue)
}

// mapIterator walks every segment's table bucket by bucket and chain by
// chain, skipping anything not currently live. It takes no segment lock —
// the same weakly consistent guarantee Go's own map range gives: a write
// concurrent with the walk may or may not be reflected in what the walk
// observes, but the walk itself never panics or repeats an entry, grounded
// on the teacher's WLockingMapIterator advance/HasNext/NextEntry shape.
type mapIterator struct {
	m *Map

	segIdx    int
	tab       *segmentTable
	bucketIdx int
	chain     *entry
}

func newMapIterator(m *Map) *mapIterator {
	return &mapIterator{m: m, segIdx: -1}
}

// next returns the next live entry, or (nil, false) once the walk is done.
func (it *mapIterator) next() (*entry, bool) {
	for {
		if it.chain != nil {
			e := it.chain
			it.chain = e.next
			if _, ok := e.liveKey(); !ok {
				continue
			}
			if _, ok := e.liveValue(); !ok {
				continue
			}
			return e, true
		}

		for it.tab == nil || it.bucketIdx >= len(*it.tab) {
			it.segIdx++
			if it.segIdx >= len(it.m.segments) {
				return nil, false
			}
			it.tab = it.m.segments[it.segIdx].loadTable()
			it.bucketIdx = 0
		}
		it.chain = (*it.tab)[it.bucketIdx].Load()
		it.bucketIdx++
	}
}

// Iterate calls fn for every live entry, stopping early if fn returns
// false. Weakly consistent: see mapIterator.
func (m *Map) Iterate(fn func(key, value any) bool) {
	it := newMapIterator(m)
	for {
		e, ok := it.next()
		if !ok {
			return
		}
		k, kok := e.liveKey()
		v, vok := e.liveValue()
		if !kok || !vok {
			continue
		}
		if !fn(k, v) {
			return
		}
	}
}

// KeySet returns a snapshot slice of every currently live key.
func (m *Map) KeySet() []any {
	var out []any
	m.Iterate(func(k, _ any) bool {
		out = append(out, k)
		return true
	})
	return out
}

// Values returns a snapshot slice of every currently live value.
func (m *Map) Values() []any {
	var out []any
	m.Iterate(func(_, v any) bool {
		out = append(out, v)
		return true
	})
	return out
}

// Entries returns a snapshot slice of every currently live key/value pair.
func (m *Map) Entries() []Entry {
	var out []Entry
	m.Iterate(func(k, v any) bool {
		out = append(out, Entry{Key: k, Value: v, owner: m})
		return true
	})
	return out
}
