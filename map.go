package segmap

import (
	"time"
)

// Map is a concurrent, in-process associative map modeled on Guava's
// LocalCache: a table of independent segments, each an exclusive-write
// concurrent-read shard, layered with optional weak/soft references, size-
// bounded LRU eviction, write-or-access-time expiration, removal
// notification, and loader-backed at-most-one-compute semantics.
type Map struct {
	segments     []*segment
	segmentMask  uint32
	segmentShift uint

	keyStrength   KeyStrength
	valueStrength ValueStrength

	keyEquivalence Equivalence
	keyHash        Hasher

	clock Clock

	notifier *removalNotifier
	stats    StatsCounter
	logger   *logger

	loader Loader

	maxTotalSize      *uint64
	expireAfterWrite  time.Duration
	expireAfterAccess time.Duration

	softPolicy *softPolicy
}

// New builds a Map from zero or more Options layered over the package
// defaults. Returns ErrIllegalConfig (use errors.Is) if the resulting
// configuration is internally inconsistent.
func New(opts ...Option) (*Map, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// ssize is the smallest power of two at least cfg.ConcurrencyLevel,
	// capped at MaxSegments and, when the map is size-bounded, at
	// MaximumSize too — a map configured for at most 3 entries gets no
	// benefit from more than a handful of segments, and a cap above
	// MaximumSize could leave some segments with a zero share. sshift is
	// the number of bits that takes to express, matching the teacher's own
	// ssize/sshift derivation.
	segmentCap := MaxSegments
	if cfg.MaximumSize != nil && *cfg.MaximumSize > 0 && *cfg.MaximumSize < uint64(segmentCap) {
		segmentCap = int(*cfg.MaximumSize)
	}
	sshift := 0
	ssize := 1
	for ssize < cfg.ConcurrencyLevel && ssize*2 <= segmentCap {
		ssize <<= 1
		sshift++
	}
	shift := uint(32 - sshift)
	mask := uint32(ssize - 1)

	perSegmentInitial := cfg.InitialCapacity / ssize
	if perSegmentInitial < 1 {
		perSegmentInitial = 1
	}
	capacity := 1
	for capacity < perSegmentInitial {
		capacity <<= 1
	}

	keyEquivalence := cfg.KeyEquivalence
	if cfg.KeyStrength == WeakKeys {
		keyEquivalence = identityEquivalence
	}

	m := &Map{
		segmentMask:       mask,
		segmentShift:      shift,
		keyStrength:       cfg.KeyStrength,
		valueStrength:     cfg.ValueStrength,
		keyEquivalence:    keyEquivalence,
		keyHash:           cfg.KeyHash,
		clock:             cfg.Clock,
		stats:             cfg.Stats,
		logger:            newLogger(cfg.Logger),
		loader:            cfg.Loader,
		maxTotalSize:      cfg.MaximumSize,
		expireAfterWrite:  cfg.ExpireAfterWrite,
		expireAfterAccess: cfg.ExpireAfterAccess,
	}
	m.notifier = newRemovalNotifier(cfg.RemovalListener, m.logger)

	if cfg.ValueStrength == SoftValues {
		m.softPolicy = newSoftPolicy(cfg.SoftValueCapacity)
	}

	m.segments = make([]*segment, ssize)
	for i := range m.segments {
		m.segments[i] = newSegment(m, capacity)
		if m.maxTotalSize != nil {
			m.segments[i].maxSegmentSize = *m.maxTotalSize / uint64(ssize)
		}
	}

	return m, nil
}

// valueEquivalence is keyEquivalence's counterpart for values: identity
// when values are weakly or softly held (so a reclaimed value can never
// spuriously compare equal to a live one of the same address), plain ==
// otherwise.
func (m *Map) valueEquivalence(a, b any) bool {
	if m.valueStrength == WeakValues || m.valueStrength == SoftValues {
		return identityEquivalence(a, b)
	}
	return defaultEquivalence(a, b)
}

func (m *Map) hashOf(key any) uint32 {
	var raw uint32
	if m.keyStrength == WeakKeys {
		raw = identityHash(key)
	} else {
		raw = m.keyHash(key)
	}
	return spread(raw)
}

func (m *Map) segmentFor(hash uint32) *segment {
	idx := (hash >> m.segmentShift) & m.segmentMask
	return m.segments[idx]
}

// Get returns the value associated with key, or (nil, false) if absent,
// expired, or its reference has been reclaimed.
func (m *Map) Get(key any) (any, bool) {
	if key == nil {
		return nil, false
	}
	hash := m.hashOf(key)
	v, ok := m.segmentFor(hash).get(key, hash, m.effectiveKeyEquivalence())
	if ok {
		m.stats.RecordHit()
	} else {
		m.stats.RecordMiss()
	}
	return v, ok
}

// effectiveKeyEquivalence forces identity comparison for weak keys
// regardless of any caller-supplied KeyEquivalence, the same way
// valueEquivalence does for weak/soft values. This is a deliberate
// override, not a bug: see DESIGN.md's Open Question resolutions for why
// WithWeakKeys combined with WithEquivalence is accepted rather than
// rejected at construction.
func (m *Map) effectiveKeyEquivalence() Equivalence {
	if m.keyStrength == WeakKeys {
		return identityEquivalence
	}
	return m.keyEquivalence
}

// ContainsKey reports whether key currently maps to a live value.
func (m *Map) ContainsKey(key any) bool {
	if key == nil {
		return false
	}
	hash := m.hashOf(key)
	return m.segmentFor(hash).containsKey(key, hash, m.effectiveKeyEquivalence())
}

// ContainsValue reports whether any live entry's value equals value. Scans
// every segment up to containsValueRetries times, bracketed by each
// segment's modCount, to avoid a false negative from a concurrent rehash;
// after the last retry it simply returns its last observation, which can
// in principle still race with a concurrent mutation — the same weakly
// consistent guarantee Map's iteration methods make.
func (m *Map) ContainsValue(value any) bool {
	eq := m.valueEquivalence
	for attempt := 0; attempt < containsValueRetries; attempt++ {
		before := m.modCountSnapshot()
		for _, s := range m.segments {
			if s.scanForValue(value, eq) {
				return true
			}
		}
		after := m.modCountSnapshot()
		if before == after {
			return false
		}
	}
	return false
}

func (m *Map) modCountSnapshot() int64 {
	var sum int64
	for _, s := range m.segments {
		sum += s.modCount.Load()
	}
	return sum
}

// Put installs value for key, returning the previous live value (if any).
func (m *Map) Put(key, value any) (any, error) {
	if key == nil {
		return nil, ErrNilKey
	}
	if value == nil {
		return nil, ErrNilValue
	}
	hash := m.hashOf(key)
	prev, _, err := m.segmentFor(hash).put(key, hash, value, false)
	return prev, err
}

// PutIfAbsent installs value for key only if no live value is already
// present, returning whatever live value ends up associated with key
// (either the one just installed, or the pre-existing one left untouched).
func (m *Map) PutIfAbsent(key, value any) (any, error) {
	if key == nil {
		return nil, ErrNilKey
	}
	if value == nil {
		return nil, ErrNilValue
	}
	hash := m.hashOf(key)
	prev, existed, err := m.segmentFor(hash).put(key, hash, value, true)
	if err != nil {
		return nil, err
	}
	if existed {
		return prev, nil
	}
	return value, nil
}

// Replace overwrites key's value only if a live value is currently present,
// returning the value that was replaced.
func (m *Map) Replace(key, newValue any) (any, bool, error) {
	if key == nil {
		return nil, false, ErrNilKey
	}
	if newValue == nil {
		return nil, false, ErrNilValue
	}
	hash := m.hashOf(key)
	return m.segmentFor(hash).replaceValue(key, hash, newValue)
}

// CompareAndReplace overwrites key's value with newValue only if its
// current live value equals oldValue under the map's value equivalence.
func (m *Map) CompareAndReplace(key, oldValue, newValue any) (bool, error) {
	if key == nil {
		return false, ErrNilKey
	}
	if oldValue == nil || newValue == nil {
		return false, ErrNilValue
	}
	hash := m.hashOf(key)
	return m.segmentFor(hash).compareAndReplace(key, hash, oldValue, newValue)
}

// Remove unconditionally removes key, returning the value that was
// present, if any.
func (m *Map) Remove(key any) (any, bool) {
	if key == nil {
		return nil, false
	}
	hash := m.hashOf(key)
	return m.segmentFor(hash).remove(key, hash)
}

// RemoveMatching removes key only if its current live value equals value
// under the map's value equivalence.
func (m *Map) RemoveMatching(key, value any) bool {
	if key == nil || value == nil {
		return false
	}
	hash := m.hashOf(key)
	return m.segmentFor(hash).removeMatching(key, hash, value)
}

// Size returns the approximate number of live entries. Weakly consistent:
// a segment whose count changes mid-call may be observed either before or
// after the change.
func (m *Map) Size() int {
	var total int64
	for _, s := range m.segments {
		total += int64(s.count.Load())
	}
	return int(total)
}

// IsEmpty reports whether the map currently has no live entries. Takes two
// passes over the segments, bracketed by each segment's modCount, so a
// concurrent Put-then-Remove pair racing the check cannot be mistaken for
// "always was empty" when it wasn't.
func (m *Map) IsEmpty() bool {
	counts := make([]int32, len(m.segments))
	mods := make([]int64, len(m.segments))
	for i, s := range m.segments {
		counts[i] = s.count.Load()
		mods[i] = s.modCount.Load()
	}
	allZero := true
	for _, c := range counts {
		if c != 0 {
			allZero = false
			break
		}
	}
	if !allZero {
		return false
	}
	for i, s := range m.segments {
		if s.modCount.Load() != mods[i] {
			return m.Size() == 0
		}
	}
	return true
}

// Clear removes every entry, firing an EXPLICIT removal notification for
// each live one.
func (m *Map) Clear() {
	for _, s := range m.segments {
		s.clear()
	}
}

// Stats returns a snapshot of the map's accumulated hit/miss/load/eviction
// counters.
func (m *Map) Stats() Stats {
	return m.stats.Snapshot()
}

// GetOrLoad returns key's current live value, computing and installing it
// via the configured Loader if absent. Concurrent calls for the same
// absent key collapse onto a single Loader invocation: the first caller
// becomes the producer and every other caller blocks on its result instead
// of invoking the loader itself. Returns ErrNoLoader if the map was built
// without WithLoader.
func (m *Map) GetOrLoad(key any) (any, error) {
	if key == nil {
		return nil, ErrNilKey
	}
	if m.loader == nil {
		return nil, ErrNoLoader
	}
	return m.getOrCompute(key, m.loader)
}

// GetOrCompute is GetOrLoad's per-call counterpart: it uses fn instead of
// the map's configured Loader, which a map built without WithLoader can
// still use.
func (m *Map) GetOrCompute(key any, fn Loader) (any, error) {
	if key == nil {
		return nil, ErrNilKey
	}
	if fn == nil {
		return nil, ErrNoLoader
	}
	return m.getOrCompute(key, fn)
}

func (m *Map) getOrCompute(key any, fn Loader) (any, error) {
	hash := m.hashOf(key)
	s := m.segmentFor(hash)
	eq := m.effectiveKeyEquivalence()

	if v, ok := s.get(key, hash, eq); ok {
		m.stats.RecordHit()
		return v, nil
	}

	loading, isProducer, err := s.installLoadingRef(key, hash, eq)
	if err != nil {
		return nil, err
	}

	if !isProducer {
		m.stats.RecordMiss()
		v, err := loading.waitForValue()
		if err != nil {
			return nil, err
		}
		return v, nil
	}

	m.stats.RecordMiss()
	start := m.clock.Now()
	value, loadErr := fn(key)
	elapsed := time.Duration(m.clock.Now() - start)

	if loadErr == nil && value == nil {
		loadErr = ErrLoaderReturnedNil
	}
	if loadErr != nil {
		m.stats.RecordLoadFailure(elapsed)
		computeErr := &ComputationError{Key: key, cause: loadErr}
		s.abandonLoadingRef(key, hash, eq, loading)
		loading.publishFailure(computeErr)
		return nil, computeErr
	}

	m.stats.RecordLoadSuccess(elapsed)
	s.publishLoadedValue(key, hash, eq, loading, value)
	loading.publishSuccess(value)
	return value, nil
}
