package segmap

// Constants governing default sizing and the hard caps the segmented
// design imposes, carried over from the teacher's own
// DEFAULT_INITIAL_CAPACITY / MAXIMUM_CAPACITY / MAX_SEGMENTS block, plus
// the drain tuning constants the expiration/eviction/notification design
// calls for.
const (
	// DefaultInitialCapacity is used when a Config does not set
	// InitialCapacity.
	DefaultInitialCapacity = 16

	// DefaultConcurrencyLevel is used when a Config does not set
	// ConcurrencyLevel; it is the estimate of concurrent writers the
	// segment count is sized from.
	DefaultConcurrencyLevel = 4

	// MaximumCapacity is the largest a single segment's table is ever
	// allowed to grow to, regardless of configured size.
	MaximumCapacity = 1 << 30

	// MaxSegments caps how many segments a Map may be split into, no
	// matter how large a ConcurrencyLevel is requested.
	MaxSegments = 1 << 16

	// drainThreshold gates how often an unlocked read triggers a
	// best-effort cleanup pass: every drainThreshold+1'th read. Must stay
	// 2^n - 1 so the check is a cheap bitmask test.
	drainThreshold = 0x3F

	// drainMax bounds how many items a single cleanup pass pulls from
	// the recency buffer or a reclamation queue.
	drainMax = 16

	// containsValueRetries bounds how many mod-count-bracketed passes
	// Map.ContainsValue makes before giving up and returning its last
	// observation.
	containsValueRetries = 3

	// defaultLoadFactor is the fraction of a segment's table capacity that
	// may be filled before expand doubles it, carried over from the
	// teacher's own DEFAULT_LOAD_FACTOR.
	defaultLoadFactor = 0.75
)
