package segmap

import (
	"log/slog"
	"time"
)

// KeyStrength selects how a Map holds onto its keys. Soft keys are not a
// supported strength: a soft reference conveys "reclaim me before you'd
// throw OutOfMemory", which only makes sense for an object nobody else is
// required to look up by identity — a key, by definition, is always looked
// up by identity, so weakness is already the strongest reclaiming strategy
// that preserves lookup semantics.
type KeyStrength int

const (
	StrongKeys KeyStrength = iota
	WeakKeys
)

// ValueStrength selects how a Map holds onto its values.
type ValueStrength int

const (
	StrongValues ValueStrength = iota
	WeakValues
	SoftValues
)

// Loader computes the value for a key absent from the map. Returning a nil
// value with a nil error is treated as a failure of kind
// ErrLoaderReturnedNil; the result is never cached either way.
type Loader func(key any) (value any, err error)

// Config collects every recognized construction option for a Map. Built
// with the functional-options pattern: call New with zero or more Option
// values, each of which mutates a Config seeded with the package defaults
// before the map is built.
type Config struct {
	InitialCapacity  int
	ConcurrencyLevel int

	KeyStrength   KeyStrength
	ValueStrength ValueStrength

	// MaximumSize enables size-bounded eviction when non-nil. Zero is a
	// valid value: every Put evicts the entry it just inserted.
	MaximumSize *uint64

	ExpireAfterWrite  time.Duration
	ExpireAfterAccess time.Duration

	KeyEquivalence Equivalence
	KeyHash        Hasher

	RemovalListener RemovalListener
	Loader          Loader

	Clock Clock

	Stats StatsCounter

	Logger *slog.Logger

	// SoftValueCapacity bounds the secondary LRU approximating soft-value
	// memory pressure (see softpolicy.go). Ignored unless ValueStrength
	// is SoftValues.
	SoftValueCapacity int
}

// Option mutates a Config under construction. Grounded on the same
// functional-options shape tempuscache's options.go documents, scaled up
// to this Config's larger surface.
type Option func(*Config)

func WithInitialCapacity(n int) Option {
	return func(c *Config) { c.InitialCapacity = n }
}

func WithConcurrencyLevel(n int) Option {
	return func(c *Config) { c.ConcurrencyLevel = n }
}

func WithWeakKeys() Option {
	return func(c *Config) { c.KeyStrength = WeakKeys }
}

func WithWeakValues() Option {
	return func(c *Config) { c.ValueStrength = WeakValues }
}

func WithSoftValues() Option {
	return func(c *Config) { c.ValueStrength = SoftValues }
}

func WithSoftValueCapacity(n int) Option {
	return func(c *Config) { c.SoftValueCapacity = n }
}

func WithMaximumSize(n uint64) Option {
	return func(c *Config) { c.MaximumSize = &n }
}

func WithExpireAfterWrite(d time.Duration) Option {
	return func(c *Config) { c.ExpireAfterWrite = d }
}

func WithExpireAfterAccess(d time.Duration) Option {
	return func(c *Config) { c.ExpireAfterAccess = d }
}

func WithEquivalence(eq Equivalence) Option {
	return func(c *Config) { c.KeyEquivalence = eq }
}

func WithHasher(h Hasher) Option {
	return func(c *Config) { c.KeyHash = h }
}

func WithRemovalListener(l RemovalListener) Option {
	return func(c *Config) { c.RemovalListener = l }
}

func WithLoader(l Loader) Option {
	return func(c *Config) { c.Loader = l }
}

func WithClock(clock Clock) Option {
	return func(c *Config) { c.Clock = clock }
}

func WithStats(s StatsCounter) Option {
	return func(c *Config) { c.Stats = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

func defaultConfig() Config {
	return Config{
		InitialCapacity:   DefaultInitialCapacity,
		ConcurrencyLevel:  DefaultConcurrencyLevel,
		KeyStrength:       StrongKeys,
		ValueStrength:     StrongValues,
		KeyEquivalence:    defaultEquivalence,
		KeyHash:           defaultHasher,
		Clock:             SystemClock{},
		Stats:             noopStatsCounter{},
		SoftValueCapacity: 10_000,
	}
}

// validate rejects the contract violations the error-handling design calls
// out as fail-fast at construction: negative sizing, and requests for a
// configuration this package does not support (soft keys).
func (c *Config) validate() error {
	if c.InitialCapacity < 0 {
		return wrapIllegal("negative initial capacity")
	}
	if c.ConcurrencyLevel <= 0 {
		return wrapIllegal("non-positive concurrency level")
	}
	if c.ExpireAfterWrite < 0 || c.ExpireAfterAccess < 0 {
		return wrapIllegal("negative expiration duration")
	}
	if c.KeyStrength != StrongKeys && c.KeyStrength != WeakKeys {
		return wrapIllegal("unsupported key strength (only strong and weak keys are supported)")
	}
	return nil
}

func wrapIllegal(reason string) error {
	return &illegalConfigError{reason: reason}
}

type illegalConfigError struct{ reason string }

func (e *illegalConfigError) Error() string { return "segmap: illegal configuration: " + e.reason }
func (e *illegalConfigError) Unwrap() error  { return ErrIllegalConfig }
