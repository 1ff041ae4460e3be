package segmap

import "errors"

// Sentinel errors classifying a contract violation at the public surface.
// Callers should use errors.Is against these, not string comparison.
var (
	// ErrNilKey is returned when a caller passes a nil key to an operation
	// that requires one.
	ErrNilKey = errors.New("segmap: nil key")

	// ErrNilValue is returned when a caller passes a nil value to Put,
	// PutIfAbsent, Replace, or CompareAndReplace. RemoveMatching returns
	// no error; it reports false for a nil value.
	ErrNilValue = errors.New("segmap: nil value")

	// ErrNoLoader is returned by GetOrLoad when the Map was not configured
	// with a Loader.
	ErrNoLoader = errors.New("segmap: GetOrLoad called on a map with no loader configured")

	// ErrLoaderReturnedNil is the underlying error wrapped by a
	// ComputationError when a Loader returns a nil value without an error.
	// Per contract this result is never cached.
	ErrLoaderReturnedNil = errors.New("segmap: loader returned a nil value")

	// ErrIllegalConfig is returned by New when a Config is internally
	// inconsistent (negative capacity, soft keys requested, and the like).
	ErrIllegalConfig = errors.New("segmap: illegal configuration")

	// ErrKeyNotWeakReferenceable is returned when a Map configured with
	// WithWeakKeys is given a key that is not a *Weak[T] (see weak.go).
	ErrKeyNotWeakReferenceable = errors.New("segmap: weak-keyed map requires a *segmap.Weak[T] key")

	// ErrValueNotWeakReferenceable is WeakValues's counterpart.
	ErrValueNotWeakReferenceable = errors.New("segmap: weak-valued map requires a *segmap.Weak[T] value")
)

// ComputationError wraps a failure raised by a Loader during GetOrLoad or
// GetOrCompute. It is delivered synchronously to the goroutine that started
// the computation and to every goroutine that was waiting on it.
type ComputationError struct {
	Key   any
	cause error
}

func (e *ComputationError) Error() string {
	return "segmap: loader failed for key: " + e.cause.Error()
}

// Unwrap exposes the underlying loader error for errors.Is / errors.As,
// including ErrLoaderReturnedNil for loaders that returned a nil value.
func (e *ComputationError) Unwrap() error {
	return e.cause
}
