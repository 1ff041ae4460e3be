package segmap

import (
	"reflect"
	"runtime"
	"weak"
)

// Weak wraps a pointer to a value of type T so it can be used as a weak
// key or weak value in a Map. Construct one at the call site, where the
// concrete type is still known, and pass it to Put, Get, Remove, Replace,
// or ContainsKey in place of the raw key/value:
//
//	k := &sessionID{...}
//	m.Put(segmap.NewWeak(k), v)
//	m.Get(k) // a bare pointer compares equal by identity, no wrapper needed
//
// This indirection exists because Go cannot instantiate a generic function
// like weak.Make[T] at a type parameter discovered from an any at runtime;
// the instantiation has to happen in code the caller writes, the same way
// the weak package's own canonicalization-map example constructs its
// weak.Pointer[T] values one concrete type at a time. See DESIGN.md.
type Weak[T any] struct {
	ptr weak.Pointer[T]
	id  uintptr
}

// NewWeak constructs a weakly-held reference to v. v must not be nil.
// Returns a pointer because the KeyRef/ValueRef plumbing is built on the
// referent interface, which Weak[T]'s methods only satisfy through a
// pointer receiver.
func NewWeak[T any](v *T) *Weak[T] {
	return &Weak[T]{
		ptr: weak.Make(v),
		id:  reflect.ValueOf(v).Pointer(),
	}
}

// peek returns the pointer the caller originally constructed this Weak
// from, or (nil, false) if it has already been reclaimed by the garbage
// collector. It must return the pointer itself, not the pointee: the map
// reports this value back to callers (KeySet, Iterate, a later bare-pointer
// Get) as the key, and identity comparisons against a freshly dereferenced
// copy would never match the original.
func (w *Weak[T]) peek() (any, bool) {
	p := w.ptr.Value()
	if p == nil {
		return nil, false
	}
	return p, true
}

// identity returns the address the reference was constructed with. It
// remains valid for comparison even after reclamation.
func (w *Weak[T]) identity() uintptr {
	return w.id
}

// onReclaimed arranges for fn to run once the referent becomes unreachable.
// If it has already been reclaimed by the time this is called, fn runs
// immediately. At most one registration is honored per Weak[T]; the map
// only ever registers one, at the point it wraps the value into a
// weakKeyRef/weakValueRef, so there is nothing to coordinate here.
func (w *Weak[T]) onReclaimed(fn func()) {
	p := w.ptr.Value()
	if p == nil {
		fn()
		return
	}
	runtime.AddCleanup(p, func(cb func()) { cb() }, fn)
}

var _ referent = (*Weak[int])(nil)
