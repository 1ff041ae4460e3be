package segmap

// KeyRef is the uniform capability an entry's key slot exposes regardless
// of strength: get the referent (or learn it is gone), clear it, and ask
// whether it has already been reclaimed.
type KeyRef interface {
	get() (key any, ok bool)
	clear()
	isReclaimed() bool
}

// ValueRef is KeyRef's counterpart for an entry's value slot. It adds
// isLoading, since a value (never a key) may be a LoadingValueRef standing
// in for an in-flight computation.
type ValueRef interface {
	get() (value any, ok bool)
	clear()
	isReclaimed() bool
	isLoading() bool
}

// referent is satisfied by a Weak[T] wrapper (see weak.go). It lets the
// any-typed core operate on an arbitrary weak referent — compare identity,
// peek at the value, be told when the runtime has reclaimed it — without
// ever needing reflection or a concrete type parameter itself.
type referent interface {
	peek() (any, bool)
	identity() uintptr
	onReclaimed(func())
}

// strongKeyRef holds its key directly; it is never reclaimed.
type strongKeyRef struct {
	key any
}

func newStrongKeyRef(key any) *strongKeyRef { return &strongKeyRef{key: key} }

func (r *strongKeyRef) get() (any, bool) { return r.key, true }
func (r *strongKeyRef) clear()           {}
func (r *strongKeyRef) isReclaimed() bool { return false }

// strongValueRef holds its value directly; it is never reclaimed and never
// loading.
type strongValueRef struct {
	value any
}

func newStrongValueRef(value any) *strongValueRef { return &strongValueRef{value: value} }

func (r *strongValueRef) get() (any, bool)  { return r.value, true }
func (r *strongValueRef) clear()            {}
func (r *strongValueRef) isReclaimed() bool { return false }
func (r *strongValueRef) isLoading() bool   { return false }

// unsetValueRef is the sentinel value-ref installed on a freshly created
// entry before its first value is published. It is never reclaimed and
// never loading; get always reports absent.
type unsetValueRef struct{}

func (unsetValueRef) get() (any, bool)  { return nil, false }
func (unsetValueRef) clear()            {}
func (unsetValueRef) isReclaimed() bool { return false }
func (unsetValueRef) isLoading() bool   { return false }

var theUnsetValueRef ValueRef = unsetValueRef{}

var (
	_ KeyRef   = (*strongKeyRef)(nil)
	_ ValueRef = (*strongValueRef)(nil)
	_ ValueRef = unsetValueRef{}
)
