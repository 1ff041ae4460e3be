package segmap

// loadingValueRef is the ValueRef installed on an entry while a Loader
// call for its key is in flight. get reports "not yet set"; waitForValue
// blocks the caller until the single producer publishes success or
// failure. Exactly one goroutine is ever the producer for a given
// loadingValueRef — the one that installed it while holding the segment
// lock in GetOrLoad — so done is closed exactly once.
type loadingValueRef struct {
	done  chan struct{}
	value any
	err   error
}

func newLoadingValueRef() *loadingValueRef {
	return &loadingValueRef{done: make(chan struct{})}
}

func (r *loadingValueRef) get() (any, bool)  { return nil, false }
func (r *loadingValueRef) clear()            {}
func (r *loadingValueRef) isReclaimed() bool { return false }
func (r *loadingValueRef) isLoading() bool   { return true }

// waitForValue blocks until the producer publishes, then returns the
// published value or the published error — never both.
func (r *loadingValueRef) waitForValue() (any, error) {
	<-r.done
	return r.value, r.err
}

// publishSuccess records v and wakes every waiter. Called once per ref: by
// the producer goroutine outside the segment lock, or by installLoadingRef
// under the lock when it hands a waiter an already-resolved ref.
func (r *loadingValueRef) publishSuccess(v any) {
	r.value = v
	close(r.done)
}

// publishFailure records err and wakes every waiter with it.
func (r *loadingValueRef) publishFailure(err error) {
	r.err = err
	close(r.done)
}

var _ ValueRef = (*loadingValueRef)(nil)
