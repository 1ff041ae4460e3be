package segmap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClock is a minimal manually-advanced Clock for this file's white-box
// test; the segmap_test package has its own richer manualClock in
// clock_test.go, but that file lives in a different package and isn't
// reachable from here.
type fakeClock struct{ now int64 }

func (c *fakeClock) Now() int64 { return c.now }

// TestExpiredOnLoadCauseDistinguishesFromPlainExpired exercises the one
// path that can actually produce RemovalCause ExpiredOnLoad: an entry whose
// value was reclaimed out from under it (as a weak/soft value would be) is
// reused in place as a loading placeholder by GetOrLoad's locked half, but
// its original write-expiration deadline has already passed by the time the
// next expiration sweep runs.
func TestExpiredOnLoadCauseDistinguishesFromPlainExpired(t *testing.T) {
	clock := &fakeClock{}
	var notifications []RemovalNotification
	m, err := New(
		WithConcurrencyLevel(1),
		WithExpireAfterWrite(1*time.Millisecond),
		WithClock(clock),
		WithRemovalListener(func(n RemovalNotification) {
			notifications = append(notifications, n)
		}),
	)
	require.NoError(t, err)

	_, err = m.Put("a", 1)
	require.NoError(t, err)

	hash := m.hashOf("a")
	s := m.segmentFor(hash)

	s.mu.Lock()
	tab := s.loadTable()
	e := (*tab)[indexFor(tab, hash)].Load()
	require.NotNil(t, e)
	e.storeValue(unsetValueRef{}) // stands in for a just-reclaimed weak/soft value
	s.mu.Unlock()

	eq := m.effectiveKeyEquivalence()
	_, isProducer, err := s.installLoadingRef("a", hash, eq)
	require.NoError(t, err)
	require.True(t, isProducer, "the reused entry's reclaimed value must make this caller the producer")

	clock.now += int64(2 * time.Millisecond)
	s.mu.Lock()
	s.expireEntriesLocked()
	s.mu.Unlock()
	m.notifier.flush()

	var found bool
	for _, n := range notifications {
		if n.Cause == ExpiredOnLoad {
			found = true
		}
		require.NotEqual(t, Expired, n.Cause, "this removal must be reported as ExpiredOnLoad, not plain Expired")
	}
	require.True(t, found, "expected an ExpiredOnLoad notification for a key expiring mid-load")
}
