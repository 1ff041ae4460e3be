package segmap_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-segmap/segmap"
)

// TestSizeEviction is scenario S1: a single-segment map bounded to 3
// entries evicts the least-recently-accessed one on the fourth insert.
func TestSizeEviction(t *testing.T) {
	var notifications []segmap.RemovalNotification
	m := newTestMap(t,
		segmap.WithConcurrencyLevel(1),
		segmap.WithMaximumSize(3),
		segmap.WithRemovalListener(func(n segmap.RemovalNotification) {
			notifications = append(notifications, n)
		}),
	)

	for _, kv := range []struct {
		k string
		v int
	}{{"a", 1}, {"b", 2}, {"c", 3}} {
		_, err := m.Put(kv.k, kv.v)
		require.NoError(t, err)
	}

	_, err := m.Put("d", 4)
	require.NoError(t, err)

	require.Equal(t, 3, m.Size())
	require.False(t, m.ContainsKey("a"), "a was least-recently accessed and should be evicted")
	require.True(t, m.ContainsKey("b"))
	require.True(t, m.ContainsKey("c"))
	require.True(t, m.ContainsKey("d"))

	var sizeNotifications []segmap.RemovalNotification
	for _, n := range notifications {
		if n.Cause == segmap.Size {
			sizeNotifications = append(sizeNotifications, n)
		}
	}
	require.Len(t, sizeNotifications, 1)
	require.Equal(t, "a", sizeNotifications[0].Key)
}

// TestSizeEvictionRespectsAccessOrder exercises the same scenario but with
// an intervening Get that should protect the accessed key from eviction.
func TestSizeEvictionRespectsAccessOrder(t *testing.T) {
	m := newTestMap(t,
		segmap.WithConcurrencyLevel(1),
		segmap.WithMaximumSize(3),
	)

	_, _ = m.Put("a", 1)
	_, _ = m.Put("b", 2)
	_, _ = m.Put("c", 3)

	// Touch "a" so "b" becomes the least-recently-used entry.
	_, ok := m.Get("a")
	require.True(t, ok)

	_, err := m.Put("d", 4)
	require.NoError(t, err)

	require.True(t, m.ContainsKey("a"), "a was just accessed and should survive")
	require.False(t, m.ContainsKey("b"), "b is now least-recently used and should be evicted")
}

// TestMaximumSizeZeroEvictsImmediately covers the "null map" edge case:
// maximum_size == 0 evicts the entry a Put just installed.
func TestMaximumSizeZeroEvictsImmediately(t *testing.T) {
	var notifications []segmap.RemovalNotification
	m := newTestMap(t,
		segmap.WithConcurrencyLevel(1),
		segmap.WithMaximumSize(0),
		segmap.WithRemovalListener(func(n segmap.RemovalNotification) {
			notifications = append(notifications, n)
		}),
	)

	_, err := m.Put("a", 1)
	require.NoError(t, err)

	require.Equal(t, 0, m.Size())
	require.False(t, m.ContainsKey("a"))
	require.Len(t, notifications, 1)
	require.Equal(t, segmap.Size, notifications[0].Cause)
}
