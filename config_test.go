package segmap_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-segmap/segmap"
)

func TestNewAppliesDefaults(t *testing.T) {
	m := newTestMap(t)
	require.NotNil(t, m)
	require.Equal(t, 0, m.Size())
}

func TestWithEquivalenceIgnoredForWeakKeys(t *testing.T) {
	// A caller-supplied KeyEquivalence must not override the forced
	// identity comparison weak keys require; this is a documented
	// behavior of effectiveKeyEquivalence, not a config validation error.
	m := newTestMap(t,
		segmap.WithWeakKeys(),
		segmap.WithEquivalence(func(a, b any) bool { return true }),
	)
	require.NotNil(t, m)

	// With the always-true equivalence honored, the second Put would
	// overwrite the first key's entry; identity keeps them distinct.
	a := &sessionID{id: 1}
	b := &sessionID{id: 2}
	_, err := m.Put(segmap.NewWeak(a), "a")
	require.NoError(t, err)
	_, err = m.Put(segmap.NewWeak(b), "b")
	require.NoError(t, err)
	require.Equal(t, 2, m.Size())
	require.True(t, m.ContainsKey(a))
	require.True(t, m.ContainsKey(b))
}

func TestWithHasher(t *testing.T) {
	calls := 0
	m := newTestMap(t, segmap.WithHasher(func(key any) uint32 {
		calls++
		return 42
	}))

	_, err := m.Put("a", 1)
	require.NoError(t, err)
	_, err = m.Put("b", 2)
	require.NoError(t, err)

	require.Greater(t, calls, 0)
	v, ok := m.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)
	v, ok = m.Get("b")
	require.True(t, ok)
	require.Equal(t, 2, v)
}

func TestConcurrencyLevelRoundsUpSegmentCount(t *testing.T) {
	// Not directly observable from the public surface, but New must not
	// error for an odd concurrency level and the map must still behave
	// correctly afterward.
	m := newTestMap(t, segmap.WithConcurrencyLevel(5))
	for i := 0; i < 100; i++ {
		_, err := m.Put(i, i)
		require.NoError(t, err)
	}
	require.Equal(t, 100, m.Size())
}
