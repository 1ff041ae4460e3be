package segmap_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-segmap/segmap"
)

func newTestMap(t *testing.T, opts ...segmap.Option) *segmap.Map {
	t.Helper()
	m, err := segmap.New(opts...)
	require.NoError(t, err)
	return m
}

func TestPutGetRoundTrip(t *testing.T) {
	m := newTestMap(t)

	prev, err := m.Put("a", 1)
	require.NoError(t, err)
	require.Nil(t, prev)

	v, ok := m.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)
}

func TestIdempotentPutFiresReplacedOnce(t *testing.T) {
	var notifications []segmap.RemovalNotification
	m := newTestMap(t, segmap.WithRemovalListener(func(n segmap.RemovalNotification) {
		notifications = append(notifications, n)
	}))

	_, err := m.Put("a", 1)
	require.NoError(t, err)
	_, err = m.Put("a", 1)
	require.NoError(t, err)

	require.Equal(t, 1, m.Size())
	require.Len(t, notifications, 1)
	require.Equal(t, segmap.Replaced, notifications[0].Cause)
	require.Equal(t, "a", notifications[0].Key)
	require.Equal(t, 1, notifications[0].Value)
}

func TestPutReturnsPreviousValue(t *testing.T) {
	m := newTestMap(t)

	_, err := m.Put("a", 1)
	require.NoError(t, err)

	prev, err := m.Put("a", 2)
	require.NoError(t, err)
	require.Equal(t, 1, prev)

	v, _ := m.Get("a")
	require.Equal(t, 2, v)
}

func TestPutIfAbsent(t *testing.T) {
	m := newTestMap(t)

	v, err := m.PutIfAbsent("a", 1)
	require.NoError(t, err)
	require.Equal(t, 1, v)

	v, err = m.PutIfAbsent("a", 2)
	require.NoError(t, err)
	require.Equal(t, 1, v, "PutIfAbsent must not overwrite an existing live value")

	got, _ := m.Get("a")
	require.Equal(t, 1, got)
}

func TestReplaceOnlyIfPresent(t *testing.T) {
	m := newTestMap(t)

	prev, replaced, err := m.Replace("a", 1)
	require.NoError(t, err)
	require.False(t, replaced)
	require.Nil(t, prev)
	require.False(t, m.ContainsKey("a"))

	_, err = m.Put("a", 1)
	require.NoError(t, err)

	prev, replaced, err = m.Replace("a", 2)
	require.NoError(t, err)
	require.True(t, replaced)
	require.Equal(t, 1, prev)

	got, _ := m.Get("a")
	require.Equal(t, 2, got)
}

func TestCompareAndReplace(t *testing.T) {
	m := newTestMap(t)
	_, err := m.Put("a", 1)
	require.NoError(t, err)

	ok, err := m.CompareAndReplace("a", 99, 2)
	require.NoError(t, err)
	require.False(t, ok, "CAS must fail against the wrong expected value")

	ok, err = m.CompareAndReplace("a", 1, 2)
	require.NoError(t, err)
	require.True(t, ok)

	got, _ := m.Get("a")
	require.Equal(t, 2, got)
}

func TestRemove(t *testing.T) {
	m := newTestMap(t)
	_, err := m.Put("a", 1)
	require.NoError(t, err)

	v, ok := m.Remove("a")
	require.True(t, ok)
	require.Equal(t, 1, v)

	_, ok = m.Remove("a")
	require.False(t, ok)
	require.False(t, m.ContainsKey("a"))
}

func TestRemoveMatching(t *testing.T) {
	m := newTestMap(t)
	_, err := m.Put("a", 1)
	require.NoError(t, err)

	require.False(t, m.RemoveMatching("a", 2))
	require.True(t, m.ContainsKey("a"))

	require.True(t, m.RemoveMatching("a", 1))
	require.False(t, m.ContainsKey("a"))
}

func TestContainsValue(t *testing.T) {
	m := newTestMap(t)
	_, err := m.Put("a", 1)
	require.NoError(t, err)

	require.True(t, m.ContainsValue(1))
	require.False(t, m.ContainsValue(2))
}

func TestSizeIsEmptyClear(t *testing.T) {
	m := newTestMap(t)
	require.True(t, m.IsEmpty())
	require.Equal(t, 0, m.Size())

	for i := 0; i < 10; i++ {
		_, err := m.Put(i, i*i)
		require.NoError(t, err)
	}
	require.Equal(t, 10, m.Size())
	require.False(t, m.IsEmpty())

	m.Clear()
	require.Equal(t, 0, m.Size())
	require.True(t, m.IsEmpty())
}

func TestClearFiresExplicitForEveryLiveEntry(t *testing.T) {
	var causes []segmap.RemovalCause
	m := newTestMap(t, segmap.WithRemovalListener(func(n segmap.RemovalNotification) {
		causes = append(causes, n.Cause)
	}))

	for i := 0; i < 5; i++ {
		_, err := m.Put(i, i)
		require.NoError(t, err)
	}
	m.Clear()

	require.Len(t, causes, 5)
	for _, c := range causes {
		require.Equal(t, segmap.Explicit, c)
	}
}

func TestNilKeyAndValueRejected(t *testing.T) {
	m := newTestMap(t)

	_, err := m.Put(nil, 1)
	require.True(t, errors.Is(err, segmap.ErrNilKey))

	_, err = m.Put("a", nil)
	require.True(t, errors.Is(err, segmap.ErrNilValue))

	_, ok := m.Get(nil)
	require.False(t, ok)
}

func TestNewRejectsIllegalConfig(t *testing.T) {
	_, err := segmap.New(segmap.WithConcurrencyLevel(0))
	require.True(t, errors.Is(err, segmap.ErrIllegalConfig))

	_, err = segmap.New(segmap.WithInitialCapacity(-1))
	require.True(t, errors.Is(err, segmap.ErrIllegalConfig))

	_, err = segmap.New(segmap.WithExpireAfterWrite(-1))
	require.True(t, errors.Is(err, segmap.ErrIllegalConfig))
}
