package segmap_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-segmap/segmap"
)

func TestSimpleStatsCounter(t *testing.T) {
	c := segmap.NewSimpleStatsCounter()
	c.RecordHit()
	c.RecordHit()
	c.RecordMiss()
	c.RecordLoadSuccess(10 * time.Millisecond)
	c.RecordLoadFailure(30 * time.Millisecond)
	c.RecordEviction()

	s := c.Snapshot()
	require.EqualValues(t, 2, s.HitCount)
	require.EqualValues(t, 1, s.MissCount)
	require.EqualValues(t, 1, s.LoadSuccessCount)
	require.EqualValues(t, 1, s.LoadFailureCount)
	require.EqualValues(t, 1, s.EvictionCount)
	require.EqualValues(t, 3, s.RequestCount())
	require.InDelta(t, 2.0/3.0, s.HitRate(), 0.0001)
	require.Equal(t, 20*time.Millisecond, s.AverageLoadPenalty())
}

func TestStatsHitRateWithNoRequests(t *testing.T) {
	var s segmap.Stats
	require.Equal(t, 1.0, s.HitRate())
	require.Equal(t, time.Duration(0), s.AverageLoadPenalty())
}

func TestStatsString(t *testing.T) {
	c := segmap.NewSimpleStatsCounter()
	c.RecordHit()
	c.RecordMiss()
	str := c.Snapshot().String()
	require.True(t, strings.Contains(str, "hits="))
	require.True(t, strings.Contains(str, "hitRate="))
}

func TestMapAccumulatesStats(t *testing.T) {
	m := newTestMap(t, segmap.WithStats(segmap.NewSimpleStatsCounter()))

	_, _ = m.Get("missing")
	_, _ = m.Put("a", 1)
	_, _ = m.Get("a")

	s := m.Stats()
	require.EqualValues(t, 1, s.HitCount)
	require.EqualValues(t, 1, s.MissCount)
}
