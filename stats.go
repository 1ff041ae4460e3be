package segmap

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// StatsCounter is the collaborator the segmented core increments; the
// aggregation and snapshotting policy is deliberately kept outside the
// core, per the scope note that statistics aggregation is an external
// collaborator.
type StatsCounter interface {
	RecordHit()
	RecordMiss()
	RecordLoadSuccess(loadTime time.Duration)
	RecordLoadFailure(loadTime time.Duration)
	RecordEviction()
	Snapshot() Stats
}

// SimpleStatsCounter is the default StatsCounter: independent atomic
// counters, no locking, a best-effort (not transactionally consistent)
// Snapshot.
type SimpleStatsCounter struct {
	hitCount         atomic.Uint64
	missCount        atomic.Uint64
	loadSuccessCount atomic.Uint64
	loadFailureCount atomic.Uint64
	totalLoadTimeNs  atomic.Int64
	evictionCount    atomic.Uint64
}

func NewSimpleStatsCounter() *SimpleStatsCounter {
	return &SimpleStatsCounter{}
}

func (c *SimpleStatsCounter) RecordHit()  { c.hitCount.Add(1) }
func (c *SimpleStatsCounter) RecordMiss() { c.missCount.Add(1) }

func (c *SimpleStatsCounter) RecordLoadSuccess(loadTime time.Duration) {
	c.loadSuccessCount.Add(1)
	c.totalLoadTimeNs.Add(loadTime.Nanoseconds())
}

func (c *SimpleStatsCounter) RecordLoadFailure(loadTime time.Duration) {
	c.loadFailureCount.Add(1)
	c.totalLoadTimeNs.Add(loadTime.Nanoseconds())
}

func (c *SimpleStatsCounter) RecordEviction() { c.evictionCount.Add(1) }

func (c *SimpleStatsCounter) Snapshot() Stats {
	return Stats{
		HitCount:         c.hitCount.Load(),
		MissCount:        c.missCount.Load(),
		LoadSuccessCount: c.loadSuccessCount.Load(),
		LoadFailureCount: c.loadFailureCount.Load(),
		TotalLoadTime:    time.Duration(c.totalLoadTimeNs.Load()),
		EvictionCount:    c.evictionCount.Load(),
	}
}

var _ StatsCounter = (*SimpleStatsCounter)(nil)

// noopStatsCounter is installed when a Map is built without a StatsCounter,
// so the hot path never has to check for a nil collaborator.
type noopStatsCounter struct{}

func (noopStatsCounter) RecordHit()                              {}
func (noopStatsCounter) RecordMiss()                             {}
func (noopStatsCounter) RecordLoadSuccess(time.Duration)         {}
func (noopStatsCounter) RecordLoadFailure(time.Duration)         {}
func (noopStatsCounter) RecordEviction()                         {}
func (noopStatsCounter) Snapshot() Stats                         { return Stats{} }

var _ StatsCounter = noopStatsCounter{}

// Stats is an immutable snapshot of the counters a Map's StatsCounter has
// accumulated.
type Stats struct {
	HitCount         uint64
	MissCount        uint64
	LoadSuccessCount uint64
	LoadFailureCount uint64
	TotalLoadTime    time.Duration
	EvictionCount    uint64
}

// RequestCount is HitCount + MissCount.
func (s Stats) RequestCount() uint64 {
	return s.HitCount + s.MissCount
}

// HitRate is HitCount / RequestCount, or 1.0 when there have been no
// requests yet.
func (s Stats) HitRate() float64 {
	total := s.RequestCount()
	if total == 0 {
		return 1.0
	}
	return float64(s.HitCount) / float64(total)
}

// AverageLoadPenalty is the mean time spent inside the loader, across both
// successful and failed calls, or 0 if the loader was never invoked.
func (s Stats) AverageLoadPenalty() time.Duration {
	n := s.LoadSuccessCount + s.LoadFailureCount
	if n == 0 {
		return 0
	}
	return s.TotalLoadTime / time.Duration(n)
}

// String renders an operator-facing one-line summary, in the same
// human-readable register small-frappuccino-discordcore uses go-humanize
// for elsewhere in its own operator-facing output.
func (s Stats) String() string {
	return fmt.Sprintf(
		"Stats{hits=%s, misses=%s, hitRate=%.1f%%, loads=%s/%s (ok/fail), avgLoadPenalty=%s, evictions=%s}",
		humanize.Comma(int64(s.HitCount)),
		humanize.Comma(int64(s.MissCount)),
		s.HitRate()*100,
		humanize.Comma(int64(s.LoadSuccessCount)),
		humanize.Comma(int64(s.LoadFailureCount)),
		s.AverageLoadPenalty(),
		humanize.Comma(int64(s.EvictionCount)),
	)
}
