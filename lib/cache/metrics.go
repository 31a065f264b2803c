package cache

import (
	"fmt"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
)

// cacheMetrics holds the counters of one cache in its own metrics.Set,
// so caches can be created and dropped without touching the global registry.
type cacheMetrics struct {
	set         *metrics.Set
	resident    atomic.Int64
	loads       *metrics.Counter
	creates     *metrics.Counter
	evictions   *metrics.Counter
	flushes     *metrics.Counter
	flushErrors *metrics.Counter
	idleFlushes *metrics.Counter
	flushSize   *metrics.Histogram
}

func newCacheMetrics(name string) *cacheMetrics {
	set := metrics.NewSet()
	label := fmt.Sprintf("{cache=%q}", name)

	m := &cacheMetrics{
		set:         set,
		loads:       set.NewCounter("tsbatch_cache_loads_total" + label),
		creates:     set.NewCounter("tsbatch_cache_creates_total" + label),
		evictions:   set.NewCounter("tsbatch_cache_evictions_total" + label),
		flushes:     set.NewCounter("tsbatch_cache_flushes_total" + label),
		flushErrors: set.NewCounter("tsbatch_cache_flush_errors_total" + label),
		idleFlushes: set.NewCounter("tsbatch_cache_idle_flushes_total" + label),
		flushSize:   set.NewHistogram("tsbatch_cache_flush_size_bytes" + label),
	}
	set.NewGauge("tsbatch_cache_resident_batches"+label, func() float64 {
		return float64(m.resident.Load())
	})
	return m
}

// Stats is a snapshot of the counters of a cache
type Stats struct {
	Resident    int
	Loads       uint64 // batches found in the backing collection
	Creates     uint64 // batches created empty
	Evictions   uint64
	Flushes     uint64
	FlushErrors uint64
	IdleFlushes uint64
}

func (m *cacheMetrics) stats() Stats {
	return Stats{
		Resident:    int(m.resident.Load()),
		Loads:       m.loads.Get(),
		Creates:     m.creates.Get(),
		Evictions:   m.evictions.Get(),
		Flushes:     m.flushes.Get(),
		FlushErrors: m.flushErrors.Get(),
		IdleFlushes: m.idleFlushes.Get(),
	}
}

func (s Stats) String() string {
	return fmt.Sprintf("resident=%d loads=%d creates=%d evictions=%d flushes=%d flush_errors=%d idle_flushes=%d",
		s.Resident, s.Loads, s.Creates, s.Evictions, s.Flushes, s.FlushErrors, s.IdleFlushes)
}
