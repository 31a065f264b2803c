package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/tsbatch/lib/cache"
	"github.com/lni/dragonboat/v4/logger"
	"go.uber.org/multierr"
)

var log = logger.GetLogger("monitor")

// DefaultInterval is the time between two sweeps
const DefaultInterval = time.Second

// Monitor periodically asks every registered cache to flush its idle batches.
type Monitor struct {
	registry *Registry
	interval time.Duration

	// SkipFinalFlush disables the FlushAll of every cache when Run returns.
	// Only set this if losing unflushed writes on shutdown is acceptable.
	SkipFinalFlush bool
}

// New creates a monitor over the registry. An interval <= 0 selects DefaultInterval.
func New(registry *Registry, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		registry: registry,
		interval: interval,
	}
}

// Interval returns the time between two sweeps
func (m *Monitor) Interval() time.Duration {
	return m.interval
}

// Sweep calls FlushIdle on every registered cache. Closed caches are unregistered.
// The errors of all caches are combined.
func (m *Monitor) Sweep() error {
	var errs error
	m.registry.Range(func(f Flusher) bool {
		err := f.FlushIdle()
		switch {
		case err == nil:
		case errors.Is(err, cache.ErrClosed):
			log.Infof("cache %s was closed, unregistering", f.Name())
			m.registry.Unregister(f.Name())
		default:
			log.Warningf("idle flush of cache %s failed: %v", f.Name(), err)
			errs = multierr.Append(errs, fmt.Errorf("cache %s: %w", f.Name(), err))
		}
		return true
	})
	return errs
}

// Run sweeps every interval until ctx is done. Failed sweeps are logged and retried with the next tick.
//
// When ctx is done, Run flushes every registered cache completely (unless SkipFinalFlush is set)
// and returns the combined errors of that final flush.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	log.Infof("monitor started, sweeping %d caches every %s", m.registry.Len(), m.interval)
	for {
		select {
		case <-ctx.Done():
			return m.shutdown()
		case <-ticker.C:
			_ = m.Sweep()
		}
	}
}

// shutdown flushes all caches
func (m *Monitor) shutdown() error {
	if m.SkipFinalFlush {
		log.Warningf("monitor stopped, final flush skipped")
		return nil
	}

	var errs error
	m.registry.Range(func(f Flusher) bool {
		if err := f.FlushAll(); err != nil && !errors.Is(err, cache.ErrClosed) {
			log.Errorf("final flush of cache %s failed: %v", f.Name(), err)
			errs = multierr.Append(errs, fmt.Errorf("cache %s: %w", f.Name(), err))
		}
		return true
	})
	log.Infof("monitor stopped")
	return errs
}
