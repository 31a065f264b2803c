// Package monitor runs the background sweep that writes back idle batches.
//
// Caches only evict under capacity pressure. A batch that stops receiving writes would stay
// in memory until other batches push it out. The Monitor bounds that time: every interval it
// calls FlushIdle on each cache of its Registry, which flushes and drops the batches that were
// not mutated since the previous sweep.
//
// The Registry is an explicit object, there is no global list of caches. The owner of the
// caches registers them and hands the registry to the monitor:
//
//	reg := monitor.NewRegistry()
//	reg.Register(sensors)
//
//	m := monitor.New(reg, time.Second)
//	go func() { done <- m.Run(ctx) }()
//
// When ctx is canceled Run performs FlushAll on every cache before it returns, so no write is
// dropped on shutdown. Setting SkipFinalFlush disables this.
package monitor
