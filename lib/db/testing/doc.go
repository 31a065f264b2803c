// Package testing provides standardised tests and benchmarks for
// database implementations that satisfy the db.KVDB interface.
//
// The package contains:
//   - testing: A test suite validating the KVDB contract (point operations,
//     stale write rejection, ordered prefix iteration, snapshots)
//   - benchmark: Performance tests for the access patterns of a batch cache
//
// Example usage:
//
//	factory := func() db.KVDB {
//		return NewMyDatabase()
//	}
//
//	dbtesting.RunKVDBTests(t, "MyDatabase", factory)
//	dbtesting.RunKVDBBenchmarks(b, "MyDatabase", factory)
package testing
