// Package cmd implements the command-line interface of tsbatch. It provides a
// command structure to fill caches, look at the persisted batches and measure
// the cache performance.
//
// The package is organized into several subpackages:
//
//   - ingest: Reads extended JSON documents and inserts them into a cache, with the idle flush monitor running
//   - inspect: Lists the persisted batches of a collection or prints their documents
//   - perf: Insert and retrieve benchmarks with latency percentiles
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// The store flags (--store, --data-dir and the raft settings) are shared by all commands.
// Every flag can also be set as TSBATCH_<FLAG> environment variable or in a .env file.
//
// See tsbatch -help for a list of all commands.
package cmd
