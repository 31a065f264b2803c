// Package internal provides the command and query structures exchanged between
// the dstore client and its replicated state machine.
//
// This package is intended for internal use by the dstore implementation and should
// not be imported directly by external code.
//
//   - Command System: Write operations (Set, Delete). Commands are serialized,
//     proposed to the RAFT cluster and applied on every replica.
//
//   - Query System: Read operations (Get, Has, Scan, GetDBInfo). Queries are
//     executed locally on the state machine and are never serialized.
//
// Command Format:
//
//   - 1 byte: Command type
//   - 4 bytes: Key length (uint32, big endian)
//   - N bytes: Key data
//   - M bytes: Value data (optional, only present for Set)
//
// The types in this package are not thread-safe. RAFT applies commands
// sequentially, so the state machine never shares them across goroutines.
package internal
