// Package dstore implements a replicated store.IStore on top of the Dragonboat RAFT
// consensus library. Backing collections placed in a dstore survive the loss of a
// minority of nodes, which makes it the durable option for batch caches that must not
// lose flushed data.
//
// Architecture:
//
// The dstore implementation consists of three main components:
//
//   - Store Client: Implements the store.IStore interface and communicates with
//     the RAFT shard. It serializes writes into commands, proposes them to the
//     consensus layer, and processes the results.
//
//   - State Machine: A Dragonboat IConcurrentStateMachine implementation that applies
//     commands and answers queries on each node. The state machine owns the actual
//     db.KVDB instance.
//
//   - Communication Protocol: Defined in the internal package, this consists of Command
//     and Query structures. Only commands are serialized, queries stay in process.
//
// Write Operations:
//
//	All write operations (Set, Delete) follow this flow:
//
//	1. The operation is serialized into a Command structure
//	2. The Command is proposed to the RAFT shard via SyncPropose
//	3. The leader node replicates the command to a majority of followers
//	4. Once committed, the command is applied on every replica (Update in statemachine.go)
//	5. The result code is returned to the client
//
//	The write index of every operation is the RAFT log index, so all replicas apply
//	the same writes in the same order and replayed entries are ignored by the engines.
//
// Read Operations:
//
// Read operations (Get, Has, Scan) use SyncRead, which waits until the local replica
// has applied all committed entries. GetDBInfo uses StaleRead since it is informational.
// A Scan materializes all matching entries on the replica before the callback of the
// client is invoked.
//
// Error Handling and Retries:
//
//   - System Busy: When Dragonboat returns ErrSystemBusy, the operation is retried
//     after a short delay, up to 5 attempts.
//
//   - Timeouts: All operations use the timeout passed to NewDistributedStore.
//
//   - Feature Compatibility: Before executing operations, the state machine verifies
//     that the underlying db.KVDB implementation supports the required features.
//
// Snapshotting and Recovery:
//
// Snapshots are fuzzy and written with db.KVDB.Save. A recovering node loads the latest
// snapshot with db.KVDB.Load and then replays the log entries committed after it.
//
// Usage:
//
//	nh, err := dragonboat.NewNodeHost(nodeHostConfig)
//	if err != nil { ... }
//
//	dbFactory := func() (db.KVDB, error) { return maple.NewMapleDB(nil), nil }
//
//	err = nh.StartConcurrentReplica(
//	    members,
//	    false,
//	    dstore.CreateStateMachineFactory(dbFactory),
//	    shardConfig)
//	if err != nil { ... }
//
//	s := dstore.NewDistributedStore(nh, shardID, 5*time.Second)
//	coll, err := store.NewCollection(s, "sensors_timeseries")
//
// For a single process without replication use the lstore package, which implements
// the same interface.
package dstore
