// Package badger implements db.KVDB on top of BadgerDB, the durable engine
// for backing collections that must survive a restart.
//
// Every value is stored with an 8 byte big endian write-index prefix. Writes
// are read-modify-write transactions that drop stale writes, and the
// database write index is recovered from the stored prefixes when a database
// is opened or loaded.
//
// Snapshots are a small header ("TSBADGER" + version) followed by a badger
// backup stream. Load drops all existing data before restoring.
//
// Badger's own log output is routed through the dragonboat logger registered
// under the name "badger".
package badger
