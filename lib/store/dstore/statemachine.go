package dstore

import (
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/tsbatch/lib/db"
	"github.com/ValentinKolb/tsbatch/lib/store"
	"github.com/ValentinKolb/tsbatch/lib/store/dstore/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// KVStateMachine is a state machine implementation for Dragonboat RAFT
type KVStateMachine struct {
	replicaID uint64
	shardID   uint64
	database  db.KVDB // the actual dataStorage
}

// CreateStateMachineFactory returns a function that can be used by dragonboat to create a new state machine for a node host.
// The factory pattern is used to enable the caller to pass an interchangeable dbFactory.
//
// Dragonboat offers no way to report a failed state machine creation, so an error of the
// dbFactory is fatal.
func CreateStateMachineFactory(dbFactory store.DBFactory) func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		database, err := dbFactory()
		if err != nil {
			log.Panicf("failed to create database for shard %d replica %d: %v", shardID, replicaID, err)
		}
		return &KVStateMachine{
			replicaID: replicaID,
			shardID:   shardID,
			database:  database,
		}
	}
}

// Lookup handles read-only queries by mapping each Query operation to the corresponding KVDB method.
func (fsm *KVStateMachine) Lookup(itf interface{}) (interface{}, error) {

	// try to parse Query into Query struct
	q, ok := itf.(internal.Query)
	if !ok {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("invalid Query type: %T", itf))
	}

	// Handle different Query types
	switch q.Type {
	case internal.QueryTGet:
		if !fsm.database.SupportsFeature(db.FeatureGet) {
			return nil, store.NewError(store.RetCUnsupportedOperation, "Get operation is not supported")
		}
		val, ok, err := fsm.database.Get(q.Key)
		if err != nil {
			return nil, store.NewError(store.RetCInternalError, err.Error())
		}
		return internal.QueryResult{
			Value: val,
			Ok:    ok,
		}, nil
	case internal.QueryTHas:
		if !fsm.database.SupportsFeature(db.FeatureHas) {
			return nil, store.NewError(store.RetCUnsupportedOperation, "Has operation is not supported")
		}
		ok, err := fsm.database.Has(q.Key)
		if err != nil {
			return nil, store.NewError(store.RetCInternalError, err.Error())
		}
		return ok, nil
	case internal.QueryTScan:
		if !fsm.database.SupportsFeature(db.FeatureRange) {
			return nil, store.NewError(store.RetCUnsupportedOperation, "Scan operation is not supported")
		}
		var res internal.ScanResult
		err := fsm.database.Range(q.Key, func(key string, value []byte) bool {
			res = append(res, internal.KeyValue{Key: key, Value: value})
			return true
		})
		if err != nil {
			return nil, store.NewError(store.RetCInternalError, err.Error())
		}
		return res, nil
	case internal.QueryTGetDBInfo:
		return fsm.database.GetInfo(), nil
	default:
		return nil, store.NewError(store.RetCInvalidOperation, fmt.Sprintf("unknown Query operation: %d", q.Type))
	}
}

// Update handles write commands on the KVDB instance
// All write operations are serialized into []byte and are accessible via the entries struct
func (fsm *KVStateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {

	// Nothing to do
	if len(entries) == 0 {
		return entries, nil
	}

	// Stats
	start := time.Now()

	cmd := internal.Command{}
	for idx, e := range entries {
		entries[idx].Result = fsm.apply(&cmd, e)
	}

	// Log if the update took long
	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("State machine took long to update. Batch updated %d entries, took %.2fms", len(entries), float64(elapsed)/float64(time.Millisecond))
	}
	return entries, nil
}

// apply executes a single raft log entry. cmd is reused between entries to reduce allocations.
func (fsm *KVStateMachine) apply(cmd *internal.Command, e sm.Entry) sm.Result {
	if len(e.Cmd) == 0 {
		return sm.Result{Value: uint64(store.RetCInvalidOperation), Data: []byte("empty command ignored")}
	}

	if err := cmd.Deserialize(e.Cmd); err != nil {
		return sm.Result{Value: uint64(store.RetCInternalError), Data: []byte(fmt.Sprintf("failed to deserialize command: %v", err))}
	}

	// Check if the db supports the operation
	feat, err := cmd.Type.ToDBFeature()
	if err != nil {
		return sm.Result{
			Value: uint64(store.RetCInvalidOperation),
			Data:  []byte(fmt.Sprintf("unknown Command operation: %s", cmd.Type)),
		}
	}
	if !fsm.database.SupportsFeature(feat) {
		return sm.Result{
			Value: uint64(store.RetCUnsupportedOperation),
			Data:  []byte(fmt.Sprintf("%s operation is not supported", cmd.Type)),
		}
	}

	switch cmd.Type {
	case internal.CommandTSet:
		// the database may keep the slice, cmd.Value is reused for the next entry
		value := make([]byte, len(cmd.Value))
		copy(value, cmd.Value)
		err = fsm.database.Set(cmd.Key, value, e.Index)
	case internal.CommandTDelete:
		err = fsm.database.Delete(cmd.Key, e.Index)
	}
	if err != nil {
		return sm.Result{
			Value: uint64(store.RetCInternalError),
			Data:  []byte(fmt.Sprintf("%s failed for key=%s: %v", cmd.Type, cmd.Key, err)),
		}
	}
	return sm.Result{
		Value: uint64(store.RetCSuccess),
		Data:  []byte(fmt.Sprintf("%s: key=%s", cmd.Type, cmd.Key)),
	}
}

// PrepareSnapshot is not used. We don't need to prepare anything since we use fuzzy snapshotting
func (fsm *KVStateMachine) PrepareSnapshot() (interface{}, error) {
	return nil, nil
}

// SaveSnapshot saves a fuzzy db snapshot to the writer
func (fsm *KVStateMachine) SaveSnapshot(_ interface{}, writer io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	if !fsm.database.SupportsFeature(db.FeatureSave) {
		return fmt.Errorf("the used KVDB implementation does not support Save() operations")
	}
	return fsm.database.Save(writer)
}

// RecoverFromSnapshot replaces the database content with the snapshot.
func (fsm *KVStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	if !fsm.database.SupportsFeature(db.FeatureLoad) {
		return fmt.Errorf("the used KVDB implementation does not support Load() operations")
	}
	return fsm.database.Load(r)
}

// Close performs any necessary cleanup.
func (fsm *KVStateMachine) Close() error {
	return fsm.database.Close()
}
