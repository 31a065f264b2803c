package common

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ValentinKolb/tsbatch/lib/db"
	"github.com/ValentinKolb/tsbatch/lib/db/engines/badger"
	"github.com/ValentinKolb/tsbatch/lib/db/engines/maple"
	"github.com/ValentinKolb/tsbatch/lib/store"
	"github.com/ValentinKolb/tsbatch/lib/store/dstore"
	"github.com/ValentinKolb/tsbatch/lib/store/lstore"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"
	"go.uber.org/multierr"
)

var log = logger.GetLogger("store")

const (
	mapleSnapshotFile = "maple.snapshot"
	badgerDir         = "badger"
	leaderPoll        = 50 * time.Millisecond
)

// Backing is an opened store together with the resources it depends on
type Backing struct {
	Store   store.IStore
	closers []func() error
}

// Collection opens the named collection in the store
func (b *Backing) Collection(name string) (*store.Collection, error) {
	return store.NewCollection(b.Store, name)
}

// Close closes the store and then every resource it depends on. All errors are returned combined.
func (b *Backing) Close() error {
	err := b.Store.Close()
	for _, fn := range b.closers {
		err = multierr.Append(err, fn())
	}
	return err
}

// OpenStore opens the store selected by cfg.Backend
//
//   - maple: an in-memory database that is loaded from and saved to a snapshot file in the data dir
//   - badger: a badger database in the data dir
//   - dstore: a RAFT replica of the shard; OpenStore waits until the shard has a leader
func OpenStore(ctx context.Context, cfg *Config) (*Backing, error) {
	switch cfg.Backend {
	case BackendMaple:
		return openMaple(cfg)
	case BackendBadger:
		return openBadger(cfg)
	case BackendDStore:
		return openDStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("invalid store backend: %s", cfg.Backend)
	}
}

// --------------------------------------------------------------------------
// Local backends
// --------------------------------------------------------------------------

func openMaple(cfg *Config) (*Backing, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(cfg.DataDir, mapleSnapshotFile)

	database := maple.NewMapleDB(nil)
	if err := loadSnapshot(database, path); err != nil {
		return nil, err
	}

	s, err := lstore.NewLocalStore(func() (db.KVDB, error) { return database, nil })
	if err != nil {
		return nil, err
	}

	// the snapshot has to be written before lstore closes the database
	return &Backing{
		Store: &snapshotOnClose{IStore: s, save: func() error { return saveSnapshot(database, path) }},
	}, nil
}

func openBadger(cfg *Config) (*Backing, error) {
	dir := filepath.Join(cfg.DataDir, badgerDir)
	s, err := lstore.NewLocalStore(func() (db.KVDB, error) {
		return badger.NewBadgerDB(&badger.DBOptions{Dir: dir})
	})
	if err != nil {
		return nil, err
	}
	log.Infof("opened badger store in %s", dir)
	return &Backing{Store: s}, nil
}

// snapshotOnClose saves the database before the store is closed
type snapshotOnClose struct {
	store.IStore
	save func() error
}

func (s *snapshotOnClose) Close() error {
	return multierr.Append(s.save(), s.IStore.Close())
}

// loadSnapshot loads the snapshot file into database. A missing file leaves the database empty.
func loadSnapshot(database db.KVDB, path string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Infof("no snapshot found at %s, starting empty", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	if err := database.Load(bufio.NewReader(f)); err != nil {
		return fmt.Errorf("load snapshot %s: %w", path, err)
	}
	log.Infof("loaded snapshot %s (%d keys)", path, database.GetInfo().Keys)
	return nil
}

// saveSnapshot writes the database to a temporary file and renames it to path
func saveSnapshot(database db.KVDB, path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}

	w := bufio.NewWriter(f)
	err = database.Save(w)
	err = multierr.Combine(err, w.Flush(), f.Sync(), f.Close())
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	log.Infof("saved snapshot %s", path)
	return nil
}

// --------------------------------------------------------------------------
// Distributed backend
// --------------------------------------------------------------------------

func openDStore(ctx context.Context, cfg *Config) (*Backing, error) {
	// Function to create a new database instance for the state machine
	dbFactory := func() (db.KVDB, error) { return maple.NewMapleDB(nil), nil }

	nodeHost, err := dragonboat.NewNodeHost(cfg.ToNodeHostConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create node host: %w", err)
	}

	// Start Raft for the shard
	if err := nodeHost.StartConcurrentReplica(cfg.ClusterMembers, false, dstore.CreateStateMachineFactory(dbFactory), cfg.ToDragonboatConfig()); err != nil {
		nodeHost.Close()
		return nil, fmt.Errorf("failed to start shard %d: %w", cfg.ShardID, err)
	}

	if err := waitForLeader(ctx, nodeHost, cfg.ShardID); err != nil {
		nodeHost.Close()
		return nil, err
	}

	return &Backing{
		Store: dstore.NewDistributedStore(nodeHost, cfg.ShardID, cfg.Timeout()),
		closers: []func() error{func() error {
			nodeHost.Close()
			return nil
		}},
	}, nil
}

// waitForLeader blocks until the shard has elected a leader or ctx is done
func waitForLeader(ctx context.Context, nh *dragonboat.NodeHost, shardID uint64) error {
	ticker := time.NewTicker(leaderPoll)
	defer ticker.Stop()

	for {
		leaderID, term, valid, err := nh.GetLeaderID(shardID)
		if err == nil && valid {
			log.Infof("shard %d has leader %d (term %d)", shardID, leaderID, term)
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for leader of shard %d: %w", shardID, ctx.Err())
		case <-ticker.C:
		}
	}
}
