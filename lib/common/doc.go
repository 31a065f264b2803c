// Package common provides the configuration, logging and store setup shared by the
// tsbatch commands. Library packages do not depend on it, they only use the dragonboat
// logger it configures.
//
// The package focuses on:
//   - Configuration of the backing store, the caches and the monitor
//   - Custom logging implementation integrated with Dragonboat
//   - Opening the configured store (maple, badger or a RAFT replicated dstore)
//
// Key Components:
//
//   - Config: All parameters of a tsbatch process. Provides utilities for converting
//     to Dragonboat-specific configurations and a readable String representation.
//
//   - Logger: Custom logging implementation that integrates with Dragonboat's
//     logging system while providing consistent formatting across the application.
//     InitLoggers must be called before any cache or store is created to apply the level.
//
//   - OpenStore: Creates the backing store selected by Config.Backend. The returned
//     Backing owns the store and everything it depends on (snapshot file, NodeHost):
//
//	b, err := common.OpenStore(ctx, &cfg)
//	if err != nil {
//		return err
//	}
//	defer b.Close()
//
//	coll, err := b.Collection(cfg.Cache.Backing("sensors"))
package common
