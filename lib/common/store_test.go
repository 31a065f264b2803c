package common

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestMapleSnapshotPersistence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	ctx := context.Background()

	b, err := OpenStore(ctx, &cfg)
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	coll, err := b.Collection("sensors_timeseries")
	if err != nil {
		t.Fatal(err)
	}
	for id := int64(-2); id <= 2; id++ {
		if err := coll.Upsert(id, []byte{byte(id + 10)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.DataDir, mapleSnapshotFile)); err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}

	b, err = OpenStore(ctx, &cfg)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer b.Close()
	coll, _ = b.Collection("sensors_timeseries")

	var ids []int64
	err = coll.ForEach(func(id int64, doc []byte) bool {
		if doc[0] != byte(id+10) {
			t.Errorf("document %d = %v", id, doc)
		}
		ids = append(ids, id)
		return true
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 5 || ids[0] != -2 || ids[4] != 2 {
		t.Errorf("ids after reopen = %v, want [-2 .. 2]", ids)
	}
}

func TestMapleBrokenSnapshot(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	if err := os.WriteFile(filepath.Join(cfg.DataDir, mapleSnapshotFile), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenStore(context.Background(), &cfg); err == nil {
		t.Error("OpenStore accepted a broken snapshot")
	}
}

func TestOpenStoreInvalidBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = "redis"
	if _, err := OpenStore(context.Background(), &cfg); err == nil {
		t.Error("OpenStore accepted an invalid backend")
	}
}
