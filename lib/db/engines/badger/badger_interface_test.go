package badger

import (
	"testing"

	"github.com/ValentinKolb/tsbatch/lib/db"
	dbtesting "github.com/ValentinKolb/tsbatch/lib/db/testing"
)

func newInMemory(t testing.TB) db.KVDB {
	database, err := NewBadgerDB(nil)
	if err != nil {
		t.Fatalf("failed to open badger: %v", err)
	}
	return database
}

func Test(t *testing.T) {
	dbtesting.RunKVDBTests(t, "BadgerDB", func() db.KVDB {
		return newInMemory(t)
	})
}

func TestReopenRecoversWriteIndex(t *testing.T) {
	dir := t.TempDir()

	database, err := NewBadgerDB(&DBOptions{Dir: dir})
	if err != nil {
		t.Fatalf("failed to open badger: %v", err)
	}
	if err := database.Set("coll/1", []byte("doc"), 17); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := database.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	database, err = NewBadgerDB(&DBOptions{Dir: dir})
	if err != nil {
		t.Fatalf("failed to reopen badger: %v", err)
	}
	defer database.Close()

	if idx := database.WriteIdx(); idx != 17 {
		t.Errorf("expected write index 17 after reopen, got %d", idx)
	}
	if value, ok, err := database.Get("coll/1"); err != nil || !ok || string(value) != "doc" {
		t.Errorf("value lost after reopen: %q %v %v", value, ok, err)
	}
}

func Benchmark(b *testing.B) {
	dbtesting.RunKVDBBenchmarks(b, "BadgerDB", func() db.KVDB {
		return newInMemory(b)
	})
}
