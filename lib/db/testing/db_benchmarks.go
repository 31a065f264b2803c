package testing

import (
	"bytes"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/tsbatch/lib/db"
)

// RunKVDBBenchmarks runs all benchmarks for a key-value database implementations
func RunKVDBBenchmarks(b *testing.B, name string, factory DBFactory) {

	b.Run("Set", func(b *testing.B) {
		benchmarkSet(b, factory())
	})

	b.Run("SetExisting", func(b *testing.B) {
		benchmarkSetExisting(b, factory())
	})

	b.Run("SetBatchSizedValue", func(b *testing.B) {
		benchmarkSetBatchSizedValue(b, factory())
	})

	b.Run("Get", func(b *testing.B) {
		benchmarkGet(b, factory())
	})

	b.Run("Range", func(b *testing.B) {
		benchmarkRange(b, factory())
	})

	b.Run("SaveLoad", func(b *testing.B) {
		benchmarkSaveLoad(b, factory)
	})

	b.Run("MixedUsage", func(b *testing.B) {
		benchmarkMixedUsage(b, factory())
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// Benchmark for Set operation on fresh keys
func benchmarkSet(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet)

	var idx atomic.Uint64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := idx.Add(1)
			_ = database.Set(fmt.Sprintf("key-%d", i), []byte("value"), i)
		}
	})
}

// Benchmark for overwriting a small set of keys
func benchmarkSetExisting(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet)

	keys := make([]string, 100)
	for i := range keys {
		keys[i] = fmt.Sprintf("existing-%d", i)
		_ = database.Set(keys[i], []byte("value"), 1)
	}

	var idx atomic.Uint64
	idx.Store(1)
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := idx.Add(1)
			_ = database.Set(keys[i%uint64(len(keys))], []byte("value"), i)
		}
	})
}

// Benchmark for Set with values of the size of a flushed batch (~64KB)
func benchmarkSetBatchSizedValue(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet)

	value := bytes.Repeat([]byte("x"), 64*1024)
	b.SetBytes(int64(len(value)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = database.Set(fmt.Sprintf("batch/%d", i%1000), value, uint64(i+1))
	}
}

// Benchmark for Get operation
func benchmarkGet(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet|db.FeatureGet)

	const numKeys = 1000
	for i := 0; i < numKeys; i++ {
		_ = database.Set(fmt.Sprintf("get-%d", i), []byte("value"), uint64(i+1))
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			_, _, _ = database.Get(fmt.Sprintf("get-%d", r.Intn(numKeys)))
		}
	})
}

// Benchmark for a prefix scan over one collection among several
func benchmarkRange(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet|db.FeatureRange)

	for c := 0; c < 10; c++ {
		for i := 0; i < 100; i++ {
			_ = database.Set(fmt.Sprintf("coll%d/%04d", c, i), []byte("value"), 1)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = database.Range("coll5/", func(string, []byte) bool { return true })
	}
}

// Benchmark for Save and Load operations
func benchmarkSaveLoad(b *testing.B, factory DBFactory) {
	database := factory()
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet|db.FeatureSave|db.FeatureLoad)

	for i := 0; i < 10000; i++ {
		_ = database.Set(fmt.Sprintf("save-%d", i), []byte(fmt.Sprintf("value-%d", i)), uint64(i+1))
	}

	var snapshot bytes.Buffer
	if err := database.Save(&snapshot); err != nil {
		b.Fatalf("Save failed: %v", err)
	}

	b.Run("Save", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var buf bytes.Buffer
			if err := database.Save(&buf); err != nil {
				b.Fatalf("Save failed: %v", err)
			}
		}
	})

	b.Run("Load", func(b *testing.B) {
		target := factory()
		defer target.Close()
		for i := 0; i < b.N; i++ {
			if err := target.Load(bytes.NewReader(snapshot.Bytes())); err != nil {
				b.Fatalf("Load failed: %v", err)
			}
		}
	})
}

// Benchmark for the read/write mix of a cache that keeps flushing and reloading batches
func benchmarkMixedUsage(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet|db.FeatureGet)

	const numKeys = 1000
	var idx atomic.Uint64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			key := fmt.Sprintf("mixed-%d", r.Intn(numKeys))
			if r.Intn(4) == 0 {
				_ = database.Set(key, []byte("value"), idx.Add(1))
			} else {
				_, _, _ = database.Get(key)
			}
		}
	})
}
