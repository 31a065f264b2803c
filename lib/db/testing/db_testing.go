package testing

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/tsbatch/lib/db"
)

// DBFactory is a function that creates a new instance of a KVDB implementation
type DBFactory func() db.KVDB

// RunKVDBTests runs a comprehensive test suite for a KVDB implementation.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("Has", func(t *testing.T) {
			testHas(t, factory())
		})

		t.Run("StaleWrites", func(t *testing.T) {
			testStaleWrites(t, factory())
		})

		t.Run("WriteIndex", func(t *testing.T) {
			testWriteIndex(t, factory())
		})

		t.Run("Range", func(t *testing.T) {
			testRange(t, factory())
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory())
		})

		t.Run("CollisionHandling", func(t *testing.T) {
			testCollisionHandling(t, factory())
		})

		t.Run("ConcurrentWriters", func(t *testing.T) {
			testConcurrentWriters(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.KVDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

// mustSet fails the test if Set returns an error
func mustSet(t testing.TB, database db.KVDB, key string, value []byte, idx uint64) {
	t.Helper()
	if err := database.Set(key, value, idx); err != nil {
		t.Fatalf("Set(%q) failed: %v", key, err)
	}
}

// mustGet fails the test if Get returns an error
func mustGet(t testing.TB, database db.KVDB, key string) ([]byte, bool) {
	t.Helper()
	value, ok, err := database.Get(key)
	if err != nil {
		t.Fatalf("Get(%q) failed: %v", key, err)
	}
	return value, ok
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet)

	testKey := "test-key"
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	mustSet(t, database, testKey, testValue1, 1)

	result, exists := mustGet(t, database, testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	mustSet(t, database, testKey, testValue2, 2)

	result, exists = mustGet(t, database, testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	if _, exists = mustGet(t, database, "nonexistent-key"); exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}

	// the returned slice must be a copy
	retrievedValue, _ := mustGet(t, database, testKey)
	retrievedValue[0] = 'X'

	result, _ = mustGet(t, database, testKey)
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Modifying a returned value changed the stored value")
	}
}

func testDelete(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete)

	mustSet(t, database, "delete-key", []byte("value"), 1)

	if err := database.Delete("delete-key", 2); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, exists := mustGet(t, database, "delete-key"); exists {
		t.Errorf("Key should not exist after Delete")
	}

	// deleting a missing key is not an error
	if err := database.Delete("never-set", 3); err != nil {
		t.Errorf("Delete of missing key returned error: %v", err)
	}

	// a key can be set again after deletion
	mustSet(t, database, "delete-key", []byte("again"), 4)
	if result, exists := mustGet(t, database, "delete-key"); !exists || string(result) != "again" {
		t.Errorf("Expected key to be set again after Delete, got %q (exists=%v)", result, exists)
	}
}

func testHas(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureHas|db.FeatureDelete)

	mustSet(t, database, "has-key", []byte("value"), 1)

	if ok, err := database.Has("has-key"); err != nil || !ok {
		t.Errorf("Has should return true for existing key (err=%v)", err)
	}
	if ok, err := database.Has("no-such-key"); err != nil || ok {
		t.Errorf("Has should return false for missing key (err=%v)", err)
	}

	_ = database.Delete("has-key", 2)
	if ok, _ := database.Has("has-key"); ok {
		t.Errorf("Has should return false after Delete")
	}
}

func testStaleWrites(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete)

	mustSet(t, database, "stale", []byte("new"), 10)
	mustSet(t, database, "stale", []byte("old"), 5)

	if result, _ := mustGet(t, database, "stale"); string(result) != "new" {
		t.Errorf("Stale Set overwrote newer value, got %q", result)
	}

	_ = database.Delete("stale", 7)
	if _, exists := mustGet(t, database, "stale"); !exists {
		t.Errorf("Stale Delete removed newer value")
	}

	// equal indexes are applied
	mustSet(t, database, "stale", []byte("same"), 10)
	if result, _ := mustGet(t, database, "stale"); string(result) != "same" {
		t.Errorf("Set with equal index was ignored, got %q", result)
	}
}

func testWriteIndex(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)

	mustSet(t, database, "idx", []byte("v"), 42)
	if idx := database.WriteIdx(); idx != 42 {
		t.Errorf("Expected write index 42, got %d", idx)
	}

	database.SetWriteIdx(10)
	if idx := database.WriteIdx(); idx != 42 {
		t.Errorf("Write index must not decrease, got %d", idx)
	}

	database.SetWriteIdx(100)
	if idx := database.WriteIdx(); idx != 100 {
		t.Errorf("Expected write index 100, got %d", idx)
	}
}

func testRange(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureRange)

	keys := []string{"b/03", "a/01", "b/01", "c/01", "b/02"}
	for i, k := range keys {
		mustSet(t, database, k, []byte(k), uint64(i+1))
	}

	var seen []string
	err := database.Range("b/", func(key string, value []byte) bool {
		if key != string(value) {
			t.Errorf("Range returned value %q for key %q", value, key)
		}
		seen = append(seen, key)
		return true
	})
	if err != nil {
		t.Fatalf("Range failed: %v", err)
	}

	want := []string{"b/01", "b/02", "b/03"}
	if fmt.Sprint(seen) != fmt.Sprint(want) {
		t.Errorf("Range(b/) = %v, want %v", seen, want)
	}

	// stop early
	seen = seen[:0]
	_ = database.Range("", func(key string, _ []byte) bool {
		seen = append(seen, key)
		return len(seen) < 2
	})
	if fmt.Sprint(seen) != fmt.Sprint([]string{"a/01", "b/01"}) {
		t.Errorf("Range with early stop returned %v", seen)
	}

	// no match
	called := false
	_ = database.Range("zzz", func(string, []byte) bool {
		called = true
		return true
	})
	if called {
		t.Errorf("Range with unmatched prefix called fn")
	}
}

func testSaveLoad(t *testing.T, factory DBFactory) {
	database := factory()
	database2 := factory()

	// close the databases after the test
	defer database.Close()
	defer database2.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureSave|db.FeatureLoad)

	numEntries := 1000
	for i := 0; i < numEntries; i++ {
		key := fmt.Sprintf("save-load-test-key-%d", i)
		value := []byte(fmt.Sprintf("save-load-test-value-%d", i))
		mustSet(t, database, key, value, uint64(i+1))
	}

	// an entry that must disappear on load
	mustSet(t, database2, "only-in-target", []byte("x"), 1)

	var buf bytes.Buffer
	if err := database.Save(&buf); err != nil {
		t.Fatalf("Unexpected error during Save: %v", err)
	}

	if err := database2.Load(&buf); err != nil {
		t.Fatalf("Unexpected error during Load: %v", err)
	}

	for i := 0; i < numEntries; i++ {
		key := fmt.Sprintf("save-load-test-key-%d", i)
		expectedValue := []byte(fmt.Sprintf("save-load-test-value-%d", i))

		actualValue, exists := mustGet(t, database2, key)
		if !exists {
			t.Errorf("Key %s not found after Load", key)
			continue
		}
		if !bytes.Equal(actualValue, expectedValue) {
			t.Errorf("Value mismatch for key %s: expected %s, got %s", key, expectedValue, actualValue)
		}
	}

	if _, exists := mustGet(t, database2, "only-in-target"); exists {
		t.Errorf("Load did not replace existing entries")
	}

	if database2.WriteIdx() < uint64(numEntries) {
		t.Errorf("Write index after Load is %d, expected at least %d", database2.WriteIdx(), numEntries)
	}

	if err := database2.Load(bytes.NewReader([]byte("garbage"))); err == nil {
		t.Errorf("Load of invalid data should fail")
	}
}

func testEdgeCases(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet)

	mustSet(t, database, "empty-value-key", []byte{}, 1)
	if result, exists := mustGet(t, database, "empty-value-key"); !exists {
		t.Errorf("Key for empty value not found after Set")
	} else if len(result) != 0 {
		t.Errorf("Empty value mismatch: %v", result)
	}

	mustSet(t, database, "nil-value-key", nil, 2)
	if result, exists := mustGet(t, database, "nil-value-key"); !exists {
		t.Errorf("Key for nil value not found after Set")
	} else if len(result) != 0 {
		t.Errorf("Nil value resulted in non-empty value: %v", result)
	}

	largeKey := string(bytes.Repeat([]byte("k"), 1000))
	mustSet(t, database, largeKey, []byte("value for large key"), 3)
	if result, exists := mustGet(t, database, largeKey); !exists || string(result) != "value for large key" {
		t.Errorf("Large key mismatch")
	}

	largeValue := make([]byte, 512*1024)
	for i := range largeValue {
		largeValue[i] = byte(i % 256)
	}
	mustSet(t, database, "large-value-key", largeValue, 4)
	if result, exists := mustGet(t, database, "large-value-key"); !exists || !bytes.Equal(result, largeValue) {
		t.Errorf("Large value mismatch (exists=%v, len=%d)", exists, len(result))
	}

	binaryKey := "bin\x00\xff/key"
	mustSet(t, database, binaryKey, []byte{0, 1, 2}, 5)
	if result, exists := mustGet(t, database, binaryKey); !exists || !bytes.Equal(result, []byte{0, 1, 2}) {
		t.Errorf("Binary key mismatch")
	}
}

func testCollisionHandling(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete)

	prefix := "collision-test-"
	numKeys := 1000

	for i := 0; i < numKeys; i++ {
		mustSet(t, database, fmt.Sprintf("%s%d", prefix, i), []byte(fmt.Sprintf("value-%d", i)), 1)
	}

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("%s%d", prefix, i)
		expectedValue := []byte(fmt.Sprintf("value-%d", i))

		actualValue, exists := mustGet(t, database, key)
		if !exists {
			t.Errorf("Key %s not found", key)
			continue
		}
		if !bytes.Equal(actualValue, expectedValue) {
			t.Errorf("Value for key %s does not match: expected %s, got %s", key, expectedValue, actualValue)
		}
	}

	for i := 0; i < numKeys; i += 2 {
		_ = database.Delete(fmt.Sprintf("%s%d", prefix, i), 10)
	}

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("%s%d", prefix, i)
		_, exists := mustGet(t, database, key)

		if i%2 == 0 && exists {
			t.Errorf("Key %s should be deleted", key)
		} else if i%2 == 1 && !exists {
			t.Errorf("Key %s should still exist", key)
		}
	}

	if info := database.GetInfo(); info.Keys != numKeys/2 {
		t.Errorf("GetInfo reports %d keys, expected %d", info.Keys, numKeys/2)
	}
}

func testConcurrentWriters(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet)

	const (
		writers = 8
		perW    = 200
	)

	var wg sync.WaitGroup
	wg.Add(writers)
	for w := 0; w < writers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perW; i++ {
				key := fmt.Sprintf("w%d-%d", w, i)
				if err := database.Set(key, []byte(key), uint64(i+1)); err != nil {
					t.Errorf("Set(%s) failed: %v", key, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	for w := 0; w < writers; w++ {
		for i := 0; i < perW; i++ {
			key := fmt.Sprintf("w%d-%d", w, i)
			if result, exists := mustGet(t, database, key); !exists || string(result) != key {
				t.Errorf("Key %s lost after concurrent writes", key)
			}
		}
	}
}
