package util

import (
	"sort"
	"testing"
)

// TestNewMapHeap tests the creation of a new MapHeap
func TestNewMapHeap(t *testing.T) {
	mh := NewMapHeap[int64, string]()

	if mh == nil {
		t.Fatal("NewMapHeap() returned nil")
	}

	if mh.Len() != 0 {
		t.Errorf("New heap should be empty, but has length %d", mh.Len())
	}

	if len(mh.h.itemsMap) != 0 {
		t.Errorf("New heap's map should be empty, but has %d items", len(mh.h.itemsMap))
	}
}

// TestAddItem tests adding items to the heap
func TestAddItem(t *testing.T) {
	mh := NewMapHeap[int64, string]()

	mh.AddItem(1, "one", 100)
	mh.AddItem(2, "two", 200)
	mh.AddItem(3, "three", 50)

	if mh.Len() != 3 {
		t.Errorf("Heap should have 3 items, but has %d", mh.Len())
	}

	for _, key := range []int64{1, 2, 3} {
		if !mh.Contains(key) {
			t.Errorf("Heap should contain key %d", key)
		}
	}

	item, exists := mh.Peek()
	if !exists {
		t.Fatal("Peek() should return an item")
	}

	if item.Key != 3 || item.Priority != 50 || item.Value != "three" {
		t.Errorf("Expected min item to be (3,three,50), got (%d,%s,%d)", item.Key, item.Value, item.Priority)
	}
}

// TestUpdateItem tests updating existing items
func TestUpdateItem(t *testing.T) {
	mh := NewMapHeap[int64, string]()

	mh.AddItem(1, "a", 100)
	mh.AddItem(2, "b", 200)

	mh.AddItem(1, "c", 300)

	item, exists := mh.GetByKey(1)
	if !exists {
		t.Fatal("Item with key 1 should exist")
	}
	if item.Priority != 300 || item.Value != "c" {
		t.Errorf("Item with key 1 should be (c,300), got (%s,%d)", item.Value, item.Priority)
	}

	min, _ := mh.Peek()
	if min.Key != 2 {
		t.Errorf("Min item should now be key 2, got %d", min.Key)
	}

	if !mh.SetPriority(2, 400) {
		t.Fatal("SetPriority should succeed for existing key")
	}
	min, _ = mh.Peek()
	if min.Key != 1 {
		t.Errorf("Min item should now be key 1, got %d", min.Key)
	}

	if mh.SetPriority(99, 1) {
		t.Error("SetPriority should fail for missing key")
	}
}

// TestRemoveByKey tests removing items by key
func TestRemoveByKey(t *testing.T) {
	mh := NewMapHeap[int64, string]()

	mh.AddItem(1, "a", 100)
	mh.AddItem(2, "b", 200)
	mh.AddItem(3, "c", 300)

	item, exists := mh.RemoveByKey(2)
	if !exists {
		t.Fatal("RemoveByKey should return true for existing key")
	}
	if item.Priority != 200 || item.Value != "b" {
		t.Errorf("RemoveByKey should return (b,200), got (%s,%d)", item.Value, item.Priority)
	}

	if mh.Len() != 2 {
		t.Errorf("Heap should have 2 items after removal, has %d", mh.Len())
	}
	if mh.Contains(2) {
		t.Error("Heap should not contain key 2 after removal")
	}

	if _, exists = mh.RemoveByKey(99); exists {
		t.Error("RemoveByKey should return false for non-existent key")
	}
}

// TestPopOrder tests if items are popped in correct order
func TestPopOrder(t *testing.T) {
	mh := NewMapHeap[int64, struct{}]()

	items := []struct {
		key   int64
		value uint64
	}{
		{5, 50},
		{3, 30},
		{1, 10},
		{4, 40},
		{2, 20},
	}

	for _, item := range items {
		mh.AddItem(item.key, struct{}{}, item.value)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].value < items[j].value
	})

	for i, expected := range items {
		item, ok := mh.PopMin()
		if !ok {
			t.Fatalf("Heap empty after %d items, expected %d items", i, len(items))
		}
		if item.Key != expected.key || item.Priority != expected.value {
			t.Errorf("Pop %d: expected (%d,%d), got (%d,%d)",
				i, expected.key, expected.value, item.Key, item.Priority)
		}
		if mh.Contains(item.Key) {
			t.Errorf("Pop %d: key %d still reachable through the map", i, item.Key)
		}
	}

	if _, ok := mh.PopMin(); ok {
		t.Error("PopMin on empty heap should return ok=false")
	}
}

// TestPeekEmptyHeap tests behavior when peeking an empty heap
func TestPeekEmptyHeap(t *testing.T) {
	mh := NewMapHeap[string, int]()

	if _, exists := mh.Peek(); exists {
		t.Error("Peek on empty heap should return exists=false")
	}
}

// TestKeys tests that Keys returns a priority-ordered snapshot
func TestKeys(t *testing.T) {
	mh := NewMapHeap[int64, int]()

	mh.AddItem(10, 0, 3)
	mh.AddItem(20, 0, 1)
	mh.AddItem(30, 0, 2)

	keys := mh.Keys()
	want := []int64{20, 30, 10}
	if len(keys) != len(want) {
		t.Fatalf("Keys() returned %d keys, want %d", len(keys), len(want))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("Keys()[%d] = %d, want %d", i, keys[i], want[i])
		}
	}

	// the snapshot must survive modifications of the heap
	mh.RemoveByKey(20)
	if keys[0] != 20 {
		t.Error("Keys() snapshot changed after RemoveByKey")
	}
}

// TestLRUUsage simulates the access pattern of the batch cache
func TestLRUUsage(t *testing.T) {
	mh := NewMapHeap[int64, string]()
	var clock uint64

	touch := func(key int64) {
		clock++
		if !mh.SetPriority(key, clock) {
			mh.AddItem(key, "", clock)
		}
	}

	touch(1)
	touch(2)
	touch(3)
	touch(1)

	oldest, _ := mh.Peek()
	if oldest.Key != 2 {
		t.Errorf("Least recently used should be 2, got %d", oldest.Key)
	}

	mh.RemoveByKey(2)
	oldest, _ = mh.Peek()
	if oldest.Key != 3 {
		t.Errorf("Least recently used should be 3, got %d", oldest.Key)
	}
}

// TestLargeNumberOfItems tests heap invariants with many items
func TestLargeNumberOfItems(t *testing.T) {
	mh := NewMapHeap[int64, int64]()
	const n = 10000

	for i := int64(0); i < n; i++ {
		mh.AddItem(i, i, uint64((i*7919)%n))
	}

	if mh.Len() != n {
		t.Fatalf("Heap should have %d items, has %d", n, mh.Len())
	}

	var last uint64
	for i := 0; i < n; i++ {
		item, ok := mh.PopMin()
		if !ok {
			t.Fatalf("Heap empty after %d pops", i)
		}
		if i > 0 && item.Priority < last {
			t.Fatalf("Heap order violated at pop %d: %d < %d", i, item.Priority, last)
		}
		last = item.Priority
	}
}
