// Package util
//
// This file provides a priority queue with key-based access.
//
// The implementation combines a binary heap with a hash map. Every key lives in
// both structures at the same time, so the set of keys reachable through the
// map and the set of keys ordered by the heap can never disagree. The batch
// cache uses it as its residency set: the value is the resident batch and the
// priority is a recency counter, which turns Peek into "least recently used".
//
// 1. Time Complexity:
//   - O(log n) for priority operations (Push, Pop, Update)
//   - O(1) for key-based lookups and existence checks
//   - O(log n) for key-based removal
//
// 2. Concurrency Considerations:
//   - This implementation is not thread-safe
//   - For concurrent use, external synchronization should be applied
//
// Example usage:
//
//	mh := NewMapHeap[int64, string]()
//
//	mh.AddItem(1001, "a", 1)
//	mh.AddItem(1002, "b", 2)
//	mh.AddItem(1001, "a", 3) // touch: 1002 is now the minimum
//
//	oldest, _ := mh.Peek()   // oldest.Key == 1002
//	mh.RemoveByKey(1002)
package util

import (
	"container/heap"
	"fmt"
	"sort"
)

// Item is an entry of a MapHeap
type Item[K comparable, V any] struct {
	Key      K      // Unique identifier for the item
	Value    V      // Payload stored alongside the key
	Priority uint64 // Priority used for ordering in the heap (min first)
	index    int    // Index in the heap, maintained by heap package
}

func (i *Item[K, V]) String() string {
	return fmt.Sprintf("{Key: %v, Priority: %d}", i.Key, i.Priority)
}

// heapItems is the heap.Interface view of a MapHeap.
// It is kept separate so the exported MapHeap API does not expose Push/Pop with interface{} values.
type heapItems[K comparable, V any] struct {
	items    []*Item[K, V]
	itemsMap map[K]*Item[K, V]
}

func (h *heapItems[K, V]) Len() int { return len(h.items) }

func (h *heapItems[K, V]) Less(i, j int) bool {
	return h.items[i].Priority < h.items[j].Priority
}

func (h *heapItems[K, V]) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

func (h *heapItems[K, V]) Push(x interface{}) {
	item := x.(*Item[K, V])
	item.index = len(h.items)
	h.items = append(h.items, item)
	h.itemsMap[item.Key] = item
}

func (h *heapItems[K, V]) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // Avoid memory leak
	item.index = -1 // For safety
	h.items = old[:n-1]
	delete(h.itemsMap, item.Key)
	return item
}

// MapHeap is a min-priority queue with O(1) access by key
type MapHeap[K comparable, V any] struct {
	h heapItems[K, V]
}

// NewMapHeap creates a new, empty MapHeap
func NewMapHeap[K comparable, V any]() *MapHeap[K, V] {
	return &MapHeap[K, V]{
		h: heapItems[K, V]{
			items:    make([]*Item[K, V], 0),
			itemsMap: make(map[K]*Item[K, V]),
		},
	}
}

// Len returns the number of items in the queue
func (mh *MapHeap[K, V]) Len() int { return mh.h.Len() }

// AddItem adds a new item to the queue or updates value and priority of an existing one
func (mh *MapHeap[K, V]) AddItem(key K, value V, priority uint64) {
	if item, exists := mh.h.itemsMap[key]; exists {
		item.Value = value
		item.Priority = priority
		heap.Fix(&mh.h, item.index)
		return
	}

	heap.Push(&mh.h, &Item[K, V]{
		Key:      key,
		Value:    value,
		Priority: priority,
	})
}

// SetPriority changes the priority of an existing item.
// It returns false if the key is not in the queue.
func (mh *MapHeap[K, V]) SetPriority(key K, priority uint64) bool {
	item, exists := mh.h.itemsMap[key]
	if !exists {
		return false
	}
	item.Priority = priority
	heap.Fix(&mh.h, item.index)
	return true
}

// RemoveByKey removes an item by its key
func (mh *MapHeap[K, V]) RemoveByKey(key K) (*Item[K, V], bool) {
	item, exists := mh.h.itemsMap[key]
	if !exists {
		return nil, false
	}
	heap.Remove(&mh.h, item.index)
	return item, true
}

// Peek returns the minimum priority item without removing it
func (mh *MapHeap[K, V]) Peek() (*Item[K, V], bool) {
	if len(mh.h.items) == 0 {
		return nil, false
	}
	return mh.h.items[0], true
}

// PopMin removes and returns the minimum priority item
func (mh *MapHeap[K, V]) PopMin() (*Item[K, V], bool) {
	if len(mh.h.items) == 0 {
		return nil, false
	}
	return heap.Pop(&mh.h).(*Item[K, V]), true
}

// Contains checks if a key exists in the queue
func (mh *MapHeap[K, V]) Contains(key K) bool {
	_, exists := mh.h.itemsMap[key]
	return exists
}

// GetByKey retrieves an item by its key without removing it
func (mh *MapHeap[K, V]) GetByKey(key K) (*Item[K, V], bool) {
	item, exists := mh.h.itemsMap[key]
	return item, exists
}

// Keys returns a snapshot of all keys ordered by ascending priority.
// The order of items with equal priority is unspecified.
func (mh *MapHeap[K, V]) Keys() []K {
	items := make([]*Item[K, V], len(mh.h.items))
	copy(items, mh.h.items)
	sort.Slice(items, func(i, j int) bool {
		return items[i].Priority < items[j].Priority
	})

	keys := make([]K, len(items))
	for i, item := range items {
		keys[i] = item.Key
	}
	return keys
}

// Range calls fn for every item in heap order (not sorted).
// The queue must not be modified from within fn.
func (mh *MapHeap[K, V]) Range(fn func(item *Item[K, V]) bool) {
	for _, item := range mh.h.items {
		if !fn(item) {
			return
		}
	}
}
