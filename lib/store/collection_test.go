package store_test

import (
	"errors"
	"math"
	"testing"

	"github.com/ValentinKolb/tsbatch/lib/db"
	"github.com/ValentinKolb/tsbatch/lib/db/engines/maple"
	"github.com/ValentinKolb/tsbatch/lib/store"
	"github.com/ValentinKolb/tsbatch/lib/store/lstore"
)

func newStore(t *testing.T) store.IStore {
	s, err := lstore.NewLocalStore(func() (db.KVDB, error) {
		return maple.NewMapleDB(nil), nil
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewCollectionValidatesName(t *testing.T) {
	s := newStore(t)

	tests := []struct {
		name    string
		wantErr bool
	}{
		{"sensors_timeseries", false},
		{"", true},
		{"a/b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.NewCollection(s, tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewCollection(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, &store.Error{Code: store.RetCInvalidOperation}) {
				t.Errorf("expected RetCInvalidOperation, got %v", err)
			}
		})
	}
}

func TestCollectionUpsertFindOne(t *testing.T) {
	coll, err := store.NewCollection(newStore(t), "c")
	if err != nil {
		t.Fatal(err)
	}

	if _, found, err := coll.FindOne(7); err != nil || found {
		t.Fatalf("FindOne on empty collection: found=%v err=%v", found, err)
	}

	if err := coll.Upsert(7, []byte("v1")); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := coll.Upsert(7, []byte("v2")); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	doc, found, err := coll.FindOne(7)
	if err != nil || !found || string(doc) != "v2" {
		t.Fatalf("FindOne(7) = %q, %v, %v; want v2", doc, found, err)
	}

	if n, _ := coll.Count(); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}

	if err := coll.Delete(7); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, found, _ := coll.FindOne(7); found {
		t.Error("document still present after Delete")
	}
}

func TestCollectionForEachOrderAndIsolation(t *testing.T) {
	s := newStore(t)
	a, _ := store.NewCollection(s, "a")
	ab, _ := store.NewCollection(s, "ab")

	ids := []int64{5, -3, math.MaxInt64, 0, math.MinInt64, -1}
	for _, id := range ids {
		if err := a.Upsert(id, []byte{byte(id)}); err != nil {
			t.Fatal(err)
		}
	}
	_ = ab.Upsert(1, []byte("other"))

	var seen []int64
	if err := a.ForEach(func(id int64, _ []byte) bool {
		seen = append(seen, id)
		return true
	}); err != nil {
		t.Fatalf("ForEach failed: %v", err)
	}

	want := []int64{math.MinInt64, -3, -1, 0, 5, math.MaxInt64}
	if len(seen) != len(want) {
		t.Fatalf("ForEach returned %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("ForEach[%d] = %d, want %d", i, seen[i], want[i])
		}
	}

	if n, _ := ab.Count(); n != 1 {
		t.Errorf("collection ab sees %d documents, want 1", n)
	}
}
