package perf

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ValentinKolb/tsbatch/lib/common"
	"github.com/ValentinKolb/tsbatch/lib/db"
	"github.com/ValentinKolb/tsbatch/lib/db/engines/maple"
	"github.com/ValentinKolb/tsbatch/lib/store"
	"github.com/ValentinKolb/tsbatch/lib/store/lstore"
	"github.com/rcrowley/go-metrics"
)

func TestShouldSkip(t *testing.T) {
	perfSkip = []string{"insert-compressed", "retrieve"}
	defer func() { perfSkip = nil }()

	tests := map[string]bool{
		"insert":            false,
		"insert-compressed": true,
		"retrieve":          true,
		"insert-evicting":   false,
	}
	for name, want := range tests {
		if got := shouldSkip(name); got != want {
			t.Errorf("shouldSkip(%q) = %t, want %t", name, got, want)
		}
	}
}

func TestDeleteAll(t *testing.T) {
	s, err := lstore.NewLocalStore(func() (db.KVDB, error) { return maple.NewMapleDB(nil), nil })
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	coll, _ := store.NewCollection(s, "__perf_insert")
	other, _ := store.NewCollection(s, "sensors_timeseries")

	for id := int64(-3); id < 3; id++ {
		_ = coll.Upsert(id, []byte("x"))
	}
	_ = other.Upsert(1, []byte("y"))

	if err := deleteAll(coll); err != nil {
		t.Fatal(err)
	}
	if n, _ := coll.Count(); n != 0 {
		t.Errorf("%d batches left", n)
	}
	if n, _ := other.Count(); n != 1 {
		t.Errorf("other collection holds %d batches, want 1", n)
	}
}

func TestWriteResultsToCSV(t *testing.T) {
	timer := metrics.NewTimer()
	for i := 1; i <= 100; i++ {
		timer.Update(time.Duration(i) * time.Microsecond)
	}

	results := []result{
		{name: "insert", bench: testing.BenchmarkResult{N: 10, T: 10 * time.Microsecond}, timer: timer},
		{name: "retrieve", timer: metrics.NewTimer()},
	}
	cfg := common.DefaultConfig()
	path := filepath.Join(t.TempDir(), "results.csv")

	if err := writeResultsToCSV(path, results, &cfg); err != nil {
		t.Fatalf("writeResultsToCSV() error = %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}

	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[1][0] != "insert" || rows[1][1] != "1000" || rows[1][6] != "false" {
		t.Errorf("insert row = %v", rows[1])
	}
	if rows[1][4] == "0" || rows[1][5] == "0" {
		t.Errorf("insert row misses percentiles: %v", rows[1])
	}
	if rows[2][0] != "retrieve" || rows[2][6] != "true" {
		t.Errorf("retrieve row = %v", rows[2])
	}
	if rows[1][7] != string(common.BackendMaple) {
		t.Errorf("store column = %q", rows[1][7])
	}
}
