package perf

import (
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/tsbatch/lib/batch"
	"github.com/ValentinKolb/tsbatch/lib/cache"
	"github.com/ValentinKolb/tsbatch/lib/common"
	"github.com/ValentinKolb/tsbatch/lib/store"
	"github.com/rcrowley/go-metrics"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// retrieveDocs is the number of documents written before the retrieve benchmark
const retrieveDocs = 1000

// benchmark describes one cache workload
type benchmark struct {
	name       string
	compressed bool
	evicting   bool // every document opens a new window
	retrieve   bool
}

var benchmarks = []benchmark{
	{name: "insert"},
	{name: "insert-compressed", compressed: true},
	{name: "insert-evicting", evicting: true},
	{name: "retrieve", retrieve: true},
}

// result of one benchmark. The timer measures the latency of the single cache operations.
type result struct {
	name  string
	bench testing.BenchmarkResult
	timer metrics.Timer
}

func runBenchmarks(backing *common.Backing, cfg *common.Config) []result {
	registry := metrics.NewRegistry()
	results := make([]result, 0, len(benchmarks))

	for _, bm := range benchmarks {
		timer := metrics.GetOrRegisterTimer(bm.name, registry)
		res := testing.Benchmark(func(b *testing.B) {
			if shouldSkip(bm.name) {
				return
			}
			runBenchmark(b, backing, cfg, bm, timer)
		})

		results = append(results, result{name: bm.name, bench: res, timer: timer})
		printResult(bm.name, res, timer)
	}
	return results
}

func runBenchmark(b *testing.B, backing *common.Backing, cfg *common.Config, bm benchmark, timer metrics.Timer) {
	collName := "__perf_" + bm.name
	coll, err := backing.Collection(collName)
	if err != nil {
		b.Fatal(err)
	}

	opts := cfg.Cache
	opts.Compressed = bm.compressed
	opts.BackingName = collName
	opts.TimeField = "_id"
	c, err := cache.New(bm.name, coll, opts)
	if err != nil {
		b.Fatal(err)
	}

	// cleanup
	b.Cleanup(func() {
		if err := c.Close(); err != nil {
			log.Errorf("(%s) - error closing cache: %v", bm.name, err)
		}
		if err := deleteAll(coll); err != nil {
			log.Errorf("(%s) - error deleting batches: %v", bm.name, err)
		}
	})

	stride := int64(1)
	if bm.evicting {
		stride = opts.MillisInBatch
	}
	payload := make([]byte, perfDocSize)
	newDoc := func(i int64) bson.Raw {
		doc, _ := bson.Marshal(bson.D{
			{Key: "_id", Value: bson.DateTime(i * stride)},
			{Key: "payload", Value: bson.Binary{Data: payload}},
		})
		return doc
	}

	if bm.retrieve {
		for i := int64(0); i < retrieveDocs; i++ {
			if err := c.Insert(newDoc(i)); err != nil {
				b.Fatal(err)
			}
		}
	}

	var counter atomic.Int64

	b.SetParallelism(perfNumThreads)

	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := counter.Add(1)

			var err error
			if bm.retrieve {
				t := time.UnixMilli(i % retrieveDocs)
				timer.Time(func() { _, err = c.Retrieve(t) })
			} else {
				doc := newDoc(i)
				timer.Time(func() { err = c.Insert(doc) })
			}

			// a full compressed batch still stored the document
			if err != nil && !errors.Is(err, batch.ErrCompressorFull) {
				log.Errorf("(%s) - error: %v", bm.name, err)
			}
		}
	})
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// deleteAll removes every batch of the collection
func deleteAll(coll *store.Collection) error {
	var ids []int64
	if err := coll.ForEach(func(id int64, _ []byte) bool {
		ids = append(ids, id)
		return true
	}); err != nil {
		return err
	}
	for _, id := range ids {
		if err := coll.Delete(id); err != nil {
			return err
		}
	}
	return nil
}

// percentiles returns the median and the 99th percentile latency of the timer
func percentiles(timer metrics.Timer) (p50, p99 time.Duration) {
	ps := timer.Percentiles([]float64{0.5, 0.99})
	return time.Duration(ps[0]), time.Duration(ps[1])
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult, timer metrics.Timer) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)
	p50, p99 := percentiles(timer)

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\tp50 %s\tp99 %s\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec, p50, p99)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results []result, config *common.Config) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "P50Ns", "P99Ns", "Skipped",
		"Store", "CacheSize", "MillisInBatch", "CompressorCapacity",
		"Threads", "DocSize",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for _, res := range results {
		var nsPerOp float64
		var opsPerSec float64
		var skipped string
		var p50, p99 time.Duration

		if res.bench.NsPerOp() == 0 {
			skipped = "true"
		} else {
			skipped = "false"
			nsPerOp = math.Max(float64(res.bench.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
			p50, p99 = percentiles(res.timer)
		}

		row := []string{
			res.name,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			strconv.FormatInt(p50.Nanoseconds(), 10),
			strconv.FormatInt(p99.Nanoseconds(), 10),
			skipped,
			string(config.Backend),
			strconv.Itoa(config.Cache.CacheSize),
			strconv.FormatInt(config.Cache.MillisInBatch, 10),
			strconv.Itoa(config.Cache.CompressorCapacity),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfDocSize),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", res.name, err)
		}
	}

	return nil
}
