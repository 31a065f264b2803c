package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/tsbatch/lib/cache"
	"github.com/ValentinKolb/tsbatch/lib/db"
	"github.com/ValentinKolb/tsbatch/lib/db/engines/maple"
	"github.com/ValentinKolb/tsbatch/lib/store"
	"github.com/ValentinKolb/tsbatch/lib/store/lstore"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// fakeFlusher counts calls and returns the configured errors
type fakeFlusher struct {
	name     string
	idle     atomic.Int32
	all      atomic.Int32
	idleErr  error
	flushErr error
}

func (f *fakeFlusher) Name() string { return f.name }

func (f *fakeFlusher) FlushIdle() error {
	f.idle.Add(1)
	return f.idleErr
}

func (f *fakeFlusher) FlushAll() error {
	f.all.Add(1)
	return f.flushErr
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeFlusher{name: "a"})
	r.Register(&fakeFlusher{name: "b"})
	r.Register(&fakeFlusher{name: "a"}) // replaces

	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
	if _, ok := r.Get("b"); !ok {
		t.Error("b not registered")
	}
	r.Unregister("b")
	if _, ok := r.Get("b"); ok {
		t.Error("b still registered")
	}
}

func TestSweep(t *testing.T) {
	r := NewRegistry()
	ok := &fakeFlusher{name: "ok"}
	failing := &fakeFlusher{name: "failing", idleErr: errors.New("disk full")}
	closed := &fakeFlusher{name: "closed", idleErr: cache.ErrClosed}
	r.Register(ok)
	r.Register(failing)
	r.Register(closed)

	m := New(r, 0)
	if m.Interval() != DefaultInterval {
		t.Errorf("Interval() = %s, want %s", m.Interval(), DefaultInterval)
	}

	err := m.Sweep()
	if !errors.Is(err, failing.idleErr) {
		t.Errorf("Sweep() error = %v", err)
	}
	if ok.idle.Load() != 1 || failing.idle.Load() != 1 {
		t.Error("not every cache was swept")
	}
	if _, found := r.Get("closed"); found {
		t.Error("closed cache was not unregistered")
	}
	if _, found := r.Get("failing"); !found {
		t.Error("failing cache must stay registered")
	}
}

func TestRunFinalFlush(t *testing.T) {
	tests := []struct {
		name      string
		skip      bool
		wantFlush int32
	}{
		{"final flush", false, 1},
		{"skip final flush", true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			f := &fakeFlusher{name: "f"}
			r.Register(f)

			m := New(r, 5*time.Millisecond)
			m.SkipFinalFlush = tt.skip

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- m.Run(ctx) }()

			deadline := time.Now().Add(5 * time.Second)
			for f.idle.Load() < 2 && time.Now().Before(deadline) {
				time.Sleep(time.Millisecond)
			}
			cancel()

			if err := <-done; err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if f.idle.Load() < 2 {
				t.Errorf("only %d sweeps ran", f.idle.Load())
			}
			if got := f.all.Load(); got != tt.wantFlush {
				t.Errorf("FlushAll called %d times, want %d", got, tt.wantFlush)
			}
		})
	}
}

func TestRunReportsFinalFlushErrors(t *testing.T) {
	r := NewRegistry()
	f := &fakeFlusher{name: "f", flushErr: errors.New("offline")}
	r.Register(f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := New(r, time.Hour).Run(ctx); !errors.Is(err, f.flushErr) {
		t.Errorf("Run() error = %v, want %v", err, f.flushErr)
	}
}

// TestIdleBatchIsWrittenBack runs the monitor over a real cache and waits until an idle batch reaches the collection.
func TestIdleBatchIsWrittenBack(t *testing.T) {
	s, err := lstore.NewLocalStore(func() (db.KVDB, error) { return maple.NewMapleDB(nil), nil })
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	coll, _ := store.NewCollection(s, "sensors_timeseries")

	c, err := cache.New("sensors", coll, cache.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	doc, _ := bson.Marshal(bson.D{{Key: "_id", Value: bson.DateTime(42)}})
	if err := c.Insert(doc); err != nil {
		t.Fatal(err)
	}

	r := NewRegistry()
	r.Register(c)
	m := New(r, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = m.Run(ctx)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for len(c.Resident()) > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	wg.Wait()

	if _, found, _ := coll.FindOne(0); !found {
		t.Error("idle batch was not written back")
	}
	if c.Stats().Evictions != 0 {
		t.Error("batch was evicted instead of idle flushed")
	}
}
