package batch

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func testConfig(compressed bool) Config {
	return Config{
		Compressed:         compressed,
		TimeField:          "_id",
		MillisInBatch:      1000,
		CompressorCapacity: DefaultCompressorCapacity,
	}
}

func mkDoc(t testing.TB, ms int64, v int) bson.Raw {
	t.Helper()
	data, err := bson.Marshal(bson.D{
		{Key: "_id", Value: bson.DateTime(ms)},
		{Key: "v", Value: int32(v)},
	})
	if err != nil {
		t.Fatalf("failed to marshal document: %v", err)
	}
	return data
}

// memCollection is an in-memory Collection
type memCollection struct {
	docs map[int64][]byte
	err  error
}

func newMemCollection() *memCollection {
	return &memCollection{docs: make(map[int64][]byte)}
}

func (c *memCollection) Upsert(id int64, doc []byte) error {
	if c.err != nil {
		return c.err
	}
	c.docs[id] = append([]byte(nil), doc...)
	return nil
}

func (c *memCollection) FindOne(id int64) ([]byte, bool, error) {
	doc, ok := c.docs[id]
	return doc, ok, nil
}

// --------------------------------------------------------------------------
// Uncompressed Batches
// --------------------------------------------------------------------------

func TestInsertRetrieve(t *testing.T) {
	b := New(0, testConfig(false))

	if err := b.Insert(mkDoc(t, 100, 1)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := b.Insert(mkDoc(t, 50, 2)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := b.Retrieve(time.UnixMilli(100))
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if !bytes.Equal(got, mkDoc(t, 100, 1)) {
		t.Errorf("Retrieve returned %s", got)
	}

	if _, err := b.Retrieve(time.UnixMilli(101)); !errors.Is(err, ErrNoSuchKey) {
		t.Errorf("expected ErrNoSuchKey, got %v", err)
	}
	if b.Len() != 2 || !b.IsDirty() {
		t.Errorf("Len() = %d, IsDirty() = %t", b.Len(), b.IsDirty())
	}
}

func TestInsertDuplicateKeepsFirst(t *testing.T) {
	b := New(0, testConfig(false))

	if err := b.Insert(mkDoc(t, 10, 1)); err != nil {
		t.Fatal(err)
	}
	if err := b.Insert(mkDoc(t, 10, 2)); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}

	got, _ := b.Retrieve(time.UnixMilli(10))
	if !bytes.Equal(got, mkDoc(t, 10, 1)) {
		t.Errorf("first document was changed: %s", got)
	}
}

func TestInsertValidation(t *testing.T) {
	b := New(1, testConfig(false))

	str, _ := bson.Marshal(bson.D{{Key: "_id", Value: "not a time"}})
	missing, _ := bson.Marshal(bson.D{{Key: "v", Value: 1}})

	tests := []struct {
		name string
		doc  bson.Raw
		want error
	}{
		{"string time field", str, ErrInvalidTimeField},
		{"missing time field", missing, ErrInvalidTimeField},
		{"other window", mkDoc(t, 2500, 1), ErrOutOfWindow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := b.Insert(tt.doc); !errors.Is(err, tt.want) {
				t.Errorf("Insert() error = %v, want %v", err, tt.want)
			}
		})
	}
	if b.Len() != 0 || b.IsDirty() {
		t.Errorf("failed inserts changed the batch")
	}
}

func TestUpdateRemove(t *testing.T) {
	b := New(0, testConfig(false))
	_ = b.Insert(mkDoc(t, 1, 1))

	if err := b.Update(mkDoc(t, 1, 42)); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	got, _ := b.Retrieve(time.UnixMilli(1))
	if !bytes.Equal(got, mkDoc(t, 1, 42)) {
		t.Errorf("Update not applied: %s", got)
	}

	if err := b.Update(mkDoc(t, 2, 1)); !errors.Is(err, ErrNoSuchKey) {
		t.Errorf("Update of missing doc: expected ErrNoSuchKey, got %v", err)
	}

	if err := b.Remove(time.UnixMilli(1)); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := b.Remove(time.UnixMilli(1)); !errors.Is(err, ErrNoSuchKey) {
		t.Errorf("second Remove: expected ErrNoSuchKey, got %v", err)
	}
	if b.Len() != 0 {
		t.Errorf("Len() = %d after remove", b.Len())
	}
}

func TestInsertCopiesDocument(t *testing.T) {
	b := New(0, testConfig(false))
	doc := mkDoc(t, 5, 1)
	_ = b.Insert(doc)

	doc[len(doc)-2] = 0xFF // corrupt the caller's copy

	got, _ := b.Retrieve(time.UnixMilli(5))
	if !bytes.Equal(got, mkDoc(t, 5, 1)) {
		t.Errorf("stored document shares memory with the caller")
	}
}

func TestRoundTripUncompressed(t *testing.T) {
	b := New(3, testConfig(false))
	for _, i := range rand.Perm(200) {
		if err := b.Insert(mkDoc(t, 3000+int64(i)*5, i)); err != nil {
			t.Fatal(err)
		}
	}

	exported, err := b.Export()
	if err != nil {
		t.Fatal(err)
	}
	data, err := exported.Bytes()
	if err != nil {
		t.Fatal(err)
	}

	decoded, err := DecodeDocument(data)
	if err != nil {
		t.Fatalf("DecodeDocument failed: %v", err)
	}
	reloaded, err := FromDocument(decoded, testConfig(false))
	if err != nil {
		t.Fatalf("FromDocument failed: %v", err)
	}
	if reloaded.IsDirty() {
		t.Error("reloaded batch should be clean")
	}

	again, _ := reloaded.Export()
	againData, _ := again.Bytes()
	if !bytes.Equal(data, againData) {
		t.Error("re-exported document differs from the loaded one")
	}

	// documents are in timestamp order
	var prev int64 = -1
	for _, d := range decoded.Docs {
		ts, _ := TimeOf(d, "_id")
		if ts.UnixMilli() <= prev {
			t.Fatalf("documents not in timestamp order")
		}
		prev = ts.UnixMilli()
	}
}

func TestFromDocumentRejectsForeignWindow(t *testing.T) {
	doc := Document{ID: 0, Docs: []bson.Raw{mkDoc(t, 1500, 1)}}
	if _, err := FromDocument(doc, testConfig(false)); !errors.Is(err, ErrOutOfWindow) {
		t.Errorf("expected ErrOutOfWindow, got %v", err)
	}
}

// --------------------------------------------------------------------------
// Compressed Batches
// --------------------------------------------------------------------------

func TestCompressedPointOperations(t *testing.T) {
	b := New(0, testConfig(true))
	_ = b.Insert(mkDoc(t, 1, 1))

	if _, err := b.Retrieve(time.UnixMilli(1)); !errors.Is(err, ErrNotSupported) {
		t.Errorf("Retrieve: expected ErrNotSupported, got %v", err)
	}
	if err := b.Update(mkDoc(t, 1, 2)); !errors.Is(err, ErrNotSupported) {
		t.Errorf("Update: expected ErrNotSupported, got %v", err)
	}
	if err := b.Remove(time.UnixMilli(1)); !errors.Is(err, ErrNotSupported) {
		t.Errorf("Remove: expected ErrNotSupported, got %v", err)
	}
	// no duplicate check in compressed mode
	if err := b.Insert(mkDoc(t, 1, 1)); err != nil {
		t.Errorf("duplicate insert into compressed batch failed: %v", err)
	}
	if b.Len() != 2 {
		t.Errorf("Len() = %d, want 2", b.Len())
	}
}

func TestCompressorFullSignal(t *testing.T) {
	cfg := testConfig(true)
	cfg.MillisInBatch = 1 << 40
	b := New(0, cfg)

	var inserted []bson.Raw
	signaled := -1
	for i := 0; i < 10000; i++ {
		doc := mkDoc(t, int64(i), i)
		err := b.Insert(doc)
		inserted = append(inserted, doc)
		if errors.Is(err, ErrCompressorFull) {
			signaled = i
			break
		}
		if err != nil {
			t.Fatalf("Insert %d failed: %v", i, err)
		}
	}

	if signaled != DefaultCompressorCapacity-1 {
		t.Fatalf("ErrCompressorFull at insert %d, want %d", signaled, DefaultCompressorCapacity-1)
	}

	exported, err := b.Export()
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	docs, err := exported.Expand()
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if len(docs) != len(inserted) {
		t.Fatalf("exported %d documents, want %d", len(docs), len(inserted))
	}
	for i := range docs {
		if !bytes.Equal(docs[i], inserted[i]) {
			t.Fatalf("document %d differs", i)
		}
	}
}

func TestCompressedExportConsumes(t *testing.T) {
	b := New(0, testConfig(true))
	_ = b.Insert(mkDoc(t, 7, 1))

	doc, err := b.Export()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Export(); !errors.Is(err, ErrCompressorConsumed) {
		t.Fatalf("second Export: expected ErrCompressorConsumed, got %v", err)
	}

	if err := b.Reload(doc); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	again, err := b.Export()
	if err != nil {
		t.Fatalf("Export after Reload failed: %v", err)
	}
	if !bytes.Equal(doc.Compressed, again.Compressed) {
		t.Error("reloaded batch exports a different block")
	}
}

func TestRoundTripCompressed(t *testing.T) {
	b := New(0, testConfig(true))
	for i := 0; i < 50; i++ {
		_ = b.Insert(mkDoc(t, int64(999-i*3), i)) // arrival order differs from time order
	}

	exported, _ := b.Export()
	data, _ := exported.Bytes()
	decoded, err := DecodeDocument(data)
	if err != nil {
		t.Fatal(err)
	}
	if !decoded.IsCompressed() {
		t.Fatal("decoded document should be compressed")
	}

	reloaded, err := FromDocument(decoded, testConfig(true))
	if err != nil {
		t.Fatal(err)
	}
	again, _ := reloaded.Export()

	want, _ := exported.Expand()
	got, _ := again.Expand()
	if len(got) != len(want) {
		t.Fatalf("got %d documents, want %d", len(got), len(want))
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Errorf("sample %d differs after round trip", i)
		}
	}
}

func TestFromDocumentConvertsMode(t *testing.T) {
	src := New(0, testConfig(false))
	for i := 0; i < 5; i++ {
		_ = src.Insert(mkDoc(t, int64(i*100), i))
	}
	exported, _ := src.Export()

	b, err := FromDocument(exported, testConfig(true))
	if err != nil {
		t.Fatalf("FromDocument failed: %v", err)
	}
	if b.Mode() != ModeCompressed || b.Len() != 5 {
		t.Errorf("converted batch: mode=%s len=%d", b.Mode(), b.Len())
	}
}

func TestFromDocumentKeepsLastSample(t *testing.T) {
	src := New(0, testConfig(true))
	_ = src.Insert(mkDoc(t, 100, 1))
	_ = src.Insert(mkDoc(t, 100, 2))
	_ = src.Insert(mkDoc(t, 200, 3))
	exported, _ := src.Export()

	b, err := FromDocument(exported, testConfig(false))
	if err != nil {
		t.Fatalf("FromDocument failed: %v", err)
	}
	if b.Len() != 2 {
		t.Errorf("Len() = %d, want 2", b.Len())
	}
	got, err := b.Retrieve(time.UnixMilli(100))
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if !bytes.Equal(got, mkDoc(t, 100, 2)) {
		t.Errorf("Retrieve() = %s, want the last sample", got)
	}

	// duplicates in an uncompressed document are still rejected
	dup := Document{ID: 0, Docs: []bson.Raw{mkDoc(t, 100, 1), mkDoc(t, 100, 2)}}
	if _, err := FromDocument(dup, testConfig(false)); !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestDocsReturnsCopies(t *testing.T) {
	b := New(0, testConfig(false))
	_ = b.Insert(mkDoc(t, 100, 1))

	docs, _ := b.Docs()
	for i := range docs[0] {
		docs[0][i] = 0
	}

	got, _ := b.Retrieve(time.UnixMilli(100))
	if !bytes.Equal(got, mkDoc(t, 100, 1)) {
		t.Error("changing the result of Docs changed the stored document")
	}
}

// --------------------------------------------------------------------------
// Flush and Idle Tracking
// --------------------------------------------------------------------------

func TestFlush(t *testing.T) {
	for _, compressed := range []bool{false, true} {
		t.Run(testConfig(compressed).Mode().String(), func(t *testing.T) {
			coll := newMemCollection()
			b := New(2, testConfig(compressed))
			_ = b.Insert(mkDoc(t, 2001, 1))

			n, err := b.Flush(coll)
			if err != nil {
				t.Fatalf("Flush failed: %v", err)
			}
			if n != len(coll.docs[2]) || b.IsDirty() {
				t.Errorf("Flush() = %d, stored %d bytes, dirty=%t", n, len(coll.docs[2]), b.IsDirty())
			}

			// the batch stays usable after a flush
			_ = b.Insert(mkDoc(t, 2002, 2))
			if _, err := b.Flush(coll); err != nil {
				t.Fatalf("second Flush failed: %v", err)
			}

			stored, err := DecodeDocument(coll.docs[2])
			if err != nil {
				t.Fatal(err)
			}
			docs, _ := stored.Expand()
			if len(docs) != 2 {
				t.Errorf("stored %d documents, want 2", len(docs))
			}
		})
	}
}

func TestFlushFailureKeepsState(t *testing.T) {
	for _, compressed := range []bool{false, true} {
		t.Run(testConfig(compressed).Mode().String(), func(t *testing.T) {
			coll := newMemCollection()
			coll.err = errors.New("disk full")

			b := New(0, testConfig(compressed))
			_ = b.Insert(mkDoc(t, 1, 1))

			if _, err := b.Flush(coll); !errors.Is(err, coll.err) {
				t.Fatalf("expected upsert error, got %v", err)
			}
			if !b.IsDirty() || b.Len() != 1 {
				t.Errorf("failed flush changed the batch: dirty=%t len=%d", b.IsDirty(), b.Len())
			}

			coll.err = nil
			if _, err := b.Flush(coll); err != nil {
				t.Fatalf("retry failed: %v", err)
			}
		})
	}
}

func TestCheckAndResetIdle(t *testing.T) {
	b := New(0, testConfig(false))

	if b.CheckAndResetIdle() {
		t.Error("a new batch must not be idle at the first check")
	}
	if !b.CheckAndResetIdle() {
		t.Error("batch without mutations must be idle at the second check")
	}

	_ = b.Insert(mkDoc(t, 1, 1))
	if b.CheckAndResetIdle() {
		t.Error("batch must not be idle right after an insert")
	}
	if !b.CheckAndResetIdle() {
		t.Error("batch must be idle one check after the last insert")
	}
}
