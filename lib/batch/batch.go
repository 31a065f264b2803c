package batch

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/btree"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// Mode selects the representation of a batch
type Mode uint8

const (
	ModeUncompressed Mode = iota // ordered map timestamp -> document
	ModeCompressed               // append only compressor
)

func (m Mode) String() string {
	switch m {
	case ModeUncompressed:
		return "uncompressed"
	case ModeCompressed:
		return "compressed"
	default:
		return fmt.Sprintf("Unknown(%d)", m)
	}
}

// Config holds the settings shared by all batches of a cache
type Config struct {
	Compressed         bool
	TimeField          string
	MillisInBatch      int64
	CompressorCapacity int
}

// Mode returns the batch mode selected by the config
func (c Config) Mode() Mode {
	if c.Compressed {
		return ModeCompressed
	}
	return ModeUncompressed
}

// Collection is the durable store batches are flushed to.
// Upsert inserts or replaces the document with the given id, FindOne reports a missing document with found=false.
type Collection interface {
	Upsert(id int64, doc []byte) error
	FindOne(id int64) (doc []byte, found bool, err error)
}

// --------------------------------------------------------------------------
// Batch
// --------------------------------------------------------------------------

const btreeDegree = 32

type entry struct {
	millis int64
	doc    bson.Raw
}

func entryLess(a, b entry) bool {
	return a.millis < b.millis
}

// Batch holds the documents of one time window.
//
// Depending on the mode the documents are kept in an ordered map keyed by timestamp
// (point lookups, updates and removals are supported) or in an append only Compressor
// (only full exports are supported).
//
// Thread-safety: Batch is not thread-safe. The owning cache serializes all access.
type Batch struct {
	id   ID
	cfg  Config
	docs *btree.BTreeG[entry] // ModeUncompressed
	comp *Compressor          // ModeCompressed

	// dirty is set by every mutation and cleared by a successful flush
	dirty bool
	// active is set by every mutation and cleared by CheckAndResetIdle
	active bool
}

// New creates an empty batch for the window id
func New(id ID, cfg Config) *Batch {
	b := &Batch{
		id:     id,
		cfg:    cfg,
		active: true,
	}
	if cfg.Compressed {
		b.comp = NewCompressor(cfg.CompressorCapacity)
	} else {
		b.docs = btree.NewG[entry](btreeDegree, entryLess)
	}
	return b
}

// FromDocument reconstructs a batch from its persisted form by replaying the stored documents.
// A document stored in the other mode is converted. Compressed samples may repeat a timestamp,
// an uncompressed batch keeps the last sample of each timestamp. The reconstructed batch is clean.
func FromDocument(doc Document, cfg Config) (*Batch, error) {
	b := New(doc.ID, cfg)

	var samples []Sample
	if doc.IsCompressed() {
		var err error
		if samples, err = Decompress(doc.Compressed); err != nil {
			return nil, fmt.Errorf("batch %d: %w", doc.ID, err)
		}
	} else {
		samples = make([]Sample, len(doc.Docs))
		for i, d := range doc.Docs {
			ms, err := millisOf(d, cfg.TimeField)
			if err != nil {
				return nil, fmt.Errorf("batch %d: document %d: %w", doc.ID, i, err)
			}
			samples[i] = Sample{Millis: ms, Doc: d}
		}
	}

	for i, s := range samples {
		err := b.add(s.Doc, s.Millis)
		// add replaced the earlier sample
		if errors.Is(err, ErrDuplicateKey) && doc.IsCompressed() {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("batch %d: document %d: %w", doc.ID, i, err)
		}
	}
	return b, nil
}

// add stores a document without touching the flags. In compressed mode it never fails.
func (b *Batch) add(doc bson.Raw, millis int64) error {
	if id := IDForMillis(millis, b.cfg.MillisInBatch); id != b.id {
		return fmt.Errorf("%w: timestamp %d belongs to batch %d, not %d", ErrOutOfWindow, millis, id, b.id)
	}

	if b.comp != nil {
		_, err := b.comp.Append(doc, millis)
		return err
	}

	if _, loaded := b.docs.ReplaceOrInsert(entry{millis: millis, doc: doc}); loaded {
		return fmt.Errorf("%w: timestamp %d", ErrDuplicateKey, millis)
	}
	return nil
}

// markMutated records a successful mutation
func (b *Batch) markMutated() {
	b.dirty = true
	b.active = true
}

// ID returns the window of the batch
func (b *Batch) ID() ID {
	return b.id
}

// Mode returns the representation of the batch
func (b *Batch) Mode() Mode {
	return b.cfg.Mode()
}

// Len returns the number of documents in the batch
func (b *Batch) Len() int {
	if b.comp != nil {
		return b.comp.Len()
	}
	return b.docs.Len()
}

// IsDirty reports whether the batch was mutated since its last successful flush
func (b *Batch) IsDirty() bool {
	return b.dirty
}

// --------------------------------------------------------------------------
// Document Operations
// --------------------------------------------------------------------------

// Insert stores a document. The document is copied.
//
// Uncompressed batches reject a second document with the same timestamp with ErrDuplicateKey.
// Compressed batches append unconditionally and return ErrCompressorFull once the compressor
// reached its capacity. In that case the document was stored and the caller should flush the batch.
func (b *Batch) Insert(doc bson.Raw) error {
	millis, err := millisOf(doc, b.cfg.TimeField)
	if err != nil {
		return err
	}

	doc = clone(doc)
	if b.docs != nil && b.docs.Has(entry{millis: millis}) {
		return fmt.Errorf("%w: timestamp %d", ErrDuplicateKey, millis)
	}
	if err := b.add(doc, millis); err != nil {
		return err
	}
	b.markMutated()

	if b.comp != nil && b.comp.Full() {
		return fmt.Errorf("%w: batch %d holds %d samples", ErrCompressorFull, b.id, b.comp.Len())
	}
	return nil
}

// Update replaces the document with the same timestamp
func (b *Batch) Update(doc bson.Raw) error {
	if b.comp != nil {
		return ErrNotSupported
	}
	millis, err := millisOf(doc, b.cfg.TimeField)
	if err != nil {
		return err
	}
	if !b.docs.Has(entry{millis: millis}) {
		return fmt.Errorf("%w: timestamp %d", ErrNoSuchKey, millis)
	}
	b.docs.ReplaceOrInsert(entry{millis: millis, doc: clone(doc)})
	b.markMutated()
	return nil
}

// Retrieve returns the document stored for t
func (b *Batch) Retrieve(t time.Time) (bson.Raw, error) {
	if b.comp != nil {
		return nil, ErrNotSupported
	}
	e, ok := b.docs.Get(entry{millis: t.UnixMilli()})
	if !ok {
		return nil, fmt.Errorf("%w: timestamp %d", ErrNoSuchKey, t.UnixMilli())
	}
	return clone(e.doc), nil
}

// Remove deletes the document stored for t
func (b *Batch) Remove(t time.Time) error {
	if b.comp != nil {
		return ErrNotSupported
	}
	if _, ok := b.docs.Delete(entry{millis: t.UnixMilli()}); !ok {
		return fmt.Errorf("%w: timestamp %d", ErrNoSuchKey, t.UnixMilli())
	}
	b.markMutated()
	return nil
}

// Docs returns copies of the documents of an uncompressed batch in timestamp order
func (b *Batch) Docs() ([]bson.Raw, error) {
	if b.comp != nil {
		return nil, ErrNotSupported
	}
	docs := make([]bson.Raw, 0, b.docs.Len())
	b.docs.Ascend(func(e entry) bool {
		docs = append(docs, clone(e.doc))
		return true
	})
	return docs, nil
}

// --------------------------------------------------------------------------
// Persistence
// --------------------------------------------------------------------------

// Export returns the persistable representation of the batch.
//
// For compressed batches Export consumes the compressor. A second Export fails with
// ErrCompressorConsumed until the batch is reloaded with Reload.
func (b *Batch) Export() (Document, error) {
	if b.comp != nil {
		data, err := b.comp.Finish()
		if err != nil {
			return Document{}, fmt.Errorf("batch %d: %w", b.id, err)
		}
		return Document{ID: b.id, Compressed: data}, nil
	}

	docs, _ := b.Docs()
	return Document{ID: b.id, Docs: docs}, nil
}

// Reload restores the compressor of a compressed batch from an exported document.
// The flags of the batch are not changed.
func (b *Batch) Reload(doc Document) error {
	if b.comp == nil {
		return nil
	}
	reloaded, err := FromDocument(doc, b.cfg)
	if err != nil {
		return err
	}
	b.comp = reloaded.comp
	return nil
}

// Flush writes the batch to the collection and returns the size of the written document.
// The batch is clean afterward if the upsert succeeded. Flush does not retry.
//
// Compressed batches are reloaded from the exported document whether or not the upsert
// succeeded, so the batch stays usable and keeps all samples.
func (b *Batch) Flush(coll Collection) (int, error) {
	doc, err := b.Export()
	if err != nil {
		return 0, err
	}

	data, err := doc.Bytes()
	if err == nil {
		err = coll.Upsert(int64(b.id), data)
	}

	if rerr := b.Reload(doc); rerr != nil && err == nil {
		err = rerr
	}
	if err != nil {
		return 0, err
	}

	b.dirty = false
	return len(data), nil
}

// CheckAndResetIdle reports whether the batch was not mutated since the previous call
// and starts a new observation period. A new or loaded batch is not idle at the first call.
func (b *Batch) CheckAndResetIdle() bool {
	idle := !b.active
	b.active = false
	return idle
}

// String renders the batch for debugging
func (b *Batch) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Batch %d (%s, %d docs, dirty=%t)", b.id, b.Mode(), b.Len(), b.dirty)
	if b.docs != nil {
		b.docs.Ascend(func(e entry) bool {
			sb.WriteString(",\t")
			sb.WriteString(e.doc.String())
			return true
		})
	}
	return sb.String()
}

func clone(doc bson.Raw) bson.Raw {
	return append(bson.Raw(nil), doc...)
}
