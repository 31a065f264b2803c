// Package batch groups time-stamped BSON documents into fixed-width time windows.
//
// A Batch owns the documents of one window. The window is identified by an ID which is
// derived from a timestamp by dividing the milliseconds since the epoch by the window
// width (rounding towards negative infinity):
//
//	id := batch.IDFor(t, 1000) // windows of one second
//
// Two documents belong to the same batch if and only if their timestamps fall into the
// same half-open interval [id*width, (id+1)*width).
//
// Modes:
//
//   - Uncompressed: documents are kept in an ordered map (google/btree) keyed by timestamp.
//     Insert rejects duplicate timestamps, Update, Retrieve and Remove work on single documents.
//
//   - Compressed: documents are appended to a Compressor in arrival order. Only full exports
//     are possible and exporting consumes the compressor. Once the compressor reaches its
//     capacity Insert returns ErrCompressorFull as a signal; the document was stored anyway.
//
// Persisted Form:
//
// A batch is persisted as a BSON document with the batch id and either an array of
// documents in timestamp order or a binary compressed block:
//
//	{ id: 42, docs: [ {_id: ISODate(...), v: 1}, ... ] }
//	{ id: 42, docs: BinData(0, "VFNCQwEo...") }
//
// FromDocument rebuilds a batch from that form such that exporting the rebuilt batch yields
// the same document again.
//
// Compressed Block:
//
// The compressor writes a columnar block: the timestamps are delta encoded as zig-zag
// varints, followed by the length prefixed raw documents. The body is compressed with zstd
// (klauspost/compress).
//
// Idle Tracking:
//
// Every mutation marks a batch dirty and active. Flush clears the dirty flag, CheckAndResetIdle
// clears the active flag. A batch is idle if it was not mutated between two calls of
// CheckAndResetIdle, which lets a periodic sweep find batches that stopped receiving writes.
//
// Thread-safety: nothing in this package is thread-safe, except Decompress and the package level functions.
package batch
