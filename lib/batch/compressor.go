package batch

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// --------------------------------------------------------------------------
// Block Format
// --------------------------------------------------------------------------

// A compressed block has the following layout:
//
//	4 bytes: magic "TSBC"
//	1 byte:  format version
//	rest:    zstd frame of the body
//
// The body is columnar:
//
//	uvarint:          number of samples n
//	n x varint:       timestamps, delta encoded (zig-zag), the first delta is relative to 0
//	n x (uvarint, b): length prefixed raw BSON documents
const (
	compressorMagic   = "TSBC"
	compressorVersion = byte(1)
	blockHeaderSize   = len(compressorMagic) + 1

	// DefaultCompressorCapacity is the number of samples after which a compressor reports itself full
	DefaultCompressorCapacity = 300
)

// EncodeAll and DecodeAll are safe for concurrent use, one encoder and decoder serve all batches.
var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	decoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
)

// Sample is a single document of a compressed block together with its timestamp
type Sample struct {
	Millis int64
	Doc    bson.Raw
}

// --------------------------------------------------------------------------
// Compressor
// --------------------------------------------------------------------------

// Compressor accumulates samples in arrival order and encodes them into a single compressed block.
// It is append only: samples can neither be looked up nor changed, and Finish consumes the compressor.
//
// Thread-safety: Compressor is not thread-safe.
type Compressor struct {
	capacity int
	times    []int64
	docs     []byte // length prefixed raw documents
	consumed bool
}

// NewCompressor creates an empty compressor that reports itself full after capacity samples
func NewCompressor(capacity int) *Compressor {
	if capacity <= 0 {
		capacity = DefaultCompressorCapacity
	}
	return &Compressor{capacity: capacity}
}

// Append adds a sample. It returns true if the compressor reached its capacity with this sample.
// Samples appended after that are still accepted and keep reporting full.
func (c *Compressor) Append(doc bson.Raw, millis int64) (full bool, err error) {
	if c.consumed {
		return false, ErrCompressorConsumed
	}
	c.times = append(c.times, millis)
	c.docs = binary.AppendUvarint(c.docs, uint64(len(doc)))
	c.docs = append(c.docs, doc...)
	return c.Full(), nil
}

// Len returns the number of samples
func (c *Compressor) Len() int {
	return len(c.times)
}

// Full reports whether the compressor reached its capacity
func (c *Compressor) Full() bool {
	return len(c.times) >= c.capacity
}

// Consumed reports whether Finish was called
func (c *Compressor) Consumed() bool {
	return c.consumed
}

// Finish encodes all samples into a compressed block and consumes the compressor.
func (c *Compressor) Finish() ([]byte, error) {
	if c.consumed {
		return nil, ErrCompressorConsumed
	}

	body := make([]byte, 0, binary.MaxVarintLen64*(len(c.times)+1)+len(c.docs))
	body = binary.AppendUvarint(body, uint64(len(c.times)))
	prev := int64(0)
	for _, t := range c.times {
		body = binary.AppendVarint(body, t-prev)
		prev = t
	}
	body = append(body, c.docs...)

	out := make([]byte, 0, blockHeaderSize+len(body)/2)
	out = append(out, compressorMagic...)
	out = append(out, compressorVersion)
	out = encoder.EncodeAll(body, out)

	c.consumed = true
	c.times = nil
	c.docs = nil
	return out, nil
}

// Decompress decodes a block produced by Finish into its samples in arrival order.
// The returned documents do not share memory with data.
func Decompress(data []byte) ([]Sample, error) {
	if len(data) < blockHeaderSize || !bytes.Equal(data[:len(compressorMagic)], []byte(compressorMagic)) {
		return nil, fmt.Errorf("%w: not a compressed block", ErrInvalidDocument)
	}
	if v := data[len(compressorMagic)]; v != compressorVersion {
		return nil, fmt.Errorf("%w: unsupported block version %d", ErrInvalidDocument, v)
	}

	body, err := decoder.DecodeAll(data[blockHeaderSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	count, n := binary.Uvarint(body)
	if n <= 0 || count > uint64(len(body)) {
		return nil, fmt.Errorf("%w: invalid sample count", ErrInvalidDocument)
	}
	body = body[n:]

	samples := make([]Sample, count)
	prev := int64(0)
	for i := range samples {
		delta, n := binary.Varint(body)
		if n <= 0 {
			return nil, fmt.Errorf("%w: truncated timestamp column at sample %d", ErrInvalidDocument, i)
		}
		body = body[n:]
		prev += delta
		samples[i].Millis = prev
	}

	for i := range samples {
		size, n := binary.Uvarint(body)
		if n <= 0 || size > uint64(len(body)-n) {
			return nil, fmt.Errorf("%w: truncated document column at sample %d", ErrInvalidDocument, i)
		}
		doc := bson.Raw(body[n : n+int(size)])
		if err := doc.Validate(); err != nil {
			return nil, fmt.Errorf("%w: sample %d: %v", ErrInvalidDocument, i, err)
		}
		samples[i].Doc = doc
		body = body[n+int(size):]
	}

	if len(body) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidDocument, len(body))
	}
	return samples, nil
}
