package batch

import "errors"

var (
	// ErrDuplicateKey is returned when a document with the same timestamp already exists in an uncompressed batch.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrNoSuchKey is returned when no document exists for a timestamp.
	ErrNoSuchKey = errors.New("no such key")
	// ErrCompressorFull signals that a compressed batch reached its capacity.
	// The document that triggered the signal was stored.
	ErrCompressorFull = errors.New("compressor full")
	// ErrCompressorConsumed is returned when a compressed batch is exported twice without a reload.
	ErrCompressorConsumed = errors.New("compressor already consumed")
	// ErrNotSupported is returned for point operations on compressed batches.
	ErrNotSupported = errors.New("operation not supported on compressed batch")
	// ErrInvalidTimeField is returned when the time field of a document is missing or not a timestamp.
	ErrInvalidTimeField = errors.New("invalid time field")
	// ErrOutOfWindow is returned when a document does not belong to the time window of a batch.
	ErrOutOfWindow = errors.New("document outside of batch window")
	// ErrInvalidDocument is returned when a persisted batch document cannot be decoded.
	ErrInvalidDocument = errors.New("invalid batch document")
)
