package cache

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/tsbatch/lib/batch"
)

var (
	// ErrBackingStore matches every *StoreError with errors.Is
	ErrBackingStore = errors.New("backing store error")
	// ErrInternalConsistency is returned when the residency bookkeeping is broken.
	// The cache refuses every further operation with this error.
	ErrInternalConsistency = errors.New("internal consistency violation")
	// ErrClosed is returned by operations on a closed cache
	ErrClosed = errors.New("cache closed")
	// ErrInvalidOptions is returned for invalid cache options
	ErrInvalidOptions = errors.New("invalid options")
)

// StoreError is returned when loading a batch from or flushing a batch to the backing collection fails.
type StoreError struct {
	Op  string // "load", "flush", "evict" or "idle-flush"
	ID  batch.ID
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s of batch %d failed: %v", e.Op, e.ID, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrBackingStore) work for all store errors
func (e *StoreError) Is(target error) bool {
	return target == ErrBackingStore
}
