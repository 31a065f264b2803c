package cache

import (
	"fmt"
	"math"
	"strings"

	"github.com/ValentinKolb/tsbatch/lib/batch"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Options configure a cache. They are fixed at construction.
type Options struct {
	// Compressed selects compressed batches
	Compressed bool
	// CacheSize is the maximum number of resident batches
	CacheSize int
	// MillisInBatch is the width of the time window of a batch
	MillisInBatch int64
	// TimeField is the document field holding the timestamp, dotted paths are allowed
	TimeField string
	// BackingName is the name of the backing collection. Empty means "<cache name>_timeseries".
	BackingName string
	// CompressorCapacity is the number of samples after which a compressed batch reports ErrCompressorFull
	CompressorCapacity int
}

// DefaultOptions returns the default options
func DefaultOptions() Options {
	return Options{
		Compressed:         false,
		CacheSize:          2,
		MillisInBatch:      1000,
		TimeField:          "_id",
		CompressorCapacity: batch.DefaultCompressorCapacity,
	}
}

// Validate checks the options for consistency
func (o Options) Validate() error {
	switch {
	case o.CacheSize < 1:
		return fmt.Errorf("%w: cache_size must be at least 1, got %d", ErrInvalidOptions, o.CacheSize)
	case o.MillisInBatch < 1:
		return fmt.Errorf("%w: millis_in_batch must be at least 1, got %d", ErrInvalidOptions, o.MillisInBatch)
	case o.TimeField == "":
		return fmt.Errorf("%w: time_field must not be empty", ErrInvalidOptions)
	case strings.Contains(o.BackingName, "/"):
		return fmt.Errorf("%w: backing_name must not contain '/'", ErrInvalidOptions)
	case o.CompressorCapacity < 1:
		return fmt.Errorf("%w: compressor_capacity must be at least 1, got %d", ErrInvalidOptions, o.CompressorCapacity)
	}
	return nil
}

// Backing returns the name of the backing collection of a cache with the given name
func (o Options) Backing(name string) string {
	if o.BackingName != "" {
		return o.BackingName
	}
	return name + "_timeseries"
}

// batchConfig returns the config shared by all batches of the cache
func (o Options) batchConfig() batch.Config {
	return batch.Config{
		Compressed:         o.Compressed,
		TimeField:          o.TimeField,
		MillisInBatch:      o.MillisInBatch,
		CompressorCapacity: o.CompressorCapacity,
	}
}

func (o Options) String() string {
	return fmt.Sprintf("compressed=%t cache_size=%d millis_in_batch=%d time_field=%s backing_name=%s compressor_capacity=%d",
		o.Compressed, o.CacheSize, o.MillisInBatch, o.TimeField, o.BackingName, o.CompressorCapacity)
}

// OptionsFromDocument parses an options document such as
//
//	{ compressed: true, cache_size: 4, millis_in_batch: 60000, time_field: "ts" }
//
// Missing options keep their defaults. Unknown options and values of the wrong type are rejected.
func OptionsFromDocument(doc bson.Raw) (Options, error) {
	opts := DefaultOptions()

	elems, err := doc.Elements()
	if err != nil {
		return Options{}, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}

	for _, elem := range elems {
		key, val := elem.Key(), elem.Value()

		var ok bool
		switch key {
		case "compressed":
			opts.Compressed, ok = val.BooleanOK()
		case "cache_size":
			opts.CacheSize, ok = countOf(val)
		case "millis_in_batch":
			opts.MillisInBatch, ok = integerOf(val)
		case "time_field":
			opts.TimeField, ok = val.StringValueOK()
		case "backing_name":
			opts.BackingName, ok = val.StringValueOK()
		case "compressor_capacity":
			opts.CompressorCapacity, ok = countOf(val)
		default:
			return Options{}, fmt.Errorf("%w: unknown option %q", ErrInvalidOptions, key)
		}
		if !ok {
			return Options{}, fmt.Errorf("%w: option %q has invalid type %s", ErrInvalidOptions, key, val.Type)
		}
	}

	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// maxExactDouble is the largest integer a double represents exactly
const maxExactDouble = 1 << 53

// countOf accepts integers in the int32 range, so counts fit an int on every platform
func countOf(val bson.RawValue) (int, bool) {
	n, ok := integerOf(val)
	if !ok || n < math.MinInt32 || n > math.MaxInt32 {
		return 0, false
	}
	return int(n), true
}

// integerOf accepts int32, int64 and integral doubles
func integerOf(val bson.RawValue) (int64, bool) {
	switch val.Type {
	case bson.TypeInt32:
		n, ok := val.Int32OK()
		return int64(n), ok
	case bson.TypeInt64:
		return val.Int64OK()
	case bson.TypeDouble:
		f, ok := val.DoubleOK()
		if !ok || f != math.Trunc(f) || math.Abs(f) > maxExactDouble {
			return 0, false
		}
		return int64(f), true
	default:
		return 0, false
	}
}
