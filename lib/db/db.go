package db

import "io"

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMaple  Implementation = "maple"
	ImplBadger Implementation = "badger"
)

// Feature represents database features as bit flags
type Feature uint64

const (
	FeatureSet    Feature = 1 << iota // Support for Set operations
	FeatureGet                        // Support for Get operations
	FeatureDelete                     // Support for Delete operations
	FeatureHas                        // Support for Has operations
	FeatureRange                      // Support for ordered prefix iteration
	FeatureSave                       // Support for Save operations
	FeatureLoad                       // Support for Load operations
)

func (f Feature) String() string {
	switch f {
	case FeatureSet:
		return "Set"
	case FeatureGet:
		return "Get"
	case FeatureDelete:
		return "Delete"
	case FeatureHas:
		return "Has"
	case FeatureRange:
		return "Range"
	case FeatureSave:
		return "Save"
	case FeatureLoad:
		return "Load"
	default:
		return "Unknown"
	}
}

type DatabaseInfo struct {
	SizeBytes         int            `json:"size_bytes"`
	Keys              int            `json:"keys"`
	DbType            Implementation `json:"db_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// KVDB defines an interface for the key-value engines that hold persisted batch documents.
// Keys are plain strings, values are opaque byte slices. Implementations can vary in
// their feature support, which can be queried with SupportsFeature.
type KVDB interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Set inserts or updates an entry with the given key and value.
	// If the key already exists, the old value is overwritten.
	// The writeIndex parameter is used as a logical timestamp for the entry;
	// writes carrying an index lower than the one stored with the entry are ignored.
	Set(key string, value []byte, writeIndex uint64) (err error)

	// Delete removes an entry with the specified key.
	// Deleting a key that does not exist is not an error.
	Delete(key string, writeIndex uint64) (err error)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get retrieves the value for an exact key.
	// The boolean return value indicates whether a value for the key was found.
	// The returned slice is owned by the caller.
	Get(key string) (value []byte, loaded bool, err error)

	// Has checks whether a key exists in the database.
	Has(key string) (loaded bool, err error)

	// Range calls fn for every entry whose key starts with prefix, in ascending key order.
	// Iteration stops early when fn returns false.
	Range(prefix string, fn func(key string, value []byte) bool) (err error)

	// --------------------------------------------------------------------------
	// Persistence Operations
	// --------------------------------------------------------------------------

	// Save persists the current state of the database to the provided io.Writer.
	Save(w io.Writer) (err error)

	// Load restores the database state data provided by an io.Reader.
	// All existing entries are replaced.
	Load(r io.Reader) (err error)

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the database implementation supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the database.
	GetInfo() (info DatabaseInfo)

	// --------------------------------------------------------------------------
	// Write Index Operations
	// --------------------------------------------------------------------------

	// SetWriteIdx sets the current index of the database only if the provided index is greater than the current index.
	SetWriteIdx(index uint64)

	// WriteIdx returns the current index of the database.
	WriteIdx() (index uint64)

	// Close closes the database.
	Close() (err error)
}
