package util

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// --------------------------------------------------------------------------
// General Utility Functions
// --------------------------------------------------------------------------

// GenerateSeed creates a random seed for internal hash distribution
func GenerateSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// fall back to the clock if the system entropy source fails
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// --------------------------------------------------------------------------
// Hash Functions
// --------------------------------------------------------------------------

// UintKey is an efficient key type based on uint64 for internal hash representation
type UintKey uint64

// HashString generates a hash value for a string with a seed
// This function uses the FNV-1a hash algorithm, which is fast and has good distribution
func HashString(s string, seed uint64) UintKey {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)

	hash := uint64(offset64) ^ seed

	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= prime64
	}

	return UintKey(hash)
}

// --------------------------------------------------------------------------
// Ordered Encodings
// --------------------------------------------------------------------------

// OrderedUint64 maps a signed integer to an unsigned one so that the unsigned
// (and big endian byte) order matches the signed order. Negative values sort
// before positive ones.
func OrderedUint64(v int64) uint64 {
	return uint64(v) ^ (1 << 63)
}

// FromOrderedUint64 is the inverse of OrderedUint64.
func FromOrderedUint64(u uint64) int64 {
	return int64(u ^ (1 << 63))
}
