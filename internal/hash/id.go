// Package hash wraps xxHash64 for table identifiers and page checksums.
package hash

import "github.com/cespare/xxhash/v2"

// ID returns the identifier of a table path.
func ID(path string) uint64 {
	return xxhash.Sum64String(path)
}

// Checksum returns the xxHash64 digest of a page payload.
func Checksum(data []byte) uint64 {
	return xxhash.Sum64(data)
}
