package hashtable

import (
	"hash/fnv"

	"github.com/corekv/corekv/internal/page"
)

// sum64a hashes b with the standard library's FNV-1a 64-bit implementation.
func sum64a(b []byte) uint64 {
	h := fnv.New64a()
	h.Write(b) //nolint:errcheck // hash.Hash.Write never returns an error
	return h.Sum64()
}

// HashPageID hashes a page.ID for use as the buffer pool's page-table key.
func HashPageID(id page.ID) uint64 {
	v := uint32(id)
	return sum64a([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}

// HashUint32 hashes a plain uint32 key (e.g. a table/index OID).
func HashUint32(v uint32) uint64 {
	return sum64a([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}

// HashString hashes a string key.
func HashString(s string) uint64 {
	return sum64a([]byte(s))
}
