// Package strid provides interned identifiers derived from names.
//
// Identifiers stand in for names wherever string comparison would otherwise
// be needed. The hash is pinned to xxHash64, so identifiers are stable across
// processes and releases. Zero is reserved as "none".
package strid

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// ID32 is a 32-bit interned identifier.
type ID32 uint32

// ID64 is a 64-bit interned identifier.
type ID64 uint64

// Zero values mean "unset".
const (
	Zero32 ID32 = 0
	Zero64 ID64 = 0
)

// Sum64 returns the 64-bit identifier for name.
func Sum64(name string) ID64 {
	h := xxhash.Sum64String(name)
	if h == 0 {
		return 1
	}
	return ID64(h)
}

// Sum32 returns the 32-bit identifier for name. The 64-bit digest is folded
// so both halves contribute.
func Sum32(name string) ID32 {
	h := xxhash.Sum64String(name)
	folded := uint32(h>>32) ^ uint32(h)
	if folded == 0 {
		return 1
	}
	return ID32(folded)
}

// IsZero reports whether the identifier is unset.
func (id ID32) IsZero() bool { return id == 0 }

// IsZero reports whether the identifier is unset.
func (id ID64) IsZero() bool { return id == 0 }

func (id ID32) String() string { return fmt.Sprintf("%08x", uint32(id)) }

func (id ID64) String() string { return fmt.Sprintf("%016x", uint64(id)) }
